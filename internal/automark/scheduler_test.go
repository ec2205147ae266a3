package automark

import (
	"context"
	"errors"
	"testing"
	"time"

	"classtrack/internal/calendar"
	"classtrack/internal/model"
	"classtrack/internal/schedule"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeRecords struct {
	byKey      map[model.RecordKey]model.AttendanceRecord
	bulkCalls  int
	failBefore int // BulkCreate fails while bulkCalls < failBefore
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byKey: make(map[model.RecordKey]model.AttendanceRecord)}
}

func (f *fakeRecords) ListRange(ctx context.Context, from, to time.Time) ([]model.AttendanceRecord, error) {
	var out []model.AttendanceRecord
	for _, r := range f.byKey {
		if !r.Date.Before(from) && r.Date.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecords) BulkCreate(ctx context.Context, recs []model.AttendanceRecord) (int, error) {
	f.bulkCalls++
	if f.bulkCalls <= f.failBefore {
		return 0, errors.New("store unreachable")
	}
	inserted := 0
	for _, r := range recs {
		key := r.Key()
		if _, ok := f.byKey[key]; ok {
			continue
		}
		f.byKey[key] = r
		inserted++
	}
	return inserted, nil
}

// Monday 2025-03-03; three slots ending 09:50, 10:50, 11:50.
func testSetup() (*schedule.Index, *calendar.Resolver) {
	idx := schedule.NewIndex([]model.ScheduleSlot{
		{ID: "math-1", DayOfWeek: time.Monday, SubjectKey: "math", ClassType: "lecture", StartTime: "09:00", EndTime: "09:50"},
		{ID: "phy-1", DayOfWeek: time.Monday, SubjectKey: "physics", ClassType: "lecture", StartTime: "10:00", EndTime: "10:50"},
		{ID: "chem-1", DayOfWeek: time.Monday, SubjectKey: "chemistry", ClassType: "lab", StartTime: "11:00", EndTime: "11:50"},
	})
	res := calendar.NewResolver(
		[]model.Holiday{{Date: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Reason: "holiday"}},
		[]model.OffDay{{DayOfWeek: time.Sunday}},
	)
	return idx, res
}

func at(hour, min int) time.Time {
	return time.Date(2025, 3, 3, hour, min, 0, 0, time.UTC)
}

func newTestScheduler(records RecordStore, clock Clock) (*Scheduler, *MemoryCache) {
	idx, res := testSetup()
	cache := NewMemoryCache()
	s := New(cache, records, idx, res, clock, nil, Options{
		ScanInterval: time.Hour,
		FlushHour:    23,
		FlushMinute:  30,
		PollInterval: time.Minute,
	})
	return s, cache
}

func TestEnableStagesElapsedSlots(t *testing.T) {
	clock := &fakeClock{now: at(10, 55)}
	s, cache := newTestScheduler(newFakeRecords(), clock)
	ctx := context.Background()

	if err := s.Enable(ctx); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if on, _ := cache.Enabled(ctx); !on {
		t.Fatal("enabled flag not persisted")
	}

	pending, _ := cache.Pending(ctx)
	if len(pending) != 2 {
		t.Fatalf("staged %d slots, want 2 (math and physics ended, chemistry has not)", len(pending))
	}
	for _, p := range pending {
		if p.Status != model.StatusPresent {
			t.Errorf("staged status = %s, want present", p.Status)
		}
	}
}

func TestRescanDoesNotDuplicate(t *testing.T) {
	clock := &fakeClock{now: at(10, 55)}
	s, cache := newTestScheduler(newFakeRecords(), clock)
	ctx := context.Background()

	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	clock.now = at(12, 0)
	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	pending, _ := cache.Pending(ctx)
	if len(pending) != 3 {
		t.Fatalf("staged %d, want 3 distinct slots after repeated scans", len(pending))
	}
}

func TestScanSkipsPersistedRecords(t *testing.T) {
	records := newFakeRecords()
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	records.byKey[model.RecordKey{SubjectKey: "math", Date: "2025-03-03", SlotID: "math-1"}] = model.AttendanceRecord{
		ID: "r1", Date: day, SubjectKey: "math", Status: model.StatusAbsent, SlotID: "math-1",
	}
	clock := &fakeClock{now: at(10, 55)}
	s, cache := newTestScheduler(records, clock)
	ctx := context.Background()

	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	pending, _ := cache.Pending(ctx)
	if len(pending) != 1 {
		t.Fatalf("staged %d, want 1: the persisted math slot must not re-stage", len(pending))
	}
	if _, ok := pending[model.RecordKey{SubjectKey: "math", Date: "2025-03-03", SlotID: "math-1"}]; ok {
		t.Fatal("math slot staged despite persisted record")
	}
}

func TestScanSkipsExcludedDay(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)} // holiday Monday
	s, cache := newTestScheduler(newFakeRecords(), clock)
	ctx := context.Background()

	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if pending, _ := cache.Pending(ctx); len(pending) != 0 {
		t.Fatalf("staged %d slots on a holiday, want 0", len(pending))
	}
}

func TestOverride(t *testing.T) {
	clock := &fakeClock{now: at(10, 55)}
	s, cache := newTestScheduler(newFakeRecords(), clock)
	ctx := context.Background()

	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	key := model.RecordKey{SubjectKey: "math", Date: "2025-03-03", SlotID: "math-1"}
	if err := s.Override(ctx, key, model.StatusAbsent); err != nil {
		t.Fatalf("Override: %v", err)
	}

	pending, _ := cache.Pending(ctx)
	if pending[key].Status != model.StatusAbsent {
		t.Fatalf("override not applied: %+v", pending[key])
	}

	// A rescan must not resurrect the auto-present decision.
	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	pending, _ = cache.Pending(ctx)
	if pending[key].Status != model.StatusAbsent {
		t.Fatal("rescan overwrote a manual override")
	}

	if err := s.Override(ctx, model.RecordKey{SubjectKey: "chemistry", Date: "2025-03-03", SlotID: "chem-1"}, model.StatusAbsent); err == nil {
		t.Fatal("override of a non-staged slot should fail")
	}
}

func TestFlushUploadsOnceAndClears(t *testing.T) {
	records := newFakeRecords()
	clock := &fakeClock{now: at(12, 0)}
	s, cache := newTestScheduler(records, clock)
	ctx := context.Background()

	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if pending, _ := cache.Pending(ctx); len(pending) != 0 {
		t.Fatalf("cache not cleared after flush: %d entries", len(pending))
	}
	if len(records.byKey) != 3 {
		t.Fatalf("persisted %d records, want 3", len(records.byKey))
	}
	last, _ := cache.LastUpload(ctx)
	if !model.SameDay(last, clock.now) {
		t.Fatalf("last upload day = %v, want today", last)
	}

	// Rescan + reflush the same day must not duplicate anything: the
	// persisted check drops all three, the batch is empty.
	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(records.byKey) != 3 {
		t.Fatalf("duplicate records after reflush: %d", len(records.byKey))
	}
}

func TestFlushFailureKeepsCacheAndRetries(t *testing.T) {
	records := newFakeRecords()
	records.failBefore = 1
	clock := &fakeClock{now: at(12, 0)}
	s, cache := newTestScheduler(records, clock)
	ctx := context.Background()

	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	err := s.Flush(ctx)
	var upload *model.UploadFailure
	if !errors.As(err, &upload) {
		t.Fatalf("error = %v, want UploadFailure", err)
	}
	if pending, _ := cache.Pending(ctx); len(pending) != 3 {
		t.Fatalf("cache dropped on failed upload: %d entries left", len(pending))
	}

	// Next cycle succeeds with the same staged decisions.
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if len(records.byKey) != 3 {
		t.Fatalf("persisted %d records after retry, want 3", len(records.byKey))
	}
}

func TestTickEndOfDayFlushesOnce(t *testing.T) {
	records := newFakeRecords()
	clock := &fakeClock{now: at(23, 45)}
	s, cache := newTestScheduler(records, clock)
	ctx := context.Background()

	if err := cache.SetEnabled(ctx, true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	s.Tick(ctx)
	if len(records.byKey) != 3 {
		t.Fatalf("end-of-day tick persisted %d records, want 3", len(records.byKey))
	}
	uploadsAfterFirst := records.bulkCalls

	clock.now = at(23, 50)
	s.Tick(ctx)
	if records.bulkCalls != uploadsAfterFirst {
		t.Fatal("second tick re-uploaded within the same day")
	}
}

func TestTickDisabledDoesNothing(t *testing.T) {
	records := newFakeRecords()
	clock := &fakeClock{now: at(23, 45)}
	s, cache := newTestScheduler(records, clock)
	ctx := context.Background()

	s.Tick(ctx)
	if pending, _ := cache.Pending(ctx); len(pending) != 0 || records.bulkCalls != 0 {
		t.Fatal("disabled scheduler must not scan or upload")
	}
}

func TestDisableFlushesPending(t *testing.T) {
	records := newFakeRecords()
	clock := &fakeClock{now: at(12, 0)}
	s, cache := newTestScheduler(records, clock)
	ctx := context.Background()

	if err := s.Enable(ctx); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := s.Disable(ctx); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if on, _ := cache.Enabled(ctx); on {
		t.Fatal("still enabled after Disable")
	}
	if len(records.byKey) != 3 {
		t.Fatalf("Disable should flush staged entries, persisted %d", len(records.byKey))
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	records := newFakeRecords()
	clock := &fakeClock{now: at(12, 0)}
	s, _ := newTestScheduler(records, clock)
	ctx := context.Background()

	events := s.Subscribe()
	if err := s.Scan(ctx); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	counts := map[EventKind]int{}
	for i := 0; i < 4; i++ {
		select {
		case evt := <-events:
			counts[evt.Kind]++
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
	if counts[EventStaged] != 3 || counts[EventFlushed] != 1 {
		t.Fatalf("events = %v, want 3 staged + 1 flushed", counts)
	}
}
