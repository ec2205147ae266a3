package automark

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"classtrack/internal/calendar"
	"classtrack/internal/metrics"
	"classtrack/internal/model"
	"classtrack/internal/schedule"
)

// RecordStore is the persistence boundary the scheduler reconciles
// against and flushes into.
type RecordStore interface {
	ListRange(ctx context.Context, from, to time.Time) ([]model.AttendanceRecord, error)
	// BulkCreate writes the batch atomically and reports how many rows
	// were actually inserted; rows colliding with existing keys are
	// dropped, never duplicated.
	BulkCreate(ctx context.Context, recs []model.AttendanceRecord) (int, error)
}

// EventKind labels a change notification.
type EventKind string

const (
	EventStaged     EventKind = "staged"
	EventOverridden EventKind = "overridden"
	EventFlushed    EventKind = "flushed"
)

// Event is a change notification emitted after each mutating step, so
// callers can react without a global event bus.
type Event struct {
	Kind  EventKind
	Key   model.RecordKey
	Count int
	Day   time.Time
}

// Options tune the scheduler's timers.
type Options struct {
	// ScanInterval is how often elapsed slots are re-detected.
	ScanInterval time.Duration
	// FlushHour/FlushMinute is the local end-of-day cutoff at which the
	// pending cache is force-staged and uploaded as one batch.
	FlushHour   int
	FlushMinute int
	// PollInterval is the tick driving both timers. Small in tests.
	PollInterval time.Duration
}

func (o *Options) defaults() {
	if o.ScanInterval <= 0 {
		o.ScanInterval = time.Hour
	}
	if o.FlushHour == 0 && o.FlushMinute == 0 {
		o.FlushHour, o.FlushMinute = 23, 30
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Minute
	}
}

// Scheduler autonomously detects classes whose end time has passed with
// no attendance decision, stages them as present, and uploads the day's
// batch once at the end-of-day cutoff. Dedup is a double check: a slot
// is staged only if it is in neither the pending cache nor the store.
type Scheduler struct {
	cache   Cache
	records RecordStore
	idx     *schedule.Index
	res     *calendar.Resolver
	clock   Clock
	log     *logrus.Logger
	opts    Options

	mu       sync.Mutex
	lastScan time.Time
	subs     []chan Event
}

// New builds a scheduler. A nil logger falls back to the logrus default.
func New(cache Cache, records RecordStore, idx *schedule.Index, res *calendar.Resolver, clock Clock, log *logrus.Logger, opts Options) *Scheduler {
	opts.defaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		cache:   cache,
		records: records,
		idx:     idx,
		res:     res,
		clock:   clock,
		log:     log,
		opts:    opts,
	}
}

// Subscribe returns a channel of change notifications. Slow consumers
// drop events rather than stalling a tick.
func (s *Scheduler) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

func (s *Scheduler) notify(evt Event) {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Enable turns the scheduler on and immediately scans today's
// already-elapsed slots.
func (s *Scheduler) Enable(ctx context.Context) error {
	if err := s.cache.SetEnabled(ctx, true); err != nil {
		return err
	}
	s.log.Info("auto-mark enabled")
	return s.Scan(ctx)
}

// Disable flushes anything still pending, then turns the scheduler off.
func (s *Scheduler) Disable(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		s.log.WithError(err).Warn("flush on disable failed; staged entries kept")
	}
	s.log.Info("auto-mark disabled")
	return s.cache.SetEnabled(ctx, false)
}

// Run drives the scan and flush timers until the context is cancelled.
// Cancellation just stops the ticker; an in-flight flush completes or
// fails as one batch, never half-done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	s.log.WithFields(logrus.Fields{
		"scan_interval": s.opts.ScanInterval,
		"flush_cutoff":  fmt.Sprintf("%02d:%02d", s.opts.FlushHour, s.opts.FlushMinute),
	}).Info("auto-mark scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("auto-mark scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one timer evaluation: a scan when the interval has elapsed,
// and the end-of-day force-stage + flush once past the cutoff.
func (s *Scheduler) Tick(ctx context.Context) {
	enabled, err := s.cache.Enabled(ctx)
	if err != nil {
		s.log.WithError(err).Warn("enabled flag read failed")
		return
	}
	if !enabled {
		return
	}
	now := s.clock.Now()

	s.mu.Lock()
	due := s.lastScan.IsZero() || now.Sub(s.lastScan) >= s.opts.ScanInterval
	s.mu.Unlock()
	if due {
		if err := s.Scan(ctx); err != nil {
			s.log.WithError(err).Warn("scan failed; will retry next cycle")
		}
	}

	if s.pastCutoff(now) {
		last, err := s.cache.LastUpload(ctx)
		if err != nil {
			s.log.WithError(err).Warn("last-upload read failed")
			return
		}
		if model.SameDay(last, now) {
			return // already uploaded today
		}
		// Force-stage whatever is still undecided, then one batch upload.
		if err := s.Scan(ctx); err != nil {
			s.log.WithError(err).Warn("end-of-day scan failed; will retry next cycle")
			return
		}
		if err := s.Flush(ctx); err != nil {
			s.log.WithError(err).Warn("end-of-day flush failed; will retry next cycle")
		}
	}
}

func (s *Scheduler) pastCutoff(now time.Time) bool {
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), s.opts.FlushHour, s.opts.FlushMinute, 0, 0, now.Location())
	return !now.Before(cutoff)
}

// Scan stages every slot of today whose end time has passed and that has
// a decision in neither the pending cache nor the record store.
// Silence defaults to present.
func (s *Scheduler) Scan(ctx context.Context) error {
	now := s.clock.Now()
	s.mu.Lock()
	s.lastScan = now
	s.mu.Unlock()
	metrics.AutoMarkScans.Inc()

	if s.res.IsExcluded(now) {
		return nil // holidays and off-days never produce records
	}

	pending, err := s.cache.Pending(ctx)
	if err != nil {
		return err
	}
	persisted, err := s.records.ListRange(ctx, dayStart(now), dayStart(now).AddDate(0, 0, 1))
	if err != nil {
		return err
	}
	exists := make(map[model.RecordKey]bool, len(persisted))
	for _, r := range persisted {
		exists[r.Key()] = true
	}

	staged := 0
	for _, slot := range s.idx.SlotsOn(now) {
		endAt, err := slot.EndsAt(now)
		if err != nil {
			s.log.WithError(err).WithField("slot", slot.ID).Warn("unparseable slot end time")
			continue
		}
		if endAt.After(now) {
			continue // class not over yet
		}
		key := model.RecordKey{SubjectKey: slot.SubjectKey, Date: model.DateKey(now), SlotID: slot.ID}
		if _, ok := pending[key]; ok {
			continue
		}
		if exists[key] {
			continue
		}
		entry := model.PendingAttendance{
			SubjectKey: slot.SubjectKey,
			Date:       dayStart(now),
			Status:     model.StatusPresent,
			ClassType:  slot.ClassType,
			SlotID:     slot.ID,
			StartTime:  slot.StartTime,
			EndTime:    slot.EndTime,
		}
		if err := s.cache.PutPending(ctx, entry); err != nil {
			return err
		}
		staged++
		metrics.AutoMarkStaged.Inc()
		s.notify(Event{Kind: EventStaged, Key: key, Day: dayStart(now)})
	}
	if staged > 0 {
		s.log.WithField("staged", staged).Info("auto-mark scan staged slots")
	}
	return nil
}

// Override replaces the status of a staged, not-yet-uploaded entry.
// It touches only the cache and never triggers a rescan.
func (s *Scheduler) Override(ctx context.Context, key model.RecordKey, status model.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unsupported status %q", status)
	}
	pending, err := s.cache.Pending(ctx)
	if err != nil {
		return err
	}
	entry, ok := pending[key]
	if !ok {
		return fmt.Errorf("no pending entry for %s", key)
	}
	entry.Status = status
	if err := s.cache.PutPending(ctx, entry); err != nil {
		return err
	}
	s.notify(Event{Kind: EventOverridden, Key: key, Day: entry.Date})
	return nil
}

// Flush uploads the whole pending cache as one batch, then clears it
// and records the upload day. On failure the cache is untouched so the
// same batch is retried on the next cycle.
func (s *Scheduler) Flush(ctx context.Context) error {
	now := s.clock.Now()
	pending, err := s.cache.Pending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return s.cache.SetLastUpload(ctx, dayStart(now))
	}

	batch := make([]model.AttendanceRecord, 0, len(pending))
	for _, p := range pending {
		batch = append(batch, p.Record())
	}
	inserted, err := s.records.BulkCreate(ctx, batch)
	if err != nil {
		metrics.AutoMarkFlushFailures.Inc()
		return &model.UploadFailure{Err: err}
	}

	if err := s.cache.ClearPending(ctx); err != nil {
		return err
	}
	if err := s.cache.SetLastUpload(ctx, dayStart(now)); err != nil {
		return err
	}
	metrics.AutoMarkFlushes.Inc()
	metrics.AutoMarkBatchSize.Observe(float64(len(batch)))
	s.log.WithFields(logrus.Fields{"batch": len(batch), "inserted": inserted}).Info("auto-mark batch uploaded")
	s.notify(Event{Kind: EventFlushed, Count: inserted, Day: dayStart(now)})
	return nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
