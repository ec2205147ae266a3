package schedule

import (
	"testing"
	"time"

	"classtrack/internal/model"
)

func weeklySlots() []model.ScheduleSlot {
	return []model.ScheduleSlot{
		{ID: "phy-1", DayOfWeek: time.Monday, SubjectKey: "physics", ClassType: "lecture", StartTime: "10:00", EndTime: "11:00"},
		{ID: "math-1", DayOfWeek: time.Monday, SubjectKey: "math", ClassType: "lecture", StartTime: "09:00", EndTime: "10:00"},
		{ID: "math-2", DayOfWeek: time.Monday, SubjectKey: "math", ClassType: "tutorial", StartTime: "14:00", EndTime: "15:00"},
		{ID: "chem-1", DayOfWeek: time.Wednesday, SubjectKey: "chemistry", ClassType: "lab", StartTime: "11:00", EndTime: "13:00"},
	}
}

func TestSlotsForOrdering(t *testing.T) {
	idx := NewIndex(weeklySlots())
	got := idx.SlotsFor(time.Monday)
	want := []string{"math-1", "phy-1", "math-2"}
	if len(got) != len(want) {
		t.Fatalf("SlotsFor(Monday) len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("slot[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if slots := idx.SlotsFor(time.Friday); len(slots) != 0 {
		t.Errorf("SlotsFor(Friday) = %d slots, want none", len(slots))
	}
}

func TestCountOn(t *testing.T) {
	idx := NewIndex(weeklySlots())
	monday := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	wednesday := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		date    time.Time
		subject string
		want    int
	}{
		{name: "all monday", date: monday, want: 3},
		{name: "math monday", date: monday, subject: "math", want: 2},
		{name: "chemistry monday", date: monday, subject: "chemistry", want: 0},
		{name: "chemistry wednesday", date: wednesday, subject: "chemistry", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := idx.CountOn(tt.date, tt.subject); got != tt.want {
				t.Errorf("CountOn = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHasSubjectAndSubjects(t *testing.T) {
	idx := NewIndex(weeklySlots())
	if !idx.HasSubject("physics") {
		t.Error("physics should be scheduled")
	}
	if idx.HasSubject("biology") {
		t.Error("biology should not be scheduled")
	}
	subjects := idx.Subjects()
	want := []string{"chemistry", "math", "physics"}
	if len(subjects) != len(want) {
		t.Fatalf("Subjects = %v, want %v", subjects, want)
	}
	for i := range want {
		if subjects[i] != want[i] {
			t.Errorf("Subjects[%d] = %s, want %s", i, subjects[i], want[i])
		}
	}
}
