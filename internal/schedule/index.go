package schedule

import (
	"sort"
	"time"

	"classtrack/internal/model"
)

// Index is an ordered lookup over the weekly schedule. Read-only once
// built; the schedule editor owns the underlying slots.
type Index struct {
	byDay    map[time.Weekday][]model.ScheduleSlot
	subjects map[string]bool
}

// NewIndex builds an index with each weekday's slots ordered by start time.
func NewIndex(slots []model.ScheduleSlot) *Index {
	idx := &Index{
		byDay:    make(map[time.Weekday][]model.ScheduleSlot),
		subjects: make(map[string]bool),
	}
	for _, s := range slots {
		idx.byDay[s.DayOfWeek] = append(idx.byDay[s.DayOfWeek], s)
		idx.subjects[s.SubjectKey] = true
	}
	for day := range idx.byDay {
		daySlots := idx.byDay[day]
		sort.SliceStable(daySlots, func(i, j int) bool {
			if daySlots[i].StartTime != daySlots[j].StartTime {
				return daySlots[i].StartTime < daySlots[j].StartTime
			}
			return daySlots[i].SubjectKey < daySlots[j].SubjectKey
		})
	}
	return idx
}

// SlotsFor returns the weekday's scheduled slots in start-time order.
func (idx *Index) SlotsFor(day time.Weekday) []model.ScheduleSlot {
	return idx.byDay[day]
}

// SlotsOn returns the slots scheduled on a concrete date.
func (idx *Index) SlotsOn(date time.Time) []model.ScheduleSlot {
	return idx.byDay[date.Weekday()]
}

// SlotsForSubject returns the weekday's slots for one subject.
func (idx *Index) SlotsForSubject(day time.Weekday, subjectKey string) []model.ScheduleSlot {
	var out []model.ScheduleSlot
	for _, s := range idx.byDay[day] {
		if s.SubjectKey == subjectKey {
			out = append(out, s)
		}
	}
	return out
}

// CountOn returns how many classes run on a date, optionally filtered to
// one subject. Exclusion rules are the caller's concern.
func (idx *Index) CountOn(date time.Time, subjectKey string) int {
	if subjectKey == "" {
		return len(idx.byDay[date.Weekday()])
	}
	return len(idx.SlotsForSubject(date.Weekday(), subjectKey))
}

// HasSubject reports whether any slot references the subject.
func (idx *Index) HasSubject(subjectKey string) bool {
	return idx.subjects[subjectKey]
}

// Subjects returns the distinct subject keys in the schedule, sorted.
func (idx *Index) Subjects() []string {
	out := make([]string, 0, len(idx.subjects))
	for k := range idx.subjects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
