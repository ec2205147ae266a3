package model

import (
	"math"
	"time"
)

// Status is the recorded attendance decision for one class slot.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// AttendanceRecord is one persisted attendance decision. Immutable once
// written; created by explicit user action or by the auto-mark scheduler.
type AttendanceRecord struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	SubjectKey string    `json:"subject_key"`
	Status     Status    `json:"status"`
	ClassType  string    `json:"class_type"`
	SlotID     string    `json:"slot_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Key returns the uniqueness key for this record.
func (r AttendanceRecord) Key() RecordKey {
	return RecordKey{SubjectKey: r.SubjectKey, Date: DateKey(r.Date), SlotID: r.SlotID}
}

// ScheduleSlot is a single weekly class occurrence. Owned by the schedule
// editor; read-only here.
type ScheduleSlot struct {
	ID         string       `json:"id"`
	DayOfWeek  time.Weekday `json:"day_of_week"`
	SubjectKey string       `json:"subject_key"`
	ClassType  string       `json:"class_type"`
	StartTime  string       `json:"start_time"` // "15:04"
	EndTime    string       `json:"end_time"`   // "15:04"
}

// EndsAt resolves the slot's end time on a concrete date.
func (s ScheduleSlot) EndsAt(date time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", s.EndTime)
	if err != nil {
		return time.Time{}, &InvalidDateError{Input: s.EndTime}
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

// Holiday is a single excluded calendar date.
type Holiday struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

// OffDay marks a weekday excluded every week.
type OffDay struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
}

// PendingAttendance is a staged decision held in the client-side cache
// until the end-of-day batch upload.
type PendingAttendance struct {
	SubjectKey string    `json:"subject_key"`
	Date       time.Time `json:"date"`
	Status     Status    `json:"status"`
	ClassType  string    `json:"class_type"`
	SlotID     string    `json:"slot_id"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
}

// Key returns the cache key for this pending entry.
func (p PendingAttendance) Key() RecordKey {
	return RecordKey{SubjectKey: p.SubjectKey, Date: DateKey(p.Date), SlotID: p.SlotID}
}

// Record converts the staged entry into a record ready for upload.
func (p PendingAttendance) Record() AttendanceRecord {
	return AttendanceRecord{
		Date:       p.Date,
		SubjectKey: p.SubjectKey,
		Status:     p.Status,
		ClassType:  p.ClassType,
		SlotID:     p.SlotID,
	}
}

// RecordKey identifies at most one attendance record: the store never
// holds two records with the same key.
type RecordKey struct {
	SubjectKey string
	Date       string // "2006-01-02"
	SlotID     string
}

// String renders the key in subject|date|slot form for cache fields.
func (k RecordKey) String() string {
	return k.SubjectKey + "|" + k.Date + "|" + k.SlotID
}

// Counts is a present/absent/total triple.
type Counts struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// Percentage returns present/total rounded to the nearest integer.
// A zero total yields 0, never 100.
func (c Counts) Percentage() int {
	return Percentage(c.Present, c.Total)
}

// SubjectStats is the derived per-subject summary.
type SubjectStats struct {
	SubjectKey string `json:"subject_key"`
	Counts
}

// AttendanceStats is the derived overall summary. Never stored;
// recomputed on demand.
type AttendanceStats struct {
	Overall  Counts         `json:"overall"`
	Subjects []SubjectStats `json:"subjects"`
}

// Subject returns the stats entry for a subject, if present.
func (s AttendanceStats) Subject(key string) (SubjectStats, bool) {
	for _, sub := range s.Subjects {
		if sub.SubjectKey == key {
			return sub, true
		}
	}
	return SubjectStats{}, false
}

// Percentage returns round(present/total*100), with 0 for an empty total.
func Percentage(present, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// PercentageTenths returns present/total*100 rounded to one decimal place.
func PercentageTenths(present, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*1000) / 10
}

// DateKey normalises a timestamp to its calendar-day form.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDay reports whether two timestamps fall on one calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
