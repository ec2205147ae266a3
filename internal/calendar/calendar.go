package calendar

import (
	"time"

	"classtrack/internal/model"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar-day string, rejecting anything malformed.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &model.InvalidDateError{Input: s}
	}
	return t, nil
}

// Resolver decides whether a date is excluded from attendance totals.
// Pure lookup over static exception data.
type Resolver struct {
	holidays map[string]model.Holiday
	offDays  map[time.Weekday]bool
}

// NewResolver builds a resolver from holiday and off-day sets.
func NewResolver(holidays []model.Holiday, offDays []model.OffDay) *Resolver {
	r := &Resolver{
		holidays: make(map[string]model.Holiday, len(holidays)),
		offDays:  make(map[time.Weekday]bool, len(offDays)),
	}
	for _, h := range holidays {
		r.holidays[model.DateKey(h.Date)] = h
	}
	for _, d := range offDays {
		r.offDays[d.DayOfWeek] = true
	}
	return r
}

// IsHoliday reports whether the exact day matches a holiday entry.
func (r *Resolver) IsHoliday(date time.Time) bool {
	_, ok := r.holidays[model.DateKey(date)]
	return ok
}

// Holiday returns the holiday entry for a date, if any.
func (r *Resolver) Holiday(date time.Time) (model.Holiday, bool) {
	h, ok := r.holidays[model.DateKey(date)]
	return h, ok
}

// IsOffDay reports whether the date falls on a designated weekly off-day.
func (r *Resolver) IsOffDay(date time.Time) bool {
	return r.offDays[date.Weekday()]
}

// IsExcluded reports whether the date contributes nothing to totals.
// Must be consulted before counting any date.
func (r *Resolver) IsExcluded(date time.Time) bool {
	return r.IsHoliday(date) || r.IsOffDay(date)
}
