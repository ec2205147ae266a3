package stats

import (
	"sort"
	"time"

	"classtrack/internal/calendar"
	"classtrack/internal/model"
	"classtrack/internal/schedule"
)

// Compute folds attendance records into present/absent/total counts,
// overall and per subject, as of the given date.
//
// Unmarked past classes default to attended: for every non-excluded date
// strictly before asOf, each scheduled slot without an explicit record
// gets a synthesized "present". This auto-present backfill is a product
// policy, not a missing-data fallback, and an explicit record always
// wins over it. Backfill starts at the earliest explicit record, so an
// empty record set yields zero stats.
func Compute(records []model.AttendanceRecord, idx *schedule.Index, res *calendar.Resolver, asOf time.Time) model.AttendanceStats {
	explicit := make(map[model.RecordKey]model.AttendanceRecord, len(records))
	var first time.Time
	for _, r := range records {
		explicit[r.Key()] = r
		if first.IsZero() || r.Date.Before(first) {
			first = r.Date
		}
	}
	if len(explicit) == 0 {
		return model.AttendanceStats{}
	}

	counts := make(map[string]*model.Counts)
	tally := func(subjectKey string, status model.Status) {
		c := counts[subjectKey]
		if c == nil {
			c = &model.Counts{}
			counts[subjectKey] = c
		}
		if status == model.StatusPresent {
			c.Present++
		} else {
			c.Absent++
		}
		c.Total++
	}

	// Explicit records count wherever the date is not excluded, even if
	// the slot has since left the weekly schedule.
	for _, r := range explicit {
		if res.IsExcluded(r.Date) {
			continue
		}
		tally(r.SubjectKey, r.Status)
	}

	// Auto-present backfill for unmarked past slots.
	start := truncateDay(first)
	end := truncateDay(asOf)
	for date := start; date.Before(end); date = date.AddDate(0, 0, 1) {
		if res.IsExcluded(date) {
			continue
		}
		for _, slot := range idx.SlotsOn(date) {
			key := model.RecordKey{SubjectKey: slot.SubjectKey, Date: model.DateKey(date), SlotID: slot.ID}
			if _, ok := explicit[key]; ok {
				continue
			}
			tally(slot.SubjectKey, model.StatusPresent)
		}
	}

	return assemble(counts)
}

func assemble(counts map[string]*model.Counts) model.AttendanceStats {
	var out model.AttendanceStats
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c := counts[k]
		if c.Total == 0 {
			continue
		}
		out.Subjects = append(out.Subjects, model.SubjectStats{SubjectKey: k, Counts: *c})
		out.Overall.Present += c.Present
		out.Overall.Absent += c.Absent
		out.Overall.Total += c.Total
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
