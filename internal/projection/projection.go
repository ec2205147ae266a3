package projection

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"classtrack/internal/calendar"
	"classtrack/internal/model"
	"classtrack/internal/schedule"
)

// WholeDay projects marking one future date absent: each subject
// scheduled that weekday gains exactly one absent and one total, no
// matter how many of its slots run that day.
// Excluded dates are rejected so a stale date picker cannot skew counts.
func WholeDay(current model.AttendanceStats, date time.Time, idx *schedule.Index, res *calendar.Resolver) (model.AttendanceStats, error) {
	if res.IsExcluded(date) {
		return model.AttendanceStats{}, &model.InvalidDateError{Input: model.DateKey(date)}
	}
	slots := idx.SlotsOn(date)
	if len(slots) == 0 {
		return model.AttendanceStats{}, model.ErrComputationSkipped
	}
	deltas := make(map[string]int)
	for _, s := range slots {
		deltas[s.SubjectKey] = 1
	}
	return apply(current, deltas), nil
}

// PerSubject projects a hand-picked set of absences: each marked
// (date, subject) pair contributes one absent and one total, however
// many of that subject's slots run that day. Excluded dates are skipped
// silently; unlisted subjects are untouched. Subjects missing from the
// schedule entirely yield an InconsistentScheduleError.
func PerSubject(current model.AttendanceStats, absences map[string][]string, idx *schedule.Index, res *calendar.Resolver) (model.AttendanceStats, error) {
	deltas := make(map[string]int)
	for dateStr, subjects := range absences {
		date, err := calendar.ParseDate(dateStr)
		if err != nil {
			return model.AttendanceStats{}, err
		}
		if res.IsExcluded(date) {
			continue
		}
		for _, subject := range subjects {
			n := idx.CountOn(date, subject)
			if n == 0 {
				if !idx.HasSubject(subject) {
					return model.AttendanceStats{}, &model.InconsistentScheduleError{SubjectKey: subject}
				}
				continue
			}
			deltas[subject]++
		}
	}
	if len(deltas) == 0 {
		return model.AttendanceStats{}, model.ErrComputationSkipped
	}
	return apply(current, deltas), nil
}

// apply adds absent-only deltas to a copy of the current stats,
// recomputing percentages under the same rounding rule as the
// aggregator. A delta for an unseen subject starts it at 0/0.
func apply(current model.AttendanceStats, deltas map[string]int) model.AttendanceStats {
	out := model.AttendanceStats{Overall: current.Overall}
	seen := make(map[string]bool, len(current.Subjects))
	for _, sub := range current.Subjects {
		seen[sub.SubjectKey] = true
		if d := deltas[sub.SubjectKey]; d > 0 {
			sub.Absent += d
			sub.Total += d
			out.Overall.Absent += d
			out.Overall.Total += d
		}
		out.Subjects = append(out.Subjects, sub)
	}
	for subject, d := range deltas {
		if seen[subject] || d == 0 {
			continue
		}
		out.Subjects = append(out.Subjects, model.SubjectStats{
			SubjectKey: subject,
			Counts:     model.Counts{Absent: d, Total: d},
		})
		out.Overall.Absent += d
		out.Overall.Total += d
	}
	return out
}

// Inputs bundles the three independent reads a projection needs.
type Inputs struct {
	Records  []model.AttendanceRecord
	Slots    []model.ScheduleSlot
	Holidays []model.Holiday
	OffDays  []model.OffDay
}

// Stores are the read boundaries a projection fans out over.
type Stores interface {
	ListRange(ctx context.Context, from, to time.Time) ([]model.AttendanceRecord, error)
	LoadSlots(ctx context.Context) ([]model.ScheduleSlot, error)
	LoadHolidays(ctx context.Context) ([]model.Holiday, error)
	LoadOffDays(ctx context.Context) ([]model.OffDay, error)
}

// FetchInputs issues the record, schedule and holiday reads concurrently
// and joins them before any computation starts.
func FetchInputs(ctx context.Context, s Stores, from, to time.Time) (Inputs, error) {
	var in Inputs
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in.Records, err = s.ListRange(ctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		in.Slots, err = s.LoadSlots(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.Holidays, err = s.LoadHolidays(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		in.OffDays, err = s.LoadOffDays(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Inputs{}, err
	}
	return in, nil
}
