package target

import (
	"math"
	"time"

	"classtrack/internal/calendar"
	"classtrack/internal/model"
	"classtrack/internal/schedule"
)

// Input describes one solver run. StartDate is caller-supplied: the
// caller decides whether "today" still counts or the walk begins
// tomorrow, which keeps the boundary testable.
type Input struct {
	Attended  int
	Total     int
	TargetPct float64
	StartDate time.Time
	EndDate   time.Time
	// Subject limits the walk to one subject's classes; empty means all.
	Subject string
}

// Result reports the cheapest path to the target, or the best
// attainable outcome when the horizon is too short.
type Result struct {
	DaysNeeded    int     `json:"days_needed"`
	AttendedAdded int     `json:"attended_added"`
	ClassesAdded  int     `json:"classes_added"`
	FinalPct      float64 `json:"final_pct"`
	Achieved      bool    `json:"achieved"`
}

// Solve walks the calendar day by day from StartDate to EndDate,
// attending on each class day only the minimum number of classes needed
// to close the gap, and stops the first day the exact running ratio
// reaches the target. The whole-number rounding convention applies only
// to the up-front current-vs-target comparison.
//
// Excluded dates and dates with no scheduled classes are skipped: they
// cannot move the percentage. "Needed" uses ceil so the target is met,
// never undershot, on the day it is declared achieved.
func Solve(in Input, idx *schedule.Index, res *calendar.Resolver) (Result, error) {
	if in.Subject != "" && !idx.HasSubject(in.Subject) {
		return Result{}, &model.InconsistentScheduleError{SubjectKey: in.Subject}
	}
	if in.EndDate.Before(in.StartDate) {
		return Result{}, &model.InvalidDateError{Input: model.DateKey(in.EndDate)}
	}

	attended, total := in.Attended, in.Total
	if currentPct(attended, total) >= in.TargetPct {
		return Result{
			Achieved: true,
			FinalPct: model.PercentageTenths(attended, total),
		}, nil
	}

	out := Result{}
	sawClass := false
	start := truncateDay(in.StartDate)
	end := truncateDay(in.EndDate)
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		if res.IsExcluded(date) {
			continue
		}
		classes := idx.CountOn(date, in.Subject)
		if classes == 0 {
			continue
		}
		sawClass = true

		total += classes
		needed := int(math.Ceil(in.TargetPct/100*float64(total))) - attended
		attend := needed
		if attend > classes {
			attend = classes
		}
		if attend < 0 {
			attend = 0
		}
		attended += attend

		out.DaysNeeded++
		out.AttendedAdded += attend
		out.ClassesAdded += classes

		// The stop condition uses the exact ratio, not the rounded
		// percentage: on a capped day the rounded value can reach the
		// target while the true ratio is still short of it, and an
		// achieved result must never undershoot.
		if float64(attended)*100 >= in.TargetPct*float64(total) {
			out.Achieved = true
			out.FinalPct = model.PercentageTenths(attended, total)
			return out, nil
		}
	}

	if !sawClass {
		return Result{}, model.ErrComputationSkipped
	}
	out.FinalPct = model.PercentageTenths(attended, total)
	return out, nil
}

// currentPct is the whole-number percentage used for target comparisons.
func currentPct(attended, total int) float64 {
	return float64(model.Percentage(attended, total))
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
