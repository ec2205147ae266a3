package record

import (
	"context"
	"time"

	"classtrack/internal/model"
)

// Read-only loaders for the schedule and calendar stores. The schedule
// editor and holiday admin own these tables; the engine only reads them.

// LoadSlots returns the weekly schedule.
func (r *Repository) LoadSlots(ctx context.Context) ([]model.ScheduleSlot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, day_of_week, subject_key, class_type, start_time, end_time
		FROM schedule_slots
		ORDER BY day_of_week, start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ScheduleSlot
	for rows.Next() {
		var s model.ScheduleSlot
		var day int
		if err := rows.Scan(&s.ID, &day, &s.SubjectKey, &s.ClassType, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		s.DayOfWeek = time.Weekday(day)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadHolidays returns the holiday list.
func (r *Repository) LoadHolidays(ctx context.Context) ([]model.Holiday, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, reason FROM holidays ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Holiday
	for rows.Next() {
		var h model.Holiday
		if err := rows.Scan(&h.Date, &h.Reason); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// LoadOffDays returns the weekly off-day set.
func (r *Repository) LoadOffDays(ctx context.Context) ([]model.OffDay, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT day_of_week FROM off_days ORDER BY day_of_week`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OffDay
	for rows.Next() {
		var day int
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		out = append(out, model.OffDay{DayOfWeek: time.Weekday(day)})
	}
	return out, rows.Err()
}
