package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/model"
)

// ErrDuplicate is returned when a record for the same
// (subject, date, slot) key already exists.
var ErrDuplicate = errors.New("attendance record already exists")

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create writes one record, enforcing the uniqueness key. A colliding
// key yields ErrDuplicate rather than a second row.
func (r *Repository) Create(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if !rec.Status.Valid() {
		return model.AttendanceRecord{}, fmt.Errorf("unsupported status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, date, subject_key, status, class_type, slot_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (subject_key, date, slot_id) DO NOTHING
		RETURNING created_at
	`, rec.ID, rec.Date, rec.SubjectKey, rec.Status, rec.ClassType, rec.SlotID)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AttendanceRecord{}, ErrDuplicate
		}
		return model.AttendanceRecord{}, err
	}
	return rec, nil
}

// BulkCreate writes the scheduler's batch in one statement. Rows whose
// key already exists are silently skipped, so a rescan or retried flush
// can never produce duplicates. Returns the number of rows inserted.
func (r *Repository) BulkCreate(ctx context.Context, recs []model.AttendanceRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	query := `INSERT INTO attendance_records (id, date, subject_key, status, class_type, slot_id) VALUES `
	args := make([]any, 0, len(recs)*6)
	for i, rec := range recs {
		if !rec.Status.Valid() {
			return 0, fmt.Errorf("unsupported status %q", rec.Status)
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if i > 0 {
			query += ","
		}
		base := len(args)
		query += fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, rec.ID, rec.Date, rec.SubjectKey, rec.Status, rec.ClassType, rec.SlotID)
	}
	query += ` ON CONFLICT (subject_key, date, slot_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return len(recs), nil
	}
	return int(n), nil
}

// ListRange returns records with from <= date < to, oldest first.
func (r *Repository) ListRange(ctx context.Context, from, to time.Time) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, subject_key, status, class_type, COALESCE(slot_id, ''), created_at
		FROM attendance_records
		WHERE date >= $1 AND date < $2
		ORDER BY date, subject_key
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.SubjectKey, &rec.Status, &rec.ClassType, &rec.SlotID, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExistsKey reports whether a record with the key is already persisted.
func (r *Repository) ExistsKey(ctx context.Context, key model.RecordKey) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records
		WHERE subject_key = $1 AND date = $2 AND COALESCE(slot_id, '') = $3
	`, key.SubjectKey, key.Date, key.SlotID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
