package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presence-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `id, session_id, student_id, status, check_in_time,
        check_out_time, location_verified, created_at, updated_at`

// FindByID returns one attendance record.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE id = $1`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, fmt.Errorf("find attendance %s: %w", id, err)
	}
	return &record, nil
}

// Create inserts a new record at check-in time.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = now
	record.UpdatedAt = now
	query := `INSERT INTO attendance_records (id, session_id, student_id, status,
        check_in_time, check_out_time, location_verified, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.SessionID, record.StudentID, record.Status,
		record.CheckInTime, record.CheckOutTime, record.LocationVerified,
		record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// FindBySessionAndStudent returns the record for one student in one session.
func (r *AttendanceRepository) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records
        WHERE session_id = $1 AND student_id = $2`, attendanceColumns)
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		return nil, fmt.Errorf("find attendance for session %s student %s: %w", sessionID, studentID, err)
	}
	return &record, nil
}

// MarkLeftEarly flips a still-present record to left_early and stamps the
// check-out time. The status guard in the WHERE clause makes the transition
// at-most-once under concurrent heartbeats.
func (r *AttendanceRepository) MarkLeftEarly(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE attendance_records SET status = $1, check_out_time = $2, updated_at = $3
        WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query,
		models.AttendanceStatusLeftEarly, at, at, id, models.AttendanceStatusPresent)
	if err != nil {
		return false, fmt.Errorf("mark left early %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark left early %s: %w", id, err)
	}
	return affected == 1, nil
}

// SetCheckOut stamps a student-driven check-out without changing status.
func (r *AttendanceRepository) SetCheckOut(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE attendance_records SET check_out_time = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, at, at, id); err != nil {
		return fmt.Errorf("set check out %s: %w", id, err)
	}
	return nil
}

// StampCheckOutForPresent finalizes an ended session: every record still
// present and without a check-out gets the session end time.
func (r *AttendanceRepository) StampCheckOutForPresent(ctx context.Context, sessionID string, at time.Time) (int, error) {
	query := `UPDATE attendance_records SET check_out_time = $1, updated_at = $2
        WHERE session_id = $3 AND status = $4 AND check_out_time IS NULL`
	result, err := r.db.ExecContext(ctx, query, at, at, sessionID, models.AttendanceStatusPresent)
	if err != nil {
		return 0, fmt.Errorf("finalize session %s: %w", sessionID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("finalize session %s: %w", sessionID, err)
	}
	return int(affected), nil
}

// StatusCounts aggregates record counts per status for a session.
func (r *AttendanceRepository) StatusCounts(ctx context.Context, sessionID string) (map[models.AttendanceStatus]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM attendance_records
        WHERE session_id = $1 GROUP BY status`
	rows := []struct {
		Status models.AttendanceStatus `db:"status"`
		Count  int                     `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("status counts %s: %w", sessionID, err)
	}
	counts := make(map[models.AttendanceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ReportRows returns the per-student rows for a session report.
func (r *AttendanceRepository) ReportRows(ctx context.Context, sessionID string) ([]models.AttendanceReportRow, error) {
	query := `SELECT student_id, status, check_in_time, check_out_time
        FROM attendance_records WHERE session_id = $1 ORDER BY student_id`
	var rows []models.AttendanceReportRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("report rows %s: %w", sessionID, err)
	}
	return rows, nil
}
