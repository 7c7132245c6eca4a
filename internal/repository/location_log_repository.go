package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presence-api/internal/models"
)

// LocationLogRepository persists the append-only heartbeat audit trail.
type LocationLogRepository struct {
	db *sqlx.DB
}

// NewLocationLogRepository constructs the repository.
func NewLocationLogRepository(db *sqlx.DB) *LocationLogRepository {
	return &LocationLogRepository{db: db}
}

// Append writes one audit row. Coordinates are truncated upstream.
func (r *LocationLogRepository) Append(ctx context.Context, entry *models.LocationLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	query := `INSERT INTO location_logs (id, attendance_id, latitude, longitude,
        accuracy_m, recorded_at, is_valid, tracking_mode, environment,
        confidence, gps_weight, pdr_weight)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.AttendanceID, entry.Latitude, entry.Longitude,
		entry.AccuracyMeters, entry.RecordedAt, entry.IsValid,
		entry.TrackingMode, entry.Environment,
		entry.Confidence, entry.GPSWeight, entry.PDRWeight,
	); err != nil {
		return fmt.Errorf("append location log: %w", err)
	}
	return nil
}

// Recent returns the newest rows for an attendance record, newest first.
func (r *LocationLogRepository) Recent(ctx context.Context, attendanceID string, limit int) ([]models.LocationLogEntry, error) {
	if limit <= 0 {
		limit = 4
	}
	query := `SELECT id, attendance_id, latitude, longitude, accuracy_m,
        recorded_at, is_valid, tracking_mode, environment, confidence,
        gps_weight, pdr_weight
        FROM location_logs WHERE attendance_id = $1
        ORDER BY recorded_at DESC LIMIT $2`
	var rows []models.LocationLogEntry
	if err := r.db.SelectContext(ctx, &rows, query, attendanceID, limit); err != nil {
		return nil, fmt.Errorf("recent location logs %s: %w", attendanceID, err)
	}
	return rows, nil
}
