package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/presence-api/internal/models"
)

// SessionRepository handles persistence for class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID returns one session row.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT id, course_id, status, created_at, updated_at,
        geofence_lat, geofence_lng, geofence_radius_m, geofence_label
        FROM sessions WHERE id = $1`
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, fmt.Errorf("find session %s: %w", id, err)
	}
	return &session, nil
}

// MarkEnded transitions an active session to ended. Returns false when the
// session was not active anymore, so concurrent lifecycle checks collapse
// into a single transition.
func (r *SessionRepository) MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error) {
	query := `UPDATE sessions SET status = $1, updated_at = $2
        WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, models.SessionStatusEnded, endedAt, id, models.SessionStatusActive)
	if err != nil {
		return false, fmt.Errorf("end session %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("end session %s: %w", id, err)
	}
	return affected == 1, nil
}

// CourseGeofence returns the course-level default zone.
func (r *SessionRepository) CourseGeofence(ctx context.Context, courseID string) (*models.CourseGeofence, error) {
	query := `SELECT id AS course_id, geofence_lat, geofence_lng, geofence_radius_m, geofence_label
        FROM courses WHERE id = $1`
	var row models.CourseGeofence
	if err := r.db.GetContext(ctx, &row, query, courseID); err != nil {
		return nil, fmt.Errorf("course geofence %s: %w", courseID, err)
	}
	return &row, nil
}
