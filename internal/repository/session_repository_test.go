package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestSessionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	lat, lng, radius := 37.4607, 126.9524, 100.0
	rows := sqlmock.NewRows([]string{"id", "course_id", "status", "created_at", "updated_at", "geofence_lat", "geofence_lng", "geofence_radius_m", "geofence_label"}).
		AddRow("sess-1", "course-1", "active", time.Now(), time.Now(), lat, lng, radius, "Room 301")
	mock.ExpectQuery("SELECT id, course_id, status, created_at, updated_at").
		WithArgs("sess-1").
		WillReturnRows(rows)

	session, err := repo.FindByID(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	spec := session.OverrideGeofence()
	require.NotNil(t, spec)
	assert.Equal(t, 100.0, spec.RadiusMeters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryMarkEndedOnlyWhenActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs(models.SessionStatusEnded, now, "sess-1", models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ended, err := repo.MarkEnded(context.Background(), "sess-1", now)
	require.NoError(t, err)
	assert.True(t, ended)

	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs(models.SessionStatusEnded, now, "sess-1", models.SessionStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ended, err = repo.MarkEnded(context.Background(), "sess-1", now)
	require.NoError(t, err)
	assert.False(t, ended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCourseGeofenceUnset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	rows := sqlmock.NewRows([]string{"course_id", "geofence_lat", "geofence_lng", "geofence_radius_m", "geofence_label"}).
		AddRow("course-1", nil, nil, nil, nil)
	mock.ExpectQuery("SELECT id AS course_id").
		WithArgs("course-1").
		WillReturnRows(rows)

	row, err := repo.CourseGeofence(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Nil(t, row.Spec())
	assert.NoError(t, mock.ExpectationsWereMet())
}
