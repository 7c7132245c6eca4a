package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
)

func TestLocationLogRepositoryAppend(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLocationLogRepository(db)

	mock.ExpectExec("INSERT INTO location_logs").
		WithArgs(sqlmock.AnyArg(), "att-1", 37.460712, 126.952401, 12.5,
			sqlmock.AnyArg(), true, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.LocationLogEntry{
		AttendanceID:   "att-1",
		Latitude:       37.460712,
		Longitude:      126.952401,
		AccuracyMeters: 12.5,
		RecordedAt:     time.Now().UTC(),
		IsValid:        true,
	}
	require.NoError(t, repo.Append(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationLogRepositoryRecentNewestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewLocationLogRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "attendance_id", "latitude", "longitude", "accuracy_m", "recorded_at", "is_valid", "tracking_mode", "environment", "confidence", "gps_weight", "pdr_weight"}).
		AddRow("log-3", "att-1", 37.46, 126.95, 10.0, now, false, nil, nil, nil, nil, nil).
		AddRow("log-2", "att-1", 37.46, 126.95, 10.0, now.Add(-30*time.Second), false, nil, nil, nil, nil, nil)
	mock.ExpectQuery("SELECT id, attendance_id, latitude, longitude, accuracy_m").
		WithArgs("att-1", 4).
		WillReturnRows(rows)

	entries, err := repo.Recent(context.Background(), "att-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "log-3", entries[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
