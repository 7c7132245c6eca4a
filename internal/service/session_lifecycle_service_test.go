package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type fakeLifecycleSessions struct {
	session  *models.Session
	findErr  error
	endedWon bool
	endErr   error
	endCalls int
	endedAt  time.Time
	endedID  string
}

func (f *fakeLifecycleSessions) FindByID(context.Context, string) (*models.Session, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	copied := *f.session
	return &copied, nil
}

func (f *fakeLifecycleSessions) MarkEnded(_ context.Context, id string, endedAt time.Time) (bool, error) {
	f.endCalls++
	f.endedID = id
	f.endedAt = endedAt
	if f.endErr != nil {
		return false, f.endErr
	}
	return f.endedWon, nil
}

type fakeLifecycleAttendance struct {
	stamped    int
	stampErr   error
	stampCalls int
	stampAt    time.Time
	counts     map[models.AttendanceStatus]int
	countsErr  error
}

func (f *fakeLifecycleAttendance) StampCheckOutForPresent(_ context.Context, _ string, at time.Time) (int, error) {
	f.stampCalls++
	f.stampAt = at
	if f.stampErr != nil {
		return 0, f.stampErr
	}
	return f.stamped, nil
}

func (f *fakeLifecycleAttendance) StatusCounts(context.Context, string) (map[models.AttendanceStatus]int, error) {
	if f.countsErr != nil {
		return nil, f.countsErr
	}
	return f.counts, nil
}

type fakeLifecycleMetrics struct {
	autoEnds int
}

func (f *fakeLifecycleMetrics) RecordSessionAutoEnd() { f.autoEnds++ }

func lifecycleFixture(created time.Time, status models.SessionStatus) (*fakeLifecycleSessions, *fakeLifecycleAttendance, *fakeLifecycleMetrics, *SessionLifecycleService) {
	sessions := &fakeLifecycleSessions{
		session: &models.Session{
			ID:        "sess-1",
			CourseID:  "course-1",
			Status:    status,
			CreatedAt: created,
			UpdatedAt: created,
		},
		endedWon: true,
	}
	attendance := &fakeLifecycleAttendance{stamped: 2}
	metrics := &fakeLifecycleMetrics{}
	svc := NewSessionLifecycleService(sessions, attendance, metrics, 2*time.Hour, nil)
	return sessions, attendance, metrics, svc
}

func TestLifecycleAutoEndAt(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	_, _, _, svc := lifecycleFixture(created, models.SessionStatusActive)

	assert.Equal(t, created.Add(2*time.Hour), svc.AutoEndAt(&models.Session{CreatedAt: created}))
}

func TestLifecycleIsOverdueAtExactDeadline(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	_, _, _, svc := lifecycleFixture(created, models.SessionStatusActive)

	svc.now = func() time.Time { return created.Add(2*time.Hour - time.Second) }
	assert.False(t, svc.IsOverdue(&models.Session{Status: models.SessionStatusActive, CreatedAt: created}))

	svc.now = func() time.Time { return created.Add(2 * time.Hour) }
	assert.True(t, svc.IsOverdue(&models.Session{Status: models.SessionStatusActive, CreatedAt: created}))
}

func TestLifecycleEnsureCurrentAutoEndsOverdueSession(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions, attendance, metrics, svc := lifecycleFixture(created, models.SessionStatusActive)
	svc.now = func() time.Time { return created.Add(3 * time.Hour) }

	session, err := svc.EnsureCurrent(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, session.Status)
	assert.Equal(t, 1, sessions.endCalls)
	assert.Equal(t, 1, attendance.stampCalls)
	assert.Equal(t, created.Add(3*time.Hour), attendance.stampAt)
	assert.Equal(t, 1, metrics.autoEnds)
}

func TestLifecycleEnsureCurrentLeavesFreshSessionAlone(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions, attendance, _, svc := lifecycleFixture(created, models.SessionStatusActive)
	svc.now = func() time.Time { return created.Add(time.Hour) }

	session, err := svc.EnsureCurrent(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Zero(t, sessions.endCalls)
	assert.Zero(t, attendance.stampCalls)
}

func TestLifecycleEnsureCurrentLostRaceSkipsFinalization(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions, attendance, metrics, svc := lifecycleFixture(created, models.SessionStatusActive)
	sessions.endedWon = false
	svc.now = func() time.Time { return created.Add(3 * time.Hour) }

	session, err := svc.EnsureCurrent(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, session.Status)
	assert.Zero(t, attendance.stampCalls, "loser must not finalize twice")
	assert.Zero(t, metrics.autoEnds)
}

func TestLifecycleEnsureCurrentNotFound(t *testing.T) {
	sessions, _, _, svc := lifecycleFixture(time.Now(), models.SessionStatusActive)
	sessions.findErr = sql.ErrNoRows

	_, err := svc.EnsureCurrent(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestLifecycleEndRejectsEndedSession(t *testing.T) {
	_, _, _, svc := lifecycleFixture(time.Now().UTC(), models.SessionStatusEnded)

	_, err := svc.End(context.Background(), "sess-1")
	assert.ErrorIs(t, err, appErrors.ErrSessionEnded)
}

func TestLifecycleEndFinalizesActiveSession(t *testing.T) {
	created := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sessions, attendance, metrics, svc := lifecycleFixture(created, models.SessionStatusActive)
	svc.now = func() time.Time { return created.Add(time.Hour) }

	session, err := svc.End(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, session.Status)
	assert.Equal(t, 1, sessions.endCalls)
	assert.Equal(t, 1, attendance.stampCalls)
	assert.Zero(t, metrics.autoEnds, "manual end is not an auto end")
}

func TestLifecycleSummaryRate(t *testing.T) {
	_, attendance, _, svc := lifecycleFixture(time.Now().UTC(), models.SessionStatusEnded)
	attendance.counts = map[models.AttendanceStatus]int{
		models.AttendanceStatusPresent:   5,
		models.AttendanceStatusLate:      2,
		models.AttendanceStatusAbsent:    2,
		models.AttendanceStatusLeftEarly: 1,
	}

	summary, err := svc.Summary(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 5, summary.Present)
	assert.Equal(t, 2, summary.Late)
	assert.Equal(t, 2, summary.Absent)
	assert.Equal(t, 1, summary.LeftEarly)
	// round(100 * 7 / 10)
	assert.Equal(t, 70, summary.AttendanceRate)
}

func TestLifecycleSummaryRounding(t *testing.T) {
	_, attendance, _, svc := lifecycleFixture(time.Now().UTC(), models.SessionStatusEnded)
	attendance.counts = map[models.AttendanceStatus]int{
		models.AttendanceStatusPresent: 2,
		models.AttendanceStatusAbsent:  1,
	}

	summary, err := svc.Summary(context.Background(), "sess-1")
	require.NoError(t, err)
	// round(100 * 2 / 3) = round(66.66) = 67
	assert.Equal(t, 67, summary.AttendanceRate)
}

func TestLifecycleSummaryZeroTotal(t *testing.T) {
	_, attendance, _, svc := lifecycleFixture(time.Now().UTC(), models.SessionStatusEnded)
	attendance.counts = map[models.AttendanceStatus]int{}

	summary, err := svc.Summary(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.AttendanceRate)
}
