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

type fakeGeofenceSessions struct {
	session    *models.Session
	sessionErr error
	course     *models.CourseGeofence
	courseErr  error
	findCalls  int
}

func (f *fakeGeofenceSessions) FindByID(context.Context, string) (*models.Session, error) {
	f.findCalls++
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeGeofenceSessions) CourseGeofence(context.Context, string) (*models.CourseGeofence, error) {
	if f.courseErr != nil {
		return nil, f.courseErr
	}
	return f.course, nil
}

type fakeCache struct {
	entries map[string]interface{}
	getErr  error
	setErr  error
	sets    int
}

func (f *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	if f.getErr != nil {
		return f.getErr
	}
	value, ok := f.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if spec, ok := value.(*models.GeofenceSpec); ok {
		if target, ok := dest.(*models.GeofenceSpec); ok {
			*target = *spec
			return nil
		}
	}
	return appErrors.ErrCacheMiss
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	f.sets++
	if f.setErr != nil {
		return f.setErr
	}
	if f.entries == nil {
		f.entries = make(map[string]interface{})
	}
	if spec, ok := value.(*models.GeofenceSpec); ok {
		copied := *spec
		f.entries[key] = &copied
	}
	return nil
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func classroomSpec() models.GeofenceSpec {
	return models.GeofenceSpec{
		CenterLatitude:  37.4607,
		CenterLongitude: 126.9524,
		RadiusMeters:    100,
		DisplayName:     "Engineering Hall 302",
	}
}

func TestGeofenceEvaluateInsideZone(t *testing.T) {
	svc := NewGeofenceService(nil, nil, 0, nil)
	spec := classroomSpec()

	// Roughly 55 m east of center.
	eval := svc.Evaluate(spec, 37.4607, 126.95302, 15)
	assert.True(t, eval.IsValid)
	assert.InDelta(t, 55, eval.Distance, 5)
	assert.Equal(t, eval.Distance, eval.EffectiveDistance)
	assert.Equal(t, 100.0, eval.AllowedRadius)
}

func TestGeofenceEvaluateOutsideZone(t *testing.T) {
	svc := NewGeofenceService(nil, nil, 0, nil)
	spec := classroomSpec()

	// Roughly 166 m north of center.
	eval := svc.Evaluate(spec, 37.46219, 126.9524, 15)
	assert.False(t, eval.IsValid)
	assert.Greater(t, eval.Distance, 100.0)
}

func TestGeofenceEvaluateIgnoresReportedAccuracy(t *testing.T) {
	svc := NewGeofenceService(nil, nil, 0, nil)
	spec := classroomSpec()

	// ~111 m north of center, just outside the zone. A spoofed accuracy
	// value must never shrink the effective distance below the radius.
	lat, lng := 37.4617, 126.9524
	for _, accuracy := range []float64{1, 50, 100} {
		eval := svc.Evaluate(spec, lat, lng, accuracy)
		assert.False(t, eval.IsValid, "accuracy %v", accuracy)
		assert.Equal(t, eval.Distance, eval.EffectiveDistance, "accuracy %v", accuracy)
	}
}

func TestGeofenceResolveSpecSessionOverrideWins(t *testing.T) {
	sessions := &fakeGeofenceSessions{
		session: &models.Session{
			ID:             "sess-1",
			CourseID:       "course-1",
			Status:         models.SessionStatusActive,
			GeofenceLat:    floatPtr(37.5),
			GeofenceLng:    floatPtr(127.0),
			GeofenceRadius: floatPtr(80),
			GeofenceLabel:  strPtr("Lab 4"),
		},
		course: &models.CourseGeofence{
			CourseID:       "course-1",
			GeofenceLat:    floatPtr(1),
			GeofenceLng:    floatPtr(1),
			GeofenceRadius: floatPtr(10),
		},
	}
	svc := NewGeofenceService(sessions, nil, 0, nil)

	spec, err := svc.ResolveSpec(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 37.5, spec.CenterLatitude)
	assert.Equal(t, 80.0, spec.RadiusMeters)
	assert.Equal(t, "Lab 4", spec.DisplayName)
}

func TestGeofenceResolveSpecFallsBackToCourse(t *testing.T) {
	sessions := &fakeGeofenceSessions{
		session: &models.Session{ID: "sess-1", CourseID: "course-1", Status: models.SessionStatusActive},
		course: &models.CourseGeofence{
			CourseID:       "course-1",
			GeofenceLat:    floatPtr(37.4607),
			GeofenceLng:    floatPtr(126.9524),
			GeofenceRadius: floatPtr(100),
		},
	}
	svc := NewGeofenceService(sessions, nil, 0, nil)

	spec, err := svc.ResolveSpec(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, spec.RadiusMeters)
}

func TestGeofenceResolveSpecConfigMissing(t *testing.T) {
	sessions := &fakeGeofenceSessions{
		session: &models.Session{ID: "sess-1", CourseID: "course-1", Status: models.SessionStatusActive},
		course:  &models.CourseGeofence{CourseID: "course-1"},
	}
	svc := NewGeofenceService(sessions, nil, 0, nil)

	_, err := svc.ResolveSpec(context.Background(), "sess-1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConfigMissing.Code, appErr.Code)
}

func TestGeofenceResolveSpecSessionNotFound(t *testing.T) {
	sessions := &fakeGeofenceSessions{sessionErr: sql.ErrNoRows}
	svc := NewGeofenceService(sessions, nil, 0, nil)

	_, err := svc.ResolveSpec(context.Background(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGeofenceResolveSpecUsesCache(t *testing.T) {
	sessions := &fakeGeofenceSessions{
		session: &models.Session{
			ID:             "sess-1",
			CourseID:       "course-1",
			Status:         models.SessionStatusActive,
			GeofenceLat:    floatPtr(37.5),
			GeofenceLng:    floatPtr(127.0),
			GeofenceRadius: floatPtr(80),
		},
	}
	cache := &fakeCache{}
	svc := NewGeofenceService(sessions, cache, time.Minute, nil)

	first, err := svc.ResolveSpec(context.Background(), "sess-1")
	require.NoError(t, err)
	second, err := svc.ResolveSpec(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, sessions.findCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestGeofenceResolveSpecCacheFailureNonFatal(t *testing.T) {
	sessions := &fakeGeofenceSessions{
		session: &models.Session{
			ID:             "sess-1",
			CourseID:       "course-1",
			Status:         models.SessionStatusActive,
			GeofenceLat:    floatPtr(37.5),
			GeofenceLng:    floatPtr(127.0),
			GeofenceRadius: floatPtr(80),
		},
	}
	cache := &fakeCache{getErr: assert.AnError, setErr: assert.AnError}
	svc := NewGeofenceService(sessions, cache, time.Minute, nil)

	spec, err := svc.ResolveSpec(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, spec.RadiusMeters)
}
