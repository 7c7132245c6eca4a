package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/geo"
	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type geofenceSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	CourseGeofence(ctx context.Context, courseID string) (*models.CourseGeofence, error)
}

type geofenceCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// GeofenceService resolves the allowed zone for a session and evaluates
// positions against it.
type GeofenceService struct {
	sessions geofenceSessionRepository
	cache    geofenceCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewGeofenceService constructs the geofence service. The cache is optional;
// with a nil cache every resolution hits the database.
func NewGeofenceService(sessions geofenceSessionRepository, cache geofenceCache, cacheTTL time.Duration, logger *zap.Logger) *GeofenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &GeofenceService{sessions: sessions, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Evaluate tests a position against a zone. The effective distance is the
// raw center distance regardless of reported accuracy, so a client cannot
// buy its way into the zone by inflating the accuracy value.
func (s *GeofenceService) Evaluate(spec models.GeofenceSpec, lat, lng, accuracyMeters float64) models.GeofenceEvaluation {
	_ = accuracyMeters

	distance := geo.Distance(
		geo.Coordinate{Latitude: spec.CenterLatitude, Longitude: spec.CenterLongitude},
		geo.Coordinate{Latitude: lat, Longitude: lng},
	)
	return models.GeofenceEvaluation{
		Distance:          distance,
		EffectiveDistance: distance,
		AllowedRadius:     spec.RadiusMeters,
		IsValid:           distance <= spec.RadiusMeters,
	}
}

// ResolveSpec returns the zone to enforce for a session. A session-level
// override wins over the course default. When neither is configured the
// session cannot be verified and ErrConfigMissing is returned.
func (s *GeofenceService) ResolveSpec(ctx context.Context, sessionID string) (*models.GeofenceSpec, error) {
	cacheKey := geofenceCacheKey(sessionID)
	if s.cache != nil {
		var cached models.GeofenceSpec
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("geofence cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	spec := session.OverrideGeofence()
	if spec == nil {
		course, err := s.sessions.CourseGeofence(ctx, session.CourseID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course geofence")
		}
		spec = course.Spec()
	}
	if spec == nil {
		return nil, appErrors.ErrConfigMissing
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, spec, s.cacheTTL); err != nil {
			s.logger.Warn("geofence cache write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return spec, nil
}

func geofenceCacheKey(sessionID string) string {
	return fmt.Sprintf("geofence:session:%s", sessionID)
}
