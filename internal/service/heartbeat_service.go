package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type heartbeatAttendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	MarkLeftEarly(ctx context.Context, id string, at time.Time) (bool, error)
}

type heartbeatLocationLogRepository interface {
	Append(ctx context.Context, entry *models.LocationLogEntry) error
	Recent(ctx context.Context, attendanceID string, limit int) ([]models.LocationLogEntry, error)
}

type heartbeatGeofenceResolver interface {
	ResolveSpec(ctx context.Context, sessionID string) (*models.GeofenceSpec, error)
	Evaluate(spec models.GeofenceSpec, lat, lng, accuracyMeters float64) models.GeofenceEvaluation
}

type heartbeatLifecycle interface {
	EnsureCurrent(ctx context.Context, sessionID string) (*models.Session, error)
}

type heartbeatMetrics interface {
	ObserveHeartbeat(result string, duration time.Duration)
	RecordViolation()
	RecordLowAccuracySkip()
}

// HeartbeatInput is one periodic position report from a tracking client.
type HeartbeatInput struct {
	AttendanceID   string    `json:"attendance_id" validate:"required"`
	SessionID      string    `json:"session_id" validate:"required"`
	StudentID      string    `json:"student_id" validate:"required"`
	Latitude       float64   `json:"latitude" validate:"min=-90,max=90"`
	Longitude      float64   `json:"longitude" validate:"min=-180,max=180"`
	AccuracyMeters float64   `json:"accuracy" validate:"min=0"`
	Timestamp      time.Time `json:"timestamp"`
	IsBackground   bool      `json:"is_background"`
	Source         string    `json:"source"`
	TrackingMode   *string   `json:"tracking_mode,omitempty"`
	Environment    *string   `json:"environment,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	GPSWeight      *float64  `json:"gps_weight,omitempty"`
	PDRWeight      *float64  `json:"pdr_weight,omitempty"`
}

// HeartbeatVerdict is the processing outcome returned to the client.
type HeartbeatVerdict struct {
	LocationValid bool                     `json:"location_valid"`
	Distance      float64                  `json:"distance"`
	AllowedRadius float64                  `json:"allowed_radius"`
	StatusChanged bool                     `json:"status_changed"`
	NewStatus     *models.AttendanceStatus `json:"new_status,omitempty"`
	SessionEnded  bool                     `json:"session_ended"`
	LowAccuracy   bool                     `json:"low_accuracy"`
}

// HeartbeatService drives the attendance state machine from periodic
// position reports.
type HeartbeatService struct {
	attendance heartbeatAttendanceRepository
	logs       heartbeatLocationLogRepository
	geofence   heartbeatGeofenceResolver
	lifecycle  heartbeatLifecycle
	metrics    heartbeatMetrics

	accuracySkipMeters float64
	violationWindow    int
	violationThreshold int

	locks     *keyedLock
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewHeartbeatService constructs the heartbeat service.
func NewHeartbeatService(
	attendance heartbeatAttendanceRepository,
	logs heartbeatLocationLogRepository,
	geofence heartbeatGeofenceResolver,
	lifecycle heartbeatLifecycle,
	metrics heartbeatMetrics,
	accuracySkipMeters float64,
	violationWindow int,
	violationThreshold int,
	validate *validator.Validate,
	logger *zap.Logger,
) *HeartbeatService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if accuracySkipMeters <= 0 {
		accuracySkipMeters = 100
	}
	if violationWindow <= 0 {
		violationWindow = 4
	}
	if violationThreshold <= 0 {
		violationThreshold = 3
	}
	return &HeartbeatService{
		attendance:         attendance,
		logs:               logs,
		geofence:           geofence,
		lifecycle:          lifecycle,
		metrics:            metrics,
		accuracySkipMeters: accuracySkipMeters,
		violationWindow:    violationWindow,
		violationThreshold: violationThreshold,
		locks:              newKeyedLock(),
		validator:          validate,
		logger:             logger,
		now:                time.Now,
	}
}

// Process handles one heartbeat. Status transitions are serialized per
// attendance record: a per-key lock in this process plus a conditional
// update in the repository, so concurrent reports cannot double-apply the
// early-leave transition.
func (s *HeartbeatService) Process(ctx context.Context, input HeartbeatInput) (*HeartbeatVerdict, error) {
	started := s.now()
	verdict, err := s.process(ctx, input)
	if s.metrics != nil {
		s.metrics.ObserveHeartbeat(heartbeatResult(verdict, err), s.now().Sub(started))
	}
	return verdict, err
}

func (s *HeartbeatService) process(ctx context.Context, input HeartbeatInput) (*HeartbeatVerdict, error) {
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid heartbeat payload")
	}

	unlock := s.locks.Lock(input.AttendanceID)
	defer unlock()

	record, err := s.attendance.FindByID(ctx, input.AttendanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record.SessionID != input.SessionID || record.StudentID != input.StudentID {
		return nil, appErrors.ErrNotFound
	}

	session, err := s.lifecycle.EnsureCurrent(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusEnded {
		return &HeartbeatVerdict{SessionEnded: true}, nil
	}

	// Tracking stops once the record leaves present. Not an error: clients
	// learn the state from the verdict and stop sending.
	if !record.Status.ActivelyTracked() {
		return &HeartbeatVerdict{NewStatus: &record.Status}, nil
	}

	spec, err := s.geofence.ResolveSpec(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}

	// An inaccurate fix is no signal, not a violation. Skip evaluation and
	// do not write an audit row, so indoor attendance is never penalized.
	if input.AccuracyMeters > s.accuracySkipMeters {
		if s.metrics != nil {
			s.metrics.RecordLowAccuracySkip()
		}
		return &HeartbeatVerdict{LowAccuracy: true, AllowedRadius: spec.RadiusMeters}, nil
	}

	evaluation := s.geofence.Evaluate(*spec, input.Latitude, input.Longitude, input.AccuracyMeters)
	if !evaluation.IsValid && s.metrics != nil {
		s.metrics.RecordViolation()
	}

	recordedAt := input.Timestamp
	if recordedAt.IsZero() {
		recordedAt = s.now().UTC()
	}
	entry := &models.LocationLogEntry{
		AttendanceID:   input.AttendanceID,
		Latitude:       input.Latitude,
		Longitude:      input.Longitude,
		AccuracyMeters: input.AccuracyMeters,
		RecordedAt:     recordedAt,
		IsValid:        evaluation.IsValid,
		TrackingMode:   input.TrackingMode,
		Environment:    input.Environment,
		Confidence:     input.Confidence,
		GPSWeight:      input.GPSWeight,
		PDRWeight:      input.PDRWeight,
	}
	auditWritten := true
	if err := s.logs.Append(ctx, entry); err != nil {
		// Verification continues without the audit trail.
		auditWritten = false
		s.logger.Warn("location log write failed",
			zap.String("attendance_id", input.AttendanceID),
			zap.Error(err))
	}

	verdict := &HeartbeatVerdict{
		LocationValid: evaluation.IsValid,
		Distance:      evaluation.EffectiveDistance,
		AllowedRadius: evaluation.AllowedRadius,
	}

	if !evaluation.IsValid && auditWritten {
		changed, err := s.applyViolationRule(ctx, input.AttendanceID)
		if err != nil {
			return nil, err
		}
		if changed {
			verdict.StatusChanged = true
			status := models.AttendanceStatusLeftEarly
			verdict.NewStatus = &status
		}
	}
	return verdict, nil
}

// applyViolationRule inspects the most recent audit rows and transitions the
// record to left_early after enough consecutive accurate out-of-zone
// readings. Inaccurate rows are excluded before counting, never interleaved,
// so a single indoor reading cannot break or fake a streak.
func (s *HeartbeatService) applyViolationRule(ctx context.Context, attendanceID string) (bool, error) {
	recent, err := s.logs.Recent(ctx, attendanceID, s.violationWindow)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load location logs")
	}

	accurate := recent[:0:0]
	for _, log := range recent {
		if log.AccuracyMeters <= s.accuracySkipMeters {
			accurate = append(accurate, log)
		}
	}
	if len(accurate) < s.violationThreshold {
		return false, nil
	}
	for _, log := range accurate[:s.violationThreshold] {
		if log.IsValid {
			return false, nil
		}
	}

	changed, err := s.attendance.MarkLeftEarly(ctx, attendanceID, s.now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance status")
	}
	if changed {
		s.logger.Info("attendance marked left early",
			zap.String("attendance_id", attendanceID),
			zap.Int("consecutive_violations", s.violationThreshold))
	}
	return changed, nil
}

func heartbeatResult(verdict *HeartbeatVerdict, err error) string {
	switch {
	case err != nil:
		return "error"
	case verdict == nil:
		return "error"
	case verdict.SessionEnded:
		return "session_ended"
	case verdict.LowAccuracy:
		return "low_accuracy"
	case verdict.StatusChanged:
		return "left_early"
	case verdict.LocationValid:
		return "valid"
	default:
		return "invalid"
	}
}
