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

type attendanceRepository interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
	Create(ctx context.Context, record *models.AttendanceRecord) error
	SetCheckOut(ctx context.Context, id string, at time.Time) error
}

type checkInCodeValidator interface {
	ValidateCheckInCode(code, sessionID string) error
}

type attendanceGeofence interface {
	ResolveSpec(ctx context.Context, sessionID string) (*models.GeofenceSpec, error)
	Evaluate(spec models.GeofenceSpec, lat, lng, accuracyMeters float64) models.GeofenceEvaluation
}

type attendanceLifecycle interface {
	EnsureCurrent(ctx context.Context, sessionID string) (*models.Session, error)
}

// CheckInRequest holds the payload for registering presence in a session.
type CheckInRequest struct {
	SessionID      string  `json:"session_id" validate:"required"`
	Code           string  `json:"code" validate:"required"`
	Latitude       float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude      float64 `json:"longitude" validate:"min=-180,max=180"`
	AccuracyMeters float64 `json:"accuracy" validate:"min=0"`
}

// AttendanceService handles check-in and check-out use-cases.
type AttendanceService struct {
	repo      attendanceRepository
	codes     checkInCodeValidator
	geofence  attendanceGeofence
	lifecycle attendanceLifecycle
	lateAfter time.Duration
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	repo attendanceRepository,
	codes checkInCodeValidator,
	geofence attendanceGeofence,
	lifecycle attendanceLifecycle,
	lateAfter time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if lateAfter <= 0 {
		lateAfter = 15 * time.Minute
	}
	return &AttendanceService{
		repo:      repo,
		codes:     codes,
		geofence:  geofence,
		lifecycle: lifecycle,
		lateAfter: lateAfter,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckIn registers a student in a session. The code is the professor-issued
// QR payload; arriving past the grace period yields late instead of present.
func (s *AttendanceService) CheckIn(ctx context.Context, studentID string, req CheckInRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}
	if err := s.codes.ValidateCheckInCode(req.Code, req.SessionID); err != nil {
		return nil, err
	}

	session, err := s.lifecycle.EnsureCurrent(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusEnded {
		return nil, appErrors.ErrSessionEnded
	}
	if session.Status != models.SessionStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session has not started")
	}

	if _, err := s.repo.FindBySessionAndStudent(ctx, req.SessionID, studentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already checked in")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for existing attendance")
	}

	checkInAt := s.now().UTC()
	status := models.AttendanceStatusPresent
	if checkInAt.After(session.CreatedAt.Add(s.lateAfter)) {
		status = models.AttendanceStatusLate
	}

	locationVerified := false
	if spec, err := s.geofence.ResolveSpec(ctx, req.SessionID); err == nil {
		evaluation := s.geofence.Evaluate(*spec, req.Latitude, req.Longitude, req.AccuracyMeters)
		locationVerified = evaluation.IsValid
	} else if !errors.Is(err, appErrors.ErrConfigMissing) {
		return nil, err
	}

	record := &models.AttendanceRecord{
		SessionID:        req.SessionID,
		StudentID:        studentID,
		Status:           status,
		CheckInTime:      &checkInAt,
		LocationVerified: locationVerified,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attendance record")
	}

	s.logger.Info("student checked in",
		zap.String("session_id", req.SessionID),
		zap.String("student_id", studentID),
		zap.String("status", string(status)),
		zap.Bool("location_verified", locationVerified))
	return record, nil
}

// CheckOut stamps a student-driven departure. The status is left untouched;
// only the heartbeat processor or finalization changes it.
func (s *AttendanceService) CheckOut(ctx context.Context, studentID, attendanceID string) (*models.AttendanceRecord, error) {
	record, err := s.repo.FindByID(ctx, attendanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if record.StudentID != studentID {
		return nil, appErrors.ErrNotFound
	}

	session, err := s.lifecycle.EnsureCurrent(ctx, record.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusEnded {
		return nil, appErrors.ErrSessionEnded
	}
	if record.CheckOutTime != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already checked out")
	}

	checkOutAt := s.now().UTC()
	if err := s.repo.SetCheckOut(ctx, attendanceID, checkOutAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp check-out")
	}
	record.CheckOutTime = &checkOutAt
	record.UpdatedAt = checkOutAt
	return record, nil
}
