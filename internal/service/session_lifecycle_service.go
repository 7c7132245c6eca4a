package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
)

type lifecycleSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	MarkEnded(ctx context.Context, id string, endedAt time.Time) (bool, error)
}

type lifecycleAttendanceRepository interface {
	StampCheckOutForPresent(ctx context.Context, sessionID string, at time.Time) (int, error)
	StatusCounts(ctx context.Context, sessionID string) (map[models.AttendanceStatus]int, error)
}

type lifecycleMetrics interface {
	RecordSessionAutoEnd()
}

// SessionLifecycleService enforces the automatic session deadline. There is
// no background sweeper: every read path calls EnsureCurrent first, so an
// overdue session is ended lazily on the next touch.
type SessionLifecycleService struct {
	sessions     lifecycleSessionRepository
	attendance   lifecycleAttendanceRepository
	metrics      lifecycleMetrics
	autoEndAfter time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// NewSessionLifecycleService constructs the lifecycle service.
func NewSessionLifecycleService(
	sessions lifecycleSessionRepository,
	attendance lifecycleAttendanceRepository,
	metrics lifecycleMetrics,
	autoEndAfter time.Duration,
	logger *zap.Logger,
) *SessionLifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if autoEndAfter <= 0 {
		autoEndAfter = 2 * time.Hour
	}
	return &SessionLifecycleService{
		sessions:     sessions,
		attendance:   attendance,
		metrics:      metrics,
		autoEndAfter: autoEndAfter,
		logger:       logger,
		now:          time.Now,
	}
}

// AutoEndAt returns the deadline after which the session is considered over.
func (s *SessionLifecycleService) AutoEndAt(session *models.Session) time.Time {
	return session.CreatedAt.Add(s.autoEndAfter)
}

// IsOverdue reports whether an active session has passed its deadline.
func (s *SessionLifecycleService) IsOverdue(session *models.Session) bool {
	if session.Status != models.SessionStatusActive {
		return false
	}
	return !s.now().UTC().Before(s.AutoEndAt(session))
}

// EnsureCurrent loads a session and ends it first when it is overdue. The
// returned session reflects the post-transition state.
func (s *SessionLifecycleService) EnsureCurrent(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if !s.IsOverdue(session) {
		return session, nil
	}

	if err := s.endSession(ctx, session, true); err != nil {
		return nil, err
	}
	return session, nil
}

// End transitions an active session to ended and finalizes its records.
func (s *SessionLifecycleService) End(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status == models.SessionStatusEnded {
		return nil, appErrors.ErrSessionEnded
	}

	if err := s.endSession(ctx, session, false); err != nil {
		return nil, err
	}
	return session, nil
}

// endSession performs the single ended transition plus finalization. The
// conditional update in MarkEnded makes concurrent callers collapse into one
// winner; losers skip finalization because the winner already ran it.
func (s *SessionLifecycleService) endSession(ctx context.Context, session *models.Session, auto bool) error {
	endedAt := s.now().UTC()
	won, err := s.sessions.MarkEnded(ctx, session.ID, endedAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	session.Status = models.SessionStatusEnded
	session.UpdatedAt = endedAt
	if !won {
		return nil
	}

	stamped, err := s.attendance.StampCheckOutForPresent(ctx, session.ID, endedAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize attendance")
	}

	if auto && s.metrics != nil {
		s.metrics.RecordSessionAutoEnd()
	}
	s.logger.Info("session ended",
		zap.String("session_id", session.ID),
		zap.Bool("auto", auto),
		zap.Int("finalized_records", stamped))
	return nil
}

// Summary aggregates attendance counts for a session. The rate counts
// present and late as attended and rounds half away from zero.
func (s *SessionLifecycleService) Summary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	counts, err := s.attendance.StatusCounts(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate attendance")
	}

	summary := &models.SessionSummary{
		Present:   counts[models.AttendanceStatusPresent],
		Late:      counts[models.AttendanceStatusLate],
		Absent:    counts[models.AttendanceStatusAbsent],
		LeftEarly: counts[models.AttendanceStatusLeftEarly],
	}
	summary.Total = summary.Present + summary.Late + summary.Absent + summary.LeftEarly
	if summary.Total > 0 {
		summary.AttendanceRate = int(math.Round(100 * float64(summary.Present+summary.Late) / float64(summary.Total)))
	}
	return summary, nil
}
