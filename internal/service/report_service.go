package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/models"
	appErrors "github.com/noah-isme/presence-api/pkg/errors"
	"github.com/noah-isme/presence-api/pkg/jobs"
)

type reportJobStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportSessionLoader interface {
	EnsureCurrent(ctx context.Context, sessionID string) (*models.Session, error)
}

// ReportServiceConfig governs job retention and access rules.
type ReportServiceConfig struct {
	ResultTTL time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService orchestrates asynchronous attendance exports. Job state
// lives in the cache keyed by job ID, with the same TTL as the export file.
type ReportService struct {
	store     reportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	lifecycle reportSessionLoader
	logger    *zap.Logger
	cfg       ReportServiceConfig
	now       func() time.Time
}

// NewReportService constructs the report service.
func NewReportService(store reportJobStore, queue jobDispatcher, exporter *ExportService, lifecycle reportSessionLoader, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		store:     store,
		queue:     queue,
		exporter:  exporter,
		lifecycle: lifecycle,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// SetQueue attaches the dispatcher after construction. The queue's handler
// is ProcessJob, so the two depend on each other.
func (s *ReportService) SetQueue(queue jobDispatcher) {
	s.queue = queue
}

// CreateJob validates the request, persists initial job state, and enqueues
// the export.
func (s *ReportService) CreateJob(ctx context.Context, sessionID string, format models.ReportFormat, actorID string) (*models.ReportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	if _, err := s.lifecycle.EnsureCurrent(ctx, sessionID); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Format:      format,
		Status:      models.ReportStatusQueued,
		RequestedBy: actorID,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "attendance_report", Payload: job.SessionID}); err != nil {
		job.Status = models.ReportStatusFailed
		msg := "failed to enqueue job"
		job.ErrorMessage = &msg
		finished := s.now().UTC()
		job.FinishedAt = &finished
		if saveErr := s.saveJob(ctx, job); saveErr != nil {
			s.logger.Warn("failed to persist enqueue failure", zap.String("job_id", job.ID), zap.Error(saveErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// GetStatus exposes job metadata, enforcing ownership.
func (s *ReportService) GetStatus(ctx context.Context, jobID, actorID string) (*models.ReportJob, error) {
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequestedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return job, nil
}

// ProcessJob is the queue handler: it renders and stores the export, then
// records the signed download URL on the job.
func (s *ReportService) ProcessJob(ctx context.Context, queued jobs.Job) error {
	job, err := s.loadJob(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", queued.ID, err)
	}

	job.Status = models.ReportStatusProcessing
	job.Progress = 10
	if err := s.saveJob(ctx, job); err != nil {
		s.logger.Warn("failed to mark job processing", zap.String("job_id", job.ID), zap.Error(err))
	}

	result, err := s.exporter.Generate(ctx, job)
	finished := s.now().UTC()
	job.FinishedAt = &finished
	job.Progress = 100
	if err != nil {
		job.Status = models.ReportStatusFailed
		msg := err.Error()
		job.ErrorMessage = &msg
		if saveErr := s.saveJob(ctx, job); saveErr != nil {
			s.logger.Warn("failed to persist job failure", zap.String("job_id", job.ID), zap.Error(saveErr))
		}
		return fmt.Errorf("generate report %s: %w", job.ID, err)
	}

	job.Status = models.ReportStatusFinished
	job.ResultURL = &result.URL
	if err := s.saveJob(ctx, job); err != nil {
		return fmt.Errorf("persist finished job %s: %w", job.ID, err)
	}
	s.logger.Info("report export finished",
		zap.String("job_id", job.ID),
		zap.String("session_id", job.SessionID),
		zap.String("format", string(job.Format)))
	return nil
}

// ResolveDownload validates a token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ReportService) saveJob(ctx context.Context, job *models.ReportJob) error {
	if err := s.store.Set(ctx, reportJobKey(job.ID), job, s.cfg.ResultTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist report job")
	}
	return nil
}

func (s *ReportService) loadJob(ctx context.Context, jobID string) (*models.ReportJob, error) {
	var job models.ReportJob
	if err := s.store.Get(ctx, reportJobKey(jobID), &job); err != nil {
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return &job, nil
}

func reportJobKey(jobID string) string {
	return fmt.Sprintf("report:job:%s", jobID)
}
