package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// ExportJobType tags export work on the background queue.
const ExportJobType = "timetable_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, u repository.ExportJobUpdate) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportJobConfig governs queue recovery and cleanup.
type ExportJobConfig struct {
	CleanupInterval time.Duration
}

// ExportDownload is a resolved, ready-to-stream export file.
type ExportDownload struct {
	Path        string
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportJobService manages the lifecycle of asynchronous timetable exports.
type ExportJobService struct {
	repo      exportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportJobConfig
}

// NewExportJobService constructs the export job service.
func NewExportJobService(repo exportJobStore, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ExportJobConfig) *ExportJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportJobService{repo: repo, queue: queue, exporter: exporter, validator: validate, logger: logger, cfg: cfg}
}

// CreateJob persists a QUEUED job and hands it to the worker pool.
func (s *ExportJobService) CreateJob(ctx context.Context, req dto.CreateExportRequest, actorID string) (*dto.ExportJobView, error) {
	req.Section = strings.TrimSpace(req.Section)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}

	job := &models.ExportJob{
		Params:    models.ExportJobParams{Year: req.Year, Section: req.Section, Format: req.Format},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
		failed := models.ExportStatusFailed
		progress := 100
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		if updateErr := s.repo.Update(ctx, job.ID, repository.ExportJobUpdate{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); updateErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return &dto.ExportJobView{ExportJob: *job}, nil
}

// GetJob returns job status. Teachers only see jobs they created.
func (s *ExportJobService) GetJob(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportJobView, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == models.RoleTeacher && job.CreatedBy != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}

	view := &dto.ExportJobView{ExportJob: *job}
	if job.Status == models.ExportStatusFinished && job.ResultURL != nil {
		url := *job.ResultURL
		view.DownloadURL = &url
		if token, err := s.exporter.ParseToken(extractToken(url), true); err == nil {
			expires := token.ExpiresAt.UTC().Format(time.RFC3339)
			view.ExpiresAt = &expires
		}
	}
	return view, nil
}

// ResolveDownload validates a signed token and locates the stored file.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	parsed, err := s.exporter.ParseToken(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrLinkExpired, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}

	job, err := s.load(ctx, parsed.JobID)
	if err != nil {
		return nil, err
	}
	if job.ResultURL == nil || extractToken(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrExportNotReady, "export not ready")
	}

	path, err := s.exporter.Locate(parsed.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file no longer available")
	}
	return &ExportDownload{
		Path:        path,
		Filename:    filepath.Base(parsed.Path),
		ContentType: s.exporter.ContentType(job.Params.Format),
		ExpiresAt:   parsed.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued jobs after a process restart.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: ExportJobType}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("requeued pending export jobs", zap.Int("count", len(pending)))
	}
}

// StartCleanup purges expired export files until ctx is done.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.exporter.Cleanup()
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

func (s *ExportJobService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

func extractToken(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// ExportWorker bridges queue jobs to the ExportService.
type ExportWorker struct {
	repo       exportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewExportWorker constructs a worker. maxRetries should match the queue's.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExportWorker{repo: repo, exporter: exporter, logger: logger, maxRetries: maxRetries}
}

// Handle processes one queued export.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.ExportJobUpdate{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		update := repository.ExportJobUpdate{ErrorMessage: &msg}
		if job.Attempt >= w.maxRetries {
			failed := models.ExportStatusFailed
			done := 100
			now := time.Now().UTC()
			update.Status, update.Progress, update.FinishedAt = &failed, &done, &now
		} else {
			queued := models.ExportStatusQueued
			reset := 0
			update.Status, update.Progress = &queued, &reset
		}
		if updateErr := w.repo.Update(ctx, job.ID, update); updateErr != nil {
			w.logger.Warn("failed to record export failure", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	noError := ""
	if err := w.repo.Update(ctx, job.ID, repository.ExportJobUpdate{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark export job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.logger.Info("export job finished", zap.String("job_id", job.ID), zap.String("format", string(record.Params.Format)))
	return nil
}
