package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const exportJobColumns = "id, params, status, progress, result_url, created_by, created_at, finished_at, error_message"

// ExportJobRepository persists asynchronous export job state.
type ExportJobRepository struct {
	db *sqlx.DB
}

// NewExportJobRepository constructs the repository.
func NewExportJobRepository(db *sqlx.DB) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

// Create inserts a new job row, defaulting to QUEUED.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO export_jobs (id, params, status, progress, result_url, created_by, created_at, finished_at, error_message)
VALUES (:id, :params, :status, :progress, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create export job: %w", err)
	}
	return nil
}

// GetByID returns a job row. sql.ErrNoRows is wrapped, not replaced.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	var job models.ExportJob
	if err := r.db.GetContext(ctx, &job, "SELECT "+exportJobColumns+" FROM export_jobs WHERE id = $1", id); err != nil {
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return &job, nil
}

// ExportJobUpdate lists the mutable fields; nil fields are left untouched.
type ExportJobUpdate struct {
	Status       *models.ExportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update applies the non-nil fields of u to the job.
func (r *ExportJobRepository) Update(ctx context.Context, id string, u ExportJobUpdate) error {
	var set []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.Progress != nil {
		add("progress", *u.Progress)
	}
	if u.ResultURL != nil {
		add("result_url", *u.ResultURL)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.FinishedAt != nil {
		add("finished_at", *u.FinishedAt)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE export_jobs SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update export job: %w", err)
	}
	return nil
}

// ListQueued fetches queued jobs oldest first, for recovery after restart.
func (r *ExportJobRepository) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + exportJobColumns + " FROM export_jobs WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1"
	var jobs []models.ExportJob
	if err := r.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("list queued export jobs: %w", err)
	}
	return jobs, nil
}
