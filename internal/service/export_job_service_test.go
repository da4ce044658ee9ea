package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type stubJobStore struct {
	jobs    map[string]*models.ExportJob
	updates []repository.ExportJobUpdate
	seq     int
}

func newStubJobStore() *stubJobStore {
	return &stubJobStore{jobs: map[string]*models.ExportJob{}}
}

func (s *stubJobStore) Create(_ context.Context, job *models.ExportJob) error {
	s.seq++
	job.ID = fmt.Sprintf("job%d", s.seq)
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *stubJobStore) GetByID(_ context.Context, id string) (*models.ExportJob, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("get export job: %w", sql.ErrNoRows)
	}
	cp := *job
	return &cp, nil
}

func (s *stubJobStore) Update(_ context.Context, id string, u repository.ExportJobUpdate) error {
	s.updates = append(s.updates, u)
	job, ok := s.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.Progress != nil {
		job.Progress = *u.Progress
	}
	if u.ResultURL != nil {
		job.ResultURL = u.ResultURL
	}
	if u.ErrorMessage != nil {
		job.ErrorMessage = u.ErrorMessage
	}
	if u.FinishedAt != nil {
		job.FinishedAt = u.FinishedAt
	}
	return nil
}

func (s *stubJobStore) ListQueued(_ context.Context, _ int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range s.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

type stubDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (d *stubDispatcher) Enqueue(job jobs.Job) error {
	if d.err != nil {
		return d.err
	}
	d.enqueued = append(d.enqueued, job)
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, *models.ExportJob) (*ExportResult, error) {
	return nil, errors.New("disk full")
}

func newExportJobFixture(t *testing.T) (*ExportJobService, *stubJobStore, *stubDispatcher, *ExportService) {
	t.Helper()
	exporter, _ := newExportFixture(t)
	store := newStubJobStore()
	queue := &stubDispatcher{}
	return NewExportJobService(store, queue, exporter, nil, nil, ExportJobConfig{}), store, queue, exporter
}

func TestExportJobServiceCreateJob(t *testing.T) {
	svc, store, queue, _ := newExportJobFixture(t)

	view, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Year: 10, Section: " A ", Format: models.ExportFormatCSV}, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, view.Status)
	assert.Equal(t, "A", view.Params.Section)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, jobs.Job{ID: view.ID, Type: ExportJobType}, queue.enqueued[0])
	assert.Equal(t, "u1", store.jobs[view.ID].CreatedBy)

	_, err = svc.CreateJob(context.Background(), dto.CreateExportRequest{Year: 10, Section: "A", Format: "xlsx"}, "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportJobServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, store, queue, _ := newExportJobFixture(t)
	queue.err = jobs.ErrQueueFull

	_, err := svc.CreateJob(context.Background(), dto.CreateExportRequest{Year: 10, Section: "A", Format: models.ExportFormatPDF}, "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.ExportStatusFailed, store.jobs["job1"].Status)
}

func TestExportJobServiceGetJobOwnership(t *testing.T) {
	svc, store, _, _ := newExportJobFixture(t)
	store.jobs["j1"] = &models.ExportJob{ID: "j1", Status: models.ExportStatusQueued, CreatedBy: "owner"}

	_, err := svc.GetJob(context.Background(), "j1", "intruder", models.RoleTeacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	view, err := svc.GetJob(context.Background(), "j1", "admin", models.RoleAdmin)
	require.NoError(t, err)
	assert.Nil(t, view.DownloadURL)

	_, err = svc.GetJob(context.Background(), "missing", "admin", models.RoleAdmin)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestExportWorkerHandleAndDownload(t *testing.T) {
	svc, store, _, exporter := newExportJobFixture(t)
	store.jobs["j1"] = &models.ExportJob{ID: "j1", Status: models.ExportStatusQueued, CreatedBy: "owner",
		Params: models.ExportJobParams{Year: 10, Section: "A", Format: models.ExportFormatCSV}}
	worker := NewExportWorker(store, exporter, 2, nil)

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "j1", Type: ExportJobType}))
	job := store.jobs["j1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)

	view, err := svc.GetJob(context.Background(), "j1", "owner", models.RoleTeacher)
	require.NoError(t, err)
	require.NotNil(t, view.DownloadURL)
	assert.NotNil(t, view.ExpiresAt)

	download, err := svc.ResolveDownload(context.Background(), extractToken(*job.ResultURL))
	require.NoError(t, err)
	assert.Equal(t, "timetable_year10_sectionA.csv", download.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", download.ContentType)
	assert.FileExists(t, download.Path)
}

func TestExportJobServiceResolveDownloadErrors(t *testing.T) {
	svc, store, _, exporter := newExportJobFixture(t)

	_, err := svc.ResolveDownload(context.Background(), "garbage")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	store.jobs["j1"] = &models.ExportJob{ID: "j1", Status: models.ExportStatusProcessing,
		Params: models.ExportJobParams{Year: 10, Section: "A", Format: models.ExportFormatCSV}}
	result, err := exporter.Generate(context.Background(), store.jobs["j1"])
	require.NoError(t, err)
	store.jobs["j1"].ResultURL = &result.URL

	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assert.Equal(t, appErrors.ErrExportNotReady.Code, appErrors.FromError(err).Code)

	other := storage.NewSignedURLSigner("different", time.Hour)
	forged, _, err := other.Generate("j1", result.RelativePath)
	require.NoError(t, err)
	_, err = svc.ResolveDownload(context.Background(), forged)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportWorkerRetriesThenFails(t *testing.T) {
	store := newStubJobStore()
	store.jobs["j1"] = &models.ExportJob{ID: "j1", Status: models.ExportStatusQueued}
	worker := NewExportWorker(store, failingGenerator{}, 1, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "j1", Attempt: 0})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, store.jobs["j1"].Status)
	require.NotNil(t, store.jobs["j1"].ErrorMessage)
	assert.Equal(t, "disk full", *store.jobs["j1"].ErrorMessage)

	err = worker.Handle(context.Background(), jobs.Job{ID: "j1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusFailed, store.jobs["j1"].Status)
	assert.NotNil(t, store.jobs["j1"].FinishedAt)
}

func TestExportJobServiceRecoverPendingJobs(t *testing.T) {
	svc, store, queue, _ := newExportJobFixture(t)
	store.jobs["j1"] = &models.ExportJob{ID: "j1", Status: models.ExportStatusQueued}
	store.jobs["j2"] = &models.ExportJob{ID: "j2", Status: models.ExportStatusFinished}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "j1", queue.enqueued[0].ID)
}
