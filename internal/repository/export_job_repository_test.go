package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestExportJobRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	mock.ExpectExec("INSERT INTO export_jobs").WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ExportJob{Params: models.ExportJobParams{Year: 10, Section: "A", Format: models.ExportFormatPDF}, CreatedBy: "u1"}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryUpdateBuildsSetClause(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	status := models.ExportStatusFinished
	progress := 100
	finished := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE export_jobs SET status = $1, progress = $2, finished_at = $3 WHERE id = $4")).
		WithArgs("FINISHED", 100, finished, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", ExportJobUpdate{Status: &status, Progress: &progress, FinishedAt: &finished})
	require.NoError(t, err)
	require.NoError(t, repo.Update(context.Background(), "job-1", ExportJobUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportJobRepositoryGetByIDScansParams(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewExportJobRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}).
		AddRow("job-1", []byte(`{"year":10,"section":"A","format":"csv"}`), "QUEUED", 0, nil, "u1", now, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM export_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportJobParams{Year: 10, Section: "A", Format: models.ExportFormatCSV}, job.Params)
	assert.Nil(t, job.ResultURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
