package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type exportJobsStub struct {
	actor    string
	role     models.UserRole
	download *service.ExportDownload
	err      error
}

func (s *exportJobsStub) CreateJob(_ context.Context, req dto.CreateExportRequest, actorID string) (*dto.ExportJobView, error) {
	s.actor = actorID
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ExportJobView{ExportJob: models.ExportJob{ID: "job1", Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{Year: req.Year, Section: req.Section, Format: req.Format}}}, nil
}

func (s *exportJobsStub) GetJob(_ context.Context, id, actorID string, role models.UserRole) (*dto.ExportJobView, error) {
	s.actor, s.role = actorID, role
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ExportJobView{ExportJob: models.ExportJob{ID: id, Status: models.ExportStatusFinished}}, nil
}

func (s *exportJobsStub) ResolveDownload(_ context.Context, _ string) (*service.ExportDownload, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.download, nil
}

func TestExportHandlerCreate(t *testing.T) {
	stub := &exportJobsStub{}
	h := &ExportHandler{service: stub}

	c, w := newTestContext(http.MethodPost, "/exports", []byte(`{"year":10,"section":"A","format":"pdf"}`))
	h.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newTestContext(http.MethodPost, "/exports", []byte(`{"year":10,"section":"A","format":"pdf"}`))
	withUser(c, "u1", models.RoleAdmin)
	h.Create(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "u1", stub.actor)
}

func TestExportHandlerGetPassesRole(t *testing.T) {
	stub := &exportJobsStub{}
	h := &ExportHandler{service: stub}

	c, w := newTestContext(http.MethodGet, "/exports/job1", nil)
	c.Params = append(c.Params, ginParam("id", "job1"))
	withUser(c, "u2", models.RoleTeacher)
	h.Get(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RoleTeacher, stub.role)

	stub.err = appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	c, w = newTestContext(http.MethodGet, "/exports/job1", nil)
	c.Params = append(c.Params, ginParam("id", "job1"))
	withUser(c, "u2", models.RoleTeacher)
	h.Get(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timetable_year10_sectionA.csv")
	require.NoError(t, os.WriteFile(path, []byte("Time,Monday\n"), 0o600))
	stub := &exportJobsStub{download: &service.ExportDownload{
		Path: path, Filename: "timetable_year10_sectionA.csv", ContentType: "text/csv; charset=utf-8", ExpiresAt: time.Now().Add(time.Hour),
	}}
	h := &ExportHandler{service: stub}

	c, w := newTestContext(http.MethodGet, "/exports/download/tok", nil)
	c.Params = append(c.Params, ginParam("token", "tok"))
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable_year10_sectionA.csv")
	assert.Equal(t, "Time,Monday\n", w.Body.String())

	stub.err = appErrors.Clone(appErrors.ErrLinkExpired, "download link expired")
	c, w = newTestContext(http.MethodGet, "/exports/download/tok", nil)
	h.Download(c)
	assert.Equal(t, http.StatusGone, w.Code)
}
