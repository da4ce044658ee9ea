package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type timetableStub struct {
	generated dto.GenerateTimetableRequest
	query     dto.TimetableQuery
	conflictQ dto.ConflictQuery
	added     dto.CreateEntryRequest
	removed   string
	hit       bool
	err       error
}

func (s *timetableStub) Grid() dto.GridView {
	return dto.GridView{Days: []string{"Monday"}, Capacity: 8}
}

func (s *timetableStub) Generate(_ context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	s.generated = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.GenerateTimetableResponse{Mode: "persisted", Year: req.Year, Section: req.Section}, nil
}

func (s *timetableStub) Get(_ context.Context, query dto.TimetableQuery) (*dto.TimetableView, bool, error) {
	s.query = query
	return &dto.TimetableView{Year: query.Year, Section: query.Section, Entries: []models.ScheduleEntry{}}, s.hit, s.err
}

func (s *timetableStub) Conflicts(_ context.Context, query dto.ConflictQuery) (*dto.ConflictReport, error) {
	s.conflictQ = query
	return &dto.ConflictReport{Total: 0, Conflicts: []dto.ConflictView{}}, nil
}

func (s *timetableStub) Check(_ context.Context, req dto.CheckConflictsRequest) (*dto.ConflictReport, error) {
	return &dto.ConflictReport{Total: len(req.Entries)}, nil
}

func (s *timetableStub) AddEntry(_ context.Context, req dto.CreateEntryRequest) (*dto.ManualEntryResponse, error) {
	s.added = req
	if s.err != nil {
		return nil, s.err
	}
	return &dto.ManualEntryResponse{Entry: models.ScheduleEntry{ID: "manual-1"}}, nil
}

func (s *timetableStub) RemoveEntry(_ context.Context, id string) error {
	s.removed = id
	return s.err
}

type rendererStub struct {
	format models.ExportFormat
}

func (r *rendererStub) Render(_ context.Context, year int, section string, format models.ExportFormat) (*service.ExportFile, error) {
	r.format = format
	if format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.ExportFile{Filename: service.ExportFilename(year, section, models.ExportFormatCSV), ContentType: "text/csv; charset=utf-8", Body: []byte("Time,Monday\n")}, nil
}

func TestTimetableHandlerGenerate(t *testing.T) {
	stub := &timetableStub{}
	h := &TimetableHandler{service: stub}
	c, w := newTestContext(http.MethodPost, "/timetable/generate", []byte(`{"year":10,"section":"A","persist":false}`))

	h.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, stub.generated.Year)
	require.NotNil(t, stub.generated.Persist)
	assert.False(t, stub.generated.ShouldPersist())
}

func TestTimetableHandlerGenerateErrors(t *testing.T) {
	h := &TimetableHandler{service: &timetableStub{}}
	c, w := newTestContext(http.MethodPost, "/timetable/generate", []byte(`{"year":`))
	h.Generate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	h = &TimetableHandler{service: &timetableStub{err: appErrors.Clone(appErrors.ErrCapacityExceeded, "subjects need 50 hours but the week has 48 slots")}}
	c, w = newTestContext(http.MethodPost, "/timetable/generate", []byte(`{"year":10,"section":"A"}`))
	h.Generate(c)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", decode(t, w).Error.Code)
}

func TestTimetableHandlerGetSetsCacheHeader(t *testing.T) {
	stub := &timetableStub{hit: true}
	h := &TimetableHandler{service: stub}
	c, w := newTestContext(http.MethodGet, "/timetable?year=11&section=B", nil)

	h.Get(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, dto.TimetableQuery{Year: 11, Section: "B"}, stub.query)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])

	c, w = newTestContext(http.MethodGet, "/timetable?year=abc", nil)
	h.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerConflictsAndCheck(t *testing.T) {
	stub := &timetableStub{}
	h := &TimetableHandler{service: stub}

	c, w := newTestContext(http.MethodGet, "/timetable/conflicts?year=10&section=A", nil)
	h.Conflicts(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.ConflictQuery{Year: 10, Section: "A"}, stub.conflictQ)

	body := mustJSON(t, dto.CheckConflictsRequest{Entries: []dto.CheckEntry{
		{ID: "a", Year: 10, Section: "A", Day: "Monday", Period: 1},
		{ID: "b", Year: 10, Section: "B", Day: "Monday", Period: 1},
	}})
	c, w = newTestContext(http.MethodPost, "/timetable/conflicts/check", body)
	h.Check(c)
	require.Equal(t, http.StatusOK, w.Code)
	var report dto.ConflictReport
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &report))
	assert.Equal(t, 2, report.Total)
}

func TestTimetableHandlerEntries(t *testing.T) {
	stub := &timetableStub{}
	h := &TimetableHandler{service: stub}

	c, w := newTestContext(http.MethodPost, "/timetable/entries", []byte(`{"year":10,"section":"A","subject_id":"math","day":"Monday","period":2}`))
	h.AddEntry(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "math", stub.added.SubjectID)
	assert.Equal(t, 2, stub.added.Period)

	stub.err = appErrors.Clone(appErrors.ErrSlotOccupied, "slot already occupied: Monday period 2")
	c, w = newTestContext(http.MethodPost, "/timetable/entries", []byte(`{"year":10,"section":"A","subject_id":"math","day":"Monday","period":2}`))
	h.AddEntry(c)
	assert.Equal(t, http.StatusConflict, w.Code)

	stub.err = nil
	c, w = newTestContext(http.MethodDelete, "/timetable/entries/manual-1", nil)
	c.Params = append(c.Params, ginParam("id", "manual-1"))
	h.RemoveEntry(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "manual-1", stub.removed)
}

func TestTimetableHandlerExport(t *testing.T) {
	renderer := &rendererStub{}
	h := &TimetableHandler{service: &timetableStub{}, exporter: renderer}

	c, w := newTestContext(http.MethodGet, "/timetable/export?year=10&section=A", nil)
	h.Export(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="timetable_year10_sectionA.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Time,Monday\n", w.Body.String())
	assert.Equal(t, models.ExportFormat(""), renderer.format)

	c, w = newTestContext(http.MethodGet, "/timetable/export?year=10&section=A&format=xlsx", nil)
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newTestContext(http.MethodGet, "/timetable/export?section=A", nil)
	h.Export(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableHandlerGrid(t *testing.T) {
	h := &TimetableHandler{service: &timetableStub{}}
	c, w := newTestContext(http.MethodGet, "/timetable/grid", nil)
	h.Grid(c)
	require.Equal(t, http.StatusOK, w.Code)
	var grid dto.GridView
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &grid))
	assert.Equal(t, 8, grid.Capacity)
}
