package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableOperator interface {
	Grid() dto.GridView
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
	Get(ctx context.Context, query dto.TimetableQuery) (*dto.TimetableView, bool, error)
	Conflicts(ctx context.Context, query dto.ConflictQuery) (*dto.ConflictReport, error)
	Check(ctx context.Context, req dto.CheckConflictsRequest) (*dto.ConflictReport, error)
	AddEntry(ctx context.Context, req dto.CreateEntryRequest) (*dto.ManualEntryResponse, error)
	RemoveEntry(ctx context.Context, id string) error
}

type timetableRenderer interface {
	Render(ctx context.Context, year int, section string, format models.ExportFormat) (*service.ExportFile, error)
}

// TimetableHandler exposes allocation, conflict and manual edit endpoints.
type TimetableHandler struct {
	service  timetableOperator
	exporter timetableRenderer
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService, exporter *service.ExportService) *TimetableHandler {
	return &TimetableHandler{service: svc, exporter: exporter}
}

// Grid godoc
// @Summary Week grid
// @Description Days, periods and slot capacity used by the allocator
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /timetable/grid [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Grid(), nil)
}

// Generate godoc
// @Summary Generate partition timetable
// @Description Allocates every subject hour of a (year, section) onto the week grid. persist=false returns a preview.
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateTimetableRequest true "Partition to generate"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generate payload"))
		return
	}
	res, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Stored partition timetable
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param year query int true "Year"
// @Param section query string true "Section"
// @Success 200 {object} response.Envelope
// @Header 200 {string} X-Cache "HIT or MISS"
// @Router /timetable [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	var query dto.TimetableQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable query"))
		return
	}
	view, hit, err := h.service.Get(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, view, nil, middleware.ExtractMeta(c))
}

// Conflicts godoc
// @Summary Conflict report over stored entries
// @Tags Timetable
// @Produce json
// @Security BearerAuth
// @Param year query int false "Narrow to conflicts touching this year"
// @Param section query string false "Narrow to conflicts touching this section"
// @Success 200 {object} response.Envelope
// @Router /timetable/conflicts [get]
func (h *TimetableHandler) Conflicts(c *gin.Context) {
	var query dto.ConflictQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid conflict query"))
		return
	}
	report, err := h.service.Conflicts(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Check godoc
// @Summary Audit caller-supplied entries
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CheckConflictsRequest true "Entries to audit"
// @Success 200 {object} response.Envelope
// @Router /timetable/conflicts/check [post]
func (h *TimetableHandler) Check(c *gin.Context) {
	var req dto.CheckConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid check payload"))
		return
	}
	report, err := h.service.Check(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// AddEntry godoc
// @Summary Place a manual entry
// @Description Fails with 409 when the partition slot is taken. Teacher clashes with other sections are reported, not rejected.
// @Tags Timetable
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateEntryRequest true "Entry payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetable/entries [post]
func (h *TimetableHandler) AddEntry(c *gin.Context) {
	var req dto.CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid entry payload"))
		return
	}
	res, err := h.service.AddEntry(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// RemoveEntry godoc
// @Summary Remove an entry
// @Tags Timetable
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /timetable/entries/{id} [delete]
func (h *TimetableHandler) RemoveEntry(c *gin.Context) {
	if err := h.service.RemoveEntry(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Download partition timetable
// @Tags Timetable
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param year query int true "Year"
// @Param section query string true "Section"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Router /timetable/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil || query.Year <= 0 || query.Section == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year and section are required"))
		return
	}
	file, err := h.exporter.Render(c.Request.Context(), query.Year, query.Section, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
