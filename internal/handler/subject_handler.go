package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type subjectCatalog interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Subject, error)
	Create(ctx context.Context, req service.CreateSubjectRequest) (*models.Subject, error)
	Update(ctx context.Context, id string, req service.UpdateSubjectRequest) (*models.Subject, error)
	Delete(ctx context.Context, id string) error
}

// SubjectHandler exposes subject endpoints.
type SubjectHandler struct {
	service subjectCatalog
}

// NewSubjectHandler constructs the handler.
func NewSubjectHandler(svc *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{service: svc}
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Security BearerAuth
// @Param year query int false "Year filter"
// @Param section query string false "Section filter"
// @Param teacher_id query string false "Assigned teacher filter"
// @Param search query string false "Search by name or code"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	filter := models.SubjectFilter{
		Year:      queryInt(c, "year", 0),
		Section:   strings.TrimSpace(c.Query("section")),
		TeacherID: strings.TrimSpace(c.Query("teacher_id")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "limit", 20),
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	subjects, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, pagination)
}

// Get godoc
// @Summary Get subject
// @Tags Subjects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	subject, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	var req service.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}
	subject, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param payload body service.UpdateSubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Router /subjects/{id} [put]
func (h *SubjectHandler) Update(c *gin.Context) {
	var req service.UpdateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}
	subject, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Delete godoc
// @Summary Delete subject
// @Description Deletes the subject and its scheduled entries
// @Tags Subjects
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 204
// @Router /subjects/{id} [delete]
func (h *SubjectHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
