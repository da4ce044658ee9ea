package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type exportJobs interface {
	CreateJob(ctx context.Context, req dto.CreateExportRequest, actorID string) (*dto.ExportJobView, error)
	GetJob(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportJobView, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler exposes asynchronous export jobs and signed downloads.
type ExportHandler struct {
	service exportJobs
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc *service.ExportJobService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Create godoc
// @Summary Queue a timetable export
// @Tags Exports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateExportRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) Create(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	var req dto.CreateExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	job, err := h.service.CreateJob(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Get godoc
// @Summary Export job status
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) Get(c *gin.Context) {
	claims, ok := requireUser(c)
	if !ok {
		return
	}
	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export
// @Description The signed token is the credential; no bearer token is needed.
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 410 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.service.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Type", download.ContentType)
	c.FileAttachment(download.Path, download.Filename)
}
