package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simutrador/marketdata/internal/models"
	"github.com/simutrador/marketdata/internal/services"
)

// UpdateService is the coordinator surface the handler needs.
type UpdateService interface {
	Submit(req models.UpdateRequest) (string, error)
	GetStatus(requestID string) (models.RequestRecord, error)
	ListActive() []models.ActiveUpdateSummary
	Cancel(requestID string) error
}

type UpdateHandler struct {
	coordinator UpdateService
}

func NewUpdateHandler(coordinator UpdateService) *UpdateHandler {
	return &UpdateHandler{coordinator: coordinator}
}

// StartUpdateRequest is the submission payload. Dates use YYYY-MM-DD.
type StartUpdateRequest struct {
	Symbols          []string `json:"symbols"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	ForceValidation  bool     `json:"force_validation"`
	MaxConcurrent    int      `json:"max_concurrent"`
	EnableResampling bool     `json:"enable_resampling"`
}

type StartUpdateResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type StatusResponse struct {
	RequestID  string                 `json:"request_id"`
	Status     models.RequestStatus   `json:"status"`
	IsComplete bool                   `json:"is_complete"`
	Progress   models.OverallProgress `json:"progress"`
	Summary    *models.Summary        `json:"summary,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// StartUpdate handles POST /api/v1/update/start.
func (h *UpdateHandler) StartUpdate(c *gin.Context) {
	var body StartUpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	req := models.UpdateRequest{
		Symbols:          body.Symbols,
		ForceValidation:  body.ForceValidation,
		MaxConcurrent:    body.MaxConcurrent,
		EnableResampling: body.EnableResampling,
	}
	var err error
	if req.StartDate, err = parseDate(body.StartDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date: " + err.Error()})
		return
	}
	if req.EndDate, err = parseDate(body.EndDate); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date: " + err.Error()})
		return
	}

	requestID, err := h.coordinator.Submit(req)
	if err != nil {
		var invalid *services.InvalidRequestError
		var conflict *services.ConflictError
		switch {
		case errors.As(err, &invalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, StartUpdateResponse{
		RequestID: requestID,
		Status:    "started",
		Message:   "update request accepted",
	})
}

// GetStatus handles GET /api/v1/update/status/:id.
func (h *UpdateHandler) GetStatus(c *gin.Context) {
	record, err := h.coordinator.GetStatus(c.Param("id"))
	if err != nil {
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		RequestID:  record.RequestID,
		Status:     record.Status,
		IsComplete: record.IsComplete(),
		Progress:   record.Progress,
		Summary:    record.Summary,
		Error:      record.Error,
	})
}

// GetProgress handles GET /api/v1/update/status/:id/progress, returning the
// full per-symbol breakdown.
func (h *UpdateHandler) GetProgress(c *gin.Context) {
	record, err := h.coordinator.GetStatus(c.Param("id"))
	if err != nil {
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListActive handles GET /api/v1/update/active.
func (h *UpdateHandler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_updates": h.coordinator.ListActive()})
}

// CancelUpdate handles DELETE /api/v1/update/:id.
func (h *UpdateHandler) CancelUpdate(c *gin.Context) {
	if err := h.coordinator.Cancel(c.Param("id")); err != nil {
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "update cancelled"})
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
