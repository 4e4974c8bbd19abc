package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simutrador/marketdata/internal/models"
	"github.com/simutrador/marketdata/internal/services"
)

// AnalysisService is the analyzer surface the handler needs.
type AnalysisService interface {
	Analyze(ctx context.Context, symbols []string, start, end time.Time, opts services.AnalyzeOptions) (*models.CompletenessReport, error)
}

type AnalysisHandler struct {
	analyzer AnalysisService
}

func NewAnalysisHandler(analyzer AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer}
}

// CompletenessRequest is the analysis payload. Dates use YYYY-MM-DD.
type CompletenessRequest struct {
	Symbols            []string `json:"symbols"`
	StartDate          string   `json:"start_date"`
	EndDate            string   `json:"end_date"`
	IncludeDetails     bool     `json:"include_details"`
	AutoFillGaps       bool     `json:"auto_fill_gaps"`
	MaxGapFillAttempts int      `json:"max_gap_fill_attempts"`
}

// AnalyzeCompleteness handles POST /api/v1/data-analysis/completeness.
// Malformed input is rejected with 422.
func (h *AnalysisHandler) AnalyzeCompleteness(c *gin.Context) {
	var body CompletenessRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	start, err := parseDate(body.StartDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid start_date: " + err.Error()})
		return
	}
	end, err := parseDate(body.EndDate)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid end_date: " + err.Error()})
		return
	}

	report, err := h.analyzer.Analyze(c.Request.Context(), body.Symbols, start, end, services.AnalyzeOptions{
		IncludeDetails:     body.IncludeDetails,
		AutoFillGaps:       body.AutoFillGaps,
		MaxGapFillAttempts: body.MaxGapFillAttempts,
	})
	if err != nil {
		var invalid *services.InvalidRequestError
		if errors.As(err, &invalid) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
