package handlers

import (
	"context"
	"net/http"

	"sitestats/internal/stats"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// StatsProcessor builds the full visit report
type StatsProcessor interface {
	ProcessAllStats(ctx context.Context) (*stats.StatsReport, error)
}

// VisitCounter reports the stored visit counter
type VisitCounter interface {
	Count(ctx context.Context) (int64, error)
}

// VisitsHandler serves visit analytics
type VisitsHandler struct {
	processor StatsProcessor
	counter   VisitCounter
	logger    *pterm.Logger
}

// NewVisitsHandler creates a new visits handler
func NewVisitsHandler(processor StatsProcessor, counter VisitCounter, logger *pterm.Logger) *VisitsHandler {
	return &VisitsHandler{
		processor: processor,
		counter:   counter,
		logger:    logger,
	}
}

// GetStats returns the full stats report
func (h *VisitsHandler) GetStats(c *gin.Context) {
	report, err := h.processor.ProcessAllStats(c.Request.Context())
	if err != nil {
		h.logger.WithCaller().Error("Failed to process visit stats", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process visit stats"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetCount returns the stored visit counter
func (h *VisitsHandler) GetCount(c *gin.Context) {
	count, err := h.counter.Count(c.Request.Context())
	if err != nil {
		h.logger.WithCaller().Error("Failed to count visits", h.logger.Args("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count visits"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"totalVisits": count})
}
