package handlers

import (
	"fmt"
	"net/http"
	"time"

	"sitestats/internal/realtime"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

// RealtimeHandler handles real-time streaming endpoints
type RealtimeHandler struct {
	collector *realtime.MetricsCollector
	interval  time.Duration
	logger    *pterm.Logger
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(collector *realtime.MetricsCollector, interval time.Duration, logger *pterm.Logger) *RealtimeHandler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &RealtimeHandler{
		collector: collector,
		interval:  interval,
		logger:    logger,
	}
}

// StreamMetrics streams live visit metrics via Server-Sent Events
func (h *RealtimeHandler) StreamMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Debug("Client connected to real-time metrics stream",
		h.logger.Args("client_ip", c.ClientIP()))

	// First event goes out immediately
	if !h.writeEvent(c) {
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			h.logger.Debug("Client disconnected from real-time stream",
				h.logger.Args("client_ip", c.ClientIP()))
			return

		case <-ticker.C:
			if !h.writeEvent(c) {
				return
			}
		}
	}
}

func (h *RealtimeHandler) writeEvent(c *gin.Context) bool {
	data, err := json.Marshal(h.collector.GetMetrics())
	if err != nil {
		h.logger.Error("Failed to marshal metrics", h.logger.Args("error", err))
		return true
	}

	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		h.logger.Debug("Failed to write SSE data", h.logger.Args("error", err))
		return false
	}

	c.Writer.Flush()
	return true
}

// GetCurrentMetrics returns a single snapshot of current metrics
func (h *RealtimeHandler) GetCurrentMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.collector.GetMetrics())
}
