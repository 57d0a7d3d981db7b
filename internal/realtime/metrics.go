package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

// VisitCounter reports the stored visit counter
type VisitCounter interface {
	Count(ctx context.Context) (int64, error)
}

// MetricsCollector samples the visit counter to derive a live visit rate
type MetricsCollector struct {
	counter VisitCounter
	logger  *pterm.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Current metrics
	mu              sync.RWMutex
	totalVisits     int64
	visitsPerMinute float64
	lastUpdate      time.Time
	sampled         bool
}

// RealtimeMetrics represents current live statistics
type RealtimeMetrics struct {
	TotalVisits     int64     `json:"totalVisits"`
	VisitsPerMinute float64   `json:"visitsPerMinute"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewMetricsCollector creates a new real-time metrics collector
func NewMetricsCollector(counter VisitCounter, logger *pterm.Logger) *MetricsCollector {
	return &MetricsCollector{
		counter:    counter,
		logger:     logger,
		lastUpdate: time.Now(),
	}
}

// Start begins collecting metrics at regular intervals
func (m *MetricsCollector) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.collect(ctx, time.Now())
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.collect(ctx, now)
			}
		}
	}()

	m.logger.Info("Real-time metrics collector started",
		m.logger.Args("interval", interval.String()))
}

// Stop halts collection
func (m *MetricsCollector) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
}

// collect reads the counter and turns the delta since the last sample into a per-minute rate
func (m *MetricsCollector) collect(ctx context.Context, now time.Time) {
	total, err := m.counter.Count(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect real-time metrics", m.logger.Args("error", err))
		return
	}

	m.mu.Lock()
	rate := m.visitsPerMinute
	if m.sampled {
		elapsed := now.Sub(m.lastUpdate)
		delta := total - m.totalVisits
		switch {
		case delta < 0:
			// Retention removed rows; the counter restarted below the last sample
			rate = 0
		case elapsed > 0:
			rate = float64(delta) / elapsed.Minutes()
		}
	}
	m.totalVisits = total
	m.visitsPerMinute = rate
	m.lastUpdate = now
	m.sampled = true
	m.mu.Unlock()

	m.logger.Trace("Collected real-time metrics",
		m.logger.Args("total_visits", total, "visits_per_minute", rate))
}

// GetMetrics returns the current metrics snapshot
func (m *MetricsCollector) GetMetrics() *RealtimeMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return &RealtimeMetrics{
		TotalVisits:     m.totalVisits,
		VisitsPerMinute: m.visitsPerMinute,
		Timestamp:       m.lastUpdate,
	}
}
