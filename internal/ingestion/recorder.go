package ingestion

import (
	"context"
	"time"

	"sitestats/internal/parser/useragent"
	"sitestats/internal/visits"

	"github.com/pterm/pterm"
)

// Request is the part of an inbound HTTP request that becomes a visit
type Request struct {
	IP        string
	UserAgent string
	Referrer  string
	URL       string
}

// Recorder turns tracked requests into visit records
type Recorder struct {
	store  visits.Appender
	logger *pterm.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder appending to store
func NewRecorder(store visits.Appender, logger *pterm.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Build classifies the user agent once so stored records always carry the structured descriptor
func (r *Recorder) Build(req Request) visits.VisitRecord {
	agent := useragent.Classify(req.UserAgent)

	return visits.VisitRecord{
		Timestamp: visits.FormatTimestamp(r.now()),
		IP:        req.IP,
		UserAgent: visits.StructuredUserAgent(agent.Descriptor(req.UserAgent)),
		Referrer:  req.Referrer,
		URL:       req.URL,
	}
}

// Record builds and appends one visit
func (r *Recorder) Record(ctx context.Context, req Request) (visits.VisitRecord, error) {
	record := r.Build(req)

	if err := r.store.Append(ctx, record); err != nil {
		r.logger.WithCaller().Error("Failed to record visit",
			r.logger.Args("ip", req.IP, "url", req.URL, "error", err))
		return record, err
	}

	r.logger.Trace("Visit recorded",
		r.logger.Args(
			"ip", record.IP,
			"browser", record.UserAgent.Descriptor.Browser,
			"device", record.UserAgent.Descriptor.Device,
			"url", record.URL,
		))
	return record, nil
}
