// Package stats aggregates stored visits into the dashboard report.
package stats

import (
	"context"
	"fmt"
	"time"

	"sitestats/internal/visits"

	"github.com/pterm/pterm"
)

// Processor builds a StatsReport from the visit store.
// It keeps no state between calls, so concurrent calls are independent.
type Processor struct {
	loader   visits.Loader
	locator  Locator
	location *time.Location
	logger   *pterm.Logger
	now      func() time.Time
}

// NewProcessor creates a processor. A nil locator uses the IP heuristic and a nil
// location buckets in the process's local time zone.
func NewProcessor(loader visits.Loader, locator Locator, location *time.Location, logger *pterm.Logger) *Processor {
	if locator == nil {
		locator = HeuristicLocator{}
	}
	if location == nil {
		location = time.Local
	}
	return &Processor{
		loader:   loader,
		locator:  locator,
		location: location,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessAllStats loads the collection and runs every reducer over it
func (p *Processor) ProcessAllStats(ctx context.Context) (report *StatsReport, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	started := time.Now()
	collection := p.loader.Load(ctx)

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithCaller().Error("Stats aggregation failed",
				p.logger.Args("panic", r, "records", len(collection.Visits)))
			report = nil
			err = fmt.Errorf("aggregating %d visits: %v", len(collection.Visits), r)
		}
	}()

	if len(collection.Visits) == 0 {
		p.logger.Debug("No visits stored, returning empty report")
		return p.Aggregate(nil), nil
	}

	report = p.Aggregate(collection.Visits)

	p.logger.Debug("Stats report generated",
		p.logger.Args(
			"visits", report.Summary.TotalVisits,
			"unique_visitors", report.Summary.UniqueVisitors,
			"stored_counter", collection.TotalVisits,
			"duration_ms", time.Since(started).Milliseconds(),
		))

	return report, nil
}

// Aggregate runs the summary and the four reducers over records.
// An empty slice yields the zero report: dense buckets zero-filled, sparse maps empty.
func (p *Processor) Aggregate(records []visits.VisitRecord) *StatsReport {
	now := p.now()
	prepared := prepare(records, p.locator)

	return &StatsReport{
		Summary:      summarize(prepared, now),
		Devices:      reduceDevices(prepared),
		Locations:    reduceLocations(prepared),
		TimeAnalysis: reduceTemporal(prepared, p.location),
		Trends:       reduceTrends(prepared, now),
	}
}
