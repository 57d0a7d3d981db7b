package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"sitestats/internal/database/repositories"
	"sitestats/internal/visits"

	"github.com/pterm/pterm"
)

// BatchWriter inserts records, skipping ones already stored
type BatchWriter interface {
	CreateBatch(ctx context.Context, records []visits.VisitRecord) (int64, error)
}

// ImportResult summarizes one import pass
type ImportResult struct {
	Path     string
	Seen     int
	Scanned  int
	Imported int64
	Duration time.Duration
}

// Importer copies a legacy visits.json into the SQLite store
type Importer struct {
	path    string
	source  visits.Loader
	target  BatchWriter
	sources repositories.ImportSourceRepository
	logger  *pterm.Logger
	mu      sync.Mutex
}

// NewImporter creates an importer for the legacy file at path
func NewImporter(path string, target BatchWriter, sources repositories.ImportSourceRepository, logger *pterm.Logger) *Importer {
	return &Importer{
		path:    filepath.Clean(path),
		source:  visits.NewFileStore(path, logger),
		target:  target,
		sources: sources,
		logger:  logger,
	}
}

// Path returns the watched legacy file
func (i *Importer) Path() string {
	return i.path
}

// Run imports records not seen on earlier passes. When the file was only appended
// to since the last pass, just the new tail is sent; otherwise every record is sent
// and duplicates are dropped by hash.
func (i *Importer) Run(ctx context.Context) (*ImportResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	started := time.Now()
	collection := i.source.Load(ctx)
	records := collection.Visits

	state, err := i.sources.FindByPath(ctx, i.path)
	if err != nil {
		return nil, fmt.Errorf("load import state for %s: %w", i.path, err)
	}

	offset := 0
	if state != nil && state.RecordsSeen > 0 && int(state.RecordsSeen) <= len(records) &&
		records[state.RecordsSeen-1].Hash() == state.LastHash {
		offset = int(state.RecordsSeen)
	}
	pending := records[offset:]

	i.logger.Debug("Importing legacy visits",
		i.logger.Args("path", i.path, "records", len(records), "pending", len(pending)))

	imported, err := i.target.CreateBatch(ctx, pending)
	if err != nil {
		i.logger.WithCaller().Error("Legacy import failed",
			i.logger.Args("path", i.path, "error", err))
		return nil, fmt.Errorf("import %s: %w", i.path, err)
	}

	lastHash := ""
	if len(records) > 0 {
		lastHash = records[len(records)-1].Hash()
	}
	if err := i.sources.RecordImport(ctx, i.path, int64(len(records)), imported, collection.TotalVisits, lastHash); err != nil {
		return nil, fmt.Errorf("save import state for %s: %w", i.path, err)
	}

	result := &ImportResult{
		Path:     i.path,
		Seen:     len(records),
		Scanned:  len(pending),
		Imported: imported,
		Duration: time.Since(started),
	}

	if imported > 0 {
		i.logger.Info("Legacy visits imported",
			i.logger.Args("path", i.path, "imported", imported, "scanned", len(pending)))
	}

	return result, nil
}
