package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sitestats/internal/database"
	"sitestats/internal/database/repositories"
	"sitestats/internal/visits"

	"github.com/pterm/pterm"
)

type memoryAppender struct {
	records []visits.VisitRecord
	err     error
}

func (m *memoryAppender) Append(ctx context.Context, record visits.VisitRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

func testLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
}

type testEnv struct {
	legacy  *visits.FileStore
	visits  repositories.VisitRepository
	sources repositories.ImportSourceRepository
	path    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.NewConnection(&database.Config{
		Path:         filepath.Join(dir, "sitestats.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		ConnMaxLife:  time.Hour,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	path := filepath.Join(dir, "legacy", "visits.json")
	return &testEnv{
		legacy:  visits.NewFileStore(path, testLogger()),
		visits:  repositories.NewVisitRepository(db, testLogger()),
		sources: repositories.NewImportSourceRepository(db),
		path:    path,
	}
}

func (e *testEnv) appendLegacy(t *testing.T, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		record := visits.VisitRecord{
			Timestamp: visits.FormatTimestamp(start.Add(time.Duration(i) * time.Second)),
			IP:        "10.0.0.1",
			UserAgent: visits.LegacyUserAgent("Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"),
		}
		if err := e.legacy.Append(context.Background(), record); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestRecorder_Record(t *testing.T) {
	store := &memoryAppender{}
	recorder := NewRecorder(store, testLogger())
	recorder.now = func() time.Time { return time.Date(2025, 5, 15, 12, 6, 30, 0, time.UTC) }

	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) Mobile/15E148 Safari/604.1"
	record, err := recorder.Record(context.Background(), Request{
		IP:        "::ffff:192.168.0.10",
		UserAgent: ua,
		Referrer:  "https://google.com",
		URL:       "/?utm=1",
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("Expected 1 stored record, got %d", len(store.records))
	}
	if record.Timestamp != "2025-05-15T12:06:30.000Z" {
		t.Errorf("Unexpected timestamp: %s", record.Timestamp)
	}
	if record.IP != "::ffff:192.168.0.10" {
		t.Errorf("Expected raw IP kept, got %s", record.IP)
	}

	ua2 := record.UserAgent
	if ua2.Kind != visits.UserAgentStructured {
		t.Fatalf("Expected structured user agent, got %s", ua2.Kind)
	}
	if ua2.Descriptor.Browser != "Safari" || ua2.Descriptor.Device != "mobile" || !ua2.Descriptor.IsMobile {
		t.Errorf("Unexpected descriptor: %+v", ua2.Descriptor)
	}
	if ua2.Descriptor.Source != ua {
		t.Errorf("Expected raw header as source, got %s", ua2.Descriptor.Source)
	}
}

func TestRecorder_RecordError(t *testing.T) {
	store := &memoryAppender{err: errors.New("read-only filesystem")}
	recorder := NewRecorder(store, testLogger())

	if _, err := recorder.Record(context.Background(), Request{IP: "1.1.1.1"}); err == nil {
		t.Error("Expected append error to propagate")
	}
}

func TestImporter_Run(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	env.appendLegacy(t, 5, start)
	importer := NewImporter(env.path, env.visits, env.sources, testLogger())

	result, err := importer.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Imported != 5 || result.Scanned != 5 {
		t.Errorf("Expected 5 imported of 5 scanned, got %+v", result)
	}

	// Appending only sends the new tail
	env.appendLegacy(t, 2, start.Add(time.Hour))
	result, err = importer.Run(ctx)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if result.Imported != 2 || result.Scanned != 2 {
		t.Errorf("Expected 2 imported of 2 scanned, got %+v", result)
	}

	// Nothing new
	result, err = importer.Run(ctx)
	if err != nil {
		t.Fatalf("Third run failed: %v", err)
	}
	if result.Imported != 0 {
		t.Errorf("Expected nothing imported, got %d", result.Imported)
	}

	count, _ := env.visits.Count(ctx)
	if count != 7 {
		t.Errorf("Expected 7 visits in SQLite, got %d", count)
	}

	state, err := env.sources.FindByPath(ctx, importer.Path())
	if err != nil || state == nil {
		t.Fatalf("Expected import state, got %+v (err %v)", state, err)
	}
	if state.RecordsSeen != 7 || state.RecordsImported != 7 || state.LastTotalVisits != 7 {
		t.Errorf("Unexpected import state: %+v", state)
	}
}

func TestImporter_RewrittenFileIsRescanned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	env.appendLegacy(t, 4, start)
	importer := NewImporter(env.path, env.visits, env.sources, testLogger())
	if _, err := importer.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Retention rewrites the file, so the saved offset no longer lines up
	if _, err := env.legacy.DeleteBefore(ctx, start.Add(2*time.Second)); err != nil {
		t.Fatalf("DeleteBefore failed: %v", err)
	}
	env.appendLegacy(t, 1, start.Add(time.Hour))

	result, err := importer.Run(ctx)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if result.Scanned != 3 || result.Imported != 1 {
		t.Errorf("Expected full rescan importing only the new record, got %+v", result)
	}
}

func TestImporter_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	result, err := NewImporter(env.path, env.visits, env.sources, testLogger()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Seen != 0 || result.Imported != 0 {
		t.Errorf("Expected empty import, got %+v", result)
	}
}

func TestWatcher_ImportsOnChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	// Directory must exist before watching
	env.appendLegacy(t, 1, start)

	watcher := NewWatcher(NewImporter(env.path, env.visits, env.sources, testLogger()), 50*time.Millisecond, testLogger())
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	env.appendLegacy(t, 2, start.Add(time.Minute))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if count, _ := env.visits.Count(ctx); count == 3 && watcher.Runs() > 0 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	if count, _ := env.visits.Count(ctx); count != 3 {
		t.Errorf("Expected 3 imported visits after file change, got %d", count)
	}
	if watcher.Runs() == 0 {
		t.Error("Expected at least one triggered import")
	}
}

func TestWatcher_StopStart(t *testing.T) {
	env := newTestEnv(t)
	env.appendLegacy(t, 1, time.Now())

	watcher := NewWatcher(NewImporter(env.path, env.visits, env.sources, testLogger()), 0, testLogger())
	for i := 0; i < 2; i++ {
		if err := watcher.Start(); err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		if err := watcher.Start(); err != nil {
			t.Fatalf("Repeated Start %d failed: %v", i, err)
		}
		watcher.Stop()
	}
	watcher.Stop()
}

func TestWatcher_MissingDirectory(t *testing.T) {
	env := newTestEnv(t)

	watcher := NewWatcher(NewImporter(env.path, env.visits, env.sources, testLogger()), 0, testLogger())
	if err := watcher.Start(); err == nil {
		watcher.Stop()
		t.Error("Expected error watching a directory that does not exist")
	}
}
