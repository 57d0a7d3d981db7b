package ingestion

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// DefaultDebounce groups the burst of events a single rewrite produces
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-runs the importer whenever the legacy file changes.
// It can be stopped and started again (maintenance windows do this).
type Watcher struct {
	importer *Importer
	debounce time.Duration
	logger   *pterm.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runs    int
}

// NewWatcher creates a watcher for importer's file
func NewWatcher(importer *Importer, debounce time.Duration, logger *pterm.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		importer: importer,
		debounce: debounce,
		logger:   logger,
	}
}

// Start watches the file's directory; renames and recreations of the file are picked up too
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("Watcher already running, skipping start")
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	dir := filepath.Dir(w.importer.Path())
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(ctx, fsw)

	w.logger.Info("Watching legacy visits file",
		w.logger.Args("path", w.importer.Path(), "debounce", w.debounce.String()))
	return nil
}

// Stop halts watching and waits for an in-flight import to finish
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
	w.logger.Debug("Legacy file watcher stopped")
}

// Runs returns how many imports the watcher has triggered
func (w *Watcher) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.importer.Path() {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Trace("Legacy file changed", w.logger.Args("op", event.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", w.logger.Args("error", err))

		case <-timer.C:
			if _, err := w.importer.Run(ctx); err != nil {
				w.logger.WithCaller().Error("Import after file change failed", w.logger.Args("error", err))
			}
			w.mu.Lock()
			w.runs++
			w.mu.Unlock()
		}
	}
}
