package visits

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pterm/pterm"
)

// FileStore keeps the visit log as a single JSON document on disk
type FileStore struct {
	path   string
	logger *pterm.Logger
	mu     sync.Mutex // serializes read-modify-write cycles

	// Counter from the last read, valid while the file's size and mtime match
	countMu    sync.Mutex
	count      int64
	countSize  int64
	countMtime time.Time
	countValid bool
}

// NewFileStore creates a store backed by the JSON file at path
func NewFileStore(path string, logger *pterm.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger,
	}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the visit log, returning the empty collection on any failure
func (s *FileStore) Load(ctx context.Context) *Collection {
	collection, err := s.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("Visits file does not exist yet", s.logger.Args("path", s.path))
		} else {
			s.logger.Warn("Failed to load visits file, using empty collection",
				s.logger.Args("path", s.path, "error", err))
		}
		return EmptyCollection()
	}

	s.logger.Trace("Loaded visits file",
		s.logger.Args("path", s.path, "records", len(collection.Visits)))
	return collection
}

// Append adds a record and bumps the running counter.
// A missing file is created; a corrupt file is left untouched and an error returned.
func (s *FileStore) Append(ctx context.Context, record VisitRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read visits file: %w", err)
		}
		collection = EmptyCollection()
	}

	collection.TotalVisits++
	collection.Visits = append(collection.Visits, record)

	if err := s.write(collection); err != nil {
		s.logger.WithCaller().Error("Failed to save visits file",
			s.logger.Args("path", s.path, "error", err))
		return err
	}

	s.logger.Trace("Recorded visit", s.logger.Args("ip", record.IP, "total", collection.TotalVisits))
	return nil
}

// Count returns the stored running counter (0 when the file is missing or unreadable).
// The file is only parsed again when its size or modification time changed.
func (s *FileStore) Count(ctx context.Context) (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, nil
	}

	s.countMu.Lock()
	if s.countValid && info.Size() == s.countSize && info.ModTime().Equal(s.countMtime) {
		count := s.count
		s.countMu.Unlock()
		return count, nil
	}
	s.countMu.Unlock()

	return s.Load(ctx).TotalVisits, nil
}

// remember caches the counter for the file state described by info
func (s *FileStore) remember(info os.FileInfo, total int64) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	s.count = total
	s.countSize = info.Size()
	s.countMtime = info.ModTime()
	s.countValid = true
}

// DeleteBefore drops records whose timestamp is older than cutoff.
// Records with an unparsable timestamp are kept.
func (s *FileStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collection, err := s.read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read visits file: %w", err)
	}

	kept := make([]VisitRecord, 0, len(collection.Visits))
	for _, record := range collection.Visits {
		if t, ok := record.Time(); ok && t.Before(cutoff) {
			continue
		}
		kept = append(kept, record)
	}

	deleted := int64(len(collection.Visits) - len(kept))
	if deleted == 0 {
		return 0, nil
	}

	collection.Visits = kept
	if err := s.write(collection); err != nil {
		return 0, err
	}
	return deleted, nil
}

// read decodes the document record by record. Entries that are not JSON objects
// are skipped with a warning; the next write drops them.
func (s *FileStore) read() (*Collection, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var stored storedCollection
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("invalid visits JSON: %w", err)
	}

	collection := &Collection{
		TotalVisits: looseInt(stored.TotalVisits),
		Visits:      make([]VisitRecord, 0, len(stored.Visits)),
	}

	skipped := 0
	for i, raw := range stored.Visits {
		var record VisitRecord
		if err := record.UnmarshalJSON(raw); err != nil {
			skipped++
			s.logger.Trace("Skipping malformed visit record",
				s.logger.Args("path", s.path, "index", i, "error", err))
			continue
		}
		collection.Visits = append(collection.Visits, record)
	}
	if skipped > 0 {
		s.logger.Warn("Skipped malformed visit records",
			s.logger.Args("path", s.path, "skipped", skipped, "kept", len(collection.Visits)))
	}

	s.remember(info, collection.TotalVisits)
	return collection, nil
}

// write replaces the file atomically via a temp file in the same directory
func (s *FileStore) write(collection *Collection) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create visits directory: %w", err)
	}

	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("encode visits: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".visits-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace visits file: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.remember(info, collection.TotalVisits)
	}
	return nil
}
