package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sitestats/internal/visits"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// IngestionController pauses background writers during maintenance
type IngestionController interface {
	Stop()
	Start() error
}

// CleanupService enforces the visit retention window
type CleanupService struct {
	pruner          visits.Pruner
	db              *gorm.DB // nil for the JSON store, which has nothing to VACUUM
	logger          *pterm.Logger
	retentionDays   int
	cleanupInterval time.Duration
	cleanupTime     string
	vacuumEnabled   bool
	ingestion       IngestionController
	stopChan        chan struct{}
	running         bool

	mu              sync.Mutex
	lastRunTime     time.Time
	recordsDeleted  int64
	cleanupDuration time.Duration
	vacuumDuration  time.Duration
}

// CleanupStats holds statistics about cleanup operations
type CleanupStats struct {
	LastRunTime      time.Time
	RecordsDeleted   int64
	VacuumDuration   time.Duration
	CleanupDuration  time.Duration
	NextScheduledRun time.Time
}

// NewCleanupService creates a new cleanup service. db and ingestion may be nil.
func NewCleanupService(pruner visits.Pruner, db *gorm.DB, logger *pterm.Logger, retentionDays int, cleanupInterval time.Duration, cleanupTime string, vacuumEnabled bool, ingestion IngestionController) *CleanupService {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &CleanupService{
		pruner:          pruner,
		db:              db,
		logger:          logger,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		cleanupTime:     cleanupTime,
		vacuumEnabled:   vacuumEnabled,
		ingestion:       ingestion,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the cleanup service
func (s *CleanupService) Start() {
	if s.retentionDays <= 0 {
		s.logger.Info("Data retention disabled (DB_RETENTION_DAYS=0), cleanup service not started")
		return
	}

	s.running = true
	s.logger.Info("Starting visit cleanup service",
		s.logger.Args(
			"retention_days", s.retentionDays,
			"cleanup_time", s.cleanupTime,
			"vacuum_enabled", s.vacuumEnabled && s.db != nil,
		))

	go s.scheduledCleanupLoop()
}

// Stop stops the cleanup service
func (s *CleanupService) Stop() {
	if !s.running {
		return
	}

	s.logger.Info("Stopping visit cleanup service")
	close(s.stopChan)
	s.running = false
}

// scheduledCleanupLoop runs cleanup at the scheduled time daily
func (s *CleanupService) scheduledCleanupLoop() {
	select {
	case <-s.stopChan:
		return
	case <-time.After(time.Minute):
	}

	for {
		now := time.Now()
		targetTime := nextRun(now, s.parseCleanupTime(now))

		waitDuration := time.Until(targetTime)
		s.logger.Debug("Next cleanup scheduled",
			s.logger.Args("next_run", targetTime.Format("2006-01-02 15:04:05"), "wait_duration", waitDuration.Round(time.Minute)))

		select {
		case <-s.stopChan:
			return
		case <-time.After(min(waitDuration, s.cleanupInterval)):
			if time.Now().After(targetTime.Add(-1 * time.Minute)) {
				if _, err := s.RunOnce(context.Background()); err != nil {
					s.logger.WithCaller().Error("Scheduled cleanup failed", s.logger.Args("error", err))
				}
			}
		}
	}
}

// parseCleanupTime parses the cleanup time string (HH:MM) and returns that time on baseTime's day
func (s *CleanupService) parseCleanupTime(baseTime time.Time) time.Time {
	cleanupTime, err := time.Parse("15:04", s.cleanupTime)
	if err != nil {
		s.logger.Warn("Invalid cleanup time format, using 02:00",
			s.logger.Args("configured", s.cleanupTime, "error", err))
		cleanupTime, _ = time.Parse("15:04", "02:00")
	}

	return time.Date(
		baseTime.Year(), baseTime.Month(), baseTime.Day(),
		cleanupTime.Hour(), cleanupTime.Minute(), 0, 0,
		baseTime.Location(),
	)
}

// nextRun moves a target that has already passed today to tomorrow
func nextRun(now, target time.Time) time.Time {
	if now.After(target) {
		return target.Add(24 * time.Hour)
	}
	return target
}

// RunOnce deletes visits older than the retention window and returns how many were removed
func (s *CleanupService) RunOnce(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, fmt.Errorf("retention disabled (DB_RETENTION_DAYS=0)")
	}

	s.logger.Info("Starting visit cleanup",
		s.logger.Args("retention_days", s.retentionDays))

	startTime := time.Now()
	cutoffDate := startTime.AddDate(0, 0, -s.retentionDays)

	totalDeleted, err := s.pruner.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		s.logger.WithCaller().Error("Failed to delete old visits",
			s.logger.Args("error", err, "cutoff_date", cutoffDate.Format("2006-01-02")))
		return totalDeleted, err
	}

	cleanupDuration := time.Since(startTime)

	s.mu.Lock()
	s.lastRunTime = startTime
	s.recordsDeleted = totalDeleted
	s.cleanupDuration = cleanupDuration
	s.mu.Unlock()

	s.logger.Info("Cleanup completed",
		s.logger.Args(
			"records_deleted", totalDeleted,
			"duration", cleanupDuration.Round(time.Millisecond),
			"cutoff_date", cutoffDate.Format("2006-01-02"),
		))

	if s.vacuumEnabled && s.db != nil && totalDeleted > 0 {
		s.runVacuum(ctx)
	}

	return totalDeleted, nil
}

// runVacuum reclaims space with background ingestion paused
func (s *CleanupService) runVacuum(ctx context.Context) {
	s.logger.Info("Starting VACUUM maintenance window")

	if s.ingestion != nil {
		s.logger.Debug("Pausing ingestion for maintenance")
		s.ingestion.Stop()
		defer func() {
			if err := s.ingestion.Start(); err != nil {
				s.logger.WithCaller().Error("Failed to restart ingestion after VACUUM",
					s.logger.Args("error", err))
				return
			}
			s.logger.Debug("Ingestion resumed")
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	vacuumStart := time.Now()
	if err := s.db.WithContext(ctx).Exec("VACUUM").Error; err != nil {
		s.logger.WithCaller().Error("Failed to run VACUUM", s.logger.Args("error", err))
		return
	}
	vacuumDuration := time.Since(vacuumStart)

	s.mu.Lock()
	s.vacuumDuration = vacuumDuration
	s.mu.Unlock()

	s.logger.Info("VACUUM maintenance completed",
		s.logger.Args("vacuum_duration", vacuumDuration.Round(time.Millisecond)))
}

// GetStats returns cleanup statistics
func (s *CleanupService) GetStats() *CleanupStats {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	return &CleanupStats{
		LastRunTime:      s.lastRunTime,
		RecordsDeleted:   s.recordsDeleted,
		VacuumDuration:   s.vacuumDuration,
		CleanupDuration:  s.cleanupDuration,
		NextScheduledRun: nextRun(now, s.parseCleanupTime(now)),
	}
}

// ManualCleanup triggers cleanup in the background
func (s *CleanupService) ManualCleanup() error {
	if s.retentionDays <= 0 {
		return fmt.Errorf("retention disabled (DB_RETENTION_DAYS=0)")
	}

	s.logger.Info("Manual cleanup triggered")
	go func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.WithCaller().Error("Manual cleanup failed", s.logger.Args("error", err))
		}
	}()
	return nil
}
