package database

import (
	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// OptimizeDatabase verifies SQLite settings and creates the query indexes
// that AutoMigrate does not express
func OptimizeDatabase(db *gorm.DB, logger *pterm.Logger) error {
	logger.Debug("Applying database optimizations...")

	var journalMode string
	if err := db.Raw("PRAGMA journal_mode").Scan(&journalMode).Error; err != nil {
		logger.Warn("Failed to check journal mode", logger.Args("error", err))
	} else if journalMode != "wal" {
		logger.Warn("Database not in WAL mode", logger.Args("mode", journalMode))
	} else {
		logger.Trace("Database journal mode verified", logger.Args("mode", journalMode))
	}

	// IF NOT EXISTS keeps this idempotent across restarts
	indexes := []string{
		// Load order and retention deletes
		`CREATE INDEX IF NOT EXISTS idx_visits_order
		 ON visits(visited_at, id)`,

		// Unique-visitor counting per window
		`CREATE INDEX IF NOT EXISTS idx_visits_ip_time
		 ON visits(client_ip, visited_at DESC)`,

		// Bot traffic only
		`CREATE INDEX IF NOT EXISTS idx_visits_bots
		 ON visits(visited_at DESC, client_ip)
		 WHERE is_bot = 1`,
	}

	indexCount := 0
	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			logger.Warn("Failed to create index", logger.Args("error", err))
			return err
		}
		indexCount++
	}

	logger.Debug("Performance indexes verified", logger.Args("count", indexCount))

	if err := db.Exec("ANALYZE").Error; err != nil {
		logger.Warn("Failed to analyze database", logger.Args("error", err))
	} else {
		logger.Trace("Database statistics analyzed")
	}

	logger.Debug("Database optimizations completed")
	return nil
}
