package models

import (
	"time"
)

// ImportSource tracks how far a legacy visits.json file has been imported
type ImportSource struct {
	Path            string `gorm:"primaryKey"`
	RecordsSeen     int64  `gorm:"default:0"` // Records read on the last pass
	RecordsImported int64  `gorm:"default:0"` // Records inserted over all passes
	LastTotalVisits int64  `gorm:"default:0"` // Stored counter at the last pass
	LastHash        string // Hash of the last record read, to detect rewrites
	LastImportAt    *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ImportSource) TableName() string {
	return "import_sources"
}
