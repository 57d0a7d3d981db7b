package models

import (
	"time"
)

// Visit is one recorded page visit
type Visit struct {
	ID         uint       `gorm:"primaryKey;autoIncrement"`
	RecordHash string     `gorm:"uniqueIndex:idx_record_hash;size:64"` // SHA256 of an imported record, a UUID for live hits
	Timestamp  string     `gorm:"not null"`                            // ISO-8601 string as received
	VisitedAt  *time.Time `gorm:"index:idx_visited_at"`                // Parsed timestamp in UTC, nil when unparsable
	ClientIP   string     `gorm:"index:idx_client_ip"`

	// User-Agent as stored on the record: missing, structured or legacy
	UserAgentKind string `gorm:"not null;default:missing"`
	UserAgentRaw  string

	// Structured descriptor, or the flat legacy fields when the kind is missing
	Browser        string
	BrowserVersion string
	OS             string
	Platform       string
	UASource       string
	Device         string `gorm:"index:idx_device"`
	IsMobile       bool
	IsDesktop      bool
	IsTablet       bool
	IsBot          bool

	Referrer string
	URL      string

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Visit) TableName() string {
	return "visits"
}
