package repositories

import (
	"context"
	"fmt"
	"time"

	"sitestats/internal/database/models"
	"sitestats/internal/visits"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Visit has ~22 columns; 500 rows stays well under SQLite's variable limit
const maxRecordsPerBatch = 500

// VisitRepository is the SQLite-backed visit log
type VisitRepository interface {
	visits.Store
	Create(ctx context.Context, visit *models.Visit) error
	CreateBatch(ctx context.Context, records []visits.VisitRecord) (int64, error)
	CountStored(ctx context.Context) (int64, error)
}

type visitRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewVisitRepository creates a new visit repository
func NewVisitRepository(db *gorm.DB, logger *pterm.Logger) VisitRepository {
	return &visitRepo{
		db:     db,
		logger: logger,
	}
}

// Create inserts a single visit row
func (r *visitRepo) Create(ctx context.Context, visit *models.Visit) error {
	if err := r.db.WithContext(ctx).Create(visit).Error; err != nil {
		r.logger.WithCaller().Error("Failed to create visit", r.logger.Args("error", err))
		return err
	}
	r.logger.Trace("Created visit", r.logger.Args("id", visit.ID, "ip", visit.ClientIP))
	return nil
}

// Append stores one live hit. Two identical hits in the same millisecond are
// still two visits, so the row gets a random identity instead of the content hash.
func (r *visitRepo) Append(ctx context.Context, record visits.VisitRecord) error {
	visit := ToModel(record)
	visit.RecordHash = uuid.NewString()
	return r.Create(ctx, &visit)
}

// CreateBatch inserts records, skipping any whose hash is already stored.
// It returns the number of rows actually inserted.
func (r *visitRepo) CreateBatch(ctx context.Context, records []visits.VisitRecord) (int64, error) {
	if len(records) == 0 {
		r.logger.Debug("Empty batch, skipping insert")
		return 0, nil
	}

	rows := make([]models.Visit, len(records))
	for i, record := range records {
		rows[i] = ToModel(record)
	}

	var inserted int64
	for start := 0; start < len(rows); start += maxRecordsPerBatch {
		end := min(start+maxRecordsPerBatch, len(rows))

		n, err := r.insertSubBatch(ctx, rows[start:end])
		if err != nil {
			r.logger.WithCaller().Error("Failed to insert sub-batch",
				r.logger.Args("batch_num", (start/maxRecordsPerBatch)+1, "count", end-start, "error", err))
			return inserted, err
		}
		inserted += n

		r.logger.Trace("Inserted sub-batch",
			r.logger.Args("progress", end, "total", len(rows), "inserted", inserted))
	}

	if skipped := int64(len(records)) - inserted; skipped > 0 {
		r.logger.Debug("Skipped duplicate visits", r.logger.Args("duplicates", skipped))
	}

	return inserted, nil
}

func (r *visitRepo) insertSubBatch(ctx context.Context, rows []models.Visit) (int64, error) {
	var inserted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "record_hash"}},
			DoNothing: true,
		}).Create(&rows)
		if result.Error != nil {
			return result.Error
		}
		inserted = result.RowsAffected
		return nil
	})
	return inserted, err
}

// Load reads every visit in insertion order. Query errors yield the empty collection.
func (r *visitRepo) Load(ctx context.Context) *visits.Collection {
	var rows []models.Visit
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		r.logger.Warn("Failed to load visits, using empty collection", r.logger.Args("error", err))
		return visits.EmptyCollection()
	}

	collection := &visits.Collection{
		TotalVisits: int64(len(rows)),
		Visits:      make([]visits.VisitRecord, len(rows)),
	}
	for i := range rows {
		collection.Visits[i] = ToRecord(rows[i])
	}

	r.logger.Trace("Loaded visits", r.logger.Args("count", len(rows)))
	return collection
}

// Count returns the number of stored visits
func (r *visitRepo) Count(ctx context.Context) (int64, error) {
	return r.CountStored(ctx)
}

// CountStored counts rows directly
func (r *visitRepo) CountStored(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Visit{}).Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count visits", r.logger.Args("error", err))
		return 0, err
	}
	return count, nil
}

// DeleteBefore removes visits older than cutoff in batches to avoid long locks.
// Rows with an unparsable timestamp are kept.
func (r *visitRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const batchSize = 1000
	totalDeleted := int64(0)
	cutoff = cutoff.UTC()

	r.logger.Debug("Deleting visits in batches",
		r.logger.Args("batch_size", batchSize, "cutoff_date", cutoff.Format("2006-01-02")))

	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		result := r.db.WithContext(ctx).Exec(`
			DELETE FROM visits
			WHERE id IN (
				SELECT id FROM visits
				WHERE visited_at IS NOT NULL AND visited_at < ?
				LIMIT ?
			)
		`, cutoff, batchSize)
		if result.Error != nil {
			return totalDeleted, fmt.Errorf("delete visits before %s: %w", cutoff.Format(time.RFC3339), result.Error)
		}

		deleted := result.RowsAffected
		totalDeleted += deleted
		if deleted == 0 {
			break
		}

		r.logger.Trace("Deleted batch",
			r.logger.Args("batch_deleted", deleted, "total_deleted", totalDeleted))
	}

	return totalDeleted, nil
}

// ToModel flattens a record into a row
func ToModel(record visits.VisitRecord) models.Visit {
	visit := models.Visit{
		RecordHash:    record.Hash(),
		Timestamp:     record.Timestamp,
		ClientIP:      record.IP,
		UserAgentKind: record.UserAgent.Kind.String(),
		Referrer:      record.Referrer,
		URL:           record.URL,
	}

	if t, ok := record.Time(); ok {
		utc := t.UTC()
		visit.VisitedAt = &utc
	}

	switch record.UserAgent.Kind {
	case visits.UserAgentStructured:
		d := record.UserAgent.Descriptor
		visit.Browser = d.Browser
		visit.BrowserVersion = d.Version
		visit.OS = d.OS
		visit.Platform = d.Platform
		visit.UASource = d.Source
		visit.Device = d.Device
		visit.IsMobile = d.IsMobile
		visit.IsDesktop = d.IsDesktop
		visit.IsTablet = d.IsTablet
		visit.IsBot = d.IsBot
	case visits.UserAgentLegacy:
		visit.UserAgentRaw = record.UserAgent.Raw
	default:
		visit.Browser = record.Browser
		visit.OS = record.OS
		visit.Device = record.Device
	}

	return visit
}

// ToRecord rebuilds the record a row was created from
func ToRecord(visit models.Visit) visits.VisitRecord {
	record := visits.VisitRecord{
		Timestamp: visit.Timestamp,
		IP:        visit.ClientIP,
		Referrer:  visit.Referrer,
		URL:       visit.URL,
	}

	switch visits.ParseUserAgentKind(visit.UserAgentKind) {
	case visits.UserAgentStructured:
		record.UserAgent = visits.StructuredUserAgent(visits.UserAgentDescriptor{
			Browser:   visit.Browser,
			Version:   visit.BrowserVersion,
			OS:        visit.OS,
			Platform:  visit.Platform,
			Source:    visit.UASource,
			Device:    visit.Device,
			IsMobile:  visit.IsMobile,
			IsDesktop: visit.IsDesktop,
			IsTablet:  visit.IsTablet,
			IsBot:     visit.IsBot,
		})
	case visits.UserAgentLegacy:
		record.UserAgent = visits.LegacyUserAgent(visit.UserAgentRaw)
	default:
		record.Browser = visit.Browser
		record.OS = visit.OS
		record.Device = visit.Device
	}

	return record
}
