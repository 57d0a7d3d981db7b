package repositories

import (
	"context"
	"errors"
	"time"

	"sitestats/internal/database/models"

	"gorm.io/gorm"
)

// ImportSourceRepository tracks legacy file imports
type ImportSourceRepository interface {
	FindByPath(ctx context.Context, path string) (*models.ImportSource, error)
	FindAll(ctx context.Context) ([]*models.ImportSource, error)
	RecordImport(ctx context.Context, path string, seen, imported, storedTotal int64, lastHash string) error
}

type importSourceRepo struct {
	db *gorm.DB
}

func NewImportSourceRepository(db *gorm.DB) ImportSourceRepository {
	return &importSourceRepo{db: db}
}

// FindByPath returns nil, nil when the file has never been imported
func (r *importSourceRepo) FindByPath(ctx context.Context, path string) (*models.ImportSource, error) {
	var source models.ImportSource
	err := r.db.WithContext(ctx).Where("path = ?", path).First(&source).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &source, nil
}

func (r *importSourceRepo) FindAll(ctx context.Context) ([]*models.ImportSource, error) {
	var sources []*models.ImportSource
	err := r.db.WithContext(ctx).Order("path").Find(&sources).Error
	return sources, err
}

// RecordImport upserts the progress of one import pass
func (r *importSourceRepo) RecordImport(ctx context.Context, path string, seen, imported, storedTotal int64, lastHash string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		var source models.ImportSource
		err := tx.Where("path = ?", path).First(&source).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.ImportSource{
				Path:            path,
				RecordsSeen:     seen,
				RecordsImported: imported,
				LastTotalVisits: storedTotal,
				LastHash:        lastHash,
				LastImportAt:    &now,
			}).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&source).Updates(map[string]interface{}{
			"records_seen":      seen,
			"records_imported":  source.RecordsImported + imported,
			"last_total_visits": storedTotal,
			"last_hash":         lastHash,
			"last_import_at":    now,
		}).Error
	})
}
