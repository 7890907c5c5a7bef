// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/opencohort/longwave/models"
	"gorm.io/gorm"
)

// RandomizationConfigRepositoryImpl implements RandomizationConfigRepository interface
type RandomizationConfigRepositoryImpl struct {
	*BaseRepository[models.RandomizationConfig, models.RandomizationConfigFilter]
}

// NewRandomizationConfigRepository creates a new randomization config repository
func NewRandomizationConfigRepository(db *gorm.DB) RandomizationConfigRepository {
	return &RandomizationConfigRepositoryImpl{
		BaseRepository: NewBaseRepository[models.RandomizationConfig, models.RandomizationConfigFilter](db),
	}
}

// ByStudy retrieves the randomization config of a study
func (r *RandomizationConfigRepositoryImpl) ByStudy(ctx context.Context, studyID uint) (*models.RandomizationConfig, error) {
	db := r.getDB(ctx)

	var config models.RandomizationConfig
	err := db.Where("study_id = ?", studyID).Last(&config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &config, nil
}

// ByFilter retrieves randomization configs based on filter criteria
func (r *RandomizationConfigRepositoryImpl) ByFilter(ctx context.Context, filter models.RandomizationConfigFilter, orderBy string, limit, offset int) ([]*models.RandomizationConfig, error) {
	db := r.getDB(ctx)

	var configs []*models.RandomizationConfig
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&configs).Error
	if err != nil {
		return nil, err
	}

	return configs, nil
}

// Count returns the number of configs matching the filter
func (r *RandomizationConfigRepositoryImpl) Count(ctx context.Context, filter models.RandomizationConfigFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.RandomizationConfig{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any config matching the filter exists
func (r *RandomizationConfigRepositoryImpl) Exists(ctx context.Context, filter models.RandomizationConfigFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *RandomizationConfigRepositoryImpl) applyFilter(db *gorm.DB, filter models.RandomizationConfigFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.StudyID != nil {
		db = db.Where("study_id = ?", *filter.StudyID)
	}
	if filter.Method != nil {
		db = db.Where("method = ?", *filter.Method)
	}
	return db
}
