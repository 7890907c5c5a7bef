// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/opencohort/longwave/models"
	"gorm.io/gorm"
)

// StudyRepositoryImpl implements StudyRepository interface
type StudyRepositoryImpl struct {
	*BaseRepository[models.Study, models.StudyFilter]
}

// NewStudyRepository creates a new study repository
func NewStudyRepository(db *gorm.DB) StudyRepository {
	return &StudyRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Study, models.StudyFilter](db),
	}
}

// ByUUID retrieves a study by its public UUID
func (r *StudyRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Study, error) {
	db := r.getDB(ctx)

	var study models.Study
	err := db.Where("uuid = ?", uuid).Last(&study).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &study, nil
}

// ByFilter retrieves studies based on filter criteria
func (r *StudyRepositoryImpl) ByFilter(ctx context.Context, filter models.StudyFilter, orderBy string, limit, offset int) ([]*models.Study, error) {
	db := r.getDB(ctx)

	var studies []*models.Study
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

	err := query.Find(&studies).Error
	if err != nil {
		return nil, err
	}

	return studies, nil
}

// Count returns the number of studies matching the filter
func (r *StudyRepositoryImpl) Count(ctx context.Context, filter models.StudyFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Study{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any study matching the filter exists
func (r *StudyRepositoryImpl) Exists(ctx context.Context, filter models.StudyFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *StudyRepositoryImpl) applyFilter(db *gorm.DB, filter models.StudyFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Title != nil {
		db = db.Where("title = ?", *filter.Title)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}
