// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/opencohort/longwave/models"
	"gorm.io/gorm"
)

// ParticipantRepositoryImpl implements ParticipantRepository interface
type ParticipantRepositoryImpl struct {
	*BaseRepository[models.Participant, models.ParticipantFilter]
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db *gorm.DB) ParticipantRepository {
	return &ParticipantRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Participant, models.ParticipantFilter](db),
	}
}

// ByUUID retrieves a participant by its public UUID
func (r *ParticipantRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Participant, error) {
	db := r.getDB(ctx)

	var participant models.Participant
	err := db.Where("uuid = ?", uuid).Last(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &participant, nil
}

// ByCode retrieves a participant by its external code
func (r *ParticipantRepositoryImpl) ByCode(ctx context.Context, code string) (*models.Participant, error) {
	db := r.getDB(ctx)

	var participant models.Participant
	err := db.Where("code = ?", code).Last(&participant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &participant, nil
}

// ByFilter retrieves participants based on filter criteria
func (r *ParticipantRepositoryImpl) ByFilter(ctx context.Context, filter models.ParticipantFilter, orderBy string, limit, offset int) ([]*models.Participant, error) {
	db := r.getDB(ctx)

	var participants []*models.Participant
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

	err := query.Find(&participants).Error
	if err != nil {
		return nil, err
	}

	return participants, nil
}

// Count returns the number of participants matching the filter
func (r *ParticipantRepositoryImpl) Count(ctx context.Context, filter models.ParticipantFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Participant{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any participant matching the filter exists
func (r *ParticipantRepositoryImpl) Exists(ctx context.Context, filter models.ParticipantFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ParticipantRepositoryImpl) applyFilter(db *gorm.DB, filter models.ParticipantFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.Code != nil {
		db = db.Where("code = ?", *filter.Code)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", *filter.Email)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	return db
}
