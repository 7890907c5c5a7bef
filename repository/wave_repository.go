// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"

	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/utils"
	"gorm.io/gorm"
)

// WaveRepositoryImpl implements WaveRepository interface
type WaveRepositoryImpl struct {
	*BaseRepository[models.Wave, models.WaveFilter]
}

// NewWaveRepository creates a new wave repository
func NewWaveRepository(db *gorm.DB) WaveRepository {
	return &WaveRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Wave, models.WaveFilter](db),
	}
}

// ByUUID retrieves a wave by its public UUID
func (r *WaveRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Wave, error) {
	db := r.getDB(ctx)

	var wave models.Wave
	err := db.Where("uuid = ?", uuid).Last(&wave).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &wave, nil
}

// ByStudyAndIndex retrieves the wave at a given index within a study
func (r *WaveRepositoryImpl) ByStudyAndIndex(ctx context.Context, studyID uint, waveIndex int) (*models.Wave, error) {
	db := r.getDB(ctx)

	var wave models.Wave
	err := db.Where("study_id = ? AND wave_index = ?", studyID, waveIndex).Last(&wave).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &wave, nil
}

// ListByStudy retrieves all waves of a study ordered by wave index
func (r *WaveRepositoryImpl) ListByStudy(ctx context.Context, studyID uint) ([]*models.Wave, error) {
	return r.ByFilter(ctx, models.WaveFilter{StudyID: &studyID}, "wave_index ASC", 0, 0)
}

// ListReminderEnabled retrieves all reminder-enabled waves for a cadence
func (r *WaveRepositoryImpl) ListReminderEnabled(ctx context.Context, frequency models.ReminderFrequency) ([]*models.Wave, error) {
	filter := models.WaveFilter{
		ReminderEnabled:   utils.ToPtr(true),
		ReminderFrequency: &frequency,
	}
	return r.ByFilter(ctx, filter, "study_id ASC, wave_index ASC", 0, 0)
}

// ByFilter retrieves waves based on filter criteria
func (r *WaveRepositoryImpl) ByFilter(ctx context.Context, filter models.WaveFilter, orderBy string, limit, offset int) ([]*models.Wave, error) {
	db := r.getDB(ctx)

	var waves []*models.Wave
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

	err := query.Find(&waves).Error
	if err != nil {
		return nil, err
	}

	return waves, nil
}

// Count returns the number of waves matching the filter
func (r *WaveRepositoryImpl) Count(ctx context.Context, filter models.WaveFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Wave{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any wave matching the filter exists
func (r *WaveRepositoryImpl) Exists(ctx context.Context, filter models.WaveFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *WaveRepositoryImpl) applyFilter(db *gorm.DB, filter models.WaveFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.StudyID != nil {
		db = db.Where("study_id = ?", *filter.StudyID)
	}
	if filter.WaveIndex != nil {
		db = db.Where("wave_index = ?", *filter.WaveIndex)
	}
	if filter.ReminderEnabled != nil {
		db = db.Where("reminder_enabled = ?", *filter.ReminderEnabled)
	}
	if filter.ReminderFrequency != nil {
		db = db.Where("reminder_frequency = ?", *filter.ReminderFrequency)
	}
	if filter.IsMandatory != nil {
		db = db.Where("is_mandatory = ?", *filter.IsMandatory)
	}
	return db
}
