// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencohort/longwave/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SuppressionFlagRepositoryImpl implements SuppressionFlagRepository interface
type SuppressionFlagRepositoryImpl struct {
	*BaseRepository[models.SuppressionFlag, models.SuppressionFlagFilter]
}

// NewSuppressionFlagRepository creates a new suppression flag repository
func NewSuppressionFlagRepository(db *gorm.DB) SuppressionFlagRepository {
	return &SuppressionFlagRepositoryImpl{
		BaseRepository: NewBaseRepository[models.SuppressionFlag, models.SuppressionFlagFilter](db),
	}
}

// ByStudyAndParticipant retrieves a participant's suppression flag within a study
func (r *SuppressionFlagRepositoryImpl) ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.SuppressionFlag, error) {
	db := r.getDB(ctx)

	var flag models.SuppressionFlag
	err := db.Where("study_id = ? AND participant_id = ?", studyID, participantID).
		Last(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &flag, nil
}

// SaveIfAbsent inserts the flag unless one already exists for the same
// (study, participant); repeated unsubscribes stay idempotent
func (r *SuppressionFlagRepositoryImpl) SaveIfAbsent(ctx context.Context, flag *models.SuppressionFlag) (*models.SuppressionFlag, bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return nil, false, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "study_id"}, {Name: "participant_id"}},
		DoNothing: true,
	}).Create(flag)
	if res.Error != nil {
		err = fmt.Errorf("failed to save suppression flag: %w", res.Error)
		return nil, false, err
	}

	if res.RowsAffected > 0 {
		return flag, true, nil
	}

	var existing models.SuppressionFlag
	err = db.Where("study_id = ? AND participant_id = ?", flag.StudyID, flag.ParticipantID).
		Last(&existing).Error
	if err != nil {
		return nil, false, err
	}

	return &existing, false, nil
}

// DeleteByStudyAndParticipant removes the flag (participant erasure)
func (r *SuppressionFlagRepositoryImpl) DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Where("study_id = ? AND participant_id = ?", studyID, participantID).
		Delete(&models.SuppressionFlag{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete suppression flag: %w", err)
	}

	return nil
}

// ByFilter retrieves suppression flags based on filter criteria
func (r *SuppressionFlagRepositoryImpl) ByFilter(ctx context.Context, filter models.SuppressionFlagFilter, orderBy string, limit, offset int) ([]*models.SuppressionFlag, error) {
	db := r.getDB(ctx)

	var flags []*models.SuppressionFlag
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

	err := query.Find(&flags).Error
	if err != nil {
		return nil, err
	}

	return flags, nil
}

// Count returns the number of suppression flags matching the filter
func (r *SuppressionFlagRepositoryImpl) Count(ctx context.Context, filter models.SuppressionFlagFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.SuppressionFlag{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any suppression flag matching the filter exists
func (r *SuppressionFlagRepositoryImpl) Exists(ctx context.Context, filter models.SuppressionFlagFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *SuppressionFlagRepositoryImpl) applyFilter(db *gorm.DB, filter models.SuppressionFlagFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.StudyID != nil {
		db = db.Where("study_id = ?", *filter.StudyID)
	}
	if filter.ParticipantID != nil {
		db = db.Where("participant_id = ?", *filter.ParticipantID)
	}
	return db
}
