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

// ArmAssignmentRepositoryImpl implements ArmAssignmentRepository interface
type ArmAssignmentRepositoryImpl struct {
	*BaseRepository[models.ArmAssignment, models.ArmAssignmentFilter]
}

// NewArmAssignmentRepository creates a new arm assignment repository
func NewArmAssignmentRepository(db *gorm.DB) ArmAssignmentRepository {
	return &ArmAssignmentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ArmAssignment, models.ArmAssignmentFilter](db),
	}
}

// ByStudyAndParticipant retrieves the single assignment of a participant in a study
func (r *ArmAssignmentRepositoryImpl) ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.ArmAssignment, error) {
	db := r.getDB(ctx)

	var assignment models.ArmAssignment
	err := db.Where("study_id = ? AND participant_id = ?", studyID, participantID).
		Last(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &assignment, nil
}

// SaveIfAbsent inserts the assignment with conflict-do-nothing on the
// (study, participant) unique index, then re-reads the surviving row. Two
// racing callers both converge on whichever insert won.
func (r *ArmAssignmentRepositoryImpl) SaveIfAbsent(ctx context.Context, assignment *models.ArmAssignment) (*models.ArmAssignment, bool, error) {
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
	}).Create(assignment)
	if res.Error != nil {
		err = fmt.Errorf("failed to save arm assignment: %w", res.Error)
		return nil, false, err
	}

	inserted := res.RowsAffected > 0
	if inserted {
		return assignment, true, nil
	}

	var existing models.ArmAssignment
	err = db.Where("study_id = ? AND participant_id = ?", assignment.StudyID, assignment.ParticipantID).
		Last(&existing).Error
	if err != nil {
		return nil, false, err
	}

	return &existing, false, nil
}

// DeleteByStudyAndParticipant removes the assignment row (participant erasure)
func (r *ArmAssignmentRepositoryImpl) DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error {
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
		Delete(&models.ArmAssignment{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete arm assignment: %w", err)
	}

	return nil
}

// ByFilter retrieves arm assignments based on filter criteria
func (r *ArmAssignmentRepositoryImpl) ByFilter(ctx context.Context, filter models.ArmAssignmentFilter, orderBy string, limit, offset int) ([]*models.ArmAssignment, error) {
	db := r.getDB(ctx)

	var assignments []*models.ArmAssignment
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

	err := query.Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

// Count returns the number of arm assignments matching the filter
func (r *ArmAssignmentRepositoryImpl) Count(ctx context.Context, filter models.ArmAssignmentFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.ArmAssignment{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any arm assignment matching the filter exists
func (r *ArmAssignmentRepositoryImpl) Exists(ctx context.Context, filter models.ArmAssignmentFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ArmAssignmentRepositoryImpl) applyFilter(db *gorm.DB, filter models.ArmAssignmentFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.StudyID != nil {
		db = db.Where("study_id = ?", *filter.StudyID)
	}
	if filter.ParticipantID != nil {
		db = db.Where("participant_id = ?", *filter.ParticipantID)
	}
	if filter.Arm != nil {
		db = db.Where("arm = ?", *filter.Arm)
	}
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}
	return db
}
