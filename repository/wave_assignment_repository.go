// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencohort/longwave/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WaveAssignmentRepositoryImpl implements WaveAssignmentRepository interface
type WaveAssignmentRepositoryImpl struct {
	*BaseRepository[models.WaveAssignment, models.WaveAssignmentFilter]
}

// NewWaveAssignmentRepository creates a new wave assignment repository
func NewWaveAssignmentRepository(db *gorm.DB) WaveAssignmentRepository {
	return &WaveAssignmentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.WaveAssignment, models.WaveAssignmentFilter](db),
	}
}

// ByParticipantAndWave retrieves the single assignment of a participant for a wave
func (r *WaveAssignmentRepositoryImpl) ByParticipantAndWave(ctx context.Context, participantID, waveID uint) (*models.WaveAssignment, error) {
	db := r.getDB(ctx)

	var assignment models.WaveAssignment
	err := db.Where("participant_id = ? AND wave_id = ?", participantID, waveID).
		Last(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &assignment, nil
}

// ListByStudyAndParticipant retrieves all wave assignments of a participant in a study
func (r *WaveAssignmentRepositoryImpl) ListByStudyAndParticipant(ctx context.Context, studyID, participantID uint) ([]*models.WaveAssignment, error) {
	filter := models.WaveAssignmentFilter{
		StudyID:       &studyID,
		ParticipantID: &participantID,
	}
	return r.ByFilter(ctx, filter, "wave_id ASC", 0, 0)
}

// ListPendingOlderThan retrieves pending assignments of a wave assigned before the cutoff, oldest first
func (r *WaveAssignmentRepositoryImpl) ListPendingOlderThan(ctx context.Context, waveID uint, cutoff time.Time, limit int) ([]*models.WaveAssignment, error) {
	db := r.getDB(ctx)

	var assignments []*models.WaveAssignment
	query := db.Where("wave_id = ? AND status = ? AND assigned_at < ?",
		waveID, models.WaveAssignmentStatusPending, cutoff).
		Order("assigned_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

// SaveIfAbsent inserts with conflict-do-nothing on the (participant, wave)
// unique index and re-reads the surviving row
func (r *WaveAssignmentRepositoryImpl) SaveIfAbsent(ctx context.Context, assignment *models.WaveAssignment) (*models.WaveAssignment, bool, error) {
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
		Columns:   []clause.Column{{Name: "participant_id"}, {Name: "wave_id"}},
		DoNothing: true,
	}).Create(assignment)
	if res.Error != nil {
		err = fmt.Errorf("failed to save wave assignment: %w", res.Error)
		return nil, false, err
	}

	if res.RowsAffected > 0 {
		return assignment, true, nil
	}

	var existing models.WaveAssignment
	err = db.Where("participant_id = ? AND wave_id = ?", assignment.ParticipantID, assignment.WaveID).
		Last(&existing).Error
	if err != nil {
		return nil, false, err
	}

	return &existing, false, nil
}

// MarkSubmitted transitions an open assignment to submitted with a single
// conditional update. Returns false without error when the row was already
// submitted, so repeated calls are no-ops past the first.
func (r *WaveAssignmentRepositoryImpl) MarkSubmitted(ctx context.Context, id uint, submittedAt time.Time) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	res := db.Model(&models.WaveAssignment{}).
		Where("id = ? AND status IN ?", id, []models.WaveAssignmentStatus{
			models.WaveAssignmentStatusPending,
			models.WaveAssignmentStatusInProgress,
			models.WaveAssignmentStatusExpired,
		}).
		Updates(map[string]any{
			"status":       models.WaveAssignmentStatusSubmitted,
			"submitted_at": submittedAt,
		})
	if res.Error != nil {
		err = fmt.Errorf("failed to mark wave assignment submitted: %w", res.Error)
		return false, err
	}

	return res.RowsAffected > 0, nil
}

// MarkViewed stamps first_viewed_at once and moves pending to in_progress
func (r *WaveAssignmentRepositoryImpl) MarkViewed(ctx context.Context, id uint, viewedAt time.Time) error {
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

	err = db.Model(&models.WaveAssignment{}).
		Where("id = ? AND status = ? AND first_viewed_at IS NULL", id, models.WaveAssignmentStatusPending).
		Updates(map[string]any{
			"status":          models.WaveAssignmentStatusInProgress,
			"first_viewed_at": viewedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark wave assignment viewed: %w", err)
	}

	return nil
}

// UpdateStatus performs a compare-and-set status transition
func (r *WaveAssignmentRepositoryImpl) UpdateStatus(ctx context.Context, id uint, from, to models.WaveAssignmentStatus) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	res := db.Model(&models.WaveAssignment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		err = fmt.Errorf("failed to update wave assignment status: %w", res.Error)
		return false, err
	}

	return res.RowsAffected > 0, nil
}

// RecordReminderSent increments reminder_count, stamps last_reminder_sent and
// resets the delivery failure counter
func (r *WaveAssignmentRepositoryImpl) RecordReminderSent(ctx context.Context, id uint, sentAt time.Time) error {
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

	err = db.Model(&models.WaveAssignment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"reminder_count":     gorm.Expr("reminder_count + 1"),
			"last_reminder_sent": sentAt,
			"retry_count":        0,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record reminder sent: %w", err)
	}

	return nil
}

// RecordDeliveryFailure increments retry_count and stamps last_retry_sent
func (r *WaveAssignmentRepositoryImpl) RecordDeliveryFailure(ctx context.Context, id uint, failedAt time.Time) error {
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

	err = db.Model(&models.WaveAssignment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retry_count":     gorm.Expr("retry_count + 1"),
			"last_retry_sent": failedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record delivery failure: %w", err)
	}

	return nil
}

// ResetDeliveryFailures zeroes the delivery failure counter
func (r *WaveAssignmentRepositoryImpl) ResetDeliveryFailures(ctx context.Context, id uint) error {
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

	err = db.Model(&models.WaveAssignment{}).
		Where("id = ?", id).
		Update("retry_count", 0).Error
	if err != nil {
		return fmt.Errorf("failed to reset delivery failures: %w", err)
	}

	return nil
}

// DeleteByStudyAndParticipant removes all wave assignments of a participant in
// a study (participant erasure)
func (r *WaveAssignmentRepositoryImpl) DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error {
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
		Delete(&models.WaveAssignment{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete wave assignments: %w", err)
	}

	return nil
}

// ByFilter retrieves wave assignments based on filter criteria
func (r *WaveAssignmentRepositoryImpl) ByFilter(ctx context.Context, filter models.WaveAssignmentFilter, orderBy string, limit, offset int) ([]*models.WaveAssignment, error) {
	db := r.getDB(ctx)

	var assignments []*models.WaveAssignment
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

// Count returns the number of wave assignments matching the filter
func (r *WaveAssignmentRepositoryImpl) Count(ctx context.Context, filter models.WaveAssignmentFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.WaveAssignment{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any wave assignment matching the filter exists
func (r *WaveAssignmentRepositoryImpl) Exists(ctx context.Context, filter models.WaveAssignmentFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *WaveAssignmentRepositoryImpl) applyFilter(db *gorm.DB, filter models.WaveAssignmentFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.ParticipantID != nil {
		db = db.Where("participant_id = ?", *filter.ParticipantID)
	}
	if filter.WaveID != nil {
		db = db.Where("wave_id = ?", *filter.WaveID)
	}
	if filter.StudyID != nil {
		db = db.Where("study_id = ?", *filter.StudyID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.AssignedBefore != nil {
		db = db.Where("assigned_at < ?", *filter.AssignedBefore)
	}
	if filter.AssignedAfter != nil {
		db = db.Where("assigned_at > ?", *filter.AssignedAfter)
	}
	return db
}
