// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencohort/longwave/models"
	"gorm.io/gorm"
)

// ReminderTokenRepositoryImpl implements ReminderTokenRepository interface
type ReminderTokenRepositoryImpl struct {
	*BaseRepository[models.ReminderToken, models.ReminderTokenFilter]
}

// NewReminderTokenRepository creates a new reminder token repository
func NewReminderTokenRepository(db *gorm.DB) ReminderTokenRepository {
	return &ReminderTokenRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ReminderToken, models.ReminderTokenFilter](db),
	}
}

// ByTokenHash retrieves a token row by the digest of the plaintext token
func (r *ReminderTokenRepositoryImpl) ByTokenHash(ctx context.Context, tokenHash string) (*models.ReminderToken, error) {
	db := r.getDB(ctx)

	var token models.ReminderToken
	err := db.Where("token_hash = ?", tokenHash).Last(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &token, nil
}

// MarkUsed stamps used_at on first resolution only
func (r *ReminderTokenRepositoryImpl) MarkUsed(ctx context.Context, id uint, usedAt time.Time) error {
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

	err = db.Model(&models.ReminderToken{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", usedAt).Error
	if err != nil {
		return fmt.Errorf("failed to mark reminder token used: %w", err)
	}

	return nil
}

// DeleteByParticipant removes all tokens of a participant (participant erasure)
func (r *ReminderTokenRepositoryImpl) DeleteByParticipant(ctx context.Context, participantID uint) error {
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

	err = db.Where("participant_id = ?", participantID).
		Delete(&models.ReminderToken{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete reminder tokens: %w", err)
	}

	return nil
}

// DeleteExpiredBefore removes tokens whose expiry is before the cutoff
func (r *ReminderTokenRepositoryImpl) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
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

	res := db.Where("expires_at < ?", cutoff).Delete(&models.ReminderToken{})
	if res.Error != nil {
		err = fmt.Errorf("failed to delete expired reminder tokens: %w", res.Error)
		return 0, err
	}

	return res.RowsAffected, nil
}

// ByFilter retrieves reminder tokens based on filter criteria
func (r *ReminderTokenRepositoryImpl) ByFilter(ctx context.Context, filter models.ReminderTokenFilter, orderBy string, limit, offset int) ([]*models.ReminderToken, error) {
	db := r.getDB(ctx)

	var tokens []*models.ReminderToken
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

	err := query.Find(&tokens).Error
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// Count returns the number of reminder tokens matching the filter
func (r *ReminderTokenRepositoryImpl) Count(ctx context.Context, filter models.ReminderTokenFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.ReminderToken{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any reminder token matching the filter exists
func (r *ReminderTokenRepositoryImpl) Exists(ctx context.Context, filter models.ReminderTokenFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ReminderTokenRepositoryImpl) applyFilter(db *gorm.DB, filter models.ReminderTokenFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.TokenHash != nil {
		db = db.Where("token_hash = ?", *filter.TokenHash)
	}
	if filter.ParticipantID != nil {
		db = db.Where("participant_id = ?", *filter.ParticipantID)
	}
	if filter.WaveID != nil {
		db = db.Where("wave_id = ?", *filter.WaveID)
	}
	if filter.Manual != nil {
		db = db.Where("manual = ?", *filter.Manual)
	}
	if filter.ExpiresAfter != nil {
		db = db.Where("expires_at > ?", *filter.ExpiresAfter)
	}
	if filter.ExpiresBefore != nil {
		db = db.Where("expires_at < ?", *filter.ExpiresBefore)
	}
	return db
}
