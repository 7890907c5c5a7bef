// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/opencohort/longwave/models"
)

// contextKey is the key type for transaction propagation through context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// StudyRepository defines operations for studies
type StudyRepository interface {
	Repository[models.Study, models.StudyFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Study, error)
}

// WaveRepository defines operations for waves
type WaveRepository interface {
	Repository[models.Wave, models.WaveFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Wave, error)
	ByStudyAndIndex(ctx context.Context, studyID uint, waveIndex int) (*models.Wave, error)
	ListByStudy(ctx context.Context, studyID uint) ([]*models.Wave, error)
	ListReminderEnabled(ctx context.Context, frequency models.ReminderFrequency) ([]*models.Wave, error)
}

// ParticipantRepository defines operations for participants
type ParticipantRepository interface {
	Repository[models.Participant, models.ParticipantFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Participant, error)
	ByCode(ctx context.Context, code string) (*models.Participant, error)
}

// RandomizationConfigRepository defines operations for randomization configs
type RandomizationConfigRepository interface {
	Repository[models.RandomizationConfig, models.RandomizationConfigFilter]
	ByStudy(ctx context.Context, studyID uint) (*models.RandomizationConfig, error)
}

// ArmAssignmentRepository defines operations for arm assignments
type ArmAssignmentRepository interface {
	Repository[models.ArmAssignment, models.ArmAssignmentFilter]
	ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.ArmAssignment, error)
	// SaveIfAbsent inserts the assignment unless a row for the same
	// (study, participant) already exists, and returns the surviving row.
	// The bool result reports whether the given entity won the slot.
	SaveIfAbsent(ctx context.Context, assignment *models.ArmAssignment) (*models.ArmAssignment, bool, error)
	DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error
}

// WaveAssignmentRepository defines operations for wave assignments
type WaveAssignmentRepository interface {
	Repository[models.WaveAssignment, models.WaveAssignmentFilter]
	ByParticipantAndWave(ctx context.Context, participantID, waveID uint) (*models.WaveAssignment, error)
	ListByStudyAndParticipant(ctx context.Context, studyID, participantID uint) ([]*models.WaveAssignment, error)
	// ListPendingOlderThan returns pending assignments of a wave whose
	// assigned_at is before the cutoff, oldest first
	ListPendingOlderThan(ctx context.Context, waveID uint, cutoff time.Time, limit int) ([]*models.WaveAssignment, error)
	// SaveIfAbsent inserts unless a row for the same (participant, wave)
	// exists, returning the surviving row
	SaveIfAbsent(ctx context.Context, assignment *models.WaveAssignment) (*models.WaveAssignment, bool, error)
	// MarkSubmitted atomically transitions an open assignment to submitted.
	// A row already submitted is left untouched; the bool reports whether
	// this call performed the transition.
	MarkSubmitted(ctx context.Context, id uint, submittedAt time.Time) (bool, error)
	MarkViewed(ctx context.Context, id uint, viewedAt time.Time) error
	UpdateStatus(ctx context.Context, id uint, from, to models.WaveAssignmentStatus) (bool, error)
	// RecordReminderSent increments reminder_count, stamps last_reminder_sent
	// and resets the delivery failure counter
	RecordReminderSent(ctx context.Context, id uint, sentAt time.Time) error
	// RecordDeliveryFailure increments retry_count and stamps last_retry_sent
	RecordDeliveryFailure(ctx context.Context, id uint, failedAt time.Time) error
	// ResetDeliveryFailures zeroes retry_count for manual operator resets
	ResetDeliveryFailures(ctx context.Context, id uint) error
	DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error
}

// ReminderTokenRepository defines operations for reminder tokens
type ReminderTokenRepository interface {
	Repository[models.ReminderToken, models.ReminderTokenFilter]
	ByTokenHash(ctx context.Context, tokenHash string) (*models.ReminderToken, error)
	// MarkUsed stamps used_at on first resolution; later resolutions keep the
	// original stamp
	MarkUsed(ctx context.Context, id uint, usedAt time.Time) error
	DeleteByParticipant(ctx context.Context, participantID uint) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SuppressionFlagRepository defines operations for suppression flags
type SuppressionFlagRepository interface {
	Repository[models.SuppressionFlag, models.SuppressionFlagFilter]
	ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.SuppressionFlag, error)
	// SaveIfAbsent inserts unless a flag already exists; opt-out is idempotent
	SaveIfAbsent(ctx context.Context, flag *models.SuppressionFlag) (*models.SuppressionFlag, bool, error)
	DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error
}
