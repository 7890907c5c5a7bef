package businessflow

import (
	"context"
	"log"

	"github.com/opencohort/longwave/app/dto"
	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/repository"
	"github.com/opencohort/longwave/utils"
)

// SuppressionFlow is the opt-out registry. Flags are written on participant
// unsubscribe and consulted by the scheduler; they are never auto-removed.
type SuppressionFlow interface {
	// Unsubscribe validates a reminder token and writes a suppression flag
	// for its participant within the wave's study. An expired link still
	// opts out.
	Unsubscribe(ctx context.Context, token, reason string) (*dto.UnsubscribeResponse, error)
	IsSuppressed(ctx context.Context, studyID, participantID uint) (bool, error)
}

// SuppressionFlowImpl implements SuppressionFlow
type SuppressionFlowImpl struct {
	tokenRepo       repository.ReminderTokenRepository
	waveRepo        repository.WaveRepository
	participantRepo repository.ParticipantRepository
	suppressionRepo repository.SuppressionFlagRepository
	logger          *log.Logger
	now             Clock
}

// NewSuppressionFlow creates a new suppression flow
func NewSuppressionFlow(
	tokenRepo repository.ReminderTokenRepository,
	waveRepo repository.WaveRepository,
	participantRepo repository.ParticipantRepository,
	suppressionRepo repository.SuppressionFlagRepository,
	logger *log.Logger,
	now Clock,
) SuppressionFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &SuppressionFlowImpl{
		tokenRepo:       tokenRepo,
		waveRepo:        waveRepo,
		participantRepo: participantRepo,
		suppressionRepo: suppressionRepo,
		logger:          logger,
		now:             clockOrDefault(now),
	}
}

func (f *SuppressionFlowImpl) Unsubscribe(ctx context.Context, token, reason string) (*dto.UnsubscribeResponse, error) {
	if token == "" {
		return nil, NewBusinessError("TOKEN_NOT_FOUND", "unsubscribe link is invalid", ErrTokenNotFound)
	}

	row, err := f.tokenRepo.ByTokenHash(ctx, utils.HashToken(token))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NewBusinessError("TOKEN_NOT_FOUND", "unsubscribe link is invalid", ErrTokenNotFound)
	}

	wave, err := f.waveRepo.ByID(ctx, row.WaveID)
	if err != nil {
		return nil, err
	}
	if wave == nil {
		return nil, NewBusinessError("WAVE_NOT_FOUND", "wave not found", ErrWaveNotFound)
	}

	participant, err := f.participantRepo.ByID(ctx, row.ParticipantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, NewBusinessError("INVALID_PARTICIPANT", "participant not found", ErrParticipantNotFound)
	}

	if reason == "" {
		reason = "participant unsubscribe"
	}
	flag := &models.SuppressionFlag{
		StudyID:       wave.StudyID,
		ParticipantID: participant.ID,
		Reason:        reason,
		CreatedAt:     f.now(),
	}
	if _, inserted, err := f.suppressionRepo.SaveIfAbsent(ctx, flag); err != nil {
		return nil, err
	} else if !inserted {
		f.logger.Printf("suppression: participant %s already opted out of study %d", participant.Code, wave.StudyID)
	}

	return &dto.UnsubscribeResponse{
		Message:         "You will no longer receive reminders for this study",
		ParticipantCode: participant.Code,
	}, nil
}

func (f *SuppressionFlowImpl) IsSuppressed(ctx context.Context, studyID, participantID uint) (bool, error) {
	flag, err := f.suppressionRepo.ByStudyAndParticipant(ctx, studyID, participantID)
	if err != nil {
		return false, err
	}
	return flag != nil, nil
}
