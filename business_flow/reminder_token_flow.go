package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/opencohort/longwave/app/dto"
	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/repository"
	"github.com/opencohort/longwave/utils"
)

// ReminderTokenFlow issues and resolves the short-lived credentials embedded
// in reminder links. Only a one-way hash of the token is persisted; the
// plaintext is returned once at issuance and never stored.
type ReminderTokenFlow interface {
	Issue(ctx context.Context, participantID, waveID uint, arm string, manual bool) (*dto.IssuedTokenResponse, error)
	// Resolve looks up a plaintext token by digest. Tokens stay resolvable
	// for their whole 48h window; used_at is stamped on first resolution
	// for audit only, the submission path is the terminal gate.
	Resolve(ctx context.Context, token string) (*dto.ResolvedTokenResponse, error)
	// PurgeExpired removes token rows past their expiry
	PurgeExpired(ctx context.Context) (int64, error)
}

// ReminderTokenFlowImpl implements ReminderTokenFlow
type ReminderTokenFlowImpl struct {
	tokenRepo       repository.ReminderTokenRepository
	waveRepo        repository.WaveRepository
	participantRepo repository.ParticipantRepository
	studyRepo       repository.StudyRepository
	logger          *log.Logger
	now             Clock
	tokenTTL        time.Duration
}

// NewReminderTokenFlow creates a new reminder token flow
func NewReminderTokenFlow(
	tokenRepo repository.ReminderTokenRepository,
	waveRepo repository.WaveRepository,
	participantRepo repository.ParticipantRepository,
	studyRepo repository.StudyRepository,
	logger *log.Logger,
	now Clock,
	tokenTTL time.Duration,
) ReminderTokenFlow {
	if logger == nil {
		logger = log.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = utils.ReminderTokenTTL
	}
	return &ReminderTokenFlowImpl{
		tokenRepo:       tokenRepo,
		waveRepo:        waveRepo,
		participantRepo: participantRepo,
		studyRepo:       studyRepo,
		logger:          logger,
		now:             clockOrDefault(now),
		tokenTTL:        tokenTTL,
	}
}

func (f *ReminderTokenFlowImpl) Issue(ctx context.Context, participantID, waveID uint, arm string, manual bool) (*dto.IssuedTokenResponse, error) {
	plaintext, err := utils.GenerateSecureToken(utils.ReminderTokenBytes)
	if err != nil {
		return nil, err
	}

	now := f.now()
	row := &models.ReminderToken{
		TokenHash:     utils.HashToken(plaintext),
		ParticipantID: participantID,
		WaveID:        waveID,
		Arm:           arm,
		Manual:        manual,
		CreatedAt:     now,
		ExpiresAt:     now.Add(f.tokenTTL),
	}
	if err := f.tokenRepo.Save(ctx, row); err != nil {
		return nil, err
	}

	return &dto.IssuedTokenResponse{
		Token:     plaintext,
		ExpiresAt: row.ExpiresAt.Format(time.RFC3339),
		Manual:    manual,
	}, nil
}

func (f *ReminderTokenFlowImpl) Resolve(ctx context.Context, token string) (*dto.ResolvedTokenResponse, error) {
	row, err := f.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if row.IsExpired(f.now()) {
		return nil, NewBusinessError("TOKEN_EXPIRED", "reminder link has expired", ErrTokenExpired)
	}

	if err := f.tokenRepo.MarkUsed(ctx, row.ID, f.now()); err != nil {
		f.logger.Printf("reminder token: failed to stamp used_at for token %d: %v", row.ID, err)
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
	study, err := f.studyRepo.ByID(ctx, wave.StudyID)
	if err != nil {
		return nil, err
	}
	if study == nil {
		return nil, NewBusinessError("STUDY_NOT_FOUND", "study not found", ErrStudyNotFound)
	}

	return &dto.ResolvedTokenResponse{
		StudyUUID:       study.UUID.String(),
		ParticipantCode: participant.Code,
		WaveIndex:       wave.WaveIndex,
		FormRef:         wave.FormRef,
		Arm:             row.Arm,
	}, nil
}

func (f *ReminderTokenFlowImpl) PurgeExpired(ctx context.Context) (int64, error) {
	return f.tokenRepo.DeleteExpiredBefore(ctx, f.now())
}

// lookup finds the token row by digest; a tampered or unknown token is
// indistinguishable from a missing one
func (f *ReminderTokenFlowImpl) lookup(ctx context.Context, token string) (*models.ReminderToken, error) {
	if token == "" {
		return nil, NewBusinessError("TOKEN_NOT_FOUND", "reminder link is invalid", ErrTokenNotFound)
	}

	row, err := f.tokenRepo.ByTokenHash(ctx, utils.HashToken(token))
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, NewBusinessError("TOKEN_NOT_FOUND", "reminder link is invalid", ErrTokenNotFound)
	}

	return row, nil
}
