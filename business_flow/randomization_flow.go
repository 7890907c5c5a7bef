package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/opencohort/longwave/app/dto"
	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/repository"
)

// RandomizationFlow resolves a participant's arm within a study. Resolution
// order is existing assignment, manual override, weighted selection; the first
// match wins and every path persists at most one row per (study, participant).
type RandomizationFlow interface {
	// Assign resolves the arm at study entry; repeated calls never re-roll
	Assign(ctx context.Context, studyUUID, participantCode string, metadata *ClientMetadata) (*dto.AssignmentResponse, error)
	// AssignManual is the operator-triggered direct assignment entry point;
	// it still honors the persistence idempotency check first
	AssignManual(ctx context.Context, studyUUID, participantCode, arm string, metadata *ClientMetadata) (*dto.AssignmentResponse, error)
	// EraseParticipant cascades a participant-initiated erasure to the arm
	// assignment and all dependent wave state
	EraseParticipant(ctx context.Context, studyUUID, participantCode string) (*dto.EraseParticipantResponse, error)
}

// RandomizationFlowImpl implements RandomizationFlow
type RandomizationFlowImpl struct {
	studyRepo          repository.StudyRepository
	participantRepo    repository.ParticipantRepository
	configRepo         repository.RandomizationConfigRepository
	armAssignmentRepo  repository.ArmAssignmentRepository
	waveRepo           repository.WaveRepository
	waveAssignmentRepo repository.WaveAssignmentRepository
	tokenRepo          repository.ReminderTokenRepository
	suppressionRepo    repository.SuppressionFlagRepository
	logger             *log.Logger
	now                Clock
}

// NewRandomizationFlow creates a new randomization flow
func NewRandomizationFlow(
	studyRepo repository.StudyRepository,
	participantRepo repository.ParticipantRepository,
	configRepo repository.RandomizationConfigRepository,
	armAssignmentRepo repository.ArmAssignmentRepository,
	waveRepo repository.WaveRepository,
	waveAssignmentRepo repository.WaveAssignmentRepository,
	tokenRepo repository.ReminderTokenRepository,
	suppressionRepo repository.SuppressionFlagRepository,
	logger *log.Logger,
	now Clock,
) RandomizationFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &RandomizationFlowImpl{
		studyRepo:          studyRepo,
		participantRepo:    participantRepo,
		configRepo:         configRepo,
		armAssignmentRepo:  armAssignmentRepo,
		waveRepo:           waveRepo,
		waveAssignmentRepo: waveAssignmentRepo,
		tokenRepo:          tokenRepo,
		suppressionRepo:    suppressionRepo,
		logger:             logger,
		now:                clockOrDefault(now),
	}
}

func (f *RandomizationFlowImpl) Assign(ctx context.Context, studyUUID, participantCode string, metadata *ClientMetadata) (*dto.AssignmentResponse, error) {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return nil, err
	}

	// Idempotent read path: duplicate form loads and retried requests get
	// the stored assignment verbatim, with no writes
	existing, err := f.armAssignmentRepo.ByStudyAndParticipant(ctx, study.ID, participant.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return toAssignmentDTO(study, participant, existing, models.AssignmentTypePersistent), nil
	}

	config, err := f.configRepo.ByStudy(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, NewBusinessError("CONFIGURATION_ERROR", "study has no randomization config", ErrConfigNotFound)
	}
	if len(config.Spec.Arms) < 2 {
		return nil, NewBusinessError("CONFIGURATION_ERROR", "not enough arms to randomize", ErrNotEnoughArms)
	}

	assignment := &models.ArmAssignment{
		StudyID:       study.ID,
		ParticipantID: participant.ID,
		CreatedAt:     f.now(),
	}

	if forced, ok := config.Spec.OverrideFor(participant.Code); ok {
		// Manual override wins over weighted selection; the seed is opaque
		// and recorded for audit only
		seed := uuid.NewString()
		assignment.Arm = forced
		assignment.Seed = &seed
		assignment.Type = models.AssignmentTypeManualOverride
	} else {
		var seed *string
		if config.Method == models.RandomizationMethodSeeded {
			s := uuid.NewString()
			seed = &s
		}
		assignment.Arm = SelectWeighted(config.Spec.Candidates(), config.Spec.Weights(), seed)
		assignment.Seed = seed
		assignment.Type = models.AssignmentTypeRandom
	}

	return f.persist(ctx, study, participant, assignment)
}

func (f *RandomizationFlowImpl) AssignManual(ctx context.Context, studyUUID, participantCode, arm string, metadata *ClientMetadata) (*dto.AssignmentResponse, error) {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return nil, err
	}

	existing, err := f.armAssignmentRepo.ByStudyAndParticipant(ctx, study.ID, participant.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return toAssignmentDTO(study, participant, existing, models.AssignmentTypePersistent), nil
	}

	config, err := f.configRepo.ByStudy(ctx, study.ID)
	if err != nil {
		return nil, err
	}
	if config != nil {
		weights := config.Spec.Weights()
		if _, ok := weights[arm]; !ok {
			return nil, NewBusinessError("ARM_NOT_CONFIGURED", "arm is not configured for this study", ErrArmNotConfigured)
		}
	}

	assignment := &models.ArmAssignment{
		StudyID:       study.ID,
		ParticipantID: participant.ID,
		Arm:           arm,
		Type:          models.AssignmentTypeManual,
		CreatedAt:     f.now(),
	}

	return f.persist(ctx, study, participant, assignment)
}

func (f *RandomizationFlowImpl) EraseParticipant(ctx context.Context, studyUUID, participantCode string) (*dto.EraseParticipantResponse, error) {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return nil, err
	}

	// Cascade order: tokens, wave state, suppression, then the assignment
	if err := f.tokenRepo.DeleteByParticipant(ctx, participant.ID); err != nil {
		return nil, err
	}
	if err := f.waveAssignmentRepo.DeleteByStudyAndParticipant(ctx, study.ID, participant.ID); err != nil {
		return nil, err
	}
	if err := f.suppressionRepo.DeleteByStudyAndParticipant(ctx, study.ID, participant.ID); err != nil {
		return nil, err
	}
	if err := f.armAssignmentRepo.DeleteByStudyAndParticipant(ctx, study.ID, participant.ID); err != nil {
		return nil, err
	}

	f.logger.Printf("randomization: erased participant %s from study %s", participant.Code, study.UUID)

	return &dto.EraseParticipantResponse{
		Message:         "Participant data erased",
		StudyUUID:       study.UUID.String(),
		ParticipantCode: participant.Code,
	}, nil
}

// persist writes the assignment through the check-and-set path. A racing
// writer losing the slot still returns one consistent stored arm.
func (f *RandomizationFlowImpl) persist(ctx context.Context, study *models.Study, participant *models.Participant, assignment *models.ArmAssignment) (*dto.AssignmentResponse, error) {
	stored, inserted, err := f.armAssignmentRepo.SaveIfAbsent(ctx, assignment)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return toAssignmentDTO(study, participant, stored, models.AssignmentTypePersistent), nil
	}

	f.ensureFirstWave(ctx, study, participant)

	return toAssignmentDTO(study, participant, stored, stored.Type), nil
}

// ensureFirstWave opens the first wave assignment at study entry. Progression
// bookkeeping is best-effort relative to the assignment itself.
func (f *RandomizationFlowImpl) ensureFirstWave(ctx context.Context, study *models.Study, participant *models.Participant) {
	waves, err := f.waveRepo.ListByStudy(ctx, study.ID)
	if err != nil {
		f.logger.Printf("randomization: failed to list waves for study %s: %v", study.UUID, err)
		return
	}
	if len(waves) == 0 {
		return
	}

	first := waves[0]
	wa := &models.WaveAssignment{
		ParticipantID: participant.ID,
		WaveID:        first.ID,
		StudyID:       study.ID,
		Status:        models.WaveAssignmentStatusPending,
		AssignedAt:    f.now(),
	}
	if _, _, err := f.waveAssignmentRepo.SaveIfAbsent(ctx, wa); err != nil {
		f.logger.Printf("randomization: failed to open wave %d for participant %s: %v", first.WaveIndex, participant.Code, err)
	}
}

func (f *RandomizationFlowImpl) resolve(ctx context.Context, studyUUID, participantCode string) (*models.Study, *models.Participant, error) {
	if participantCode == "" {
		return nil, nil, NewBusinessError("INVALID_PARTICIPANT", "participant identifier is required", ErrInvalidParticipant)
	}

	study, err := f.studyRepo.ByUUID(ctx, studyUUID)
	if err != nil {
		return nil, nil, err
	}
	if study == nil {
		return nil, nil, NewBusinessError("STUDY_NOT_FOUND", "study not found", ErrStudyNotFound)
	}

	participant, err := f.participantRepo.ByCode(ctx, participantCode)
	if err != nil {
		return nil, nil, err
	}
	if participant == nil {
		return nil, nil, NewBusinessError("INVALID_PARTICIPANT", "participant not found", ErrParticipantNotFound)
	}

	return study, participant, nil
}

func toAssignmentDTO(study *models.Study, participant *models.Participant, assignment *models.ArmAssignment, typ models.AssignmentType) *dto.AssignmentResponse {
	return &dto.AssignmentResponse{
		StudyUUID:       study.UUID.String(),
		ParticipantCode: participant.Code,
		Arm:             assignment.Arm,
		Seed:            assignment.Seed,
		Type:            string(typ),
		CreatedAt:       assignment.CreatedAt.Format(time.RFC3339),
	}
}
