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

// WaveProgressionFlow is the state machine over (participant, wave) pairs. It
// advances a participant to the next eligible wave on submission and reports
// completion. Submission tracking is best-effort relative to the primary
// data-capture path: a submission event with no matching wave assignment is
// logged, never fatal.
type WaveProgressionFlow interface {
	// MarkSubmitted transitions the wave assignment to submitted. Re-marking
	// an already-submitted wave is a no-op reported as tracked, since
	// delivery retries can duplicate the call.
	MarkSubmitted(ctx context.Context, studyUUID, participantCode string, waveIndex int) (*dto.SubmissionResponse, error)
	// NextPendingWave returns the lowest-index wave not yet satisfied, or
	// reports study completion. It never skips a wave and never
	// double-creates a row for the same (participant, wave).
	NextPendingWave(ctx context.Context, studyUUID, participantCode string) (*dto.NextWaveResponse, error)
	// MarkViewed stamps first view and moves pending to in_progress;
	// optional, not required for correctness
	MarkViewed(ctx context.Context, studyUUID, participantCode string, waveIndex int) error
	// SkipWave marks a non-mandatory wave skipped
	SkipWave(ctx context.Context, studyUUID, participantCode string, waveIndex int) (*dto.SkipWaveResponse, error)
	// ExpireOverdue is the housekeeping pass expiring open assignments of
	// waves whose due date plus grace has elapsed; returns how many expired
	ExpireOverdue(ctx context.Context) (int, error)
}

// WaveProgressionFlowImpl implements WaveProgressionFlow
type WaveProgressionFlowImpl struct {
	studyRepo          repository.StudyRepository
	participantRepo    repository.ParticipantRepository
	waveRepo           repository.WaveRepository
	waveAssignmentRepo repository.WaveAssignmentRepository
	logger             *log.Logger
	now                Clock
	grace              time.Duration
}

// NewWaveProgressionFlow creates a new wave progression flow
func NewWaveProgressionFlow(
	studyRepo repository.StudyRepository,
	participantRepo repository.ParticipantRepository,
	waveRepo repository.WaveRepository,
	waveAssignmentRepo repository.WaveAssignmentRepository,
	logger *log.Logger,
	now Clock,
	grace time.Duration,
) WaveProgressionFlow {
	if logger == nil {
		logger = log.Default()
	}
	if grace <= 0 {
		grace = utils.DefaultDueDateGrace
	}
	return &WaveProgressionFlowImpl{
		studyRepo:          studyRepo,
		participantRepo:    participantRepo,
		waveRepo:           waveRepo,
		waveAssignmentRepo: waveAssignmentRepo,
		logger:             logger,
		now:                clockOrDefault(now),
		grace:              grace,
	}
}

func (f *WaveProgressionFlowImpl) MarkSubmitted(ctx context.Context, studyUUID, participantCode string, waveIndex int) (*dto.SubmissionResponse, error) {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return nil, err
	}

	wave, err := f.waveRepo.ByStudyAndIndex(ctx, study.ID, waveIndex)
	if err != nil {
		return nil, err
	}
	if wave == nil {
		f.logger.Printf("progression: submission for unknown wave %d of study %s by participant %s", waveIndex, studyUUID, participantCode)
		return &dto.SubmissionResponse{Tracked: false}, nil
	}

	wa, err := f.waveAssignmentRepo.ByParticipantAndWave(ctx, participant.ID, wave.ID)
	if err != nil {
		return nil, err
	}
	if wa == nil {
		f.logger.Printf("progression: submission with no wave assignment (participant=%s study=%s wave=%d)", participantCode, studyUUID, waveIndex)
		return &dto.SubmissionResponse{Tracked: false}, nil
	}

	if wa.IsSubmitted() {
		var at *string
		if wa.SubmittedAt != nil {
			s := wa.SubmittedAt.Format(time.RFC3339)
			at = &s
		}
		next, completed := f.openNextWave(ctx, study, participant, wave, false)
		return &dto.SubmissionResponse{
			Tracked:          true,
			AlreadySubmitted: true,
			SubmittedAt:      at,
			NextWaveIndex:    next,
			StudyCompleted:   completed,
		}, nil
	}
	if wa.Status == models.WaveAssignmentStatusSkipped {
		f.logger.Printf("progression: submission for skipped wave %d ignored (participant=%s study=%s)", waveIndex, participantCode, studyUUID)
		return &dto.SubmissionResponse{Tracked: false}, nil
	}

	submittedAt := f.now()
	transitioned, err := f.waveAssignmentRepo.MarkSubmitted(ctx, wa.ID, submittedAt)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		// Raced with another submission event; the first write holds
		fresh, err := f.waveAssignmentRepo.ByID(ctx, wa.ID)
		if err == nil && fresh != nil && fresh.SubmittedAt != nil {
			submittedAt = *fresh.SubmittedAt
		}
	}

	at := submittedAt.Format(time.RFC3339)
	next, completed := f.openNextWave(ctx, study, participant, wave, true)
	return &dto.SubmissionResponse{
		Tracked:          true,
		AlreadySubmitted: !transitioned,
		SubmittedAt:      &at,
		NextWaveIndex:    next,
		StudyCompleted:   completed,
	}, nil
}

func (f *WaveProgressionFlowImpl) NextPendingWave(ctx context.Context, studyUUID, participantCode string) (*dto.NextWaveResponse, error) {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return nil, err
	}

	waves, err := f.waveRepo.ListByStudy(ctx, study.ID)
	if err != nil {
		return nil, err
	}

	assignments, err := f.waveAssignmentRepo.ListByStudyAndParticipant(ctx, study.ID, participant.ID)
	if err != nil {
		return nil, err
	}
	byWave := make(map[uint]*models.WaveAssignment, len(assignments))
	for _, wa := range assignments {
		byWave[wa.WaveID] = wa
	}

	for _, wave := range waves {
		if satisfied(byWave[wave.ID], wave) {
			continue
		}

		// Lazy creation: the conflict-do-nothing insert guarantees a
		// single row per (participant, wave) even under concurrent reads
		if byWave[wave.ID] == nil {
			wa := &models.WaveAssignment{
				ParticipantID: participant.ID,
				WaveID:        wave.ID,
				StudyID:       study.ID,
				Status:        models.WaveAssignmentStatusPending,
				AssignedAt:    f.now(),
			}
			if _, _, err := f.waveAssignmentRepo.SaveIfAbsent(ctx, wa); err != nil {
				return nil, err
			}
		}

		return &dto.NextWaveResponse{Wave: toWaveDTO(wave)}, nil
	}

	return &dto.NextWaveResponse{Completed: true}, nil
}

func (f *WaveProgressionFlowImpl) MarkViewed(ctx context.Context, studyUUID, participantCode string, waveIndex int) error {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return err
	}

	wave, err := f.waveRepo.ByStudyAndIndex(ctx, study.ID, waveIndex)
	if err != nil {
		return err
	}
	if wave == nil {
		return NewBusinessError("WAVE_NOT_FOUND", "wave not found", ErrWaveNotFound)
	}

	wa, err := f.waveAssignmentRepo.ByParticipantAndWave(ctx, participant.ID, wave.ID)
	if err != nil {
		return err
	}
	if wa == nil {
		seeded := &models.WaveAssignment{
			ParticipantID: participant.ID,
			WaveID:        wave.ID,
			StudyID:       study.ID,
			Status:        models.WaveAssignmentStatusPending,
			AssignedAt:    f.now(),
		}
		if wa, _, err = f.waveAssignmentRepo.SaveIfAbsent(ctx, seeded); err != nil {
			return err
		}
	}

	return f.waveAssignmentRepo.MarkViewed(ctx, wa.ID, f.now())
}

func (f *WaveProgressionFlowImpl) SkipWave(ctx context.Context, studyUUID, participantCode string, waveIndex int) (*dto.SkipWaveResponse, error) {
	study, participant, err := f.resolve(ctx, studyUUID, participantCode)
	if err != nil {
		return nil, err
	}

	wave, err := f.waveRepo.ByStudyAndIndex(ctx, study.ID, waveIndex)
	if err != nil {
		return nil, err
	}
	if wave == nil {
		return nil, NewBusinessError("WAVE_NOT_FOUND", "wave not found", ErrWaveNotFound)
	}
	if wave.IsMandatory {
		return nil, NewBusinessError("WAVE_MANDATORY", "mandatory wave cannot be skipped", ErrWaveMandatory)
	}

	seeded := &models.WaveAssignment{
		ParticipantID: participant.ID,
		WaveID:        wave.ID,
		StudyID:       study.ID,
		Status:        models.WaveAssignmentStatusPending,
		AssignedAt:    f.now(),
	}
	wa, _, err := f.waveAssignmentRepo.SaveIfAbsent(ctx, seeded)
	if err != nil {
		return nil, err
	}

	skipped, err := f.waveAssignmentRepo.UpdateStatus(ctx, wa.ID, models.WaveAssignmentStatusPending, models.WaveAssignmentStatusSkipped)
	if err != nil {
		return nil, err
	}
	if !skipped {
		fresh, err := f.waveAssignmentRepo.ByID(ctx, wa.ID)
		if err != nil {
			return nil, err
		}
		if fresh != nil && fresh.Status == models.WaveAssignmentStatusSkipped {
			return &dto.SkipWaveResponse{Skipped: true, WaveIndex: waveIndex, Message: "Wave already skipped"}, nil
		}
		return nil, NewBusinessError("WAVE_ALREADY_TERMINAL", "wave assignment cannot be skipped in its current state", ErrWaveAlreadyTerminal)
	}

	return &dto.SkipWaveResponse{Skipped: true, WaveIndex: waveIndex, Message: "Wave skipped"}, nil
}

func (f *WaveProgressionFlowImpl) ExpireOverdue(ctx context.Context) (int, error) {
	waves, err := f.waveRepo.ByFilter(ctx, models.WaveFilter{}, "study_id ASC, wave_index ASC", 0, 0)
	if err != nil {
		return 0, err
	}

	now := f.now()
	expired := 0
	for _, wave := range waves {
		if !wave.IsOverdue(now, f.grace) {
			continue
		}
		for _, status := range []models.WaveAssignmentStatus{
			models.WaveAssignmentStatusPending,
			models.WaveAssignmentStatusInProgress,
		} {
			open, err := f.waveAssignmentRepo.ByFilter(ctx, models.WaveAssignmentFilter{
				WaveID: &wave.ID,
				Status: &status,
			}, "", 0, 0)
			if err != nil {
				return expired, err
			}
			for _, wa := range open {
				ok, err := f.waveAssignmentRepo.UpdateStatus(ctx, wa.ID, status, models.WaveAssignmentStatusExpired)
				if err != nil {
					return expired, err
				}
				if ok {
					expired++
				}
			}
		}
	}

	return expired, nil
}

// openNextWave lazily creates the wave assignment following the submitted
// wave. Returns the next wave index, or completion when no waves remain.
func (f *WaveProgressionFlowImpl) openNextWave(ctx context.Context, study *models.Study, participant *models.Participant, submitted *models.Wave, create bool) (*int, bool) {
	waves, err := f.waveRepo.ListByStudy(ctx, study.ID)
	if err != nil {
		f.logger.Printf("progression: failed to list waves for study %s: %v", study.UUID, err)
		return nil, false
	}

	for _, wave := range waves {
		if wave.WaveIndex <= submitted.WaveIndex {
			continue
		}
		if create {
			wa := &models.WaveAssignment{
				ParticipantID: participant.ID,
				WaveID:        wave.ID,
				StudyID:       study.ID,
				Status:        models.WaveAssignmentStatusPending,
				AssignedAt:    f.now(),
			}
			if _, _, err := f.waveAssignmentRepo.SaveIfAbsent(ctx, wa); err != nil {
				f.logger.Printf("progression: failed to open wave %d for participant %s: %v", wave.WaveIndex, participant.Code, err)
			}
		}
		idx := wave.WaveIndex
		return &idx, false
	}

	return nil, true
}

// satisfied reports whether a wave no longer blocks progression: submitted,
// or skipped when the wave is non-mandatory
func satisfied(wa *models.WaveAssignment, wave *models.Wave) bool {
	if wa == nil {
		return false
	}
	if wa.Status == models.WaveAssignmentStatusSubmitted {
		return true
	}
	return wa.Status == models.WaveAssignmentStatusSkipped && !wave.IsMandatory
}

func (f *WaveProgressionFlowImpl) resolve(ctx context.Context, studyUUID, participantCode string) (*models.Study, *models.Participant, error) {
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

func toWaveDTO(wave *models.Wave) *dto.WaveDTO {
	out := &dto.WaveDTO{
		UUID:              wave.UUID.String(),
		WaveIndex:         wave.WaveIndex,
		FormRef:           wave.FormRef,
		ReminderEnabled:   wave.ReminderEnabled,
		ReminderFrequency: string(wave.ReminderFrequency),
		IsMandatory:       wave.IsMandatory,
	}
	if wave.StartDate != nil {
		s := wave.StartDate.Format(time.RFC3339)
		out.StartDate = &s
	}
	if wave.DueDate != nil {
		s := wave.DueDate.Format(time.RFC3339)
		out.DueDate = &s
	}
	return out
}
