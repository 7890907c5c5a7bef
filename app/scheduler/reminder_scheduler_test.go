package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencohort/longwave/app/dto"
	businessflow "github.com/opencohort/longwave/business_flow"
	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/repository"
)

// The fakes embed the repository interfaces and implement only the methods
// the scheduler calls; anything else panics loudly in a test.

type fakeStudyRepo struct {
	repository.StudyRepository
	studies []*models.Study
}

func (r *fakeStudyRepo) ByUUID(ctx context.Context, u string) (*models.Study, error) {
	for _, s := range r.studies {
		if s.UUID.String() == u {
			return s, nil
		}
	}
	return nil, nil
}

type fakeWaveRepo struct {
	repository.WaveRepository
	waves []*models.Wave
}

func (r *fakeWaveRepo) ListReminderEnabled(ctx context.Context, frequency models.ReminderFrequency) ([]*models.Wave, error) {
	var out []*models.Wave
	for _, w := range r.waves {
		if w.ReminderEnabled && w.ReminderFrequency == frequency {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWaveRepo) ByStudyAndIndex(ctx context.Context, studyID uint, waveIndex int) (*models.Wave, error) {
	for _, w := range r.waves {
		if w.StudyID == studyID && w.WaveIndex == waveIndex {
			return w, nil
		}
	}
	return nil, nil
}

type fakeWaveAssignmentRepo struct {
	repository.WaveAssignmentRepository
	mu          sync.Mutex
	assignments []*models.WaveAssignment
}

func (r *fakeWaveAssignmentRepo) ListPendingOlderThan(ctx context.Context, waveID uint, cutoff time.Time, limit int) ([]*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WaveAssignment
	for _, wa := range r.assignments {
		if wa.WaveID == waveID && wa.Status == models.WaveAssignmentStatusPending && wa.AssignedAt.Before(cutoff) {
			out = append(out, wa)
		}
	}
	return out, nil
}

func (r *fakeWaveAssignmentRepo) ByParticipantAndWave(ctx context.Context, participantID, waveID uint) (*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ParticipantID == participantID && wa.WaveID == waveID {
			return wa, nil
		}
	}
	return nil, nil
}

func (r *fakeWaveAssignmentRepo) RecordReminderSent(ctx context.Context, id uint, sentAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID == id {
			wa.ReminderCount++
			at := sentAt
			wa.LastReminderSent = &at
			wa.RetryCount = 0
		}
	}
	return nil
}

func (r *fakeWaveAssignmentRepo) RecordDeliveryFailure(ctx context.Context, id uint, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID == id {
			wa.RetryCount++
			at := failedAt
			wa.LastRetrySent = &at
		}
	}
	return nil
}

type fakeParticipantRepo struct {
	repository.ParticipantRepository
	participants []*models.Participant
}

func (r *fakeParticipantRepo) ByID(ctx context.Context, id uint) (*models.Participant, error) {
	for _, p := range r.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ByCode(ctx context.Context, code string) (*models.Participant, error) {
	for _, p := range r.participants {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, nil
}

type fakeArmAssignmentRepo struct {
	repository.ArmAssignmentRepository
	assignments []*models.ArmAssignment
}

func (r *fakeArmAssignmentRepo) ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.ArmAssignment, error) {
	for _, a := range r.assignments {
		if a.StudyID == studyID && a.ParticipantID == participantID {
			return a, nil
		}
	}
	return nil, nil
}

type fakeSuppressionRepo struct {
	repository.SuppressionFlagRepository
	flags []*models.SuppressionFlag
}

func (r *fakeSuppressionRepo) ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.SuppressionFlag, error) {
	for _, f := range r.flags {
		if f.StudyID == studyID && f.ParticipantID == participantID {
			return f, nil
		}
	}
	return nil, nil
}

type stubTokenFlow struct {
	issued int
}

func (f *stubTokenFlow) Issue(ctx context.Context, participantID, waveID uint, arm string, manual bool) (*dto.IssuedTokenResponse, error) {
	f.issued++
	return &dto.IssuedTokenResponse{Token: fmt.Sprintf("token-%d", f.issued), Manual: manual}, nil
}

func (f *stubTokenFlow) Resolve(ctx context.Context, token string) (*dto.ResolvedTokenResponse, error) {
	return nil, nil
}

func (f *stubTokenFlow) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []string
	failWith error
}

func (n *fakeNotifier) SendEmail(ctx context.Context, email, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failWith != nil {
		return n.failWith
	}
	n.sent = append(n.sent, email)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type schedulerEnv struct {
	scheduler       *ReminderScheduler
	studies         *fakeStudyRepo
	waves           *fakeWaveRepo
	waveAssignments *fakeWaveAssignmentRepo
	participants    *fakeParticipantRepo
	armAssignments  *fakeArmAssignmentRepo
	suppressions    *fakeSuppressionRepo
	notifier        *fakeNotifier
	now             time.Time
	study           *models.Study
	wave            *models.Wave
	participant     *models.Participant
}

func newSchedulerEnv(t *testing.T, rateLimit int) *schedulerEnv {
	t.Helper()

	env := &schedulerEnv{
		studies:         &fakeStudyRepo{},
		waves:           &fakeWaveRepo{},
		waveAssignments: &fakeWaveAssignmentRepo{},
		participants:    &fakeParticipantRepo{},
		armAssignments:  &fakeArmAssignmentRepo{},
		suppressions:    &fakeSuppressionRepo{},
		notifier:        &fakeNotifier{},
		now:             time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	env.study = &models.Study{ID: 1, UUID: uuid.New(), Title: "Cohort", Status: models.StudyStatusActive}
	env.studies.studies = append(env.studies.studies, env.study)
	env.wave = &models.Wave{
		ID: 1, UUID: uuid.New(), StudyID: 1, WaveIndex: 1, FormRef: "weekly-checkin",
		ReminderEnabled: true, ReminderFrequency: models.ReminderFrequencyDaily, MaxRetries: 3,
	}
	env.waves.waves = append(env.waves.waves, env.wave)
	env.participant = &models.Participant{ID: 1, UUID: uuid.New(), Code: "P-5005", Email: "p5005@example.org", IsActive: true}
	env.participants.participants = append(env.participants.participants, env.participant)
	env.armAssignments.assignments = append(env.armAssignments.assignments, &models.ArmAssignment{
		ID: 1, StudyID: 1, ParticipantID: 1, Arm: "treatment", Type: models.AssignmentTypeRandom,
	})

	env.scheduler = NewReminderScheduler(
		env.studies, env.waves, env.waveAssignments, env.participants, env.armAssignments,
		env.suppressions, &stubTokenFlow{}, nil, env.notifier, nil,
		log.New(io.Discard, "", 0),
		models.ReminderFrequencyDaily, 0, rateLimit, 0,
		"https://api.opencohort.org", func() time.Time { return env.now })

	return env
}

// addPending inserts a pending wave assignment aged beyond the eligibility window
func (env *schedulerEnv) addPending(participantID uint, age time.Duration) *models.WaveAssignment {
	wa := &models.WaveAssignment{
		ID:            uint(len(env.waveAssignments.assignments) + 1),
		ParticipantID: participantID,
		WaveID:        env.wave.ID,
		StudyID:       env.study.ID,
		Status:        models.WaveAssignmentStatusPending,
		AssignedAt:    env.now.Add(-age),
	}
	env.waveAssignments.assignments = append(env.waveAssignments.assignments, wa)
	return wa
}

func TestRunOnce_SendsEligibleReminder(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	wa := env.addPending(1, 8*24*time.Hour)

	stats, err := env.scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Eligible)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1, wa.ReminderCount)
	require.NotNil(t, wa.LastReminderSent)
	assert.Equal(t, env.now, *wa.LastReminderSent)
}

func TestRunOnce_YoungAssignmentIsNotEligible(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	env.addPending(1, 2*24*time.Hour) // inside the 7d window

	stats, err := env.scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Eligible)
	assert.Equal(t, 0, env.notifier.count())
}

func TestRunOnce_DedupsWithinSameDay(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	env.addPending(1, 8*24*time.Hour)
	ctx := context.Background()

	stats, err := env.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sent)

	// Second pass on the same UTC day sends nothing
	stats, err = env.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Sent)
	assert.Equal(t, 1, stats.Deduped)
	assert.Equal(t, 1, env.notifier.count())

	// Next day the reminder goes out again
	env.now = env.now.Add(24 * time.Hour)
	stats, err = env.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 2, env.notifier.count())
}

func TestRunOnce_HonorsSuppression(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	env.addPending(1, 8*24*time.Hour)
	env.suppressions.flags = append(env.suppressions.flags, &models.SuppressionFlag{
		ID: 1, StudyID: 1, ParticipantID: 1, Reason: "unsubscribe",
	})

	stats, err := env.scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Supprsd)
	assert.Equal(t, 0, stats.Sent)
	assert.Equal(t, 0, env.notifier.count())
}

func TestRunOnce_ThrottlesAfterRepeatedFailures(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	wa := env.addPending(1, 8*24*time.Hour)
	env.notifier.failWith = fmt.Errorf("smtp unreachable")
	ctx := context.Background()

	// Three consecutive failing passes exhaust the delivery budget
	for i := 1; i <= 3; i++ {
		stats, err := env.scheduler.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Failed, "pass %d", i)
		assert.Equal(t, i, wa.RetryCount)
	}

	stats, err := env.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Throttled)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 3, wa.RetryCount)
}

func TestRunOnce_SuccessResetsFailureCounter(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	wa := env.addPending(1, 8*24*time.Hour)
	env.notifier.failWith = fmt.Errorf("smtp unreachable")
	ctx := context.Background()

	_, err := env.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, wa.RetryCount)

	env.notifier.failWith = nil
	stats, err := env.scheduler.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, wa.RetryCount)
}

func TestRunOnce_RateLimitHaltsPass(t *testing.T) {
	env := newSchedulerEnv(t, 1)
	env.addPending(1, 8*24*time.Hour)
	second := &models.Participant{ID: 2, UUID: uuid.New(), Code: "P-5006", Email: "p5006@example.org", IsActive: true}
	env.participants.participants = append(env.participants.participants, second)
	env.armAssignments.assignments = append(env.armAssignments.assignments, &models.ArmAssignment{
		ID: 2, StudyID: 1, ParticipantID: 2, Arm: "control", Type: models.AssignmentTypeRandom,
	})
	env.addPending(2, 8*24*time.Hour)

	stats, err := env.scheduler.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Sent, "the pass must halt once the budget is spent")
	assert.Equal(t, 1, env.notifier.count())
}

func TestTriggerManualByCode_BypassesWindowButNotSuppression(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	env.addPending(1, time.Hour) // far too young for a scheduled reminder
	ctx := context.Background()

	require.NoError(t, env.scheduler.TriggerManualByCode(ctx, env.study.UUID.String(), env.participant.Code, 1))
	assert.Equal(t, 1, env.notifier.count())

	env.suppressions.flags = append(env.suppressions.flags, &models.SuppressionFlag{
		ID: 1, StudyID: 1, ParticipantID: 1, Reason: "unsubscribe",
	})
	err := env.scheduler.TriggerManualByCode(ctx, env.study.UUID.String(), env.participant.Code, 1)
	require.Error(t, err, "manual dispatch still honors the opt-out")
	assert.Equal(t, 1, env.notifier.count())
}

func TestTriggerManualByCode_ResolutionErrors(t *testing.T) {
	env := newSchedulerEnv(t, 0)
	ctx := context.Background()

	err := env.scheduler.TriggerManualByCode(ctx, uuid.NewString(), env.participant.Code, 1)
	assert.ErrorIs(t, err, businessflow.ErrStudyNotFound)

	err = env.scheduler.TriggerManualByCode(ctx, env.study.UUID.String(), "P-missing", 1)
	assert.ErrorIs(t, err, businessflow.ErrParticipantNotFound)

	err = env.scheduler.TriggerManualByCode(ctx, env.study.UUID.String(), env.participant.Code, 42)
	assert.ErrorIs(t, err, businessflow.ErrWaveNotFound)
}
