package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencohort/longwave/models"
)

type progressionEnv struct {
	flow            WaveProgressionFlow
	studies         *fakeStudyRepo
	participants    *fakeParticipantRepo
	waves           *fakeWaveRepo
	waveAssignments *fakeWaveAssignmentRepo
	study           *models.Study
	participant     *models.Participant
	clock           time.Time
}

func newProgressionEnv(t *testing.T, waveCount int) *progressionEnv {
	t.Helper()

	env := &progressionEnv{
		studies:         &fakeStudyRepo{},
		participants:    &fakeParticipantRepo{},
		waves:           &fakeWaveRepo{},
		waveAssignments: &fakeWaveAssignmentRepo{},
		clock:           time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	ctx := context.Background()
	env.study = &models.Study{UUID: uuid.New(), Title: "Mood Diary", Status: models.StudyStatusActive}
	require.NoError(t, env.studies.Save(ctx, env.study))
	env.participant = &models.Participant{UUID: uuid.New(), Code: "P-2002", Email: "p2002@example.org", IsActive: true}
	require.NoError(t, env.participants.Save(ctx, env.participant))

	for i := 1; i <= waveCount; i++ {
		require.NoError(t, env.waves.Save(ctx, &models.Wave{
			UUID:        uuid.New(),
			StudyID:     env.study.ID,
			WaveIndex:   i,
			FormRef:     "form",
			IsMandatory: true,
		}))
	}

	env.flow = NewWaveProgressionFlow(
		env.studies, env.participants, env.waves, env.waveAssignments,
		nil, func() time.Time { return env.clock }, 0)

	return env
}

func (env *progressionEnv) submit(t *testing.T, waveIndex int) *SubmissionResult {
	t.Helper()
	res, err := env.flow.MarkSubmitted(context.Background(), env.study.UUID.String(), env.participant.Code, waveIndex)
	require.NoError(t, err)
	return &SubmissionResult{res.Tracked, res.AlreadySubmitted, res.NextWaveIndex, res.StudyCompleted}
}

// SubmissionResult flattens the fields the progression tests assert on
type SubmissionResult struct {
	Tracked          bool
	AlreadySubmitted bool
	NextWaveIndex    *int
	StudyCompleted   bool
}

func TestNextPendingWave_StartsAtFirstWave(t *testing.T) {
	env := newProgressionEnv(t, 3)
	ctx := context.Background()

	res, err := env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)
	require.False(t, res.Completed)
	assert.Equal(t, 1, res.Wave.WaveIndex)

	// The read lazily created the row
	count, err := env.waveAssignments.Count(ctx, models.WaveAssignmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Reading again neither advances nor duplicates
	res, err = env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Wave.WaveIndex)
	count, _ = env.waveAssignments.Count(ctx, models.WaveAssignmentFilter{})
	assert.Equal(t, int64(1), count)
}

func TestMarkSubmitted_AdvancesInOrder(t *testing.T) {
	env := newProgressionEnv(t, 3)
	ctx := context.Background()

	_, err := env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)

	res := env.submit(t, 1)
	assert.True(t, res.Tracked)
	assert.False(t, res.AlreadySubmitted)
	require.NotNil(t, res.NextWaveIndex)
	assert.Equal(t, 2, *res.NextWaveIndex)

	res = env.submit(t, 2)
	require.NotNil(t, res.NextWaveIndex)
	assert.Equal(t, 3, *res.NextWaveIndex)

	res = env.submit(t, 3)
	assert.Nil(t, res.NextWaveIndex)
	assert.True(t, res.StudyCompleted)

	next, err := env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)
	assert.True(t, next.Completed)
}

func TestMarkSubmitted_IsIdempotent(t *testing.T) {
	env := newProgressionEnv(t, 2)
	ctx := context.Background()

	_, err := env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)

	first := env.submit(t, 1)
	require.True(t, first.Tracked)
	require.False(t, first.AlreadySubmitted)

	again := env.submit(t, 1)
	assert.True(t, again.Tracked, "a duplicate submission event still reports success")
	assert.True(t, again.AlreadySubmitted)
}

func TestMarkSubmitted_UntrackedCasesAreNotErrors(t *testing.T) {
	env := newProgressionEnv(t, 2)

	// No wave assignment row exists yet
	res := env.submit(t, 1)
	assert.False(t, res.Tracked)

	// Wave index does not exist at all
	res = env.submit(t, 99)
	assert.False(t, res.Tracked)
}

func TestSkipWave_MandatoryIsRejected(t *testing.T) {
	env := newProgressionEnv(t, 2)

	_, err := env.flow.SkipWave(context.Background(), env.study.UUID.String(), env.participant.Code, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaveMandatory))
}

func TestSkipWave_NonMandatorySkipsAndProgresses(t *testing.T) {
	env := newProgressionEnv(t, 3)
	ctx := context.Background()

	// Make wave 2 optional
	wave2, err := env.waves.ByStudyAndIndex(ctx, env.study.ID, 2)
	require.NoError(t, err)
	wave2.IsMandatory = false

	_, err = env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)
	res := env.submit(t, 1)
	require.True(t, res.Tracked)

	skip, err := env.flow.SkipWave(ctx, env.study.UUID.String(), env.participant.Code, 2)
	require.NoError(t, err)
	assert.True(t, skip.Skipped)

	// Skipping again stays idempotent
	skip, err = env.flow.SkipWave(ctx, env.study.UUID.String(), env.participant.Code, 2)
	require.NoError(t, err)
	assert.True(t, skip.Skipped)

	next, err := env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)
	require.False(t, next.Completed)
	assert.Equal(t, 3, next.Wave.WaveIndex, "skipped optional wave no longer blocks progression")
}

func TestSkipWave_SubmittedIsTerminal(t *testing.T) {
	env := newProgressionEnv(t, 2)
	ctx := context.Background()

	wave1, err := env.waves.ByStudyAndIndex(ctx, env.study.ID, 1)
	require.NoError(t, err)
	wave1.IsMandatory = false

	_, err = env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)
	res := env.submit(t, 1)
	require.True(t, res.Tracked)

	_, err = env.flow.SkipWave(ctx, env.study.UUID.String(), env.participant.Code, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaveAlreadyTerminal))
}

func TestMarkViewed_MovesPendingToInProgress(t *testing.T) {
	env := newProgressionEnv(t, 1)
	ctx := context.Background()

	require.NoError(t, env.flow.MarkViewed(ctx, env.study.UUID.String(), env.participant.Code, 1))

	wave1, err := env.waves.ByStudyAndIndex(ctx, env.study.ID, 1)
	require.NoError(t, err)
	wa, err := env.waveAssignments.ByParticipantAndWave(ctx, env.participant.ID, wave1.ID)
	require.NoError(t, err)
	require.NotNil(t, wa)
	assert.Equal(t, models.WaveAssignmentStatusInProgress, wa.Status)
	assert.NotNil(t, wa.FirstViewedAt)
}

func TestExpireOverdue_ExpiresOpenAssignmentsOnce(t *testing.T) {
	env := newProgressionEnv(t, 1)
	ctx := context.Background()

	wave1, err := env.waves.ByStudyAndIndex(ctx, env.study.ID, 1)
	require.NoError(t, err)
	due := env.clock.Add(-30 * 24 * time.Hour)
	wave1.DueDate = &due

	_, err = env.flow.NextPendingWave(ctx, env.study.UUID.String(), env.participant.Code)
	require.NoError(t, err)

	expired, err := env.flow.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	// Second pass finds nothing left to expire
	expired, err = env.flow.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	wa, err := env.waveAssignments.ByParticipantAndWave(ctx, env.participant.ID, wave1.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WaveAssignmentStatusExpired, wa.Status)
}
