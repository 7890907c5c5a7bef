package businessflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opencohort/longwave/models"
)

// In-memory repository fakes. They implement only the behavior the flows
// exercise; the generic query methods that no flow calls return zero values.

type fakeStudyRepo struct {
	mu      sync.Mutex
	studies []*models.Study
}

func (r *fakeStudyRepo) ByID(ctx context.Context, id uint) (*models.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.studies {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeStudyRepo) ByUUID(ctx context.Context, u string) (*models.Study, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.studies {
		if s.UUID.String() == u {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeStudyRepo) ByFilter(ctx context.Context, filter models.StudyFilter, orderBy string, limit, offset int) ([]*models.Study, error) {
	return nil, nil
}

func (r *fakeStudyRepo) Save(ctx context.Context, s *models.Study) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		s.ID = uint(len(r.studies) + 1)
	}
	r.studies = append(r.studies, s)
	return nil
}

func (r *fakeStudyRepo) SaveBatch(ctx context.Context, entities []*models.Study) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeStudyRepo) Count(ctx context.Context, filter models.StudyFilter) (int64, error) {
	return int64(len(r.studies)), nil
}

func (r *fakeStudyRepo) Exists(ctx context.Context, filter models.StudyFilter) (bool, error) {
	return len(r.studies) > 0, nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants []*models.Participant
}

func (r *fakeParticipantRepo) ByID(ctx context.Context, id uint) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ByUUID(ctx context.Context, u string) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.UUID.String() == u {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ByCode(ctx context.Context, code string) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ByFilter(ctx context.Context, filter models.ParticipantFilter, orderBy string, limit, offset int) ([]*models.Participant, error) {
	return nil, nil
}

func (r *fakeParticipantRepo) Save(ctx context.Context, p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = uint(len(r.participants) + 1)
	}
	r.participants = append(r.participants, p)
	return nil
}

func (r *fakeParticipantRepo) SaveBatch(ctx context.Context, entities []*models.Participant) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeParticipantRepo) Count(ctx context.Context, filter models.ParticipantFilter) (int64, error) {
	return int64(len(r.participants)), nil
}

func (r *fakeParticipantRepo) Exists(ctx context.Context, filter models.ParticipantFilter) (bool, error) {
	return len(r.participants) > 0, nil
}

type fakeWaveRepo struct {
	mu    sync.Mutex
	waves []*models.Wave
}

func (r *fakeWaveRepo) sorted() []*models.Wave {
	out := make([]*models.Wave, len(r.waves))
	copy(out, r.waves)
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudyID != out[j].StudyID {
			return out[i].StudyID < out[j].StudyID
		}
		return out[i].WaveIndex < out[j].WaveIndex
	})
	return out
}

func (r *fakeWaveRepo) ByID(ctx context.Context, id uint) (*models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.waves {
		if w.ID == id {
			return w, nil
		}
	}
	return nil, nil
}

func (r *fakeWaveRepo) ByUUID(ctx context.Context, u string) (*models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.waves {
		if w.UUID.String() == u {
			return w, nil
		}
	}
	return nil, nil
}

func (r *fakeWaveRepo) ByStudyAndIndex(ctx context.Context, studyID uint, waveIndex int) (*models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.waves {
		if w.StudyID == studyID && w.WaveIndex == waveIndex {
			return w, nil
		}
	}
	return nil, nil
}

func (r *fakeWaveRepo) ListByStudy(ctx context.Context, studyID uint) ([]*models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Wave
	for _, w := range r.sorted() {
		if w.StudyID == studyID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWaveRepo) ListReminderEnabled(ctx context.Context, frequency models.ReminderFrequency) ([]*models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Wave
	for _, w := range r.sorted() {
		if w.ReminderEnabled && w.ReminderFrequency == frequency {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeWaveRepo) ByFilter(ctx context.Context, filter models.WaveFilter, orderBy string, limit, offset int) ([]*models.Wave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Wave
	for _, w := range r.sorted() {
		if filter.StudyID != nil && w.StudyID != *filter.StudyID {
			continue
		}
		if filter.ReminderEnabled != nil && w.ReminderEnabled != *filter.ReminderEnabled {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *fakeWaveRepo) Save(ctx context.Context, w *models.Wave) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w.ID == 0 {
		w.ID = uint(len(r.waves) + 1)
	}
	r.waves = append(r.waves, w)
	return nil
}

func (r *fakeWaveRepo) SaveBatch(ctx context.Context, entities []*models.Wave) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeWaveRepo) Count(ctx context.Context, filter models.WaveFilter) (int64, error) {
	return int64(len(r.waves)), nil
}

func (r *fakeWaveRepo) Exists(ctx context.Context, filter models.WaveFilter) (bool, error) {
	return len(r.waves) > 0, nil
}

type fakeConfigRepo struct {
	mu      sync.Mutex
	configs []*models.RandomizationConfig
}

func (r *fakeConfigRepo) ByID(ctx context.Context, id uint) (*models.RandomizationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) ByStudy(ctx context.Context, studyID uint) (*models.RandomizationConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.configs {
		if c.StudyID == studyID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeConfigRepo) ByFilter(ctx context.Context, filter models.RandomizationConfigFilter, orderBy string, limit, offset int) ([]*models.RandomizationConfig, error) {
	return nil, nil
}

func (r *fakeConfigRepo) Save(ctx context.Context, c *models.RandomizationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = uint(len(r.configs) + 1)
	}
	r.configs = append(r.configs, c)
	return nil
}

func (r *fakeConfigRepo) SaveBatch(ctx context.Context, entities []*models.RandomizationConfig) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeConfigRepo) Count(ctx context.Context, filter models.RandomizationConfigFilter) (int64, error) {
	return int64(len(r.configs)), nil
}

func (r *fakeConfigRepo) Exists(ctx context.Context, filter models.RandomizationConfigFilter) (bool, error) {
	return len(r.configs) > 0, nil
}

type fakeArmAssignmentRepo struct {
	mu          sync.Mutex
	assignments []*models.ArmAssignment
	nextID      uint
}

func (r *fakeArmAssignmentRepo) ByID(ctx context.Context, id uint) (*models.ArmAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assignments {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (r *fakeArmAssignmentRepo) ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.ArmAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(studyID, participantID), nil
}

func (r *fakeArmAssignmentRepo) find(studyID, participantID uint) *models.ArmAssignment {
	for _, a := range r.assignments {
		if a.StudyID == studyID && a.ParticipantID == participantID {
			return a
		}
	}
	return nil
}

func (r *fakeArmAssignmentRepo) SaveIfAbsent(ctx context.Context, assignment *models.ArmAssignment) (*models.ArmAssignment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.find(assignment.StudyID, assignment.ParticipantID); existing != nil {
		return existing, false, nil
	}
	r.nextID++
	assignment.ID = r.nextID
	r.assignments = append(r.assignments, assignment)
	return assignment, true, nil
}

func (r *fakeArmAssignmentRepo) DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.assignments[:0]
	for _, a := range r.assignments {
		if !(a.StudyID == studyID && a.ParticipantID == participantID) {
			out = append(out, a)
		}
	}
	r.assignments = out
	return nil
}

func (r *fakeArmAssignmentRepo) ByFilter(ctx context.Context, filter models.ArmAssignmentFilter, orderBy string, limit, offset int) ([]*models.ArmAssignment, error) {
	return nil, nil
}

func (r *fakeArmAssignmentRepo) Save(ctx context.Context, a *models.ArmAssignment) error {
	_, _, err := r.SaveIfAbsent(ctx, a)
	return err
}

func (r *fakeArmAssignmentRepo) SaveBatch(ctx context.Context, entities []*models.ArmAssignment) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeArmAssignmentRepo) Count(ctx context.Context, filter models.ArmAssignmentFilter) (int64, error) {
	return int64(len(r.assignments)), nil
}

func (r *fakeArmAssignmentRepo) Exists(ctx context.Context, filter models.ArmAssignmentFilter) (bool, error) {
	return len(r.assignments) > 0, nil
}

type fakeWaveAssignmentRepo struct {
	mu          sync.Mutex
	assignments []*models.WaveAssignment
	nextID      uint
}

func (r *fakeWaveAssignmentRepo) ByID(ctx context.Context, id uint) (*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID == id {
			return wa, nil
		}
	}
	return nil, nil
}

func (r *fakeWaveAssignmentRepo) ByParticipantAndWave(ctx context.Context, participantID, waveID uint) (*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(participantID, waveID), nil
}

func (r *fakeWaveAssignmentRepo) find(participantID, waveID uint) *models.WaveAssignment {
	for _, wa := range r.assignments {
		if wa.ParticipantID == participantID && wa.WaveID == waveID {
			return wa
		}
	}
	return nil
}

func (r *fakeWaveAssignmentRepo) ListByStudyAndParticipant(ctx context.Context, studyID, participantID uint) ([]*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WaveAssignment
	for _, wa := range r.assignments {
		if wa.StudyID == studyID && wa.ParticipantID == participantID {
			out = append(out, wa)
		}
	}
	return out, nil
}

func (r *fakeWaveAssignmentRepo) ListPendingOlderThan(ctx context.Context, waveID uint, cutoff time.Time, limit int) ([]*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WaveAssignment
	for _, wa := range r.assignments {
		if wa.WaveID != waveID || wa.Status != models.WaveAssignmentStatusPending {
			continue
		}
		if !wa.AssignedAt.Before(cutoff) {
			continue
		}
		out = append(out, wa)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeWaveAssignmentRepo) SaveIfAbsent(ctx context.Context, assignment *models.WaveAssignment) (*models.WaveAssignment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.find(assignment.ParticipantID, assignment.WaveID); existing != nil {
		return existing, false, nil
	}
	r.nextID++
	assignment.ID = r.nextID
	r.assignments = append(r.assignments, assignment)
	return assignment, true, nil
}

func (r *fakeWaveAssignmentRepo) MarkSubmitted(ctx context.Context, id uint, submittedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID != id {
			continue
		}
		switch wa.Status {
		case models.WaveAssignmentStatusPending, models.WaveAssignmentStatusInProgress, models.WaveAssignmentStatusExpired:
			wa.Status = models.WaveAssignmentStatusSubmitted
			at := submittedAt
			wa.SubmittedAt = &at
			return true, nil
		default:
			return false, nil
		}
	}
	return false, nil
}

func (r *fakeWaveAssignmentRepo) MarkViewed(ctx context.Context, id uint, viewedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID != id {
			continue
		}
		if wa.FirstViewedAt == nil {
			at := viewedAt
			wa.FirstViewedAt = &at
		}
		if wa.Status == models.WaveAssignmentStatusPending {
			wa.Status = models.WaveAssignmentStatusInProgress
		}
		return nil
	}
	return nil
}

func (r *fakeWaveAssignmentRepo) UpdateStatus(ctx context.Context, id uint, from, to models.WaveAssignmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID == id && wa.Status == from {
			wa.Status = to
			return true, nil
		}
	}
	return false, nil
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
			return nil
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
			return nil
		}
	}
	return nil
}

func (r *fakeWaveAssignmentRepo) ResetDeliveryFailures(ctx context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, wa := range r.assignments {
		if wa.ID == id {
			wa.RetryCount = 0
			return nil
		}
	}
	return nil
}

func (r *fakeWaveAssignmentRepo) DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.assignments[:0]
	for _, wa := range r.assignments {
		if !(wa.StudyID == studyID && wa.ParticipantID == participantID) {
			out = append(out, wa)
		}
	}
	r.assignments = out
	return nil
}

func (r *fakeWaveAssignmentRepo) ByFilter(ctx context.Context, filter models.WaveAssignmentFilter, orderBy string, limit, offset int) ([]*models.WaveAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.WaveAssignment
	for _, wa := range r.assignments {
		if filter.WaveID != nil && wa.WaveID != *filter.WaveID {
			continue
		}
		if filter.Status != nil && wa.Status != *filter.Status {
			continue
		}
		if filter.ParticipantID != nil && wa.ParticipantID != *filter.ParticipantID {
			continue
		}
		out = append(out, wa)
	}
	return out, nil
}

func (r *fakeWaveAssignmentRepo) Save(ctx context.Context, wa *models.WaveAssignment) error {
	_, _, err := r.SaveIfAbsent(ctx, wa)
	return err
}

func (r *fakeWaveAssignmentRepo) SaveBatch(ctx context.Context, entities []*models.WaveAssignment) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeWaveAssignmentRepo) Count(ctx context.Context, filter models.WaveAssignmentFilter) (int64, error) {
	return int64(len(r.assignments)), nil
}

func (r *fakeWaveAssignmentRepo) Exists(ctx context.Context, filter models.WaveAssignmentFilter) (bool, error) {
	return len(r.assignments) > 0, nil
}

type fakeReminderTokenRepo struct {
	mu     sync.Mutex
	tokens []*models.ReminderToken
	nextID uint
}

func (r *fakeReminderTokenRepo) ByID(ctx context.Context, id uint) (*models.ReminderToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeReminderTokenRepo) ByTokenHash(ctx context.Context, tokenHash string) (*models.ReminderToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == tokenHash {
			return t, nil
		}
	}
	return nil, nil
}

func (r *fakeReminderTokenRepo) MarkUsed(ctx context.Context, id uint, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.ID == id && t.UsedAt == nil {
			at := usedAt
			t.UsedAt = &at
		}
	}
	return nil
}

func (r *fakeReminderTokenRepo) DeleteByParticipant(ctx context.Context, participantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.tokens[:0]
	for _, t := range r.tokens {
		if t.ParticipantID != participantID {
			out = append(out, t)
		}
	}
	r.tokens = out
	return nil
}

func (r *fakeReminderTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	out := r.tokens[:0]
	for _, t := range r.tokens {
		if t.ExpiresAt.Before(cutoff) {
			removed++
			continue
		}
		out = append(out, t)
	}
	r.tokens = out
	return removed, nil
}

func (r *fakeReminderTokenRepo) ByFilter(ctx context.Context, filter models.ReminderTokenFilter, orderBy string, limit, offset int) ([]*models.ReminderToken, error) {
	return nil, nil
}

func (r *fakeReminderTokenRepo) Save(ctx context.Context, t *models.ReminderToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == 0 {
		r.nextID++
		t.ID = r.nextID
	}
	r.tokens = append(r.tokens, t)
	return nil
}

func (r *fakeReminderTokenRepo) SaveBatch(ctx context.Context, entities []*models.ReminderToken) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeReminderTokenRepo) Count(ctx context.Context, filter models.ReminderTokenFilter) (int64, error) {
	return int64(len(r.tokens)), nil
}

func (r *fakeReminderTokenRepo) Exists(ctx context.Context, filter models.ReminderTokenFilter) (bool, error) {
	return len(r.tokens) > 0, nil
}

type fakeSuppressionRepo struct {
	mu     sync.Mutex
	flags  []*models.SuppressionFlag
	nextID uint
}

func (r *fakeSuppressionRepo) ByID(ctx context.Context, id uint) (*models.SuppressionFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.flags {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, nil
}

func (r *fakeSuppressionRepo) ByStudyAndParticipant(ctx context.Context, studyID, participantID uint) (*models.SuppressionFlag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(studyID, participantID), nil
}

func (r *fakeSuppressionRepo) find(studyID, participantID uint) *models.SuppressionFlag {
	for _, f := range r.flags {
		if f.StudyID == studyID && f.ParticipantID == participantID {
			return f
		}
	}
	return nil
}

func (r *fakeSuppressionRepo) SaveIfAbsent(ctx context.Context, flag *models.SuppressionFlag) (*models.SuppressionFlag, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.find(flag.StudyID, flag.ParticipantID); existing != nil {
		return existing, false, nil
	}
	r.nextID++
	flag.ID = r.nextID
	r.flags = append(r.flags, flag)
	return flag, true, nil
}

func (r *fakeSuppressionRepo) DeleteByStudyAndParticipant(ctx context.Context, studyID, participantID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.flags[:0]
	for _, f := range r.flags {
		if !(f.StudyID == studyID && f.ParticipantID == participantID) {
			out = append(out, f)
		}
	}
	r.flags = out
	return nil
}

func (r *fakeSuppressionRepo) ByFilter(ctx context.Context, filter models.SuppressionFlagFilter, orderBy string, limit, offset int) ([]*models.SuppressionFlag, error) {
	return nil, nil
}

func (r *fakeSuppressionRepo) Save(ctx context.Context, f *models.SuppressionFlag) error {
	_, _, err := r.SaveIfAbsent(ctx, f)
	return err
}

func (r *fakeSuppressionRepo) SaveBatch(ctx context.Context, entities []*models.SuppressionFlag) error {
	for _, e := range entities {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeSuppressionRepo) Count(ctx context.Context, filter models.SuppressionFlagFilter) (int64, error) {
	return int64(len(r.flags)), nil
}

func (r *fakeSuppressionRepo) Exists(ctx context.Context, filter models.SuppressionFlagFilter) (bool, error) {
	return len(r.flags) > 0, nil
}
