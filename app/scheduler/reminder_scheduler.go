// Package scheduler
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	businessflow "github.com/opencohort/longwave/business_flow"
	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/repository"
	"github.com/opencohort/longwave/utils"
)

// NotificationSender is the minimal delivery interface the scheduler needs.
// Any non-nil error counts as a delivery failure for throttling purposes.
type NotificationSender interface {
	SendEmail(ctx context.Context, email, subject, message string) error
}

// RunStats summarizes one scheduler pass
type RunStats struct {
	Eligible  int
	Sent      int
	Failed    int
	Deduped   int
	Supprsd   int
	Throttled int
	Expired   int
}

// ReminderScheduler periodically scans reminder-enabled waves of one cadence
// and dispatches reminder emails to participants with overdue pending waves.
// Correctness under overlapping runs rests on the per-day dedup check and the
// idempotent submission path, not on mutual exclusion.
type ReminderScheduler struct {
	studyRepo          repository.StudyRepository
	waveRepo           repository.WaveRepository
	waveAssignmentRepo repository.WaveAssignmentRepository
	participantRepo    repository.ParticipantRepository
	armAssignmentRepo  repository.ArmAssignmentRepository
	suppressionRepo    repository.SuppressionFlagRepository
	tokenFlow          businessflow.ReminderTokenFlow
	progressionFlow    businessflow.WaveProgressionFlow
	notifier           NotificationSender
	rc                 *redis.Client
	logger             *log.Logger

	frequency         models.ReminderFrequency
	interval          time.Duration
	rateLimit         int
	eligibilityWindow time.Duration
	publicBaseURL     string
	now               businessflow.Clock
}

// NewReminderScheduler creates a reminder scheduler for one cadence. A nil
// redis client degrades to database-only dedup.
func NewReminderScheduler(
	studyRepo repository.StudyRepository,
	waveRepo repository.WaveRepository,
	waveAssignmentRepo repository.WaveAssignmentRepository,
	participantRepo repository.ParticipantRepository,
	armAssignmentRepo repository.ArmAssignmentRepository,
	suppressionRepo repository.SuppressionFlagRepository,
	tokenFlow businessflow.ReminderTokenFlow,
	progressionFlow businessflow.WaveProgressionFlow,
	notifier NotificationSender,
	rc *redis.Client,
	logger *log.Logger,
	frequency models.ReminderFrequency,
	interval time.Duration,
	rateLimit int,
	eligibilityWindow time.Duration,
	publicBaseURL string,
	now businessflow.Clock,
) *ReminderScheduler {
	if interval <= 0 {
		if frequency == models.ReminderFrequencyWeekly {
			interval = 7 * 24 * time.Hour
		} else {
			interval = 24 * time.Hour
		}
	}
	if rateLimit <= 0 {
		rateLimit = utils.DefaultSchedulerRateLimit
	}
	if eligibilityWindow <= 0 {
		eligibilityWindow = utils.DefaultEligibilityWindow
	}
	if now == nil {
		now = utils.UTCNow
	}

	s := &ReminderScheduler{
		studyRepo:          studyRepo,
		waveRepo:           waveRepo,
		waveAssignmentRepo: waveAssignmentRepo,
		participantRepo:    participantRepo,
		armAssignmentRepo:  armAssignmentRepo,
		suppressionRepo:    suppressionRepo,
		tokenFlow:          tokenFlow,
		progressionFlow:    progressionFlow,
		notifier:           notifier,
		rc:                 rc,
		logger:             logger,
		frequency:          frequency,
		interval:           interval,
		rateLimit:          rateLimit,
		eligibilityWindow:  eligibilityWindow,
		publicBaseURL:      publicBaseURL,
		now:                now,
	}
	if s.logger == nil {
		s.initSchedulerLogger()
	}

	return s
}

// initSchedulerLogger writes to stdout and a rotating file under data/ (or /data)
func (s *ReminderScheduler) initSchedulerLogger() {
	candidates := []string{"data", "/data"}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "reminder_scheduler.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		}
		mw := io.MultiWriter(os.Stdout, rotator)
		s.logger = log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return
	}
	s.logger = log.Default()
	s.logger.Printf("scheduler: could not create log file, using default logger")
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *ReminderScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *ReminderScheduler) runOnce(ctx context.Context) {
	stats, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Printf("scheduler(%s): run failed: %v", s.frequency, err)
		return
	}
	s.logger.Printf("scheduler(%s): eligible=%d sent=%d failed=%d deduped=%d suppressed=%d throttled=%d expired=%d",
		s.frequency, stats.Eligible, stats.Sent, stats.Failed, stats.Deduped, stats.Supprsd, stats.Throttled, stats.Expired)
}

// RunOnce executes a single scheduler pass. Exported so the pass can run
// under test without timers. Partial runs are acceptable: the rate limit
// halts the pass early and the next run resumes coverage.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (RunStats, error) {
	var stats RunStats

	// Housekeeping: expire overdue open assignments and drop dead tokens
	if s.progressionFlow != nil {
		expired, err := s.progressionFlow.ExpireOverdue(ctx)
		if err != nil {
			s.logger.Printf("scheduler(%s): expire pass failed: %v", s.frequency, err)
		}
		stats.Expired = expired
		waveAssignmentsExpired.Add(float64(expired))
	}
	if _, err := s.tokenFlow.PurgeExpired(ctx); err != nil {
		s.logger.Printf("scheduler(%s): token purge failed: %v", s.frequency, err)
	}

	waves, err := s.waveRepo.ListReminderEnabled(ctx, s.frequency)
	if err != nil {
		return stats, fmt.Errorf("failed to list reminder-enabled waves: %w", err)
	}

	budget := s.rateLimit
	now := s.now()
	cutoff := now.Add(-s.eligibilityWindow)

	for _, wave := range waves {
		if budget <= 0 {
			return stats, nil
		}

		pending, err := s.waveAssignmentRepo.ListPendingOlderThan(ctx, wave.ID, cutoff, 0)
		if err != nil {
			s.logger.Printf("scheduler(%s): list pending failed for wave %d: %v", s.frequency, wave.ID, err)
			continue
		}
		stats.Eligible += len(pending)

		for _, wa := range pending {
			if budget <= 0 {
				return stats, nil
			}
			if err := ctx.Err(); err != nil {
				return stats, err
			}

			switch s.remind(ctx, wave, wa, now) {
			case outcomeSent:
				stats.Sent++
				budget--
			case outcomeFailed:
				stats.Failed++
				budget--
			case outcomeDeduped:
				stats.Deduped++
			case outcomeSuppressed:
				stats.Supprsd++
			case outcomeThrottled:
				stats.Throttled++
			}
		}
	}

	return stats, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeDeduped
	outcomeSuppressed
	outcomeThrottled
	outcomeSkipped
)

// remind applies the per-assignment guards and dispatches one reminder
func (s *ReminderScheduler) remind(ctx context.Context, wave *models.Wave, wa *models.WaveAssignment, now time.Time) outcome {
	// At most one reminder per participant+wave per UTC day
	if wa.RemindedOn(now) {
		remindersSkipped.WithLabelValues("deduped").Inc()
		return outcomeDeduped
	}

	flag, err := s.suppressionRepo.ByStudyAndParticipant(ctx, wa.StudyID, wa.ParticipantID)
	if err != nil {
		s.logger.Printf("scheduler(%s): suppression lookup failed for assignment %d: %v", s.frequency, wa.ID, err)
		return outcomeSkipped
	}
	if flag != nil {
		remindersSkipped.WithLabelValues("suppressed").Inc()
		return outcomeSuppressed
	}

	maxRetries := wave.MaxRetries
	if maxRetries <= 0 {
		maxRetries = utils.DefaultMaxRetries
	}
	if wa.DeliveryExhausted(maxRetries) {
		remindersSkipped.WithLabelValues("throttled").Inc()
		return outcomeThrottled
	}

	if !s.acquireDailyLock(ctx, wa, now) {
		remindersSkipped.WithLabelValues("deduped").Inc()
		return outcomeDeduped
	}

	participant, err := s.participantRepo.ByID(ctx, wa.ParticipantID)
	if err != nil || participant == nil {
		s.logger.Printf("scheduler(%s): participant %d not resolvable for assignment %d: %v", s.frequency, wa.ParticipantID, wa.ID, err)
		return outcomeSkipped
	}

	assignment, err := s.armAssignmentRepo.ByStudyAndParticipant(ctx, wa.StudyID, wa.ParticipantID)
	if err != nil || assignment == nil {
		s.logger.Printf("scheduler(%s): no arm assignment for participant %s in study %d", s.frequency, participant.Code, wa.StudyID)
		return outcomeSkipped
	}

	issued, err := s.tokenFlow.Issue(ctx, participant.ID, wave.ID, assignment.Arm, false)
	if err != nil {
		s.logger.Printf("scheduler(%s): token issuance failed for participant %s: %v", s.frequency, participant.Code, err)
		return outcomeSkipped
	}

	subject, body := s.composeEmail(wave, issued.Token)
	if err := s.notifier.SendEmail(ctx, participant.Email, subject, body); err != nil {
		s.logger.Printf("scheduler(%s): delivery failed for participant %s: %v", s.frequency, participant.Code, err)
		if err := s.waveAssignmentRepo.RecordDeliveryFailure(ctx, wa.ID, now); err != nil {
			s.logger.Printf("scheduler(%s): failed to record delivery failure for assignment %d: %v", s.frequency, wa.ID, err)
		}
		reminderDeliveryFailures.Inc()
		return outcomeFailed
	}

	// Success resets the consecutive-failure counter
	if err := s.waveAssignmentRepo.RecordReminderSent(ctx, wa.ID, now); err != nil {
		s.logger.Printf("scheduler(%s): failed to record reminder for assignment %d: %v", s.frequency, wa.ID, err)
	}
	remindersSent.Inc()
	return outcomeSent
}

// acquireDailyLock takes the cross-run dedup lock in redis when available.
// Without redis the last_reminder_sent date check is the only dedup, which
// keeps at-least-once semantics bounded to one duplicate per day.
func (s *ReminderScheduler) acquireDailyLock(ctx context.Context, wa *models.WaveAssignment, now time.Time) bool {
	if s.rc == nil {
		return true
	}

	key := fmt.Sprintf("longwave:reminder:%d:%d:%s", wa.ParticipantID, wa.WaveID, now.Format("2006-01-02"))
	ok, err := s.rc.SetNX(ctx, key, "1", 48*time.Hour).Result()
	if err != nil {
		// Redis being down must not stop reminding
		s.logger.Printf("scheduler(%s): redis dedup unavailable: %v", s.frequency, err)
		return true
	}
	return ok
}

// TriggerManualByCode resolves public identifiers and dispatches a manual reminder
func (s *ReminderScheduler) TriggerManualByCode(ctx context.Context, studyUUID, participantCode string, waveIndex int) error {
	study, err := s.studyRepo.ByUUID(ctx, studyUUID)
	if err != nil {
		return err
	}
	if study == nil {
		return businessflow.ErrStudyNotFound
	}

	participant, err := s.participantRepo.ByCode(ctx, participantCode)
	if err != nil {
		return err
	}
	if participant == nil {
		return businessflow.ErrParticipantNotFound
	}

	return s.TriggerManual(ctx, study.ID, participant.ID, waveIndex)
}

// TriggerManual issues a manual reminder for one participant and wave,
// bypassing the eligibility window and daily dedup but not suppression
func (s *ReminderScheduler) TriggerManual(ctx context.Context, studyID, participantID uint, waveIndex int) error {
	wave, err := s.waveRepo.ByStudyAndIndex(ctx, studyID, waveIndex)
	if err != nil {
		return err
	}
	if wave == nil {
		return businessflow.ErrWaveNotFound
	}

	flag, err := s.suppressionRepo.ByStudyAndParticipant(ctx, studyID, participantID)
	if err != nil {
		return err
	}
	if flag != nil {
		return fmt.Errorf("participant %d has opted out of study %d", participantID, studyID)
	}

	participant, err := s.participantRepo.ByID(ctx, participantID)
	if err != nil {
		return err
	}
	if participant == nil {
		return businessflow.ErrParticipantNotFound
	}

	assignment, err := s.armAssignmentRepo.ByStudyAndParticipant(ctx, studyID, participantID)
	if err != nil {
		return err
	}
	if assignment == nil {
		return fmt.Errorf("participant %s has no arm assignment in study %d", participant.Code, studyID)
	}

	issued, err := s.tokenFlow.Issue(ctx, participantID, wave.ID, assignment.Arm, true)
	if err != nil {
		return err
	}

	subject, body := s.composeEmail(wave, issued.Token)
	if err := s.notifier.SendEmail(ctx, participant.Email, subject, body); err != nil {
		return fmt.Errorf("manual reminder delivery failed: %w", err)
	}

	wa, err := s.waveAssignmentRepo.ByParticipantAndWave(ctx, participantID, wave.ID)
	if err == nil && wa != nil {
		if err := s.waveAssignmentRepo.RecordReminderSent(ctx, wa.ID, s.now()); err != nil {
			s.logger.Printf("scheduler(%s): failed to record manual reminder for assignment %d: %v", s.frequency, wa.ID, err)
		}
	}
	remindersSent.Inc()

	return nil
}

func (s *ReminderScheduler) composeEmail(wave *models.Wave, token string) (string, string) {
	subject := fmt.Sprintf("Reminder: survey wave %d is waiting for you", wave.WaveIndex)
	link := fmt.Sprintf("%s/api/v1/reminders/%s", s.publicBaseURL, token)
	optOut := fmt.Sprintf("%s/api/v1/reminders/%s/unsubscribe", s.publicBaseURL, token)
	body := fmt.Sprintf(
		"Hello,\n\nYou have an unanswered survey wave. Resume it here:\n%s\n\nThe link is valid for 48 hours.\n\nTo stop receiving reminders for this study:\n%s\n",
		link, optOut)
	return subject, body
}
