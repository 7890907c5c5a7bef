package utils

import (
	"time"
)

// Reminder token constants
const (
	// ReminderTokenTTL is the time-to-live for reminder link tokens (48 hours)
	ReminderTokenTTL = 48 * time.Hour

	// ReminderTokenBytes is the entropy of a reminder token before hex encoding
	ReminderTokenBytes = 32
)

// Scheduler constants
const (
	// DefaultEligibilityWindow is how long a wave assignment must sit pending
	// before it becomes eligible for a reminder (7 days)
	DefaultEligibilityWindow = 7 * 24 * time.Hour

	// DefaultMaxRetries is the number of consecutive delivery failures after
	// which a participant is no longer reminded until manually reset
	DefaultMaxRetries = 3

	// DefaultSchedulerRateLimit is the maximum number of reminders dispatched
	// in a single scheduler run
	DefaultSchedulerRateLimit = 100

	// DefaultDueDateGrace is the grace period past a wave's due date before a
	// pending wave assignment is expired (72 hours)
	DefaultDueDateGrace = 72 * time.Hour
)

// Randomization constants
const (
	// DefaultArmWeight is the weight applied to arms with no explicit weight
	DefaultArmWeight = 1

	// MinArmWeight and MaxArmWeight bound the configurable weight range
	MinArmWeight = 0
	MaxArmWeight = 100
)
