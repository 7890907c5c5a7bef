package models

import (
	"time"
)

// ReminderToken is the stored metadata of a reminder link credential. Only the
// SHA-256 digest of the plaintext token is persisted; the plaintext is handed
// out exactly once at issuance.
type ReminderToken struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	TokenHash     string      `gorm:"size:64;not null;uniqueIndex:idx_reminder_tokens_hash" json:"-"`
	ParticipantID uint        `gorm:"not null;index:idx_reminder_tokens_participant" json:"participant_id"`
	Participant   Participant `gorm:"foreignKey:ParticipantID;references:ID" json:"participant,omitempty"`
	WaveID        uint        `gorm:"not null;index:idx_reminder_tokens_wave" json:"wave_id"`
	Wave          Wave        `gorm:"foreignKey:WaveID;references:ID" json:"wave,omitempty"`
	Arm           string      `gorm:"size:255;not null" json:"arm"`
	Manual        bool        `gorm:"default:false" json:"manual"`
	CreatedAt     time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt     time.Time   `gorm:"not null;index:idx_reminder_tokens_expires_at" json:"expires_at"`
	UsedAt        *time.Time  `json:"used_at,omitempty"`
}

func (ReminderToken) TableName() string {
	return "reminder_tokens"
}

// IsExpired reports whether the token lifetime has elapsed at now
func (t *ReminderToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ReminderTokenFilter represents filter criteria for reminder token queries
type ReminderTokenFilter struct {
	ID            *uint
	TokenHash     *string
	ParticipantID *uint
	WaveID        *uint
	Manual        *bool
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
}
