package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// WaveAssignmentStatus is the per-wave progress state of a participant
type WaveAssignmentStatus string

const (
	WaveAssignmentStatusPending    WaveAssignmentStatus = "pending"
	WaveAssignmentStatusInProgress WaveAssignmentStatus = "in_progress"
	WaveAssignmentStatusSubmitted  WaveAssignmentStatus = "submitted"
	WaveAssignmentStatusSkipped    WaveAssignmentStatus = "skipped"
	WaveAssignmentStatusExpired    WaveAssignmentStatus = "expired"
)

// String returns the string representation of the status
func (s WaveAssignmentStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s WaveAssignmentStatus) Valid() bool {
	switch s {
	case WaveAssignmentStatusPending, WaveAssignmentStatusInProgress,
		WaveAssignmentStatusSubmitted, WaveAssignmentStatusSkipped,
		WaveAssignmentStatusExpired:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for WaveAssignmentStatus
func (s *WaveAssignmentStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = WaveAssignmentStatus(v)
	case []byte:
		*s = WaveAssignmentStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into WaveAssignmentStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for WaveAssignmentStatus
func (s WaveAssignmentStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// WaveAssignment is the persisted per-wave progress record for a participant.
// One row per (participant, wave); a submitted row is terminal and never
// silently overwritten.
type WaveAssignment struct {
	ID               uint                 `gorm:"primaryKey" json:"id"`
	ParticipantID    uint                 `gorm:"not null;uniqueIndex:idx_wave_assignments_participant_wave,priority:1" json:"participant_id"`
	Participant      Participant          `gorm:"foreignKey:ParticipantID;references:ID" json:"participant,omitempty"`
	WaveID           uint                 `gorm:"not null;uniqueIndex:idx_wave_assignments_participant_wave,priority:2" json:"wave_id"`
	Wave             Wave                 `gorm:"foreignKey:WaveID;references:ID" json:"wave,omitempty"`
	StudyID          uint                 `gorm:"not null;index:idx_wave_assignments_study" json:"study_id"`
	Status           WaveAssignmentStatus `gorm:"type:varchar(16);not null;default:pending;index:idx_wave_assignments_status" json:"status"`
	AssignedAt       time.Time            `gorm:"not null;index:idx_wave_assignments_assigned_at" json:"assigned_at"`
	FirstViewedAt    *time.Time           `json:"first_viewed_at,omitempty"`
	SubmittedAt      *time.Time           `json:"submitted_at,omitempty"`
	ReminderCount    int                  `gorm:"default:0" json:"reminder_count"`
	LastReminderSent *time.Time           `json:"last_reminder_sent,omitempty"`
	RetryCount       int                  `gorm:"default:0" json:"retry_count"`
	LastRetrySent    *time.Time           `json:"last_retry_sent,omitempty"`
}

func (WaveAssignment) TableName() string {
	return "wave_assignments"
}

// IsTerminal reports whether no further transitions are allowed
func (wa *WaveAssignment) IsTerminal() bool {
	return wa.Status == WaveAssignmentStatusSubmitted || wa.Status == WaveAssignmentStatusSkipped
}

// IsSubmitted reports whether the wave was completed
func (wa *WaveAssignment) IsSubmitted() bool {
	return wa.Status == WaveAssignmentStatusSubmitted
}

// IsOpen reports whether the assignment still awaits a submission
func (wa *WaveAssignment) IsOpen() bool {
	return wa.Status == WaveAssignmentStatusPending || wa.Status == WaveAssignmentStatusInProgress
}

// RemindedOn reports whether a reminder already went out on the given UTC day
func (wa *WaveAssignment) RemindedOn(day time.Time) bool {
	if wa.LastReminderSent == nil {
		return false
	}
	a, b := wa.LastReminderSent.UTC(), day.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// DeliveryExhausted reports whether consecutive delivery failures reached the cap
func (wa *WaveAssignment) DeliveryExhausted(maxRetries int) bool {
	return wa.RetryCount >= maxRetries
}

// WaveAssignmentFilter represents filter criteria for wave assignment queries
type WaveAssignmentFilter struct {
	ID             *uint
	ParticipantID  *uint
	WaveID         *uint
	StudyID        *uint
	Status         *WaveAssignmentStatus
	AssignedBefore *time.Time
	AssignedAfter  *time.Time
}
