package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReminderFrequency selects which scheduler cadence a wave participates in
type ReminderFrequency string

const (
	ReminderFrequencyDaily  ReminderFrequency = "daily"
	ReminderFrequencyWeekly ReminderFrequency = "weekly"
)

// Valid checks if the frequency is valid
func (f ReminderFrequency) Valid() bool {
	return f == ReminderFrequencyDaily || f == ReminderFrequencyWeekly
}

// Scan implements the sql.Scanner interface for ReminderFrequency
func (f *ReminderFrequency) Scan(value any) error {
	if value == nil {
		*f = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*f = ReminderFrequency(v)
	case []byte:
		*f = ReminderFrequency(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ReminderFrequency", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for ReminderFrequency
func (f ReminderFrequency) Value() (driver.Value, error) {
	return string(f), nil
}

// Wave is one ordered administration step of a study. WaveIndex is unique per
// study; waves are created at study setup and rarely mutated after activation.
type Wave struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	UUID              uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_waves_uuid" json:"uuid"`
	StudyID           uint              `gorm:"not null;uniqueIndex:idx_waves_study_index,priority:1" json:"study_id"`
	Study             Study             `gorm:"foreignKey:StudyID;references:ID" json:"study,omitempty"`
	WaveIndex         int               `gorm:"not null;uniqueIndex:idx_waves_study_index,priority:2" json:"wave_index"`
	FormRef           string            `gorm:"size:255;not null" json:"form_ref"`
	StartDate         *time.Time        `json:"start_date,omitempty"`
	DueDate           *time.Time        `json:"due_date,omitempty"`
	ReminderEnabled   bool              `gorm:"default:false" json:"reminder_enabled"`
	ReminderFrequency ReminderFrequency `gorm:"type:varchar(16);default:weekly" json:"reminder_frequency"`
	MaxRetries        int               `gorm:"default:3" json:"max_retries"`
	IsMandatory       bool              `gorm:"default:true" json:"is_mandatory"`
	CreatedAt         time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Wave) TableName() string {
	return "waves"
}

// IsOverdue reports whether the wave's due date plus grace has elapsed at now
func (w *Wave) IsOverdue(now time.Time, grace time.Duration) bool {
	if w.DueDate == nil {
		return false
	}
	return now.After(w.DueDate.Add(grace))
}

// WaveFilter represents filter criteria for wave queries
type WaveFilter struct {
	ID                *uint
	UUID              *string
	StudyID           *uint
	WaveIndex         *int
	ReminderEnabled   *bool
	ReminderFrequency *ReminderFrequency
	IsMandatory       *bool
}
