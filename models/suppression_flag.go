package models

import (
	"time"
)

// SuppressionFlag is a participant's opt-out from further reminders within a
// study. Existence is the signal; flags are consulted, never auto-removed.
type SuppressionFlag struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	StudyID       uint        `gorm:"not null;uniqueIndex:idx_suppression_flags_study_participant,priority:1" json:"study_id"`
	Study         Study       `gorm:"foreignKey:StudyID;references:ID" json:"study,omitempty"`
	ParticipantID uint        `gorm:"not null;uniqueIndex:idx_suppression_flags_study_participant,priority:2" json:"participant_id"`
	Participant   Participant `gorm:"foreignKey:ParticipantID;references:ID" json:"participant,omitempty"`
	Reason        string      `gorm:"size:255" json:"reason"`
	CreatedAt     time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (SuppressionFlag) TableName() string {
	return "suppression_flags"
}

// SuppressionFlagFilter represents filter criteria for suppression queries
type SuppressionFlagFilter struct {
	ID            *uint
	StudyID       *uint
	ParticipantID *uint
}
