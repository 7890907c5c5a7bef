package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// AssignmentType records which resolution path produced an arm assignment
type AssignmentType string

const (
	// AssignmentTypeRandom is a weighted-selection outcome
	AssignmentTypeRandom AssignmentType = "random"
	// AssignmentTypeManual is an operator-triggered direct assignment
	AssignmentTypeManual AssignmentType = "manual"
	// AssignmentTypeManualOverride is a forced arm from the study config
	AssignmentTypeManualOverride AssignmentType = "manual_override"
	// AssignmentTypePersistent marks a result served from an existing row;
	// it is a return value only, never stored
	AssignmentTypePersistent AssignmentType = "persistent"
)

// Valid checks if the assignment type is valid
func (t AssignmentType) Valid() bool {
	switch t {
	case AssignmentTypeRandom, AssignmentTypeManual, AssignmentTypeManualOverride, AssignmentTypePersistent:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for AssignmentType
func (t *AssignmentType) Scan(value any) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*t = AssignmentType(v)
	case []byte:
		*t = AssignmentType(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AssignmentType", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for AssignmentType
func (t AssignmentType) Value() (driver.Value, error) {
	return string(t), nil
}

// ArmAssignment is the persisted (study, participant) → arm mapping.
// Invariant: exactly one row per (study, participant); the unique index is the
// last line of defense behind the flows' read-before-write.
type ArmAssignment struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	StudyID       uint           `gorm:"not null;uniqueIndex:idx_arm_assignments_study_participant,priority:1" json:"study_id"`
	Study         Study          `gorm:"foreignKey:StudyID;references:ID" json:"study,omitempty"`
	ParticipantID uint           `gorm:"not null;uniqueIndex:idx_arm_assignments_study_participant,priority:2" json:"participant_id"`
	Participant   Participant    `gorm:"foreignKey:ParticipantID;references:ID" json:"participant,omitempty"`
	Arm           string         `gorm:"size:255;not null" json:"arm"`
	Seed          *string        `gorm:"size:255" json:"seed,omitempty"`
	Type          AssignmentType `gorm:"type:varchar(24);not null" json:"type"`
	CreatedAt     time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (ArmAssignment) TableName() string {
	return "arm_assignments"
}

// ArmAssignmentFilter represents filter criteria for arm assignment queries
type ArmAssignmentFilter struct {
	ID            *uint
	StudyID       *uint
	ParticipantID *uint
	Arm           *string
	Type          *AssignmentType
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
