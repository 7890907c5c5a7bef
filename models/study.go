// Package models contains domain entities and business models for the survey engine
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StudyStatus represents the lifecycle status of a study
type StudyStatus string

const (
	StudyStatusDraft    StudyStatus = "draft"
	StudyStatusActive   StudyStatus = "active"
	StudyStatusArchived StudyStatus = "archived"
)

// String returns the string representation of the status
func (s StudyStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s StudyStatus) Valid() bool {
	switch s {
	case StudyStatusDraft, StudyStatusActive, StudyStatusArchived:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for StudyStatus
func (s *StudyStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = StudyStatus(v)
	case []byte:
		*s = StudyStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into StudyStatus", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for StudyStatus
func (s StudyStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// Study identifies a research project owning an ordered list of waves and a
// randomization config. Identity is immutable once waves carry assignments.
type Study struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID   `gorm:"type:uuid;not null;uniqueIndex:idx_studies_uuid" json:"uuid"`
	Title     string      `gorm:"size:255;not null" json:"title"`
	Status    StudyStatus `gorm:"type:varchar(16);default:draft" json:"status"`
	CreatedAt time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time   `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`

	Waves []Wave `gorm:"foreignKey:StudyID;references:ID" json:"waves,omitempty"`
}

func (Study) TableName() string {
	return "studies"
}

// StudyFilter represents filter criteria for study queries
type StudyFilter struct {
	ID     *uint
	UUID   *string
	Title  *string
	Status *StudyStatus
}

// RandomizationMethod selects how the seed for weighted selection is produced
type RandomizationMethod string

const (
	RandomizationMethodSeeded RandomizationMethod = "seeded"
	RandomizationMethodRandom RandomizationMethod = "random"
)

// Valid checks if the method is valid
func (m RandomizationMethod) Valid() bool {
	return m == RandomizationMethodSeeded || m == RandomizationMethodRandom
}

// Scan implements the sql.Scanner interface for RandomizationMethod
func (m *RandomizationMethod) Scan(value any) error {
	if value == nil {
		*m = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*m = RandomizationMethod(v)
	case []byte:
		*m = RandomizationMethod(string(v))
	default:
		return fmt.Errorf("cannot scan %T into RandomizationMethod", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for RandomizationMethod
func (m RandomizationMethod) Value() (driver.Value, error) {
	return string(m), nil
}

// ArmOption is one candidate form variant with its randomization weight
type ArmOption struct {
	ID     string `json:"id"`
	Weight int    `json:"weight"`
}

// RandomizationSpec is the JSON document holding candidate arms and manual
// overrides. Researcher configuration mutates it; the engine reads it only.
type RandomizationSpec struct {
	Arms []ArmOption `json:"arms"`
	// Overrides maps a participant code to a forced arm id
	Overrides map[string]string `json:"overrides,omitempty"`
}

// Value implements the driver.Valuer interface for RandomizationSpec
func (s RandomizationSpec) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for RandomizationSpec
func (s *RandomizationSpec) Scan(value any) error {
	if value == nil {
		*s = RandomizationSpec{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into RandomizationSpec", value)
	}
	return json.Unmarshal(data, s)
}

// Candidates returns the configured arm ids in declaration order
func (s RandomizationSpec) Candidates() []string {
	out := make([]string, 0, len(s.Arms))
	for _, a := range s.Arms {
		out = append(out, a.ID)
	}
	return out
}

// Weights returns the configured arm weights keyed by arm id
func (s RandomizationSpec) Weights() map[string]int {
	out := make(map[string]int, len(s.Arms))
	for _, a := range s.Arms {
		out[a.ID] = a.Weight
	}
	return out
}

// OverrideFor returns the forced arm for a participant code, if any
func (s RandomizationSpec) OverrideFor(code string) (string, bool) {
	if s.Overrides == nil {
		return "", false
	}
	arm, ok := s.Overrides[code]
	return arm, ok
}

// RandomizationConfig belongs to a study and drives arm resolution
type RandomizationConfig struct {
	ID        uint                `gorm:"primaryKey" json:"id"`
	StudyID   uint                `gorm:"not null;uniqueIndex:idx_randomization_configs_study" json:"study_id"`
	Study     Study               `gorm:"foreignKey:StudyID;references:ID" json:"study,omitempty"`
	Method    RandomizationMethod `gorm:"type:varchar(16);not null;default:seeded" json:"method"`
	Spec      RandomizationSpec   `gorm:"type:jsonb;not null" json:"spec"`
	CreatedAt time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (RandomizationConfig) TableName() string {
	return "randomization_configs"
}

// RandomizationConfigFilter represents filter criteria for config queries
type RandomizationConfigFilter struct {
	ID      *uint
	StudyID *uint
	Method  *RandomizationMethod
}
