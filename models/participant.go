package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a person enrolled in one or more studies. Code is the
// external identifier intake systems use; Email is the reminder recipient.
type Participant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_participants_uuid" json:"uuid"`
	Code      string    `gorm:"size:255;not null;uniqueIndex:idx_participants_code" json:"code"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Participant) TableName() string {
	return "participants"
}

// ParticipantFilter represents filter criteria for participant queries
type ParticipantFilter struct {
	ID       *uint
	UUID     *string
	Code     *string
	Email    *string
	IsActive *bool
}
