package testing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/opencohort/longwave/models"
	"github.com/opencohort/longwave/utils"
)

// CreateTestStudy inserts an active study with a generated UUID
func CreateTestStudy(db *gorm.DB, title string) (*models.Study, error) {
	study := &models.Study{
		UUID:   uuid.New(),
		Title:  title,
		Status: models.StudyStatusActive,
	}
	if err := db.Create(study).Error; err != nil {
		return nil, fmt.Errorf("failed to create test study: %w", err)
	}
	return study, nil
}

// CreateTestWave inserts a wave at the given index with reminders enabled
func CreateTestWave(db *gorm.DB, studyID uint, index int, frequency models.ReminderFrequency) (*models.Wave, error) {
	due := utils.UTCNowAdd(14 * 24 * time.Hour)
	wave := &models.Wave{
		UUID:              uuid.New(),
		StudyID:           studyID,
		WaveIndex:         index,
		FormRef:           fmt.Sprintf("form-wave-%d", index),
		DueDate:           &due,
		ReminderEnabled:   true,
		ReminderFrequency: frequency,
		MaxRetries:        utils.DefaultMaxRetries,
		IsMandatory:       true,
	}
	if err := db.Create(wave).Error; err != nil {
		return nil, fmt.Errorf("failed to create test wave: %w", err)
	}
	return wave, nil
}

// CreateTestParticipant inserts an active participant with a deliverable address
func CreateTestParticipant(db *gorm.DB, code string) (*models.Participant, error) {
	participant := &models.Participant{
		UUID:     uuid.New(),
		Code:     code,
		Email:    code + "@example.org",
		IsActive: true,
	}
	if err := db.Create(participant).Error; err != nil {
		return nil, fmt.Errorf("failed to create test participant: %w", err)
	}
	return participant, nil
}

// CreateTestRandomizationConfig inserts a two-arm seeded config for a study
func CreateTestRandomizationConfig(db *gorm.DB, studyID uint, arms []models.ArmOption, overrides map[string]string) (*models.RandomizationConfig, error) {
	if len(arms) == 0 {
		arms = []models.ArmOption{
			{ID: "control", Weight: 1},
			{ID: "treatment", Weight: 1},
		}
	}
	cfg := &models.RandomizationConfig{
		StudyID: studyID,
		Method:  models.RandomizationMethodSeeded,
		Spec: models.RandomizationSpec{
			Arms:      arms,
			Overrides: overrides,
		},
	}
	if err := db.Create(cfg).Error; err != nil {
		return nil, fmt.Errorf("failed to create test randomization config: %w", err)
	}
	return cfg, nil
}

// CreateTestArmAssignment inserts a stored arm assignment
func CreateTestArmAssignment(db *gorm.DB, studyID, participantID uint, arm string) (*models.ArmAssignment, error) {
	assignment := &models.ArmAssignment{
		StudyID:       studyID,
		ParticipantID: participantID,
		Arm:           arm,
		Type:          models.AssignmentTypeRandom,
	}
	if err := db.Create(assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to create test arm assignment: %w", err)
	}
	return assignment, nil
}

// CreateTestWaveAssignment inserts an open wave assignment aged by the given duration
func CreateTestWaveAssignment(db *gorm.DB, studyID, participantID, waveID uint, age time.Duration) (*models.WaveAssignment, error) {
	wa := &models.WaveAssignment{
		ParticipantID: participantID,
		WaveID:        waveID,
		StudyID:       studyID,
		Status:        models.WaveAssignmentStatusPending,
		AssignedAt:    utils.UTCNowAdd(-age),
	}
	if err := db.Create(wa).Error; err != nil {
		return nil, fmt.Errorf("failed to create test wave assignment: %w", err)
	}
	return wa, nil
}
