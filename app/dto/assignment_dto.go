package dto

// AssignmentResponse is the resolved arm of a participant within a study
type AssignmentResponse struct {
	StudyUUID       string  `json:"study_uuid"`
	ParticipantCode string  `json:"participant_code"`
	Arm             string  `json:"arm"`
	Seed            *string `json:"seed,omitempty"`
	Type            string  `json:"type"`
	CreatedAt       string  `json:"created_at"`
}

// ManualAssignmentRequest forces a participant into a specific arm
type ManualAssignmentRequest struct {
	Arm string `json:"arm" validate:"required,min=1,max=255"`
}

// EraseParticipantResponse reports the cascade of a participant erasure
type EraseParticipantResponse struct {
	Message         string `json:"message"`
	StudyUUID       string `json:"study_uuid"`
	ParticipantCode string `json:"participant_code"`
}
