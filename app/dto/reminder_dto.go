package dto

// IssuedTokenResponse returns the plaintext reminder token exactly once
type IssuedTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Manual    bool   `json:"manual"`
}

// ResolvedTokenResponse routes an inbound reminder link to the right wave form
type ResolvedTokenResponse struct {
	StudyUUID       string `json:"study_uuid"`
	ParticipantCode string `json:"participant_code"`
	WaveIndex       int    `json:"wave_index"`
	FormRef         string `json:"form_ref"`
	Arm             string `json:"arm"`
}

// UnsubscribeRequest carries the optional opt-out reason
type UnsubscribeRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=255"`
}

// UnsubscribeResponse confirms a suppression flag write
type UnsubscribeResponse struct {
	Message         string `json:"message"`
	ParticipantCode string `json:"participant_code"`
}
