package dto

// WaveDTO describes one wave of a study
type WaveDTO struct {
	UUID              string  `json:"uuid"`
	WaveIndex         int     `json:"wave_index"`
	FormRef           string  `json:"form_ref"`
	StartDate         *string `json:"start_date,omitempty"`
	DueDate           *string `json:"due_date,omitempty"`
	ReminderEnabled   bool    `json:"reminder_enabled"`
	ReminderFrequency string  `json:"reminder_frequency"`
	IsMandatory       bool    `json:"is_mandatory"`
}

// SubmissionResponse reports the outcome of a wave submission event
type SubmissionResponse struct {
	Tracked          bool    `json:"tracked"`
	AlreadySubmitted bool    `json:"already_submitted"`
	SubmittedAt      *string `json:"submitted_at,omitempty"`
	NextWaveIndex    *int    `json:"next_wave_index,omitempty"`
	StudyCompleted   bool    `json:"study_completed"`
}

// NextWaveResponse carries the lowest pending wave of a participant, or marks
// the study as completed
type NextWaveResponse struct {
	Completed bool     `json:"completed"`
	Wave      *WaveDTO `json:"wave,omitempty"`
}

// SkipWaveResponse reports the outcome of skipping a non-mandatory wave
type SkipWaveResponse struct {
	Skipped   bool   `json:"skipped"`
	WaveIndex int    `json:"wave_index"`
	Message   string `json:"message"`
}
