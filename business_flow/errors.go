// Package businessflow contains the core business logic and use cases for the survey engine
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Study and configuration errors
	ErrStudyNotFound         = errors.New("study not found")
	ErrStudyInactive         = errors.New("study is not active")
	ErrWaveNotFound          = errors.New("wave not found")
	ErrConfigNotFound        = errors.New("randomization config not found")
	ErrNotEnoughArms         = errors.New("at least two arms are required to randomize")
	ErrArmNotConfigured      = errors.New("arm is not configured for this study")
	ErrWeightOutOfRange      = errors.New("arm weight must be between 0 and 100")
	ErrInvalidMethod         = errors.New("invalid randomization method")
	ErrInvalidFrequency      = errors.New("invalid reminder frequency")
	ErrWaveMandatory         = errors.New("mandatory wave cannot be skipped")
	ErrWaveAlreadyTerminal   = errors.New("wave assignment is already terminal")
	ErrWaveAssignmentMissing = errors.New("no wave assignment found")

	// Participant errors
	ErrInvalidParticipant   = errors.New("invalid participant identifier")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrParticipantInactive  = errors.New("participant is inactive")
	ErrParticipantNoAddress = errors.New("participant has no deliverable address")

	// Reminder token errors
	ErrTokenNotFound = errors.New("reminder token not found")
	ErrTokenExpired  = errors.New("reminder token has expired")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
