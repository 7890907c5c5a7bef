// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/opencohort/longwave/app/dto"
	businessflow "github.com/opencohort/longwave/business_flow"
)

// ManualReminderTrigger dispatches a single reminder outside the scheduled run.
type ManualReminderTrigger interface {
	TriggerManualByCode(ctx context.Context, studyUUID, participantCode string, waveIndex int) error
}

// ReminderHandlerInterface defines the contract for reminder link handlers.
type ReminderHandlerInterface interface {
	Resolve(c fiber.Ctx) error
	Unsubscribe(c fiber.Ctx) error
	TriggerManual(c fiber.Ctx) error
}

// ReminderHandler handles reminder token resolution and opt-out requests.
type ReminderHandler struct {
	tokenFlow       businessflow.ReminderTokenFlow
	suppressionFlow businessflow.SuppressionFlow
	trigger         ManualReminderTrigger
}

// NewReminderHandler creates a new reminder handler.
func NewReminderHandler(tokenFlow businessflow.ReminderTokenFlow, suppressionFlow businessflow.SuppressionFlow, trigger ManualReminderTrigger) *ReminderHandler {
	return &ReminderHandler{
		tokenFlow:       tokenFlow,
		suppressionFlow: suppressionFlow,
		trigger:         trigger,
	}
}

func (h *ReminderHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *ReminderHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Resolve exchanges a reminder token for the wave it points at.
// @Summary Resolve a reminder link
// @Tags Reminders
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ResolvedTokenResponse} "Resolved"
// @Failure 404 {object} dto.APIResponse "Unknown token"
// @Failure 410 {object} dto.APIResponse "Expired token"
// @Router /api/v1/reminders/{token} [get]
func (h *ReminderHandler) Resolve(c fiber.Ctx) error {
	res, err := h.tokenFlow.Resolve(c.Context(), c.Params("token"))
	if err != nil {
		return h.mapError(c, err, "Failed to resolve reminder link")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reminder link resolved", res)
}

// Unsubscribe suppresses future reminders for the participant behind the token.
// Works on expired tokens too so stale emails still opt out.
func (h *ReminderHandler) Unsubscribe(c fiber.Ctx) error {
	var req dto.UnsubscribeRequest
	// Body is optional; ignore bind errors on an empty payload
	_ = c.Bind().JSON(&req)

	res, err := h.suppressionFlow.Unsubscribe(c.Context(), c.Params("token"), req.Reason)
	if err != nil {
		return h.mapError(c, err, "Failed to unsubscribe")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reminders suppressed", res)
}

// TriggerManual sends a one-off reminder for a participant's wave (operator entry point).
func (h *ReminderHandler) TriggerManual(c fiber.Ctx) error {
	waveIndex, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid wave index", "INVALID_WAVE_INDEX", err.Error())
	}

	if err := h.trigger.TriggerManualByCode(c.Context(), c.Params("study"), c.Params("participant"), waveIndex); err != nil {
		return h.mapError(c, err, "Failed to send reminder")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reminder dispatched", nil)
}

func (h *ReminderHandler) mapError(c fiber.Ctx, err error, fallback string) error {
	// The manual trigger path surfaces bare sentinels
	switch {
	case errors.Is(err, businessflow.ErrStudyNotFound):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Study not found", "STUDY_NOT_FOUND", err.Error())
	case errors.Is(err, businessflow.ErrParticipantNotFound):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Participant not found", "PARTICIPANT_NOT_FOUND", err.Error())
	case errors.Is(err, businessflow.ErrWaveNotFound):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Wave not found", "WAVE_NOT_FOUND", err.Error())
	}

	if be, ok := err.(*businessflow.BusinessError); ok {
		switch be.Code {
		case "TOKEN_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Reminder link not found", be.Code, be.Error())
		case "TOKEN_EXPIRED":
			return h.ErrorResponse(c, fiber.StatusGone, "Reminder link expired", be.Code, be.Error())
		case "STUDY_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Study not found", be.Code, be.Error())
		case "WAVE_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Wave not found", be.Code, be.Error())
		case "PARTICIPANT_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Participant not found", be.Code, be.Error())
		case "PARTICIPANT_INACTIVE", "PARTICIPANT_NO_ADDRESS":
			return h.ErrorResponse(c, fiber.StatusConflict, "Participant cannot receive reminders", be.Code, be.Error())
		}
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallback, "REMINDER_FAILED", nil)
}
