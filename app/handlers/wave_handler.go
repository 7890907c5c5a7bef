// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/opencohort/longwave/app/dto"
	businessflow "github.com/opencohort/longwave/business_flow"
)

// WaveHandlerInterface defines the contract for wave progression handlers.
type WaveHandlerInterface interface {
	Submit(c fiber.Ctx) error
	NextWave(c fiber.Ctx) error
	Skip(c fiber.Ctx) error
	View(c fiber.Ctx) error
}

// WaveHandler handles wave progression requests.
type WaveHandler struct {
	flow businessflow.WaveProgressionFlow
}

// NewWaveHandler creates a new wave handler.
func NewWaveHandler(flow businessflow.WaveProgressionFlow) *WaveHandler {
	return &WaveHandler{flow: flow}
}

func (h *WaveHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *WaveHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Submit records a wave submission event. Idempotent on retries.
func (h *WaveHandler) Submit(c fiber.Ctx) error {
	waveIndex, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid wave index", "INVALID_WAVE_INDEX", err.Error())
	}

	res, err := h.flow.MarkSubmitted(c.Context(), c.Params("study"), c.Params("participant"), waveIndex)
	if err != nil {
		return h.mapError(c, err, "Failed to record submission")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Submission recorded", res)
}

// NextWave returns the lowest pending wave of the participant, or completion.
func (h *WaveHandler) NextWave(c fiber.Ctx) error {
	res, err := h.flow.NextPendingWave(c.Context(), c.Params("study"), c.Params("participant"))
	if err != nil {
		return h.mapError(c, err, "Failed to resolve next wave")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Next wave resolved", res)
}

// Skip marks a non-mandatory wave skipped.
func (h *WaveHandler) Skip(c fiber.Ctx) error {
	waveIndex, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid wave index", "INVALID_WAVE_INDEX", err.Error())
	}

	res, err := h.flow.SkipWave(c.Context(), c.Params("study"), c.Params("participant"), waveIndex)
	if err != nil {
		return h.mapError(c, err, "Failed to skip wave")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Wave skipped", res)
}

// View stamps the first view of a wave.
func (h *WaveHandler) View(c fiber.Ctx) error {
	waveIndex, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid wave index", "INVALID_WAVE_INDEX", err.Error())
	}

	if err := h.flow.MarkViewed(c.Context(), c.Params("study"), c.Params("participant"), waveIndex); err != nil {
		return h.mapError(c, err, "Failed to record view")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "View recorded", nil)
}

func (h *WaveHandler) mapError(c fiber.Ctx, err error, fallback string) error {
	if be, ok := err.(*businessflow.BusinessError); ok {
		switch be.Code {
		case "STUDY_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Study not found", be.Code, be.Error())
		case "WAVE_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Wave not found", be.Code, be.Error())
		case "INVALID_PARTICIPANT":
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid participant", be.Code, be.Error())
		case "WAVE_MANDATORY":
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Mandatory wave cannot be skipped", be.Code, be.Error())
		case "WAVE_ALREADY_TERMINAL":
			return h.ErrorResponse(c, fiber.StatusConflict, "Wave assignment already terminal", be.Code, be.Error())
		}
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallback, "WAVE_TRACKING_FAILED", nil)
}
