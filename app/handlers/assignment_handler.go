// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/opencohort/longwave/app/dto"
	businessflow "github.com/opencohort/longwave/business_flow"
)

// AssignmentHandlerInterface defines the contract for arm assignment handlers.
type AssignmentHandlerInterface interface {
	Assign(c fiber.Ctx) error
	AssignManual(c fiber.Ctx) error
	Erase(c fiber.Ctx) error
}

// AssignmentHandler handles arm assignment requests.
type AssignmentHandler struct {
	flow      businessflow.RandomizationFlow
	validator *validator.Validate
}

// NewAssignmentHandler creates a new assignment handler.
func NewAssignmentHandler(flow businessflow.RandomizationFlow) *AssignmentHandler {
	return &AssignmentHandler{
		flow:      flow,
		validator: validator.New(),
	}
}

func (h *AssignmentHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AssignmentHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Assign resolves the arm of a participant at study entry.
// @Summary Assign participant to an arm
// @Description Idempotent: repeated calls return the stored assignment
// @Tags Assignments
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.AssignmentResponse} "Assigned"
// @Failure 400 {object} dto.APIResponse "Configuration or participant error"
// @Router /api/v1/studies/{study}/participants/{participant}/assignment [post]
func (h *AssignmentHandler) Assign(c fiber.Ctx) error {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	res, err := h.flow.Assign(c.Context(), c.Params("study"), c.Params("participant"), metadata)
	if err != nil {
		return h.mapError(c, err, "Failed to assign participant")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Assignment resolved", res)
}

// AssignManual force-assigns a participant to an arm (operator entry point).
func (h *AssignmentHandler) AssignManual(c fiber.Ctx) error {
	var req dto.ManualAssignmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, e := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, e.Error())
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	res, err := h.flow.AssignManual(c.Context(), c.Params("study"), c.Params("participant"), req.Arm, metadata)
	if err != nil {
		return h.mapError(c, err, "Failed to assign participant manually")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Assignment resolved", res)
}

// Erase cascades a participant-initiated erasure across assignment state.
func (h *AssignmentHandler) Erase(c fiber.Ctx) error {
	res, err := h.flow.EraseParticipant(c.Context(), c.Params("study"), c.Params("participant"))
	if err != nil {
		return h.mapError(c, err, "Failed to erase participant")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Participant data erased", res)
}

func (h *AssignmentHandler) mapError(c fiber.Ctx, err error, fallback string) error {
	if be, ok := err.(*businessflow.BusinessError); ok {
		switch be.Code {
		case "STUDY_NOT_FOUND":
			return h.ErrorResponse(c, fiber.StatusNotFound, "Study not found", be.Code, be.Error())
		case "INVALID_PARTICIPANT":
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid participant", be.Code, be.Error())
		case "CONFIGURATION_ERROR":
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Study misconfigured", be.Code, be.Error())
		case "ARM_NOT_CONFIGURED":
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Arm not configured", be.Code, be.Error())
		}
	}
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallback, "ASSIGNMENT_FAILED", nil)
}
