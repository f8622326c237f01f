package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/audioform/audioform/app/dto"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// SurveyHandlerInterface defines the contract for survey handlers.
type SurveyHandlerInterface interface {
	CreateDemo(c fiber.Ctx) error
	GetDemo(c fiber.Ctx) error
	Create(c fiber.Ctx) error
	Get(c fiber.Ctx) error
	Update(c fiber.Ctx) error
	Delete(c fiber.Ctx) error
	List(c fiber.Ctx) error
	Stats(c fiber.Ctx) error
	Export(c fiber.Ctx) error
}

// SurveyHandler handles survey lifecycle requests.
type SurveyHandler struct {
	flow      businessflow.SurveyFlow
	validator *validator.Validate
}

// NewSurveyHandler creates a new survey handler.
func NewSurveyHandler(flow businessflow.SurveyFlow, validator *validator.Validate) *SurveyHandler {
	return &SurveyHandler{flow: flow, validator: validator}
}

// CreateDemo handles anonymous demo survey creation.
// @Summary Create demo survey
// @Description Create an anonymous survey that expires after 24 hours
// @Tags Surveys
// @Accept json
// @Produce json
// @Success 201 {object} dto.APIResponse{data=dto.CreateDemoSurveyResponse} "Demo created"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Router /api/v1/demo/create [post]
func (h *SurveyHandler) CreateDemo(c fiber.Ctx) error {
	var req dto.CreateDemoSurveyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_INPUT", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetSessionID(c.Get("X-Session-ID"))

	result, err := h.flow.CreateDemoSurvey(h.createRequestContext(c, "/api/v1/demo/create"), &req, metadata)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "Demo survey created", result)
}

// GetDemo returns a demo survey with its expiry phase.
// @Summary Get demo survey
// @Tags Surveys
// @Produce json
// @Param uuid path string true "Demo survey UUID"
// @Success 200 {object} dto.APIResponse{data=dto.DemoSurveyDTO} "Demo survey"
// @Failure 404 {object} dto.APIResponse "Not found"
// @Router /api/v1/demo/{uuid} [get]
func (h *SurveyHandler) GetDemo(c fiber.Ctx) error {
	surveyUUID := c.Params("uuid")
	if surveyUUID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid uuid", "INVALID_INPUT", nil)
	}

	result, err := h.flow.GetDemoSurvey(h.createRequestContext(c, "/api/v1/demo/{uuid}"), surveyUUID)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Demo survey", result)
}

// Create handles survey creation by an authenticated creator.
// @Summary Create survey
// @Tags Surveys
// @Accept json
// @Produce json
// @Success 201 {object} dto.APIResponse{data=dto.SurveyDTO} "Survey created"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/surveys [post]
func (h *SurveyHandler) Create(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}

	var req dto.CreateSurveyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_INPUT", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.flow.CreateSurvey(h.createRequestContext(c, "/api/v1/surveys"), creatorID, &req, metadata)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "Survey created", result)
}

// Get returns one survey by UUID. Public so respondents can load it.
// @Summary Get survey
// @Tags Surveys
// @Produce json
// @Param uuid path string true "Survey UUID"
// @Success 200 {object} dto.APIResponse{data=dto.SurveyDTO} "Survey"
// @Failure 404 {object} dto.APIResponse "Not found"
// @Router /api/v1/surveys/{uuid} [get]
func (h *SurveyHandler) Get(c fiber.Ctx) error {
	surveyUUID := c.Params("uuid")
	if surveyUUID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid uuid", "INVALID_INPUT", nil)
	}

	result, err := h.flow.GetSurvey(h.createRequestContext(c, "/api/v1/surveys/{uuid}"), surveyUUID)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Survey", result)
}

// Update applies a partial update to an owned survey.
// @Summary Update survey
// @Tags Surveys
// @Accept json
// @Produce json
// @Param uuid path string true "Survey UUID"
// @Success 200 {object} dto.APIResponse "Updated"
// @Failure 403 {object} dto.APIResponse "Forbidden"
// @Router /api/v1/surveys/{uuid} [patch]
func (h *SurveyHandler) Update(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}
	surveyUUID := c.Params("uuid")

	var req dto.UpdateSurveyRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_INPUT", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if err := h.flow.UpdateSurvey(h.createRequestContext(c, "/api/v1/surveys/{uuid}"), creatorID, surveyUUID, &req, metadata); err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Survey updated", nil)
}

// Delete removes an owned survey and its responses.
// @Summary Delete survey
// @Tags Surveys
// @Produce json
// @Param uuid path string true "Survey UUID"
// @Success 200 {object} dto.APIResponse "Deleted"
// @Failure 403 {object} dto.APIResponse "Forbidden"
// @Router /api/v1/surveys/{uuid} [delete]
func (h *SurveyHandler) Delete(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}
	surveyUUID := c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if err := h.flow.DeleteSurvey(h.createRequestContext(c, "/api/v1/surveys/{uuid}"), creatorID, surveyUUID, metadata); err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Survey deleted", nil)
}

// List returns one page of the creator's surveys.
// @Summary List surveys
// @Tags Surveys
// @Produce json
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20)"
// @Success 200 {object} dto.APIResponse{data=dto.ListSurveysResponse} "Surveys"
// @Router /api/v1/surveys [get]
func (h *SurveyHandler) List(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	result, err := h.flow.ListSurveys(h.createRequestContext(c, "/api/v1/surveys"), creatorID, page, pageSize)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Surveys", result)
}

// Stats returns the live response counter snapshot for a survey.
// @Summary Survey stats
// @Tags Surveys
// @Produce json
// @Param uuid path string true "Survey UUID"
// @Success 200 {object} dto.APIResponse{data=dto.SurveyStatsResponse} "Stats"
// @Router /api/v1/surveys/{uuid}/stats [get]
func (h *SurveyHandler) Stats(c fiber.Ctx) error {
	surveyUUID := c.Params("uuid")
	if surveyUUID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid uuid", "INVALID_INPUT", nil)
	}

	result, err := h.flow.GetStats(h.createRequestContext(c, "/api/v1/surveys/{uuid}/stats"), surveyUUID)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Stats", result)
}

// Export streams an XLSX workbook of a survey's responses.
// @Summary Export responses
// @Tags Surveys
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param uuid path string true "Survey UUID"
// @Success 200 {string} string "XLSX file"
// @Failure 403 {object} dto.APIResponse "Forbidden"
// @Router /api/v1/surveys/{uuid}/responses/export [get]
func (h *SurveyHandler) Export(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}
	surveyUUID := c.Params("uuid")

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	filename, data, err := h.flow.ExportResponses(h.createRequestContext(c, "/api/v1/surveys/{uuid}/responses/export"), creatorID, surveyUUID, metadata)
	if err != nil {
		return businessErrorResponse(c, err)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(data)
}

func (h *SurveyHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

func (h *SurveyHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	if creatorID, ok := c.Locals("creator_id").(uint); ok && creatorID != 0 {
		ctx = context.WithValue(ctx, utils.CreatorIDKey, creatorID)
	}
	return ctx
}

func queryInt(c fiber.Ctx, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
