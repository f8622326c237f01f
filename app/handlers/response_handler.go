package handlers

import (
	"context"
	"io"
	"time"

	"github.com/audioform/audioform/app/dto"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// ResponseHandlerInterface defines the contract for response handlers.
type ResponseHandlerInterface interface {
	Submit(c fiber.Ctx) error
	BackfillEmail(c fiber.Ctx) error
	Audio(c fiber.Ctx) error
	List(c fiber.Ctx) error
}

// ResponseHandler handles audio response requests.
type ResponseHandler struct {
	flow      businessflow.ResponseFlow
	validator *validator.Validate
}

// NewResponseHandler creates a new response handler.
func NewResponseHandler(flow businessflow.ResponseFlow, validator *validator.Validate) *ResponseHandler {
	return &ResponseHandler{flow: flow, validator: validator}
}

// Submit handles multipart audio response submission.
// @Summary Submit response
// @Description Submit one recorded answer for one survey question
// @Tags Responses
// @Accept mpfd
// @Produce json
// @Param survey_id formData string true "Survey UUID"
// @Param question_id formData string true "Question ID"
// @Param email formData string false "Respondent email"
// @Param audio formData file true "Audio clip (<=25MB)"
// @Success 200 {object} dto.APIResponse{data=dto.SubmitResponseResponse} "Submitted"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 409 {object} dto.APIResponse "Duplicate response"
// @Failure 410 {object} dto.APIResponse "Survey closed or expired"
// @Router /api/v1/responses [post]
func (h *ResponseHandler) Submit(c fiber.Ctx) error {
	req := dto.SubmitResponseRequest{
		SurveyUUID: c.FormValue("survey_id"),
		QuestionID: c.FormValue("question_id"),
	}
	if email := c.FormValue("email"); email != "" {
		req.Email = &email
	}
	if session := c.FormValue("respondent_session"); session != "" {
		req.RespondentSession = &session
	}

	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil || fileHeader == nil {
		return errorResponse(c, fiber.StatusBadRequest, "Audio file is required", "INVALID_INPUT", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid audio file", "INVALID_INPUT", nil)
	}
	defer file.Close()

	req.File = file
	req.FileHeader = fileHeader

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if req.RespondentSession != nil {
		metadata.SetSessionID(*req.RespondentSession)
	}

	result, err := h.flow.SubmitResponse(h.createRequestContext(c, "/api/v1/responses"), &req, metadata)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Response submitted", result)
}

// BackfillEmail attaches an email to an already submitted response.
// @Summary Backfill response email
// @Description Attach an email to a response that was submitted without one
// @Tags Responses
// @Accept json
// @Produce json
// @Param uuid path string true "Response UUID"
// @Param request body dto.BackfillEmailRequest true "Email"
// @Success 200 {object} dto.APIResponse "Email saved"
// @Failure 400 {object} dto.APIResponse "Invalid request or email already set"
// @Failure 404 {object} dto.APIResponse "Not found"
// @Router /api/v1/responses/{uuid}/email [patch]
func (h *ResponseHandler) BackfillEmail(c fiber.Ctx) error {
	responseUUID := c.Params("uuid")
	if responseUUID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid uuid", "INVALID_INPUT", nil)
	}

	var req dto.BackfillEmailRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_INPUT", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	if err := h.flow.BackfillEmail(h.createRequestContext(c, "/api/v1/responses/{uuid}/email"), responseUUID, req.Email); err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Email saved", nil)
}

// Audio streams one response's audio to its survey owner.
// @Summary Get response audio
// @Tags Responses
// @Produce application/octet-stream
// @Param uuid path string true "Response UUID"
// @Success 200 {string} string "Audio bytes"
// @Failure 403 {object} dto.APIResponse "Forbidden"
// @Failure 404 {object} dto.APIResponse "Not found"
// @Router /api/v1/responses/{uuid}/audio [get]
func (h *ResponseHandler) Audio(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}
	responseUUID := c.Params("uuid")
	if responseUUID == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid uuid", "INVALID_INPUT", nil)
	}

	body, contentType, err := h.flow.GetAudio(h.createRequestContext(c, "/api/v1/responses/{uuid}/audio"), creatorID, responseUUID)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return errorResponse(c, fiber.StatusInternalServerError, "Failed to read audio", "AUDIO_FETCH_FAILED", nil)
	}

	c.Set("Content-Type", contentType)
	return c.Status(fiber.StatusOK).Send(data)
}

// List returns one page of an owned survey's responses.
// @Summary List responses
// @Tags Responses
// @Produce json
// @Param uuid path string true "Survey UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ListResponsesResponse} "Responses"
// @Failure 403 {object} dto.APIResponse "Forbidden"
// @Router /api/v1/surveys/{uuid}/responses [get]
func (h *ResponseHandler) List(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}
	surveyUUID := c.Params("uuid")

	page := queryInt(c, "page", 1)
	pageSize := queryInt(c, "page_size", 20)

	result, err := h.flow.ListResponses(h.createRequestContext(c, "/api/v1/surveys/{uuid}/responses"), creatorID, surveyUUID, page, pageSize)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Responses", result)
}

func (h *ResponseHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	return h.createRequestContextWithTimeout(c, endpoint, 60*time.Second)
}

func (h *ResponseHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) context.Context {
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
