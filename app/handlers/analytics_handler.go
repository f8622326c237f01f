package handlers

import (
	"context"
	"time"

	"github.com/audioform/audioform/app/dto"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// AnalyticsHandlerInterface defines the contract for analytics handlers.
type AnalyticsHandlerInterface interface {
	Track(c fiber.Ctx) error
	Funnel(c fiber.Ctx) error
}

// AnalyticsHandler handles analytics ingest and reporting requests.
type AnalyticsHandler struct {
	flow      businessflow.AnalyticsFlow
	validator *validator.Validate
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(flow businessflow.AnalyticsFlow, validator *validator.Validate) *AnalyticsHandler {
	return &AnalyticsHandler{flow: flow, validator: validator}
}

// Track accepts one analytics event.
// @Summary Track event
// @Tags Analytics
// @Accept json
// @Produce json
// @Success 202 {object} dto.APIResponse{data=dto.TrackEventResponse} "Accepted"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Router /api/v1/analytics/events [post]
func (h *AnalyticsHandler) Track(c fiber.Ctx) error {
	var req dto.TrackEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_INPUT", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetSessionID(req.SessionID)

	result, err := h.flow.TrackEvent(h.createRequestContext(c, "/api/v1/analytics/events"), &req, metadata)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusAccepted, "Event accepted", result)
}

// Funnel returns a funnel conversion report for creators.
// @Summary Funnel report
// @Tags Analytics
// @Produce json
// @Param name path string true "Funnel name"
// @Success 200 {object} dto.APIResponse{data=dto.FunnelReportResponse} "Report"
// @Failure 404 {object} dto.APIResponse "Not found"
// @Router /api/v1/analytics/funnels/{name} [get]
func (h *AnalyticsHandler) Funnel(c fiber.Ctx) error {
	if _, ok := c.Locals("creator_id").(uint); !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}

	name := c.Params("name")
	if name == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Funnel name is required", "INVALID_INPUT", nil)
	}

	result, err := h.flow.FunnelReport(h.createRequestContext(c, "/api/v1/analytics/funnels/{name}"), name)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Funnel report", result)
}

func (h *AnalyticsHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	return ctx
}
