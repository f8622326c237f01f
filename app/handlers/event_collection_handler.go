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

// EventCollectionHandlerInterface defines the contract for event collection handlers.
type EventCollectionHandlerInterface interface {
	Create(c fiber.Ctx) error
	GetBySlug(c fiber.Ctx) error
}

// EventCollectionHandler handles event collection requests.
type EventCollectionHandler struct {
	flow      businessflow.EventCollectionFlow
	validator *validator.Validate
}

// NewEventCollectionHandler creates a new event collection handler.
func NewEventCollectionHandler(flow businessflow.EventCollectionFlow, validator *validator.Validate) *EventCollectionHandler {
	return &EventCollectionHandler{flow: flow, validator: validator}
}

// Create handles event collection creation by an authenticated creator.
// @Summary Create event collection
// @Tags Events
// @Accept json
// @Produce json
// @Success 201 {object} dto.APIResponse{data=dto.CreateEventCollectionResponse} "Created"
// @Failure 409 {object} dto.APIResponse "Duplicate slug"
// @Router /api/v1/events [post]
func (h *EventCollectionHandler) Create(c fiber.Ctx) error {
	creatorID, ok := c.Locals("creator_id").(uint)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Creator ID not found in context", "MISSING_CREATOR_ID", nil)
	}

	var req dto.CreateEventCollectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_INPUT", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "INVALID_INPUT", validationDetails(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.flow.CreateCollection(h.createRequestContext(c, "/api/v1/events"), creatorID, &req, metadata)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusCreated, "Event collection created", result)
}

// GetBySlug returns the public view of one event collection.
// @Summary Get event collection
// @Tags Events
// @Produce json
// @Param slug path string true "Collection slug"
// @Success 200 {object} dto.APIResponse{data=dto.EventCollectionDTO} "Collection"
// @Failure 404 {object} dto.APIResponse "Not found"
// @Router /api/v1/events/{slug} [get]
func (h *EventCollectionHandler) GetBySlug(c fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return errorResponse(c, fiber.StatusBadRequest, "Slug is required", "INVALID_INPUT", nil)
	}

	result, err := h.flow.GetBySlug(h.createRequestContext(c, "/api/v1/events/{slug}"), slug)
	if err != nil {
		return businessErrorResponse(c, err)
	}
	return successResponse(c, fiber.StatusOK, "Event collection", result)
}

func (h *EventCollectionHandler) createRequestContext(c fiber.Ctx, endpoint string) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.CancelFuncKey, cancel)
	if creatorID, ok := c.Locals("creator_id").(uint); ok && creatorID != 0 {
		ctx = context.WithValue(ctx, utils.CreatorIDKey, creatorID)
	}
	return ctx
}
