package businessflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
)

// EventCollectionFlow handles grouping surveys under a shareable event page.
type EventCollectionFlow interface {
	CreateCollection(ctx context.Context, creatorID uint, req *dto.CreateEventCollectionRequest, metadata *ClientMetadata) (*dto.CreateEventCollectionResponse, error)
	GetBySlug(ctx context.Context, slug string) (*dto.EventCollectionDTO, error)
}

// EventCollectionFlowImpl implements the event collection business flow
type EventCollectionFlowImpl struct {
	collectionRepo repository.EventCollectionRepository
	surveyRepo     repository.SurveyRepository
	publicBaseURL  string
	qrServiceURL   string
}

// NewEventCollectionFlow creates a new event collection flow instance.
// qrServiceURL is the external QR image endpoint; the collection's public
// page URL is passed to it as the data parameter.
func NewEventCollectionFlow(
	collectionRepo repository.EventCollectionRepository,
	surveyRepo repository.SurveyRepository,
	publicBaseURL string,
	qrServiceURL string,
) EventCollectionFlow {
	return &EventCollectionFlowImpl{
		collectionRepo: collectionRepo,
		surveyRepo:     surveyRepo,
		publicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		qrServiceURL:   qrServiceURL,
	}
}

// CreateCollection creates an event collection over existing surveys.
func (f *EventCollectionFlowImpl) CreateCollection(ctx context.Context, creatorID uint, req *dto.CreateEventCollectionRequest, metadata *ClientMetadata) (*dto.CreateEventCollectionResponse, error) {
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		return nil, NewBusinessError("INVALID_INPUT", "Slug is required", nil)
	}

	existing, err := f.collectionRepo.BySlug(ctx, slug)
	if err != nil {
		return nil, NewBusinessError("COLLECTION_CREATION_FAILED", "Failed to check slug", err)
	}
	if existing != nil {
		return nil, NewBusinessError("DUPLICATE_SLUG", "Slug already exists", ErrDuplicateSlug)
	}

	for _, surveyUUID := range req.SurveyUUIDs {
		survey, err := f.surveyRepo.ByUUID(ctx, surveyUUID)
		if err != nil {
			return nil, NewBusinessError("COLLECTION_CREATION_FAILED", "Failed to verify survey", err)
		}
		if survey == nil {
			return nil, NewBusinessErrorf("NOT_FOUND", "Survey not found: %s", ErrSurveyNotFound, surveyUUID)
		}
	}

	pageURL := fmt.Sprintf("%s/events/%s", f.publicBaseURL, slug)
	qrCodeURL := fmt.Sprintf("%s?size=300x300&data=%s", f.qrServiceURL, url.QueryEscape(pageURL))

	collection := &models.EventCollection{
		Slug:        slug,
		Name:        strings.TrimSpace(req.Name),
		SurveyUUIDs: models.StringList(req.SurveyUUIDs),
		QRCodeURL:   qrCodeURL,
		OwnerID:     &creatorID,
	}

	if err := f.collectionRepo.Save(ctx, collection); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("DUPLICATE_SLUG", "Slug already exists", ErrDuplicateSlug)
		}
		return nil, NewBusinessError("COLLECTION_CREATION_FAILED", "Failed to create collection", err)
	}

	return &dto.CreateEventCollectionResponse{
		Message:   "Event collection created successfully",
		EventID:   collection.UUID.String(),
		QRCodeURL: collection.QRCodeURL,
	}, nil
}

// GetBySlug returns the public view of one event collection.
func (f *EventCollectionFlowImpl) GetBySlug(ctx context.Context, slug string) (*dto.EventCollectionDTO, error) {
	collection, err := f.collectionRepo.BySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, NewBusinessError("COLLECTION_FETCH_FAILED", "Failed to fetch collection", err)
	}
	if collection == nil {
		return nil, NewBusinessError("NOT_FOUND", "Event collection not found", ErrCollectionNotFound)
	}
	result := ToEventCollectionDTO(*collection)
	return &result, nil
}
