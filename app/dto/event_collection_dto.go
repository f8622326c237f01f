package dto

// CreateEventCollectionRequest represents event collection creation
type CreateEventCollectionRequest struct {
	Slug        string   `json:"slug" validate:"required,max=64,lowercase"`
	Name        string   `json:"name" validate:"required,max=200"`
	SurveyUUIDs []string `json:"survey_uuids" validate:"required,min=1,dive,uuid4"`
}

// CreateEventCollectionResponse represents the response after collection creation
type CreateEventCollectionResponse struct {
	Message   string `json:"message"`
	EventID   string `json:"event_id"`
	QRCodeURL string `json:"qr_code_url"`
}

// EventCollectionDTO represents event collection data for API responses
type EventCollectionDTO struct {
	UUID        string   `json:"uuid"`
	Slug        string   `json:"slug"`
	Name        string   `json:"name"`
	SurveyUUIDs []string `json:"survey_uuids"`
	QRCodeURL   string   `json:"qr_code_url"`
	CreatedAt   string   `json:"created_at"`
}
