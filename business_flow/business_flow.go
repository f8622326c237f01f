// Package businessflow contains the business logic for the application.
package businessflow

import (
	"time"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/models"
)

// ClientMetadata holds all client-related information for audit logging and session tracking
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetSessionID sets the session ID
func (cm *ClientMetadata) SetSessionID(sessionID string) {
	cm.SessionID = sessionID
}

// ToSurveyDTO converts a survey model to SurveyDTO for API responses
func ToSurveyDTO(survey models.Survey) dto.SurveyDTO {
	questions := make([]dto.QuestionDTO, 0, len(survey.Questions))
	for _, q := range survey.Questions {
		questions = append(questions, dto.QuestionDTO{ID: q.ID, Text: q.Text})
	}

	var expiresAt *string
	if survey.ExpiresAt != nil {
		s := survey.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &s
	}

	return dto.SurveyDTO{
		ID:        survey.ID,
		UUID:      survey.UUID.String(),
		Title:     survey.Title,
		Questions: questions,
		IsActive:  survey.IsActive != nil && *survey.IsActive,
		IsDemo:    survey.IsDemo != nil && *survey.IsDemo,
		ExpiresAt: expiresAt,
		CreatedAt: survey.CreatedAt.Format(time.RFC3339),
	}
}

// ToCreatorDTO converts a creator model to CreatorDTO for API responses
func ToCreatorDTO(creator models.Creator) dto.CreatorDTO {
	return dto.CreatorDTO{
		ID:          creator.ID,
		UUID:        creator.UUID.String(),
		Email:       creator.Email,
		DisplayName: creator.DisplayName,
		CreatedAt:   creator.CreatedAt.Format(time.RFC3339),
	}
}

// ToSessionDTO converts a creator session to SessionDTO for API responses
func ToSessionDTO(session models.CreatorSession) dto.SessionDTO {
	return dto.SessionDTO{
		AccessToken:  session.SessionToken,
		RefreshToken: session.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(session.ExpiresAt).Seconds()),
	}
}

// ToEventCollectionDTO converts an event collection model for API responses
func ToEventCollectionDTO(collection models.EventCollection) dto.EventCollectionDTO {
	return dto.EventCollectionDTO{
		UUID:        collection.UUID.String(),
		Slug:        collection.Slug,
		Name:        collection.Name,
		SurveyUUIDs: []string(collection.SurveyUUIDs),
		QRCodeURL:   collection.QRCodeURL,
		CreatedAt:   collection.CreatedAt.Format(time.RFC3339),
	}
}
