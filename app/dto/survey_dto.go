// Package dto contains Data Transfer Objects for API request and response structures
package dto

// QuestionDTO represents one text question inside a survey
type QuestionDTO struct {
	ID   string `json:"id" validate:"required,max=64"`
	Text string `json:"text" validate:"required,max=500"`
}

// CreateDemoSurveyRequest represents the anonymous demo creation form
type CreateDemoSurveyRequest struct {
	Title     string        `json:"title" validate:"required,max=200"`
	Questions []QuestionDTO `json:"questions" validate:"required,min=1,max=20,dive"`
	Email     *string       `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

// CreateDemoSurveyResponse represents the response after demo creation
type CreateDemoSurveyResponse struct {
	Message   string `json:"message"`
	DemoID    string `json:"demo_id"`
	ExpiresAt string `json:"expires_at"`
}

// CreateSurveyRequest represents survey creation by an authenticated creator
type CreateSurveyRequest struct {
	Title     string        `json:"title" validate:"required,max=200"`
	Questions []QuestionDTO `json:"questions" validate:"required,min=1,max=20,dive"`
	ExpiresAt *string       `json:"expires_at,omitempty" validate:"omitempty"`
}

// UpdateSurveyRequest represents a partial survey update. Expiry is immutable
// and deliberately absent.
type UpdateSurveyRequest struct {
	Title     *string       `json:"title,omitempty" validate:"omitempty,max=200"`
	Questions []QuestionDTO `json:"questions,omitempty" validate:"omitempty,min=1,max=20,dive"`
	IsActive  *bool         `json:"is_active,omitempty"`
}

// SurveyDTO represents survey data for API responses
type SurveyDTO struct {
	ID        uint          `json:"id"`
	UUID      string        `json:"uuid"`
	Title     string        `json:"title"`
	Questions []QuestionDTO `json:"questions"`
	IsActive  bool          `json:"is_active"`
	IsDemo    bool          `json:"is_demo"`
	ExpiresAt *string       `json:"expires_at,omitempty"`
	CreatedAt string        `json:"created_at"`
}

// DemoSurveyDTO adds expiry phase information for the demo dashboard
type DemoSurveyDTO struct {
	Survey           SurveyDTO `json:"survey"`
	Phase            string    `json:"phase"`
	SecondsRemaining int64     `json:"seconds_remaining"`
	ResponseCount    int64     `json:"response_count"`
}

// SurveyStatsResponse represents the live counter snapshot for a survey
type SurveyStatsResponse struct {
	Total    int64  `json:"total"`
	Today    int64  `json:"today"`
	ThisHour int64  `json:"this_hour"`
	Mode     string `json:"mode"`
}

// ListSurveysResponse wraps a page of surveys
type ListSurveysResponse struct {
	Surveys []SurveyDTO `json:"surveys"`
	Total   int64       `json:"total"`
}
