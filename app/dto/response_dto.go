package dto

import "mime/multipart"

// SubmitResponseRequest represents the multipart response submission form.
// The audio file arrives as the "audio" form file.
type SubmitResponseRequest struct {
	SurveyUUID        string                `json:"survey_id" form:"survey_id" validate:"required,uuid4"`
	QuestionID        string                `json:"question_id" form:"question_id" validate:"required,max=64"`
	Email             *string               `json:"email,omitempty" form:"email" validate:"omitempty,email,max=255"`
	RespondentSession *string               `json:"respondent_session,omitempty" form:"respondent_session" validate:"omitempty,max=128"`
	File              multipart.File        `json:"-" form:"-"`
	FileHeader        *multipart.FileHeader `json:"-" form:"-"`
}

// BackfillEmailRequest attaches an email to an already submitted response
type BackfillEmailRequest struct {
	Email string `json:"email" form:"email" validate:"required,email,max=255"`
}

// SubmitResponseResponse represents the response after a successful submission
type SubmitResponseResponse struct {
	Message    string `json:"message"`
	ResponseID string `json:"response_id"`
}

// ResponseDTO represents one recorded answer for API responses
type ResponseDTO struct {
	ID             uint    `json:"id"`
	UUID           string  `json:"uuid"`
	QuestionID     string  `json:"question_id"`
	QuestionText   string  `json:"question_text,omitempty"`
	AudioURL       string  `json:"audio_url"`
	AudioSizeBytes int64   `json:"audio_size_bytes"`
	MimeType       string  `json:"mime_type"`
	Email          *string `json:"email,omitempty"`
	SubmittedAt    string  `json:"submitted_at"`
}

// ListResponsesResponse wraps a page of responses for one survey
type ListResponsesResponse struct {
	Responses []ResponseDTO `json:"responses"`
	Total     int64         `json:"total"`
}
