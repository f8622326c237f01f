package businessflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/services"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// ResponseFlow handles audio response submission and retrieval.
type ResponseFlow interface {
	SubmitResponse(ctx context.Context, req *dto.SubmitResponseRequest, metadata *ClientMetadata) (*dto.SubmitResponseResponse, error)
	BackfillEmail(ctx context.Context, responseUUID, email string) error
	GetAudio(ctx context.Context, creatorID uint, responseUUID string) (io.ReadCloser, string, error)
	ListResponses(ctx context.Context, creatorID uint, surveyUUID string, page, pageSize int) (*dto.ListResponsesResponse, error)
}

// ResponseFlowImpl implements the response business flow
type ResponseFlowImpl struct {
	surveyRepo     repository.SurveyRepository
	responseRepo   repository.ResponseRepository
	auditRepo      repository.AuditLogRepository
	audioStore     services.AudioStore
	counterService services.CounterService
	analyticsQueue services.AnalyticsQueue
	db             *gorm.DB
}

// NewResponseFlow creates a new response flow instance
func NewResponseFlow(
	surveyRepo repository.SurveyRepository,
	responseRepo repository.ResponseRepository,
	auditRepo repository.AuditLogRepository,
	audioStore services.AudioStore,
	counterService services.CounterService,
	analyticsQueue services.AnalyticsQueue,
	db *gorm.DB,
) ResponseFlow {
	return &ResponseFlowImpl{
		surveyRepo:     surveyRepo,
		responseRepo:   responseRepo,
		auditRepo:      auditRepo,
		audioStore:     audioStore,
		counterService: counterService,
		analyticsQueue: analyticsQueue,
		db:             db,
	}
}

var allowedAudioMimeTypes = map[string]string{
	"audio/webm": ".webm",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/wav":  ".wav",
	"audio/wave": ".wav",
}

// SubmitResponse uploads the audio and inserts the response row. The survey
// is checked once before the upload to fail fast, then re-checked under a row
// lock in the same transaction as the insert, so a survey closed or expired
// mid-upload never gains a response. The upload happens before the insert so a
// failed upload never leaves a row pointing at nothing; a failed insert
// cleans up the uploaded blob.
func (f *ResponseFlowImpl) SubmitResponse(ctx context.Context, req *dto.SubmitResponseRequest, metadata *ClientMetadata) (*dto.SubmitResponseResponse, error) {
	if err := f.validateSubmission(req); err != nil {
		return nil, err
	}

	contentType := req.FileHeader.Header.Get("Content-Type")
	ext, ok := allowedAudioMimeTypes[strings.ToLower(contentType)]
	if !ok {
		ext = strings.ToLower(filepath.Ext(req.FileHeader.Filename))
		if ext == "" {
			return nil, NewBusinessError("INVALID_INPUT", "Unsupported audio type", ErrAudioTypeInvalid)
		}
		contentType = "application/octet-stream"
	}

	survey, err := f.surveyRepo.ByUUID(ctx, req.SurveyUUID)
	if err != nil {
		return nil, NewBusinessError("SUBMISSION_FAILED", "Failed to fetch survey", err)
	}
	if err := checkSubmittable(survey, req.QuestionID); err != nil {
		return nil, mapSubmissionError(err)
	}

	key := services.BuildAudioKey(req.SurveyUUID, req.QuestionID, ext)
	if err := f.audioStore.Put(ctx, key, req.File, req.FileHeader.Size, contentType); err != nil {
		return nil, NewBusinessError("UPLOAD_FAILED", "Audio upload failed", ErrUploadFailed)
	}

	response := &models.Response{
		QuestionID:        req.QuestionID,
		AudioPath:         key,
		AudioSizeBytes:    req.FileHeader.Size,
		MimeType:          contentType,
		Email:             req.Email,
		RespondentSession: req.RespondentSession,
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		locked, err := f.surveyRepo.ByUUIDForUpdate(txCtx, req.SurveyUUID)
		if err != nil {
			return err
		}
		if err := checkSubmittable(locked, req.QuestionID); err != nil {
			return err
		}
		response.SurveyID = locked.ID
		return f.responseRepo.Save(txCtx, response)
	})
	if err != nil {
		if delErr := f.audioStore.Delete(ctx, key); delErr != nil {
			log.Printf("failed to clean up audio %s after insert failure: %v", key, delErr)
		}
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("DUPLICATE_RESPONSE", "Response already submitted for this question", ErrDuplicateResponse)
		}
		return nil, mapSubmissionError(err)
	}

	if err := f.counterService.PublishResponse(ctx, req.SurveyUUID, response.UUID.String(), response.CreatedAt); err != nil {
		log.Printf("failed to publish counter update for survey %s: %v", req.SurveyUUID, err)
	}

	f.auditSubmission(ctx, response, metadata)
	f.trackFirstResponse(ctx, survey, metadata)

	return &dto.SubmitResponseResponse{
		Message:    "Response submitted successfully",
		ResponseID: response.UUID.String(),
	}, nil
}

// BackfillEmail attaches an email to a response that was submitted without
// one. The email may be set exactly once.
func (f *ResponseFlowImpl) BackfillEmail(ctx context.Context, responseUUID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return NewBusinessError("INVALID_INPUT", "Email is required", nil)
	}

	response, err := f.responseRepo.ByUUID(ctx, responseUUID)
	if err != nil {
		return NewBusinessError("BACKFILL_FAILED", "Failed to fetch response", err)
	}
	if response == nil {
		return NewBusinessError("NOT_FOUND", "Response not found", ErrResponseNotFound)
	}
	if response.Email != nil && *response.Email != "" {
		return NewBusinessError("INVALID_INPUT", "Email already set", ErrEmailAlreadySet)
	}

	if err := f.responseRepo.BackfillEmail(ctx, response.ID, email); err != nil {
		return NewBusinessError("BACKFILL_FAILED", "Failed to save email", err)
	}
	return nil
}

// GetAudio streams one response's audio for its survey owner.
func (f *ResponseFlowImpl) GetAudio(ctx context.Context, creatorID uint, responseUUID string) (io.ReadCloser, string, error) {
	response, err := f.responseRepo.ByUUID(ctx, responseUUID)
	if err != nil {
		return nil, "", NewBusinessError("AUDIO_FETCH_FAILED", "Failed to fetch response", err)
	}
	if response == nil {
		return nil, "", NewBusinessError("NOT_FOUND", "Response not found", ErrResponseNotFound)
	}

	survey, err := f.surveyRepo.ByID(ctx, response.SurveyID)
	if err != nil {
		return nil, "", NewBusinessError("AUDIO_FETCH_FAILED", "Failed to fetch survey", err)
	}
	if survey == nil {
		return nil, "", NewBusinessError("NOT_FOUND", "Survey not found", ErrSurveyNotFound)
	}
	if survey.OwnerID == nil || *survey.OwnerID != creatorID {
		return nil, "", NewBusinessError("FORBIDDEN", "Survey access denied", ErrSurveyAccessDenied)
	}

	body, contentType, err := f.audioStore.Get(ctx, response.AudioPath)
	if err != nil {
		return nil, "", NewBusinessError("AUDIO_FETCH_FAILED", "Failed to load audio", err)
	}
	if contentType == "" {
		contentType = response.MimeType
	}
	return body, contentType, nil
}

// ListResponses returns one page of an owned survey's responses.
func (f *ResponseFlowImpl) ListResponses(ctx context.Context, creatorID uint, surveyUUID string, page, pageSize int) (*dto.ListResponsesResponse, error) {
	if page < 1 {
		return nil, NewBusinessError("INVALID_INPUT", "Invalid page", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, NewBusinessError("INVALID_INPUT", "Invalid page size", ErrInvalidPageSize)
	}

	survey, err := f.surveyRepo.ByUUID(ctx, surveyUUID)
	if err != nil {
		return nil, NewBusinessError("RESPONSE_LIST_FAILED", "Failed to fetch survey", err)
	}
	if survey == nil {
		return nil, NewBusinessError("NOT_FOUND", "Survey not found", ErrSurveyNotFound)
	}
	if survey.OwnerID == nil || *survey.OwnerID != creatorID {
		return nil, NewBusinessError("FORBIDDEN", "Survey access denied", ErrSurveyAccessDenied)
	}

	responses, err := f.responseRepo.ListBySurvey(ctx, survey.ID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("RESPONSE_LIST_FAILED", "Failed to list responses", err)
	}

	total, err := f.responseRepo.CountBySurvey(ctx, survey.ID)
	if err != nil {
		return nil, NewBusinessError("RESPONSE_LIST_FAILED", "Failed to count responses", err)
	}

	out := make([]dto.ResponseDTO, 0, len(responses))
	for _, r := range responses {
		questionText := ""
		if q := survey.Questions.ByID(r.QuestionID); q != nil {
			questionText = q.Text
		}
		out = append(out, dto.ResponseDTO{
			ID:             r.ID,
			UUID:           r.UUID.String(),
			QuestionID:     r.QuestionID,
			QuestionText:   questionText,
			AudioURL:       fmt.Sprintf("/api/v1/responses/%s/audio", r.UUID),
			AudioSizeBytes: r.AudioSizeBytes,
			MimeType:       r.MimeType,
			Email:          r.Email,
			SubmittedAt:    r.CreatedAt.Format(time.RFC3339),
		})
	}
	return &dto.ListResponsesResponse{Responses: out, Total: total}, nil
}

// Private helper methods

func (f *ResponseFlowImpl) validateSubmission(req *dto.SubmitResponseRequest) error {
	if req == nil || strings.TrimSpace(req.SurveyUUID) == "" || strings.TrimSpace(req.QuestionID) == "" {
		return NewBusinessError("INVALID_INPUT", "survey_id and question_id are required", nil)
	}
	if req.File == nil || req.FileHeader == nil {
		return NewBusinessError("INVALID_INPUT", "Audio file is required", ErrAudioRequired)
	}
	if req.FileHeader.Size <= 0 {
		return NewBusinessError("INVALID_INPUT", "Audio file is empty", ErrAudioRequired)
	}
	if req.FileHeader.Size > utils.MaxAudioSizeBytes {
		return NewBusinessError("INVALID_INPUT", "Audio file is too large", ErrAudioTooLarge)
	}
	return nil
}

// checkSubmittable reports whether a survey can accept a response right now.
func checkSubmittable(survey *models.Survey, questionID string) error {
	if survey == nil {
		return ErrSurveyNotFound
	}
	if !utils.IsTrue(survey.IsActive) {
		return ErrSurveyInactive
	}
	if survey.IsExpired() {
		return ErrSurveyExpired
	}
	if survey.Questions.ByID(questionID) == nil {
		return ErrQuestionNotFound
	}
	return nil
}

func mapSubmissionError(err error) error {
	switch {
	case IsSurveyNotFound(err):
		return NewBusinessError("NOT_FOUND", "Survey not found", err)
	case IsSurveyInactive(err):
		return NewBusinessError("SURVEY_INACTIVE", "Survey is not accepting responses", err)
	case IsSurveyExpired(err):
		return NewBusinessError("SURVEY_EXPIRED", "Survey has expired", err)
	case IsQuestionNotFound(err):
		return NewBusinessError("INVALID_INPUT", "Question not found in survey", err)
	default:
		return NewBusinessError("SUBMISSION_FAILED", "Failed to submit response", err)
	}
}

func (f *ResponseFlowImpl) auditSubmission(ctx context.Context, response *models.Response, metadata *ClientMetadata) {
	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}
	description := fmt.Sprintf("Response submitted: %s", response.UUID)
	audit := &models.AuditLog{
		Action:      models.AuditActionResponseSubmitted,
		Description: &description,
		Success:     utils.ToPtr(true),
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}
	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	}
	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log: %v", err)
	}
}

// trackFirstResponse emits the first-response event when this submission is
// the survey's first. The count check races with concurrent submits; an
// occasional duplicate event is acceptable for funnel purposes.
func (f *ResponseFlowImpl) trackFirstResponse(ctx context.Context, survey *models.Survey, metadata *ClientMetadata) {
	if f.analyticsQueue == nil {
		return
	}
	count, err := f.responseRepo.CountBySurvey(ctx, survey.ID)
	if err != nil || count != 1 {
		return
	}
	sessionID := ""
	if metadata != nil {
		sessionID = metadata.SessionID
	}
	f.analyticsQueue.Enqueue(&models.AnalyticsEvent{
		EventName:  models.EventFirstResponse,
		SessionID:  sessionID,
		Properties: []byte(fmt.Sprintf(`{"survey_uuid":%q}`, survey.UUID.String())),
	})
}
