package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/services"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	"github.com/audioform/audioform/utils"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// SurveyFlow handles survey lifecycle: demo creation, CRUD, stats, and export.
type SurveyFlow interface {
	CreateDemoSurvey(ctx context.Context, req *dto.CreateDemoSurveyRequest, metadata *ClientMetadata) (*dto.CreateDemoSurveyResponse, error)
	GetDemoSurvey(ctx context.Context, surveyUUID string) (*dto.DemoSurveyDTO, error)
	CreateSurvey(ctx context.Context, creatorID uint, req *dto.CreateSurveyRequest, metadata *ClientMetadata) (*dto.SurveyDTO, error)
	GetSurvey(ctx context.Context, surveyUUID string) (*dto.SurveyDTO, error)
	UpdateSurvey(ctx context.Context, creatorID uint, surveyUUID string, req *dto.UpdateSurveyRequest, metadata *ClientMetadata) error
	DeleteSurvey(ctx context.Context, creatorID uint, surveyUUID string, metadata *ClientMetadata) error
	ListSurveys(ctx context.Context, creatorID uint, page, pageSize int) (*dto.ListSurveysResponse, error)
	GetStats(ctx context.Context, surveyUUID string) (*dto.SurveyStatsResponse, error)
	ExportResponses(ctx context.Context, creatorID uint, surveyUUID string, metadata *ClientMetadata) (string, []byte, error)
}

// SurveyFlowImpl implements the survey business flow
type SurveyFlowImpl struct {
	surveyRepo     repository.SurveyRepository
	responseRepo   repository.ResponseRepository
	demoRepo       repository.DemoSessionRepository
	auditRepo      repository.AuditLogRepository
	audioStore     services.AudioStore
	counterService services.CounterService
	analyticsQueue services.AnalyticsQueue
	db             *gorm.DB
}

// NewSurveyFlow creates a new survey flow instance
func NewSurveyFlow(
	surveyRepo repository.SurveyRepository,
	responseRepo repository.ResponseRepository,
	demoRepo repository.DemoSessionRepository,
	auditRepo repository.AuditLogRepository,
	audioStore services.AudioStore,
	counterService services.CounterService,
	analyticsQueue services.AnalyticsQueue,
	db *gorm.DB,
) SurveyFlow {
	return &SurveyFlowImpl{
		surveyRepo:     surveyRepo,
		responseRepo:   responseRepo,
		demoRepo:       demoRepo,
		auditRepo:      auditRepo,
		audioStore:     audioStore,
		counterService: counterService,
		analyticsQueue: analyticsQueue,
		db:             db,
	}
}

// CreateDemoSurvey creates an anonymous, 24h-limited survey plus its demo
// session. The demo session insert is best effort: a survey without one still
// works, it just never gets the expiry email.
func (f *SurveyFlowImpl) CreateDemoSurvey(ctx context.Context, req *dto.CreateDemoSurveyRequest, metadata *ClientMetadata) (*dto.CreateDemoSurveyResponse, error) {
	if err := validateQuestions(req.Title, req.Questions); err != nil {
		return nil, NewBusinessError("INVALID_INPUT", "Survey validation failed", err)
	}

	now := utils.UTCNow()
	expiresAt := now.Add(utils.DemoSurveyTTL)

	survey := &models.Survey{
		Title:     strings.TrimSpace(req.Title),
		Questions: toQuestions(req.Questions),
		IsActive:  utils.ToPtr(true),
		IsDemo:    utils.ToPtr(true),
		ExpiresAt: &expiresAt,
	}

	if err := f.surveyRepo.Save(ctx, survey); err != nil {
		return nil, NewBusinessError("DEMO_CREATION_FAILED", "Failed to create demo survey", err)
	}

	session := &models.DemoSession{
		SurveyID:  survey.ID,
		ExpiresAt: expiresAt,
		Notified:  utils.ToPtr(false),
		Email:     req.Email,
	}
	if err := f.demoRepo.Save(ctx, session); err != nil {
		log.Printf("demo session insert failed for survey %s: %v", survey.UUID, err)
	}

	f.audit(ctx, nil, models.AuditActionDemoCreated, fmt.Sprintf("Demo survey created: %s", survey.UUID), true, nil, metadata)
	f.track(models.EventDemoCreated, metadata, map[string]string{"survey_uuid": survey.UUID.String()})

	return &dto.CreateDemoSurveyResponse{
		Message:   "Demo survey created successfully",
		DemoID:    survey.UUID.String(),
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

// GetDemoSurvey returns a demo survey with its expiry phase and live count.
func (f *SurveyFlowImpl) GetDemoSurvey(ctx context.Context, surveyUUID string) (*dto.DemoSurveyDTO, error) {
	survey, err := f.surveyRepo.ByUUID(ctx, surveyUUID)
	if err != nil {
		return nil, NewBusinessError("DEMO_FETCH_FAILED", "Failed to fetch demo survey", err)
	}
	if survey == nil || !utils.IsTrue(survey.IsDemo) {
		return nil, NewBusinessError("NOT_FOUND", "Demo survey not found", ErrSurveyNotFound)
	}

	now := utils.UTCNow()
	phase := models.ExpiryPhaseExpired
	var remaining int64
	if survey.ExpiresAt != nil {
		phase = models.ExpiryPhase(*survey.ExpiresAt, now)
		if d := survey.ExpiresAt.Sub(now); d > 0 {
			remaining = int64(d.Seconds())
		}
	}

	count, err := f.responseRepo.CountBySurvey(ctx, survey.ID)
	if err != nil {
		return nil, NewBusinessError("DEMO_FETCH_FAILED", "Failed to count responses", err)
	}

	return &dto.DemoSurveyDTO{
		Survey:           ToSurveyDTO(*survey),
		Phase:            phase,
		SecondsRemaining: remaining,
		ResponseCount:    count,
	}, nil
}

// CreateSurvey creates a survey owned by an authenticated creator. Expiry is
// optional and, once set, immutable. The creator's previously active surveys
// are deactivated first; a failure there only logs, the create still proceeds.
func (f *SurveyFlowImpl) CreateSurvey(ctx context.Context, creatorID uint, req *dto.CreateSurveyRequest, metadata *ClientMetadata) (*dto.SurveyDTO, error) {
	if err := validateQuestions(req.Title, req.Questions); err != nil {
		return nil, NewBusinessError("INVALID_INPUT", "Survey validation failed", err)
	}

	var expiresAt *time.Time
	if req.ExpiresAt != nil {
		parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return nil, NewBusinessError("INVALID_INPUT", "Invalid expires_at timestamp", err)
		}
		parsedUTC := parsed.UTC()
		expiresAt = &parsedUTC
	}

	if _, err := f.surveyRepo.DeactivateActiveByOwner(ctx, creatorID); err != nil {
		log.Printf("failed to deactivate previous surveys for creator %d: %v", creatorID, err)
	}

	survey := &models.Survey{
		Title:     strings.TrimSpace(req.Title),
		Questions: toQuestions(req.Questions),
		IsActive:  utils.ToPtr(true),
		IsDemo:    utils.ToPtr(false),
		ExpiresAt: expiresAt,
		OwnerID:   &creatorID,
	}

	if err := f.surveyRepo.Save(ctx, survey); err != nil {
		return nil, NewBusinessError("SURVEY_CREATION_FAILED", "Failed to create survey", err)
	}

	f.audit(ctx, &creatorID, models.AuditActionSurveyCreated, fmt.Sprintf("Survey created: %s", survey.UUID), true, nil, metadata)

	result := ToSurveyDTO(*survey)
	return &result, nil
}

// GetSurvey returns one survey by UUID. Public: respondents load surveys
// without authentication.
func (f *SurveyFlowImpl) GetSurvey(ctx context.Context, surveyUUID string) (*dto.SurveyDTO, error) {
	survey, err := f.surveyRepo.ByUUID(ctx, surveyUUID)
	if err != nil {
		return nil, NewBusinessError("SURVEY_FETCH_FAILED", "Failed to fetch survey", err)
	}
	if survey == nil {
		return nil, NewBusinessError("NOT_FOUND", "Survey not found", ErrSurveyNotFound)
	}
	result := ToSurveyDTO(*survey)
	return &result, nil
}

// UpdateSurvey applies a partial update to an owned survey.
func (f *SurveyFlowImpl) UpdateSurvey(ctx context.Context, creatorID uint, surveyUUID string, req *dto.UpdateSurveyRequest, metadata *ClientMetadata) error {
	survey, err := f.getOwnedSurvey(ctx, creatorID, surveyUUID)
	if err != nil {
		return err
	}

	fields := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return NewBusinessError("INVALID_INPUT", "Survey title is required", ErrSurveyTitleRequired)
		}
		fields["title"] = title
	}
	if req.Questions != nil {
		if err := validateQuestionList(req.Questions); err != nil {
			return NewBusinessError("INVALID_INPUT", "Survey validation failed", err)
		}
		fields["questions"] = toQuestions(req.Questions)
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if len(fields) == 0 {
		return nil
	}

	if err := f.surveyRepo.UpdateFields(ctx, survey.ID, fields); err != nil {
		return NewBusinessError("SURVEY_UPDATE_FAILED", "Failed to update survey", err)
	}

	f.audit(ctx, &creatorID, models.AuditActionSurveyUpdated, fmt.Sprintf("Survey updated: %s", survey.UUID), true, nil, metadata)
	return nil
}

// DeleteSurvey removes an owned survey, its responses, and their audio blobs.
// Blob removal is best effort: a blob that cannot be deleted only logs.
func (f *SurveyFlowImpl) DeleteSurvey(ctx context.Context, creatorID uint, surveyUUID string, metadata *ClientMetadata) error {
	survey, err := f.getOwnedSurvey(ctx, creatorID, surveyUUID)
	if err != nil {
		return err
	}

	responses, err := f.responseRepo.ListBySurvey(ctx, survey.ID, 0, 0)
	if err != nil {
		return NewBusinessError("SURVEY_DELETE_FAILED", "Failed to load responses", err)
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.responseRepo.DeleteBySurvey(txCtx, survey.ID); err != nil {
			return err
		}
		return f.surveyRepo.Delete(txCtx, survey.ID)
	})
	if err != nil {
		return NewBusinessError("SURVEY_DELETE_FAILED", "Failed to delete survey", err)
	}

	for _, r := range responses {
		if err := f.audioStore.Delete(ctx, r.AudioPath); err != nil {
			log.Printf("failed to delete audio %s for deleted survey %s: %v", r.AudioPath, survey.UUID, err)
		}
	}

	f.counterService.Unwatch(survey.UUID.String())
	f.audit(ctx, &creatorID, models.AuditActionSurveyDeleted, fmt.Sprintf("Survey deleted: %s", survey.UUID), true, nil, metadata)
	return nil
}

// ListSurveys returns one page of the creator's surveys.
func (f *SurveyFlowImpl) ListSurveys(ctx context.Context, creatorID uint, page, pageSize int) (*dto.ListSurveysResponse, error) {
	if page < 1 {
		return nil, NewBusinessError("INVALID_INPUT", "Invalid page", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, NewBusinessError("INVALID_INPUT", "Invalid page size", ErrInvalidPageSize)
	}

	surveys, err := f.surveyRepo.ListByOwner(ctx, creatorID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("SURVEY_LIST_FAILED", "Failed to list surveys", err)
	}

	total, err := f.surveyRepo.Count(ctx, models.SurveyFilter{OwnerID: &creatorID})
	if err != nil {
		return nil, NewBusinessError("SURVEY_LIST_FAILED", "Failed to count surveys", err)
	}

	out := make([]dto.SurveyDTO, 0, len(surveys))
	for _, s := range surveys {
		out = append(out, ToSurveyDTO(*s))
	}
	return &dto.ListSurveysResponse{Surveys: out, Total: total}, nil
}

// GetStats returns the live counter snapshot for a survey, starting a watch
// on first access.
func (f *SurveyFlowImpl) GetStats(ctx context.Context, surveyUUID string) (*dto.SurveyStatsResponse, error) {
	survey, err := f.surveyRepo.ByUUID(ctx, surveyUUID)
	if err != nil {
		return nil, NewBusinessError("STATS_FAILED", "Failed to fetch survey", err)
	}
	if survey == nil {
		return nil, NewBusinessError("NOT_FOUND", "Survey not found", ErrSurveyNotFound)
	}

	counts, state, ok := f.counterService.Counts(surveyUUID)
	if !ok {
		if err := f.counterService.Watch(ctx, survey.ID, surveyUUID); err != nil {
			return nil, NewBusinessError("STATS_FAILED", "Failed to start counter", err)
		}
		counts, state, _ = f.counterService.Counts(surveyUUID)
	}

	return &dto.SurveyStatsResponse{
		Total:    counts.Total,
		Today:    counts.Today,
		ThisHour: counts.ThisHour,
		Mode:     string(state),
	}, nil
}

// ExportResponses builds an XLSX workbook of one survey's responses.
func (f *SurveyFlowImpl) ExportResponses(ctx context.Context, creatorID uint, surveyUUID string, metadata *ClientMetadata) (string, []byte, error) {
	survey, err := f.getOwnedSurvey(ctx, creatorID, surveyUUID)
	if err != nil {
		return "", nil, err
	}

	responses, err := f.responseRepo.ListBySurvey(ctx, survey.ID, 0, 0)
	if err != nil {
		return "", nil, NewBusinessError("EXPORT_FAILED", "Failed to load responses", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := xl.GetSheetName(0)
	header := []string{"question_id", "question", "audio_url", "email", "submitted_at"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	for ri, r := range responses {
		questionText := ""
		if q := survey.Questions.ByID(r.QuestionID); q != nil {
			questionText = q.Text
		}
		email := ""
		if r.Email != nil {
			email = *r.Email
		}
		record := []string{
			r.QuestionID,
			questionText,
			fmt.Sprintf("/api/v1/responses/%s/audio", r.UUID),
			email,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXPORT_FAILED", "Failed to write workbook", err)
	}

	f.audit(ctx, &creatorID, models.AuditActionExportGenerated, fmt.Sprintf("Export generated: %s", survey.UUID), true, nil, metadata)
	f.track(models.EventExportDownloaded, metadata, map[string]string{"survey_uuid": surveyUUID})

	filename := fmt.Sprintf("responses_%s.xlsx", survey.UUID)
	return filename, buf.Bytes(), nil
}

// Private helper methods

func (f *SurveyFlowImpl) getOwnedSurvey(ctx context.Context, creatorID uint, surveyUUID string) (*models.Survey, error) {
	survey, err := f.surveyRepo.ByUUID(ctx, surveyUUID)
	if err != nil {
		return nil, NewBusinessError("SURVEY_FETCH_FAILED", "Failed to fetch survey", err)
	}
	if survey == nil {
		return nil, NewBusinessError("NOT_FOUND", "Survey not found", ErrSurveyNotFound)
	}
	if survey.OwnerID == nil || *survey.OwnerID != creatorID {
		return nil, NewBusinessError("FORBIDDEN", "Survey access denied", ErrSurveyAccessDenied)
	}
	return survey, nil
}

func validateQuestions(title string, questions []dto.QuestionDTO) error {
	if strings.TrimSpace(title) == "" {
		return ErrSurveyTitleRequired
	}
	return validateQuestionList(questions)
}

func validateQuestionList(questions []dto.QuestionDTO) error {
	if len(questions) == 0 {
		return ErrQuestionsRequired
	}
	if len(questions) > utils.MaxQuestionsPerSurvey {
		return ErrTooManyQuestions
	}
	for _, q := range questions {
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Text) == "" {
			return ErrQuestionsRequired
		}
	}
	return nil
}

func toQuestions(questions []dto.QuestionDTO) models.Questions {
	out := make(models.Questions, 0, len(questions))
	for _, q := range questions {
		out = append(out, models.Question{ID: strings.TrimSpace(q.ID), Text: strings.TrimSpace(q.Text)})
	}
	return out
}

func (f *SurveyFlowImpl) audit(ctx context.Context, creatorID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		CreatorID:    creatorID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	}

	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log: %v", err)
	}
}

func (f *SurveyFlowImpl) track(eventName string, metadata *ClientMetadata, props map[string]string) {
	if f.analyticsQueue == nil {
		return
	}
	sessionID := ""
	if metadata != nil {
		sessionID = metadata.SessionID
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return
	}
	f.analyticsQueue.Enqueue(&models.AnalyticsEvent{
		EventName:  eventName,
		SessionID:  sessionID,
		Properties: raw,
	})
}
