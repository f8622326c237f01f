package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// ResponseRepositoryImpl implements ResponseRepository interface.
type ResponseRepositoryImpl struct {
	*BaseRepository[models.Response, models.ResponseFilter]
}

// NewResponseRepository creates a new response repository.
func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &ResponseRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Response, models.ResponseFilter](db),
	}
}

// ByUUID retrieves a response by UUID.
func (r *ResponseRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Response, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}
	rows, err := r.ByFilter(ctx, models.ResponseFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListBySurvey retrieves responses for a survey, newest first.
func (r *ResponseRepositoryImpl) ListBySurvey(ctx context.Context, surveyID uint, limit, offset int) ([]*models.Response, error) {
	return r.ByFilter(ctx, models.ResponseFilter{SurveyID: &surveyID}, "id DESC", limit, offset)
}

// CountBySurvey returns the total number of responses for a survey.
func (r *ResponseRepositoryImpl) CountBySurvey(ctx context.Context, surveyID uint) (int64, error) {
	return r.Count(ctx, models.ResponseFilter{SurveyID: &surveyID})
}

// CountBySurveySince counts responses created at or after the given instant.
func (r *ResponseRepositoryImpl) CountBySurveySince(ctx context.Context, surveyID uint, since time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Response{}).
		Where("survey_id = ? AND created_at >= ?", surveyID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count responses for survey %d: %w", surveyID, err)
	}
	return count, nil
}

// BackfillEmail sets the email on a response once. The email is the only field
// a response row may change after creation.
func (r *ResponseRepositoryImpl) BackfillEmail(ctx context.Context, responseID uint, email string) error {
	db := r.getDB(ctx)
	if err := db.Model(&models.Response{}).Where("id = ?", responseID).Update("email", email).Error; err != nil {
		return fmt.Errorf("failed to backfill email on response %d: %w", responseID, err)
	}
	return nil
}

// DeleteBySurvey removes all responses of a survey. Used when the DB-level
// cascade cannot run (explicit cleanup paths).
func (r *ResponseRepositoryImpl) DeleteBySurvey(ctx context.Context, surveyID uint) error {
	db := r.getDB(ctx)
	if err := db.Where("survey_id = ?", surveyID).Delete(&models.Response{}).Error; err != nil {
		return fmt.Errorf("failed to delete responses for survey %d: %w", surveyID, err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query.
func (r *ResponseRepositoryImpl) applyFilter(query *gorm.DB, filter models.ResponseFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.SurveyID != nil {
		query = query.Where("survey_id = ?", *filter.SurveyID)
	}
	if filter.QuestionID != nil {
		query = query.Where("question_id = ?", *filter.QuestionID)
	}
	if filter.Email != nil {
		query = query.Where("email = ?", *filter.Email)
	}
	if filter.RespondentSession != nil {
		query = query.Where("respondent_session = ?", *filter.RespondentSession)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves responses based on filter criteria.
func (r *ResponseRepositoryImpl) ByFilter(ctx context.Context, filter models.ResponseFilter, orderBy string, limit, offset int) ([]*models.Response, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Response{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.Response
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of responses matching the filter.
func (r *ResponseRepositoryImpl) Count(ctx context.Context, filter models.ResponseFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Response{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any response matches the filter.
func (r *ResponseRepositoryImpl) Exists(ctx context.Context, filter models.ResponseFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
