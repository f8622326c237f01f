package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// DemoSessionRepositoryImpl implements DemoSessionRepository interface.
type DemoSessionRepositoryImpl struct {
	*BaseRepository[models.DemoSession, models.DemoSessionFilter]
}

// NewDemoSessionRepository creates a new demo session repository.
func NewDemoSessionRepository(db *gorm.DB) DemoSessionRepository {
	return &DemoSessionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.DemoSession, models.DemoSessionFilter](db),
	}
}

// ByUUID retrieves a demo session by UUID.
func (r *DemoSessionRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.DemoSession, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}
	rows, err := r.ByFilter(ctx, models.DemoSessionFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// BySurveyID retrieves the demo session paired with a survey.
func (r *DemoSessionRepositoryImpl) BySurveyID(ctx context.Context, surveyID uint) (*models.DemoSession, error) {
	rows, err := r.ByFilter(ctx, models.DemoSessionFilter{SurveyID: &surveyID}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListExpiredUnnotified returns sessions past their expiry that have not yet
// received the one-time notification, oldest expiry first.
func (r *DemoSessionRepositoryImpl) ListExpiredUnnotified(ctx context.Context, now time.Time, limit int) ([]*models.DemoSession, error) {
	notified := false
	return r.ByFilter(ctx, models.DemoSessionFilter{
		Notified:      &notified,
		ExpiresBefore: &now,
	}, "expires_at ASC", limit, 0)
}

// MarkNotified flips notified with a conditional update so only one caller
// ever wins the flip, regardless of concurrent sweeps.
func (r *DemoSessionRepositoryImpl) MarkNotified(ctx context.Context, sessionID uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.DemoSession{}).
		Where("id = ? AND notified = ?", sessionID, false).
		Updates(map[string]any{"notified": true, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark demo session %d notified: %w", sessionID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// applyFilter applies filter criteria to a GORM query.
func (r *DemoSessionRepositoryImpl) applyFilter(query *gorm.DB, filter models.DemoSessionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.SurveyID != nil {
		query = query.Where("survey_id = ?", *filter.SurveyID)
	}
	if filter.Notified != nil {
		query = query.Where("notified = ?", *filter.Notified)
	}
	if filter.ExpiresBefore != nil {
		query = query.Where("expires_at < ?", *filter.ExpiresBefore)
	}
	if filter.ExpiresAfter != nil {
		query = query.Where("expires_at > ?", *filter.ExpiresAfter)
	}
	return query
}

// ByFilter retrieves demo sessions based on filter criteria.
func (r *DemoSessionRepositoryImpl) ByFilter(ctx context.Context, filter models.DemoSessionFilter, orderBy string, limit, offset int) ([]*models.DemoSession, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.DemoSession{})

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

	var rows []*models.DemoSession
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of demo sessions matching the filter.
func (r *DemoSessionRepositoryImpl) Count(ctx context.Context, filter models.DemoSessionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.DemoSession{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any demo session matches the filter.
func (r *DemoSessionRepositoryImpl) Exists(ctx context.Context, filter models.DemoSessionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
