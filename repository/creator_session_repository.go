package repository

import (
	"context"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// CreatorSessionRepositoryImpl implements CreatorSessionRepository interface.
type CreatorSessionRepositoryImpl struct {
	*BaseRepository[models.CreatorSession, models.CreatorSessionFilter]
}

// NewCreatorSessionRepository creates a new creator session repository.
func NewCreatorSessionRepository(db *gorm.DB) CreatorSessionRepository {
	return &CreatorSessionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CreatorSession, models.CreatorSessionFilter](db),
	}
}

// BySessionToken retrieves an active, unexpired session by access token.
func (r *CreatorSessionRepositoryImpl) BySessionToken(ctx context.Context, token string) (*models.CreatorSession, error) {
	now := utils.UTCNow()
	active := true
	filter := models.CreatorSessionFilter{
		SessionToken: &token,
		IsActive:     &active,
		ExpiresAfter: &now,
	}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByRefreshToken retrieves an active session by refresh token. Expiry of the
// access token is deliberately not checked here; refresh is how it gets
// renewed.
func (r *CreatorSessionRepositoryImpl) ByRefreshToken(ctx context.Context, token string) (*models.CreatorSession, error) {
	active := true
	filter := models.CreatorSessionFilter{
		RefreshToken: &token,
		IsActive:     &active,
	}
	rows, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ExpireAllForCreator deactivates every active session the creator holds.
func (r *CreatorSessionRepositoryImpl) ExpireAllForCreator(ctx context.Context, creatorID uint) error {
	db := r.getDB(ctx)
	return db.Model(&models.CreatorSession{}).
		Where("creator_id = ? AND is_active = ?", creatorID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"expires_at": utils.UTCNow(),
		}).Error
}

// applyFilter applies filter criteria to a GORM query.
func (r *CreatorSessionRepositoryImpl) applyFilter(query *gorm.DB, filter models.CreatorSessionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.CreatorID != nil {
		query = query.Where("creator_id = ?", *filter.CreatorID)
	}
	if filter.SessionToken != nil {
		query = query.Where("session_token = ?", *filter.SessionToken)
	}
	if filter.RefreshToken != nil {
		query = query.Where("refresh_token = ?", *filter.RefreshToken)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.ExpiresAfter != nil {
		query = query.Where("expires_at > ?", *filter.ExpiresAfter)
	}
	return query
}

// ByFilter retrieves sessions based on filter criteria.
func (r *CreatorSessionRepositoryImpl) ByFilter(ctx context.Context, filter models.CreatorSessionFilter, orderBy string, limit, offset int) ([]*models.CreatorSession, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CreatorSession{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []*models.CreatorSession
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of sessions matching the filter.
func (r *CreatorSessionRepositoryImpl) Count(ctx context.Context, filter models.CreatorSessionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.CreatorSession{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any session matches the filter.
func (r *CreatorSessionRepositoryImpl) Exists(ctx context.Context, filter models.CreatorSessionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
