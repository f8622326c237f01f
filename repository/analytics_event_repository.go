package repository

import (
	"context"

	"github.com/audioform/audioform/models"
	"gorm.io/gorm"
)

// AnalyticsEventRepositoryImpl implements AnalyticsEventRepository interface.
type AnalyticsEventRepositoryImpl struct {
	*BaseRepository[models.AnalyticsEvent, models.AnalyticsEventFilter]
}

// NewAnalyticsEventRepository creates a new analytics event repository.
func NewAnalyticsEventRepository(db *gorm.DB) AnalyticsEventRepository {
	return &AnalyticsEventRepositoryImpl{
		BaseRepository: NewBaseRepository[models.AnalyticsEvent, models.AnalyticsEventFilter](db),
	}
}

// CountByName counts events with the given name.
func (r *AnalyticsEventRepositoryImpl) CountByName(ctx context.Context, eventName string) (int64, error) {
	return r.Count(ctx, models.AnalyticsEventFilter{EventName: &eventName})
}

// applyFilter applies filter criteria to a GORM query.
func (r *AnalyticsEventRepositoryImpl) applyFilter(query *gorm.DB, filter models.AnalyticsEventFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.EventName != nil {
		query = query.Where("event_name = ?", *filter.EventName)
	}
	if filter.SessionID != nil {
		query = query.Where("session_id = ?", *filter.SessionID)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves analytics events based on filter criteria.
func (r *AnalyticsEventRepositoryImpl) ByFilter(ctx context.Context, filter models.AnalyticsEventFilter, orderBy string, limit, offset int) ([]*models.AnalyticsEvent, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.AnalyticsEvent{})

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

	var rows []*models.AnalyticsEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of analytics events matching the filter.
func (r *AnalyticsEventRepositoryImpl) Count(ctx context.Context, filter models.AnalyticsEventFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.AnalyticsEvent{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any analytics event matches the filter.
func (r *AnalyticsEventRepositoryImpl) Exists(ctx context.Context, filter models.AnalyticsEventFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
