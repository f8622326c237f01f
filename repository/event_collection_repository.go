package repository

import (
	"context"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// EventCollectionRepositoryImpl implements EventCollectionRepository interface.
type EventCollectionRepositoryImpl struct {
	*BaseRepository[models.EventCollection, models.EventCollectionFilter]
}

// NewEventCollectionRepository creates a new event collection repository.
func NewEventCollectionRepository(db *gorm.DB) EventCollectionRepository {
	return &EventCollectionRepositoryImpl{
		BaseRepository: NewBaseRepository[models.EventCollection, models.EventCollectionFilter](db),
	}
}

// ByUUID retrieves an event collection by UUID.
func (r *EventCollectionRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.EventCollection, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}
	rows, err := r.ByFilter(ctx, models.EventCollectionFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// BySlug retrieves an event collection by its unique slug.
func (r *EventCollectionRepositoryImpl) BySlug(ctx context.Context, slug string) (*models.EventCollection, error) {
	rows, err := r.ByFilter(ctx, models.EventCollectionFilter{Slug: &slug}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// applyFilter applies filter criteria to a GORM query.
func (r *EventCollectionRepositoryImpl) applyFilter(query *gorm.DB, filter models.EventCollectionFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Slug != nil {
		query = query.Where("slug = ?", *filter.Slug)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	return query
}

// ByFilter retrieves event collections based on filter criteria.
func (r *EventCollectionRepositoryImpl) ByFilter(ctx context.Context, filter models.EventCollectionFilter, orderBy string, limit, offset int) ([]*models.EventCollection, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.EventCollection{})

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

	var rows []*models.EventCollection
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of event collections matching the filter.
func (r *EventCollectionRepositoryImpl) Count(ctx context.Context, filter models.EventCollectionFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.EventCollection{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any event collection matches the filter.
func (r *EventCollectionRepositoryImpl) Exists(ctx context.Context, filter models.EventCollectionFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
