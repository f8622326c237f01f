package repository

import (
	"context"
	"fmt"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FunnelRepositoryImpl implements FunnelRepository interface.
type FunnelRepositoryImpl struct {
	*BaseRepository[models.Funnel, models.FunnelFilter]
}

// NewFunnelRepository creates a new funnel repository.
func NewFunnelRepository(db *gorm.DB) FunnelRepository {
	return &FunnelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Funnel, models.FunnelFilter](db),
	}
}

// ByName retrieves a funnel by its unique name.
func (r *FunnelRepositoryImpl) ByName(ctx context.Context, name string) (*models.Funnel, error) {
	rows, err := r.ByFilter(ctx, models.FunnelFilter{Name: &name}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// UpsertConversion writes a conversion row with ON CONFLICT on the
// (funnel_id, session_id) unique index. steps_completed only moves forward and
// first_event_at keeps the original value, so out-of-order or concurrent
// events cannot regress a session's progress.
func (r *FunnelRepositoryImpl) UpsertConversion(ctx context.Context, conv *models.FunnelConversion) error {
	if conv.FirstEventAt.IsZero() {
		conv.FirstEventAt = utils.UTCNow()
	}
	if conv.LastEventAt.IsZero() {
		conv.LastEventAt = conv.FirstEventAt
	}
	db := r.getDB(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "funnel_id"}, {Name: "session_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"steps_completed": gorm.Expr("GREATEST(funnel_conversions.steps_completed, EXCLUDED.steps_completed)"),
			"last_event_at":   gorm.Expr("GREATEST(funnel_conversions.last_event_at, EXCLUDED.last_event_at)"),
		}),
	}).Create(conv).Error
	if err != nil {
		return fmt.Errorf("failed to upsert funnel conversion: %w", err)
	}
	return nil
}

// ConversionsByFunnel lists conversion rows for one funnel.
func (r *FunnelRepositoryImpl) ConversionsByFunnel(ctx context.Context, funnelID uint) ([]*models.FunnelConversion, error) {
	db := r.getDB(ctx)
	var rows []*models.FunnelConversion
	err := db.Model(&models.FunnelConversion{}).
		Where("funnel_id = ?", funnelID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions for funnel %d: %w", funnelID, err)
	}
	return rows, nil
}

// CountConversions counts sessions that completed at least minSteps steps.
func (r *FunnelRepositoryImpl) CountConversions(ctx context.Context, funnelID uint, minSteps int) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.FunnelConversion{}).
		Where("funnel_id = ? AND steps_completed >= ?", funnelID, minSteps).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions for funnel %d: %w", funnelID, err)
	}
	return count, nil
}

// applyFilter applies filter criteria to a GORM query.
func (r *FunnelRepositoryImpl) applyFilter(query *gorm.DB, filter models.FunnelFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	return query
}

// ByFilter retrieves funnels based on filter criteria.
func (r *FunnelRepositoryImpl) ByFilter(ctx context.Context, filter models.FunnelFilter, orderBy string, limit, offset int) ([]*models.Funnel, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Funnel{})

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

	var rows []*models.Funnel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of funnels matching the filter.
func (r *FunnelRepositoryImpl) Count(ctx context.Context, filter models.FunnelFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Funnel{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any funnel matches the filter.
func (r *FunnelRepositoryImpl) Exists(ctx context.Context, filter models.FunnelFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
