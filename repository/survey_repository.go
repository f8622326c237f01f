package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SurveyRepositoryImpl implements SurveyRepository interface.
type SurveyRepositoryImpl struct {
	*BaseRepository[models.Survey, models.SurveyFilter]
}

// NewSurveyRepository creates a new survey repository.
func NewSurveyRepository(db *gorm.DB) SurveyRepository {
	return &SurveyRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Survey, models.SurveyFilter](db),
	}
}

// ByUUID retrieves a survey by UUID.
func (r *SurveyRepositoryImpl) ByUUID(ctx context.Context, uuidStr string) (*models.Survey, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}
	rows, err := r.ByFilter(ctx, models.SurveyFilter{UUID: &parsed}, "", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByUUIDForUpdate loads a survey under FOR UPDATE so the activity/expiry check
// and the dependent insert observe one consistent row.
func (r *SurveyRepositoryImpl) ByUUIDForUpdate(ctx context.Context, uuidStr string) (*models.Survey, error) {
	parsed, err := utils.ParseUUID(uuidStr)
	if err != nil {
		return nil, err
	}
	db := r.getDB(ctx)
	var row models.Survey
	err = db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ?", parsed).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// ListByOwner retrieves surveys owned by a creator, newest first.
func (r *SurveyRepositoryImpl) ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Survey, error) {
	return r.ByFilter(ctx, models.SurveyFilter{OwnerID: &ownerID}, "id DESC", limit, offset)
}

// DeactivateActiveByOwner flips is_active off for all of the owner's active
// surveys and returns how many rows changed.
func (r *SurveyRepositoryImpl) DeactivateActiveByOwner(ctx context.Context, ownerID uint) (int64, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Survey{}).
		Where("owner_id = ? AND is_active = ?", ownerID, true).
		Updates(map[string]any{"is_active": false, "updated_at": utils.UTCNow()})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate surveys for owner %d: %w", ownerID, res.Error)
	}
	return res.RowsAffected, nil
}

// UpdateFields applies a partial update to a survey row.
func (r *SurveyRepositoryImpl) UpdateFields(ctx context.Context, surveyID uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = utils.UTCNow()
	db := r.getDB(ctx)
	if err := db.Model(&models.Survey{}).Where("id = ?", surveyID).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to update survey %d: %w", surveyID, err)
	}
	return nil
}

// Deactivate flips a single survey's is_active flag off.
func (r *SurveyRepositoryImpl) Deactivate(ctx context.Context, surveyID uint) error {
	return r.UpdateFields(ctx, surveyID, map[string]any{"is_active": false})
}

// Delete removes a survey row. Responses and the demo session cascade at the
// database level.
func (r *SurveyRepositoryImpl) Delete(ctx context.Context, surveyID uint) error {
	db := r.getDB(ctx)
	if err := db.Delete(&models.Survey{}, surveyID).Error; err != nil {
		return fmt.Errorf("failed to delete survey %d: %w", surveyID, err)
	}
	return nil
}

// applyFilter applies filter criteria to a GORM query.
func (r *SurveyRepositoryImpl) applyFilter(query *gorm.DB, filter models.SurveyFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsDemo != nil {
		query = query.Where("is_demo = ?", *filter.IsDemo)
	}
	if filter.ExpiresBefore != nil {
		query = query.Where("expires_at < ?", *filter.ExpiresBefore)
	}
	if filter.ExpiresAfter != nil {
		query = query.Where("expires_at > ?", *filter.ExpiresAfter)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves surveys based on filter criteria.
func (r *SurveyRepositoryImpl) ByFilter(ctx context.Context, filter models.SurveyFilter, orderBy string, limit, offset int) ([]*models.Survey, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Survey{})

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

	var rows []*models.Survey
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of surveys matching the filter.
func (r *SurveyRepositoryImpl) Count(ctx context.Context, filter models.SurveyFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Survey{})
	query = r.applyFilter(query, filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Exists checks if any survey matches the filter.
func (r *SurveyRepositoryImpl) Exists(ctx context.Context, filter models.SurveyFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
