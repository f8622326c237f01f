// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/audioform/audioform/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// SurveyRepository defines operations for surveys
type SurveyRepository interface {
	Repository[models.Survey, models.SurveyFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Survey, error)
	// ByUUIDForUpdate loads a survey under a row lock. It must run inside a
	// transaction started with WithTransaction.
	ByUUIDForUpdate(ctx context.Context, uuid string) (*models.Survey, error)
	ListByOwner(ctx context.Context, ownerID uint, limit, offset int) ([]*models.Survey, error)
	DeactivateActiveByOwner(ctx context.Context, ownerID uint) (int64, error)
	UpdateFields(ctx context.Context, surveyID uint, fields map[string]any) error
	Deactivate(ctx context.Context, surveyID uint) error
	Delete(ctx context.Context, surveyID uint) error
}

// ResponseRepository defines operations for audio responses
type ResponseRepository interface {
	Repository[models.Response, models.ResponseFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Response, error)
	ListBySurvey(ctx context.Context, surveyID uint, limit, offset int) ([]*models.Response, error)
	CountBySurvey(ctx context.Context, surveyID uint) (int64, error)
	CountBySurveySince(ctx context.Context, surveyID uint, since time.Time) (int64, error)
	BackfillEmail(ctx context.Context, responseID uint, email string) error
	DeleteBySurvey(ctx context.Context, surveyID uint) error
}

// DemoSessionRepository defines operations for demo sessions
type DemoSessionRepository interface {
	Repository[models.DemoSession, models.DemoSessionFilter]
	ByUUID(ctx context.Context, uuid string) (*models.DemoSession, error)
	BySurveyID(ctx context.Context, surveyID uint) (*models.DemoSession, error)
	ListExpiredUnnotified(ctx context.Context, now time.Time, limit int) ([]*models.DemoSession, error)
	// MarkNotified flips the notified flag with a conditional update and
	// reports whether this call won the flip.
	MarkNotified(ctx context.Context, sessionID uint) (bool, error)
}

// AnalyticsEventRepository defines operations for analytics events
type AnalyticsEventRepository interface {
	Repository[models.AnalyticsEvent, models.AnalyticsEventFilter]
	CountByName(ctx context.Context, eventName string) (int64, error)
}

// FunnelRepository defines operations for funnels and conversions
type FunnelRepository interface {
	Repository[models.Funnel, models.FunnelFilter]
	ByName(ctx context.Context, name string) (*models.Funnel, error)
	// UpsertConversion inserts or advances a per-session conversion row using
	// the store's native ON CONFLICT primitive, so concurrent events for the
	// same session never race.
	UpsertConversion(ctx context.Context, conv *models.FunnelConversion) error
	ConversionsByFunnel(ctx context.Context, funnelID uint) ([]*models.FunnelConversion, error)
	CountConversions(ctx context.Context, funnelID uint, minSteps int) (int64, error)
}

// EventCollectionRepository defines operations for event collections
type EventCollectionRepository interface {
	Repository[models.EventCollection, models.EventCollectionFilter]
	ByUUID(ctx context.Context, uuid string) (*models.EventCollection, error)
	BySlug(ctx context.Context, slug string) (*models.EventCollection, error)
}

// CreatorRepository defines operations for creator accounts
type CreatorRepository interface {
	Repository[models.Creator, models.CreatorFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Creator, error)
	ByEmail(ctx context.Context, email string) (*models.Creator, error)
}

// CreatorSessionRepository defines operations for creator sessions
type CreatorSessionRepository interface {
	Repository[models.CreatorSession, models.CreatorSessionFilter]
	BySessionToken(ctx context.Context, token string) (*models.CreatorSession, error)
	ByRefreshToken(ctx context.Context, token string) (*models.CreatorSession, error)
	ExpireAllForCreator(ctx context.Context, creatorID uint) error
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCreator(ctx context.Context, creatorID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}
