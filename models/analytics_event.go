package models

import (
	"encoding/json"
	"time"

	"github.com/audioform/audioform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Well-known funnel event names. Events outside this list are still recorded
// but never advance a funnel conversion.
const (
	EventDemoPageView     = "demo_page_view"
	EventDemoCreated      = "demo_created"
	EventFirstResponse    = "first_response_received"
	EventWaitlistSignup   = "waitlist_signup"
	EventSurveyShared     = "survey_shared"
	EventResultsViewed    = "results_viewed"
	EventExportDownloaded = "export_downloaded"
)

// AnalyticsEvent is an append-only, best-effort usage event. Rows are never
// mutated or deleted by application logic.
type AnalyticsEvent struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	EventName  string          `gorm:"type:varchar(128);not null;index" json:"event_name"`
	Properties json.RawMessage `gorm:"type:jsonb" json:"properties,omitempty"`
	SessionID  string          `gorm:"type:varchar(128);not null;index" json:"session_id"`
	CreatedAt  time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (AnalyticsEvent) TableName() string { return "analytics_events" }

// BeforeCreate ensures UUID and timestamp are set.
func (e *AnalyticsEvent) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.UTCNow()
	}
	return nil
}

// AnalyticsEventFilter represents filter criteria for analytics event queries.
type AnalyticsEventFilter struct {
	ID            *uint      `json:"id,omitempty"`
	EventName     *string    `json:"event_name,omitempty"`
	SessionID     *string    `json:"session_id,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
