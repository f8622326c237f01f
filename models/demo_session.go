package models

import (
	"time"

	"github.com/audioform/audioform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Expiry phases derived from a demo session's remaining time.
const (
	ExpiryPhaseActive  = "active"
	ExpiryPhaseWarning = "warning"
	ExpiryPhaseExpired = "expired"
)

// ExpiryPhase classifies how much life a demo has left at a given instant.
// The boundary cases fall toward the more urgent phase: exactly at expiry is
// expired, exactly at the warning threshold is warning.
func ExpiryPhase(expiresAt, now time.Time) string {
	if !now.Before(expiresAt) {
		return ExpiryPhaseExpired
	}
	if expiresAt.Sub(now) <= utils.ExpiryWarningWindow {
		return ExpiryPhaseWarning
	}
	return ExpiryPhaseActive
}

// DemoSession is the time-boxed, account-free companion row of a demo survey.
// It is created alongside the survey (best effort) and mutated exactly once,
// when the one-time expiry notification is sent.
type DemoSession struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	SurveyID  uint      `gorm:"not null;uniqueIndex" json:"survey_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Notified  *bool     `gorm:"not null;default:false;index" json:"notified"`
	Email     *string   `gorm:"type:varchar(255)" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Survey *Survey `gorm:"foreignKey:SurveyID;references:ID;constraint:OnDelete:CASCADE" json:"survey,omitempty"`
}

func (DemoSession) TableName() string { return "demo_sessions" }

// BeforeCreate ensures UUID and timestamps are set.
func (d *DemoSession) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = utils.UTCNow()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = utils.UTCNow()
	}
	return nil
}

// DemoSessionFilter represents filter criteria for demo session queries.
type DemoSessionFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	SurveyID      *uint      `json:"survey_id,omitempty"`
	Notified      *bool      `json:"notified,omitempty"`
	ExpiresBefore *time.Time `json:"expires_before,omitempty"`
	ExpiresAfter  *time.Time `json:"expires_after,omitempty"`
}
