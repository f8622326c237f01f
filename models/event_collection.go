package models

import (
	"time"

	"github.com/audioform/audioform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventCollection groups surveys under a shareable slug for in-person events.
// QRCodeURL is a compose-URL of an external QR image service pointing at the
// public collection page; it is computed once at creation.
type EventCollection struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID        uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	Slug        string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"slug"`
	Name        string     `gorm:"type:varchar(255);not null" json:"name"`
	SurveyUUIDs StringList `gorm:"type:jsonb;not null" json:"survey_uuids"`
	QRCodeURL   string     `gorm:"type:text;not null" json:"qr_code_url"`
	OwnerID     *uint      `gorm:"index" json:"owner_id,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Owner *Creator `gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:SET NULL" json:"owner,omitempty"`
}

func (EventCollection) TableName() string { return "event_collections" }

// BeforeCreate ensures UUID and timestamp are set.
func (e *EventCollection) BeforeCreate(tx *gorm.DB) error {
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = utils.UTCNow()
	}
	return nil
}

// EventCollectionFilter represents filter criteria for event collection queries.
type EventCollectionFilter struct {
	ID      *uint      `json:"id,omitempty"`
	UUID    *uuid.UUID `json:"uuid,omitempty"`
	Slug    *string    `json:"slug,omitempty"`
	OwnerID *uint      `json:"owner_id,omitempty"`
}
