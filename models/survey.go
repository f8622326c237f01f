// Package models contains domain entities and business models for the survey platform
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/audioform/audioform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Question is one prompt inside a survey. Questions live embedded in the
// survey row as JSONB and have no lifecycle of their own.
type Question struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Questions is the ordered question list stored as a JSONB column.
type Questions []Question

// Value implements driver.Valuer for JSONB storage.
func (q Questions) Value() (driver.Value, error) {
	if q == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(q)
}

// Scan implements sql.Scanner.
func (q *Questions) Scan(value any) error {
	if value == nil {
		*q = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for questions column: %T", value)
	}
	return json.Unmarshal(raw, q)
}

// ByID returns the embedded question with the given id, or nil.
func (q Questions) ByID(id string) *Question {
	for i := range q {
		if q[i].ID == id {
			return &q[i]
		}
	}
	return nil
}

// Survey represents a creator-authored set of questions awaiting voice responses.
// ExpiresAt, once set, is immutable; IsActive is the only mutable lifecycle flag.
type Survey struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID      uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	Title     string     `gorm:"type:varchar(255);not null" json:"title"`
	Questions Questions  `gorm:"type:jsonb;not null" json:"questions"`
	IsActive  *bool      `gorm:"not null;default:true;index" json:"is_active"`
	IsDemo    *bool      `gorm:"not null;default:false" json:"is_demo"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	OwnerID   *uint      `gorm:"index" json:"owner_id,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Owner *Creator `gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:SET NULL" json:"owner,omitempty"`
}

func (Survey) TableName() string { return "surveys" }

// BeforeCreate ensures UUID and timestamps are set.
func (s *Survey) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = utils.UTCNow()
	}
	return nil
}

// IsExpired reports whether the survey's expiry timestamp has passed.
func (s *Survey) IsExpired() bool {
	return utils.IsExpiredPtr(s.ExpiresAt)
}

// AcceptsResponses reports whether submissions are currently permitted.
func (s *Survey) AcceptsResponses() bool {
	return utils.IsTrue(s.IsActive) && !s.IsExpired()
}

// SurveyFilter represents filter criteria for survey queries.
type SurveyFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	OwnerID       *uint      `json:"owner_id,omitempty"`
	IsActive      *bool      `json:"is_active,omitempty"`
	IsDemo        *bool      `json:"is_demo,omitempty"`
	ExpiresBefore *time.Time `json:"expires_before,omitempty"`
	ExpiresAfter  *time.Time `json:"expires_after,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
