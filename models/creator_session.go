package models

import (
	"time"

	"github.com/audioform/audioform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreatorSession is one issued token pair for a creator. Old sessions are
// expired rather than deleted so login history survives.
type CreatorSession struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID         uuid.UUID  `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CreatorID    uint       `gorm:"not null;index" json:"creator_id"`
	SessionToken string     `gorm:"type:text;not null;index" json:"session_token"`
	RefreshToken string     `gorm:"type:text;not null;index" json:"refresh_token"`
	IsActive     *bool      `gorm:"not null;default:true;index" json:"is_active"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	IPAddress    *string    `gorm:"type:inet" json:"ip_address,omitempty"`
	UserAgent    *string    `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Creator *Creator `gorm:"foreignKey:CreatorID;references:ID;constraint:OnDelete:CASCADE" json:"creator,omitempty"`
}

func (CreatorSession) TableName() string { return "creator_sessions" }

// BeforeCreate ensures UUID and timestamp are set.
func (s *CreatorSession) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// CreatorSessionFilter represents filter criteria for session queries.
type CreatorSessionFilter struct {
	ID           *uint      `json:"id,omitempty"`
	CreatorID    *uint      `json:"creator_id,omitempty"`
	SessionToken *string    `json:"session_token,omitempty"`
	RefreshToken *string    `json:"refresh_token,omitempty"`
	IsActive     *bool      `json:"is_active,omitempty"`
	ExpiresAfter *time.Time `json:"expires_after,omitempty"`
}
