package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/audioform/audioform/utils"
	"gorm.io/gorm"
)

// StringList is an ordered list of strings stored as a JSONB column.
type StringList []string

// Value implements driver.Valuer for JSONB storage.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for string list column: %T", value)
	}
	return json.Unmarshal(raw, l)
}

// IndexOf returns the position of s in the list, or -1.
func (l StringList) IndexOf(s string) int {
	for i, v := range l {
		if v == s {
			return i
		}
	}
	return -1
}

// Funnel is an ordered sequence of event names used to measure conversion
// between two milestones (e.g. demo creation -> waitlist signup).
type Funnel struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"name"`
	Steps     StringList `gorm:"type:jsonb;not null" json:"steps"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Funnel) TableName() string { return "funnels" }

// FunnelConversion tracks one session's progress through one funnel. The
// (funnel_id, session_id) pair is unique and rows are written with an upsert,
// so concurrent events for the same session cannot create duplicates.
type FunnelConversion struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FunnelID       uint      `gorm:"not null;uniqueIndex:idx_funnel_session,priority:1" json:"funnel_id"`
	SessionID      string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_funnel_session,priority:2" json:"session_id"`
	StepsCompleted int       `gorm:"not null;default:0" json:"steps_completed"`
	FirstEventAt   time.Time `gorm:"not null" json:"first_event_at"`
	LastEventAt    time.Time `gorm:"not null" json:"last_event_at"`

	Funnel *Funnel `gorm:"foreignKey:FunnelID;references:ID;constraint:OnDelete:CASCADE" json:"funnel,omitempty"`
}

func (FunnelConversion) TableName() string { return "funnel_conversions" }

// BeforeCreate fills event timestamps when absent.
func (c *FunnelConversion) BeforeCreate(tx *gorm.DB) error {
	if c.FirstEventAt.IsZero() {
		c.FirstEventAt = utils.UTCNow()
	}
	if c.LastEventAt.IsZero() {
		c.LastEventAt = c.FirstEventAt
	}
	return nil
}

// FunnelFilter represents filter criteria for funnel queries.
type FunnelFilter struct {
	ID   *uint   `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

// FunnelConversionFilter represents filter criteria for conversion queries.
type FunnelConversionFilter struct {
	ID        *uint   `json:"id,omitempty"`
	FunnelID  *uint   `json:"funnel_id,omitempty"`
	SessionID *string `json:"session_id,omitempty"`
}
