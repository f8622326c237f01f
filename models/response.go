package models

import (
	"time"

	"github.com/audioform/audioform/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Response represents one respondent's recorded answer to one question.
// The audio clip itself lives in blob storage under AudioPath; the row only
// carries the storage key. Responses are never mutated except to backfill an
// email, and are deleted when the parent survey is deleted.
type Response struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID           uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	SurveyID       uint      `gorm:"not null;index;uniqueIndex:idx_responses_dedup,priority:1" json:"survey_id"`
	QuestionID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_responses_dedup,priority:2" json:"question_id"`
	AudioPath      string    `gorm:"type:text;not null" json:"audio_path"`
	AudioSizeBytes int64     `gorm:"type:bigint;not null" json:"audio_size_bytes"`
	MimeType       string    `gorm:"type:varchar(100);not null" json:"mime_type"`
	Email          *string   `gorm:"type:varchar(255)" json:"email,omitempty"`
	// RespondentSession is a client-chosen opaque id. When present it makes
	// (survey, question, session) unique so a double submit surfaces as a
	// duplicate instead of a second row. Anonymous submissions are never
	// deduplicated.
	RespondentSession *string   `gorm:"type:varchar(128);uniqueIndex:idx_responses_dedup,priority:3" json:"respondent_session,omitempty"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`

	Survey *Survey `gorm:"foreignKey:SurveyID;references:ID;constraint:OnDelete:CASCADE" json:"survey,omitempty"`
}

func (Response) TableName() string { return "responses" }

// BeforeCreate ensures UUID and timestamp are set.
func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.UUID == uuid.Nil {
		r.UUID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ResponseFilter represents filter criteria for response queries.
type ResponseFilter struct {
	ID                *uint      `json:"id,omitempty"`
	UUID              *uuid.UUID `json:"uuid,omitempty"`
	SurveyID          *uint      `json:"survey_id,omitempty"`
	QuestionID        *string    `json:"question_id,omitempty"`
	Email             *string    `json:"email,omitempty"`
	RespondentSession *string    `json:"respondent_session,omitempty"`
	CreatedAfter      *time.Time `json:"created_after,omitempty"`
	CreatedBefore     *time.Time `json:"created_before,omitempty"`
}
