package models

import (
	"encoding/json"
	"time"
)

// AuditLog records security- and lifecycle-relevant actions. Writes are best
// effort; a failed audit insert never fails the operation it describes.
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	CreatorID    *uint           `gorm:"index:idx_audit_creator_id" json:"creator_id,omitempty"`
	Creator      *Creator        `gorm:"foreignKey:CreatorID;references:ID" json:"creator,omitempty"`
	Action       string          `gorm:"type:varchar(64);not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:inet;index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionCreatorSignup       = "creator_signup"
	AuditActionCreatorLogin        = "creator_login"
	AuditActionCreatorLoginFailed  = "creator_login_failed"
	AuditActionSurveyCreated       = "survey_created"
	AuditActionSurveyUpdated       = "survey_updated"
	AuditActionSurveyDeleted       = "survey_deleted"
	AuditActionDemoCreated         = "demo_created"
	AuditActionDemoExpiredNotified = "demo_expired_notified"
	AuditActionResponseSubmitted   = "response_submitted"
	AuditActionExportGenerated     = "export_generated"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	CreatorID     *uint
	Action        *string
	Success       *bool
	IPAddress     *string
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
