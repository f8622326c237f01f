package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour

	// SessionTimeout is the default session timeout (24 hours)
	SessionTimeout = 24 * time.Hour
)

// Survey lifecycle constants
const (
	// DemoSurveyTTL is the lifetime of a demo survey from creation to expiry
	DemoSurveyTTL = 24 * time.Hour

	// ExpiryWarningWindow is how long before expiry a demo enters the warning phase
	ExpiryWarningWindow = 3 * time.Hour

	// MaxQuestionsPerSurvey bounds the embedded question list
	MaxQuestionsPerSurvey = 20

	// MaxAudioSizeBytes bounds a single uploaded audio clip (25MB)
	MaxAudioSizeBytes = int64(25 * 1024 * 1024)
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
