// Package testing provides test utilities and database setup for testing the survey platform
package testing

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"time"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"golang.org/x/crypto/bcrypt"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCreator creates a test creator account
func (tf *TestFixtures) CreateTestCreator() (*models.Creator, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("TestPass123!"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	suffix := rand.Intn(10000000)
	creator := &models.Creator{
		Email:        fmt.Sprintf("creator.%d@example.com", suffix),
		PasswordHash: string(hashedPassword),
		DisplayName:  fmt.Sprintf("Creator %d", suffix),
		IsActive:     utils.ToPtr(true),
	}

	if err := tf.DB.DB.Create(creator).Error; err != nil {
		return nil, fmt.Errorf("failed to create test creator: %w", err)
	}

	return creator, nil
}

// CreateTestSurvey creates an owned survey with two questions
func (tf *TestFixtures) CreateTestSurvey(ownerID uint) (*models.Survey, error) {
	survey := &models.Survey{
		Title: "Customer feedback",
		Questions: models.Questions{
			{ID: "q1", Text: "What did you like most?"},
			{ID: "q2", Text: "What should we improve?"},
		},
		IsActive: utils.ToPtr(true),
		IsDemo:   utils.ToPtr(false),
		OwnerID:  &ownerID,
	}

	if err := tf.DB.DB.Create(survey).Error; err != nil {
		return nil, fmt.Errorf("failed to create test survey: %w", err)
	}

	return survey, nil
}

// CreateTestDemoSurvey creates an anonymous demo survey together with its
// demo session, expiring at the given time
func (tf *TestFixtures) CreateTestDemoSurvey(expiresAt time.Time) (*models.Survey, *models.DemoSession, error) {
	survey := &models.Survey{
		Title: "Demo survey",
		Questions: models.Questions{
			{ID: "q1", Text: "How was the event?"},
		},
		IsActive:  utils.ToPtr(true),
		IsDemo:    utils.ToPtr(true),
		ExpiresAt: &expiresAt,
	}

	if err := tf.DB.DB.Create(survey).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create demo survey: %w", err)
	}

	email := fmt.Sprintf("demo.%d@example.com", rand.Intn(10000000))
	session := &models.DemoSession{
		SurveyID:  survey.ID,
		ExpiresAt: expiresAt,
		Notified:  utils.ToPtr(false),
		Email:     &email,
	}

	if err := tf.DB.DB.Create(session).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to create demo session: %w", err)
	}

	return survey, session, nil
}

// CreateTestResponse creates a response row for the given survey question
func (tf *TestFixtures) CreateTestResponse(surveyID uint, questionID string) (*models.Response, error) {
	response := &models.Response{
		SurveyID:       surveyID,
		QuestionID:     questionID,
		AudioPath:      fmt.Sprintf("test/%d/%s/%d.webm", surveyID, questionID, rand.Intn(10000000)),
		AudioSizeBytes: 2048,
		MimeType:       "audio/webm",
	}

	if err := tf.DB.DB.Create(response).Error; err != nil {
		return nil, fmt.Errorf("failed to create test response: %w", err)
	}

	return response, nil
}

func GenerateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// CreateTestSession creates a test creator session
func (tf *TestFixtures) CreateTestSession(creatorID uint) (*models.CreatorSession, error) {
	sessionToken, err := GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secure session token: %w", err)
	}

	refreshToken, err := GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate secure refresh token: %w", err)
	}

	ipAddress := "127.0.0.1"
	userAgent := "Test User Agent"

	session := &models.CreatorSession{
		CreatorID:    creatorID,
		SessionToken: sessionToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
		IsActive:     utils.ToPtr(true),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
	}

	if err := tf.DB.DB.Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create test session: %w", err)
	}

	return session, nil
}

// CreateTestAuditLog creates a test audit log entry
func (tf *TestFixtures) CreateTestAuditLog(creatorID *uint, action string, success bool) (*models.AuditLog, error) {
	description := fmt.Sprintf("Test %s action", action)
	ipAddress := "127.0.0.1"
	userAgent := "Test User Agent"

	audit := &models.AuditLog{
		CreatorID:   creatorID,
		Action:      action,
		Description: &description,
		Success:     &success,
		IPAddress:   &ipAddress,
		UserAgent:   &userAgent,
	}

	if !success {
		errorMessage := "Test failed action"
		audit.ErrorMessage = &errorMessage
	}

	if err := tf.DB.DB.Create(audit).Error; err != nil {
		return nil, fmt.Errorf("failed to create test audit log: %w", err)
	}

	return audit, nil
}

// CreateTestFunnel creates a funnel with the given ordered steps
func (tf *TestFixtures) CreateTestFunnel(name string, steps []string) (*models.Funnel, error) {
	funnel := &models.Funnel{
		Name:  name,
		Steps: models.StringList(steps),
	}

	if err := tf.DB.DB.Create(funnel).Error; err != nil {
		return nil, fmt.Errorf("failed to create test funnel: %w", err)
	}

	return funnel, nil
}
