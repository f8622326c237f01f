// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/utils"
	"github.com/stretchr/testify/assert"
)

func TestExpiryPhase(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("ActiveWellBeforeWarning", func(t *testing.T) {
		expiresAt := base.Add(10 * time.Hour)
		assert.Equal(t, models.ExpiryPhaseActive, models.ExpiryPhase(expiresAt, base))
	})

	t.Run("WarningExactlyAtWindow", func(t *testing.T) {
		expiresAt := base.Add(utils.ExpiryWarningWindow)
		assert.Equal(t, models.ExpiryPhaseWarning, models.ExpiryPhase(expiresAt, base))
	})

	t.Run("WarningInsideWindow", func(t *testing.T) {
		expiresAt := base.Add(time.Hour)
		assert.Equal(t, models.ExpiryPhaseWarning, models.ExpiryPhase(expiresAt, base))
	})

	t.Run("ActiveJustOutsideWindow", func(t *testing.T) {
		expiresAt := base.Add(utils.ExpiryWarningWindow + time.Millisecond)
		assert.Equal(t, models.ExpiryPhaseActive, models.ExpiryPhase(expiresAt, base))
	})

	t.Run("ExpiredExactlyAtExpiry", func(t *testing.T) {
		assert.Equal(t, models.ExpiryPhaseExpired, models.ExpiryPhase(base, base))
	})

	t.Run("ExpiredNeverReportsWarning", func(t *testing.T) {
		expiresAt := base.Add(-time.Millisecond)
		assert.Equal(t, models.ExpiryPhaseExpired, models.ExpiryPhase(expiresAt, base))
	})
}

func TestQuestionsByID(t *testing.T) {
	questions := models.Questions{
		{ID: "q1", Text: "First question"},
		{ID: "q2", Text: "Second question"},
	}

	t.Run("Found", func(t *testing.T) {
		q := questions.ByID("q2")
		assert.NotNil(t, q)
		assert.Equal(t, "Second question", q.Text)
	})

	t.Run("NotFound", func(t *testing.T) {
		assert.Nil(t, questions.ByID("q3"))
	})

	t.Run("EmptyList", func(t *testing.T) {
		assert.Nil(t, models.Questions{}.ByID("q1"))
	})
}

func TestSurveyAcceptsResponses(t *testing.T) {
	t.Run("ActiveNoExpiry", func(t *testing.T) {
		survey := &models.Survey{IsActive: utils.ToPtr(true)}
		assert.True(t, survey.AcceptsResponses())
	})

	t.Run("Inactive", func(t *testing.T) {
		survey := &models.Survey{IsActive: utils.ToPtr(false)}
		assert.False(t, survey.AcceptsResponses())
	})

	t.Run("ActiveButExpired", func(t *testing.T) {
		past := utils.UTCNow().Add(-time.Minute)
		survey := &models.Survey{IsActive: utils.ToPtr(true), ExpiresAt: &past}
		assert.False(t, survey.AcceptsResponses())
		assert.True(t, survey.IsExpired())
	})

	t.Run("ActiveBeforeExpiry", func(t *testing.T) {
		future := utils.UTCNow().Add(time.Hour)
		survey := &models.Survey{IsActive: utils.ToPtr(true), ExpiresAt: &future}
		assert.True(t, survey.AcceptsResponses())
	})
}
