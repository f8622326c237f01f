// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/audioform/audioform/app/scheduler"
	"github.com/audioform/audioform/repository"
	testingutil "github.com/audioform/audioform/testing"
	"github.com/audioform/audioform/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier counts expiry emails per recipient.
type recordingNotifier struct {
	mu    sync.Mutex
	sends map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sends: make(map[string]int)}
}

func (n *recordingNotifier) SendEmail(email, subject, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends[email]++
	return nil
}

func (n *recordingNotifier) count(email string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sends[email]
}

func TestExpiryScheduler(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		demoRepo := repository.NewDemoSessionRepository(testDB.DB)
		surveyRepo := repository.NewSurveyRepository(testDB.DB)
		auditRepo := repository.NewAuditLogRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("NotifiesAndDeactivatesOnce", func(t *testing.T) {
			survey, session, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(-time.Minute))
			require.NoError(t, err)
			require.NotNil(t, session.Email)

			notifier := newRecordingNotifier()
			sweep := scheduler.NewExpiryScheduler(demoRepo, surveyRepo, auditRepo, notifier, testDB.DB, nil, 30*time.Millisecond)

			stop := sweep.Start(context.Background())
			// Several sweep intervals pass; the email must still go out once
			time.Sleep(250 * time.Millisecond)
			stop()

			assert.Equal(t, 1, notifier.count(*session.Email))

			updated, err := demoRepo.ByID(ctx, session.ID)
			require.NoError(t, err)
			require.NotNil(t, updated)
			assert.True(t, utils.IsTrue(updated.Notified))

			swept, err := surveyRepo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, swept)
			assert.False(t, utils.IsTrue(swept.IsActive))
		})

		t.Run("LeavesUnexpiredAlone", func(t *testing.T) {
			survey, session, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(time.Hour))
			require.NoError(t, err)

			notifier := newRecordingNotifier()
			sweep := scheduler.NewExpiryScheduler(demoRepo, surveyRepo, auditRepo, notifier, testDB.DB, nil, 30*time.Millisecond)

			stop := sweep.Start(context.Background())
			time.Sleep(100 * time.Millisecond)
			stop()

			assert.Equal(t, 0, notifier.count(*session.Email))

			untouched, err := surveyRepo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, untouched)
			assert.True(t, utils.IsTrue(untouched.IsActive))
		})

		t.Run("SkipsAlreadyNotified", func(t *testing.T) {
			_, session, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(-time.Minute))
			require.NoError(t, err)

			won, err := demoRepo.MarkNotified(ctx, session.ID)
			require.NoError(t, err)
			require.True(t, won)

			notifier := newRecordingNotifier()
			sweep := scheduler.NewExpiryScheduler(demoRepo, surveyRepo, auditRepo, notifier, testDB.DB, nil, 30*time.Millisecond)

			stop := sweep.Start(context.Background())
			time.Sleep(100 * time.Millisecond)
			stop()

			assert.Equal(t, 0, notifier.count(*session.Email))
		})

		return nil
	})
	require.NoError(t, err)
}
