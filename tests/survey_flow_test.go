// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/services"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	testingutil "github.com/audioform/audioform/testing"
	"github.com/audioform/audioform/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSurveyFlow(t *testing.T, testDB *testingutil.TestDB) (businessflow.SurveyFlow, services.AudioStore) {
	store, err := services.NewLocalAudioStore(t.TempDir())
	require.NoError(t, err)

	responseRepo := repository.NewResponseRepository(testDB.DB)
	flow := businessflow.NewSurveyFlow(
		repository.NewSurveyRepository(testDB.DB),
		responseRepo,
		repository.NewDemoSessionRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		store,
		services.NewCounterService(nil, responseRepo),
		services.NewAnalyticsQueue(repository.NewAnalyticsEventRepository(testDB.DB), 64, 16, time.Second),
		testDB.DB,
	)
	return flow, store
}

func testMetadata() *businessflow.ClientMetadata {
	return businessflow.NewClientMetadata("192.168.1.10", "test-agent/1.0")
}

func TestCreateDemoSurvey(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newSurveyFlow(t, testDB)
		demoRepo := repository.NewDemoSessionRepository(testDB.DB)
		surveyRepo := repository.NewSurveyRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("Success", func(t *testing.T) {
			email := "organizer@example.com"
			before := utils.UTCNow()
			resp, err := flow.CreateDemoSurvey(ctx, &dto.CreateDemoSurveyRequest{
				Title: "Conference feedback",
				Questions: []dto.QuestionDTO{
					{ID: "q1", Text: "How was the keynote?"},
				},
				Email: &email,
			}, testMetadata())
			require.NoError(t, err)
			require.NotNil(t, resp)
			assert.NotEmpty(t, resp.DemoID)

			survey, err := surveyRepo.ByUUID(ctx, resp.DemoID)
			require.NoError(t, err)
			require.NotNil(t, survey)
			assert.True(t, utils.IsTrue(survey.IsDemo))
			assert.True(t, utils.IsTrue(survey.IsActive))
			assert.Nil(t, survey.OwnerID)
			require.NotNil(t, survey.ExpiresAt)
			assert.WithinDuration(t, before.Add(utils.DemoSurveyTTL), *survey.ExpiresAt, 5*time.Second)

			session, err := demoRepo.BySurveyID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, session)
			assert.False(t, utils.IsTrue(session.Notified))
			require.NotNil(t, session.Email)
			assert.Equal(t, email, *session.Email)
		})

		t.Run("AuditCarriesRequestID", func(t *testing.T) {
			auditRepo := repository.NewAuditLogRepository(testDB.DB)
			reqCtx := context.WithValue(ctx, utils.RequestIDKey, "req-12345")

			_, err := flow.CreateDemoSurvey(reqCtx, &dto.CreateDemoSurveyRequest{
				Title:     "Traced demo",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Anything?"}},
			}, testMetadata())
			require.NoError(t, err)

			logs, err := auditRepo.ListByAction(ctx, models.AuditActionDemoCreated, 20, 0)
			require.NoError(t, err)
			found := false
			for _, entry := range logs {
				if entry.RequestID != nil && *entry.RequestID == "req-12345" {
					found = true
				}
			}
			assert.True(t, found, "audit log should record the request id from the context")
		})

		t.Run("MissingTitle", func(t *testing.T) {
			_, err := flow.CreateDemoSurvey(ctx, &dto.CreateDemoSurveyRequest{
				Title:     "   ",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Anything?"}},
			}, testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "INVALID_INPUT", be.Code)
		})

		t.Run("NoQuestions", func(t *testing.T) {
			_, err := flow.CreateDemoSurvey(ctx, &dto.CreateDemoSurveyRequest{
				Title: "Empty",
			}, testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "INVALID_INPUT", be.Code)
		})

		t.Run("TooManyQuestions", func(t *testing.T) {
			questions := make([]dto.QuestionDTO, utils.MaxQuestionsPerSurvey+1)
			for i := range questions {
				questions[i] = dto.QuestionDTO{ID: fmt.Sprintf("q%d", i+1), Text: "Question"}
			}
			_, err := flow.CreateDemoSurvey(ctx, &dto.CreateDemoSurveyRequest{
				Title:     "Overstuffed",
				Questions: questions,
			}, testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "INVALID_INPUT", be.Code)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGetDemoSurvey(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newSurveyFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ActivePhase", func(t *testing.T) {
			survey, _, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(10 * time.Hour))
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(survey.ID, "q1")
			require.NoError(t, err)

			result, err := flow.GetDemoSurvey(ctx, survey.UUID.String())
			require.NoError(t, err)
			assert.Equal(t, models.ExpiryPhaseActive, result.Phase)
			assert.Greater(t, result.SecondsRemaining, int64(0))
			assert.Equal(t, int64(1), result.ResponseCount)
			assert.True(t, result.Survey.IsDemo)
		})

		t.Run("WarningPhase", func(t *testing.T) {
			survey, _, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(time.Hour))
			require.NoError(t, err)

			result, err := flow.GetDemoSurvey(ctx, survey.UUID.String())
			require.NoError(t, err)
			assert.Equal(t, models.ExpiryPhaseWarning, result.Phase)
		})

		t.Run("ExpiredPhase", func(t *testing.T) {
			survey, _, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)

			result, err := flow.GetDemoSurvey(ctx, survey.UUID.String())
			require.NoError(t, err)
			assert.Equal(t, models.ExpiryPhaseExpired, result.Phase)
			assert.Equal(t, int64(0), result.SecondsRemaining)
		})

		t.Run("RegularSurveyNotFound", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			_, err = flow.GetDemoSurvey(ctx, survey.UUID.String())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "NOT_FOUND", be.Code)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCreateAndUpdateSurvey(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newSurveyFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		surveyRepo := repository.NewSurveyRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)

		t.Run("CreateWithExpiry", func(t *testing.T) {
			expiresAt := utils.UTCNow().Add(72 * time.Hour).Format(time.RFC3339)
			result, err := flow.CreateSurvey(ctx, creator.ID, &dto.CreateSurveyRequest{
				Title:     "Quarterly review",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Highlights?"}},
				ExpiresAt: &expiresAt,
			}, testMetadata())
			require.NoError(t, err)
			assert.False(t, result.IsDemo)
			require.NotNil(t, result.ExpiresAt)

			survey, err := surveyRepo.ByUUID(ctx, result.UUID)
			require.NoError(t, err)
			require.NotNil(t, survey)
			require.NotNil(t, survey.OwnerID)
			assert.Equal(t, creator.ID, *survey.OwnerID)
		})

		t.Run("CreateWithBadExpiry", func(t *testing.T) {
			bad := "tomorrow"
			_, err := flow.CreateSurvey(ctx, creator.ID, &dto.CreateSurveyRequest{
				Title:     "Bad expiry",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Anything?"}},
				ExpiresAt: &bad,
			}, testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "INVALID_INPUT", be.Code)
		})

		t.Run("SecondCreateDeactivatesPrevious", func(t *testing.T) {
			owner, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			first, err := flow.CreateSurvey(ctx, owner.ID, &dto.CreateSurveyRequest{
				Title:     "First round",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Opening thoughts?"}},
			}, testMetadata())
			require.NoError(t, err)
			assert.True(t, first.IsActive)

			second, err := flow.CreateSurvey(ctx, owner.ID, &dto.CreateSurveyRequest{
				Title:     "Second round",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Closing thoughts?"}},
			}, testMetadata())
			require.NoError(t, err)

			previous, err := surveyRepo.ByUUID(ctx, first.UUID)
			require.NoError(t, err)
			require.NotNil(t, previous)
			assert.False(t, utils.IsTrue(previous.IsActive))

			current, err := surveyRepo.ByUUID(ctx, second.UUID)
			require.NoError(t, err)
			require.NotNil(t, current)
			assert.True(t, utils.IsTrue(current.IsActive))
		})

		t.Run("IdenticalCreatesProduceDistinctSurveys", func(t *testing.T) {
			owner, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			req := &dto.CreateSurveyRequest{
				Title:     "Repeat after me",
				Questions: []dto.QuestionDTO{{ID: "q1", Text: "Anything new?"}},
			}
			first, err := flow.CreateSurvey(ctx, owner.ID, req, testMetadata())
			require.NoError(t, err)
			second, err := flow.CreateSurvey(ctx, owner.ID, req, testMetadata())
			require.NoError(t, err)

			assert.NotEqual(t, first.UUID, second.UUID)

			total, err := surveyRepo.Count(ctx, models.SurveyFilter{OwnerID: &owner.ID})
			require.NoError(t, err)
			assert.Equal(t, int64(2), total)
		})

		t.Run("UpdateTitleAndActive", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			err = flow.UpdateSurvey(ctx, creator.ID, survey.UUID.String(), &dto.UpdateSurveyRequest{
				Title:    utils.ToPtr("Renamed survey"),
				IsActive: utils.ToPtr(false),
			}, testMetadata())
			require.NoError(t, err)

			updated, err := surveyRepo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, updated)
			assert.Equal(t, "Renamed survey", updated.Title)
			assert.False(t, utils.IsTrue(updated.IsActive))
		})

		t.Run("UpdateByNonOwnerForbidden", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			other, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			err = flow.UpdateSurvey(ctx, other.ID, survey.UUID.String(), &dto.UpdateSurveyRequest{
				Title: utils.ToPtr("Hijacked"),
			}, testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "FORBIDDEN", be.Code)
		})

		t.Run("UpdateUnknownSurvey", func(t *testing.T) {
			err := flow.UpdateSurvey(ctx, creator.ID, "7b0f6f2e-9f3a-4b44-9c0c-000000000000", &dto.UpdateSurveyRequest{
				Title: utils.ToPtr("Ghost"),
			}, testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "NOT_FOUND", be.Code)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDeleteAndListSurveys(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, store := newSurveyFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		surveyRepo := repository.NewSurveyRepository(testDB.DB)
		responseRepo := repository.NewResponseRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("DeleteRemovesResponses", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(survey.ID, "q1")
			require.NoError(t, err)

			err = flow.DeleteSurvey(ctx, creator.ID, survey.UUID.String(), testMetadata())
			require.NoError(t, err)

			gone, err := surveyRepo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			assert.Nil(t, gone)

			count, err := responseRepo.CountBySurvey(ctx, survey.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})

		t.Run("DeleteRemovesAudioBlobs", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			audio := []byte("recorded answer")
			key := services.BuildAudioKey(survey.UUID.String(), "q1", ".webm")
			require.NoError(t, store.Put(ctx, key, bytes.NewReader(audio), int64(len(audio)), "audio/webm"))
			require.NoError(t, responseRepo.Save(ctx, &models.Response{
				SurveyID:       survey.ID,
				QuestionID:     "q1",
				AudioPath:      key,
				AudioSizeBytes: int64(len(audio)),
				MimeType:       "audio/webm",
			}))

			require.NoError(t, flow.DeleteSurvey(ctx, creator.ID, survey.UUID.String(), testMetadata()))

			_, _, err = store.Get(ctx, key)
			assert.Error(t, err)
		})

		t.Run("DeleteByNonOwnerForbidden", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			other, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			err = flow.DeleteSurvey(ctx, other.ID, survey.UUID.String(), testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "FORBIDDEN", be.Code)
		})

		t.Run("ListPagination", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			for range 3 {
				_, err := fixtures.CreateTestSurvey(creator.ID)
				require.NoError(t, err)
			}

			page1, err := flow.ListSurveys(ctx, creator.ID, 1, 2)
			require.NoError(t, err)
			assert.Len(t, page1.Surveys, 2)
			assert.Equal(t, int64(3), page1.Total)

			page2, err := flow.ListSurveys(ctx, creator.ID, 2, 2)
			require.NoError(t, err)
			assert.Len(t, page2.Surveys, 1)
		})

		t.Run("ListInvalidPage", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			_, err = flow.ListSurveys(ctx, creator.ID, 0, 10)
			require.Error(t, err)

			_, err = flow.ListSurveys(ctx, creator.ID, 1, 101)
			require.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGetStats(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newSurveyFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("SeedsFromDatabase", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(survey.ID, "q1")
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(survey.ID, "q2")
			require.NoError(t, err)

			stats, err := flow.GetStats(ctx, survey.UUID.String())
			require.NoError(t, err)
			assert.Equal(t, int64(2), stats.Total)
			assert.Equal(t, int64(2), stats.Today)
			// Without a live feed the counter reports its degraded mode
			assert.Equal(t, string(services.CounterStateDegraded), stats.Mode)
		})

		t.Run("UnknownSurvey", func(t *testing.T) {
			_, err := flow.GetStats(ctx, "7b0f6f2e-9f3a-4b44-9c0c-000000000000")
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "NOT_FOUND", be.Code)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestExportResponses(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newSurveyFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("WorkbookWithRows", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(survey.ID, "q1")
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(survey.ID, "q2")
			require.NoError(t, err)

			filename, data, err := flow.ExportResponses(ctx, creator.ID, survey.UUID.String(), testMetadata())
			require.NoError(t, err)
			assert.Equal(t, "responses_"+survey.UUID.String()+".xlsx", filename)
			assert.NotEmpty(t, data)
			// XLSX files are zip archives
			assert.Equal(t, byte('P'), data[0])
			assert.Equal(t, byte('K'), data[1])
		})

		t.Run("EmptySurveyStillExports", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			_, data, err := flow.ExportResponses(ctx, creator.ID, survey.UUID.String(), testMetadata())
			require.NoError(t, err)
			assert.NotEmpty(t, data)
		})

		t.Run("NonOwnerForbidden", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			other, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			_, _, err = flow.ExportResponses(ctx, other.ID, survey.UUID.String(), testMetadata())
			require.Error(t, err)
			be, ok := err.(*businessflow.BusinessError)
			require.True(t, ok)
			assert.Equal(t, "FORBIDDEN", be.Code)
		})

		return nil
	})
	require.NoError(t, err)
}
