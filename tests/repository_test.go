// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	testingutil "github.com/audioform/audioform/testing"
	"github.com/audioform/audioform/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurveyRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewSurveyRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)

		t.Run("SaveAndByUUID", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			assert.NotEqual(t, uint(0), survey.ID)

			found, err := repo.ByUUID(ctx, survey.UUID.String())
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, survey.ID, found.ID)
			assert.Equal(t, "Customer feedback", found.Title)
			require.Len(t, found.Questions, 2)
			assert.Equal(t, "q1", found.Questions[0].ID)
		})

		t.Run("ByUUIDNotFound", func(t *testing.T) {
			found, err := repo.ByUUID(ctx, "7b0f6f2e-9f3a-4b44-9c0c-000000000000")
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("ByUUIDInvalid", func(t *testing.T) {
			_, err := repo.ByUUID(ctx, "not-a-uuid")
			assert.Error(t, err)
		})

		t.Run("ListByOwnerNewestFirst", func(t *testing.T) {
			owner, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			first, err := fixtures.CreateTestSurvey(owner.ID)
			require.NoError(t, err)
			second, err := fixtures.CreateTestSurvey(owner.ID)
			require.NoError(t, err)

			rows, err := repo.ListByOwner(ctx, owner.ID, 10, 0)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, second.ID, rows[0].ID)
			assert.Equal(t, first.ID, rows[1].ID)
		})

		t.Run("UpdateFields", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			err = repo.UpdateFields(ctx, survey.ID, map[string]any{"title": "Renamed"})
			require.NoError(t, err)

			found, err := repo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, "Renamed", found.Title)
		})

		t.Run("Deactivate", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			require.True(t, utils.IsTrue(survey.IsActive))

			err = repo.Deactivate(ctx, survey.ID)
			require.NoError(t, err)

			found, err := repo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.False(t, utils.IsTrue(found.IsActive))
		})

		t.Run("DeactivateActiveByOwner", func(t *testing.T) {
			owner, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			_, err = fixtures.CreateTestSurvey(owner.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestSurvey(owner.ID)
			require.NoError(t, err)

			affected, err := repo.DeactivateActiveByOwner(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), affected)

			// Second call finds nothing left to flip
			affected, err = repo.DeactivateActiveByOwner(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), affected)
		})

		t.Run("Delete", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			err = repo.Delete(ctx, survey.ID)
			require.NoError(t, err)

			found, err := repo.ByID(ctx, survey.ID)
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("CountByFilter", func(t *testing.T) {
			owner, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			_, err = fixtures.CreateTestSurvey(owner.ID)
			require.NoError(t, err)

			count, err := repo.Count(ctx, models.SurveyFilter{OwnerID: &owner.ID})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestResponseRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewResponseRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)
		survey, err := fixtures.CreateTestSurvey(creator.ID)
		require.NoError(t, err)

		t.Run("SaveAndByUUID", func(t *testing.T) {
			resp, err := fixtures.CreateTestResponse(survey.ID, "q1")
			require.NoError(t, err)

			found, err := repo.ByUUID(ctx, resp.UUID.String())
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, resp.ID, found.ID)
			assert.Equal(t, "q1", found.QuestionID)
			assert.Equal(t, int64(2048), found.AudioSizeBytes)
		})

		t.Run("CountBySurvey", func(t *testing.T) {
			s, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			_, err = fixtures.CreateTestResponse(s.ID, "q1")
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(s.ID, "q2")
			require.NoError(t, err)

			count, err := repo.CountBySurvey(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		t.Run("CountBySurveySince", func(t *testing.T) {
			s, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			_, err = fixtures.CreateTestResponse(s.ID, "q1")
			require.NoError(t, err)

			count, err := repo.CountBySurveySince(ctx, s.ID, utils.UTCNow().Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			count, err = repo.CountBySurveySince(ctx, s.ID, utils.UTCNow().Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})

		t.Run("DuplicateRespondentSession", func(t *testing.T) {
			s, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			session := "sess-dedup-1"
			first := &models.Response{
				SurveyID:          s.ID,
				QuestionID:        "q1",
				AudioPath:         "test/dedup/1.webm",
				AudioSizeBytes:    1024,
				MimeType:          "audio/webm",
				RespondentSession: &session,
			}
			require.NoError(t, repo.Save(ctx, first))

			dup := &models.Response{
				SurveyID:          s.ID,
				QuestionID:        "q1",
				AudioPath:         "test/dedup/2.webm",
				AudioSizeBytes:    1024,
				MimeType:          "audio/webm",
				RespondentSession: &session,
			}
			err = repo.Save(ctx, dup)
			require.Error(t, err)
			assert.True(t, repository.IsUniqueViolation(err))
		})

		t.Run("AnonymousDoubleSubmitAllowed", func(t *testing.T) {
			s, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			// Postgres treats NULL respondent_session values as distinct,
			// so anonymous respondents never collide on the dedup index.
			_, err = fixtures.CreateTestResponse(s.ID, "q1")
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(s.ID, "q1")
			require.NoError(t, err)

			count, err := repo.CountBySurvey(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		t.Run("BackfillEmail", func(t *testing.T) {
			resp, err := fixtures.CreateTestResponse(survey.ID, "q2")
			require.NoError(t, err)
			require.Nil(t, resp.Email)

			err = repo.BackfillEmail(ctx, resp.ID, "late@example.com")
			require.NoError(t, err)

			found, err := repo.ByID(ctx, resp.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			require.NotNil(t, found.Email)
			assert.Equal(t, "late@example.com", *found.Email)
		})

		t.Run("DeleteBySurvey", func(t *testing.T) {
			s, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			_, err = fixtures.CreateTestResponse(s.ID, "q1")
			require.NoError(t, err)
			_, err = fixtures.CreateTestResponse(s.ID, "q2")
			require.NoError(t, err)

			err = repo.DeleteBySurvey(ctx, s.ID)
			require.NoError(t, err)

			count, err := repo.CountBySurvey(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(0), count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDemoSessionRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewDemoSessionRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("BySurveyID", func(t *testing.T) {
			survey, session, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(24 * time.Hour))
			require.NoError(t, err)

			found, err := repo.BySurveyID(ctx, survey.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, session.ID, found.ID)
			assert.False(t, utils.IsTrue(found.Notified))
		})

		t.Run("ListExpiredUnnotified", func(t *testing.T) {
			now := utils.UTCNow()

			_, expired, err := fixtures.CreateTestDemoSurvey(now.Add(-2 * time.Hour))
			require.NoError(t, err)
			_, expiredLater, err := fixtures.CreateTestDemoSurvey(now.Add(-time.Hour))
			require.NoError(t, err)
			_, _, err = fixtures.CreateTestDemoSurvey(now.Add(time.Hour))
			require.NoError(t, err)

			rows, err := repo.ListExpiredUnnotified(ctx, now, 10)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			// Oldest expiry first
			assert.Equal(t, expired.ID, rows[0].ID)
			assert.Equal(t, expiredLater.ID, rows[1].ID)

			// Notified sessions drop out of the sweep
			won, err := repo.MarkNotified(ctx, expired.ID)
			require.NoError(t, err)
			assert.True(t, won)

			rows, err = repo.ListExpiredUnnotified(ctx, now, 10)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, expiredLater.ID, rows[0].ID)
		})

		t.Run("MarkNotifiedWinsOnce", func(t *testing.T) {
			_, session, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(-time.Minute))
			require.NoError(t, err)

			won, err := repo.MarkNotified(ctx, session.ID)
			require.NoError(t, err)
			assert.True(t, won)

			won, err = repo.MarkNotified(ctx, session.ID)
			require.NoError(t, err)
			assert.False(t, won)

			found, err := repo.ByID(ctx, session.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.True(t, utils.IsTrue(found.Notified))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestFunnelRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewFunnelRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ByName", func(t *testing.T) {
			funnel, err := fixtures.CreateTestFunnel("demo_activation", []string{"page_view", "record_start", "submit_success"})
			require.NoError(t, err)

			found, err := repo.ByName(ctx, "demo_activation")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, funnel.ID, found.ID)
			require.Len(t, found.Steps, 3)
			assert.Equal(t, "page_view", found.Steps[0])
		})

		t.Run("ByNameNotFound", func(t *testing.T) {
			found, err := repo.ByName(ctx, "does_not_exist")
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("UpsertConversionAdvances", func(t *testing.T) {
			funnel, err := fixtures.CreateTestFunnel("conv_advance", []string{"a", "b", "c"})
			require.NoError(t, err)

			err = repo.UpsertConversion(ctx, &models.FunnelConversion{
				FunnelID:       funnel.ID,
				SessionID:      "sess-1",
				StepsCompleted: 1,
			})
			require.NoError(t, err)

			err = repo.UpsertConversion(ctx, &models.FunnelConversion{
				FunnelID:       funnel.ID,
				SessionID:      "sess-1",
				StepsCompleted: 2,
			})
			require.NoError(t, err)

			rows, err := repo.ConversionsByFunnel(ctx, funnel.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, 2, rows[0].StepsCompleted)
		})

		t.Run("UpsertConversionNeverRegresses", func(t *testing.T) {
			funnel, err := fixtures.CreateTestFunnel("conv_regress", []string{"a", "b", "c"})
			require.NoError(t, err)

			err = repo.UpsertConversion(ctx, &models.FunnelConversion{
				FunnelID:       funnel.ID,
				SessionID:      "sess-1",
				StepsCompleted: 3,
			})
			require.NoError(t, err)

			// A late event for an earlier step must not move progress backwards
			err = repo.UpsertConversion(ctx, &models.FunnelConversion{
				FunnelID:       funnel.ID,
				SessionID:      "sess-1",
				StepsCompleted: 1,
			})
			require.NoError(t, err)

			rows, err := repo.ConversionsByFunnel(ctx, funnel.ID)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, 3, rows[0].StepsCompleted)
		})

		t.Run("CountConversions", func(t *testing.T) {
			funnel, err := fixtures.CreateTestFunnel("conv_count", []string{"a", "b", "c"})
			require.NoError(t, err)

			for i, steps := range []int{1, 2, 3} {
				err = repo.UpsertConversion(ctx, &models.FunnelConversion{
					FunnelID:       funnel.ID,
					SessionID:      "sess-" + string(rune('a'+i)),
					StepsCompleted: steps,
				})
				require.NoError(t, err)
			}

			count, err := repo.CountConversions(ctx, funnel.ID, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(3), count)

			count, err = repo.CountConversions(ctx, funnel.ID, 2)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)

			count, err = repo.CountConversions(ctx, funnel.ID, 3)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCreatorRepositories(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		creatorRepo := repository.NewCreatorRepository(testDB.DB)
		sessionRepo := repository.NewCreatorSessionRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("ByEmail", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			found, err := creatorRepo.ByEmail(ctx, creator.Email)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, creator.ID, found.ID)
			assert.True(t, utils.IsTrue(found.IsActive))
		})

		t.Run("ByEmailNotFound", func(t *testing.T) {
			found, err := creatorRepo.ByEmail(ctx, "nobody@example.com")
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("DuplicateEmail", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			dup := &models.Creator{
				Email:        creator.Email,
				PasswordHash: creator.PasswordHash,
				DisplayName:  "Copycat",
				IsActive:     utils.ToPtr(true),
			}
			err = creatorRepo.Save(ctx, dup)
			require.Error(t, err)
			assert.True(t, repository.IsUniqueViolation(err))
		})

		t.Run("BySessionToken", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			session, err := fixtures.CreateTestSession(creator.ID)
			require.NoError(t, err)

			found, err := sessionRepo.BySessionToken(ctx, session.SessionToken)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, session.ID, found.ID)
			assert.Equal(t, creator.ID, found.CreatorID)
		})

		t.Run("ByRefreshToken", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			session, err := fixtures.CreateTestSession(creator.ID)
			require.NoError(t, err)

			found, err := sessionRepo.ByRefreshToken(ctx, session.RefreshToken)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, session.ID, found.ID)
		})

		t.Run("ExpireAllForCreator", func(t *testing.T) {
			creator, err := fixtures.CreateTestCreator()
			require.NoError(t, err)
			first, err := fixtures.CreateTestSession(creator.ID)
			require.NoError(t, err)
			second, err := fixtures.CreateTestSession(creator.ID)
			require.NoError(t, err)

			err = sessionRepo.ExpireAllForCreator(ctx, creator.ID)
			require.NoError(t, err)

			for _, id := range []uint{first.ID, second.ID} {
				found, err := sessionRepo.ByID(ctx, id)
				require.NoError(t, err)
				require.NotNil(t, found)
				assert.False(t, utils.IsTrue(found.IsActive))
				assert.False(t, found.ExpiresAt.After(utils.UTCNow()))
			}
		})

		return nil
	})
	require.NoError(t, err)
}
