// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/services"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/repository"
	testingutil "github.com/audioform/audioform/testing"
	"github.com/audioform/audioform/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFile struct {
	*bytes.Reader
}

func (memoryFile) Close() error { return nil }

func audioUpload(content []byte, filename, contentType string) (multipart.File, *multipart.FileHeader) {
	header := &multipart.FileHeader{
		Filename: filename,
		Header:   textproto.MIMEHeader{},
		Size:     int64(len(content)),
	}
	if contentType != "" {
		header.Header.Set("Content-Type", contentType)
	}
	return memoryFile{bytes.NewReader(content)}, header
}

func newResponseFlow(t *testing.T, testDB *testingutil.TestDB) (businessflow.ResponseFlow, services.AudioStore) {
	store, err := services.NewLocalAudioStore(t.TempDir())
	require.NoError(t, err)

	responseRepo := repository.NewResponseRepository(testDB.DB)
	flow := businessflow.NewResponseFlow(
		repository.NewSurveyRepository(testDB.DB),
		responseRepo,
		repository.NewAuditLogRepository(testDB.DB),
		store,
		services.NewCounterService(nil, responseRepo),
		services.NewAnalyticsQueue(repository.NewAnalyticsEventRepository(testDB.DB), 64, 16, time.Second),
		testDB.DB,
	)
	return flow, store
}

func assertBusinessCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	be, ok := err.(*businessflow.BusinessError)
	require.True(t, ok, "expected a business error, got %T", err)
	assert.Equal(t, code, be.Code)
}

func TestSubmitResponse(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, store := newResponseFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		responseRepo := repository.NewResponseRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)

		t.Run("Success", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			file, header := audioUpload([]byte("fake webm audio"), "answer.webm", "audio/webm")
			resp, err := flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			require.NoError(t, err)
			assert.NotEmpty(t, resp.ResponseID)

			saved, err := responseRepo.ByUUID(ctx, resp.ResponseID)
			require.NoError(t, err)
			require.NotNil(t, saved)
			assert.Equal(t, survey.ID, saved.SurveyID)
			assert.Equal(t, "q1", saved.QuestionID)
			assert.Equal(t, "audio/webm", saved.MimeType)
			assert.Equal(t, int64(len("fake webm audio")), saved.AudioSizeBytes)

			// The blob must be readable back from the store
			body, contentType, err := store.Get(ctx, saved.AudioPath)
			require.NoError(t, err)
			defer body.Close()
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, []byte("fake webm audio"), data)
			assert.Equal(t, "audio/webm", contentType)
		})

		t.Run("FallbackToFilenameExtension", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			file, header := audioUpload([]byte("mystery bytes"), "voice.mp3", "")
			resp, err := flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			require.NoError(t, err)

			saved, err := responseRepo.ByUUID(ctx, resp.ResponseID)
			require.NoError(t, err)
			require.NotNil(t, saved)
			assert.Equal(t, "application/octet-stream", saved.MimeType)
		})

		t.Run("UnknownSurvey", func(t *testing.T) {
			file, header := audioUpload([]byte("audio"), "a.webm", "audio/webm")
			_, err := flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: "7b0f6f2e-9f3a-4b44-9c0c-000000000000",
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			assertBusinessCode(t, err, "NOT_FOUND")
		})

		t.Run("InactiveSurvey", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			surveyRepo := repository.NewSurveyRepository(testDB.DB)
			require.NoError(t, surveyRepo.Deactivate(ctx, survey.ID))

			file, header := audioUpload([]byte("audio"), "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			assertBusinessCode(t, err, "SURVEY_INACTIVE")
		})

		t.Run("ExpiredSurvey", func(t *testing.T) {
			survey, _, err := fixtures.CreateTestDemoSurvey(utils.UTCNow().Add(-time.Minute))
			require.NoError(t, err)

			file, header := audioUpload([]byte("audio"), "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			assertBusinessCode(t, err, "SURVEY_EXPIRED")
		})

		t.Run("UnknownQuestion", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			file, header := audioUpload([]byte("audio"), "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q99",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			assertBusinessCode(t, err, "INVALID_INPUT")
		})

		t.Run("EmptyAudio", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			file, header := audioUpload(nil, "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			assertBusinessCode(t, err, "INVALID_INPUT")
		})

		t.Run("OversizeAudio", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			file, header := audioUpload([]byte("tiny"), "a.webm", "audio/webm")
			header.Size = utils.MaxAudioSizeBytes + 1
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID: survey.UUID.String(),
				QuestionID: "q1",
				File:       file,
				FileHeader: header,
			}, testMetadata())
			assertBusinessCode(t, err, "INVALID_INPUT")
		})

		t.Run("DuplicateRespondentSession", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)
			session := "browser-session-1"

			file, header := audioUpload([]byte("first take"), "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID:        survey.UUID.String(),
				QuestionID:        "q1",
				RespondentSession: &session,
				File:              file,
				FileHeader:        header,
			}, testMetadata())
			require.NoError(t, err)

			file, header = audioUpload([]byte("second take"), "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID:        survey.UUID.String(),
				QuestionID:        "q1",
				RespondentSession: &session,
				File:              file,
				FileHeader:        header,
			}, testMetadata())
			assertBusinessCode(t, err, "DUPLICATE_RESPONSE")

			// Same session may still answer a different question
			file, header = audioUpload([]byte("other question"), "a.webm", "audio/webm")
			_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
				SurveyUUID:        survey.UUID.String(),
				QuestionID:        "q2",
				RespondentSession: &session,
				File:              file,
				FileHeader:        header,
			}, testMetadata())
			require.NoError(t, err)
		})

		t.Run("AnonymousDoubleSubmit", func(t *testing.T) {
			survey, err := fixtures.CreateTestSurvey(creator.ID)
			require.NoError(t, err)

			for range 2 {
				file, header := audioUpload([]byte("take"), "a.webm", "audio/webm")
				_, err := flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
					SurveyUUID: survey.UUID.String(),
					QuestionID: "q1",
					File:       file,
					FileHeader: header,
				}, testMetadata())
				require.NoError(t, err)
			}

			count, err := responseRepo.CountBySurvey(ctx, survey.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})

		return nil
	})
	require.NoError(t, err)
}

// deactivatingStore closes its survey while the upload is in flight.
type deactivatingStore struct {
	services.AudioStore
	deactivate func() error
}

func (s *deactivatingStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := s.deactivate(); err != nil {
		return err
	}
	return s.AudioStore.Put(ctx, key, body, size, contentType)
}

func TestSubmitResponseClosedDuringUpload(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)
		survey, err := fixtures.CreateTestSurvey(creator.ID)
		require.NoError(t, err)

		dir := t.TempDir()
		base, err := services.NewLocalAudioStore(dir)
		require.NoError(t, err)

		surveyRepo := repository.NewSurveyRepository(testDB.DB)
		responseRepo := repository.NewResponseRepository(testDB.DB)
		store := &deactivatingStore{
			AudioStore: base,
			deactivate: func() error { return surveyRepo.Deactivate(ctx, survey.ID) },
		}
		flow := businessflow.NewResponseFlow(
			surveyRepo,
			responseRepo,
			repository.NewAuditLogRepository(testDB.DB),
			store,
			services.NewCounterService(nil, responseRepo),
			services.NewAnalyticsQueue(repository.NewAnalyticsEventRepository(testDB.DB), 64, 16, time.Second),
			testDB.DB,
		)

		file, header := audioUpload([]byte("late arrival"), "a.webm", "audio/webm")
		_, err = flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
			SurveyUUID: survey.UUID.String(),
			QuestionID: "q1",
			File:       file,
			FileHeader: header,
		}, testMetadata())
		assertBusinessCode(t, err, "SURVEY_INACTIVE")

		count, err := responseRepo.CountBySurvey(ctx, survey.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)

		// The uploaded blob must be cleaned up with the rejected row
		files := 0
		err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr == nil && !d.IsDir() {
				files++
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 0, files)

		return nil
	})
	require.NoError(t, err)
}

func TestBackfillEmail(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newResponseFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		responseRepo := repository.NewResponseRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)
		survey, err := fixtures.CreateTestSurvey(creator.ID)
		require.NoError(t, err)

		file, header := audioUpload([]byte("anonymous take"), "a.webm", "audio/webm")
		submitted, err := flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
			SurveyUUID: survey.UUID.String(),
			QuestionID: "q1",
			File:       file,
			FileHeader: header,
		}, testMetadata())
		require.NoError(t, err)

		t.Run("SetsEmailOnce", func(t *testing.T) {
			err := flow.BackfillEmail(ctx, submitted.ResponseID, " Late.Respondent@Example.COM ")
			require.NoError(t, err)

			saved, err := responseRepo.ByUUID(ctx, submitted.ResponseID)
			require.NoError(t, err)
			require.NotNil(t, saved)
			require.NotNil(t, saved.Email)
			assert.Equal(t, "late.respondent@example.com", *saved.Email)
		})

		t.Run("SecondBackfillRejected", func(t *testing.T) {
			err := flow.BackfillEmail(ctx, submitted.ResponseID, "someone.else@example.com")
			assertBusinessCode(t, err, "INVALID_INPUT")

			saved, err := responseRepo.ByUUID(ctx, submitted.ResponseID)
			require.NoError(t, err)
			require.NotNil(t, saved.Email)
			assert.Equal(t, "late.respondent@example.com", *saved.Email)
		})

		t.Run("UnknownResponse", func(t *testing.T) {
			err := flow.BackfillEmail(ctx, "7b0f6f2e-9f3a-4b44-9c0c-000000000000", "late@example.com")
			assertBusinessCode(t, err, "NOT_FOUND")
		})

		t.Run("EmptyEmail", func(t *testing.T) {
			err := flow.BackfillEmail(ctx, submitted.ResponseID, "   ")
			assertBusinessCode(t, err, "INVALID_INPUT")
		})

		return nil
	})
	require.NoError(t, err)
}

func TestGetAudio(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newResponseFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)
		survey, err := fixtures.CreateTestSurvey(creator.ID)
		require.NoError(t, err)

		file, header := audioUpload([]byte("recorded answer"), "a.webm", "audio/webm")
		submitted, err := flow.SubmitResponse(ctx, &dto.SubmitResponseRequest{
			SurveyUUID: survey.UUID.String(),
			QuestionID: "q1",
			File:       file,
			FileHeader: header,
		}, testMetadata())
		require.NoError(t, err)

		t.Run("OwnerStreamsAudio", func(t *testing.T) {
			body, contentType, err := flow.GetAudio(ctx, creator.ID, submitted.ResponseID)
			require.NoError(t, err)
			defer body.Close()

			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, []byte("recorded answer"), data)
			assert.Equal(t, "audio/webm", contentType)
		})

		t.Run("NonOwnerForbidden", func(t *testing.T) {
			other, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			_, _, err = flow.GetAudio(ctx, other.ID, submitted.ResponseID)
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		t.Run("UnknownResponse", func(t *testing.T) {
			_, _, err := flow.GetAudio(ctx, creator.ID, "7b0f6f2e-9f3a-4b44-9c0c-000000000000")
			assertBusinessCode(t, err, "NOT_FOUND")
		})

		return nil
	})
	require.NoError(t, err)
}

func TestListResponses(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow, _ := newResponseFlow(t, testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)
		survey, err := fixtures.CreateTestSurvey(creator.ID)
		require.NoError(t, err)

		for range 3 {
			_, err := fixtures.CreateTestResponse(survey.ID, "q1")
			require.NoError(t, err)
		}

		t.Run("PageWithQuestionText", func(t *testing.T) {
			result, err := flow.ListResponses(ctx, creator.ID, survey.UUID.String(), 1, 2)
			require.NoError(t, err)
			assert.Len(t, result.Responses, 2)
			assert.Equal(t, int64(3), result.Total)
			assert.Equal(t, "What did you like most?", result.Responses[0].QuestionText)
			assert.Contains(t, result.Responses[0].AudioURL, "/audio")
		})

		t.Run("NonOwnerForbidden", func(t *testing.T) {
			other, err := fixtures.CreateTestCreator()
			require.NoError(t, err)

			_, err = flow.ListResponses(ctx, other.ID, survey.UUID.String(), 1, 10)
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		t.Run("InvalidPaging", func(t *testing.T) {
			_, err := flow.ListResponses(ctx, creator.ID, survey.UUID.String(), 0, 10)
			assertBusinessCode(t, err, "INVALID_INPUT")

			_, err = flow.ListResponses(ctx, creator.ID, survey.UUID.String(), 1, 200)
			assertBusinessCode(t, err, "INVALID_INPUT")
		})

		return nil
	})
	require.NoError(t, err)
}
