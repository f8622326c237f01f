// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"

	"github.com/audioform/audioform/app/dto"
	businessflow "github.com/audioform/audioform/business_flow"
	"github.com/audioform/audioform/repository"
	testingutil "github.com/audioform/audioform/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEventCollectionFlow(testDB *testingutil.TestDB) businessflow.EventCollectionFlow {
	return businessflow.NewEventCollectionFlow(
		repository.NewEventCollectionRepository(testDB.DB),
		repository.NewSurveyRepository(testDB.DB),
		"https://audioform.test",
		"https://qr.example.com/create",
	)
}

func TestEventCollectionFlow(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newEventCollectionFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		creator, err := fixtures.CreateTestCreator()
		require.NoError(t, err)
		survey, err := fixtures.CreateTestSurvey(creator.ID)
		require.NoError(t, err)

		t.Run("CreateAndFetch", func(t *testing.T) {
			resp, err := flow.CreateCollection(ctx, creator.ID, &dto.CreateEventCollectionRequest{
				Slug:        "summer-fest-2026",
				Name:        "Summer Fest 2026",
				SurveyUUIDs: []string{survey.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)
			assert.NotEmpty(t, resp.EventID)
			// QR image links back to the public event page
			assert.Contains(t, resp.QRCodeURL, "https%3A%2F%2Faudioform.test%2Fevents%2Fsummer-fest-2026")

			collection, err := flow.GetBySlug(ctx, "summer-fest-2026")
			require.NoError(t, err)
			assert.Equal(t, "Summer Fest 2026", collection.Name)
			require.Len(t, collection.SurveyUUIDs, 1)
			assert.Equal(t, survey.UUID.String(), collection.SurveyUUIDs[0])
		})

		t.Run("SlugNormalized", func(t *testing.T) {
			_, err := flow.CreateCollection(ctx, creator.ID, &dto.CreateEventCollectionRequest{
				Slug:        "  MiXeD-Case  ",
				Name:        "Mixed",
				SurveyUUIDs: []string{survey.UUID.String()},
			}, testMetadata())
			require.NoError(t, err)

			collection, err := flow.GetBySlug(ctx, "mixed-case")
			require.NoError(t, err)
			assert.Equal(t, "mixed-case", collection.Slug)
		})

		t.Run("DuplicateSlug", func(t *testing.T) {
			req := &dto.CreateEventCollectionRequest{
				Slug:        "taken",
				Name:        "First",
				SurveyUUIDs: []string{survey.UUID.String()},
			}
			_, err := flow.CreateCollection(ctx, creator.ID, req, testMetadata())
			require.NoError(t, err)

			_, err = flow.CreateCollection(ctx, creator.ID, req, testMetadata())
			assertBusinessCode(t, err, "DUPLICATE_SLUG")
		})

		t.Run("UnknownSurveyRejected", func(t *testing.T) {
			_, err := flow.CreateCollection(ctx, creator.ID, &dto.CreateEventCollectionRequest{
				Slug:        "ghost-surveys",
				Name:        "Ghost",
				SurveyUUIDs: []string{"7b0f6f2e-9f3a-4b44-9c0c-000000000000"},
			}, testMetadata())
			assertBusinessCode(t, err, "NOT_FOUND")
		})

		t.Run("UnknownSlug", func(t *testing.T) {
			_, err := flow.GetBySlug(ctx, "nope")
			assertBusinessCode(t, err, "NOT_FOUND")
		})

		return nil
	})
	require.NoError(t, err)
}
