// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
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

func newAuthFlow(t *testing.T, testDB *testingutil.TestDB) businessflow.AuthFlow {
	tokenService, err := services.NewTokenService(
		15*time.Minute, 7*24*time.Hour,
		"audioform-test", "audioform-test-clients",
		false, "", "", "test-secret-key-for-auth-flow-tests",
	)
	require.NoError(t, err)

	return businessflow.NewAuthFlow(
		repository.NewCreatorRepository(testDB.DB),
		repository.NewCreatorSessionRepository(testDB.DB),
		repository.NewAuditLogRepository(testDB.DB),
		tokenService,
		testDB.DB,
	)
}

func signupRequest(email string) *dto.SignupRequest {
	return &dto.SignupRequest{
		Email:           email,
		Password:        "StrongPass123!",
		ConfirmPassword: "StrongPass123!",
		DisplayName:     "Test Creator",
	}
}

func TestSignup(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newAuthFlow(t, testDB)
		creatorRepo := repository.NewCreatorRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		t.Run("Success", func(t *testing.T) {
			resp, err := flow.Signup(ctx, signupRequest("new.creator@example.com"), testMetadata())
			require.NoError(t, err)
			assert.Equal(t, "Signup successful", resp.Message)
			assert.Equal(t, "new.creator@example.com", resp.Creator.Email)
			assert.NotEmpty(t, resp.Session.AccessToken)
			assert.NotEmpty(t, resp.Session.RefreshToken)

			creator, err := creatorRepo.ByEmail(ctx, "new.creator@example.com")
			require.NoError(t, err)
			require.NotNil(t, creator)
			assert.True(t, utils.IsTrue(creator.IsActive))
			// The stored hash must never equal the raw password
			assert.NotEqual(t, "StrongPass123!", creator.PasswordHash)
		})

		t.Run("SessionExpiryTracksTokenTTL", func(t *testing.T) {
			tokenService, err := services.NewTokenService(
				45*time.Minute, 7*24*time.Hour,
				"audioform-test", "audioform-test-clients",
				false, "", "", "test-secret-key-for-auth-flow-tests",
			)
			require.NoError(t, err)
			shortFlow := businessflow.NewAuthFlow(
				creatorRepo,
				repository.NewCreatorSessionRepository(testDB.DB),
				repository.NewAuditLogRepository(testDB.DB),
				tokenService,
				testDB.DB,
			)

			before := utils.UTCNow()
			resp, err := shortFlow.Signup(ctx, signupRequest("short.ttl@example.com"), testMetadata())
			require.NoError(t, err)

			sessionRepo := repository.NewCreatorSessionRepository(testDB.DB)
			session, err := sessionRepo.BySessionToken(ctx, resp.Session.AccessToken)
			require.NoError(t, err)
			require.NotNil(t, session)
			assert.WithinDuration(t, before.Add(45*time.Minute), session.ExpiresAt, 5*time.Second)
		})

		t.Run("EmailNormalized", func(t *testing.T) {
			resp, err := flow.Signup(ctx, signupRequest("  Mixed.Case@Example.COM "), testMetadata())
			require.NoError(t, err)
			assert.Equal(t, "mixed.case@example.com", resp.Creator.Email)
		})

		t.Run("DuplicateEmail", func(t *testing.T) {
			_, err := flow.Signup(ctx, signupRequest("dup@example.com"), testMetadata())
			require.NoError(t, err)

			_, err = flow.Signup(ctx, signupRequest("dup@example.com"), testMetadata())
			assertBusinessCode(t, err, "EMAIL_ALREADY_EXISTS")
		})

		return nil
	})
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newAuthFlow(t, testDB)
		sessionRepo := repository.NewCreatorSessionRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		signup, err := flow.Signup(ctx, signupRequest("login.test@example.com"), testMetadata())
		require.NoError(t, err)

		t.Run("Success", func(t *testing.T) {
			resp, err := flow.Login(ctx, &dto.LoginRequest{
				Email:    "login.test@example.com",
				Password: "StrongPass123!",
			}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, "Login successful", resp.Message)
			assert.NotEmpty(t, resp.Session.AccessToken)
		})

		t.Run("RotatesSessions", func(t *testing.T) {
			resp, err := flow.Login(ctx, &dto.LoginRequest{
				Email:    "login.test@example.com",
				Password: "StrongPass123!",
			}, testMetadata())
			require.NoError(t, err)

			// Tokens from the signup session no longer resolve
			stale, err := sessionRepo.BySessionToken(ctx, signup.Session.AccessToken)
			require.NoError(t, err)
			assert.Nil(t, stale)

			current, err := sessionRepo.BySessionToken(ctx, resp.Session.AccessToken)
			require.NoError(t, err)
			assert.NotNil(t, current)
		})

		t.Run("WrongPassword", func(t *testing.T) {
			_, err := flow.Login(ctx, &dto.LoginRequest{
				Email:    "login.test@example.com",
				Password: "WrongPass123!",
			}, testMetadata())
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		t.Run("UnknownEmail", func(t *testing.T) {
			_, err := flow.Login(ctx, &dto.LoginRequest{
				Email:    "nobody@example.com",
				Password: "StrongPass123!",
			}, testMetadata())
			assertBusinessCode(t, err, "NOT_FOUND")
		})

		t.Run("InactiveAccount", func(t *testing.T) {
			_, err := flow.Signup(ctx, signupRequest("inactive@example.com"), testMetadata())
			require.NoError(t, err)

			err = testDB.DB.Exec("UPDATE creators SET is_active = false WHERE email = ?", "inactive@example.com").Error
			require.NoError(t, err)

			_, err = flow.Login(ctx, &dto.LoginRequest{
				Email:    "inactive@example.com",
				Password: "StrongPass123!",
			}, testMetadata())
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		return nil
	})
	require.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newAuthFlow(t, testDB)
		ctx := testingutil.CreateTestContext()

		t.Run("RotatesTokenPair", func(t *testing.T) {
			signup, err := flow.Signup(ctx, signupRequest("refresh.test@example.com"), testMetadata())
			require.NoError(t, err)

			resp, err := flow.Refresh(ctx, &dto.RefreshTokenRequest{
				RefreshToken: signup.Session.RefreshToken,
			}, testMetadata())
			require.NoError(t, err)
			assert.NotEqual(t, signup.Session.AccessToken, resp.Session.AccessToken)
			assert.NotEqual(t, signup.Session.RefreshToken, resp.Session.RefreshToken)

			// The old refresh token is dead after rotation
			_, err = flow.Refresh(ctx, &dto.RefreshTokenRequest{
				RefreshToken: signup.Session.RefreshToken,
			}, testMetadata())
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		t.Run("AccessTokenRejected", func(t *testing.T) {
			signup, err := flow.Signup(ctx, signupRequest("refresh.access@example.com"), testMetadata())
			require.NoError(t, err)

			// An access token never matches a stored refresh token
			_, err = flow.Refresh(ctx, &dto.RefreshTokenRequest{
				RefreshToken: signup.Session.AccessToken,
			}, testMetadata())
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		t.Run("GarbageToken", func(t *testing.T) {
			_, err := flow.Refresh(ctx, &dto.RefreshTokenRequest{
				RefreshToken: "not-a-jwt",
			}, testMetadata())
			assertBusinessCode(t, err, "FORBIDDEN")
		})

		return nil
	})
	require.NoError(t, err)
}
