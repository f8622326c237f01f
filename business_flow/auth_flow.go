package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/audioform/audioform/app/dto"
	"github.com/audioform/audioform/app/services"
	"github.com/audioform/audioform/models"
	"github.com/audioform/audioform/repository"
	"github.com/audioform/audioform/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthFlow handles creator signup, login, and token refresh.
type AuthFlow interface {
	Signup(ctx context.Context, req *dto.SignupRequest, metadata *ClientMetadata) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.AuthResponse, error)
	Refresh(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.AuthResponse, error)
}

// AuthFlowImpl implements the auth business flow
type AuthFlowImpl struct {
	creatorRepo  repository.CreatorRepository
	sessionRepo  repository.CreatorSessionRepository
	auditRepo    repository.AuditLogRepository
	tokenService services.TokenService
	db           *gorm.DB
}

// NewAuthFlow creates a new auth flow instance
func NewAuthFlow(
	creatorRepo repository.CreatorRepository,
	sessionRepo repository.CreatorSessionRepository,
	auditRepo repository.AuditLogRepository,
	tokenService services.TokenService,
	db *gorm.DB,
) AuthFlow {
	return &AuthFlowImpl{
		creatorRepo:  creatorRepo,
		sessionRepo:  sessionRepo,
		auditRepo:    auditRepo,
		tokenService: tokenService,
		db:           db,
	}
}

// Signup registers a new creator and issues a token pair.
func (f *AuthFlowImpl) Signup(ctx context.Context, req *dto.SignupRequest, metadata *ClientMetadata) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	existing, err := f.creatorRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("SIGNUP_FAILED", "Failed to check email", err)
	}
	if existing != nil {
		return nil, NewBusinessError("EMAIL_ALREADY_EXISTS", "Email already exists", ErrEmailAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, NewBusinessError("SIGNUP_FAILED", "Failed to hash password", err)
	}

	var creator *models.Creator
	var session *models.CreatorSession

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		creator = &models.Creator{
			Email:        email,
			PasswordHash: string(hash),
			DisplayName:  strings.TrimSpace(req.DisplayName),
			IsActive:     utils.ToPtr(true),
		}
		if err := f.creatorRepo.Save(txCtx, creator); err != nil {
			return err
		}

		session, err = f.createSession(txCtx, creator.ID, metadata)
		return err
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, NewBusinessError("EMAIL_ALREADY_EXISTS", "Email already exists", ErrEmailAlreadyExists)
		}
		return nil, NewBusinessError("SIGNUP_FAILED", "Signup failed", err)
	}

	f.audit(ctx, &creator.ID, models.AuditActionCreatorSignup, fmt.Sprintf("Creator signed up: %s", creator.UUID), true, nil, metadata)

	return &dto.AuthResponse{
		Message: "Signup successful",
		Creator: ToCreatorDTO(*creator),
		Session: ToSessionDTO(*session),
	}, nil
}

// Login authenticates a creator and rotates their sessions.
func (f *AuthFlowImpl) Login(ctx context.Context, req *dto.LoginRequest, metadata *ClientMetadata) (*dto.AuthResponse, error) {
	email := normalizeEmail(req.Email)

	creator, err := f.creatorRepo.ByEmail(ctx, email)
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Failed to fetch creator", err)
	}
	if creator == nil {
		f.audit(ctx, nil, models.AuditActionCreatorLoginFailed, fmt.Sprintf("Login failed, unknown email: %s", email), false, nil, metadata)
		return nil, NewBusinessError("NOT_FOUND", "Creator not found", ErrCreatorNotFound)
	}
	if !utils.IsTrue(creator.IsActive) {
		return nil, NewBusinessError("FORBIDDEN", "Account is inactive", ErrAccountInactive)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creator.PasswordHash), []byte(req.Password)); err != nil {
		f.audit(ctx, &creator.ID, models.AuditActionCreatorLoginFailed, "Login failed, incorrect password", false, nil, metadata)
		return nil, NewBusinessError("FORBIDDEN", "Incorrect password", ErrIncorrectPassword)
	}

	var session *models.CreatorSession
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.sessionRepo.ExpireAllForCreator(txCtx, creator.ID); err != nil {
			return err
		}
		session, err = f.createSession(txCtx, creator.ID, metadata)
		return err
	})
	if err != nil {
		return nil, NewBusinessError("LOGIN_FAILED", "Login failed", err)
	}

	f.audit(ctx, &creator.ID, models.AuditActionCreatorLogin, fmt.Sprintf("Creator logged in: %s", creator.UUID), true, nil, metadata)

	return &dto.AuthResponse{
		Message: "Login successful",
		Creator: ToCreatorDTO(*creator),
		Session: ToSessionDTO(*session),
	}, nil
}

// Refresh exchanges a valid refresh token for a new session.
func (f *AuthFlowImpl) Refresh(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.AuthResponse, error) {
	stored, err := f.sessionRepo.ByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("REFRESH_FAILED", "Failed to fetch session", err)
	}
	if stored == nil {
		return nil, NewBusinessError("FORBIDDEN", "Invalid refresh token", services.ErrTokenInvalid)
	}

	claims, err := f.tokenService.ValidateToken(req.RefreshToken)
	if err != nil || claims.TokenType != "refresh" || claims.CreatorID != stored.CreatorID {
		return nil, NewBusinessError("FORBIDDEN", "Invalid refresh token", services.ErrTokenInvalid)
	}

	creator, err := f.creatorRepo.ByID(ctx, stored.CreatorID)
	if err != nil {
		return nil, NewBusinessError("REFRESH_FAILED", "Failed to fetch creator", err)
	}
	if creator == nil || !utils.IsTrue(creator.IsActive) {
		return nil, NewBusinessError("FORBIDDEN", "Account is inactive", ErrAccountInactive)
	}

	var session *models.CreatorSession
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.sessionRepo.ExpireAllForCreator(txCtx, creator.ID); err != nil {
			return err
		}
		session, err = f.createSession(txCtx, creator.ID, metadata)
		return err
	})
	if err != nil {
		return nil, NewBusinessError("REFRESH_FAILED", "Refresh failed", err)
	}

	return &dto.AuthResponse{
		Message: "Token refreshed",
		Creator: ToCreatorDTO(*creator),
		Session: ToSessionDTO(*session),
	}, nil
}

// Private helper methods

func (f *AuthFlowImpl) createSession(ctx context.Context, creatorID uint, metadata *ClientMetadata) (*models.CreatorSession, error) {
	accessToken, refreshToken, err := f.tokenService.GenerateTokens(creatorID)
	if err != nil {
		return nil, err
	}

	session := &models.CreatorSession{
		CreatorID:    creatorID,
		SessionToken: accessToken,
		RefreshToken: refreshToken,
		IsActive:     utils.ToPtr(true),
		ExpiresAt:    utils.UTCNow().Add(f.tokenService.AccessTokenTTL()),
	}
	if metadata != nil {
		if metadata.IPAddress != "" {
			session.IPAddress = &metadata.IPAddress
		}
		if metadata.UserAgent != "" {
			session.UserAgent = &metadata.UserAgent
		}
	}

	if err := f.sessionRepo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (f *AuthFlowImpl) audit(ctx context.Context, creatorID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) {
	ipAddress := "127.0.0.1"
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		CreatorID:    creatorID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}
	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok {
		audit.RequestID = &requestID
	}

	if err := f.auditRepo.Save(ctx, audit); err != nil {
		log.Printf("failed to save audit log: %v", err)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
