package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

type authStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthService authenticates users and issues access/refresh token pairs. The
// access token carries the verified role and affiliation claims the workflow
// services authorize against.
type AuthService struct {
	store    authStore
	cfg      config.JWTConfig
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAuthService constructs the auth service.
func NewAuthService(store authStore, cfg config.JWTConfig, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{store: store, cfg: cfg, validate: validate, logger: logger}
}

// Login verifies credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "email and password are required")
	}

	user, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	now := time.Now().UTC()
	accessToken, err := s.generateAccessToken(user, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	refreshToken, err := s.issueRefreshToken(ctx, user.ID, req.IP, req.UserAgent, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.auditAuth(ctx, user.ID, models.AuditActionLogin, req.IP, req.UserAgent)
	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.Expiration.Seconds()),
		IssuedAt:     now,
		User: models.UserInfo{
			ID:         user.ID,
			Email:      user.Email,
			FullName:   user.FullName,
			Role:       user.Role,
			Identifier: user.Identifier,
			Department: user.Department,
		},
	}, nil
}

// Refresh rotates a refresh token and issues a new access token.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.RefreshTokenResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "refresh token is required")
	}

	session, err := s.store.FindRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	now := time.Now().UTC()
	if session.Revoked || session.ExpiresAt.Before(now) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
	}

	user, err := s.store.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrUnauthorized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
	}
	if !user.Active {
		return nil, appErrors.ErrInactiveAccount
	}

	if err := s.store.RevokeRefreshToken(ctx, session.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate session")
	}

	accessToken, err := s.generateAccessToken(user, now)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}
	refreshToken, err := s.issueRefreshToken(ctx, user.ID, req.IP, req.UserAgent, now)
	if err != nil {
		return nil, err
	}

	return &models.RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.Expiration.Seconds()),
		IssuedAt:     now,
	}, nil
}

// Logout revokes every active session for the user.
func (s *AuthService) Logout(ctx context.Context, actor Actor) error {
	if actor.Claims == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.store.RevokeUserRefreshTokens(ctx, actor.Claims.UserID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke sessions")
	}
	s.auditAuth(ctx, actor.Claims.UserID, models.AuditActionLogout, actor.IP, actor.UserAgent)
	return nil
}

// ValidateToken parses and verifies an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

func (s *AuthService) generateAccessToken(user *models.User, now time.Time) (string, error) {
	claims := models.JWTClaims{
		UserID:     user.ID,
		Role:       user.Role,
		Email:      user.Email,
		FullName:   user.FullName,
		Identifier: user.Identifier,
		Department: user.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

func (s *AuthService) issueRefreshToken(ctx context.Context, userID, ip, userAgent string, now time.Time) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate refresh token")
	}
	value := hex.EncodeToString(raw)

	session := &models.RefreshToken{
		UserID:    userID,
		Token:     value,
		ExpiresAt: now.Add(s.cfg.RefreshExpiration),
		CreatedAt: now,
		IPAddress: ip,
		UserAgent: userAgent,
	}
	if err := s.store.CreateRefreshToken(ctx, session); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist session")
	}
	return value, nil
}

func (s *AuthService) auditAuth(ctx context.Context, userID, action, ip, userAgent string) {
	log := &models.AuditLog{
		UserID:    &userID,
		Action:    action,
		Resource:  "auth",
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}
