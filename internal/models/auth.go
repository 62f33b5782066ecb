package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         UserInfo  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID         string      `json:"id"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name"`
	Role       UserRole    `json:"role"`
	Identifier string      `json:"identifier,omitempty"`
	Department *Department `json:"department,omitempty"`
}

// JWTClaims represents the JWT payload for access tokens. The clearance core
// trusts these claims as the verified (actorId, role) pair and performs no
// credential validation of its own.
type JWTClaims struct {
	UserID     string      `json:"user_id"`
	Role       UserRole    `json:"role"`
	Email      string      `json:"email"`
	FullName   string      `json:"full_name"`
	Identifier string      `json:"identifier,omitempty"`
	Department *Department `json:"department,omitempty"`
	jwt.RegisteredClaims
}
