package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniops/clearance-api/internal/models"
	"github.com/uniops/clearance-api/pkg/config"
	appErrors "github.com/uniops/clearance-api/pkg/errors"
)

type mockAuthStore struct {
	users    map[string]*models.User
	sessions map[string]*models.RefreshToken
	revoked  []string
	logs     []*models.AuditLog
}

func newMockAuthStore() *mockAuthStore {
	return &mockAuthStore{
		users:    map[string]*models.User{},
		sessions: map[string]*models.RefreshToken{},
	}
}

func (m *mockAuthStore) addUser(user *models.User, password string) {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	user.PasswordHash = string(hash)
	m.users[user.Email] = user
}

func (m *mockAuthStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	user, ok := m.users[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (m *mockAuthStore) FindByID(_ context.Context, id string) (*models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthStore) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error { return nil }

func (m *mockAuthStore) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	m.sessions[token.Token] = token
	return nil
}

func (m *mockAuthStore) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	session, ok := m.sessions[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return session, nil
}

func (m *mockAuthStore) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	m.revoked = append(m.revoked, id)
	return nil
}

func (m *mockAuthStore) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *mockAuthStore) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Expiration:        time.Hour,
		RefreshExpiration: 24 * time.Hour,
	}
}

func TestLoginIssuesTokensWithRoleClaims(t *testing.T) {
	store := newMockAuthStore()
	department := models.DepartmentLibrary
	store.addUser(&models.User{
		ID:         "staff-1",
		Email:      "librarian@example.edu",
		FullName:   "Casey Lane",
		Role:       models.RoleDepartmentStaff,
		Department: &department,
		Active:     true,
	}, "s3cret")

	svc := NewAuthService(store, testJWTConfig(), nil, nil)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "librarian@example.edu", Password: "s3cret"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, models.RoleDepartmentStaff, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.UserID)
	assert.Equal(t, models.RoleDepartmentStaff, claims.Role)
	require.NotNil(t, claims.Department)
	assert.Equal(t, models.DepartmentLibrary, *claims.Department)

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.AuditActionLogin, store.logs[0].Action)
}

func TestLoginWrongPassword(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(&models.User{ID: "user-1", Email: "student@example.edu", Role: models.RoleStudent, Active: true}, "right")

	svc := NewAuthService(store, testJWTConfig(), nil, nil)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.edu", Password: "wrong"})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(&models.User{ID: "user-1", Email: "student@example.edu", Role: models.RoleStudent, Active: false}, "s3cret")

	svc := NewAuthService(store, testJWTConfig(), nil, nil)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.edu", Password: "s3cret"})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestRefreshRotatesSession(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(&models.User{ID: "user-1", Email: "student@example.edu", Role: models.RoleStudent, Active: true}, "s3cret")

	svc := NewAuthService(store, testJWTConfig(), nil, nil)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.edu", Password: "s3cret"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)

	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, store.revoked, "the old session must be revoked")
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	store := newMockAuthStore()
	store.addUser(&models.User{ID: "user-1", Email: "student@example.edu", Role: models.RoleStudent, Active: true}, "s3cret")

	svc := NewAuthService(store, testJWTConfig(), nil, nil)
	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "student@example.edu", Password: "s3cret"})
	require.NoError(t, err)

	other := NewAuthService(store, config.JWTConfig{Secret: "different", Expiration: time.Hour}, nil, nil)
	_, err = other.ValidateToken(login.AccessToken)

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
