package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

// MockAuthService is a mock implementation of the API's auth service
type MockAuthService struct {
	mock.Mock
}

func NewMockAuthService(t *testing.T) *MockAuthService {
	m := &MockAuthService{}
	m.Test(t)
	return m
}

func (m *MockAuthService) Login(ctx context.Context, username, password string, meta auth.RequestMeta) (*auth.Session, error) {
	args := m.Called(ctx, username, password, meta)
	sess, _ := args.Get(0).(*auth.Session)
	return sess, args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *auth.TokenClaims, meta auth.RequestMeta) error {
	args := m.Called(ctx, claims, meta)
	return args.Error(0)
}

func (m *MockAuthService) Refresh(ctx context.Context, claims *auth.TokenClaims, meta auth.RequestMeta) (*auth.Session, error) {
	args := m.Called(ctx, claims, meta)
	sess, _ := args.Get(0).(*auth.Session)
	return sess, args.Error(1)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, userID int64, current, next string, meta auth.RequestMeta) error {
	args := m.Called(ctx, userID, current, next, meta)
	return args.Error(0)
}

func (m *MockAuthService) RequestPasswordReset(ctx context.Context, email string, meta auth.RequestMeta) error {
	args := m.Called(ctx, email, meta)
	return args.Error(0)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, token, next string, meta auth.RequestMeta) error {
	args := m.Called(ctx, token, next, meta)
	return args.Error(0)
}

func (m *MockAuthService) AdminResetPassword(ctx context.Context, actorID, targetID int64, meta auth.RequestMeta) (string, error) {
	args := m.Called(ctx, actorID, targetID, meta)
	return args.String(0), args.Error(1)
}

// Audit is recorded but never required; most tests do not care.
func (m *MockAuthService) Audit(ctx context.Context, userID int64, action string, details map[string]any, meta auth.RequestMeta) {
	for _, c := range m.ExpectedCalls {
		if c.Method == "Audit" {
			m.Called(ctx, userID, action, details, meta)
			return
		}
	}
}

func (m *MockAuthService) WelcomeUser(ctx context.Context, user store.User) {
	m.Called(ctx, user)
}

func (m *MockAuthService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Helper methods for setting up common mock expectations

func (m *MockAuthService) ExpectLogin(username, password string, sess *auth.Session, err error) *mock.Call {
	return m.On("Login", mock.Anything, username, password, mock.Anything).Return(sess, err)
}

func (m *MockAuthService) ExpectAudit(userID int64, action string) *mock.Call {
	return m.On("Audit", mock.Anything, userID, action, mock.Anything, mock.Anything).Return()
}

func (m *MockAuthService) ExpectPing(err error) *mock.Call {
	return m.On("Ping", mock.Anything).Return(err)
}
