package api

import (
	"context"

	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

// DatabaseService defines the interface for database operations
type DatabaseService interface {
	Queries() *store.Queries
	Ping(ctx context.Context) error
}

// UserRepository is the user and audit storage the handlers use.
// *store.Queries implements it.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error)
	ListUsers(ctx context.Context, arg store.ListUsersParams) ([]store.User, error)
	UpdateUser(ctx context.Context, arg store.UpdateUserParams) (store.User, error)
	UpdateUserStatus(ctx context.Context, id int64, status string) error
	ListAuditLogs(ctx context.Context, arg store.ListAuditLogsParams) ([]store.AuditLog, error)
}

// AuthService defines the interface for credential and token operations
type AuthService interface {
	Login(ctx context.Context, username, password string, meta auth.RequestMeta) (*auth.Session, error)
	Logout(ctx context.Context, claims *auth.TokenClaims, meta auth.RequestMeta) error
	Refresh(ctx context.Context, claims *auth.TokenClaims, meta auth.RequestMeta) (*auth.Session, error)
	ChangePassword(ctx context.Context, userID int64, current, next string, meta auth.RequestMeta) error
	RequestPasswordReset(ctx context.Context, email string, meta auth.RequestMeta) error
	ResetPassword(ctx context.Context, token, next string, meta auth.RequestMeta) error
	AdminResetPassword(ctx context.Context, actorID, targetID int64, meta auth.RequestMeta) (string, error)
	Audit(ctx context.Context, userID int64, action string, details map[string]any, meta auth.RequestMeta)
	WelcomeUser(ctx context.Context, user store.User)
	Ping(ctx context.Context) error
}
