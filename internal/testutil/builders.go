package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

// DefaultPassword satisfies the default password policy.
const DefaultPassword = "Str0ng!Pass"

var userSeq atomic.Int64

// TestUser represents a test user
type TestUser struct {
	ID       int64
	Username string
	Email    string
	Password string
	Role     rbac.Role
	Row      store.User
}

// UserBuilder provides a fluent interface for creating test users
type UserBuilder struct {
	username     string
	email        string
	password     string
	firstName    string
	lastName     string
	role         rbac.Role
	status       models.Status
	organization string
	facilities   []string
	testDB       *TestDatabase
	t            *testing.T
}

// NewUser creates a new user builder with a unique username and email
func (tdb *TestDatabase) NewUser(t *testing.T) *UserBuilder {
	n := userSeq.Add(1)
	return &UserBuilder{
		username:  fmt.Sprintf("user%d", n),
		email:     fmt.Sprintf("user%d@example.com", n),
		password:  DefaultPassword,
		firstName: "Test",
		lastName:  "User",
		role:      rbac.RoleViewer,
		status:    models.StatusActive,
		testDB:    tdb,
		t:         t,
	}
}

func (ub *UserBuilder) WithUsername(username string) *UserBuilder {
	ub.username = username
	return ub
}

func (ub *UserBuilder) WithEmail(email string) *UserBuilder {
	ub.email = email
	return ub
}

func (ub *UserBuilder) WithPassword(password string) *UserBuilder {
	ub.password = password
	return ub
}

func (ub *UserBuilder) WithRole(role rbac.Role) *UserBuilder {
	ub.role = role
	return ub
}

func (ub *UserBuilder) WithStatus(status models.Status) *UserBuilder {
	ub.status = status
	return ub
}

func (ub *UserBuilder) WithOrganization(org string) *UserBuilder {
	ub.organization = org
	return ub
}

func (ub *UserBuilder) WithFacilities(ids ...string) *UserBuilder {
	ub.facilities = ids
	return ub
}

func (ub *UserBuilder) AsSuperAdmin() *UserBuilder {
	return ub.WithRole(rbac.RoleSuperAdmin)
}

func (ub *UserBuilder) AsAdmin() *UserBuilder {
	return ub.WithRole(rbac.RoleAdmin)
}

func (ub *UserBuilder) AsViewer() *UserBuilder {
	return ub.WithRole(rbac.RoleViewer)
}

// Create creates the user in the database and returns the TestUser
func (ub *UserBuilder) Create() *TestUser {
	ub.t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword(ub.password)
	require.NoError(ub.t, err, "Failed to hash password")

	row, err := ub.testDB.Queries().CreateUser(ctx, store.CreateUserParams{
		Username:         ub.username,
		Email:            ub.email,
		PasswordHash:     hash,
		FirstName:        ub.firstName,
		LastName:         ub.lastName,
		Role:             string(ub.role),
		Status:           string(ub.status),
		Organization:     pgtype.Text{String: ub.organization, Valid: ub.organization != ""},
		FacilitiesAccess: ub.facilities,
	})
	require.NoError(ub.t, err, "Failed to create user")

	return &TestUser{
		ID:       row.ID,
		Username: row.Username,
		Email:    row.Email,
		Password: ub.password,
		Role:     ub.role,
		Row:      row,
	}
}

// Reload fetches the current row for the user.
func (u *TestUser) Reload(t *testing.T, tdb *TestDatabase) store.User {
	t.Helper()
	row, err := tdb.Queries().GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	return row
}

// ToAuthenticatedUser converts TestUser to auth.AuthenticatedUser
func (u *TestUser) ToAuthenticatedUser() *auth.AuthenticatedUser {
	return &auth.AuthenticatedUser{
		User: u.Row.ToModel(),
		Claims: &auth.TokenClaims{
			UserID:   u.ID,
			Username: u.Username,
			Role:     u.Role,
			TokenID:  fmt.Sprintf("test-%d", u.ID),
		},
	}
}
