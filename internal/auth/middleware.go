package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

type contextKey string

const (
	UserIDKey     contextKey = "user_id"
	UserClaimsKey contextKey = "user_claims"
)

// AuthenticatedUser is the caller resolved from a bearer token.
type AuthenticatedUser struct {
	User   *models.User
	Claims *TokenClaims
	Token  string
}

// Evaluator returns the permission evaluator for the caller.
func (u *AuthenticatedUser) Evaluator() *rbac.Evaluator {
	if u == nil || u.User == nil {
		return rbac.Anonymous()
	}
	return rbac.NewEvaluator(u.User.Principal())
}

type Authenticator struct {
	service *AuthService
}

func NewAuthenticator(service *AuthService) *Authenticator {
	return &Authenticator{service: service}
}

// Authenticate is the openapi3filter.AuthenticationFunc for the BearerAuth
// scheme. On success the request context carries the AuthenticatedUser.
func (a *Authenticator) Authenticate(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input.SecuritySchemeName != "BearerAuth" {
		return fmt.Errorf("authentication service missing")
	}

	authHeader := input.RequestValidationInput.Request.Header.Get("Authorization")
	if authHeader == "" {
		return fmt.Errorf("authorization header missing")
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return fmt.Errorf("invalid authorization header format")
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	claims, user, err := a.service.VerifyToken(ctx, token)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	authenticatedUser := &AuthenticatedUser{
		User:   user.ToModel(),
		Claims: claims,
		Token:  token,
	}

	req := input.RequestValidationInput.Request
	*req = *req.WithContext(WithAuthenticatedUser(req.Context(), authenticatedUser))

	return nil
}

// WithAuthenticatedUser stores u on ctx.
func WithAuthenticatedUser(ctx context.Context, u *AuthenticatedUser) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, u.User.ID)
	return context.WithValue(ctx, UserClaimsKey, u)
}

func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(UserIDKey).(int64)
	return userID, ok
}

func GetAuthenticatedUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(UserClaimsKey).(*AuthenticatedUser)
	return user, ok
}
