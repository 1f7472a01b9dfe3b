package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

type JWTService struct {
	signingKey jwk.Key
	issuer     string
	expiry     time.Duration
}

// TokenClaims are the claims an access token carries. TokenID (jti) is
// what logout revokes.
type TokenClaims struct {
	UserID    int64
	Username  string
	Role      rbac.Role
	TokenID   string
	ExpiresAt time.Time
}

func NewJWTService(signingKey []byte, issuer string, expiry time.Duration) (*JWTService, error) {
	key, err := jwk.FromRaw(signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK: %w", err)
	}

	if err := key.Set(jwk.AlgorithmKey, jwa.HS256); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	return &JWTService{
		signingKey: key,
		issuer:     issuer,
		expiry:     expiry,
	}, nil
}

func (s *JWTService) Expiry() time.Duration {
	return s.expiry
}

func (s *JWTService) GenerateToken(ctx context.Context, userID int64, username string, role rbac.Role) (string, *TokenClaims, error) {
	now := time.Now()
	claims := &TokenClaims{
		UserID:    userID,
		Username:  username,
		Role:      role,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(s.expiry),
	}

	token, err := jwt.NewBuilder().
		Issuer(s.issuer).
		Subject(username).
		JwtID(claims.TokenID).
		IssuedAt(now).
		Expiration(claims.ExpiresAt).
		Claim("user_id", strconv.FormatInt(userID, 10)).
		Claim("role", string(role)).
		Build()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.signingKey))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), claims, nil
}

func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	parsedToken, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.HS256, s.signingKey), jwt.WithIssuer(s.issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if err := jwt.Validate(parsedToken); err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	raw, ok := parsedToken.Get("user_id")
	if !ok {
		return nil, fmt.Errorf("user_id claim not found")
	}
	userIDStr, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("user_id claim has type %T", raw)
	}

	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid user_id format: %w", err)
	}

	if parsedToken.JwtID() == "" {
		return nil, fmt.Errorf("jti claim not found")
	}

	var role rbac.Role
	if v, ok := parsedToken.Get("role"); ok {
		if r, ok := v.(string); ok {
			role = rbac.Role(r)
		}
	}

	return &TokenClaims{
		UserID:    userID,
		Username:  parsedToken.Subject(),
		Role:      role,
		TokenID:   parsedToken.JwtID(),
		ExpiresAt: parsedToken.Expiration(),
	}, nil
}
