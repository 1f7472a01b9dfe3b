package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/logging"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/notifications"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
)

var (
	ErrInvalidCredentials       = errors.New("incorrect username or password")
	ErrAccountLocked            = errors.New("account temporarily locked")
	ErrAccountInactive          = errors.New("account is not active")
	ErrTokenRevoked             = errors.New("token has been revoked")
	ErrUserNotFound             = errors.New("user not found")
	ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")
	ErrResetTokenInvalid        = errors.New("invalid or expired reset token")
)

// Audit actions
const (
	ActionLoginSuccess         = "successful_login"
	ActionLoginFailure         = "failed_login"
	ActionLogout               = "logout"
	ActionTokenRefresh         = "token_refresh"
	ActionPasswordChange       = "password_change"
	ActionPasswordResetRequest = "password_reset_requested"
	ActionPasswordReset        = "password_reset"
	ActionAdminPasswordReset   = "admin_password_reset"
)

const temporaryPasswordLength = 12

// UserStore is the subset of store.Queries the auth flows need.
type UserStore interface {
	GetUserByID(ctx context.Context, id int64) (store.User, error)
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	RecordLoginSuccess(ctx context.Context, id int64) error
	RecordLoginFailure(ctx context.Context, arg store.RecordLoginFailureParams) (store.RecordLoginFailureRow, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	CreateAuditLog(ctx context.Context, arg store.CreateAuditLogParams) error
}

// Mailer renders and queues account emails. *notifications.Mailer implements it.
type Mailer interface {
	Send(ctx context.Context, to, name string, data map[string]any) error
	Notify(ctx context.Context, to, name string, data map[string]any)
}

// RequestMeta identifies where a request came from, for the audit trail.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Session is an issued access token and the user it was issued to.
type Session struct {
	Token  string
	Claims *TokenClaims
	User   store.User
}

// AuthService handles password login, token revocation and password resets.
type AuthService struct {
	store            *redisStore
	jwt              *JWTService
	db               UserStore
	mail             Mailer
	maxAttempts      int
	lockout          time.Duration
	resetTokenExpiry time.Duration
	publicURL        string
	policy           models.PasswordPolicy
}

func NewAuthService(redisClient *redis.Client, jwtSvc *JWTService, users UserStore, mail Mailer, cfg config.AuthConfig, publicURL string) *AuthService {
	return &AuthService{
		store:            newRedisStore(redisClient),
		jwt:              jwtSvc,
		db:               users,
		mail:             mail,
		maxAttempts:      cfg.MaxLoginAttempts,
		lockout:          cfg.LockoutDuration,
		resetTokenExpiry: cfg.ResetTokenExpiry,
		publicURL:        publicURL,
		policy:           models.DefaultPasswordPolicy,
	}
}

// Login checks credentials and issues an access token. Every failure is
// reported as ErrInvalidCredentials or one of its lockout/inactive
// siblings; callers must not reveal which one to the client.
func (s *AuthService) Login(ctx context.Context, username, password string, meta RequestMeta) (*Session, error) {
	user, err := s.db.GetUserByUsername(ctx, username)
	if err != nil {
		if store.IsNotFound(err) {
			logging.Warn("Login attempt with unknown username", "username", username)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if user.LockedUntil.Valid && user.LockedUntil.Time.After(time.Now()) {
		logging.Warn("Login attempt on locked account", "username", username, "locked_until", user.LockedUntil.Time)
		return nil, ErrAccountLocked
	}

	if user.Status != string(models.StatusActive) {
		logging.Warn("Login attempt for inactive user", "username", username, "status", user.Status)
		return nil, ErrAccountInactive
	}

	if !CheckPassword(user.PasswordHash, password) {
		row, err := s.db.RecordLoginFailure(ctx, store.RecordLoginFailureParams{
			ID:          user.ID,
			MaxAttempts: int32(s.maxAttempts),
			Lockout:     s.lockout,
		})
		if err != nil {
			return nil, fmt.Errorf("recording failed login: %w", err)
		}
		s.Audit(ctx, user.ID, ActionLoginFailure, map[string]any{"failed_attempts": row.FailedLoginAttempts}, meta)
		logging.Warn("Failed login attempt", "username", username, "failed_attempts", row.FailedLoginAttempts)
		return nil, ErrInvalidCredentials
	}

	if err := s.db.RecordLoginSuccess(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("recording login: %w", err)
	}

	sess, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	sess.User.LastLogin = pgtype.Timestamptz{Time: time.Now(), Valid: true}

	s.Audit(ctx, user.ID, ActionLoginSuccess, nil, meta)
	logging.Info("Successful login", "username", username, "role", user.Role)
	return sess, nil
}

// VerifyToken validates an access token and loads its active owner.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*TokenClaims, store.User, error) {
	claims, err := s.jwt.ValidateToken(ctx, token)
	if err != nil {
		return nil, store.User{}, err
	}

	revoked, err := s.store.isRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, store.User{}, fmt.Errorf("checking token revocation: %w", err)
	}
	if revoked {
		return nil, store.User{}, ErrTokenRevoked
	}

	user, err := s.db.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, store.User{}, ErrUserNotFound
		}
		return nil, store.User{}, fmt.Errorf("loading user: %w", err)
	}
	if user.Status != string(models.StatusActive) {
		return nil, store.User{}, ErrAccountInactive
	}

	return claims, user, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, claims *TokenClaims, meta RequestMeta) error {
	if err := s.store.revokeToken(ctx, claims.TokenID, time.Until(claims.ExpiresAt)); err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}

	s.Audit(ctx, claims.UserID, ActionLogout, nil, meta)
	logging.Info("User logged out", "user_id", claims.UserID)
	return nil
}

// Refresh revokes the presented token and issues a new one for the same user.
func (s *AuthService) Refresh(ctx context.Context, claims *TokenClaims, meta RequestMeta) (*Session, error) {
	user, err := s.db.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user.Status != string(models.StatusActive) {
		return nil, ErrAccountInactive
	}

	if err := s.store.revokeToken(ctx, claims.TokenID, time.Until(claims.ExpiresAt)); err != nil {
		return nil, fmt.Errorf("revoking token: %w", err)
	}

	sess, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.Audit(ctx, user.ID, ActionTokenRefresh, nil, meta)
	return sess, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current, next string, meta RequestMeta) error {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("loading user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, current) {
		return ErrCurrentPasswordIncorrect
	}
	if err := s.policy.Validate(next); err != nil {
		return err
	}

	if err := s.setPassword(ctx, userID, next); err != nil {
		return err
	}

	s.Audit(ctx, userID, ActionPasswordChange, nil, meta)
	s.notifyPasswordChanged(ctx, user, false)
	logging.Info("Password changed", "user_id", userID)
	return nil
}

// RequestPasswordReset mails a single-use reset link when email belongs to
// an active account. It reports success either way so callers cannot probe
// for registered addresses.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) error {
	user, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			logging.Info("Password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("looking up user: %w", err)
	}
	if user.Status != string(models.StatusActive) {
		logging.Info("Password reset requested for inactive user", "user_id", user.ID)
		return nil
	}

	token, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("generating reset token: %w", err)
	}

	if err := s.store.storeResetToken(ctx, hashString(token), user.ID, s.resetTokenExpiry); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	if err := s.mail.Send(ctx, user.Email, notifications.PasswordReset, map[string]any{
		"Name":   user.FirstName,
		"Link":   s.link("reset-password", url.Values{"token": {token}}),
		"Expiry": s.resetTokenExpiry,
	}); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}

	s.Audit(ctx, user.ID, ActionPasswordResetRequest, nil, meta)
	return nil
}

// ResetPassword spends a reset token. The token is only consumed once the
// new password passes the policy.
func (s *AuthService) ResetPassword(ctx context.Context, token, next string, meta RequestMeta) error {
	if err := s.policy.Validate(next); err != nil {
		return err
	}

	userID, err := s.store.consumeResetToken(ctx, hashString(token))
	if err != nil {
		if isMissing(err) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("consuming reset token: %w", err)
	}

	if err := s.setPassword(ctx, userID, next); err != nil {
		return err
	}

	s.Audit(ctx, userID, ActionPasswordReset, nil, meta)
	if user, err := s.db.GetUserByID(ctx, userID); err == nil {
		s.notifyPasswordChanged(ctx, user, false)
	}
	logging.Info("Password reset completed", "user_id", userID)
	return nil
}

// AdminResetPassword replaces the target's password with a generated
// temporary one and returns it. Lockout state is cleared with it.
func (s *AuthService) AdminResetPassword(ctx context.Context, actorID, targetID int64, meta RequestMeta) (string, error) {
	target, err := s.db.GetUserByID(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("loading user: %w", err)
	}

	temp, err := GenerateTemporaryPassword(temporaryPasswordLength)
	if err != nil {
		return "", fmt.Errorf("generating temporary password: %w", err)
	}

	if err := s.setPassword(ctx, targetID, temp); err != nil {
		return "", err
	}

	s.Audit(ctx, actorID, ActionAdminPasswordReset, map[string]any{"target_user_id": targetID}, meta)
	s.notifyPasswordChanged(ctx, target, true)
	logging.Info("Password reset by administrator", "actor_id", actorID, "user_id", targetID)
	return temp, nil
}

// Audit writes an audit log row. Failures are logged, never returned: the
// audited action has already happened.
func (s *AuthService) Audit(ctx context.Context, userID int64, action string, details map[string]any, meta RequestMeta) {
	var raw []byte
	if len(details) > 0 {
		var err error
		if raw, err = json.Marshal(details); err != nil {
			logging.Error("Failed to encode audit details", "action", action, "error", err)
			raw = nil
		}
	}

	err := s.db.CreateAuditLog(ctx, store.CreateAuditLogParams{
		UserID:    pgtype.Int8{Int64: userID, Valid: userID != 0},
		Action:    action,
		Details:   raw,
		IpAddress: store.Text(meta.IPAddress),
		UserAgent: store.Text(meta.UserAgent),
	})
	if err != nil {
		logging.Error("Failed to write audit log", "action", action, "user_id", userID, "error", err)
	}
}

// Ping checks the token state backend.
func (s *AuthService) Ping(ctx context.Context) error {
	return s.store.ping(ctx)
}

func (s *AuthService) issue(ctx context.Context, user store.User) (*Session, error) {
	token, claims, err := s.jwt.GenerateToken(ctx, user.ID, user.Username, rbac.Role(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generating access token: %w", err)
	}
	return &Session{Token: token, Claims: claims, User: user}, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.db.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

// link builds an absolute frontend URL, or a relative one when no public
// URL is configured.
func (s *AuthService) link(path string, query url.Values) string {
	u, err := url.Parse(s.publicURL)
	if err != nil || u.Host == "" {
		u = &url.URL{Path: "/"}
	}
	u = u.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// WelcomeUser emails a newly created account its username and sign-in link.
func (s *AuthService) WelcomeUser(ctx context.Context, user store.User) {
	s.mail.Notify(ctx, user.Email, notifications.AccountCreated, map[string]any{
		"Name":     user.FirstName,
		"Username": user.Username,
		"Role":     rbac.RoleDisplayName(rbac.Role(user.Role)),
		"Link":     s.link("login", nil),
	})
}

func (s *AuthService) notifyPasswordChanged(ctx context.Context, user store.User, byAdmin bool) {
	s.mail.Notify(ctx, user.Email, notifications.PasswordChanged, map[string]any{
		"Name":     user.FirstName,
		"Username": user.Username,
		"ByAdmin":  byAdmin,
	})
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
