package auth_test

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/notifications"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/store"
	"github.com/tailingsiq/tailingsiq/internal/testutil"
)

var (
	sharedQueue *testutil.TestQueue
	sharedDB    *testutil.TestDatabase
)

var testMeta = auth.RequestMeta{IPAddress: "203.0.113.7", UserAgent: "auth-test"}

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	t := &testing.T{}
	sharedQueue = testutil.NewTestQueue(t)
	sharedDB = testutil.NewTestDatabase(t)
	sharedDB.RunMigrations(t)

	code := m.Run()

	sharedDB.Close()
	sharedQueue.Close()

	os.Exit(code)
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	sharedDB.CleanupDatabase(t)
	sharedQueue.Cleanup(t)

	jwtSvc, err := auth.NewJWTService([]byte("test-signing-key"), "test-issuer", 15*time.Minute)
	require.NoError(t, err)

	mailer, err := notifications.NewMailer(sharedQueue.Queue)
	require.NoError(t, err)

	return auth.NewAuthService(sharedQueue.Redis, jwtSvc, sharedDB.Queries(), mailer, config.AuthConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  30 * time.Minute,
		ResetTokenExpiry: time.Hour,
	}, "https://tailingsiq.example.com")
}

func auditActions(t *testing.T, userID int64) []string {
	t.Helper()
	rows, err := sharedDB.Queries().ListAuditLogs(context.Background(), store.ListAuditLogsParams{
		UserID: store.Int8(userID),
		Limit:  100,
	})
	require.NoError(t, err)
	var out []string
	for _, r := range rows {
		out = append(out, r.Action)
	}
	return out
}

func TestAuthService_Login(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user := sharedDB.NewUser(t).WithUsername("eor").WithRole(rbac.RoleEngineerOfRecord).Create()

	t.Run("success", func(t *testing.T) {
		sess, err := svc.Login(ctx, "eor", user.Password, testMeta)
		require.NoError(t, err)
		assert.NotEmpty(t, sess.Token)
		assert.Equal(t, user.ID, sess.Claims.UserID)
		assert.Equal(t, rbac.RoleEngineerOfRecord, sess.Claims.Role)
		assert.True(t, sess.User.LastLogin.Valid)

		row := user.Reload(t, sharedDB)
		assert.True(t, row.LastLogin.Valid)
		assert.Zero(t, row.FailedLoginAttempts)
		assert.Contains(t, auditActions(t, user.ID), auth.ActionLoginSuccess)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "whatever", testMeta)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("wrong password counts a failure", func(t *testing.T) {
		_, err := svc.Login(ctx, "eor", "Wrong!Pass1", testMeta)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

		row := user.Reload(t, sharedDB)
		assert.Equal(t, int32(1), row.FailedLoginAttempts)
		assert.Contains(t, auditActions(t, user.ID), auth.ActionLoginFailure)

		// a good login resets the counter
		_, err = svc.Login(ctx, "eor", user.Password, testMeta)
		require.NoError(t, err)
		assert.Zero(t, user.Reload(t, sharedDB).FailedLoginAttempts)
	})

	t.Run("inactive user", func(t *testing.T) {
		inactive := sharedDB.NewUser(t).WithStatus(models.StatusInactive).Create()
		_, err := svc.Login(ctx, inactive.Username, inactive.Password, testMeta)
		assert.ErrorIs(t, err, auth.ErrAccountInactive)
	})
}

func TestAuthService_Lockout(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user := sharedDB.NewUser(t).Create()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, user.Username, "Wrong!Pass1", testMeta)
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}

	row := user.Reload(t, sharedDB)
	require.True(t, row.LockedUntil.Valid)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), row.LockedUntil.Time, time.Minute)

	_, err := svc.Login(ctx, user.Username, user.Password, testMeta)
	assert.ErrorIs(t, err, auth.ErrAccountLocked)

	// an administrator reset clears the lock
	temp, err := svc.AdminResetPassword(ctx, 0, user.ID, testMeta)
	require.NoError(t, err)
	_, err = svc.Login(ctx, user.Username, temp, testMeta)
	assert.NoError(t, err)
}

func TestAuthService_VerifyAndLogout(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user := sharedDB.NewUser(t).Create()
	sess, err := svc.Login(ctx, user.Username, user.Password, testMeta)
	require.NoError(t, err)

	claims, row, err := svc.VerifyToken(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Claims.TokenID, claims.TokenID)
	assert.Equal(t, user.ID, row.ID)

	require.NoError(t, svc.Logout(ctx, claims, testMeta))

	_, _, err = svc.VerifyToken(ctx, sess.Token)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
	assert.Contains(t, auditActions(t, user.ID), auth.ActionLogout)

	t.Run("deactivated owner", func(t *testing.T) {
		other := sharedDB.NewUser(t).Create()
		sess, err := svc.Login(ctx, other.Username, other.Password, testMeta)
		require.NoError(t, err)

		require.NoError(t, sharedDB.Queries().UpdateUserStatus(ctx, other.ID, string(models.StatusSuspended)))

		_, _, err = svc.VerifyToken(ctx, sess.Token)
		assert.ErrorIs(t, err, auth.ErrAccountInactive)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, _, err := svc.VerifyToken(ctx, "not.a.jwt")
		assert.Error(t, err)
	})
}

func TestAuthService_Refresh(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user := sharedDB.NewUser(t).Create()
	sess, err := svc.Login(ctx, user.Username, user.Password, testMeta)
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, sess.Claims, testMeta)
	require.NoError(t, err)
	assert.NotEqual(t, sess.Claims.TokenID, next.Claims.TokenID)

	_, _, err = svc.VerifyToken(ctx, sess.Token)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)

	_, _, err = svc.VerifyToken(ctx, next.Token)
	assert.NoError(t, err)
}

func TestAuthService_ChangePassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user := sharedDB.NewUser(t).Create()

	err := svc.ChangePassword(ctx, user.ID, "Wrong!Pass1", "N3w!Password", testMeta)
	assert.ErrorIs(t, err, auth.ErrCurrentPasswordIncorrect)

	err = svc.ChangePassword(ctx, user.ID, user.Password, "weak", testMeta)
	assert.ErrorIs(t, err, models.ErrWeakPassword)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, user.Password, "N3w!Password", testMeta))

	_, err = svc.Login(ctx, user.Username, user.Password, testMeta)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = svc.Login(ctx, user.Username, "N3w!Password", testMeta)
	assert.NoError(t, err)

	assert.True(t, user.Reload(t, sharedDB).PasswordChangedAt.Valid)
}

func TestAuthService_PasswordReset(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	user := sharedDB.NewUser(t).WithEmail("reset@example.com").Create()

	t.Run("unknown email is silent", func(t *testing.T) {
		require.NoError(t, svc.RequestPasswordReset(ctx, "ghost@example.com", testMeta))
		assert.Empty(t, sharedQueue.PendingEmails(t))
	})

	require.NoError(t, svc.RequestPasswordReset(ctx, "reset@example.com", testMeta))

	emails := sharedQueue.PendingEmails(t)
	require.Len(t, emails, 1)
	assert.Equal(t, "reset@example.com", emails[0].To)
	assert.Contains(t, emails[0].Body, "https://tailingsiq.example.com/reset-password?token=")

	token := extractToken(t, emails[0].Body)

	t.Run("weak password leaves the token usable", func(t *testing.T) {
		err := svc.ResetPassword(ctx, token, "weak", testMeta)
		assert.ErrorIs(t, err, models.ErrWeakPassword)
	})

	require.NoError(t, svc.ResetPassword(ctx, token, "R3set!Pass", testMeta))

	_, err := svc.Login(ctx, user.Username, "R3set!Pass", testMeta)
	assert.NoError(t, err)

	t.Run("token is single use", func(t *testing.T) {
		err := svc.ResetPassword(ctx, token, "An0ther!Pass", testMeta)
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	t.Run("unknown token", func(t *testing.T) {
		err := svc.ResetPassword(ctx, "made-up", "An0ther!Pass", testMeta)
		assert.ErrorIs(t, err, auth.ErrResetTokenInvalid)
	})

	actions := auditActions(t, user.ID)
	assert.Contains(t, actions, auth.ActionPasswordResetRequest)
	assert.Contains(t, actions, auth.ActionPasswordReset)
}

func TestAuthService_AdminResetPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	admin := sharedDB.NewUser(t).AsAdmin().Create()
	target := sharedDB.NewUser(t).Create()

	temp, err := svc.AdminResetPassword(ctx, admin.ID, target.ID, testMeta)
	require.NoError(t, err)
	assert.Len(t, temp, 12)
	assert.NoError(t, models.DefaultPasswordPolicy.Validate(temp))

	_, err = svc.Login(ctx, target.Username, temp, testMeta)
	assert.NoError(t, err)
	assert.Contains(t, auditActions(t, admin.ID), auth.ActionAdminPasswordReset)

	emails := sharedQueue.PendingEmails(t)
	require.Len(t, emails, 1)
	assert.Equal(t, target.Email, emails[0].To)
	assert.Contains(t, emails[0].Body, "reset by an administrator")
	assert.NotContains(t, emails[0].Body, temp)

	_, err = svc.AdminResetPassword(ctx, admin.ID, 999999, testMeta)
	assert.True(t, errors.Is(err, auth.ErrUserNotFound))
}

func TestAuthService_Ping(t *testing.T) {
	svc := newTestAuthService(t)
	assert.NoError(t, svc.Ping(context.Background()))
}

func extractToken(t *testing.T, body string) string {
	t.Helper()
	_, rest, ok := strings.Cut(body, "token=")
	require.True(t, ok, "reset link missing from email")
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
