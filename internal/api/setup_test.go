package api

import (
	"flag"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/notifications"
	"github.com/tailingsiq/tailingsiq/internal/testutil"
)

var (
	sharedTestDB    *testutil.TestDatabase
	sharedTestQueue *testutil.TestQueue
)

// TestMain starts the shared containers once. Under -short only the
// container-free tests run.
func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	t := &testing.T{}
	sharedTestDB = testutil.NewTestDatabase(t)
	sharedTestDB.RunMigrations(t)
	sharedTestQueue = testutil.NewTestQueue(t)

	code := m.Run()

	sharedTestQueue.Close()
	sharedTestDB.Close()

	os.Exit(code)
}

// integrationEnv is a full server backed by the shared containers.
type integrationEnv struct {
	db      *testutil.TestDatabase
	queue   *testutil.TestQueue
	auth    *auth.AuthService
	handler http.Handler
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}

	sharedTestDB.CleanupDatabase(t)
	sharedTestQueue.Cleanup(t)

	jwtSvc, err := auth.NewJWTService([]byte("test-signing-key"), "test-issuer", 15*time.Minute)
	require.NoError(t, err)

	mailer, err := notifications.NewMailer(sharedTestQueue.Queue)
	require.NoError(t, err)

	authService := auth.NewAuthService(sharedTestQueue.Redis, jwtSvc, sharedTestDB.Queries(), mailer, config.AuthConfig{
		MaxLoginAttempts: 5,
		LockoutDuration:  30 * time.Minute,
		ResetTokenExpiry: time.Hour,
	}, "http://localhost:3000")

	server := NewServer(sharedTestDB, authService)
	handler, err := NewRouter(server, auth.NewAuthenticator(authService).Authenticate, nil)
	require.NoError(t, err)

	return &integrationEnv{
		db:      sharedTestDB,
		queue:   sharedTestQueue,
		auth:    authService,
		handler: handler,
	}
}

// login signs user in through the API and returns the access token.
func (e *integrationEnv) login(t *testing.T, user *testutil.TestUser) string {
	t.Helper()
	resp := testutil.MakeRequest(t, e.handler, testutil.Request{
		Method: http.MethodPost,
		Path:   "/api/v1/auth/login",
		Body:   map[string]string{"username": user.Username, "password": user.Password},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body)
	token, _ := resp.Body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}
