package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/session"
)

// fakeAPI answers the handful of endpoints the CLI touches. Tokens map to
// roles; any other bearer token is rejected with 401.
type fakeAPI struct {
	mu      sync.Mutex
	roles   map[string]rbac.Role
	revoked map[string]bool
	queries []string
	server  *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		roles: map[string]rbac.Role{
			"viewer-token": rbac.RoleViewer,
			"admin-token":  rbac.RoleAdmin,
		},
		revoked: map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		token := body.Username + "-token"
		if _, ok := f.roles[token]; !ok || body.Password != "Secret!123" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"message": "Incorrect username or password"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"user":         f.user(token),
		})
	})
	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		token, ok := f.authorize(w, r)
		if !ok {
			return
		}
		f.mu.Lock()
		f.revoked[token] = true
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "Successfully logged out"})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		token, ok := f.authorize(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, f.user(token))
	})
	mux.HandleFunc("POST /api/v1/auth/request-password-reset", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "If the email exists, a password reset link has been sent"})
	})
	mux.HandleFunc("GET /api/v1/admin/users", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := f.authorize(w, r); !ok {
			return
		}
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 7, "username": "reader", "first_name": "Rita", "last_name": "Reader", "role": "viewer", "status": "active", "facilities_access": []string{"tsf-north"}},
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) user(token string) map[string]any {
	role := f.roles[token]
	return map[string]any{
		"id":                1,
		"username":          strings.TrimSuffix(token, "-token"),
		"email":             strings.TrimSuffix(token, "-token") + "@example.com",
		"first_name":        "Test",
		"last_name":         "User",
		"role":              role,
		"status":            "active",
		"facilities_access": nil,
	}
}

func (f *fakeAPI) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	_, known := f.roles[token]
	revoked := f.revoked[token]
	f.mu.Unlock()
	if !known || revoked {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"message": "Invalid or expired token"}})
		return "", false
	}
	return token, true
}

func (f *fakeAPI) listQueries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.queries...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// invoke runs one tiq command against api with a fresh process-like CLI,
// sharing the session file at path between invocations.
func invoke(t *testing.T, api *fakeAPI, path, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c, err := newCLI(session.Options{
		BaseURL: api.server.URL + "/api/v1",
		Store:   session.NewFileStore(path),
	}, strings.NewReader(stdin), &out)
	require.NoError(t, err)

	err = c.run(context.Background(), args)
	return out.String(), err
}

func TestCLI_Usage(t *testing.T) {
	api := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "session")

	out, err := invoke(t, api, path, "")
	assert.Error(t, err)
	assert.Contains(t, out, "USAGE:")

	out, err = invoke(t, api, path, "", "help")
	assert.NoError(t, err)
	assert.Contains(t, out, "COMMANDS:")

	_, err = invoke(t, api, path, "", "frobnicate")
	assert.ErrorContains(t, err, "unknown command")
}

func TestCLI_SessionLifecycle(t *testing.T) {
	api := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "session")

	t.Run("signed out commands require login", func(t *testing.T) {
		_, err := invoke(t, api, path, "", "whoami")
		assert.ErrorIs(t, err, errNotSignedIn)
	})

	t.Run("bad password", func(t *testing.T) {
		_, err := invoke(t, api, path, "viewer\nwrong\n", "login")
		require.Error(t, err)
		assert.Equal(t, session.AuthenticationFailure, session.KindOf(err))
		assert.Equal(t, "Incorrect username or password", err.Error())
	})

	t.Run("login with prompts", func(t *testing.T) {
		out, err := invoke(t, api, path, "viewer\nSecret!123\n", "login")
		require.NoError(t, err)
		assert.Contains(t, out, "Signed in as viewer (Viewer)")

		token, err := session.NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "viewer-token", token)
	})

	t.Run("second login is refused", func(t *testing.T) {
		_, err := invoke(t, api, path, "Secret!123\n", "login", "-u", "admin")
		assert.ErrorContains(t, err, "already signed in as viewer")
	})

	t.Run("session is restored from the file", func(t *testing.T) {
		out, err := invoke(t, api, path, "", "whoami")
		require.NoError(t, err)
		assert.Contains(t, out, "viewer@example.com")
		assert.Regexp(t, `Facilities:\s+all`, out)
	})

	t.Run("perms", func(t *testing.T) {
		out, err := invoke(t, api, path, "", "perms")
		require.NoError(t, err)
		assert.Contains(t, out, string(rbac.CanViewMonitoring))
		assert.NotContains(t, out, string(rbac.CanManageUsers))
		assert.Contains(t, out, "viewer")
	})

	t.Run("viewer is denied admin commands without a request", func(t *testing.T) {
		_, err := invoke(t, api, path, "", "users", "list")
		assert.ErrorIs(t, err, errPermissionDenied)
		assert.Empty(t, api.listQueries())
	})

	t.Run("logout clears the file", func(t *testing.T) {
		out, err := invoke(t, api, path, "", "logout")
		require.NoError(t, err)
		assert.Contains(t, out, "Signed out")

		token, err := session.NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Empty(t, token)

		_, err = invoke(t, api, path, "", "whoami")
		assert.ErrorIs(t, err, errNotSignedIn)
	})
}

func TestCLI_RevokedToken(t *testing.T) {
	api := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "session")
	require.NoError(t, session.NewFileStore(path).Save("admin-token"))

	api.mu.Lock()
	api.revoked["admin-token"] = true
	api.mu.Unlock()

	out, err := invoke(t, api, path, "", "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
	assert.Contains(t, out, "warning:")

	token, err := session.NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestCLI_PasswordsAreReadWithoutEcho(t *testing.T) {
	api := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "session")

	var out bytes.Buffer
	c, err := newCLI(session.Options{
		BaseURL: api.server.URL + "/api/v1",
		Store:   session.NewFileStore(path),
	}, strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Nil(t, c.readSecret, "a reader that is not a terminal reads secrets as plain lines")

	var reads int
	c.readSecret = func() ([]byte, error) {
		reads++
		return []byte("Secret!123"), nil
	}

	require.NoError(t, c.run(context.Background(), []string{"login", "-u", "viewer"}))
	assert.Equal(t, 1, reads)
	assert.Contains(t, out.String(), "Password: \nSigned in as viewer")
	assert.NotContains(t, out.String(), "Secret!123")
}

func TestCLI_Users(t *testing.T) {
	api := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "session")
	_, err := invoke(t, api, path, "Secret!123\n", "login", "-u", "admin")
	require.NoError(t, err)

	t.Run("list with filters", func(t *testing.T) {
		out, err := invoke(t, api, path, "", "users", "list", "-role", "viewer", "-limit", "5")
		require.NoError(t, err)
		assert.Contains(t, out, "USERNAME")
		assert.Contains(t, out, "Rita Reader")
		assert.Contains(t, out, "tsf-north")

		queries := api.listQueries()
		require.Len(t, queries, 1)
		assert.Contains(t, queries[0], "role=viewer")
		assert.Contains(t, queries[0], "limit=5")
	})

	t.Run("admin cannot grant super admin", func(t *testing.T) {
		_, err := invoke(t, api, path, "", "users", "set-role", "7", "super_admin")
		assert.ErrorContains(t, err, "cannot assign role")
	})

	t.Run("delete needs super admin", func(t *testing.T) {
		_, err := invoke(t, api, path, "", "users", "delete", "7")
		assert.ErrorIs(t, err, errPermissionDenied)
	})

	t.Run("bad user id", func(t *testing.T) {
		_, err := invoke(t, api, path, "", "users", "get", "abc")
		assert.ErrorContains(t, err, "invalid user id")
	})
}

func TestCLI_Forgot(t *testing.T) {
	api := newFakeAPI(t)
	path := filepath.Join(t.TempDir(), "session")

	out, err := invoke(t, api, path, "", "forgot", "-email", "someone@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "password reset link")
}

func TestFacilitiesLabel(t *testing.T) {
	assert.Equal(t, "all", facilitiesLabel(nil))
	assert.Equal(t, "none", facilitiesLabel([]string{}))
	assert.Equal(t, "a, b", facilitiesLabel([]string{"a", "b"}))
}
