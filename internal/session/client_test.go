package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api/v1", srv.Client())
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("not a url\x7f", nil)
	assert.Error(t, err)

	_, err = NewClient("/relative", nil)
	assert.Error(t, err)

	c, err := NewClient("https://tailingsiq.example.com/api/v1", nil)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", c.baseURL.Path)
}

func TestClient_ListUsers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/users", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "regulator", q.Get("role"))
		assert.Equal(t, "active", q.Get("status"))
		assert.Equal(t, "Mines Dept", q.Get("organization"))
		assert.Equal(t, "20", q.Get("limit"))
		assert.Equal(t, "40", q.Get("offset"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 3, "username": "reg", "role": "regulator"}})
	})

	users, err := c.ListUsers(context.Background(), models.UserFilter{
		Role:         rbac.RoleRegulator,
		Status:       models.StatusActive,
		Organization: "Mines Dept",
		Limit:        20,
		Offset:       40,
	})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, rbac.RoleRegulator, users[0].Role)
}

func TestClient_UserAdmin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /api/v1/admin/users":
			var in models.UserCreate
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 9, "username": in.Username, "role": in.Role})
		case "PUT /api/v1/admin/users/9":
			var in map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, "suspended", in["status"])
			assert.NotContains(t, in, "email")
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 9, "status": "suspended"})
		case "DELETE /api/v1/admin/users/9":
			w.WriteHeader(http.StatusNoContent)
		case "POST /api/v1/admin/users/9/reset-password":
			_ = json.NewEncoder(w).Encode(map[string]string{"temporary_password": "Xy7#abcdEFGH"})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	created, err := c.CreateUser(ctx, models.UserCreate{Username: "op1", Role: rbac.RoleTSFOperator})
	require.NoError(t, err)
	assert.Equal(t, int64(9), created.ID)

	status := models.StatusSuspended
	updated, err := c.UpdateUser(ctx, 9, models.UserUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuspended, updated.Status)

	require.NoError(t, c.DeleteUser(ctx, 9))

	temp, err := c.ResetUserPassword(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "Xy7#abcdEFGH", temp)

	_, err = c.GetUser(ctx, 10)
	assert.Equal(t, RequestFailure, KindOf(err))
}

func TestClient_IncompleteLoginResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "t1"})
	})

	_, err := c.Login(context.Background(), "u", "p")
	assert.Equal(t, RequestFailure, KindOf(err))
}

func TestClient_IncompleteUser(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty", map[string]any{}},
		{"missing id", map[string]any{"username": "u", "role": "viewer"}},
		{"unknown role", map[string]any{"id": 4, "username": "u", "role": "wizard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.body)
			})

			_, err := c.Me(context.Background())
			assert.Equal(t, RequestFailure, KindOf(err))

			_, err = c.UpdateProfile(context.Background(), models.ProfileUpdate{})
			assert.Equal(t, RequestFailure, KindOf(err))
		})
	}
}
