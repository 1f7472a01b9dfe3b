package api

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
	"github.com/tailingsiq/tailingsiq/internal/testutil"
)

func TestServer_Users(t *testing.T) {
	env := newIntegrationEnv(t)

	superAdmin := env.db.NewUser(t).WithUsername("root").AsSuperAdmin().Create()
	admin := env.db.NewUser(t).WithUsername("siteadmin").AsAdmin().Create()
	viewer := env.db.NewUser(t).WithUsername("reader").AsViewer().Create()

	superToken := env.login(t, superAdmin)
	adminToken := env.login(t, admin)
	viewerToken := env.login(t, viewer)

	newUserBody := func(username, role string) map[string]interface{} {
		return map[string]interface{}{
			"username":   username,
			"email":      username + "@example.com",
			"password":   "Fresh!Pass9",
			"first_name": "New",
			"last_name":  "Person",
			"role":       role,
		}
	}

	t.Run("list users as admin", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodGet,
			Path:   "/api/v1/admin/users",
		}, adminToken)

		require.Equal(t, http.StatusOK, resp.Code)
		var users []map[string]interface{}
		require.NoError(t, jsonDecode(resp.ResponseRecorder.Body.Bytes(), &users))
		assert.GreaterOrEqual(t, len(users), 3)
		for _, u := range users {
			assert.NotContains(t, u, "password_hash")
		}
	})

	t.Run("list users filtered by role", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method:      http.MethodGet,
			Path:        "/api/v1/admin/users",
			QueryParams: map[string]string{"role": "viewer"},
		}, adminToken)

		require.Equal(t, http.StatusOK, resp.Code)
		var users []map[string]interface{}
		require.NoError(t, jsonDecode(resp.ResponseRecorder.Body.Bytes(), &users))
		for _, u := range users {
			assert.Equal(t, "viewer", u["role"])
		}
	})

	t.Run("list users rejects unknown role", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method:      http.MethodGet,
			Path:        "/api/v1/admin/users",
			QueryParams: map[string]string{"role": "wizard"},
		}, adminToken)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("viewer cannot list users", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodGet,
			Path:   "/api/v1/admin/users",
		}, viewerToken)

		assert.Equal(t, http.StatusForbidden, resp.Code)
		assert.Equal(t, CodePermissionDenied, resp.ErrorCode())
	})

	t.Run("admin creates an engineer", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/admin/users",
			Body:   newUserBody("neweor", "engineer_of_record"),
		}, adminToken)

		require.Equal(t, http.StatusCreated, resp.Code)
		assert.Equal(t, "neweor", resp.Body["username"])
		assert.Equal(t, "active", resp.Body["status"])

		logs, err := env.db.Queries().ListAuditLogs(context.Background(), auditFilter(admin.ID, actionUserCreated))
		require.NoError(t, err)
		assert.Len(t, logs, 1)

		var welcomed bool
		for _, e := range env.queue.PendingEmails(t) {
			if e.To == "neweor@example.com" && e.Subject == "Welcome to TailingsIQ" {
				welcomed = true
				assert.NotContains(t, e.Body, "Fresh!Pass9")
			}
		}
		assert.True(t, welcomed, "welcome email not queued")
	})

	t.Run("admin cannot create a super admin", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/admin/users",
			Body:   newUserBody("usurper", "super_admin"),
		}, adminToken)

		assert.Equal(t, http.StatusForbidden, resp.Code)
		assert.Equal(t, "Cannot create user with role higher than your own", resp.ErrorMessage())
	})

	t.Run("duplicate username", func(t *testing.T) {
		body := newUserBody("reader", "viewer")
		body["email"] = "other-reader@example.com"

		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/admin/users",
			Body:   body,
		}, adminToken)

		assert.Equal(t, http.StatusConflict, resp.Code)
		assert.Equal(t, "Username already registered", resp.ErrorMessage())
	})

	t.Run("weak password", func(t *testing.T) {
		body := newUserBody("weakling", "viewer")
		body["password"] = "password"

		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/admin/users",
			Body:   body,
		}, adminToken)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("get user", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodGet,
			Path:   fmt.Sprintf("/api/v1/admin/users/%d", viewer.ID),
		}, adminToken)

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "reader", resp.Body["username"])
	})

	t.Run("get missing user", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodGet,
			Path:   "/api/v1/admin/users/999999",
		}, adminToken)

		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("update role and facilities", func(t *testing.T) {
		target := env.db.NewUser(t).WithRole(rbac.RoleConsultant).Create()

		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPut,
			Path:   fmt.Sprintf("/api/v1/admin/users/%d", target.ID),
			Body: map[string]interface{}{
				"role":              "tsf_operator",
				"facilities_access": []string{"tsf-north"},
			},
		}, adminToken)

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "tsf_operator", resp.Body["role"])
		assert.Equal(t, []interface{}{"tsf-north"}, resp.Body["facilities_access"])
	})

	t.Run("admin cannot modify a super admin", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPut,
			Path:   fmt.Sprintf("/api/v1/admin/users/%d", superAdmin.ID),
			Body:   map[string]interface{}{"position": "Demoted"},
		}, adminToken)

		assert.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("cannot deactivate self", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPut,
			Path:   fmt.Sprintf("/api/v1/admin/users/%d", admin.ID),
			Body:   map[string]interface{}{"status": "inactive"},
		}, adminToken)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Equal(t, "You cannot deactivate your own account", resp.ErrorMessage())
	})

	t.Run("only super admin deletes", func(t *testing.T) {
		target := env.db.NewUser(t).Create()
		path := fmt.Sprintf("/api/v1/admin/users/%d", target.ID)

		denied := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{Method: http.MethodDelete, Path: path}, adminToken)
		assert.Equal(t, http.StatusForbidden, denied.Code)

		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{Method: http.MethodDelete, Path: path}, superToken)
		require.Equal(t, http.StatusOK, resp.Code)

		row := target.Reload(t, env.db)
		assert.Equal(t, string(models.StatusInactive), row.Status)

		login := testutil.MakeRequest(t, env.handler, testutil.Request{
			Method: http.MethodPost,
			Path:   "/api/v1/auth/login",
			Body:   map[string]string{"username": target.Username, "password": target.Password},
		})
		assert.Equal(t, http.StatusUnauthorized, login.Code)
	})

	t.Run("cannot delete self", func(t *testing.T) {
		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodDelete,
			Path:   fmt.Sprintf("/api/v1/admin/users/%d", superAdmin.ID),
		}, superToken)

		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("admin password reset issues a working temporary password", func(t *testing.T) {
		target := env.db.NewUser(t).WithRole(rbac.RoleManagement).Create()

		resp := testutil.AuthenticatedRequest(t, env.handler, testutil.Request{
			Method: http.MethodPost,
			Path:   fmt.Sprintf("/api/v1/admin/users/%d/reset-password", target.ID),
		}, adminToken)

		require.Equal(t, http.StatusOK, resp.Code)
		temp, _ := resp.Body["temporary_password"].(string)
		require.Len(t, temp, 12)

		target.Password = temp
		env.login(t, target)
	})
}
