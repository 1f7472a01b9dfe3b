package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/store"
	"github.com/tailingsiq/tailingsiq/internal/testutil"
)

type fakeDatabase struct {
	pingErr error
}

func (f *fakeDatabase) Queries() *store.Queries { return nil }

func (f *fakeDatabase) Ping(context.Context) error { return f.pingErr }

func TestServer_HealthCheck(t *testing.T) {
	server := &Server{}

	t.Run("returns 200 OK with timestamp", func(t *testing.T) {
		resp := testutil.MakeRequest(t, http.HandlerFunc(server.HealthCheck), testutil.Request{
			Method: http.MethodGet,
			Path:   "/health",
		})

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "ok", resp.Body["status"])

		ts, err := time.Parse(time.RFC3339Nano, resp.Body["timestamp"].(string))
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), ts, time.Second)
	})
}

func TestServer_ReadinessCheck(t *testing.T) {
	t.Run("ready when every dependency answers", func(t *testing.T) {
		mockAuth := testutil.NewMockAuthService(t)
		mockAuth.ExpectPing(nil)
		server := &Server{db: &fakeDatabase{}, auth: mockAuth}

		resp := testutil.MakeRequest(t, http.HandlerFunc(server.ReadinessCheck), testutil.Request{
			Method: http.MethodGet,
			Path:   "/ready",
		})

		require.Equal(t, http.StatusOK, resp.Code)
		assert.Equal(t, "ready", resp.Body["status"])
		checks := resp.Body["checks"].(map[string]interface{})
		assert.Equal(t, "ok", checks["database"])
		assert.Equal(t, "ok", checks["redis"])
	})

	t.Run("not ready when redis is down", func(t *testing.T) {
		mockAuth := testutil.NewMockAuthService(t)
		mockAuth.ExpectPing(errors.New("dial tcp: connection refused"))
		server := &Server{db: &fakeDatabase{}, auth: mockAuth}

		resp := testutil.MakeRequest(t, http.HandlerFunc(server.ReadinessCheck), testutil.Request{
			Method: http.MethodGet,
			Path:   "/ready",
		})

		require.Equal(t, http.StatusServiceUnavailable, resp.Code)
		assert.Equal(t, "not_ready", resp.Body["status"])
		checks := resp.Body["checks"].(map[string]interface{})
		assert.Equal(t, "ok", checks["database"])
		assert.Contains(t, checks["redis"], "failed")
	})

	t.Run("not ready when the database is down", func(t *testing.T) {
		mockAuth := testutil.NewMockAuthService(t)
		mockAuth.ExpectPing(nil)
		server := &Server{db: &fakeDatabase{pingErr: errors.New("pool closed")}, auth: mockAuth}

		resp := testutil.MakeRequest(t, http.HandlerFunc(server.ReadinessCheck), testutil.Request{
			Method: http.MethodGet,
			Path:   "/ready",
		})

		assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	})
}
