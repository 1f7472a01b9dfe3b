package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tailingsiq/tailingsiq/internal/middleware"
)

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	logger.Debug("Health check requested")

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

// Returns 200 if ready, 503 if not ready.
func (s *Server) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	logger.Debug("Readiness check requested")

	checks := make(map[string]string)
	ready := true

	probe := func(name string, ping func(context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			logger.Warn("Readiness probe failed", "check", name, "error", err)
			checks[name] = "failed: " + err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	probe("database", s.db.Ping)
	probe("redis", s.auth.Ping)

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:    "not_ready",
			Timestamp: time.Now().UTC(),
			Checks:    checks,
		})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}
