package api

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/middleware"
	"github.com/tailingsiq/tailingsiq/internal/swagger"
)

// NewRouter wires the HTTP surface. Everything under /api/v1 is validated
// against the OpenAPI document, which is also where bearer authentication
// happens.
func NewRouter(s *Server, authFunc openapi3filter.AuthenticationFunc, cors *config.CORSConfig) (http.Handler, error) {
	validator, err := NewValidator(authFunc)
	if err != nil {
		return nil, err
	}

	r := chi.NewMux()
	r.Use(middleware.RequestContext)
	r.Use(middleware.LoggingMiddleware)
	if cors != nil {
		r.Use(middleware.NewCORSHandler(cors))
	}

	r.Get("/health", s.HealthCheck)
	r.Get("/ready", s.ReadinessCheck)
	r.Get(swagger.SpecPath, swagger.ServeSwaggerJSON(GetSwagger))
	r.Get("/api/docs/*", swagger.UI())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(validator)
		r.Use(middleware.AuthenticatedLogger)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.LoginUser)
			r.Post("/logout", s.LogoutUser)
			r.Post("/refresh", s.RefreshToken)
			r.Get("/me", s.GetCurrentUser)
			r.Get("/permissions", s.GetCurrentPermissions)
			r.Put("/profile", s.UpdateProfile)
			r.Post("/change-password", s.ChangePassword)
			r.Post("/request-password-reset", s.RequestPasswordReset)
			r.Post("/reset-password", s.ResetPassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/users", s.ListUsers)
			r.Post("/users", s.CreateUser)
			r.Get("/users/{id}", s.GetUser)
			r.Put("/users/{id}", s.UpdateUser)
			r.Delete("/users/{id}", s.DeleteUser)
			r.Post("/users/{id}/reset-password", s.AdminResetPassword)
			r.Get("/audit-logs", s.ListAuditLogs)
		})
	})

	return r, nil
}
