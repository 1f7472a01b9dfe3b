package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/logging"
)

// headers the session client and trace propagation always need
var (
	requiredAllowedHeaders = []string{"Authorization", "Content-Type", "traceparent", "tracestate"}
	requiredExposedHeaders = []string{RequestIDHeader}
)

// NewCORSHandler builds the CORS middleware. Browsers refuse credentialed
// responses for a wildcard origin, so credentials are switched off when
// "*" is configured.
func NewCORSHandler(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	opts := corsOptions(cfg)
	logging.Info("CORS configured",
		"origins", opts.AllowedOrigins,
		"credentials", opts.AllowCredentials)
	return cors.Handler(opts)
}

func corsOptions(cfg *config.CORSConfig) cors.Options {
	allowCredentials := cfg.AllowCredentials
	if slices.Contains(cfg.AllowedOrigins, "*") {
		allowCredentials = false
	}
	return cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   withHeaders(cfg.AllowedHeaders, requiredAllowedHeaders),
		ExposedHeaders:   withHeaders(cfg.ExposedHeaders, requiredExposedHeaders),
		AllowCredentials: allowCredentials,
		MaxAge:           cfg.MaxAge,
	}
}

func withHeaders(configured, required []string) []string {
	out := slices.Clone(configured)
	for _, h := range required {
		if !slices.ContainsFunc(out, func(c string) bool { return http.CanonicalHeaderKey(c) == http.CanonicalHeaderKey(h) }) {
			out = append(out, h)
		}
	}
	return out
}
