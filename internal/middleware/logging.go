package middleware

import (
	"net/http"
	"strings"
	"time"
)

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	bytes      int
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// logs HTTP requests and responses with logger module
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		logger := GetLoggerFromContext(r.Context())
		next.ServeHTTP(wrapped, r)

		statusCode := wrapped.statusCode
		logAttrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", statusCode,
			"bytes", wrapped.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}

		switch {
		case statusCode >= 500:
			logger.Error("Request completed with server error", logAttrs...)
		case statusCode >= 400:
			logger.Warn("Request completed with client error", logAttrs...)
		case isProbe(r.URL.Path):
			// probes hit every few seconds
			logger.Debug("Request completed successfully", logAttrs...)
		default:
			logger.Info("Request completed successfully", logAttrs...)
		}
	})
}

func isProbe(path string) bool {
	return path == "/health" || path == "/ready" || strings.HasPrefix(path, "/api/docs")
}
