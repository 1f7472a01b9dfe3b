package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/logging"
)

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	clientIPKey  contextKey = "clientIP"
	loggerKey    contextKey = "logger"
)

const RequestIDHeader = "X-Request-ID"

// middleware adds request ID, client IP and a request scoped logger to context
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		// request ID, honouring one set by a proxy
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		ctx = context.WithValue(ctx, requestIDKey, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		// client IP
		clientIP := getClientIP(r)
		ctx = context.WithValue(ctx, clientIPKey, clientIP)

		// Create logger with request context
		logger := logging.With(
			"request_id", requestID,
			"client_ip", clientIP,
		)
		ctx = context.WithValue(ctx, loggerKey, logger)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticatedLogger tags the request logger with the caller. It must run
// after authentication has put the user in the context.
func AuthenticatedLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.GetAuthenticatedUser(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		logger := GetLoggerFromContext(r.Context()).With(
			"user_id", user.User.ID,
			"username", user.User.Username,
		)
		ctx := context.WithValue(r.Context(), loggerKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetLoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	// Fallback to default logger if not found
	return slog.Default()
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}

// attempt to get client IP, used for the audit trail
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header for proxied requests
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// take the first one
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to remote address
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}
