package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a failed session or API operation.
type Kind int

const (
	// AuthenticationFailure means bad credentials; the user can correct it.
	AuthenticationFailure Kind = iota + 1
	// AuthorizationFailure means the session is valid but lacks a permission.
	AuthorizationFailure
	// SessionExpired means the server rejected the token or the session ended mid-call.
	SessionExpired
	// NetworkFailure means no response arrived; retrying may help.
	NetworkFailure
	// ValidationFailure means the request was malformed, usually caught before dispatch.
	ValidationFailure
	// RequestFailure covers any other non-success response (not found, conflict, server error).
	RequestFailure
)

func (k Kind) String() string {
	switch k {
	case AuthenticationFailure:
		return "authentication_failure"
	case AuthorizationFailure:
		return "authorization_failure"
	case SessionExpired:
		return "session_expired"
	case NetworkFailure:
		return "network_failure"
	case ValidationFailure:
		return "validation_failure"
	case RequestFailure:
		return "request_failure"
	}
	return "unknown"
}

const (
	msgNetwork        = "Unable to reach the server. Please check your connection and try again."
	msgSessionExpired = "Your session has expired. Please sign in again."
	msgForbidden      = "You do not have permission to perform this action."
	msgBadCredentials = "Incorrect username or password"
	msgUnexpected     = "An unexpected error occurred. Please try again."
)

// Error is the only error type session operations return. Message is always
// human readable and safe to show in the UI.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so callers can write errors.Is(err, session.ErrExpired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrAuthentication = &Error{Kind: AuthenticationFailure}
	ErrAuthorization  = &Error{Kind: AuthorizationFailure}
	ErrExpired        = &Error{Kind: SessionExpired}
	ErrNetwork        = &Error{Kind: NetworkFailure}
	ErrValidation     = &Error{Kind: ValidationFailure}
	ErrRequest        = &Error{Kind: RequestFailure}
)

// KindOf returns the kind of err, or 0 when err is not a session error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func validationError(msg string) *Error {
	return &Error{Kind: ValidationFailure, Message: msg}
}

func networkError(err error) *Error {
	return &Error{Kind: NetworkFailure, Message: msgNetwork, Err: err}
}

func expiredError(msg string) *Error {
	if msg == "" {
		msg = msgSessionExpired
	}
	return &Error{Kind: SessionExpired, Status: http.StatusUnauthorized, Message: msg}
}

// responseError maps a non-2xx response to an Error. public marks requests
// sent without credentials, where a 401 means bad credentials rather than
// an expired session.
func responseError(status int, body []byte, public bool) *Error {
	msg := extractMessage(body)
	e := &Error{Status: status}

	switch {
	case status == http.StatusUnauthorized && public:
		e.Kind = AuthenticationFailure
		e.Message = orDefault(msg, msgBadCredentials)
	case status == http.StatusUnauthorized:
		e.Kind = SessionExpired
		e.Message = msgSessionExpired
	case status == http.StatusForbidden:
		e.Kind = AuthorizationFailure
		e.Message = orDefault(msg, msgForbidden)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e.Kind = ValidationFailure
		e.Message = orDefault(msg, "The request was invalid.")
	case status >= 500:
		e.Kind = RequestFailure
		e.Message = orDefault(msg, msgUnexpected)
	default:
		e.Kind = RequestFailure
		e.Message = orDefault(msg, http.StatusText(status))
	}
	return e
}

// extractMessage pulls one readable string out of the error payload shapes
// the backend may produce: {"error":{"message"}}, {"detail": "..."},
// {"detail": [{"msg": "..."}]} and {"message": "..."}. Plain text bodies are
// used as-is when short.
func extractMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var payload struct {
		Error   json.RawMessage `json:"error"`
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if len(trimmed) <= 200 && !strings.HasPrefix(trimmed, "<") {
			return trimmed
		}
		return ""
	}

	if len(payload.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		var flat string
		if json.Unmarshal(payload.Error, &flat) == nil && flat != "" {
			return flat
		}
	}

	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil && s != "" {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}

	return payload.Message
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
