package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tailingsiq/tailingsiq/internal/auth"
	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

// Request represents a test HTTP request
type Request struct {
	Method      string
	Path        string
	Body        interface{}
	Headers     map[string]string
	QueryParams map[string]string
}

// Response represents a test HTTP response
type Response struct {
	*httptest.ResponseRecorder
	Body map[string]interface{}
}

// ErrorMessage returns error.message from an API error body.
func (r *Response) ErrorMessage() string {
	e, _ := r.Body["error"].(map[string]interface{})
	msg, _ := e["message"].(string)
	return msg
}

// ErrorCode returns error.code from an API error body.
func (r *Response) ErrorCode() string {
	e, _ := r.Body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

// MakeRequest runs req against handler and decodes a JSON object body
func MakeRequest(t *testing.T, handler http.Handler, req Request) *Response {
	t.Helper()

	var body *bytes.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq := httptest.NewRequest(req.Method, req.Path, body)

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.QueryParams != nil {
		q := httpReq.URL.Query()
		for key, value := range req.QueryParams {
			q.Add(key, value)
		}
		httpReq.URL.RawQuery = q.Encode()
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httpReq)

	var responseBody map[string]interface{}
	if recorder.Body.Len() > 0 && bytes.HasPrefix(bytes.TrimSpace(recorder.Body.Bytes()), []byte("{")) {
		if err := json.Unmarshal(recorder.Body.Bytes(), &responseBody); err != nil {
			t.Logf("Failed to decode response body: %v", err)
		}
	}

	return &Response{
		ResponseRecorder: recorder,
		Body:             responseBody,
	}
}

// AuthenticatedRequest adds a bearer token to req
func AuthenticatedRequest(t *testing.T, handler http.Handler, req Request, token string) *Response {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	req.Headers["Authorization"] = "Bearer " + token
	return MakeRequest(t, handler, req)
}

// ContextWithUser adds a test user to the context
func ContextWithUser(ctx context.Context, user *TestUser) context.Context {
	return auth.WithAuthenticatedUser(ctx, user.ToAuthenticatedUser())
}

// ContextWithRole adds a synthetic user with role to the context, for
// handler tests that never touch the user row.
func ContextWithRole(ctx context.Context, id int64, role rbac.Role) context.Context {
	return auth.WithAuthenticatedUser(ctx, &auth.AuthenticatedUser{
		User: &models.User{
			ID:       id,
			Username: string(role),
			Role:     role,
			Status:   models.StatusActive,
		},
		Claims: &auth.TokenClaims{UserID: id, Username: string(role), Role: role},
	})
}
