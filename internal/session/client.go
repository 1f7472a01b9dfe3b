package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tailingsiq/tailingsiq/internal/models"
	"github.com/tailingsiq/tailingsiq/internal/rbac"
)

const maxResponseBytes = 1 << 20

// TokenResponse is the body of a successful login or refresh.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// Client is a typed wrapper over the backend's auth and admin endpoints.
// Credentials are attached by the http.Client's transport, not here.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, http: httpClient}, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	var out TokenResponse
	body := map[string]string{"username": username, "password": password}
	if err := c.do(WithoutCredentials(ctx), http.MethodPost, "auth/login", nil, body, &out); err != nil {
		return nil, err
	}
	if err := checkTokenResponse(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout sends token explicitly so it can run after local state was cleared.
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return c.doWithHeader(ctx, http.MethodPost, "auth/logout", "Bearer "+token, nil, nil)
}

func (c *Client) Refresh(ctx context.Context) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "auth/refresh", nil, nil, &out); err != nil {
		return nil, err
	}
	if err := checkTokenResponse(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	if err := checkUser(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPut, "auth/profile", nil, update, &out); err != nil {
		return nil, err
	}
	if err := checkUser(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	return c.do(ctx, http.MethodPost, "auth/change-password", nil, body, nil)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(WithoutCredentials(ctx), http.MethodPost, "auth/request-password-reset", nil, body, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "new_password": newPassword}
	return c.do(WithoutCredentials(ctx), http.MethodPost, "auth/reset-password", nil, body, nil)
}

func (c *Client) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	q := url.Values{}
	if filter.Role != "" {
		q.Set("role", string(filter.Role))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Organization != "" {
		q.Set("organization", filter.Organization)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}

	var out []models.User
	if err := c.do(ctx, http.MethodGet, "admin/users", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, userPath(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateUser(ctx context.Context, in models.UserCreate) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPost, "admin/users", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateUser(ctx context.Context, id int64, in models.UserUpdate) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodPut, userPath(id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, userPath(id), nil, nil, nil)
}

// ResetUserPassword returns the temporary password the server generated.
func (c *Client) ResetUserPassword(ctx context.Context, id int64) (string, error) {
	var out struct {
		TemporaryPassword string `json:"temporary_password"`
	}
	if err := c.do(ctx, http.MethodPost, userPath(id)+"/reset-password", nil, nil, &out); err != nil {
		return "", err
	}
	return out.TemporaryPassword, nil
}

func userPath(id int64) string {
	return "admin/users/" + strconv.FormatInt(id, 10)
}

func checkTokenResponse(out *TokenResponse) error {
	if out.AccessToken == "" || out.User == nil {
		return &Error{Kind: RequestFailure, Message: "The server returned an incomplete login response."}
	}
	return checkUser(out.User)
}

// checkUser rejects a user the session could not authorize against.
func checkUser(u *models.User) error {
	if u.ID == 0 || !rbac.IsValidRole(u.Role) {
		return &Error{Kind: RequestFailure, Message: "The server returned an incomplete user record."}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.send(ctx, method, path, query, "", in, out)
}

func (c *Client) doWithHeader(ctx context.Context, method, path, authorization string, in, out any) error {
	return c.send(ctx, method, path, nil, authorization, in, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, authorization string, in, out any) error {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Kind: ValidationFailure, Message: "The request could not be encoded.", Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Kind: ValidationFailure, Message: "The request could not be built.", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, data, isPublic(ctx))
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{
				Kind:    RequestFailure,
				Status:  resp.StatusCode,
				Message: "The server returned an unexpected response.",
				Err:     err,
			}
		}
	}
	return nil
}
