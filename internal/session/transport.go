package session

import (
	"context"
	"net/http"
)

// TokenSource yields the bearer token to attach, or "" when there is none.
type TokenSource interface {
	Token() string
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string { return f() }

type ctxKey int

const publicRequestKey ctxKey = iota

// WithoutCredentials marks requests made with ctx as public: the transport
// sends them without a bearer token and does not treat a 401 as expiry.
func WithoutCredentials(ctx context.Context) context.Context {
	return context.WithValue(ctx, publicRequestKey, true)
}

func isPublic(ctx context.Context) bool {
	v, _ := ctx.Value(publicRequestKey).(bool)
	return v
}

// Transport is the process-wide request interceptor. Every request that
// goes through it gets the current token as a bearer credential, and every
// 401 answering a credentialed request is reported to OnUnauthorized with
// the token that was rejected.
type Transport struct {
	Base           http.RoundTripper
	Source         TokenSource
	OnUnauthorized func(rejected string)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var token string
	if !isPublic(req.Context()) && req.Header.Get("Authorization") == "" && t.Source != nil {
		token = t.Source.Token()
	}

	if token != "" {
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && token != "" && t.OnUnauthorized != nil {
		t.OnUnauthorized(token)
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
