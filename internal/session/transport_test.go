package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	var gotAuth string
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(status)
	}))
	defer srv.Close()

	var rejected []string
	token := "t1"
	client := &http.Client{Transport: &Transport{
		Source:         TokenSourceFunc(func() string { return token }),
		OnUnauthorized: func(tok string) { rejected = append(rejected, tok) },
	}}

	do := func(ctx context.Context, header string) *http.Response {
		t.Helper()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, header, req.Header.Get("Authorization"), "caller's request was modified")
		return resp
	}

	t.Run("attaches bearer token", func(t *testing.T) {
		do(context.Background(), "")
		assert.Equal(t, "Bearer t1", gotAuth)
	})

	t.Run("no token no header", func(t *testing.T) {
		token = ""
		defer func() { token = "t1" }()
		do(context.Background(), "")
		assert.Empty(t, gotAuth)
	})

	t.Run("public requests go without credentials", func(t *testing.T) {
		do(WithoutCredentials(context.Background()), "")
		assert.Empty(t, gotAuth)
	})

	t.Run("explicit header wins", func(t *testing.T) {
		do(context.Background(), "Bearer other")
		assert.Equal(t, "Bearer other", gotAuth)
	})

	t.Run("401 reports the rejected token", func(t *testing.T) {
		status = http.StatusUnauthorized
		defer func() { status = http.StatusOK }()
		rejected = nil

		resp := do(context.Background(), "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, []string{"t1"}, rejected)
	})

	t.Run("401 on uncredentialed request is not expiry", func(t *testing.T) {
		status = http.StatusUnauthorized
		defer func() { status = http.StatusOK }()
		rejected = nil

		do(WithoutCredentials(context.Background()), "")
		do(context.Background(), "Bearer other")
		assert.Empty(t, rejected)
	})
}
