package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestInit_WritesRollingFile(t *testing.T) {
	prev, prevDefault := logger, slog.Default()
	t.Cleanup(func() {
		logger = prev
		slog.SetDefault(prevDefault)
	})

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	require.NoError(t, Init(&config.LoggingConfig{
		Level:    "info",
		Format:   "json",
		Filename: path,
		MaxSize:  1,
	}))

	Info("User logged in", "username", "superadmin")
	Debug("hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"User logged in"`)
	assert.Contains(t, string(data), `"username":"superadmin"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestWith(t *testing.T) {
	prev, prevDefault := logger, slog.Default()
	t.Cleanup(func() {
		logger = prev
		slog.SetDefault(prevDefault)
	})

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	With("component", "session").Info("Session restored")
	assert.Contains(t, buf.String(), "component=session")
}
