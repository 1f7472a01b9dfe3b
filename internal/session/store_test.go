package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	tok, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.Save("t1"))
	require.NoError(t, s.Save("t2"))
	tok, _ = s.Load()
	assert.Equal(t, "t2", tok)

	require.NoError(t, s.Clear())
	tok, _ = s.Load()
	assert.Empty(t, tok)
}

func TestFileStore(t *testing.T) {
	t.Run("missing file means logged out", func(t *testing.T) {
		s := NewFileStore(filepath.Join(t.TempDir(), "none", "session.yaml"))
		tok, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, tok)
		assert.NoError(t, s.Clear())
	})

	t.Run("round trip under fixed key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tailingsiq", "session.yaml")
		s := NewFileStore(path)

		require.NoError(t, s.Save("t1"))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), StorageKey+": t1")

		tok, err := NewFileStore(path).Load()
		require.NoError(t, err)
		assert.Equal(t, "t1", tok)
	})

	t.Run("save replaces and empty save clears", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.yaml")
		s := NewFileStore(path)

		require.NoError(t, s.Save("t1"))
		require.NoError(t, s.Save("t2"))
		tok, _ := s.Load()
		assert.Equal(t, "t2", tok)

		require.NoError(t, s.Save(""))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("clear removes file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.yaml")
		s := NewFileStore(path)
		require.NoError(t, s.Save("t1"))

		require.NoError(t, s.Clear())

		tok, err := s.Load()
		require.NoError(t, err)
		assert.Empty(t, tok)
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.yaml")
		require.NoError(t, os.WriteFile(path, []byte("token: [unclosed"), 0o600))

		_, err := NewFileStore(path).Load()
		assert.Error(t, err)
	})
}
