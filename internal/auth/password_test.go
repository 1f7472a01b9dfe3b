package auth

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/models"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("Str0ng!Pass")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng!Pass", hash)

	assert.True(t, CheckPassword(hash, "Str0ng!Pass"))
	assert.False(t, CheckPassword(hash, "str0ng!Pass"))
	assert.False(t, CheckPassword("not-a-hash", "Str0ng!Pass"))
}

func TestGenerateTemporaryPassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		pw, err := GenerateTemporaryPassword(temporaryPasswordLength)
		require.NoError(t, err)
		assert.Len(t, pw, temporaryPasswordLength)
		assert.NoError(t, models.DefaultPasswordPolicy.Validate(pw), pw)
		seen[pw] = true
	}
	assert.Greater(t, len(seen), 45)

	short, err := GenerateTemporaryPassword(1)
	require.NoError(t, err)
	assert.Len(t, short, 4)
}

func TestGenerateResetToken(t *testing.T) {
	a, err := generateResetToken()
	require.NoError(t, err)
	b, err := generateResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	raw, err := base64.RawURLEncoding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestHashString(t *testing.T) {
	assert.Equal(t, hashString("abc"), hashString("abc"))
	assert.NotEqual(t, hashString("abc"), hashString("abd"))
	assert.Len(t, hashString("abc"), 64)
}

func TestLink(t *testing.T) {
	s := &AuthService{publicURL: "https://tailingsiq.example.com/app"}
	assert.Equal(t, "https://tailingsiq.example.com/app/reset-password?token=abc-_", s.link("reset-password", url.Values{"token": {"abc-_"}}))
	assert.Equal(t, "https://tailingsiq.example.com/app/login", s.link("login", nil))

	s.publicURL = ""
	assert.Equal(t, "/reset-password?token=abc", s.link("reset-password", url.Values{"token": {"abc"}}))
}
