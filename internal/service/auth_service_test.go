package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
)

func newAuth() *AuthService {
	return NewAuthService(&config.Config{JWTSecret: "test-secret", JWTExpiry: time.Hour})
}

func TestAuthService_StudentRoundTrip(t *testing.T) {
	auth := newAuth()

	tok, err := auth.GenerateStudentToken(42)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeStudent, claims.TokenType)
	assert.Equal(t, 42, claims.UserID)
	assert.Equal(t, "42", claims.Subject)
	assert.Empty(t, claims.Permissions)
}

func TestAuthService_AdminPermissions(t *testing.T) {
	auth := newAuth()

	tok, err := auth.GenerateAdminToken(7, []string{"exams:read"})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAdmin, claims.TokenType)
	assert.True(t, claims.HasPermission("exams:read"))
	assert.False(t, claims.HasPermission("settings:write"))
}

func TestAuthService_Rejects(t *testing.T) {
	auth := newAuth()
	tok, err := auth.GenerateStudentToken(42)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour})
		_, err := other.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		late := newAuth()
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := auth.ValidateToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
