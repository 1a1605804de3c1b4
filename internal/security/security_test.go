package security_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmclient/internal/security"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}

func TestTokenReader(t *testing.T) {
	r := security.NewTokenReader()

	t.Run("Success", func(t *testing.T) {
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		claims, err := r.Parse(signToken(t, jwt.MapClaims{"sub": "viewer-1", "exp": exp.Unix()}))
		require.NoError(t, err)
		assert.Equal(t, "viewer-1", claims.Subject)
		assert.True(t, exp.Equal(claims.ExpiresAt))
		assert.False(t, claims.Expired(time.Now()))
		assert.True(t, claims.Expired(exp))
	})

	t.Run("NoExpiry", func(t *testing.T) {
		claims, err := r.Parse(signToken(t, jwt.MapClaims{"sub": "viewer-1"}))
		require.NoError(t, err)
		assert.True(t, claims.ExpiresAt.IsZero())
		assert.False(t, claims.Expired(time.Now().Add(1000*time.Hour)))
	})

	t.Run("MissingSubject", func(t *testing.T) {
		_, err := r.Parse(signToken(t, jwt.MapClaims{"iat": time.Now().Unix()}))
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := r.Parse("not-a-jwt")
		assert.Error(t, err)
	})
}

func TestSealer(t *testing.T) {
	s, err := security.NewSealer([]byte("local secret"), time.Hour)
	require.NoError(t, err)

	sealed, err := s.Seal("token-value")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "token-value")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token-value", plain)

	other, err := security.NewSealer([]byte("another secret"), time.Hour)
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, security.ErrSealInvalid)

	_, err = security.NewSealer(nil, time.Hour)
	assert.Error(t, err)
}
