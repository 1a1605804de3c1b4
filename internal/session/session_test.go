package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmclient/internal/domain"
	"dmclient/internal/security"
	"dmclient/internal/session"
	"dmclient/internal/store/sqlite"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	sealer, err := security.NewSealer([]byte("test secret"), time.Hour)
	require.NoError(t, err)
	return session.NewManager(sqlite.NewSessionRepo(db), sealer, security.NewTokenReader())
}

func token(t *testing.T, sub string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}).SignedString([]byte("server"))
	require.NoError(t, err)
	return tok
}

func TestManager(t *testing.T) {
	ctx := context.Background()

	t.Run("NoSession", func(t *testing.T) {
		m := newManager(t)
		_, err := m.Current(ctx)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("LoginPersists", func(t *testing.T) {
		m := newManager(t)
		tok := token(t, "viewer-7", time.Hour)

		s, err := m.Login(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, "viewer-7", s.UserID)

		got, err := m.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, tok, got)

		require.NoError(t, m.Logout(ctx))
		_, err = m.Current(ctx)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		m := newManager(t)
		_, err := m.Login(ctx, token(t, "viewer-7", -time.Minute))
		assert.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		m := newManager(t)
		_, err := m.Use("garbage")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestManagerReloadsFromStorage(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, sqlite.Migrate(db))

	sealer, err := security.NewSealer([]byte("test secret"), time.Hour)
	require.NoError(t, err)
	repo := sqlite.NewSessionRepo(db)

	first := session.NewManager(repo, sealer, security.NewTokenReader())
	_, err = first.Login(ctx, token(t, "viewer-9", time.Hour))
	require.NoError(t, err)

	second := session.NewManager(repo, sealer, security.NewTokenReader())
	s, err := second.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "viewer-9", s.UserID)

	otherSealer, err := security.NewSealer([]byte("different"), time.Hour)
	require.NoError(t, err)
	third := session.NewManager(repo, otherSealer, security.NewTokenReader())
	_, err = third.Current(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}
