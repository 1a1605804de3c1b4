package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dmclient/internal/domain"
	"dmclient/internal/security"
)

const currentKey = "current"

// Session is the signed-in viewer.
type Session struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// Manager is the single owner of auth state. Everything that needs the
// viewer id or the access token asks the manager; nothing reads storage
// directly.
type Manager struct {
	repo   domain.SessionRepository
	sealer *security.Sealer
	tokens *security.TokenReader
	now    func() time.Time

	mu      sync.RWMutex
	current *Session
}

func NewManager(repo domain.SessionRepository, sealer *security.Sealer, tokens *security.TokenReader) *Manager {
	return &Manager{repo: repo, sealer: sealer, tokens: tokens, now: time.Now}
}

// Login validates token, persists it sealed and makes it current.
func (m *Manager) Login(ctx context.Context, token string) (*Session, error) {
	s, err := m.Use(token)
	if err != nil {
		return nil, err
	}
	sealed, err := m.sealer.Seal(token)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Put(ctx, &domain.StoredSession{Key: currentKey, Sealed: sealed, UpdatedAt: m.now()}); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return s, nil
}

// Use makes token current for this process without persisting it.
func (m *Manager) Use(token string) (*Session, error) {
	s, err := m.fromToken(token)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s, nil
}

// Current returns the active session, loading it from storage on first use.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if s != nil {
		if !s.ExpiresAt.IsZero() && !m.now().Before(s.ExpiresAt) {
			return nil, domain.ErrSessionExpired
		}
		return s, nil
	}

	stored, err := m.repo.Get(ctx, currentKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	token, err := m.sealer.Open(stored.Sealed)
	if err != nil {
		return nil, domain.ErrSessionExpired
	}
	return m.Use(token)
}

// Token implements the API client's token source.
func (m *Manager) Token(ctx context.Context) (string, error) {
	s, err := m.Current(ctx)
	if err != nil {
		return "", err
	}
	return s.Token, nil
}

// Logout forgets the session in memory and in storage.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.repo.Delete(ctx, currentKey)
}

func (m *Manager) fromToken(token string) (*Session, error) {
	claims, err := m.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if claims.Expired(m.now()) {
		return nil, domain.ErrSessionExpired
	}
	return &Session{Token: token, UserID: claims.Subject, ExpiresAt: claims.ExpiresAt}, nil
}
