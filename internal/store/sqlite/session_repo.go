package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dmclient/internal/domain"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var _ domain.SessionRepository = (*SessionRepo)(nil)

func (r *SessionRepo) Put(ctx context.Context, s *domain.StoredSession) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	query := `
		INSERT INTO sessions (key, sealed, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, s.Key, s.Sealed, s.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, key string) (*domain.StoredSession, error) {
	var (
		s       = &domain.StoredSession{Key: key}
		updated int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT sealed, updated_at FROM sessions WHERE key = ?`, key).
		Scan(&s.Sealed, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.UpdatedAt = time.Unix(updated, 0)
	return s, nil
}

func (r *SessionRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
