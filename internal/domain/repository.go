package domain

import (
	"context"
	"time"
)

// MessageAPI defines the REST operations the thread needs.
type MessageAPI interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	FetchPage(ctx context.Context, userID string, cursor *string) (*Page, error)
	SendMessage(ctx context.Context, userID string, in SendInput) (*Message, error)
	Purchase(ctx context.Context, messageID string, method PaymentMethod) error
	DeleteMessage(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context, userID string) error
}

// LiveFeed is an open push connection for one conversation.
type LiveFeed interface {
	Send(ctx context.Context, dm OutgoingDM) error
	Close() error
}

// FeedDialer opens a live feed and delivers decoded events to handle.
type FeedDialer interface {
	Subscribe(ctx context.Context, userID string, handle func(Event)) (LiveFeed, error)
}

// StoredSession is a sealed session token at rest.
type StoredSession struct {
	Key       string
	Sealed    string
	UpdatedAt time.Time
}

// SessionRepository defines persistence operations for session state.
type SessionRepository interface {
	Put(ctx context.Context, s *StoredSession) error
	Get(ctx context.Context, key string) (*StoredSession, error)
	Delete(ctx context.Context, key string) error
}
