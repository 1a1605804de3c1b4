package thread

import (
	"context"
	"sync/atomic"

	"dmclient/internal/domain"
)

// PageSource loads one page of history for a conversation.
type PageSource interface {
	FetchPage(ctx context.Context, userID string, cursor *string) (*domain.Page, error)
}

// Fetcher guards a PageSource with a busy flag. A call made while another
// one is in flight returns immediately without fetching; calls are never
// queued.
type Fetcher struct {
	src  PageSource
	busy atomic.Bool
}

func NewFetcher(src PageSource) *Fetcher {
	return &Fetcher{src: src}
}

// Fetch loads the page before cursor. fetched is false when the call was
// dropped because a fetch was already running.
func (f *Fetcher) Fetch(ctx context.Context, userID string, cursor *string) (page *domain.Page, fetched bool, err error) {
	if !f.busy.CompareAndSwap(false, true) {
		return nil, false, nil
	}
	defer f.busy.Store(false)

	page, err = f.src.FetchPage(ctx, userID, cursor)
	if err != nil {
		return nil, true, err
	}
	return page, true, nil
}

// Busy reports whether a fetch is in flight.
func (f *Fetcher) Busy() bool {
	return f.busy.Load()
}
