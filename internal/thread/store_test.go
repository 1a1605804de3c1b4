package thread_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmclient/internal/domain"
	"dmclient/internal/thread"
)

func msg(id, from string) domain.Message {
	return domain.Message{
		ID:         id,
		FromUserID: from,
		ToUserID:   "viewer",
		Text:       "text " + id,
		CreatedAt:  time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
	}
}

func page(prefix string, n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = msg(fmt.Sprintf("%s%d", prefix, i), "alice")
	}
	return out
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestStoreHistoryPaging(t *testing.T) {
	t.Run("first page replaces", func(t *testing.T) {
		s := thread.NewStore()
		s.ApplyHistoryPage(page("old", 3), true)
		added := s.ApplyHistoryPage(page("new", 2), true)

		assert.Equal(t, 2, added)
		assert.Equal(t, []string{"new0", "new1"}, ids(s.Messages()))
		assert.False(t, s.Contains("old0"))
	})

	t.Run("older pages are prepended in order", func(t *testing.T) {
		s := thread.NewStore()
		first := page("p1-", 20)
		s.ApplyHistoryPage(first, true)
		s.ApplyHistoryPage(page("p2-", 15), false)

		all := s.Messages()
		require.Len(t, all, 35)
		assert.Equal(t, ids(first), ids(all[15:]))
		assert.Equal(t, "p2-0", all[0].ID)
	})

	t.Run("deleted history arrives as tombstone", func(t *testing.T) {
		s := thread.NewStore()
		m := msg("m1", "alice")
		m.Deleted = true
		m.MediaItems = []domain.MediaItem{{MediaKey: "k", MediaType: domain.MediaImage}}
		s.ApplyHistoryPage([]domain.Message{m}, true)

		got, ok := s.Get("m1")
		require.True(t, ok)
		assert.Empty(t, got.Text)
		assert.Empty(t, got.MediaItems)
	})
}

func TestStoreDedupAcrossOrigins(t *testing.T) {
	s := thread.NewStore()
	s.ApplyHistoryPage([]domain.Message{msg("a", "alice"), msg("b", "viewer")}, true)

	assert.False(t, s.ApplyLiveMessage(msg("b", "viewer"), "viewer"), "echo of own message")
	assert.True(t, s.ApplyLiveMessage(msg("c", "alice"), "viewer"))
	assert.False(t, s.ApplyLiveMessage(msg("c", "alice"), "viewer"))

	// a live message that later shows up in an older page
	s.ApplyHistoryPage([]domain.Message{msg("z", "alice"), msg("c", "alice")}, false)

	seen := map[string]int{}
	for _, m := range s.Messages() {
		seen[m.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s", id)
	}
	assert.Equal(t, []string{"z", "a", "b", "c"}, ids(s.Messages()))
}

func TestStoreLiveUnlockDefaults(t *testing.T) {
	price := decimal.RequireFromString("5")
	priced := func(id, from string) domain.Message {
		m := msg(id, from)
		m.Price = &price
		m.MediaItems = []domain.MediaItem{{MediaKey: "img", MediaType: domain.MediaImage}}
		return m
	}

	s := thread.NewStore()
	s.ApplyLiveMessage(priced("locked", "alice"), "viewer")
	s.ApplyLiveMessage(priced("own", "viewer"), "viewer")
	noMedia := msg("plain", "alice")
	noMedia.Price = &price
	s.ApplyLiveMessage(noMedia, "viewer")

	m, _ := s.Get("locked")
	assert.False(t, m.IsUnlocked)
	m, _ = s.Get("own")
	assert.True(t, m.IsUnlocked)
	m, _ = s.Get("plain")
	assert.True(t, m.IsUnlocked)
}

func TestStoreDeletionKeepsPosition(t *testing.T) {
	price := decimal.RequireFromString("2.50")
	s := thread.NewStore()
	history := page("m", 5)
	history[2].Price = &price
	history[2].MediaItems = []domain.MediaItem{{MediaKey: "v", MediaType: domain.MediaVideo}}
	s.ApplyHistoryPage(history, true)

	require.True(t, s.ApplyDeletion("m2"))
	assert.False(t, s.ApplyDeletion("missing"))

	all := s.Messages()
	require.Len(t, all, 5)
	assert.Equal(t, ids(history), ids(all))
	assert.True(t, all[2].Deleted)
	assert.Empty(t, all[2].Text)
	assert.Nil(t, all[2].MediaItems)
	assert.Nil(t, all[2].Price)
}

func TestStoreMarkUnlocked(t *testing.T) {
	s := thread.NewStore()
	s.ApplyHistoryPage([]domain.Message{msg("m9", "alice")}, true)

	assert.True(t, s.MarkUnlocked("m9"))
	assert.False(t, s.MarkUnlocked("nope"))
	m, _ := s.Get("m9")
	assert.True(t, m.IsUnlocked)
}
