package thread

import (
	"dmclient/internal/domain"
)

// Store is the ordered, deduplicated message list of the open thread.
// Older history pages are prepended and live arrivals appended; the list is
// never re-sorted by timestamp. Store is not safe for concurrent use; the
// owner serializes access.
type Store struct {
	messages []domain.Message
	seen     map[string]struct{}
}

func NewStore() *Store {
	return &Store{seen: make(map[string]struct{})}
}

// Reset discards every message and the dedup set.
func (s *Store) Reset() {
	s.messages = nil
	s.seen = make(map[string]struct{})
}

// ApplyHistoryPage merges a page of history. The first page replaces the
// list; later pages go in front of it. Ids that are already present are
// skipped. It returns the number of messages added.
func (s *Store) ApplyHistoryPage(msgs []domain.Message, isFirstPage bool) int {
	if isFirstPage {
		s.Reset()
	}

	fresh := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, ok := s.seen[m.ID]; ok {
			continue
		}
		s.seen[m.ID] = struct{}{}
		if m.Deleted {
			m.Tombstone()
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		return 0
	}

	if isFirstPage {
		s.messages = fresh
	} else {
		s.messages = append(fresh, s.messages...)
	}
	return len(fresh)
}

// ApplyLiveMessage appends a message received outside of history paging.
// The echo of a message that is already present is ignored. Priced media
// from the other participant starts locked.
func (s *Store) ApplyLiveMessage(msg domain.Message, viewerID string) bool {
	if _, ok := s.seen[msg.ID]; ok {
		return false
	}
	if msg.FromUserID == viewerID {
		msg.IsUnlocked = true
	} else {
		msg.IsUnlocked = !msg.IsMonetized()
	}
	if msg.Deleted {
		msg.Tombstone()
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append(s.messages, msg)
	return true
}

// ApplyDeletion tombstones the message in place. Position and list length
// do not change.
func (s *Store) ApplyDeletion(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.messages[i].Tombstone()
	return true
}

// MarkUnlocked flips the unlock flag after a confirmed purchase.
func (s *Store) MarkUnlocked(id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.messages[i].IsUnlocked = true
	return true
}

// Get returns a copy of the message with the given id.
func (s *Store) Get(id string) (domain.Message, bool) {
	i := s.index(id)
	if i < 0 {
		return domain.Message{}, false
	}
	return s.messages[i], true
}

// Contains reports whether id has been merged, including tombstones.
func (s *Store) Contains(id string) bool {
	_, ok := s.seen[id]
	return ok
}

func (s *Store) Len() int {
	return len(s.messages)
}

// Messages returns a copy of the ordered list.
func (s *Store) Messages() []domain.Message {
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// index scans from the end; recent messages are the usual targets.
func (s *Store) index(id string) int {
	if _, ok := s.seen[id]; !ok {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}
