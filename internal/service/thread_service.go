package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dmclient/internal/domain"
	"dmclient/internal/metrics"
	"dmclient/internal/session"
	"dmclient/internal/thread"
	"dmclient/internal/validator"
)

const markReadTimeout = 10 * time.Second

// maxPending bounds the events held while the first page is in flight.
const maxPending = 256

// SessionSource yields the signed-in viewer.
type SessionSource interface {
	Current(ctx context.Context) (*session.Session, error)
}

type UpdateKind int

const (
	UpdateReset UpdateKind = iota
	UpdatePrepend
	UpdateAppend
	UpdateChange
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateReset:
		return "reset"
	case UpdatePrepend:
		return "prepend"
	case UpdateAppend:
		return "append"
	case UpdateChange:
		return "change"
	}
	return "unknown"
}

// Update tells a view what changed in the thread so it can anchor scroll.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	Count          int
}

// ThreadService keeps one open conversation in sync: history pages from the
// REST API, live events from the feed and the viewer's own actions all land
// in a single Store.
type ThreadService struct {
	api       domain.MessageAPI
	feeds     domain.FeedDialer
	sessions  SessionSource
	metrics   *metrics.Collector
	log       zerolog.Logger
	validator *validator.Validator

	mu         sync.Mutex
	gen        uint64
	convCtx    context.Context
	cancel     context.CancelFunc
	peerID     string
	viewerID   string
	peer       *domain.User
	store      *thread.Store
	fetcher    *thread.Fetcher
	cursor     *string
	loaded     bool
	pending    []domain.Event
	feed       domain.LiveFeed
	lastErr    error
	purchasing map[string]struct{}
	closed     bool
	onUpdate   func(Update)

	bg sync.WaitGroup
}

func NewThreadService(
	api domain.MessageAPI,
	feeds domain.FeedDialer,
	sessions SessionSource,
	m *metrics.Collector,
	log zerolog.Logger,
) *ThreadService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &ThreadService{
		api:        api,
		feeds:      feeds,
		sessions:   sessions,
		metrics:    m,
		log:        log,
		validator:  validator.New(),
		store:      thread.NewStore(),
		purchasing: make(map[string]struct{}),
	}
}

// OnUpdate registers the callback run after every change to the thread. It
// is called without internal locks held.
func (s *ThreadService) OnUpdate(fn func(Update)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

func (s *ThreadService) emit(u Update) {
	s.mu.Lock()
	fn := s.onUpdate
	s.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// Open switches to the conversation with userID. Everything that belongs to
// the previous conversation is dropped, including responses still in
// flight. A failing peer lookup or first page is returned and kept as
// LastError; a failing feed only costs live updates.
func (s *ThreadService) Open(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	viewer, err := s.sessions.Current(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrFeedClosed
	}
	old := s.leaveLocked()
	s.gen++
	gen := s.gen
	s.convCtx, s.cancel = context.WithCancel(context.Background())
	convCtx := s.convCtx
	s.peerID = userID
	s.viewerID = viewer.UserID
	s.peer = nil
	s.store.Reset()
	s.fetcher = thread.NewFetcher(s.api)
	fetcher := s.fetcher
	s.cursor = nil
	s.loaded = false
	s.pending = nil
	s.lastErr = nil
	s.purchasing = make(map[string]struct{})
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	s.emit(Update{Kind: UpdateReset, ConversationID: userID})

	octx, stop := scoped(ctx, convCtx)
	defer stop()

	var (
		peer *domain.User
		page *domain.Page
		feed domain.LiveFeed
	)
	g, gctx := errgroup.WithContext(octx)
	g.Go(func() error {
		u, err := s.api.GetUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		peer = u
		return nil
	})
	g.Go(func() error {
		p, _, err := fetcher.Fetch(gctx, userID, nil)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		page = p
		return nil
	})
	if s.feeds != nil {
		g.Go(func() error {
			// the feed outlives this call, so it is bound to the conversation
			f, err := s.feeds.Subscribe(convCtx, userID, s.eventHandler(gen))
			if err != nil {
				s.log.Warn().Err(err).Str("peer", userID).Msg("thread: live feed unavailable")
				return nil
			}
			feed = f
			return nil
		})
	}
	err = g.Wait()

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		if feed != nil {
			_ = feed.Close()
		}
		s.metrics.StaleDiscarded.Inc()
		s.log.Debug().Str("peer", userID).Msg("thread: discarded superseded open")
		return nil
	}
	s.feed = feed
	s.peer = peer
	if err != nil {
		s.lastErr = err
	} else if page != nil {
		s.store.ApplyHistoryPage(page.Messages, true)
		s.cursor = page.NextCursor
		s.metrics.HistoryPages.Inc()
	}
	s.loaded = true
	for _, ev := range s.pending {
		s.applyEventLocked(ev)
	}
	s.pending = nil
	count := s.store.Len()
	s.mu.Unlock()

	s.log.Debug().Str("peer", userID).Int("messages", count).Bool("live", feed != nil).Msg("thread: opened")
	s.emit(Update{Kind: UpdateReset, ConversationID: userID, Count: count})
	return err
}

// leaveLocked cancels the current conversation and detaches its feed. The
// caller closes the returned feed after unlocking.
func (s *ThreadService) leaveLocked() domain.LiveFeed {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	f := s.feed
	s.feed = nil
	return f
}

// scoped returns a context that ends with ctx or when conv ends.
func scoped(ctx, conv context.Context) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(conv, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

func (s *ThreadService) eventHandler(gen uint64) func(domain.Event) {
	return func(ev domain.Event) {
		s.mu.Lock()
		if gen != s.gen || s.closed {
			s.mu.Unlock()
			s.metrics.StaleDiscarded.Inc()
			return
		}
		if !s.loaded {
			// replayed once the first page is in
			if len(s.pending) >= maxPending {
				peer := s.peerID
				s.mu.Unlock()
				s.metrics.EventsDropped.Inc()
				s.log.Warn().Str("peer", peer).Msg("thread: too many events before first page, dropping")
				return
			}
			s.pending = append(s.pending, ev)
			s.mu.Unlock()
			return
		}
		u, ok := s.applyEventLocked(ev)
		s.mu.Unlock()
		if ok {
			s.emit(u)
		}
	}
}

func (s *ThreadService) applyEventLocked(ev domain.Event) (Update, bool) {
	switch e := ev.(type) {
	case domain.DMEvent:
		if e.Message.ToUserID == "" {
			e.Message.ToUserID = s.counterpart(e.Message.FromUserID)
		}
		if !s.inConversation(e.Message) {
			s.log.Debug().Str("id", e.Message.ID).Msg("thread: event for another conversation")
			return Update{}, false
		}
		if s.store.ApplyLiveMessage(e.Message, s.viewerID) {
			return Update{Kind: UpdateAppend, ConversationID: s.peerID, Count: 1}, true
		}
	case domain.DMDeletedEvent:
		if s.store.ApplyDeletion(e.ID) {
			return Update{Kind: UpdateChange, ConversationID: s.peerID, Count: 1}, true
		}
	}
	return Update{}, false
}

// counterpart is the other participant of the open thread, or "" when
// userID is not part of it.
func (s *ThreadService) counterpart(userID string) string {
	switch userID {
	case s.peerID:
		return s.viewerID
	case s.viewerID:
		return s.peerID
	}
	return ""
}

func (s *ThreadService) inConversation(m domain.Message) bool {
	return (m.FromUserID == s.peerID && m.ToUserID == s.viewerID) ||
		(m.FromUserID == s.viewerID && m.ToUserID == s.peerID)
}

// LoadOlder prepends the next page of history. It reports false without
// fetching when there is nothing older or a fetch is already running.
func (s *ThreadService) LoadOlder(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.peerID == "" {
		s.mu.Unlock()
		return false, domain.ErrNoConversation
	}
	if s.cursor == nil || !s.loaded {
		s.mu.Unlock()
		return false, nil
	}
	gen, peerID, cursor, fetcher, convCtx := s.gen, s.peerID, *s.cursor, s.fetcher, s.convCtx
	s.mu.Unlock()

	fctx, stop := scoped(ctx, convCtx)
	defer stop()
	page, fetched, err := fetcher.Fetch(fctx, peerID, &cursor)
	if !fetched {
		return false, nil
	}

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		s.metrics.StaleDiscarded.Inc()
		return false, nil
	}
	if err != nil {
		s.lastErr = fmt.Errorf("load history: %w", err)
		s.mu.Unlock()
		return false, err
	}
	n := s.store.ApplyHistoryPage(page.Messages, false)
	s.cursor = page.NextCursor
	s.lastErr = nil
	s.mu.Unlock()

	s.metrics.HistoryPages.Inc()
	s.emit(Update{Kind: UpdatePrepend, ConversationID: peerID, Count: n})
	return true, nil
}

// SendText posts a plaintext message over the live feed, or through the REST
// API when no feed is connected.
func (s *ThreadService) SendText(ctx context.Context, text string) error {
	if err := s.validator.ValidateText(text); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	s.mu.Lock()
	gen, peerID, feed := s.gen, s.peerID, s.feed
	s.mu.Unlock()
	if peerID == "" {
		return domain.ErrNoConversation
	}

	if feed != nil {
		err := feed.Send(ctx, domain.OutgoingDM{Type: "dm", ToUserID: peerID, Text: text})
		if err == nil {
			// the echo arrives as a live event
			return nil
		}
		s.log.Warn().Err(err).Msg("thread: socket send failed, using rest")
	}

	msg, err := s.api.SendMessage(ctx, peerID, domain.SendInput{Text: text})
	if err != nil {
		return err
	}
	s.mergeSent(gen, *msg)
	return nil
}

// SendMedia uploads attachments with optional text and price.
func (s *ThreadService) SendMedia(ctx context.Context, in domain.SendInput) error {
	if err := s.validator.ValidateSendInput(in); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	s.mu.Lock()
	gen, peerID := s.gen, s.peerID
	s.mu.Unlock()
	if peerID == "" {
		return domain.ErrNoConversation
	}

	msg, err := s.api.SendMessage(ctx, peerID, in)
	if err != nil {
		return err
	}
	s.mergeSent(gen, *msg)
	return nil
}

func (s *ThreadService) mergeSent(gen uint64, msg domain.Message) {
	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		s.metrics.StaleDiscarded.Inc()
		return
	}
	added := s.store.ApplyLiveMessage(msg, s.viewerID)
	peerID := s.peerID
	s.mu.Unlock()
	if added {
		s.emit(Update{Kind: UpdateAppend, ConversationID: peerID, Count: 1})
	}
}

// MarkRead sends a read receipt in the background. Failures are only logged.
func (s *ThreadService) MarkRead(ctx context.Context) {
	s.mu.Lock()
	peerID, closed := s.peerID, s.closed
	s.mu.Unlock()
	if peerID == "" || closed {
		return
	}

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markReadTimeout)
		defer cancel()
		if err := s.api.MarkRead(rctx, peerID); err != nil {
			s.log.Debug().Err(err).Str("peer", peerID).Msg("thread: mark read failed")
		}
	}()
}

// Delete removes one of the viewer's own messages. The local copy turns into
// a tombstone only after the server confirms.
func (s *ThreadService) Delete(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if s.peerID == "" {
		s.mu.Unlock()
		return domain.ErrNoConversation
	}
	m, ok := s.store.Get(messageID)
	gen, viewerID := s.gen, s.viewerID
	s.mu.Unlock()

	switch {
	case !ok:
		return domain.ErrNotFound
	case m.FromUserID != viewerID:
		return domain.ErrForbidden
	case m.Deleted:
		return domain.ErrMessageDeleted
	}

	err := s.api.DeleteMessage(ctx, messageID)
	if err != nil && !errors.Is(err, domain.ErrMessageDeleted) {
		return err
	}

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		s.metrics.StaleDiscarded.Inc()
		return err
	}
	changed := s.store.ApplyDeletion(messageID)
	peerID := s.peerID
	s.mu.Unlock()
	if changed {
		s.emit(Update{Kind: UpdateChange, ConversationID: peerID, Count: 1})
	}
	return err
}

// Purchase pays for the locked media of a message and unlocks it in place.
// A message that is already unlocked is left alone.
func (s *ThreadService) Purchase(ctx context.Context, messageID string, method domain.PaymentMethod) error {
	if err := s.validator.ValidatePaymentMethod(method); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	s.mu.Lock()
	if s.peerID == "" {
		s.mu.Unlock()
		return domain.ErrNoConversation
	}
	m, ok := s.store.Get(messageID)
	if !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	if thread.MediaStateFor(m, s.viewerID) == thread.MediaUnlocked {
		s.mu.Unlock()
		return nil
	}
	inflight := s.purchasing
	if _, busy := inflight[messageID]; busy {
		s.mu.Unlock()
		return domain.ErrPurchaseInFlight
	}
	inflight[messageID] = struct{}{}
	gen := s.gen
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(inflight, messageID)
		s.mu.Unlock()
	}()

	if err := s.api.Purchase(ctx, messageID, method); err != nil {
		s.metrics.PurchaseResults.WithLabelValues("failed").Inc()
		s.log.Info().Err(err).Str("id", messageID).Msg("thread: purchase failed")
		return err
	}
	s.metrics.PurchaseResults.WithLabelValues("ok").Inc()

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		s.metrics.StaleDiscarded.Inc()
		return nil
	}
	s.store.MarkUnlocked(messageID)
	peerID := s.peerID
	s.mu.Unlock()
	s.emit(Update{Kind: UpdateChange, ConversationID: peerID, Count: 1})
	return nil
}

// Messages returns the thread in display order.
func (s *ThreadService) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Messages()
}

// Message returns a single message of the open thread.
func (s *ThreadService) Message(id string) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

func (s *ThreadService) Peer() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return domain.User{}, false
	}
	return *s.peer, true
}

func (s *ThreadService) PeerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

func (s *ThreadService) ViewerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewerID
}

// HasMore reports whether older history is available.
func (s *ThreadService) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor != nil
}

// Live reports whether a live feed is attached.
func (s *ThreadService) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feed != nil
}

// LastError is the last page-level failure, cleared by a successful load.
func (s *ThreadService) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// MediaState reports whether the viewer may see the media of a message.
func (s *ThreadService) MediaState(id string) (thread.MediaState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.store.Get(id)
	if !ok {
		return thread.MediaUnlocked, false
	}
	return thread.MediaStateFor(m, s.viewerID), true
}

// Close leaves the conversation. Events arriving later are ignored.
func (s *ThreadService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	feed := s.leaveLocked()
	s.mu.Unlock()

	var err error
	if feed != nil {
		err = feed.Close()
	}
	s.bg.Wait()
	return err
}
