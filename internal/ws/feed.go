package ws

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmclient/internal/domain"
	"dmclient/internal/logging"
	"dmclient/internal/metrics"
)

// TokenSource yields the token put on the socket URL.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Options struct {
	URL    string
	Tokens TokenSource

	// Reconnect redials a dropped socket, waiting ReconnectMin at first and
	// doubling up to ReconnectMax.
	Reconnect    bool
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Collector
}

// Dialer opens one live feed per conversation.
type Dialer struct {
	opts   Options
	ws     *websocket.Dialer
	log    zerolog.Logger
	metric *metrics.Collector
}

var _ domain.FeedDialer = (*Dialer)(nil)

func NewDialer(opts Options) *Dialer {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Dialer{
		opts:   opts,
		ws:     &websocket.Dialer{Proxy: websocket.DefaultDialer.Proxy, HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout},
		log:    opts.Logger,
		metric: m,
	}
}

// Subscribe dials the feed for userID and starts delivering events to handle
// on a background goroutine. The feed lives until Close or until ctx ends.
func (d *Dialer) Subscribe(ctx context.Context, userID string, handle func(domain.Event)) (domain.LiveFeed, error) {
	conn, err := d.dial(ctx, userID)
	if err != nil {
		return nil, err
	}

	fctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		d:      d,
		userID: userID,
		handle: handle,
		ctx:    fctx,
		cancel: cancel,
		conn:   conn,
		done:   make(chan struct{}),
	}
	go f.run(conn)
	go func() {
		<-fctx.Done()
		f.closeConn()
	}()
	return f, nil
}

func (d *Dialer) dial(ctx context.Context, userID string) (*websocket.Conn, error) {
	u := d.opts.URL + "/messages/" + url.PathEscape(userID)
	if d.opts.Tokens != nil {
		token, err := d.opts.Tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		u += "?" + url.Values{"token": []string{token}}.Encode()
	}

	conn, resp, err := d.ws.DialContext(ctx, u, nil)
	if err != nil {
		ev := d.log.Warn().Err(err).Str("url", logging.RedactURL(u))
		if resp != nil {
			ev = ev.Int("status", resp.StatusCode)
		}
		ev.Msg("ws: dial failed")
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	d.log.Debug().Str("url", logging.RedactURL(u)).Msg("ws: connected")
	return conn, nil
}

// Feed is an open live feed for one conversation.
type Feed struct {
	d      *Dialer
	userID string
	handle func(domain.Event)
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	done chan struct{}
}

var _ domain.LiveFeed = (*Feed)(nil)

// Send posts a plaintext message over the socket. Writes are serialized.
func (f *Feed) Send(ctx context.Context, dm domain.OutgoingDM) error {
	if dm.Type == "" {
		dm.Type = EventDM
	}
	f.mu.Lock()
	conn, closed := f.conn, f.closed
	f.mu.Unlock()
	if closed {
		return domain.ErrFeedClosed
	}
	if conn == nil {
		return fmt.Errorf("%w: reconnecting", domain.ErrFeedClosed)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{}) //nolint:errcheck // .
	}
	if err := conn.WriteJSON(dm); err != nil {
		return fmt.Errorf("ws write: %w", err)
	}
	return nil
}

// Close stops delivery and closes the socket. An event read just before Close
// may still reach the handler; owners guard by generation.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.closeConn()
	return nil
}

// Done is closed once the read loop has exited for good.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) closeConn() {
	f.mu.Lock()
	conn := f.conn
	f.conn = nil
	f.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (f *Feed) run(conn *websocket.Conn) {
	defer close(f.done)
	for conn != nil {
		f.read(conn)
		f.mu.Lock()
		if f.conn == conn {
			f.conn = nil
		}
		f.mu.Unlock()
		_ = conn.Close()

		if !f.d.opts.Reconnect || f.ctx.Err() != nil {
			return
		}
		conn = f.redial()
	}
}

func (f *Feed) read(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if f.ctx.Err() == nil {
				f.d.log.Info().Err(err).Str("peer", f.userID).Msg("ws: connection lost")
			}
			return
		}
		ev, err := DecodeEvent(data)
		if err != nil {
			f.d.metric.EventsDropped.Inc()
			f.d.log.Debug().Err(err).Msg("ws: frame dropped")
			continue
		}
		f.deliver(ev)
	}
}

func (f *Feed) deliver(ev domain.Event) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed || f.ctx.Err() != nil {
		return
	}
	f.d.metric.EventsReceived.WithLabelValues(domain.EventType(ev)).Inc()
	f.handle(ev)
}

// redial retries until a socket is up or the feed is closed.
func (f *Feed) redial() *websocket.Conn {
	delay := f.d.opts.ReconnectMin
	for {
		t := time.NewTimer(delay)
		select {
		case <-f.ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		f.d.metric.FeedReconnects.Inc()
		conn, err := f.d.dial(f.ctx, f.userID)
		if err == nil {
			f.mu.Lock()
			if f.closed || f.ctx.Err() != nil {
				f.mu.Unlock()
				_ = conn.Close()
				return nil
			}
			f.conn = conn
			f.mu.Unlock()
			f.d.log.Info().Str("peer", f.userID).Msg("ws: reconnected")
			return conn
		}
		delay = nextDelay(delay, f.d.opts.ReconnectMax)
	}
}

func nextDelay(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}
