package thread

import "sync/atomic"

const (
	DefaultNearBottom = 120
	DefaultNearTop    = 40
)

// Viewport is the scrolling surface the thread is rendered into. Units are
// whatever the renderer measures in (pixels, terminal lines).
type Viewport interface {
	ScrollHeight() int
	ScrollTop() int
	ClientHeight() int
	SetScrollTop(top int)
}

// Scheduler defers work until the renderer has caught up. AfterFrame runs
// after the next paint, AfterTick after a zero-delay timer.
type Scheduler interface {
	AfterFrame(fn func())
	AfterTick(fn func())
}

// ImmediateScheduler runs callbacks inline, for renderers that lay out
// synchronously.
type ImmediateScheduler struct{}

func (ImmediateScheduler) AfterFrame(fn func()) { fn() }
func (ImmediateScheduler) AfterTick(fn func())  { fn() }

// ScrollAnchor keeps the viewport visually stable while the thread grows at
// either end. It belongs to the view's event loop and is not safe for
// concurrent use, except for the load-older lock.
type ScrollAnchor struct {
	vp         Viewport
	sched      Scheduler
	nearBottom int
	nearTop    int

	gen      uint64
	settled  bool
	settling bool
	loading  atomic.Bool
}

// NewScrollAnchor creates an anchor; non-positive thresholds fall back to
// the defaults.
func NewScrollAnchor(vp Viewport, sched Scheduler, nearBottom, nearTop int) *ScrollAnchor {
	if sched == nil {
		sched = ImmediateScheduler{}
	}
	if nearBottom <= 0 {
		nearBottom = DefaultNearBottom
	}
	if nearTop <= 0 {
		nearTop = DefaultNearTop
	}
	return &ScrollAnchor{vp: vp, sched: sched, nearBottom: nearBottom, nearTop: nearTop}
}

// Reset forgets the initial-scroll state and drops callbacks still pending
// for the previous conversation.
func (a *ScrollAnchor) Reset() {
	a.gen++
	a.settled = false
	a.settling = false
	a.loading.Store(false)
}

// Settled reports whether the initial scroll to bottom has completed.
func (a *ScrollAnchor) Settled() bool {
	return a.settled
}

// SettleInitial pins the first page to the bottom. Media may resize after
// paint, so the scroll is repeated after one frame and after one timer tick.
// It runs once per conversation.
func (a *ScrollAnchor) SettleInitial() {
	if a.settled || a.settling {
		return
	}
	a.settling = true
	gen := a.gen
	pending := 2
	done := func() {
		if gen != a.gen {
			return
		}
		a.ScrollToBottom()
		pending--
		if pending == 0 {
			a.settling = false
			a.settled = true
		}
	}

	a.ScrollToBottom()
	a.sched.AfterFrame(done)
	a.sched.AfterTick(done)
}

func (a *ScrollAnchor) ScrollToBottom() {
	top := a.vp.ScrollHeight() - a.vp.ClientHeight()
	if top < 0 {
		top = 0
	}
	a.vp.SetScrollTop(top)
}

func (a *ScrollAnchor) DistanceFromBottom() int {
	d := a.vp.ScrollHeight() - a.vp.ScrollTop() - a.vp.ClientHeight()
	if d < 0 {
		return 0
	}
	return d
}

// ArrivalCapture records the viewport state at the moment a message arrived.
type ArrivalCapture struct {
	NearBottom bool
}

// CaptureArrival must be called before the new message is rendered.
func (a *ScrollAnchor) CaptureArrival() ArrivalCapture {
	return ArrivalCapture{NearBottom: a.DistanceFromBottom() < a.nearBottom}
}

// AfterArrival follows the new message only when the reader was already at
// the bottom; a reader scrolled up into history stays where they are.
func (a *ScrollAnchor) AfterArrival(c ArrivalCapture) {
	if c.NearBottom {
		a.ScrollToBottom()
	}
}

// PrependAnchor is the viewport geometry before older messages are inserted.
type PrependAnchor struct {
	ScrollHeight int
	ScrollTop    int
}

// CapturePrepend must be called before older messages are rendered.
func (a *ScrollAnchor) CapturePrepend() PrependAnchor {
	return PrependAnchor{ScrollHeight: a.vp.ScrollHeight(), ScrollTop: a.vp.ScrollTop()}
}

// AfterPrepend shifts the scroll offset by the height the new content added,
// so the message under the viewport stays put. Call it in the same render
// pass that grew the list.
func (a *ScrollAnchor) AfterPrepend(p PrependAnchor) {
	delta := a.vp.ScrollHeight() - p.ScrollHeight
	a.vp.SetScrollTop(p.ScrollTop + delta)
}

// TryBeginLoadOlder takes the load-older lock when the viewport is near the
// top. A trigger while the lock is held is dropped.
func (a *ScrollAnchor) TryBeginLoadOlder() bool {
	if a.vp.ScrollTop() > a.nearTop {
		return false
	}
	return a.loading.CompareAndSwap(false, true)
}

func (a *ScrollAnchor) EndLoadOlder() {
	a.loading.Store(false)
}
