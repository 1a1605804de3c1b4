package thread_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dmclient/internal/thread"
)

type fakeViewport struct {
	height, top, client int
	sets                int
}

func (v *fakeViewport) ScrollHeight() int { return v.height }
func (v *fakeViewport) ScrollTop() int    { return v.top }
func (v *fakeViewport) ClientHeight() int { return v.client }
func (v *fakeViewport) SetScrollTop(top int) {
	v.sets++
	if limit := v.height - v.client; top > limit {
		top = limit
	}
	if top < 0 {
		top = 0
	}
	v.top = top
}

type queueScheduler struct {
	frames, ticks []func()
}

func (s *queueScheduler) AfterFrame(fn func()) { s.frames = append(s.frames, fn) }
func (s *queueScheduler) AfterTick(fn func())  { s.ticks = append(s.ticks, fn) }

func (s *queueScheduler) flush() {
	frames, ticks := s.frames, s.ticks
	s.frames, s.ticks = nil, nil
	for _, fn := range frames {
		fn()
	}
	for _, fn := range ticks {
		fn()
	}
}

func TestSettleInitial(t *testing.T) {
	vp := &fakeViewport{height: 1000, client: 400}
	sched := &queueScheduler{}
	a := thread.NewScrollAnchor(vp, sched, 0, 0)

	a.SettleInitial()
	assert.Equal(t, 600, vp.top)
	assert.False(t, a.Settled())

	// an image finished loading after the first paint
	vp.height = 1300
	sched.flush()
	assert.Equal(t, 900, vp.top)
	assert.True(t, a.Settled())
	assert.Equal(t, 3, vp.sets)

	vp.top = 100
	a.SettleInitial()
	assert.Equal(t, 100, vp.top, "initial scroll runs once per conversation")

	a.Reset()
	a.SettleInitial()
	assert.Equal(t, 900, vp.top)
}

func TestSettleInitialDropsStaleCallbacks(t *testing.T) {
	vp := &fakeViewport{height: 1000, client: 400}
	sched := &queueScheduler{}
	a := thread.NewScrollAnchor(vp, sched, 0, 0)

	a.SettleInitial()
	a.Reset()
	vp.top = 50
	sched.flush()

	assert.Equal(t, 50, vp.top)
	assert.False(t, a.Settled())
}

func TestArrivalFollowsOnlyNearBottom(t *testing.T) {
	t.Run("near bottom", func(t *testing.T) {
		vp := &fakeViewport{height: 1000, top: 500, client: 400}
		a := thread.NewScrollAnchor(vp, nil, 0, 0)

		c := a.CaptureArrival()
		vp.height += 80
		a.AfterArrival(c)

		assert.True(t, c.NearBottom)
		assert.Equal(t, 680, vp.top)
	})

	t.Run("scrolled up", func(t *testing.T) {
		vp := &fakeViewport{height: 1000, top: 200, client: 400}
		a := thread.NewScrollAnchor(vp, nil, 0, 0)

		c := a.CaptureArrival()
		vp.height += 80
		a.AfterArrival(c)

		assert.False(t, c.NearBottom)
		assert.Equal(t, 200, vp.top)
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		vp := &fakeViewport{height: 1000, top: 480, client: 400}
		a := thread.NewScrollAnchor(vp, nil, 0, 0)
		assert.False(t, a.CaptureArrival().NearBottom)
	})
}

func TestPrependKeepsAnchor(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 10, client: 400}
	a := thread.NewScrollAnchor(vp, nil, 0, 0)

	p := a.CapturePrepend()
	vp.height = 1750
	a.AfterPrepend(p)

	assert.Equal(t, 760, vp.top)
}

func TestLoadOlderLock(t *testing.T) {
	vp := &fakeViewport{height: 1000, top: 300, client: 400}
	a := thread.NewScrollAnchor(vp, nil, 0, 0)

	assert.False(t, a.TryBeginLoadOlder(), "far from top")

	vp.top = 40
	assert.True(t, a.TryBeginLoadOlder())
	assert.False(t, a.TryBeginLoadOlder(), "second trigger is dropped")

	a.EndLoadOlder()
	assert.True(t, a.TryBeginLoadOlder())
}
