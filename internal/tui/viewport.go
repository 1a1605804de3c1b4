package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"dmclient/internal/thread"
)

// BubblesViewport lets the scroll anchor drive a bubbles viewport. Lines are
// the unit of every measurement.
type BubblesViewport struct {
	vp *viewport.Model
}

var _ thread.Viewport = (*BubblesViewport)(nil)

func NewBubblesViewport(vp *viewport.Model) *BubblesViewport {
	return &BubblesViewport{vp: vp}
}

func (b *BubblesViewport) ScrollHeight() int { return b.vp.TotalLineCount() }
func (b *BubblesViewport) ScrollTop() int    { return b.vp.YOffset }
func (b *BubblesViewport) ClientHeight() int { return b.vp.Height }
func (b *BubblesViewport) SetScrollTop(y int) {
	b.vp.SetYOffset(y)
}

type frameMsg struct{}

type tickMsg struct{}

// teaScheduler defers anchor callbacks to the program loop: frame callbacks
// run on the message after the next render, tick callbacks after a short
// timer.
type teaScheduler struct {
	frame []func()
	tick  []func()
}

var _ thread.Scheduler = (*teaScheduler)(nil)

func (s *teaScheduler) AfterFrame(fn func()) { s.frame = append(s.frame, fn) }
func (s *teaScheduler) AfterTick(fn func())  { s.tick = append(s.tick, fn) }

// cmd returns what the program must run for the queued callbacks to fire.
func (s *teaScheduler) cmd() tea.Cmd {
	var cmds []tea.Cmd
	if len(s.frame) > 0 {
		cmds = append(cmds, func() tea.Msg { return frameMsg{} })
	}
	if len(s.tick) > 0 {
		cmds = append(cmds, tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} }))
	}
	return tea.Batch(cmds...)
}

func (s *teaScheduler) runFrame() {
	fns := s.frame
	s.frame = nil
	for _, fn := range fns {
		fn()
	}
}

func (s *teaScheduler) runTick() {
	fns := s.tick
	s.tick = nil
	for _, fn := range fns {
		fn()
	}
}
