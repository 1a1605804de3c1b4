package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dmclient/internal/domain"
	"dmclient/internal/service"
	"dmclient/internal/thread"
)

// In lines.
const (
	defaultNearBottom = 3
	defaultNearTop    = 1
)

var (
	peerColor   = lipgloss.Color("39")
	selfColor   = lipgloss.Color("249")
	metaColor   = lipgloss.Color("242")
	lockedColor = lipgloss.Color("214")
	statusColor = lipgloss.Color("241")
	errorColor  = lipgloss.Color("203")
)

// Thread is the part of the thread service the view needs.
type Thread interface {
	Open(ctx context.Context, userID string) error
	LoadOlder(ctx context.Context) (bool, error)
	SendText(ctx context.Context, text string) error
	Purchase(ctx context.Context, messageID string, method domain.PaymentMethod) error
	Delete(ctx context.Context, messageID string) error
	MarkRead(ctx context.Context)
	Messages() []domain.Message
	Peer() (domain.User, bool)
	ViewerID() string
	HasMore() bool
	LastError() error
	MediaState(id string) (thread.MediaState, bool)
	OnUpdate(fn func(service.Update))
}

type Options struct {
	Thread  Thread
	PeerID  string
	Payment domain.PaymentMethod
	// Thresholds in lines; zero picks a small default.
	NearBottom int
	NearTop    int
}

// Run opens the conversation in a full-screen view until the user quits.
func Run(ctx context.Context, opts Options) error {
	model := NewModel(ctx, opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := program.Run()
	model.Close()
	return err
}

type updateMsg struct {
	update service.Update
}

type openedMsg struct {
	err error
}

type olderMsg struct {
	err error
}

type actionMsg struct {
	status string
	err    error
}

// Model is the terminal view of one conversation.
type Model struct {
	ctx     context.Context
	thread  Thread
	peerID  string
	payment domain.PaymentMethod

	viewport viewport.Model
	input    textinput.Model
	anchor   *thread.ScrollAnchor
	sched    *teaScheduler

	updates chan service.Update
	done    chan struct{}

	status string
	failed bool
	width  int
	height int
	now    func() time.Time
}

func NewModel(ctx context.Context, opts Options) *Model {
	input := textinput.New()
	input.Placeholder = "message, /buy <id>, /delete <id>"
	input.Prompt = "› "
	input.CharLimit = 5000
	input.Focus()

	m := &Model{
		ctx:      ctx,
		thread:   opts.Thread,
		peerID:   opts.PeerID,
		payment:  opts.Payment,
		viewport: viewport.New(0, 0),
		input:    input,
		sched:    &teaScheduler{},
		updates:  make(chan service.Update, 64),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	nearBottom, nearTop := opts.NearBottom, opts.NearTop
	if nearBottom <= 0 {
		nearBottom = defaultNearBottom
	}
	if nearTop <= 0 {
		nearTop = defaultNearTop
	}
	m.anchor = thread.NewScrollAnchor(NewBubblesViewport(&m.viewport), m.sched, nearBottom, nearTop)

	m.thread.OnUpdate(func(u service.Update) {
		select {
		case m.updates <- u:
		case <-m.done:
		}
	})
	return m
}

func (m *Model) Close() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.openCmd(), m.waitUpdate(), textinput.Blink)
}

func (m *Model) openCmd() tea.Cmd {
	return func() tea.Msg {
		err := m.thread.Open(m.ctx, m.peerID)
		if err == nil {
			m.thread.MarkRead(m.ctx)
		}
		return openedMsg{err: err}
	}
}

func (m *Model) waitUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-m.updates:
			return updateMsg{update: u}
		case <-m.done:
			return nil
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case updateMsg:
		m.applyUpdate(msg.update)
		cmds = append(cmds, m.waitUpdate())

	case openedMsg:
		if msg.err != nil {
			m.setError(msg.err)
		}

	case olderMsg:
		m.anchor.EndLoadOlder()
		if msg.err != nil {
			m.setError(msg.err)
		}

	case actionMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.status, m.failed = msg.status, false
		}

	case frameMsg:
		m.sched.runFrame()

	case tickMsg:
		m.sched.runTick()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if value != "" {
				cmds = append(cmds, m.submit(value))
			}
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyHome, tea.KeyEnd, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd, m.maybeLoadOlder())
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
		if msg.Button == tea.MouseButtonWheelUp {
			cmds = append(cmds, m.maybeLoadOlder())
		}

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	cmds = append(cmds, m.sched.cmd())
	return m, tea.Batch(cmds...)
}

// applyUpdate re-renders the thread and keeps the scroll position where the
// reader expects it for each kind of change.
func (m *Model) applyUpdate(u service.Update) {
	switch u.Kind {
	case service.UpdateReset:
		if u.Count == 0 {
			m.anchor.Reset()
		}
		m.refresh()
		if u.Count > 0 {
			m.anchor.SettleInitial()
		}
	case service.UpdatePrepend:
		anchor := m.anchor.CapturePrepend()
		m.refresh()
		m.anchor.AfterPrepend(anchor)
	case service.UpdateAppend:
		arrival := m.anchor.CaptureArrival()
		m.refresh()
		m.anchor.AfterArrival(arrival)
	default:
		offset := m.viewport.YOffset
		m.refresh()
		m.viewport.SetYOffset(offset)
	}
}

func (m *Model) maybeLoadOlder() tea.Cmd {
	if !m.thread.HasMore() || !m.anchor.TryBeginLoadOlder() {
		return nil
	}
	return func() tea.Msg {
		_, err := m.thread.LoadOlder(m.ctx)
		return olderMsg{err: err}
	}
}

func (m *Model) submit(value string) tea.Cmd {
	cmd, arg, _ := strings.Cut(value, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/buy":
		if arg == "" {
			return m.statusCmd("usage: /buy <message id>")
		}
		return func() tea.Msg {
			err := m.thread.Purchase(m.ctx, arg, m.payment)
			return actionMsg{status: "unlocked " + arg, err: err}
		}
	case "/delete":
		if arg == "" {
			return m.statusCmd("usage: /delete <message id>")
		}
		return func() tea.Msg {
			err := m.thread.Delete(m.ctx, arg)
			return actionMsg{status: "deleted " + arg, err: err}
		}
	}
	return func() tea.Msg {
		return actionMsg{err: m.thread.SendText(m.ctx, value)}
	}
}

func (m *Model) statusCmd(s string) tea.Cmd {
	return func() tea.Msg { return actionMsg{status: s} }
}

func (m *Model) setError(err error) {
	m.status = err.Error()
	m.failed = true
}

func (m *Model) resize() {
	m.viewport.Width = m.width
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	m.viewport.Height = h
	m.input.Width = m.width - 4
	m.refresh()
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
}

func (m *Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header(),
		m.viewport.View(),
		m.input.View(),
		m.statusLine(),
	)
}

func (m *Model) header() string {
	name := m.peerID
	if peer, ok := m.thread.Peer(); ok {
		name = peer.Username
		if peer.DisplayName != "" {
			name = peer.DisplayName + " @" + peer.Username
		}
	}
	return lipgloss.NewStyle().Bold(true).Foreground(peerColor).Render(name)
}

func (m *Model) statusLine() string {
	if m.status != "" {
		c := statusColor
		if m.failed {
			c = errorColor
		}
		return lipgloss.NewStyle().Foreground(c).Render(m.status)
	}
	if err := m.thread.LastError(); err != nil {
		return lipgloss.NewStyle().Foreground(errorColor).Render(err.Error())
	}
	hint := "esc to quit"
	if m.thread.HasMore() {
		hint = "scroll up for older messages · " + hint
	}
	return lipgloss.NewStyle().Foreground(statusColor).Render(hint)
}

func (m *Model) renderMessages() string {
	msgs := m.thread.Messages()
	if len(msgs) == 0 {
		return lipgloss.NewStyle().Foreground(metaColor).Render("no messages yet")
	}
	now := m.now()
	viewer := m.thread.ViewerID()
	chunks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		chunks = append(chunks, m.formatMessage(msg, viewer, now))
	}
	return strings.Join(chunks, "\n\n")
}

func (m *Model) formatMessage(msg domain.Message, viewer string, now time.Time) string {
	author, color := msg.FromUserID, peerColor
	if msg.FromUserID == viewer {
		author, color = "you", selfColor
	}
	meta := lipgloss.NewStyle().Foreground(metaColor)
	head := lipgloss.NewStyle().Bold(true).Foreground(color).Render(author) +
		meta.Render(fmt.Sprintf(" · %s · %s", thread.FormatTimestamp(msg.CreatedAt, now), msg.ID))

	if msg.Deleted {
		return head + "\n" + meta.Italic(true).Render("message deleted")
	}

	lines := []string{head}
	if msg.Text != "" {
		lines = append(lines, msg.Text)
	}
	if len(msg.MediaItems) > 0 {
		state, _ := m.thread.MediaState(msg.ID)
		if state == thread.MediaLocked {
			label := fmt.Sprintf("[locked %d] %s · /buy %s", len(msg.MediaItems), thread.PurchaseLabel(msg.Price), msg.ID)
			lines = append(lines, lipgloss.NewStyle().Foreground(lockedColor).Render(label))
		} else {
			items := make([]string, len(msg.MediaItems))
			for i, it := range msg.MediaItems {
				items[i] = fmt.Sprintf("[%s %s]", it.MediaType, it.MediaKey)
			}
			lines = append(lines, meta.Render(strings.Join(items, " ")))
		}
	}
	return strings.Join(lines, "\n")
}
