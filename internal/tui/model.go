// Package tui renders a widget session in the terminal with Bubble Tea.
//
// The model owns the session and is the only code touching it. Network reads run in a command and reach
// the model as chunkMsg and streamEndMsg values, so every state change happens inside Update.
package tui

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
)

// ScrollThreshold is the distance from the bottom, in rows, under which the transcript counts as scrolled
// to the bottom.
const ScrollThreshold = 2

const (
	defaultWidth  = 80
	defaultHeight = 24
	maxPanelWidth = 100
	// header, status line, input line and the panel border
	chromeHeight = 2 + 1 + 1 + 2
)

type chunkMsg struct {
	id   uint64
	text string
}

type streamEndMsg struct {
	id  uint64
	err error
}

// scrollMsg fires once the transcript has been quiet for widget.ScrollDelay. Only the tick of the latest
// change flushes.
type scrollMsg struct {
	gen uint64
}

// rowViewport exposes a bubbles viewport to the session scroll logic.
type rowViewport struct {
	m *viewport.Model
}

func (v rowViewport) ScrollHeight() int { return v.m.TotalLineCount() }
func (v rowViewport) ScrollTop() int    { return v.m.YOffset }
func (v rowViewport) ClientHeight() int { return v.m.Height }

func (v rowViewport) ScrollToBottom(bool) {
	v.m.GotoBottom()
}

// Model is the Bubble Tea model of the terminal widget.
type Model struct {
	ctx       context.Context
	session   *widget.Session
	transport widget.Transport
	events    chan tea.Msg
	now       func() time.Time

	viewport *viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	styles   styles

	width, height int
	scrollGen     uint64
}

// New creates a model rendering s. Replies are fetched through t; ctx bounds every request.
func New(ctx context.Context, s *widget.Session, t widget.Transport) Model {
	opts := s.Options()

	in := textinput.New()
	in.Placeholder = opts.PlaceholderText
	in.Prompt = "› "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(defaultWidth, defaultHeight-chromeHeight)
	s.AttachViewport(rowViewport{m: &vp})

	m := Model{
		ctx:       ctx,
		session:   s,
		transport: t,
		events:    make(chan tea.Msg, 64),
		now:       time.Now,
		viewport:  &vp,
		input:     in,
		spinner:   sp,
		styles:    newStyles(opts),
		width:     defaultWidth,
		height:    defaultHeight,
	}
	m.layout()
	m.refresh()
	return m
}

// Init starts listening for stream events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), m.spinner.Tick)
}

// Update applies msg to the session and the view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if !m.session.IsOpen() {
			return m, nil
		}
		vp, cmd := m.viewport.Update(msg)
		*m.viewport = vp
		m.session.OnScroll()
		return m, cmd

	case chunkMsg:
		m.session.ApplyChunk(msg.id, msg.text)
		m.refresh()
		scroll := m.scheduleScroll()
		return m, tea.Batch(m.waitForEvent(), scroll)

	case streamEndMsg:
		m.session.Finish(msg.id, msg.err)
		m.refresh()
		scroll := m.scheduleScroll()
		return m, tea.Batch(m.waitForEvent(), scroll)

	case scrollMsg:
		if msg.gen == m.scrollGen {
			m.session.FlushScroll()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "ctrl+o":
		return m.toggle()

	case "esc":
		if m.session.IsOpen() {
			return m.toggle()
		}
		return m, nil
	}

	if !m.session.IsOpen() {
		if msg.String() == "enter" {
			return m.toggle()
		}
		return m, nil
	}

	switch msg.String() {
	case "enter":
		req, ok := m.session.Submit(m.input.Value())
		if !ok {
			return m, nil
		}
		m.input.Reset()
		m.refresh()
		scroll := m.scheduleScroll()
		return m, tea.Batch(m.stream(req), scroll)

	case "up":
		m.viewport.ScrollUp(1)
		m.session.OnScroll()
		return m, nil

	case "down":
		m.viewport.ScrollDown(1)
		m.session.OnScroll()
		return m, nil

	case "pgup":
		m.viewport.PageUp()
		m.session.OnScroll()
		return m, nil

	case "pgdown":
		m.viewport.PageDown()
		m.session.OnScroll()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) toggle() (tea.Model, tea.Cmd) {
	m.session.Toggle()
	var cmd tea.Cmd
	if m.session.IsOpen() {
		cmd = m.input.Focus()
	} else {
		m.input.Blur()
	}
	m.refresh()
	scroll := m.scheduleScroll()
	return m, tea.Batch(cmd, scroll)
}

// scheduleScroll restarts the scroll debounce. Ticks of earlier changes are still delivered but no longer
// match scrollGen.
func (m *Model) scheduleScroll() tea.Cmd {
	if !m.session.ScrollPending() {
		return nil
	}
	m.scrollGen++
	gen := m.scrollGen
	return tea.Tick(widget.ScrollDelay, func(time.Time) tea.Msg {
		return scrollMsg{gen: gen}
	})
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-m.events:
			return msg
		case <-m.ctx.Done():
			return nil
		}
	}
}

// stream returns a command reading the reply to req and forwarding it to the model as messages.
func (m Model) stream(req widget.Request) tea.Cmd {
	return func() tea.Msg {
		m.readStream(req.StreamID, req.Messages)
		return nil
	}
}

func (m Model) readStream(id uint64, messages []models.Message) {
	src, err := m.transport.Chat(m.ctx, messages)
	if err != nil {
		m.send(streamEndMsg{id: id, err: errors.Wrap(err, "failed to start chat")})
		return
	}
	defer src.Close()

	for {
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			m.send(streamEndMsg{id: id})
			return
		}
		if err != nil {
			m.send(streamEndMsg{id: id, err: err})
			return
		}
		if !m.send(chunkMsg{id: id, text: chunk}) {
			return
		}
	}
}

func (m Model) send(msg tea.Msg) bool {
	select {
	case m.events <- msg:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Model) panelWidth() int {
	return min(m.width, maxPanelWidth)
}

func (m *Model) layout() {
	m.viewport.Width = max(m.panelWidth()-4, 10)
	m.viewport.Height = max(m.height-chromeHeight, 3)
	m.input.Width = max(m.viewport.Width-4, 1)
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
}

func (m Model) renderTranscript() string {
	opts := m.session.Options()
	width := m.viewport.Width

	var b strings.Builder
	for i, e := range m.session.Entries(m.now()) {
		if i > 0 {
			b.WriteString("\n")
		}

		content := e.Content
		if e.Streaming {
			content += "▍"
		}

		if e.Role == models.RoleUser {
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, m.styles.label.Render("You")))
			b.WriteString("\n")
			bubble := m.styles.user.Width(min(lipgloss.Width(content)+2, width)).Render(content)
			b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble))
		} else {
			label := opts.Title
			if opts.ShowAvatar {
				label = "◉ " + label
			}
			b.WriteString(m.styles.label.Render(label))
			b.WriteString("\n")
			b.WriteString(m.styles.assistant.Width(width).Render(content))
		}

		if e.Timestamp != "" {
			stamp := e.Timestamp
			if e.TimeAgo != "" {
				stamp += " · " + e.TimeAgo
			}
			b.WriteString("\n")
			align := lipgloss.Left
			if e.Role == models.RoleUser {
				align = lipgloss.Right
			}
			b.WriteString(lipgloss.PlaceHorizontal(width, align, m.styles.timestamp.Render(stamp)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) statusLine() string {
	switch {
	case m.session.Phase() == widget.PhaseAwaitingFirstChunk:
		return m.spinner.View() + m.styles.status.Render(" Thinking…")
	case m.session.LastError() != nil:
		return m.styles.err.Render("Error: " + m.session.LastError().Error())
	}
	return ""
}

// View renders the launcher when the widget is closed and the chat panel when it is open.
func (m Model) View() string {
	opts := m.session.Options()
	hpos, vpos := placement(opts.Position)

	if !m.session.IsOpen() {
		launcher := m.styles.launcher.Render("💬 " + opts.Title + "  (ctrl+o)")
		return lipgloss.Place(m.width, m.height, hpos, vpos, launcher)
	}

	header := m.styles.title.Render(opts.Title) + "\n" + m.styles.subtitle.Render(opts.Description)
	panel := m.styles.panel.Width(m.panelWidth() - 2).Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.statusLine(),
		m.input.View(),
	))
	if opts.MobileFullScreen && m.width < 60 {
		return panel
	}
	return lipgloss.Place(m.width, m.height, hpos, vpos, panel)
}
