// Package widget implements the chatbot widget as a headless session: the transcript, the open/closed
// visibility, the per-submission streaming state machine, the auto-scroll policy and the timestamp
// rendering rules. Front ends (the terminal widget, tests, embedding applications) own one Session each and
// feed it events from a single event loop; a Session is not safe for concurrent use.
package widget

import (
	"strings"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/google/uuid"
)

// Phase is the state of the current submission.
type Phase int

const (
	// PhaseIdle means no request is outstanding.
	PhaseIdle Phase = iota
	// PhaseAwaitingFirstChunk means the user message is in the transcript and the request is in flight.
	PhaseAwaitingFirstChunk
	// PhaseStreaming means the assistant message exists and receives chunks.
	PhaseStreaming
	// PhaseSettled means the stream ended and the assistant message is sealed. A session passes through it
	// on its way back to PhaseIdle.
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingFirstChunk:
		return "awaiting-first-chunk"
	case PhaseStreaming:
		return "streaming"
	case PhaseSettled:
		return "settled"
	}
	return "unknown"
}

// GreetingID is the identifier of the greeting message every transcript starts with.
const GreetingID = "1"

// Request is what a session asks its transport to send after an accepted submission.
type Request struct {
	// StreamID identifies the submission; chunks must be applied with the same ID.
	StreamID uint64
	// Messages is a copy of the whole transcript, the new user message included.
	Messages []models.Message
}

// Session is the state of one widget instance.
type Session struct {
	opts Options
	now  func() time.Time

	open       bool
	phase      Phase
	transcript []models.Message
	streamID   uint64
	current    int
	lastErr    error

	scroll scroller
}

// Option customizes a Session.
type Option func(*Session)

// WithClock replaces time.Now as the source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// WithScrollThreshold sets the distance from the bottom edge, in viewport units, under which the viewport
// counts as scrolled to the bottom.
func WithScrollThreshold(threshold int) Option {
	return func(s *Session) {
		s.scroll.threshold = threshold
	}
}

// NewSession creates a closed, idle session whose transcript holds the configured greeting.
func NewSession(opts Options, options ...Option) *Session {
	s := &Session{
		opts:    opts,
		now:     time.Now,
		current: -1,
		scroll:  scroller{threshold: ScrollThreshold, smooth: opts.Animated},
	}
	for _, o := range options {
		o(s)
	}
	s.transcript = []models.Message{{
		ID:        GreetingID,
		Role:      models.RoleAssistant,
		Content:   opts.InitialMessage,
		CreatedAt: s.now(),
	}}
	return s
}

// Options returns the options the session was created with.
func (s *Session) Options() Options {
	return s.opts
}

// IsOpen reports whether the transcript panel is visible.
func (s *Session) IsOpen() bool {
	return s.open
}

// Open shows the transcript panel and schedules a scroll to the newest message.
func (s *Session) Open() {
	if s.open {
		return
	}
	s.open = true
	s.scroll.pending = true
}

// Close collapses the widget to its launcher. The transcript and any in-flight stream are kept.
func (s *Session) Close() {
	s.open = false
}

// Toggle flips the visibility.
func (s *Session) Toggle() {
	if s.open {
		s.Close()
		return
	}
	s.Open()
}

// Phase returns the phase of the current submission.
func (s *Session) Phase() Phase {
	return s.phase
}

// LastError returns the error that ended the most recent stream, if any.
func (s *Session) LastError() error {
	return s.lastErr
}

// Transcript returns a copy of the conversation.
func (s *Session) Transcript() []models.Message {
	return append([]models.Message(nil), s.transcript...)
}

// Submit appends a user message with text and returns the request to send. It is a no-op returning false
// while a response is outstanding, while the widget is closed, or when text is blank, which keeps at most
// one assistant response open per conversation.
func (s *Session) Submit(text string) (Request, bool) {
	if s.phase != PhaseIdle || !s.open || strings.TrimSpace(text) == "" {
		return Request{}, false
	}

	s.mutate(func() {
		s.transcript = append(s.transcript, models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   text,
			CreatedAt: s.now(),
		})
	})
	s.streamID++
	s.phase = PhaseAwaitingFirstChunk
	s.lastErr = nil

	if s.opts.OnSendMessage != nil {
		s.opts.OnSendMessage(text)
	}

	return Request{
		StreamID: s.streamID,
		Messages: s.Transcript(),
	}, true
}

// ApplyChunk appends chunk to the assistant message of stream id, creating the message on the first
// chunk. Chunks of any other stream, and chunks arriving after the stream settled, are ignored. It reports
// whether the transcript changed.
func (s *Session) ApplyChunk(id uint64, chunk string) bool {
	if id != s.streamID || chunk == "" {
		return false
	}

	switch s.phase {
	case PhaseAwaitingFirstChunk:
		s.mutate(func() {
			s.transcript = append(s.transcript, models.Message{
				ID:        uuid.NewString(),
				Role:      models.RoleAssistant,
				Content:   chunk,
				CreatedAt: s.now(),
			})
			s.current = len(s.transcript) - 1
		})
		s.phase = PhaseStreaming
	case PhaseStreaming:
		s.mutate(func() {
			s.transcript[s.current].Content += chunk
		})
	default:
		return false
	}
	return true
}

// Finish ends stream id, normally when err is nil or by failure otherwise. The assistant message keeps
// whatever content arrived; no message is synthesized for an error. OnReceiveMessage fires when an
// assistant message was sealed. Finish of any other stream is ignored.
func (s *Session) Finish(id uint64, err error) {
	if id != s.streamID {
		return
	}
	if s.phase != PhaseAwaitingFirstChunk && s.phase != PhaseStreaming {
		return
	}

	sealed := s.phase == PhaseStreaming
	s.phase = PhaseSettled
	s.lastErr = err

	var final string
	if sealed {
		final = s.transcript[s.current].Content
	}
	s.current = -1
	s.phase = PhaseIdle

	if sealed && s.opts.OnReceiveMessage != nil {
		s.opts.OnReceiveMessage(final)
	}
}

// mutate applies fn to the transcript and schedules an auto-scroll when the viewport was at the bottom
// before the change or the user never scrolled away.
func (s *Session) mutate(fn func()) {
	follow := s.scroll.shouldFollow()
	fn()
	if follow {
		s.scroll.pending = true
	}
}
