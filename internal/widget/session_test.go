package widget_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	chunks []string
	err    error
	closed bool
}

func (s *sliceSource) Next() (string, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

type mockTransport struct {
	src      *sliceSource
	err      error
	requests [][]models.Message
}

func (m *mockTransport) Chat(_ context.Context, messages []models.Message) (widget.ChunkSource, error) {
	m.requests = append(m.requests, messages)
	if m.err != nil {
		return nil, m.err
	}
	return m.src, nil
}

func openSession(opts widget.Options) *widget.Session {
	s := widget.NewSession(opts)
	s.Open()
	return s
}

func TestNewSessionStartsWithGreeting(t *testing.T) {
	s := widget.NewSession(widget.DefaultOptions())

	require.Len(t, s.Transcript(), 1)
	greeting := s.Transcript()[0]
	assert.Equal(t, widget.GreetingID, greeting.ID)
	assert.Equal(t, models.RoleAssistant, greeting.Role)
	assert.Equal(t, widget.DefaultOptions().InitialMessage, greeting.Content)
	assert.False(t, s.IsOpen())
	assert.Equal(t, widget.PhaseIdle, s.Phase())
}

func TestSubmitAppendsUserMessage(t *testing.T) {
	var sent []string
	opts := widget.DefaultOptions()
	opts.OnSendMessage = func(msg string) { sent = append(sent, msg) }
	s := openSession(opts)

	req, ok := s.Submit("What are your hours?")
	require.True(t, ok)

	transcript := s.Transcript()
	require.Len(t, transcript, 2)
	last := transcript[1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Equal(t, "What are your hours?", last.Content)
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, transcript, req.Messages, "the request carries the whole conversation")
	assert.Equal(t, widget.PhaseAwaitingFirstChunk, s.Phase())
	assert.Equal(t, []string{"What are your hours?"}, sent)
}

func TestSubmitIsIgnored(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(s *widget.Session)
		text    string
	}{
		{
			name:    "Closed widget",
			prepare: func(s *widget.Session) { s.Close() },
			text:    "hello",
		},
		{
			name:    "Blank text",
			prepare: func(*widget.Session) {},
			text:    "   ",
		},
		{
			name: "Awaiting first chunk",
			prepare: func(s *widget.Session) {
				s.Submit("first")
			},
			text: "second",
		},
		{
			name: "Streaming",
			prepare: func(s *widget.Session) {
				req, _ := s.Submit("first")
				s.ApplyChunk(req.StreamID, "Hel")
			},
			text: "second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sends := 0
			opts := widget.DefaultOptions()
			opts.OnSendMessage = func(string) { sends++ }
			s := openSession(opts)
			tt.prepare(s)
			before := len(s.Transcript())
			sendsBefore := sends

			_, ok := s.Submit(tt.text)

			assert.False(t, ok)
			assert.Len(t, s.Transcript(), before)
			assert.Equal(t, sendsBefore, sends, "no notification for a rejected submission")
		})
	}
}

func TestChunksAreAppendedInOrder(t *testing.T) {
	var received []string
	opts := widget.DefaultOptions()
	opts.OnReceiveMessage = func(msg string) { received = append(received, msg) }
	s := openSession(opts)

	req, ok := s.Submit("hi")
	require.True(t, ok)

	assert.True(t, s.ApplyChunk(req.StreamID, "Hel"))
	assert.Equal(t, widget.PhaseStreaming, s.Phase())
	assert.True(t, s.ApplyChunk(req.StreamID, "lo"))
	s.Finish(req.StreamID, nil)

	transcript := s.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, models.RoleAssistant, transcript[2].Role)
	assert.Equal(t, "Hello", transcript[2].Content)
	assert.Equal(t, widget.PhaseIdle, s.Phase())
	assert.Equal(t, []string{"Hello"}, received)

	assert.False(t, s.ApplyChunk(req.StreamID, "!"), "a sealed message is never mutated")
	assert.Equal(t, "Hello", s.Transcript()[2].Content)
}

func TestStaleStreamIsIgnored(t *testing.T) {
	s := openSession(widget.DefaultOptions())

	first, _ := s.Submit("one")
	s.Finish(first.StreamID, errors.New("boom"))
	second, ok := s.Submit("two")
	require.True(t, ok)

	assert.False(t, s.ApplyChunk(first.StreamID, "late"))
	s.Finish(first.StreamID, nil)
	assert.Equal(t, widget.PhaseAwaitingFirstChunk, s.Phase())

	assert.True(t, s.ApplyChunk(second.StreamID, "fresh"))
}

func TestFinishWithError(t *testing.T) {
	t.Run("Before first chunk", func(t *testing.T) {
		received := 0
		opts := widget.DefaultOptions()
		opts.OnReceiveMessage = func(string) { received++ }
		s := openSession(opts)
		req, _ := s.Submit("hi")

		s.Finish(req.StreamID, errors.New("network down"))

		assert.Len(t, s.Transcript(), 2, "no assistant message is synthesized")
		assert.EqualError(t, s.LastError(), "network down")
		assert.Equal(t, widget.PhaseIdle, s.Phase())
		assert.Zero(t, received)
	})

	t.Run("Mid stream", func(t *testing.T) {
		s := openSession(widget.DefaultOptions())
		req, _ := s.Submit("hi")
		s.ApplyChunk(req.StreamID, "We open at")

		s.Finish(req.StreamID, errors.New("overloaded"))

		transcript := s.Transcript()
		require.Len(t, transcript, 3)
		assert.Equal(t, "We open at", transcript[2].Content, "partial content is kept")
		assert.Error(t, s.LastError())

		_, ok := s.Submit("again")
		assert.True(t, ok, "the session accepts submissions after an error")
		assert.NoError(t, s.LastError())
	})
}

func TestToggleDuringStream(t *testing.T) {
	s := openSession(widget.DefaultOptions())
	req, _ := s.Submit("hi")
	s.ApplyChunk(req.StreamID, "Hel")

	s.Toggle()
	assert.False(t, s.IsOpen())
	s.ApplyChunk(req.StreamID, "lo")
	s.Toggle()
	assert.True(t, s.IsOpen())
	s.ApplyChunk(req.StreamID, "!")
	s.Finish(req.StreamID, nil)

	transcript := s.Transcript()
	require.Len(t, transcript, 3, "the in-flight message is not duplicated")
	assert.Equal(t, "Hello!", transcript[2].Content)
}

func TestDrive(t *testing.T) {
	t.Run("Completed stream", func(t *testing.T) {
		src := &sliceSource{chunks: []string{"We're open ", "9 to 5."}}
		tr := &mockTransport{src: src}
		s := openSession(widget.DefaultOptions())
		req, _ := s.Submit("What are your hours?")

		err := widget.Drive(context.Background(), s, tr, req)
		require.NoError(t, err)

		transcript := s.Transcript()
		require.Len(t, transcript, 3)
		assert.Equal(t, "What are your hours?", transcript[1].Content)
		assert.Equal(t, "We're open 9 to 5.", transcript[2].Content)
		assert.True(t, src.closed)
		require.Len(t, tr.requests, 1)
		assert.Len(t, tr.requests[0], 2)
	})

	t.Run("Transport failure", func(t *testing.T) {
		tr := &mockTransport{err: errors.New("connection refused")}
		s := openSession(widget.DefaultOptions())
		req, _ := s.Submit("hi")

		err := widget.Drive(context.Background(), s, tr, req)

		assert.Error(t, err)
		assert.Equal(t, widget.PhaseIdle, s.Phase())
		assert.Len(t, s.Transcript(), 2)
	})

	t.Run("Stream failure", func(t *testing.T) {
		src := &sliceSource{chunks: []string{"partial"}, err: errors.New("reset by peer")}
		s := openSession(widget.DefaultOptions())
		req, _ := s.Submit("hi")

		err := widget.Drive(context.Background(), s, &mockTransport{src: src}, req)

		assert.Error(t, err)
		assert.Equal(t, "partial", s.Transcript()[2].Content)
	})
}

func TestEntries(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC)
	clock := now.Add(-3 * time.Minute)
	s := widget.NewSession(widget.DefaultOptions(), widget.WithClock(func() time.Time { return clock }))
	s.Open()
	req, _ := s.Submit("hi")
	s.ApplyChunk(req.StreamID, "Hello")

	entries := s.Entries(now)

	require.Len(t, entries, 3)
	assert.Equal(t, "3:01 PM", entries[0].Timestamp)
	assert.Empty(t, entries[0].TimeAgo, "only the most recent assistant message is relative")
	assert.Empty(t, entries[1].TimeAgo)
	assert.Equal(t, "3 minutes ago", entries[2].TimeAgo)
	assert.True(t, entries[2].Streaming)

	opts := widget.DefaultOptions()
	opts.ShowTimestamp = false
	hidden := widget.NewSession(opts).Entries(now)
	assert.Empty(t, hidden[0].Timestamp)
	assert.Empty(t, hidden[0].TimeAgo)
}
