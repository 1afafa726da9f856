package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/client"
	"github.com/MegaGrindStone/chatbot-widget/internal/datastream"
	"github.com/MegaGrindStone/chatbot-widget/internal/handlers"
	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"
)

type mockLLM struct {
	responses []string
	// errAt is the index of the response replaced by err. A negative value fails after all responses.
	errAt int
	err   error

	received [][]models.Message
	deadline time.Time
}

type mockPinger struct {
	err error
}

func newMain(t *testing.T, llm handlers.LLM, cfg handlers.Config) handlers.Main {
	t.Helper()
	if cfg.Widget.Position == "" {
		cfg.Widget = widget.DefaultOptions()
	}
	m, err := handlers.NewMain(llm, cfg, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestNewMain(t *testing.T) {
	_, err := handlers.NewMain(nil, handlers.Config{Widget: widget.DefaultOptions()}, zerolog.Nop())
	assert.Error(t, err)

	opts := widget.DefaultOptions()
	opts.Position = "middle"
	_, err = handlers.NewMain(&mockLLM{}, handlers.Config{Widget: opts}, zerolog.Nop())
	assert.Error(t, err)

	_, err = handlers.NewMain(&mockLLM{}, handlers.Config{Widget: widget.DefaultOptions()}, zerolog.Nop())
	assert.NoError(t, err)
}

func TestHandleChatRejects(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "invalid json",
			method:     http.MethodPost,
			body:       `{"messages":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty messages",
			method:     http.MethodPost,
			body:       `{"messages":[]}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown role",
			method:     http.MethodPost,
			body:       `{"messages":[{"id":"1","role":"robot","content":"hi"}]}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{responses: []string{"never"}, errAt: -1}
			m := newMain(t, llm, handlers.Config{})

			req := httptest.NewRequest(tt.method, "/api/chat", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			m.HandleChat(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Empty(t, llm.received, "provider must not be called")

			var body map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestHandleChatStreams(t *testing.T) {
	llm := &mockLLM{responses: []string{"Hel", "", "lo ", "there"}, errAt: -1}
	m := newMain(t, llm, handlers.Config{MaxDuration: 5 * time.Second})

	body := `{"messages":[{"id":"1","role":"assistant","content":"greeting"},{"id":"2","role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rr := httptest.NewRecorder()
	start := time.Now()
	m.HandleChat(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, datastream.HeaderValue, rr.Header().Get(datastream.HeaderName))
	assert.Equal(t, datastream.ContentType, rr.Header().Get("Content-Type"))
	assert.Equal(t, "5", rr.Header().Get(handlers.MaxDurationHeader))

	require.Len(t, llm.received, 1)
	assert.Len(t, llm.received[0], 2)
	assert.WithinDuration(t, start.Add(5*time.Second), llm.deadline, time.Second)

	parts := readParts(t, rr.Body)
	var types []datastream.PartType
	var text strings.Builder
	for _, p := range parts {
		types = append(types, p.Type)
		if p.Type == datastream.PartText {
			text.WriteString(p.Text)
		}
	}
	assert.Equal(t, []datastream.PartType{
		datastream.PartStartStep,
		datastream.PartText,
		datastream.PartText,
		datastream.PartText,
		datastream.PartFinishStep,
		datastream.PartFinishMessage,
	}, types)
	assert.Equal(t, "Hello there", text.String())
	assert.True(t, strings.HasPrefix(parts[0].MessageID, "msg-"))
	assert.Equal(t, datastream.FinishReasonStop, parts[len(parts)-1].FinishReason)
}

func TestHandleChatDefaultMaxDuration(t *testing.T) {
	m := newMain(t, &mockLLM{responses: []string{"ok"}, errAt: -1}, handlers.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"messages":[{"id":"1","role":"user","content":"hi"}]}`))
	rr := httptest.NewRecorder()
	m.HandleChat(rr, req)

	assert.Equal(t, "30", rr.Header().Get(handlers.MaxDurationHeader))
}

func TestHandleChatProviderErrors(t *testing.T) {
	body := `{"messages":[{"id":"1","role":"user","content":"hi"}]}`

	t.Run("before first chunk", func(t *testing.T) {
		m := newMain(t, &mockLLM{errAt: 0, err: errors.New("invalid api key")}, handlers.Config{})

		rr := httptest.NewRecorder()
		m.HandleChat(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Empty(t, rr.Header().Get(datastream.HeaderName))
		assert.JSONEq(t, `{"error":"invalid api key"}`, rr.Body.String())
	})

	t.Run("mid stream", func(t *testing.T) {
		m := newMain(t, &mockLLM{responses: []string{"partial"}, errAt: 1, err: errors.New("overloaded")}, handlers.Config{})

		rr := httptest.NewRecorder()
		m.HandleChat(rr, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))

		require.Equal(t, http.StatusOK, rr.Code)
		parts := readParts(t, rr.Body)
		require.Len(t, parts, 5)
		assert.Equal(t, datastream.PartText, parts[1].Type)
		assert.Equal(t, "partial", parts[1].Text)
		assert.Equal(t, datastream.PartError, parts[2].Type)
		assert.Equal(t, "overloaded", parts[2].Text)
		assert.Equal(t, datastream.FinishReasonError, parts[4].FinishReason)
	})
}

func TestHandleChatEventStream(t *testing.T) {
	m := newMain(t, &mockLLM{responses: []string{"line one\n", "line two"}, errAt: -1}, handlers.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat",
		strings.NewReader(`{"messages":[{"id":"1","role":"user","content":"hi"}]}`))
	req.Header.Set("Accept", "text/event-stream")
	rr := httptest.NewRecorder()
	m.HandleChat(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	var types []string
	var text strings.Builder
	for ev, err := range sse.Read(rr.Body, nil) {
		require.NoError(t, err)
		types = append(types, ev.Type)
		if ev.Type == "text" {
			var chunk string
			require.NoError(t, json.Unmarshal([]byte(ev.Data), &chunk))
			text.WriteString(chunk)
		}
	}
	assert.Equal(t, []string{"text", "text", "finish"}, types)
	assert.Equal(t, "line one\nline two", text.String())
}

func TestHandleHome(t *testing.T) {
	opts := widget.DefaultOptions()
	opts.Title = "Support Bot"
	opts.InitialMessage = "Hello **friend**"
	opts.Position = widget.PositionTopLeft
	m := newMain(t, &mockLLM{}, handlers.Config{Widget: opts})

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "home page",
			url:        "/",
			wantStatus: http.StatusOK,
			wantBody: []string{
				"Support Bot",
				"<strong>friend</strong>",
				"top-6 left-6",
				`data-chat-path="/api/chat"`,
				`data-animated="true"`,
				`data-show-timestamp="true"`,
			},
		},
		{
			name:       "unknown page",
			url:        "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			m.HandleHome(rr, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, rr.Body.String(), want)
			}
		})
	}
}

func TestHandleWidgetConfig(t *testing.T) {
	m := newMain(t, &mockLLM{}, handlers.Config{})

	rr := httptest.NewRecorder()
	m.HandleWidgetConfig(rr, httptest.NewRequest(http.MethodGet, "/api/widget", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var got widget.Options
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	want := widget.DefaultOptions()
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.Position, got.Position)
	assert.Equal(t, want.InitialMessage, got.InitialMessage)

	rr = httptest.NewRecorder()
	m.HandleWidgetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/widget", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]handlers.Pinger
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "healthy store",
			checks:     map[string]handlers.Pinger{"ratelimit": mockPinger{}},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "failing store",
			checks: map[string]handlers.Pinger{
				"ratelimit": mockPinger{err: errors.New("connection refused")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMain(t, &mockLLM{}, handlers.Config{HealthChecks: tt.checks})

			rr := httptest.NewRecorder()
			m.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			var report struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
			assert.Equal(t, tt.wantState, report.Status)
		})
	}
}

// TestWidgetRoundTrip drives a widget session through the HTTP client against the real handler.
func TestWidgetRoundTrip(t *testing.T) {
	llm := &mockLLM{responses: []string{"The answer ", "is ", "42."}, errAt: -1}
	m := newMain(t, llm, handlers.Config{})

	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", m.HandleChat)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var sent, received []string
	opts := widget.DefaultOptions()
	opts.OnSendMessage = func(msg string) { sent = append(sent, msg) }
	opts.OnReceiveMessage = func(msg string) { received = append(received, msg) }

	s := widget.NewSession(opts)
	s.Open()
	req, ok := s.Submit("What is the answer?")
	require.True(t, ok)

	err := widget.Drive(context.Background(), s, client.New(srv.URL, srv.Client()), req)
	require.NoError(t, err)

	transcript := s.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, models.RoleAssistant, transcript[2].Role)
	assert.Equal(t, "The answer is 42.", transcript[2].Content)
	assert.Equal(t, widget.PhaseIdle, s.Phase())
	assert.Equal(t, []string{"What is the answer?"}, sent)
	assert.Equal(t, []string{"The answer is 42."}, received)

	require.Len(t, llm.received, 1)
	assert.Len(t, llm.received[0], 2, "greeting and user message are sent")

	// A provider failure before the first chunk reaches the session as an error without a reply.
	llm.responses, llm.errAt, llm.err = nil, 0, errors.New("down")
	req, ok = s.Submit("Again?")
	require.True(t, ok)

	err = widget.Drive(context.Background(), s, client.New(srv.URL, srv.Client()), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	assert.Len(t, s.Transcript(), 4)
	assert.Equal(t, widget.PhaseIdle, s.Phase())
	assert.Error(t, s.LastError())
}

func readParts(t *testing.T, r io.Reader) []datastream.Part {
	t.Helper()
	dr := datastream.NewReader(r)
	var parts []datastream.Part
	for {
		p, err := dr.Next()
		if errors.Is(err, io.EOF) {
			return parts
		}
		require.NoError(t, err)
		parts = append(parts, p)
	}
}

func (m *mockLLM) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	m.received = append(m.received, messages)
	m.deadline, _ = ctx.Deadline()
	return func(yield func(string, error) bool) {
		for i, r := range m.responses {
			if i == m.errAt {
				yield("", m.err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if m.errAt >= len(m.responses) || (m.err != nil && m.errAt < 0) {
			yield("", m.err)
		}
	}
}

func (p mockPinger) Ping(_ context.Context) error {
	return p.err
}
