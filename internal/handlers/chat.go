package handlers

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/MegaGrindStone/chatbot-widget/internal/datastream"
	"github.com/MegaGrindStone/chatbot-widget/internal/metrics"
	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/pkg/errors"
	"github.com/tmaxmax/go-sse"
)

// SSE event types of the event-stream framing.
var (
	textSSEType   = sse.Type("text")
	errorSSEType  = sse.Type("error")
	finishSSEType = sse.Type("finish")
)

// MaxDurationHeader advertises the processing budget of a chat request, in seconds.
const MaxDurationHeader = "X-Max-Duration"

const maxRequestBody = 1 << 20

// streamWriter frames relayed chunks for one response.
type streamWriter interface {
	start() error
	text(chunk string) error
	fail(msg string) error
	finish() error
}

// HandleChat relays a conversation to the LLM and streams the reply back as it is produced.
//
// The request body is a JSON object with a "messages" array. The conversation is validated before the
// provider is contacted, so malformed requests never reach it. The first provider item is awaited before
// any header is written: a provider that fails immediately yields a 502 with a JSON error body, while a
// failure after streaming has started is reported inside the stream.
//
// The response uses the data stream framing unless the client asks for text/event-stream.
func (m Main) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Warn().Str("method", r.Method).Msg("Method not allowed")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to decode chat request")
		metrics.ChatStreams.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		m.logger.Warn().Err(err).Msg("Invalid chat request")
		metrics.ChatStreams.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), m.maxDuration)
	defer cancel()

	next, stop := iter.Pull2(m.llm.Chat(ctx, req.Messages))
	defer stop()

	first, err, ok := next()
	if ok && err != nil {
		m.logger.Error().Err(err).Int("messages", len(req.Messages)).Msg("Provider failed before streaming")
		metrics.ChatStreams.WithLabelValues("provider_error").Inc()
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set(MaxDurationHeader, strconv.Itoa(int(m.maxDuration.Seconds())))

	var sw streamWriter
	if wantsEventStream(r) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			m.logger.Error().Err(err).Msg("Failed to upgrade to event stream")
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		sw = &sseWriter{sess: sess}
	} else {
		datastream.SetHeaders(w.Header())
		w.WriteHeader(http.StatusOK)
		sw = &dataStreamWriter{w: datastream.NewWriter(w)}
	}

	if err := m.relay(sw, first, ok, next); err != nil {
		m.logger.Warn().Err(err).Msg("Chat stream ended with error")
		return
	}
	metrics.ChatStreams.WithLabelValues("completed").Inc()
}

// relay writes the already pulled first item and the rest of the provider stream to sw. The returned
// error is the provider or write failure that ended the stream early.
func (m Main) relay(sw streamWriter, first string, ok bool, next func() (string, error, bool)) error {
	if err := sw.start(); err != nil {
		return errors.Wrap(err, "failed to write stream start")
	}

	chunk := first
	for ok {
		if chunk != "" {
			if err := sw.text(chunk); err != nil {
				metrics.ChatStreams.WithLabelValues("client_gone").Inc()
				return errors.Wrap(err, "failed to write chunk")
			}
			metrics.ChatChunks.Inc()
		}

		var err error
		chunk, err, ok = next()
		if ok && err != nil {
			metrics.ChatStreams.WithLabelValues("provider_error").Inc()
			if werr := sw.fail(err.Error()); werr != nil {
				m.logger.Debug().Err(werr).Msg("Failed to write stream error")
			}
			return errors.Wrap(err, "provider failed mid-stream")
		}
	}

	if err := sw.finish(); err != nil {
		return errors.Wrap(err, "failed to write stream finish")
	}
	return nil
}

func wantsEventStream(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		if strings.Contains(accept, "text/event-stream") {
			return true
		}
	}
	return false
}

type dataStreamWriter struct {
	w *datastream.Writer
}

func (d *dataStreamWriter) start() error {
	return d.w.StartStep(datastream.NewMessageID())
}

func (d *dataStreamWriter) text(chunk string) error {
	return d.w.Text(chunk)
}

func (d *dataStreamWriter) fail(msg string) error {
	if err := d.w.Error(msg); err != nil {
		return err
	}
	return d.w.Finish(datastream.FinishReasonError)
}

func (d *dataStreamWriter) finish() error {
	return d.w.Finish(datastream.FinishReasonStop)
}

type sseWriter struct {
	sess *sse.Session
}

func (s *sseWriter) start() error {
	return s.sess.Flush()
}

func (s *sseWriter) text(chunk string) error {
	return s.send(textSSEType, chunk)
}

func (s *sseWriter) fail(msg string) error {
	return s.send(errorSSEType, msg)
}

func (s *sseWriter) finish() error {
	return s.send(finishSSEType, string(datastream.FinishReasonStop))
}

func (s *sseWriter) send(typ sse.EventType, data string) error {
	msg := &sse.Message{Type: typ}
	// Data is JSON encoded, like the text parts of the data stream.
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg.AppendData(string(b))
	if err := s.sess.Send(msg); err != nil {
		return err
	}
	return s.sess.Flush()
}
