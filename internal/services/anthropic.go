package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"net/http"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tmaxmax/go-sse"
)

// Anthropic provides an interface to the Anthropic Messages API. It implements the LLM interface and
// streams chat completions of Claude models.
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string

	client *http.Client

	logger zerolog.Logger
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicStreamResponse struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"
	anthropicVersion     = "2023-06-01"
)

// NewAnthropic creates a new Anthropic instance with the specified API key, model name, and maximum
// token limit. An empty model falls back to DefaultAnthropicModel, a non-positive maxTokens to
// DefaultMaxTokens.
func NewAnthropic(apiKey, model string, maxTokens int, logger zerolog.Logger) Anthropic {
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return Anthropic{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  anthropicAPIEndpoint,
		client:    &http.Client{},
		logger:    logger.With().Str("module", "anthropic").Logger(),
	}
}

// WithEndpoint returns a copy of a that sends requests to endpoint instead of the public API.
func (a Anthropic) WithEndpoint(endpoint string) Anthropic {
	a.endpoint = endpoint
	return a
}

// Chat streams responses from the Anthropic API for a given sequence of messages. The fixed system prompt
// is sent as the system instruction, and the iterator yields text deltas in the order they arrive. The
// context can be used to cancel the request.
func (a Anthropic) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		system, ms := systemInstruction(messages)

		msgs := make([]anthropicMessage, len(ms))
		for i, msg := range ms {
			msgs[i] = anthropicMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			}
		}

		reqBody := anthropicChatRequest{
			Model:     a.model,
			Messages:  msgs,
			System:    system,
			MaxTokens: a.maxTokens,
			Stream:    true,
		}

		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			yield("", errors.Wrap(err, "error marshaling request"))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
		if err != nil {
			yield("", errors.Wrap(err, "error creating request"))
			return
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := a.client.Do(req)
		if err != nil {
			yield("", errors.Wrap(err, "error sending request"))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield("", anthropicStatusError(resp))
			return
		}

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", errors.Wrap(err, "error reading response"))
				return
			}
			switch ev.Type {
			case "error":
				var e anthropicError
				if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
					yield("", errors.Wrap(err, "error unmarshaling error"))
					return
				}
				yield("", errors.Errorf("anthropic error %s: %s", e.Error.Type, e.Error.Message))
				return
			case "message_stop":
				return
			case "content_block_delta":
				var res anthropicStreamResponse
				if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
					yield("", errors.Wrap(err, "error unmarshaling response"))
					return
				}
				if res.Delta.Text == "" {
					continue
				}
				if !yield(res.Delta.Text, nil) {
					return
				}
			default:
				a.logger.Trace().Str("event", ev.Type).Msg("Skipping event")
			}
		}
	}
}

func anthropicStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var e anthropicError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return errors.Errorf("anthropic error %s (status %d): %s", e.Error.Type, resp.StatusCode, e.Error.Message)
	}
	return errors.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
}
