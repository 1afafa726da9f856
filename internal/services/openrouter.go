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

// OpenRouter provides an implementation of the LLM interface for interacting with OpenRouter's language
// models.
type OpenRouter struct {
	apiKey   string
	model    string
	endpoint string

	client *http.Client

	logger zerolog.Logger
}

type openRouterChatRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openRouterStreamingResponse struct {
	Choices []openRouterStreamingChoice `json:"choices"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openRouterStreamingChoice struct {
	Delta openRouterMessage `json:"delta"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// NewOpenRouter creates a new OpenRouter instance with the specified API key and model name.
func NewOpenRouter(apiKey, model string, logger zerolog.Logger) OpenRouter {
	return OpenRouter{
		apiKey:   apiKey,
		model:    model,
		endpoint: openRouterAPIEndpoint,
		client:   &http.Client{},
		logger:   logger.With().Str("module", "openrouter").Logger(),
	}
}

// WithEndpoint returns a copy of o that sends requests to endpoint instead of the public API.
func (o OpenRouter) WithEndpoint(endpoint string) OpenRouter {
	o.endpoint = endpoint
	return o
}

// Chat streams responses from the OpenRouter API for a given sequence of messages. The iterator yields
// content deltas until the provider sends the [DONE] sentinel.
func (o OpenRouter) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := o.doRequest(ctx, messages)
		if err != nil {
			yield("", errors.Wrap(err, "error sending request"))
			return
		}
		defer resp.Body.Close()

		for ev, err := range sse.Read(resp.Body, nil) {
			if err != nil {
				yield("", errors.Wrap(err, "error reading response"))
				return
			}

			o.logger.Trace().Str("event", ev.Data).Msg("Received event")

			if ev.Data == "[DONE]" {
				return
			}

			var res openRouterStreamingResponse
			if err := json.Unmarshal([]byte(ev.Data), &res); err != nil {
				yield("", errors.Wrap(err, "error unmarshaling response"))
				return
			}
			if res.Error != nil {
				yield("", errors.Errorf("openrouter error %d: %s", res.Error.Code, res.Error.Message))
				return
			}

			if len(res.Choices) == 0 || res.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(res.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func (o OpenRouter) doRequest(ctx context.Context, messages []models.Message) (*http.Response, error) {
	system, conv := systemInstruction(messages)

	msgs := make([]openRouterMessage, 0, len(conv)+1)
	msgs = append(msgs, openRouterMessage{
		Role:    "system",
		Content: system,
	})
	for _, msg := range conv {
		msgs = append(msgs, openRouterMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	jsonBody, err := json.Marshal(openRouterChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "error marshaling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.endpoint+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, "error creating request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/MegaGrindStone/chatbot-widget/")
	req.Header.Set("X-Title", "Chatbot Widget")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errors.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
