package services

import (
	"context"
	"iter"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and handles streaming chat completions.
type Ollama struct {
	host  string
	model string

	client *api.Client

	logger zerolog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name. The host parameter
// should be a valid URL pointing to an Ollama server.
func NewOllama(host, model string, logger zerolog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, errors.Wrap(err, "invalid ollama host")
	}

	return Ollama{
		host:   host,
		model:  model,
		client: api.NewClient(u, &http.Client{}),
		logger: logger.With().Str("module", "ollama").Logger(),
	}, nil
}

// Chat implements the LLM interface by streaming responses from the Ollama model. The iterator yields
// response chunks in the order the server produces them.
func (o Ollama) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		system, conv := systemInstruction(messages)

		msgs := make([]api.Message, 0, len(conv)+1)
		msgs = append(msgs, api.Message{
			Role:    "system",
			Content: system,
		})
		for _, msg := range conv {
			msgs = append(msgs, api.Message{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}

		t := true
		req := api.ChatRequest{
			Model:    o.model,
			Messages: msgs,
			Stream:   &t,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stopped := false
		if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			if stopped || res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		}); err != nil {
			if stopped && errors.Is(err, context.Canceled) {
				return
			}
			yield("", errors.Wrap(err, "error sending request"))
		}
	}
}
