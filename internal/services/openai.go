package services

import (
	"context"
	"io"
	"iter"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the LLM interface for interacting with OpenAI's language models.
type OpenAI struct {
	model     string
	maxTokens int

	client *goopenai.Client

	logger zerolog.Logger
}

// NewOpenAI creates a new OpenAI instance with the specified API key and model name. A non-empty baseURL
// points the client at an OpenAI compatible server.
func NewOpenAI(apiKey, baseURL, model string, maxTokens int, logger zerolog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		model:     model,
		maxTokens: maxTokens,
		client:    goopenai.NewClientWithConfig(cfg),
		logger:    logger.With().Str("module", "openai").Logger(),
	}
}

func openAIMessages(messages []models.Message) []goopenai.ChatCompletionMessage {
	system, conv := systemInstruction(messages)

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(conv)+1)
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, msg := range conv {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return msgs
}

// Chat is a wrapper around the OpenAI streaming chat completion API.
func (o OpenAI) Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := goopenai.ChatCompletionRequest{
			Model:     o.model,
			Messages:  openAIMessages(messages),
			MaxTokens: o.maxTokens,
			Stream:    true,
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		stream, err := o.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", errors.Wrap(err, "error sending request"))
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				yield("", errors.Wrap(err, "error receiving response"))
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			content := response.Choices[0].Delta.Content
			if content == "" {
				continue
			}
			o.logger.Trace().Str("content", content).Msg("Received delta")
			if !yield(content, nil) {
				return
			}
		}
	}
}
