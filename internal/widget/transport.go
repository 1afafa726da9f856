package widget

import (
	"context"
	"io"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/pkg/errors"
)

// ChunkSource is an ordered source of assistant text. Next returns the next chunk, io.EOF at the end of the
// stream, or any other error when the stream failed.
type ChunkSource interface {
	Next() (string, error)
	Close() error
}

// Transport sends a conversation to the chat endpoint and returns the streamed reply.
type Transport interface {
	Chat(ctx context.Context, messages []models.Message) (ChunkSource, error)
}

// Drive sends req through t and applies the streamed reply to s until the stream ends. It runs on the
// caller's goroutine, which must be the only one touching s. The returned error is the one the stream
// ended with, also recorded in s.LastError.
func Drive(ctx context.Context, s *Session, t Transport, req Request) error {
	src, err := t.Chat(ctx, req.Messages)
	if err != nil {
		err = errors.Wrap(err, "failed to start chat")
		s.Finish(req.StreamID, err)
		return err
	}
	defer src.Close()

	for {
		chunk, err := src.Next()
		if errors.Is(err, io.EOF) {
			s.Finish(req.StreamID, nil)
			return nil
		}
		if err != nil {
			s.Finish(req.StreamID, err)
			return err
		}
		s.ApplyChunk(req.StreamID, chunk)
	}
}
