package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// echoTransport copies every received chunk to out as it arrives.
type echoTransport struct {
	widget.Transport
	out io.Writer
}

type echoSource struct {
	widget.ChunkSource
	out io.Writer
}

func (t echoTransport) Chat(ctx context.Context, messages []models.Message) (widget.ChunkSource, error) {
	src, err := t.Transport.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	return echoSource{ChunkSource: src, out: t.out}, nil
}

func (s echoSource) Next() (string, error) {
	chunk, err := s.ChunkSource.Next()
	if err == nil {
		_, _ = io.WriteString(s.out, chunk)
	}
	return chunk, err
}

// runLines reads one message per input line and prints replies as they stream. It is used when stdout
// is not a terminal.
func runLines(ctx context.Context, s *widget.Session, t widget.Transport, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	s.Open()
	title := s.Options().Title

	fmt.Fprintf(out, "%s: %s\n", title, s.Transcript()[0].Content)

	echo := echoTransport{Transport: t, out: out}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		req, ok := s.Submit(sc.Text())
		if !ok {
			continue
		}

		fmt.Fprintf(out, "%s: ", title)
		err := widget.Drive(ctx, s, echo, req)
		fmt.Fprintln(out)
		if err != nil {
			logger.Error().Err(err).Msg("Reply failed")
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(err, "failed to read input")
	}
	return nil
}
