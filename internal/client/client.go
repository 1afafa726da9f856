// Package client implements the widget transport over HTTP: it posts the conversation to the chat endpoint
// and decodes the streamed data stream response into text chunks.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/chatbot-widget/internal/datastream"
	"github.com/MegaGrindStone/chatbot-widget/internal/models"
	"github.com/MegaGrindStone/chatbot-widget/internal/widget"
	"github.com/pkg/errors"
)

// ChatPath is the path of the chat endpoint relative to the server base URL.
const ChatPath = "/api/chat"

// Client talks to a chat server.
type Client struct {
	baseURL string
	http    *http.Client
}

// StreamError is returned by Stream.Next when the server reported a failure inside the stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream error: " + e.Message
}

// New creates a client for the server at baseURL. A nil httpClient means http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Chat sends the conversation and returns the reply stream. A non-200 response is returned as an error
// carrying the server's message.
func (c *Client) Chat(ctx context.Context, messages []models.Message) (widget.ChunkSource, error) {
	body, err := json.Marshal(models.ChatRequest{Messages: messages})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}

	return &Stream{body: resp.Body, r: datastream.NewReader(resp.Body)}, nil
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &e); err == nil && e.Error != "" {
		return errors.Errorf("chat request failed with status %d: %s", resp.StatusCode, e.Error)
	}
	return errors.Errorf("chat request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// Stream is the reply to a chat request.
type Stream struct {
	body io.ReadCloser
	r    *datastream.Reader
	done bool
}

// Next returns the next text chunk. It returns io.EOF when the server finished the message and a
// *StreamError when the server reported a failure. Parts carrying no text are skipped.
func (s *Stream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		p, err := s.r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch p.Type {
		case datastream.PartText:
			if p.Text == "" {
				continue
			}
			return p.Text, nil
		case datastream.PartError:
			s.done = true
			return "", &StreamError{Message: p.Text}
		case datastream.PartFinishMessage:
			s.done = true
			return "", io.EOF
		}
	}
}

// Close releases the response body.
func (s *Stream) Close() error {
	return s.body.Close()
}
