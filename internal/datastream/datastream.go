// Package datastream implements the line-oriented data stream framing used by the chat endpoint. Every
// part is written as a one character type code, a colon, a JSON value and a newline:
//
//	f:{"messageId":"msg-01J..."}
//	0:"Hel"
//	0:"lo"
//	e:{"finishReason":"stop","isContinued":false}
//	d:{"finishReason":"stop"}
//
// The framing is what browser clients built on the AI SDK `useChat` hook expect, so the endpoint can be
// dropped behind an existing widget unchanged.
package datastream

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

// PartType is the one character code that prefixes every line of the stream.
type PartType byte

// FinishReason describes why a stream ended.
type FinishReason string

const (
	// PartText carries a chunk of assistant text as a JSON string.
	PartText PartType = '0'
	// PartData carries an array of arbitrary JSON values.
	PartData PartType = '2'
	// PartError carries an error message as a JSON string.
	PartError PartType = '3'
	// PartFinishMessage closes the whole assistant message.
	PartFinishMessage PartType = 'd'
	// PartFinishStep closes one generation step.
	PartFinishStep PartType = 'e'
	// PartStartStep opens a generation step and names the message being produced.
	PartStartStep PartType = 'f'

	// FinishReasonStop means the provider completed normally.
	FinishReasonStop FinishReason = "stop"
	// FinishReasonError means the stream was cut by an error.
	FinishReasonError FinishReason = "error"

	// HeaderName is the response header advertising the framing version.
	HeaderName = "X-Vercel-AI-Data-Stream"
	// HeaderValue is the only framing version produced and accepted.
	HeaderValue = "v1"
	// ContentType is the content type of a data stream response.
	ContentType = "text/plain; charset=utf-8"

	maxLineSize = 1 << 20
)

// Part is one decoded line of a data stream.
type Part struct {
	Type PartType

	// Text would be filled if Type is PartText or PartError.
	Text string
	// MessageID would be filled if Type is PartStartStep.
	MessageID string
	// FinishReason would be filled if Type is PartFinishStep or PartFinishMessage.
	FinishReason FinishReason

	// Raw holds the undecoded JSON value of the part.
	Raw json.RawMessage
}

type startStep struct {
	MessageID string `json:"messageId"`
}

type finishStep struct {
	FinishReason FinishReason `json:"finishReason"`
	IsContinued  bool         `json:"isContinued"`
}

type finishMessage struct {
	FinishReason FinishReason `json:"finishReason"`
}

// Writer encodes parts onto an underlying writer, flushing after every part when the writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. If w is an http.ResponseWriter that implements http.Flusher, every part is flushed to
// the client as soon as it is written.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// SetHeaders sets the response headers of a data stream response.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", ContentType)
	h.Set(HeaderName, HeaderValue)
	h.Set("Cache-Control", "no-cache")
}

// NewMessageID returns a fresh identifier for a streamed assistant message.
func NewMessageID() string {
	return "msg-" + ulid.Make().String()
}

// StartStep writes the part that opens a step for the given message.
func (w *Writer) StartStep(messageID string) error {
	return w.write(PartStartStep, startStep{MessageID: messageID})
}

// Text writes a chunk of assistant text.
func (w *Writer) Text(text string) error {
	return w.write(PartText, text)
}

// Error writes an error part.
func (w *Writer) Error(msg string) error {
	return w.write(PartError, msg)
}

// Finish writes the step and message finish parts.
func (w *Writer) Finish(reason FinishReason) error {
	if err := w.write(PartFinishStep, finishStep{FinishReason: reason}); err != nil {
		return err
	}
	return w.write(PartFinishMessage, finishMessage{FinishReason: reason})
}

func (w *Writer) write(t PartType, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal stream part")
	}
	line := make([]byte, 0, len(b)+3)
	line = append(line, byte(t), ':')
	line = append(line, b...)
	line = append(line, '\n')
	if _, err := w.w.Write(line); err != nil {
		return errors.Wrap(err, "failed to write stream part")
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

// Reader decodes parts from a data stream.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader returns a Reader that decodes parts from r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next part of the stream. It returns io.EOF once the underlying reader is exhausted.
// Blank lines are skipped; a line that does not follow the framing is reported as an error.
func (r *Reader) Next() (Part, error) {
	for r.sc.Scan() {
		line := r.sc.Bytes()
		if len(line) == 0 {
			continue
		}
		return parseLine(line)
	}
	if err := r.sc.Err(); err != nil {
		return Part{}, errors.Wrap(err, "failed to read stream")
	}
	return Part{}, io.EOF
}

func parseLine(line []byte) (Part, error) {
	if len(line) < 2 || line[1] != ':' {
		return Part{}, errors.Errorf("malformed stream line: %q", line)
	}
	p := Part{
		Type: PartType(line[0]),
		Raw:  json.RawMessage(append([]byte(nil), line[2:]...)),
	}

	var err error
	switch p.Type {
	case PartText, PartError:
		err = json.Unmarshal(p.Raw, &p.Text)
	case PartStartStep:
		var s startStep
		err = json.Unmarshal(p.Raw, &s)
		p.MessageID = s.MessageID
	case PartFinishStep, PartFinishMessage:
		var f finishMessage
		err = json.Unmarshal(p.Raw, &f)
		p.FinishReason = f.FinishReason
	}
	if err != nil {
		return Part{}, errors.Wrapf(err, "failed to decode %q part", string(p.Type))
	}
	return p, nil
}
