package widget

import (
	"time"

	"github.com/MegaGrindStone/chatbot-widget/internal/models"
)

// Entry is a transcript message prepared for rendering.
type Entry struct {
	models.Message

	// Timestamp is the absolute creation time, empty when timestamps are hidden.
	Timestamp string
	// TimeAgo is the relative creation time. Only the last message gets one, and only when it comes from
	// the assistant.
	TimeAgo string
	// Streaming is true for the assistant message currently receiving chunks.
	Streaming bool
}

// Entries returns the transcript prepared for rendering at now.
func (s *Session) Entries(now time.Time) []Entry {
	entries := make([]Entry, len(s.transcript))
	for i, msg := range s.transcript {
		e := Entry{
			Message:   msg,
			Streaming: s.phase == PhaseStreaming && i == s.current,
		}
		if s.opts.ShowTimestamp {
			e.Timestamp = FormatTimestamp(msg.CreatedAt, now)
			if i == len(s.transcript)-1 && msg.Role == models.RoleAssistant {
				e.TimeAgo = TimeAgo(msg.CreatedAt, now)
			}
		}
		entries[i] = e
	}
	return entries
}
