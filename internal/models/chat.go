package models

import "github.com/pkg/errors"

// ChatRequest is the body accepted by the chat endpoint. The endpoint keeps no memory between requests, so
// Messages always carries the whole conversation in chronological order.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// ErrNoMessages is returned by Validate when the request carries an empty conversation.
var ErrNoMessages = errors.New("messages are required")

// Validate checks that the request carries at least one message and that every message has a known role.
func (c ChatRequest) Validate() error {
	if len(c.Messages) == 0 {
		return ErrNoMessages
	}
	for i, msg := range c.Messages {
		if !msg.Role.Valid() {
			return errors.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}
	return nil
}

// ProviderMessages returns the messages a text completion provider understands. User and assistant
// messages are kept verbatim; system messages are returned separately so providers can merge them into
// their system instruction. Data, tool and function messages are dropped.
func ProviderMessages(messages []Message) (system []string, conversation []Message) {
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleUser, RoleAssistant:
			conversation = append(conversation, msg)
		}
	}
	return system, conversation
}
