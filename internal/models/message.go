package models

import (
	"time"
)

// Message represents an individual entry of a conversation. It contains the unique identifier, the
// participant's role, the text content, and the time the message was created. A message is immutable once
// it is sealed; only the assistant message that is currently streaming gets its Content appended to.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message typed by the widget user.
	RoleUser Role = "user"
	// RoleAssistant represents a message produced by the language model.
	RoleAssistant Role = "assistant"
	// RoleSystem represents an instruction message.
	RoleSystem Role = "system"
	// RoleTool represents the result of a tool invocation.
	RoleTool Role = "tool"
	// RoleFunction represents the result of a legacy function call.
	RoleFunction Role = "function"
	// RoleData represents an application data message that is never shown to the model.
	RoleData Role = "data"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool, RoleFunction, RoleData:
		return true
	}
	return false
}
