// ABOUTME: Event, role and inbound message types republished on session streams
// ABOUTME: Constructors stamp a fresh id and timestamp and copy payload maps

package bridge

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// EventType tags the shape of an Event.
type EventType string

const (
	EventMessage    EventType = "message"
	EventToolResult EventType = "tool_result"
	EventStatus     EventType = "status"
)

// Role identifies the author of a message event.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessagePayload is carried by message events.
type MessagePayload struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	VoiceHint string `json:"voiceHint,omitempty"`
}

// Event is one immutable entry of a session's stream.
// Message is set for EventMessage; Payload for tool_result and status.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Message   *MessagePayload `json:"message,omitempty"`
	Payload   map[string]any  `json:"payload,omitempty"`
}

// InboundMessage is what a client posts to a session.
type InboundMessage struct {
	Content   string
	VoiceHint string
}

func newEvent(t EventType) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates a message event authored by role.
func NewMessageEvent(role Role, content, voiceHint string) Event {
	e := newEvent(EventMessage)
	e.Message = &MessagePayload{Role: role, Content: content, VoiceHint: voiceHint}
	return e
}

// NewToolResultEvent wraps a tool result submitted by the client.
func NewToolResultEvent(toolName string, payload map[string]any) Event {
	e := newEvent(EventToolResult)
	e.Payload = map[string]any{
		"toolName": toolName,
		"payload":  maps.Clone(payload),
	}
	return e
}

// NewStatusEvent creates a status event with a copy of payload.
func NewStatusEvent(payload map[string]any) Event {
	e := newEvent(EventStatus)
	e.Payload = maps.Clone(payload)
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	return e
}
