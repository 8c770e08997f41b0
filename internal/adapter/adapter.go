// ABOUTME: Adapter capability, status and result types shared by every backend
// ABOUTME: Defines the sentinel errors used by the registry and failover loop

package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/session"
)

// ErrNoAvailableAdapters indicates no candidate reported available.
var ErrNoAvailableAdapters = errors.New("no available adapters")

// ErrAdapterAlreadyRegistered indicates an adapter with the same ID is registered.
var ErrAdapterAlreadyRegistered = errors.New("adapter already registered")

// ErrUnknownAdapter indicates the adapter id is not registered.
var ErrUnknownAdapter = errors.New("unknown adapter")

// Status is recomputed on every call; it is never cached.
type Status struct {
	ID        string         `json:"id"`
	Available bool           `json:"available"`
	Detail    map[string]any `json:"detail,omitempty"`
}

// Result holds the events an adapter wants published once it returns.
type Result struct {
	Events []bridge.Event
	Text   string
}

// EmitFunc publishes an intermediate event before Process returns.
type EmitFunc func(bridge.Event)

// Adapter is one AI backend.
type Adapter interface {
	ID() string
	// Status must be side-effect free. It may probe the backend cheaply.
	Status(ctx context.Context) Status
	// Process returns an error for backend failures, timeouts and empty or
	// malformed replies. emit may be nil.
	Process(ctx context.Context, sess *session.Session, msg bridge.InboundMessage, emit EmitFunc) (*Result, error)
}

// timeoutReporter is implemented by adapters with a configured call timeout.
type timeoutReporter interface {
	Timeout() time.Duration
}

// assistantResult wraps reply text in a single assistant message event.
func assistantResult(text, voiceHint string) *Result {
	return &Result{
		Events: []bridge.Event{bridge.NewMessageEvent(bridge.RoleAssistant, text, voiceHint)},
		Text:   text,
	}
}
