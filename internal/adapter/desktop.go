// ABOUTME: Adapter for the desktop assistant app's local bridge endpoint
// ABOUTME: Emits every reply item but the last as an intermediate event

package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
)

// Desktop talks to the desktop app over loopback HTTP.
type Desktop struct {
	httpBackend
}

// NewDesktop creates the adapter. client may be nil.
func NewDesktop(cfg config.AdapterConfig, client *http.Client) *Desktop {
	a := &Desktop{httpBackend: newHTTPBackend(bridge.AdapterDesktop, cfg, client)}
	a.authorize = func(req *http.Request) {
		if a.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+a.apiKey)
		}
	}
	return a
}

func (a *Desktop) ID() string { return a.id }

type desktopStatus struct {
	Ready   bool   `json:"ready"`
	Version string `json:"version,omitempty"`
}

// Status asks the app whether it is ready to take messages.
func (a *Desktop) Status(ctx context.Context) Status {
	st := Status{ID: a.id, Detail: a.baseDetail()}
	if a.disabled {
		st.Detail["reason"] = "disabled"
		return st
	}

	var ds desktopStatus
	if err := a.getJSON(ctx, "/status", &ds); err != nil {
		st.Detail["reason"] = "unreachable"
		st.Detail["error"] = err.Error()
		return st
	}
	if ds.Version != "" {
		st.Detail["version"] = ds.Version
	}
	if !ds.Ready {
		st.Detail["reason"] = "not ready"
		return st
	}

	st.Available = true
	return st
}

type desktopRequest struct {
	SessionID      string `json:"sessionId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	Content        string `json:"content"`
	VoiceHint      string `json:"voiceHint,omitempty"`
}

type desktopItem struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	VoiceHint string `json:"voiceHint,omitempty"`
}

type desktopResponse struct {
	Events  []desktopItem `json:"events"`
	Content string        `json:"content"`
}

func (a *Desktop) Process(ctx context.Context, sess *session.Session, msg bridge.InboundMessage, emit EmitFunc) (*Result, error) {
	req := desktopRequest{Content: msg.Content, VoiceHint: msg.VoiceHint}
	if sess != nil {
		req.SessionID = sess.ID
		req.ConversationID = sess.ConversationID
		req.UserID = sess.UserID
	}

	var resp desktopResponse
	if err := a.postJSON(ctx, "/message", req, &resp); err != nil {
		return nil, err
	}

	items := resp.Events
	if len(items) == 0 && strings.TrimSpace(resp.Content) != "" {
		items = []desktopItem{{Role: string(bridge.RoleAssistant), Content: resp.Content}}
	}

	var events []bridge.Event
	for _, item := range items {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		hint := item.VoiceHint
		if hint == "" {
			hint = msg.VoiceHint
		}
		events = append(events, bridge.NewMessageEvent(desktopRole(item.Role), item.Content, hint))
	}
	if len(events) == 0 {
		return nil, emptyReply(a.id)
	}

	last := events[len(events)-1]
	if emit == nil {
		return &Result{Events: events, Text: last.Message.Content}, nil
	}
	for _, ev := range events[:len(events)-1] {
		emit(ev)
	}
	return &Result{Events: []bridge.Event{last}, Text: last.Message.Content}, nil
}

// desktopRole maps the app's roles onto bridge roles; unknown roles are assistant.
func desktopRole(role string) bridge.Role {
	switch bridge.Role(role) {
	case bridge.RoleTool:
		return bridge.RoleTool
	default:
		return bridge.RoleAssistant
	}
}
