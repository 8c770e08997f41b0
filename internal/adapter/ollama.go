// ABOUTME: Adapter for a local open-weight model runtime
// ABOUTME: Probes /api/tags for status and calls /api/chat without streaming

package adapter

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
)

// Ollama talks to a local runtime. It needs no API key.
type Ollama struct {
	httpBackend
}

// NewOllama creates the adapter. client may be nil.
func NewOllama(cfg config.AdapterConfig, client *http.Client) *Ollama {
	return &Ollama{httpBackend: newHTTPBackend(bridge.AdapterOllama, cfg, client)}
}

func (a *Ollama) ID() string { return a.id }

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Status probes the runtime and checks that the configured model is pulled.
func (a *Ollama) Status(ctx context.Context) Status {
	st := Status{ID: a.id, Detail: a.baseDetail()}
	if a.disabled {
		st.Detail["reason"] = "disabled"
		return st
	}

	var tags ollamaTags
	if err := a.getJSON(ctx, "/api/tags", &tags); err != nil {
		st.Detail["reason"] = "unreachable"
		st.Detail["error"] = err.Error()
		return st
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	st.Detail["models"] = names

	if a.model != "" && !slices.ContainsFunc(names, func(n string) bool {
		return n == a.model || strings.TrimSuffix(n, ":latest") == a.model
	}) {
		st.Detail["reason"] = "model not pulled"
		return st
	}

	st.Available = true
	return st
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (a *Ollama) Process(ctx context.Context, _ *session.Session, msg bridge.InboundMessage, _ EmitFunc) (*Result, error) {
	req := ollamaChatRequest{
		Model:    a.model,
		Messages: []ollamaMessage{{Role: "user", Content: msg.Content}},
		Stream:   false,
	}

	var resp ollamaChatResponse
	if err := a.postJSON(ctx, "/api/chat", req, &resp); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return nil, emptyReply(a.id)
	}
	return assistantResult(text, msg.VoiceHint), nil
}
