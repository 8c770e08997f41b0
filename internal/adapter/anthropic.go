// ABOUTME: Adapter for the first-party hosted Messages API
// ABOUTME: Sends one user turn to /v1/messages and returns the joined text blocks

package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 1024
)

// Anthropic talks to the hosted Messages API.
type Anthropic struct {
	httpBackend
}

// NewAnthropic creates the adapter. client may be nil.
func NewAnthropic(cfg config.AdapterConfig, client *http.Client) *Anthropic {
	a := &Anthropic{httpBackend: newHTTPBackend(bridge.AdapterAnthropic, cfg, client)}
	a.authorize = func(req *http.Request) {
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
	}
	return a
}

func (a *Anthropic) ID() string { return a.id }

func (a *Anthropic) Status(context.Context) Status {
	return a.configuredStatus()
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (a *Anthropic) Process(ctx context.Context, sess *session.Session, msg bridge.InboundMessage, _ EmitFunc) (*Result, error) {
	req := anthropicRequest{
		Model:     a.model,
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropicMessage{{Role: "user", Content: msg.Content}},
	}
	if sess != nil && sess.UserID != "" {
		req.Metadata = map[string]string{"user_id": sess.UserID}
	}

	var resp anthropicResponse
	if err := a.postJSON(ctx, "/v1/messages", req, &resp); err != nil {
		return nil, err
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, "\n"))
	if text == "" {
		return nil, emptyReply(a.id)
	}
	return assistantResult(text, msg.VoiceHint), nil
}
