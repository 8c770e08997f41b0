// ABOUTME: Adapter for OpenAI-compatible chat completion APIs
// ABOUTME: Sends one user turn to /v1/chat/completions with bearer auth

package adapter

import (
	"context"
	"net/http"
	"strings"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	httpBackend
}

// NewOpenAI creates the adapter. client may be nil.
func NewOpenAI(cfg config.AdapterConfig, client *http.Client) *OpenAI {
	a := &OpenAI{httpBackend: newHTTPBackend(bridge.AdapterOpenAI, cfg, client)}
	a.authorize = func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
	return a
}

func (a *OpenAI) ID() string { return a.id }

func (a *OpenAI) Status(context.Context) Status {
	return a.configuredStatus()
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	User     string          `json:"user,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

func (a *OpenAI) Process(ctx context.Context, sess *session.Session, msg bridge.InboundMessage, _ EmitFunc) (*Result, error) {
	req := openAIRequest{
		Model:    a.model,
		Messages: []openAIMessage{{Role: "user", Content: msg.Content}},
	}
	if sess != nil {
		req.User = sess.UserID
	}

	var resp openAIResponse
	if err := a.postJSON(ctx, "/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, emptyReply(a.id)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, emptyReply(a.id)
	}
	return assistantResult(text, msg.VoiceHint), nil
}
