// ABOUTME: Adapter for the hosted generateContent API
// ABOUTME: Sends one user turn per call and joins the first candidate's text parts

package adapter

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
)

// Gemini talks to the generateContent API. The key travels in a header so
// it never appears in logged URLs.
type Gemini struct {
	httpBackend
}

// NewGemini creates the adapter. client may be nil.
func NewGemini(cfg config.AdapterConfig, client *http.Client) *Gemini {
	a := &Gemini{httpBackend: newHTTPBackend(bridge.AdapterGemini, cfg, client)}
	a.authorize = func(req *http.Request) {
		req.Header.Set("x-goog-api-key", a.apiKey)
	}
	return a
}

func (a *Gemini) ID() string { return a.id }

func (a *Gemini) Status(context.Context) Status {
	st := a.configuredStatus()
	if st.Available && a.model == "" {
		st.Available = false
		st.Detail["reason"] = "missing model"
	}
	return st
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (a *Gemini) Process(ctx context.Context, _ *session.Session, msg bridge.InboundMessage, _ EmitFunc) (*Result, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: msg.Content}}}},
	}

	var resp geminiResponse
	path := "/v1beta/models/" + url.PathEscape(a.model) + ":generateContent"
	if err := a.postJSON(ctx, path, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		return nil, emptyReply(a.id)
	}
	var parts []string
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return nil, emptyReply(a.id)
	}
	return assistantResult(text, msg.VoiceHint), nil
}
