// ABOUTME: Shared JSON-over-HTTP client used by every adapter
// ABOUTME: Applies auth headers and per-adapter timeouts and classifies failures

package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/2389/uta-gateway/internal/config"
)

const (
	// probeTimeout bounds status probes of local backends.
	probeTimeout = 2 * time.Second

	// maxResponseBytes caps how much of a reply is read.
	maxResponseBytes = 8 << 20

	// errorBodyBytes is how much of an error body is kept in the message.
	errorBodyBytes = 512
)

// httpBackend carries the settings and client shared by one adapter.
type httpBackend struct {
	id       string
	disabled bool
	baseURL  string
	apiKey   string
	model    string
	timeout  time.Duration
	client   *http.Client

	// authorize adds backend-specific auth headers.
	authorize func(req *http.Request)
}

func newHTTPBackend(id string, cfg config.AdapterConfig, client *http.Client) httpBackend {
	if client == nil {
		client = &http.Client{}
	}
	return httpBackend{
		id:       id,
		disabled: cfg.Disabled,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		client:   client,
	}
}

// Timeout returns the configured per-call timeout.
func (b *httpBackend) Timeout() time.Duration {
	return b.timeout
}

// postJSON sends body to path and decodes a 2xx reply into out.
func (b *httpBackend) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &BackendError{Adapter: b.id, Kind: KindDecode, Err: fmt.Errorf("encoding request: %w", err)}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &BackendError{Adapter: b.id, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if b.authorize != nil {
		b.authorize(req)
	}

	return b.do(req, out)
}

// getJSON fetches path with the probe deadline and decodes a 2xx reply into out.
// out may be nil when only reachability matters.
func (b *httpBackend) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return &BackendError{Adapter: b.id, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if b.authorize != nil {
		b.authorize(req)
	}

	return b.do(req, out)
}

func (b *httpBackend) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return transportError(b.id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(b.id, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &BackendError{
			Adapter:    b.id,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", truncate(strings.TrimSpace(string(body)), errorBodyBytes)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &BackendError{Adapter: b.id, Kind: KindDecode, Err: err}
	}
	return nil
}

// baseDetail is the status detail every adapter reports.
func (b *httpBackend) baseDetail() map[string]any {
	detail := map[string]any{"baseUrl": b.baseURL}
	if b.model != "" {
		detail["model"] = b.model
	}
	return detail
}

// configuredStatus reports hosted adapters as available when enabled and
// holding an API key. No request is made.
func (b *httpBackend) configuredStatus() Status {
	st := Status{ID: b.id, Detail: b.baseDetail()}
	switch {
	case b.disabled:
		st.Detail["reason"] = "disabled"
	case b.apiKey == "":
		st.Detail["reason"] = "missing api key"
	case b.baseURL == "":
		st.Detail["reason"] = "missing base url"
	default:
		st.Available = true
	}
	return st
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
