// ABOUTME: Server-Sent Events endpoint streaming a session's events to one client
// ABOUTME: Writes keep-alive comments on a fixed interval and unsubscribes on disconnect

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/session"
)

// defaultKeepalive is used when no keepalive interval is configured.
const defaultKeepalive = 15 * time.Second

// handleStream handles GET /uta/session/{id}/stream.
// A token query parameter is checked when present and required when
// sessions.require_stream_token is set.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	token := r.URL.Query().Get("token")

	switch {
	case token != "":
		if _, err := g.sessions.Validate(id, token); err != nil {
			g.sendJSONError(w, http.StatusUnauthorized, errInvalidSession)
			return
		}
	case g.config.Sessions.RequireStreamToken:
		g.sendJSONError(w, http.StatusUnauthorized, errInvalidSession)
		return
	}

	// Check streaming support before subscribing (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, unsubscribe, err := g.sessions.Subscribe(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			g.sendJSONError(w, http.StatusServiceUnavailable, "gateway is shutting down")
			return
		}
		g.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	g.logger.Debug("stream opened", "session_id", id)
	defer g.logger.Debug("stream closed", "session_id", id)

	interval := g.config.Sessions.KeepaliveInterval
	if interval <= 0 {
		interval = defaultKeepalive
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-g.streamCtx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// session deleted
				return
			}
			if err := g.writeSSEEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one event as an id line and a single data line.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, ev bridge.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("failed to marshal event", "event_id", ev.ID, "error", err)
		return nil
	}
	_, err = fmt.Fprintf(w, "id: %s\ndata: %s\n\n", ev.ID, data)
	return err
}
