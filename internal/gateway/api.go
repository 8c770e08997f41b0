// ABOUTME: HTTP API handlers for sessions, messages, tool results and diagnostics
// ABOUTME: Validates request bodies before any session lookup or adapter call

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/2389/uta-gateway/internal/adapter"
	"github.com/2389/uta-gateway/internal/auth"
	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/dedupe"
	"github.com/2389/uta-gateway/internal/session"
	"github.com/2389/uta-gateway/internal/store"
	"github.com/2389/uta-gateway/internal/telemetry"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// errInvalidSession is the single 401 message for unknown ids and wrong tokens.
const errInvalidSession = "invalid session or token"

// CreateSessionRequest is the JSON request body for POST /uta/session.
type CreateSessionRequest struct {
	UserID   string         `json:"userId"`
	Adapter  string         `json:"adapter,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateSessionResponse is the JSON response for POST /uta/session.
type CreateSessionResponse struct {
	SessionID      string `json:"sessionId"`
	SessionToken   string `json:"sessionToken"`
	Adapter        string `json:"adapter"`
	ConversationID string `json:"conversationId"`
}

// MessageBody is the message carried by SendMessageRequest.
type MessageBody struct {
	Content   string `json:"content"`
	VoiceHint string `json:"voiceHint,omitempty"`
}

// SendMessageRequest is the JSON request body for POST /uta/message.
// MessageID is an optional client key that makes retries idempotent.
type SendMessageRequest struct {
	SessionID string       `json:"sessionId"`
	Token     string       `json:"token"`
	MessageID string       `json:"messageId,omitempty"`
	Message   *MessageBody `json:"message"`
}

// ToolResultRequest is the JSON request body for POST /uta/tool-result.
type ToolResultRequest struct {
	SessionID string         `json:"sessionId"`
	Token     string         `json:"token"`
	ToolName  string         `json:"toolName"`
	Payload   map[string]any `json:"payload"`
}

// AcceptedResponse is returned by the message and tool-result endpoints.
type AcceptedResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"eventId"`
	Adapter   string `json:"adapter,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// HeartbeatResponse is the JSON response for GET /uta/heartbeat.
type HeartbeatResponse struct {
	Status         string                        `json:"status"`
	Timestamp      time.Time                     `json:"timestamp"`
	ActiveSessions []session.Summary             `json:"activeSessions"`
	Runtime        config.RuntimeConfig          `json:"runtime"`
	Adapters       []adapter.Status              `json:"adapters"`
	Telemetry      map[string]telemetry.Snapshot `json:"telemetry"`
	History        []*store.InvocationStats      `json:"history,omitempty"`
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// handleCreateSession handles POST /uta/session.
func (g *Gateway) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !g.decodeBody(w, r, &req) {
		return
	}
	if details := validateCreateSession(&req); len(details) > 0 {
		g.sendValidationError(w, details)
		return
	}

	if err := auth.CheckSubject(r.Context(), req.UserID); err != nil {
		g.logger.Warn("session creation rejected", "user_id", req.UserID, "error", err)
		g.sendJSONError(w, http.StatusUnauthorized, "token subject does not match userId")
		return
	}

	preferred := req.Adapter
	if preferred == "" {
		preferred = g.runtime.Preferred()
	}
	st, ok := g.adapters.SelectAdapter(r.Context(), preferred)
	if !ok {
		g.logger.Warn("no adapters available for new session", "user_id", req.UserID)
		g.sendJSONError(w, http.StatusServiceUnavailable, "no adapters available")
		return
	}

	sess, err := g.sessions.Create(req.UserID, st.ID, req.Metadata)
	if err != nil {
		g.logger.Error("failed to create session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:      sess.ID,
		SessionToken:   sess.Token,
		Adapter:        sess.Adapter,
		ConversationID: sess.ConversationID,
	})
}

// handleSendMessage handles POST /uta/message.
//
// Responsibilities:
//  1. Validate the body and the session token
//  2. Answer retried message ids from the dedupe cache
//  3. Publish the user's message event
//  4. Run the adapter failover pass, publishing intermediate events
//  5. Rebind the session when a different adapter answered
//  6. Publish the result events and accept with the last event id
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !g.decodeBody(w, r, &req) {
		return
	}
	if details := validateSendMessage(&req); len(details) > 0 {
		g.sendValidationError(w, details)
		return
	}

	sess, err := g.sessions.Validate(req.SessionID, req.Token)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, errInvalidSession)
		return
	}

	dedupeKey := ""
	if req.MessageID != "" {
		dedupeKey = sess.ID + ":" + req.MessageID
		switch state, reply := g.dedupe.Claim(dedupeKey); state {
		case dedupe.Pending:
			g.sendJSONError(w, http.StatusConflict, "message is already being processed")
			return
		case dedupe.Done:
			g.logger.Debug("duplicate message id", "session_id", sess.ID, "message_id", req.MessageID)
			g.writeJSON(w, http.StatusOK, AcceptedResponse{
				Status:    "accepted",
				EventID:   reply.EventID,
				Adapter:   reply.Adapter,
				Duplicate: true,
			})
			return
		}
	}

	pub := &publisher{store: g.sessions, sessionID: sess.ID}
	pub.publish(bridge.NewMessageEvent(bridge.RoleUser, req.Message.Content, req.Message.VoiceHint))

	msg := bridge.InboundMessage{Content: req.Message.Content, VoiceHint: req.Message.VoiceHint}

	// Adapter calls run to completion even if the client disconnects.
	outcome, err := g.adapters.ProcessMessage(context.WithoutCancel(r.Context()), sess, msg, pub.publish)
	if err != nil {
		if dedupeKey != "" {
			g.dedupe.Release(dedupeKey)
		}
		failed := g.publishFailure(sess, err, pub)
		g.sendJSONError(w, http.StatusInternalServerError, "message processing failed, last adapter: "+failed)
		return
	}

	if outcome.AdapterID != sess.Adapter {
		g.sessions.UpdateAdapter(sess.ID, outcome.AdapterID)
		pub.publish(bridge.NewStatusEvent(map[string]any{
			"state": "adapter_switched",
			"from":  sess.Adapter,
			"to":    outcome.AdapterID,
		}))
	}

	if outcome.Result != nil {
		for _, ev := range outcome.Result.Events {
			pub.publish(ev)
		}
	}

	lastID := pub.last()
	if dedupeKey != "" {
		g.dedupe.Complete(dedupeKey, dedupe.Reply{EventID: lastID, Adapter: outcome.AdapterID})
	}

	g.writeJSON(w, http.StatusOK, AcceptedResponse{
		Status:  "accepted",
		EventID: lastID,
		Adapter: outcome.AdapterID,
	})
}

// publishFailure publishes the status event for a failed processing pass
// and returns the id of the adapter that failed last.
func (g *Gateway) publishFailure(sess *session.Session, err error, pub *publisher) string {
	failed := sess.Adapter
	var fe *adapter.FailoverError
	if errors.As(err, &fe) {
		failed = fe.LastAdapter
	}

	g.logger.Error("message processing failed",
		"session_id", sess.ID,
		"adapter", failed,
		"error", err,
	)
	pub.publish(bridge.NewStatusEvent(map[string]any{
		"state":   "error",
		"error":   err.Error(),
		"adapter": failed,
	}))
	return failed
}

// handleToolResult handles POST /uta/tool-result. It never invokes an adapter.
func (g *Gateway) handleToolResult(w http.ResponseWriter, r *http.Request) {
	var req ToolResultRequest
	if !g.decodeBody(w, r, &req) {
		return
	}
	if details := validateToolResult(&req); len(details) > 0 {
		g.sendValidationError(w, details)
		return
	}

	sess, err := g.sessions.Validate(req.SessionID, req.Token)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, errInvalidSession)
		return
	}

	ev := bridge.NewToolResultEvent(req.ToolName, req.Payload)
	g.sessions.Emit(sess.ID, ev)

	g.writeJSON(w, http.StatusOK, AcceptedResponse{Status: "accepted", EventID: ev.ID})
}

// handleDeleteSession handles DELETE /uta/session/{id}?token=...
func (g *Gateway) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	token := r.URL.Query().Get("token")
	if token == "" {
		g.sendValidationError(w, []FieldError{{Field: "token", Message: "token query parameter is required"}})
		return
	}

	if _, err := g.sessions.Validate(id, token); err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, errInvalidSession)
		return
	}

	g.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// handleHeartbeat handles GET /uta/heartbeat.
func (g *Gateway) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	resp := HeartbeatResponse{
		Status:         "ok",
		Timestamp:      time.Now().UTC(),
		ActiveSessions: g.sessions.ListActive(),
		Runtime:        g.adapters.Runtime(),
		Adapters:       g.adapters.Statuses(r.Context()),
		Telemetry:      g.recorder.Snapshot(),
	}

	if g.history != nil {
		stats, err := g.history.GetInvocationStats(r.Context(), store.InvocationFilter{})
		if err != nil {
			g.logger.Warn("failed to read telemetry history", "error", err)
		} else {
			resp.History = stats
		}
	}

	g.writeJSON(w, http.StatusOK, resp)
}

// publisher emits events to one session and remembers the last event id.
type publisher struct {
	store     *session.Store
	sessionID string

	mu     sync.Mutex
	lastID string
}

func (p *publisher) publish(ev bridge.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.store.Emit(p.sessionID, ev)
	p.lastID = ev.ID
}

func (p *publisher) last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}

func validateCreateSession(req *CreateSessionRequest) []FieldError {
	var details []FieldError
	if strings.TrimSpace(req.UserID) == "" {
		details = append(details, FieldError{Field: "userId", Message: "userId is required"})
	}
	if req.Adapter != "" && !bridge.IsKnownAdapter(req.Adapter) {
		details = append(details, FieldError{
			Field:   "adapter",
			Message: fmt.Sprintf("unknown adapter %q", req.Adapter),
		})
	}
	return details
}

func validateSendMessage(req *SendMessageRequest) []FieldError {
	details := requireSession(req.SessionID, req.Token)
	switch {
	case req.Message == nil:
		details = append(details, FieldError{Field: "message", Message: "message is required"})
	case strings.TrimSpace(req.Message.Content) == "":
		details = append(details, FieldError{Field: "message.content", Message: "content is required"})
	}
	return details
}

func validateToolResult(req *ToolResultRequest) []FieldError {
	details := requireSession(req.SessionID, req.Token)
	if strings.TrimSpace(req.ToolName) == "" {
		details = append(details, FieldError{Field: "toolName", Message: "toolName is required"})
	}
	if req.Payload == nil {
		details = append(details, FieldError{Field: "payload", Message: "payload is required"})
	}
	return details
}

func requireSession(sessionID, token string) []FieldError {
	var details []FieldError
	if sessionID == "" {
		details = append(details, FieldError{Field: "sessionId", Message: "sessionId is required"})
	}
	if token == "" {
		details = append(details, FieldError{Field: "token", Message: "token is required"})
	}
	return details
}

// decodeBody decodes a JSON body into dst, writing a 400 on failure.
func (g *Gateway) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		g.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid JSON body",
			Details: []FieldError{{Field: "body", Message: err.Error()}},
		})
		return false
	}
	return true
}

func (g *Gateway) sendValidationError(w http.ResponseWriter, details []FieldError) {
	g.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: details})
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, ErrorResponse{Error: message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}
