// ABOUTME: Adapter registry, priority ordering and the failover loop
// ABOUTME: Times every attempt and records it with the telemetry recorder

package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
	"github.com/2389/uta-gateway/internal/telemetry"
)

const (
	// TimeoutGrace is added to an adapter's own timeout for the outer deadline.
	TimeoutGrace = 5 * time.Second

	// defaultCallTimeout applies to adapters that report no timeout.
	defaultCallTimeout = 2 * time.Minute
)

// Attempt is one adapter invocation within a processing pass.
type Attempt struct {
	AdapterID string        `json:"adapterId"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Outcome is a successful processing pass.
type Outcome struct {
	AdapterID string
	Result    *Result
	Attempts  []Attempt
}

// FailoverError reports a pass that ended without a success.
// It unwraps to the last adapter error.
type FailoverError struct {
	LastAdapter string
	Attempts    []Attempt
	Err         error
}

func (e *FailoverError) Error() string {
	return fmt.Sprintf("all adapters failed after %d attempt(s), last %s: %v", len(e.Attempts), e.LastAdapter, e.Err)
}

func (e *FailoverError) Unwrap() error {
	return e.Err
}

// Manager coordinates the registered adapters.
type Manager struct {
	adapters  map[string]Adapter
	mu        sync.RWMutex
	runtime   config.RuntimeConfig
	telemetry *telemetry.Recorder
	logger    *slog.Logger
}

// NewManager creates a Manager with the resolved runtime configuration.
// A nil recorder gets a default one. Pass nil logger for default.
func NewManager(rt config.RuntimeConfig, rec *telemetry.Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = telemetry.NewRecorder(telemetry.Config{}, logger)
	}
	return &Manager{
		adapters:  make(map[string]Adapter),
		runtime:   rt,
		telemetry: rec,
		logger:    logger.With("component", "adapters"),
	}
}

// BuildAll constructs the five adapters from configuration in default
// priority order. Disabled adapters are still built; they report unavailable.
func BuildAll(cfg config.AdaptersConfig, client *http.Client) []Adapter {
	return []Adapter{
		NewAnthropic(cfg.Anthropic, client),
		NewOpenAI(cfg.OpenAI, client),
		NewGemini(cfg.Gemini, client),
		NewOllama(cfg.Ollama, client),
		NewDesktop(cfg.Desktop, client),
	}
}

// Register adds an adapter to the registry.
// Returns ErrAdapterAlreadyRegistered if an adapter with the same ID exists.
func (m *Manager) Register(a Adapter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[a.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterAlreadyRegistered, a.ID())
	}

	m.adapters[a.ID()] = a
	m.logger.Info("adapter registered",
		"adapter", a.ID(),
		"total_adapters", len(m.adapters),
	)
	return nil
}

// Get returns the adapter registered under id.
func (m *Manager) Get(id string) (Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[id]
	return a, ok
}

// Runtime returns the runtime configuration the manager was built with.
func (m *Manager) Runtime() config.RuntimeConfig {
	rt := m.runtime
	rt.AdapterPriority = slices.Clone(rt.AdapterPriority)
	return rt
}

// Telemetry returns the recorder used for every attempt.
func (m *Manager) Telemetry() *telemetry.Recorder {
	return m.telemetry
}

// PriorityOrder returns the registered adapter ids in candidate order:
// preferred first, then the configured priority, then the baseline
// fallbacks. Each id appears once.
func (m *Manager) PriorityOrder(preferred string) []string {
	candidates := make([]string, 0, len(m.runtime.AdapterPriority)+3)
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	candidates = append(candidates, m.runtime.AdapterPriority...)
	candidates = append(candidates, bridge.BaselineFallbacks()...)

	m.mu.RLock()
	defer m.mu.RUnlock()

	order := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if _, ok := m.adapters[id]; !ok || slices.Contains(order, id) {
			continue
		}
		order = append(order, id)
	}
	return order
}

// SelectAdapter returns the status of the first available adapter in
// PriorityOrder(preferred), or false when none is available.
func (m *Manager) SelectAdapter(ctx context.Context, preferred string) (Status, bool) {
	for _, id := range m.PriorityOrder(preferred) {
		a, ok := m.Get(id)
		if !ok {
			continue
		}
		if st := a.Status(ctx); st.Available {
			return st, true
		}
	}
	return Status{}, false
}

// Statuses reports every registered adapter in default candidate order.
func (m *Manager) Statuses(ctx context.Context) []Status {
	order := m.PriorityOrder("")

	m.mu.RLock()
	for id := range m.adapters {
		if !slices.Contains(order, id) {
			order = append(order, id)
		}
	}
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(order))
	for _, id := range order {
		if a, ok := m.Get(id); ok {
			statuses = append(statuses, a.Status(ctx))
		}
	}
	return statuses
}

// ProcessMessage runs one failover pass seeded by the session's bound
// adapter. Each candidate is attempted at most once. With failover disabled
// the pass stops after the first failed attempt. A done ctx also ends it.
func (m *Manager) ProcessMessage(ctx context.Context, sess *session.Session, msg bridge.InboundMessage, emit EmitFunc) (*Outcome, error) {
	preferred := ""
	sessionID := ""
	if sess != nil {
		preferred = sess.Adapter
		sessionID = sess.ID
	}

	var attempts []Attempt
	var lastErr error
	lastAdapter := ""

	for _, id := range m.PriorityOrder(preferred) {
		if ctx.Err() != nil {
			break
		}
		a, ok := m.Get(id)
		if !ok {
			continue
		}
		if st := a.Status(ctx); !st.Available {
			m.logger.Debug("skipping unavailable adapter", "adapter", id, "detail", st.Detail)
			continue
		}

		result, duration, err := m.invoke(ctx, a, sess, msg, emit)
		if err == nil {
			m.record(id, sessionID, true, duration, "")
			attempts = append(attempts, Attempt{AdapterID: id, Duration: duration})
			m.logger.Info("message processed",
				"adapter", id,
				"session_id", sessionID,
				"duration_ms", duration.Milliseconds(),
				"attempts", len(attempts),
			)
			return &Outcome{AdapterID: id, Result: result, Attempts: attempts}, nil
		}

		m.record(id, sessionID, false, duration, err.Error())
		attempts = append(attempts, Attempt{AdapterID: id, Duration: duration, Error: err.Error()})
		lastErr, lastAdapter = err, id

		if !m.runtime.FailoverEnabled {
			m.logger.Warn("adapter failed, failover disabled",
				"adapter", id,
				"session_id", sessionID,
				"error", err,
			)
			break
		}
		m.logger.Warn("adapter failed, trying next",
			"adapter", id,
			"session_id", sessionID,
			"error", err,
		)
	}

	if lastErr == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoAvailableAdapters, err)
		}
		return nil, ErrNoAvailableAdapters
	}
	return nil, &FailoverError{LastAdapter: lastAdapter, Attempts: attempts, Err: lastErr}
}

// invoke runs one attempt under the outer deadline. A nil result with a
// nil error is reported as an empty reply.
func (m *Manager) invoke(ctx context.Context, a Adapter, sess *session.Session, msg bridge.InboundMessage, emit EmitFunc) (*Result, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout(a))
	defer cancel()

	start := time.Now()
	result, err := a.Process(ctx, sess, msg, emit)
	duration := time.Since(start)

	if err == nil && result == nil {
		err = emptyReply(a.ID())
	}
	var be *BackendError
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.As(err, &be) {
		err = &BackendError{Adapter: a.ID(), Kind: KindTimeout, Err: err}
	}
	return result, duration, err
}

func (m *Manager) record(adapterID, sessionID string, success bool, d time.Duration, errText string) {
	m.telemetry.RecordInvocation(telemetry.Invocation{
		AdapterID: adapterID,
		SessionID: sessionID,
		Success:   success,
		Duration:  d,
		Error:     errText,
		Timestamp: time.Now().UTC(),
	})
}

func callTimeout(a Adapter) time.Duration {
	if tr, ok := a.(timeoutReporter); ok && tr.Timeout() > 0 {
		return tr.Timeout() + TimeoutGrace
	}
	return defaultCallTimeout + TimeoutGrace
}
