// ABOUTME: Append-and-aggregate log of adapter invocations with per-adapter snapshots
// ABOUTME: Mirrors each invocation to OTel instruments and an optional async sink

package telemetry

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	// DefaultMaxEntries bounds the in-memory log.
	DefaultMaxEntries = 10_000

	// sinkQueueSize bounds invocations waiting to be persisted.
	sinkQueueSize = 1024

	// sinkTimeout is the max time allowed for a single sink write.
	sinkTimeout = 5 * time.Second

	// MeterName is the instrumentation scope of the recorder's instruments.
	MeterName = "github.com/2389/uta-gateway/internal/telemetry"
)

// Invocation is one adapter call outcome.
type Invocation struct {
	AdapterID string        `json:"adapterId"`
	SessionID string        `json:"sessionId,omitempty"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Snapshot aggregates the recorded invocations of one adapter.
type Snapshot struct {
	AdapterID        string     `json:"adapterId"`
	Invocations      int        `json:"invocations"`
	Successes        int        `json:"successes"`
	Failures         int        `json:"failures"`
	SuccessRate      float64    `json:"successRate"`
	AvgDurationMs    float64    `json:"avgDurationMs"`
	MinDurationMs    float64    `json:"minDurationMs"`
	MaxDurationMs    float64    `json:"maxDurationMs"`
	P95DurationMs    float64    `json:"p95DurationMs"`
	LastError        string     `json:"lastError,omitempty"`
	LastErrorAt      *time.Time `json:"lastErrorAt,omitempty"`
	LastInvocationAt time.Time  `json:"lastInvocationAt"`
}

// SinkFunc persists one invocation.
type SinkFunc func(ctx context.Context, inv Invocation) error

// Config configures a Recorder.
type Config struct {
	// MaxEntries bounds the in-memory log; the oldest entries are dropped.
	MaxEntries int

	// Meter receives the invocation counter and duration histogram.
	// Nil uses a no-op meter.
	Meter metric.Meter

	// Sink persists invocations asynchronously. Optional.
	Sink SinkFunc
}

// Recorder is safe for concurrent appenders and snapshot readers.
type Recorder struct {
	mu         sync.RWMutex
	entries    []Invocation
	maxEntries int

	invocations metric.Int64Counter
	duration    metric.Float64Histogram

	sink     SinkFunc
	queue    chan Invocation
	sinkMu   sync.RWMutex
	closed   bool
	sinkDone chan struct{}

	logger *slog.Logger
}

// NewRecorder creates a recorder. Pass nil logger for default.
func NewRecorder(cfg Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	meter := cfg.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	r := &Recorder{
		maxEntries: cfg.MaxEntries,
		sink:       cfg.Sink,
		logger:     logger.With("component", "telemetry"),
	}

	var err error
	r.invocations, err = meter.Int64Counter("uta.adapter.invocations",
		metric.WithDescription("Adapter invocations by outcome"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		r.logger.Warn("failed to create invocation counter", "error", err)
		r.invocations, _ = noop.NewMeterProvider().Meter(MeterName).Int64Counter("uta.adapter.invocations")
	}
	r.duration, err = meter.Float64Histogram("uta.adapter.duration",
		metric.WithDescription("Adapter invocation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		r.logger.Warn("failed to create duration histogram", "error", err)
		r.duration, _ = noop.NewMeterProvider().Meter(MeterName).Float64Histogram("uta.adapter.duration")
	}

	if r.sink != nil {
		r.queue = make(chan Invocation, sinkQueueSize)
		r.sinkDone = make(chan struct{})
		go r.runSink()
	}

	return r
}

// RecordInvocation appends one entry. It never fails and never waits on
// the sink.
func (r *Recorder) RecordInvocation(inv Invocation) {
	if inv.Timestamp.IsZero() {
		inv.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	if len(r.entries) >= r.maxEntries {
		r.entries = r.entries[len(r.entries)-r.maxEntries+1:]
	}
	r.entries = append(r.entries, inv)
	r.mu.Unlock()

	outcome := "success"
	if !inv.Success {
		outcome = "failure"
	}
	ctx := context.Background()
	r.invocations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("adapter", inv.AdapterID),
		attribute.String("outcome", outcome)))
	r.duration.Record(ctx, durationMs(inv.Duration), metric.WithAttributes(
		attribute.String("adapter", inv.AdapterID)))

	r.enqueue(inv)
}

// Len returns the number of entries in the in-memory log.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot aggregates the log per adapter id. An empty log yields an empty map.
func (r *Recorder) Snapshot() map[string]Snapshot {
	r.mu.RLock()
	entries := slices.Clone(r.entries)
	r.mu.RUnlock()

	byAdapter := make(map[string][]Invocation)
	for _, e := range entries {
		byAdapter[e.AdapterID] = append(byAdapter[e.AdapterID], e)
	}

	out := make(map[string]Snapshot, len(byAdapter))
	for id, invs := range byAdapter {
		out[id] = aggregate(id, invs)
	}
	return out
}

// aggregate expects invocations in recording order.
func aggregate(id string, invs []Invocation) Snapshot {
	s := Snapshot{AdapterID: id, Invocations: len(invs)}
	if len(invs) == 0 {
		return s
	}

	durations := make([]float64, 0, len(invs))
	var total float64
	for _, inv := range invs {
		if inv.Success {
			s.Successes++
		} else {
			s.Failures++
			ts := inv.Timestamp
			s.LastError = inv.Error
			s.LastErrorAt = &ts
		}
		if inv.Timestamp.After(s.LastInvocationAt) {
			s.LastInvocationAt = inv.Timestamp
		}
		ms := durationMs(inv.Duration)
		durations = append(durations, ms)
		total += ms
	}

	slices.Sort(durations)
	s.SuccessRate = float64(s.Successes) / float64(s.Invocations)
	s.AvgDurationMs = total / float64(len(durations))
	s.MinDurationMs = durations[0]
	s.MaxDurationMs = durations[len(durations)-1]
	s.P95DurationMs = percentile(durations, 0.95)
	return s
}

// percentile uses the nearest-rank method on sorted values.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	rank = max(0, min(rank, len(sorted)-1))
	return sorted[rank]
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (r *Recorder) enqueue(inv Invocation) {
	if r.queue == nil {
		return
	}
	r.sinkMu.RLock()
	defer r.sinkMu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- inv:
	default:
		r.logger.Debug("telemetry sink queue full, dropping invocation",
			"adapter", inv.AdapterID)
	}
}

func (r *Recorder) runSink() {
	defer close(r.sinkDone)
	for inv := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := r.sink(ctx, inv); err != nil {
			r.logger.Warn("failed to persist invocation",
				"adapter", inv.AdapterID,
				"error", err)
		}
		cancel()
	}
}

// Close drains pending sink writes. Safe to call more than once.
func (r *Recorder) Close() {
	if r.queue == nil {
		return
	}
	r.sinkMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.sinkMu.Unlock()
	<-r.sinkDone
}
