// ABOUTME: Tests for the invocation recorder, snapshots, OTel instruments and sink
// ABOUTME: Uses an sdk ManualReader to collect metrics synchronously

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestSnapshot_EmptyLog(t *testing.T) {
	r := NewRecorder(Config{}, nil)
	defer r.Close()

	snap := r.Snapshot()
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshot_Aggregates(t *testing.T) {
	r := NewRecorder(Config{}, nil)
	defer r.Close()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 20; i++ {
		inv := Invocation{
			AdapterID: "anthropic",
			Success:   true,
			Duration:  time.Duration(i) * 10 * time.Millisecond,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if i == 7 || i == 13 {
			inv.Success = false
			inv.Error = fmt.Sprintf("boom %d", i)
		}
		r.RecordInvocation(inv)
	}
	r.RecordInvocation(Invocation{AdapterID: "ollama", Success: true, Duration: 5 * time.Millisecond, Timestamp: base})

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	a := snap["anthropic"]
	assert.Equal(t, "anthropic", a.AdapterID)
	assert.Equal(t, 20, a.Invocations)
	assert.Equal(t, 18, a.Successes)
	assert.Equal(t, 2, a.Failures)
	assert.InDelta(t, 0.9, a.SuccessRate, 1e-9)
	assert.InDelta(t, 105.0, a.AvgDurationMs, 1e-9)
	assert.InDelta(t, 10.0, a.MinDurationMs, 1e-9)
	assert.InDelta(t, 200.0, a.MaxDurationMs, 1e-9)
	assert.InDelta(t, 190.0, a.P95DurationMs, 1e-9)
	assert.Equal(t, "boom 13", a.LastError)
	require.NotNil(t, a.LastErrorAt)
	assert.Equal(t, base.Add(13*time.Second), *a.LastErrorAt)
	assert.Equal(t, base.Add(20*time.Second), a.LastInvocationAt)

	o := snap["ollama"]
	assert.Equal(t, 1, o.Invocations)
	assert.Nil(t, o.LastErrorAt)
	assert.InDelta(t, 1.0, o.SuccessRate, 1e-9)
	assert.InDelta(t, 5.0, o.P95DurationMs, 1e-9)
}

func TestRecordInvocation_StampsTimestamp(t *testing.T) {
	r := NewRecorder(Config{}, nil)
	defer r.Close()

	r.RecordInvocation(Invocation{AdapterID: "desktop", Success: true})
	assert.False(t, r.Snapshot()["desktop"].LastInvocationAt.IsZero())
}

func TestRecordInvocation_BoundedLog(t *testing.T) {
	r := NewRecorder(Config{MaxEntries: 5}, nil)
	defer r.Close()

	for i := range 12 {
		r.RecordInvocation(Invocation{AdapterID: "openai", Success: i >= 7})
	}

	assert.Equal(t, 5, r.Len())
	s := r.Snapshot()["openai"]
	assert.Equal(t, 5, s.Invocations)
	assert.Equal(t, 5, s.Successes, "oldest entries are dropped first")
}

func TestRecorder_ConcurrentAppendAndSnapshot(t *testing.T) {
	r := NewRecorder(Config{}, nil)
	defer r.Close()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r.RecordInvocation(Invocation{AdapterID: fmt.Sprintf("a%d", w%2), Success: true})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			_ = r.Snapshot()
		}
	}()
	wg.Wait()

	snap := r.Snapshot()
	assert.Equal(t, 800, snap["a0"].Invocations+snap["a1"].Invocations)
}

func TestRecorder_OTelInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	r := NewRecorder(Config{Meter: provider.Meter("test")}, nil)
	defer r.Close()

	r.RecordInvocation(Invocation{AdapterID: "gemini", Success: true, Duration: 40 * time.Millisecond})
	r.RecordInvocation(Invocation{AdapterID: "gemini", Success: false, Duration: 60 * time.Millisecond})
	r.RecordInvocation(Invocation{AdapterID: "gemini", Success: false})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	var histCount uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				require.Equal(t, "uta.adapter.invocations", m.Name)
				for _, dp := range data.DataPoints {
					outcome, _ := dp.Attributes.Value("outcome")
					counts[outcome.AsString()] += dp.Value
				}
			case metricdata.Histogram[float64]:
				require.Equal(t, "uta.adapter.duration", m.Name)
				for _, dp := range data.DataPoints {
					histCount += dp.Count
				}
			}
		}
	}

	assert.Equal(t, int64(1), counts["success"])
	assert.Equal(t, int64(2), counts["failure"])
	assert.Equal(t, uint64(3), histCount)
}

func TestRecorder_SinkReceivesInvocations(t *testing.T) {
	var mu sync.Mutex
	var got []Invocation
	r := NewRecorder(Config{Sink: func(_ context.Context, inv Invocation) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, inv)
		return nil
	}}, nil)

	r.RecordInvocation(Invocation{AdapterID: "ollama", Success: true})
	r.RecordInvocation(Invocation{AdapterID: "desktop", Success: false, Error: "refused"})
	r.Close()
	r.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "ollama", got[0].AdapterID)
	assert.Equal(t, "refused", got[1].Error)

	// Recording after Close still updates memory.
	r.RecordInvocation(Invocation{AdapterID: "ollama", Success: true})
	assert.Equal(t, 3, r.Len())
}

func TestRecorder_SinkErrorsAreSwallowed(t *testing.T) {
	var calls atomic.Int32
	r := NewRecorder(Config{Sink: func(context.Context, Invocation) error {
		calls.Add(1)
		return errors.New("disk full")
	}}, nil)

	r.RecordInvocation(Invocation{AdapterID: "openai"})
	r.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, r.Len())
}

func TestNewMeterProvider_EmptyEndpoint(t *testing.T) {
	mp, err := NewMeterProvider(context.Background(), "  ", "uta-gateway")
	require.NoError(t, err)
	require.NotNil(t, mp)
	assert.NoError(t, mp.Shutdown(context.Background()))
}

func TestNewMeterProvider_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"http://", "http://[invalid"} {
		_, err := NewMeterProvider(context.Background(), endpoint, "uta-gateway")
		assert.Error(t, err, endpoint)
	}
}
