// ABOUTME: Tests for Gateway construction, lifecycle and health endpoints
// ABOUTME: Shares the stub adapter and SSE helpers used by the API tests

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/uta-gateway/internal/adapter"
	"github.com/2389/uta-gateway/internal/bridge"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/session"
	"github.com/2389/uta-gateway/internal/store"
)

// stubAdapter is a scripted adapter.Adapter.
type stubAdapter struct {
	id           string
	available    atomic.Bool
	reply        string
	intermediate []string
	calls        atomic.Int32

	mu  sync.Mutex
	err error
}

func (s *stubAdapter) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func newStub(id string, available bool) *stubAdapter {
	s := &stubAdapter{id: id}
	s.available.Store(available)
	return s
}

func (s *stubAdapter) ID() string { return s.id }

func (s *stubAdapter) Status(context.Context) adapter.Status {
	return adapter.Status{ID: s.id, Available: s.available.Load()}
}

func (s *stubAdapter) Process(_ context.Context, _ *session.Session, msg bridge.InboundMessage, emit adapter.EmitFunc) (*adapter.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, text := range s.intermediate {
		if emit != nil {
			emit(bridge.NewMessageEvent(bridge.RoleAssistant, text, ""))
		}
	}
	reply := s.reply
	if reply == "" {
		reply = s.id + " says: " + msg.Content
	}
	ev := bridge.NewMessageEvent(bridge.RoleAssistant, reply, msg.VoiceHint)
	return &adapter.Result{Events: []bridge.Event{ev}, Text: reply}, nil
}

// testConfig creates a config on a free localhost port with every default applied.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Server.HTTPAddr = addr
	cfg.Sessions.KeepaliveInterval = time.Hour
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noEnv(string) string { return "" }

// newTestGateway builds a gateway over stub adapters and serves its handler.
func newTestGateway(t *testing.T, cfg *config.Config, adapters ...adapter.Adapter) (*Gateway, *httptest.Server) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig(t)
	}
	gw, err := New(cfg, testLogger(), WithAdapters(adapters...), WithGetenv(noEnv))
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = gw.Shutdown(context.Background())
	})
	return gw, srv
}

// sseStream reads events and comments from one event stream.
type sseStream struct {
	events   chan bridge.Event
	comments chan string
	closed   chan struct{}
}

// openStream connects to the session's stream and waits until the
// subscription is attached.
func openStream(t *testing.T, srv *httptest.Server, sessionID, query string) *sseStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	url := srv.URL + "/uta/session/" + sessionID + "/stream"
	if query != "" {
		url += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	s := &sseStream{
		events:   make(chan bridge.Event, 64),
		comments: make(chan string, 64),
		closed:   make(chan struct{}),
	}
	go func() {
		defer close(s.closed)
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "data: "):
				var ev bridge.Event
				if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
					s.events <- ev
				}
			case strings.HasPrefix(line, ": "):
				s.comments <- strings.TrimPrefix(line, ": ")
			}
		}
	}()

	select {
	case c := <-s.comments:
		require.Equal(t, "connected", c)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not connect")
	}
	return s
}

func (s *sseStream) next(t *testing.T) bridge.Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return bridge.Event{}
	}
}

func TestGatewayNew(t *testing.T) {
	gw, _ := newTestGateway(t, nil, newStub(bridge.AdapterOllama, true))

	assert.NotNil(t, gw.Sessions())
	assert.NotNil(t, gw.Adapters())
	assert.NotNil(t, gw.recorder)
	assert.Nil(t, gw.history)
	assert.Nil(t, gw.mirror)
	assert.Nil(t, gw.verifier)

	_, ok := gw.Adapters().Get(bridge.AdapterOllama)
	assert.True(t, ok)
}

func TestGatewayNew_ConfiguredAdapters(t *testing.T) {
	gw, err := New(testConfig(t), testLogger(), WithGetenv(noEnv))
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	for _, id := range bridge.DefaultPriority() {
		_, ok := gw.Adapters().Get(id)
		assert.True(t, ok, id)
	}
}

func TestGatewayNew_RuntimeFromEnv(t *testing.T) {
	env := map[string]string{
		config.EnvAdapterPriority: "ollama,bogus,anthropic",
		config.EnvFailoverEnabled: "false",
	}
	gw, err := New(testConfig(t), testLogger(),
		WithAdapters(newStub(bridge.AdapterOllama, true)),
		WithGetenv(func(k string) string { return env[k] }),
	)
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	rt := gw.Adapters().Runtime()
	assert.Equal(t, []string{"ollama", "anthropic"}, rt.AdapterPriority)
	assert.False(t, rt.FailoverEnabled)
}

func TestGatewayNew_InvalidJWTSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "too-short"

	_, err := New(cfg, testLogger(), WithAdapters(), WithGetenv(noEnv))
	assert.Error(t, err)
}

func TestGatewayNew_DuplicateAdapter(t *testing.T) {
	_, err := New(testConfig(t), testLogger(),
		WithAdapters(newStub("ollama", true), newStub("ollama", true)),
		WithGetenv(noEnv),
	)
	assert.ErrorIs(t, err, adapter.ErrAdapterAlreadyRegistered)
}

func TestGatewayHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telemetry.DatabasePath = filepath.Join(t.TempDir(), "history.db")

	gw, srv := newTestGateway(t, cfg, newStub(bridge.AdapterOllama, true))
	require.NotNil(t, gw.history)

	created := createSession(t, srv, "u1", "")
	resp := postJSON(t, srv, "/uta/message", map[string]any{
		"sessionId": created.SessionID,
		"token":     created.SessionToken,
		"message":   map[string]any{"content": "hello"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		recs, err := gw.history.ListInvocations(context.Background(), store.InvocationFilter{})
		return err == nil && len(recs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hb := getHeartbeat(t, srv)
	require.Len(t, hb.History, 1)
	assert.Equal(t, "ollama", hb.History[0].AdapterID)
	assert.EqualValues(t, 1, hb.History[0].Successes)
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger(), WithAdapters(newStub(bridge.AdapterOllama, true)), WithGetenv(noEnv))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- gw.Run(ctx) }()

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Shutdown is idempotent
	assert.NoError(t, gw.Shutdown(context.Background()))
}

func TestGatewayRun_ListenError(t *testing.T) {
	cfg := testConfig(t)
	ln, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	require.NoError(t, err)
	defer ln.Close()

	gw, err := New(cfg, testLogger(), WithAdapters(), WithGetenv(noEnv))
	require.NoError(t, err)

	err = gw.Run(context.Background())
	assert.Error(t, err)
}

func TestShutdownEndsStreams(t *testing.T) {
	gw, srv := newTestGateway(t, nil, newStub(bridge.AdapterOllama, true))
	created := createSession(t, srv, "u1", "")
	stream := openStream(t, srv, created.SessionID, "")

	require.NoError(t, gw.Shutdown(context.Background()))

	select {
	case <-stream.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after shutdown")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestGateway(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestReadyEndpoint(t *testing.T) {
	ollama := newStub(bridge.AdapterOllama, true)
	_, srv := newTestGateway(t, nil, ollama)

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready (ollama)", string(body))

	ollama.available.Store(false)
	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	key, err := resolveTailscaleAuthKey("from-config", noEnv)
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	key, err = resolveTailscaleAuthKey("", func(k string) string {
		if k == "TS_AUTHKEY" {
			return "from-env"
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	_, err = resolveTailscaleAuthKey("", noEnv)
	assert.Error(t, err)
}

func TestSetupTailscaleListener_ReadsInjectedEnv(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "tskey-from-process-env")

	cfg := testConfig(t)
	cfg.Tailscale = config.TailscaleConfig{
		Enabled:  true,
		Hostname: "uta-test",
		StateDir: t.TempDir(),
	}
	gw, _ := newTestGateway(t, cfg)

	_, err := gw.setupTailscaleListener(t.Context())
	assert.ErrorContains(t, err, "tailscale auth key required",
		"the process environment must not leak past WithGetenv")
	assert.Nil(t, gw.tsnetServer)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/uta")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/uta", dir)

	dir, err = resolveTailscaleStateDir("")
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	assert.True(t, strings.HasSuffix(dir, filepath.Join("uta-gateway", "tailscale")))
}
