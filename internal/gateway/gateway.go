// ABOUTME: Gateway orchestrator that wires sessions, adapters and telemetry to HTTP
// ABOUTME: Manages listeners, health endpoints and the ordered shutdown of every component

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"tailscale.com/tsnet"

	"github.com/2389/uta-gateway/internal/adapter"
	"github.com/2389/uta-gateway/internal/auth"
	"github.com/2389/uta-gateway/internal/config"
	"github.com/2389/uta-gateway/internal/dedupe"
	"github.com/2389/uta-gateway/internal/session"
	"github.com/2389/uta-gateway/internal/store"
	"github.com/2389/uta-gateway/internal/telemetry"
)

const (
	// ServiceName is reported as the OTel service.name.
	ServiceName = "uta-gateway"

	// messageIDTTL is how long a client message id is remembered.
	messageIDTTL = 10 * time.Minute

	// messageIDCapacity bounds remembered message ids.
	messageIDCapacity = 100_000

	// shutdownTimeout bounds the graceful shutdown after Run's ctx is done.
	shutdownTimeout = 5 * time.Second
)

// Gateway serves the bridge API. It owns every component it creates.
type Gateway struct {
	config   *config.Config
	runtime  config.RuntimeConfig
	sessions *session.Store
	adapters *adapter.Manager
	recorder *telemetry.Recorder
	dedupe   *dedupe.Cache
	verifier *auth.JWTVerifier // nil when caller auth is off
	getenv   func(string) string
	logger   *slog.Logger

	// optional infrastructure, nil when not configured
	history *store.SQLiteStore
	mirror  *session.RedisMirror // owns its Redis client
	meters  *sdkmetric.MeterProvider

	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	// streamCtx is cancelled at shutdown to end open event streams.
	streamCtx   context.Context
	stopStreams context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

type options struct {
	adapters      []adapter.Adapter
	httpClient    *http.Client
	meterProvider *sdkmetric.MeterProvider
	getenv        func(string) string
}

// Option customizes New.
type Option func(*options)

// WithAdapters registers the given adapters instead of the configured ones.
func WithAdapters(adapters ...adapter.Adapter) Option {
	return func(o *options) { o.adapters = append([]adapter.Adapter{}, adapters...) }
}

// WithHTTPClient sets the client the configured adapters use.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithMeterProvider replaces the OTLP provider built from configuration.
// The gateway shuts it down on Shutdown.
func WithMeterProvider(mp *sdkmetric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithGetenv replaces os.Getenv when resolving the runtime configuration.
func WithGetenv(getenv func(string) string) Option {
	return func(o *options) { o.getenv = getenv }
}

// New creates a Gateway from cfg. Nothing listens until Run is called.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&o)
	}

	streamCtx, stopStreams := context.WithCancel(context.Background())
	g := &Gateway{
		config:      cfg,
		runtime:     config.ResolveRuntime(cfg.Runtime, o.getenv, logger),
		getenv:      o.getenv,
		logger:      logger.With("component", "gateway"),
		streamCtx:   streamCtx,
		stopStreams: stopStreams,
	}

	if err := g.init(o, logger); err != nil {
		stopStreams()
		_ = g.closeComponents(context.Background())
		return nil, err
	}

	g.handler = g.routes(logger)
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info("gateway initialized",
		"default_mode", g.runtime.DefaultMode,
		"adapter_priority", g.runtime.AdapterPriority,
		"failover_enabled", g.runtime.FailoverEnabled,
		"history", g.history != nil,
		"redis_mirror", g.mirror != nil,
		"caller_auth", g.verifier != nil,
	)
	return g, nil
}

// init builds the components in dependency order. On error the components
// built so far are left in g for closeComponents.
func (g *Gateway) init(o options, logger *slog.Logger) error {
	cfg := g.config

	g.meters = o.meterProvider
	if g.meters == nil {
		mp, err := telemetry.NewMeterProvider(context.Background(), cfg.Telemetry.OTLPEndpoint, ServiceName)
		if err != nil {
			return fmt.Errorf("creating meter provider: %w", err)
		}
		g.meters = mp
	}

	var sink telemetry.SinkFunc
	if cfg.Telemetry.DatabasePath != "" {
		history, err := store.NewSQLiteStore(cfg.Telemetry.DatabasePath, logger)
		if err != nil {
			return fmt.Errorf("opening telemetry history: %w", err)
		}
		g.history = history
		sink = historySink(history)
	}

	g.recorder = telemetry.NewRecorder(telemetry.Config{
		MaxEntries: cfg.Telemetry.MaxEntries,
		Meter:      g.meters.Meter(telemetry.MeterName),
		Sink:       sink,
	}, logger)

	sessCfg := session.Config{
		BufferSize:    cfg.Sessions.SubscriberBuffer,
		IdleTimeout:   cfg.Sessions.IdleTimeout,
		SweepInterval: cfg.Sessions.SweepInterval,
	}
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		g.mirror = session.NewRedisMirror(client, cfg.Redis.TTL, logger)
		sessCfg.Mirror = g.mirror
	}
	g.sessions = session.New(sessCfg, logger)

	g.adapters = adapter.NewManager(g.runtime, g.recorder, logger)
	adapters := o.adapters
	if adapters == nil {
		adapters = adapter.BuildAll(cfg.Adapters, o.httpClient)
	}
	for _, a := range adapters {
		if err := g.adapters.Register(a); err != nil {
			return fmt.Errorf("registering adapter: %w", err)
		}
	}

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("creating JWT verifier: %w", err)
		}
		g.verifier = verifier
	}

	g.dedupe = dedupe.NewCache(messageIDTTL, messageIDCapacity)
	return nil
}

// historySink persists invocations to the SQLite history.
func historySink(s store.InvocationStore) telemetry.SinkFunc {
	return func(ctx context.Context, inv telemetry.Invocation) error {
		return s.SaveInvocation(ctx, &store.InvocationRecord{
			AdapterID:  inv.AdapterID,
			SessionID:  inv.SessionID,
			Success:    inv.Success,
			DurationMs: inv.Duration.Milliseconds(),
			Error:      inv.Error,
			CreatedAt:  inv.Timestamp,
		})
	}
}

func (g *Gateway) routes(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	var createSession http.Handler = http.HandlerFunc(g.handleCreateSession)
	if g.verifier != nil {
		createSession = auth.HTTPAuthMiddleware(g.verifier, logger)(createSession)
		g.logger.Info("caller auth enabled for session creation")
	} else {
		g.logger.Warn("caller auth disabled - no jwt_secret configured")
	}

	mux.Handle("POST /uta/session", createSession)
	mux.HandleFunc("POST /uta/message", g.handleSendMessage)
	mux.HandleFunc("POST /uta/tool-result", g.handleToolResult)
	mux.HandleFunc("GET /uta/session/{id}/stream", g.handleStream)
	mux.HandleFunc("DELETE /uta/session/{id}", g.handleDeleteSession)
	mux.HandleFunc("GET /uta/heartbeat", g.handleHeartbeat)

	return mux
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Sessions returns the session store.
func (g *Gateway) Sessions() *session.Store {
	return g.sessions
}

// Adapters returns the adapter manager.
func (g *Gateway) Adapters() *adapter.Manager {
	return g.adapters
}

// setupTCPListener creates a standard TCP listener for HTTP.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// Run serves until ctx is cancelled or the server fails, then shuts down.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return errors.Join(err, g.Shutdown(context.Background()))
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// The original context is already done.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server and releases every component. Open event
// streams end first. Safe to call more than once.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down gateway")

		var errs []error
		g.stopStreams()
		if g.httpServer != nil {
			errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
		}
		if g.tsnetServer != nil {
			errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
		}
		if err := g.closeComponents(ctx); err != nil {
			errs = append(errs, err)
		}

		if len(errs) > 0 {
			g.shutdownErr = fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
		}
	})
	return g.shutdownErr
}

// closeComponents closes the components that may be nil, in dependency order.
func (g *Gateway) closeComponents(ctx context.Context) error {
	var errs []error
	if g.sessions != nil {
		g.sessions.Close()
	}
	if g.dedupe != nil {
		g.dedupe.Close()
	}
	if g.recorder != nil {
		g.recorder.Close()
	}
	if g.history != nil {
		errs = appendCloseError(errs, "history close", g.history.Close())
	}
	if g.mirror != nil {
		errs = appendCloseError(errs, "redis mirror close", g.mirror.Close())
	}
	if g.meters != nil {
		errs = appendCloseError(errs, "meter provider shutdown", g.meters.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if at least one adapter is available.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	st, ok := g.adapters.SelectAdapter(r.Context(), g.runtime.Preferred())
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no adapters available"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%s)", st.ID)
}
