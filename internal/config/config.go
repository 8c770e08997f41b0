// ABOUTME: Configuration loading and parsing for uta-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/uta-gateway/internal/bridge"
)

// Config represents the complete uta-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Runtime   RuntimeSection  `yaml:"runtime" toml:"runtime"`
	Adapters  AdaptersConfig  `yaml:"adapters" toml:"adapters"`
	Sessions  SessionsConfig  `yaml:"sessions" toml:"sessions"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Redis     RedisConfig     `yaml:"redis" toml:"redis"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // Serve HTTPS with Tailscale-provisioned certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// RuntimeSection is the file form of the runtime settings. Environment
// variables override it in ResolveRuntime.
type RuntimeSection struct {
	DefaultMode     string   `yaml:"default_mode" toml:"default_mode"`
	AdapterPriority []string `yaml:"adapter_priority" toml:"adapter_priority"`
	FailoverEnabled *bool    `yaml:"failover_enabled" toml:"failover_enabled"`
}

// AdapterConfig configures one backend adapter.
type AdapterConfig struct {
	Disabled bool   `yaml:"disabled" toml:"disabled"`
	BaseURL  string `yaml:"base_url" toml:"base_url"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Model    string `yaml:"model" toml:"model"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// AdaptersConfig holds per-adapter settings keyed by adapter id.
type AdaptersConfig struct {
	Anthropic AdapterConfig `yaml:"anthropic" toml:"anthropic"`
	OpenAI    AdapterConfig `yaml:"openai" toml:"openai"`
	Gemini    AdapterConfig `yaml:"gemini" toml:"gemini"`
	Ollama    AdapterConfig `yaml:"ollama" toml:"ollama"`
	Desktop   AdapterConfig `yaml:"desktop" toml:"desktop"`
}

// SessionsConfig holds session lifecycle and streaming settings
type SessionsConfig struct {
	IdleTimeout        time.Duration `yaml:"-" toml:"-"`
	SweepInterval      time.Duration `yaml:"-" toml:"-"`
	KeepaliveInterval  time.Duration `yaml:"-" toml:"-"`
	SubscriberBuffer   int           `yaml:"subscriber_buffer" toml:"subscriber_buffer"`
	RequireStreamToken bool          `yaml:"require_stream_token" toml:"require_stream_token"`

	// Raw string values for unmarshaling
	IdleTimeoutRaw       string `yaml:"idle_timeout" toml:"idle_timeout"`
	SweepIntervalRaw     string `yaml:"sweep_interval" toml:"sweep_interval"`
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`
}

// TelemetryConfig holds adapter telemetry settings
type TelemetryConfig struct {
	DatabasePath string `yaml:"database_path" toml:"database_path"` // empty disables persistence
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint"` // empty disables export
	MaxEntries   int    `yaml:"max_entries" toml:"max_entries"`
}

// RedisConfig holds the optional session mirror settings
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	TTL      time.Duration `yaml:"-" toml:"-"`
	TTLRaw   string        `yaml:"ttl" toml:"ttl"`
}

// AuthConfig holds caller authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// Default returns a configuration that serves on localhost with every
// default applied. Used when no config file exists.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:8080"},
	}
	applyDefaults(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 bytes")
	}

	if c.Sessions.SubscriberBuffer < 1 {
		return fmt.Errorf("sessions.subscriber_buffer must be positive")
	}

	if c.Sessions.IdleTimeout < 0 {
		return fmt.Errorf("sessions.idle_timeout must not be negative")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	for _, id := range bridge.DefaultPriority() {
		a := c.Adapters.ByID(id)
		if a.Timeout <= 0 {
			return fmt.Errorf("adapters.%s.timeout must be positive", id)
		}
	}

	return nil
}

// ByID returns the settings of the adapter with the given id.
// Unknown ids return a disabled zero config.
func (a *AdaptersConfig) ByID(id string) AdapterConfig {
	switch id {
	case bridge.AdapterAnthropic:
		return a.Anthropic
	case bridge.AdapterOpenAI:
		return a.OpenAI
	case bridge.AdapterGemini:
		return a.Gemini
	case bridge.AdapterOllama:
		return a.Ollama
	case bridge.AdapterDesktop:
		return a.Desktop
	default:
		return AdapterConfig{Disabled: true}
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"sessions.idle_timeout", cfg.Sessions.IdleTimeoutRaw, &cfg.Sessions.IdleTimeout},
		{"sessions.sweep_interval", cfg.Sessions.SweepIntervalRaw, &cfg.Sessions.SweepInterval},
		{"sessions.keepalive_interval", cfg.Sessions.KeepaliveIntervalRaw, &cfg.Sessions.KeepaliveInterval},
		{"redis.ttl", cfg.Redis.TTLRaw, &cfg.Redis.TTL},
		{"adapters.anthropic.timeout", cfg.Adapters.Anthropic.TimeoutRaw, &cfg.Adapters.Anthropic.Timeout},
		{"adapters.openai.timeout", cfg.Adapters.OpenAI.TimeoutRaw, &cfg.Adapters.OpenAI.Timeout},
		{"adapters.gemini.timeout", cfg.Adapters.Gemini.TimeoutRaw, &cfg.Adapters.Gemini.Timeout},
		{"adapters.ollama.timeout", cfg.Adapters.Ollama.TimeoutRaw, &cfg.Adapters.Ollama.Timeout},
		{"adapters.desktop.timeout", cfg.Adapters.Desktop.TimeoutRaw, &cfg.Adapters.Desktop.Timeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// applyDefaults fills zero values with the documented defaults
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = time.Minute
	}
	if cfg.Sessions.KeepaliveInterval == 0 {
		cfg.Sessions.KeepaliveInterval = 15 * time.Second
	}
	if cfg.Sessions.SubscriberBuffer == 0 {
		cfg.Sessions.SubscriberBuffer = 256
	}

	if cfg.Telemetry.MaxEntries <= 0 {
		cfg.Telemetry.MaxEntries = 10_000
	}

	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}

	adapterDefaults(&cfg.Adapters.Anthropic, "https://api.anthropic.com", "claude-3-5-sonnet-latest", 60*time.Second)
	adapterDefaults(&cfg.Adapters.OpenAI, "https://api.openai.com", "gpt-4o-mini", 60*time.Second)
	adapterDefaults(&cfg.Adapters.Gemini, "https://generativelanguage.googleapis.com", "gemini-1.5-flash", 60*time.Second)
	adapterDefaults(&cfg.Adapters.Ollama, "http://127.0.0.1:11434", "llama3.1", 120*time.Second)
	adapterDefaults(&cfg.Adapters.Desktop, "http://127.0.0.1:17871", "", 90*time.Second)
}

func adapterDefaults(a *AdapterConfig, baseURL, model string, timeout time.Duration) {
	if a.BaseURL == "" {
		a.BaseURL = baseURL
	}
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")
	if a.Model == "" {
		a.Model = model
	}
	if a.Timeout == 0 {
		a.Timeout = timeout
	}
}
