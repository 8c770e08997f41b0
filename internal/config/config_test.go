// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"

runtime:
  default_mode: "ollama"
  adapter_priority: ["openai", "ollama"]
  failover_enabled: false

adapters:
  anthropic:
    api_key: "sk-test"
    model: "claude-test"
    timeout: "30s"
  ollama:
    base_url: "http://gpu-box:11434/"

sessions:
  idle_timeout: "30m"
  sweep_interval: "2m"
  keepalive_interval: "10s"
  subscriber_buffer: 32

telemetry:
  database_path: "/tmp/telemetry.db"
  max_entries: 500

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Runtime.DefaultMode != "ollama" {
		t.Errorf("Runtime.DefaultMode = %q, want %q", cfg.Runtime.DefaultMode, "ollama")
	}
	if len(cfg.Runtime.AdapterPriority) != 2 {
		t.Errorf("Runtime.AdapterPriority len = %d, want 2", len(cfg.Runtime.AdapterPriority))
	}
	if cfg.Runtime.FailoverEnabled == nil || *cfg.Runtime.FailoverEnabled {
		t.Error("Runtime.FailoverEnabled should be set to false")
	}

	if cfg.Adapters.Anthropic.APIKey != "sk-test" {
		t.Errorf("Adapters.Anthropic.APIKey = %q, want %q", cfg.Adapters.Anthropic.APIKey, "sk-test")
	}
	if cfg.Adapters.Anthropic.Timeout != 30*time.Second {
		t.Errorf("Adapters.Anthropic.Timeout = %v, want %v", cfg.Adapters.Anthropic.Timeout, 30*time.Second)
	}
	if cfg.Adapters.Ollama.BaseURL != "http://gpu-box:11434" {
		t.Errorf("Adapters.Ollama.BaseURL = %q, want trailing slash trimmed", cfg.Adapters.Ollama.BaseURL)
	}
	if cfg.Adapters.Ollama.Timeout != 120*time.Second {
		t.Errorf("Adapters.Ollama.Timeout = %v, want default %v", cfg.Adapters.Ollama.Timeout, 120*time.Second)
	}

	if cfg.Sessions.IdleTimeout != 30*time.Minute {
		t.Errorf("Sessions.IdleTimeout = %v, want %v", cfg.Sessions.IdleTimeout, 30*time.Minute)
	}
	if cfg.Sessions.SweepInterval != 2*time.Minute {
		t.Errorf("Sessions.SweepInterval = %v, want %v", cfg.Sessions.SweepInterval, 2*time.Minute)
	}
	if cfg.Sessions.KeepaliveInterval != 10*time.Second {
		t.Errorf("Sessions.KeepaliveInterval = %v, want %v", cfg.Sessions.KeepaliveInterval, 10*time.Second)
	}
	if cfg.Sessions.SubscriberBuffer != 32 {
		t.Errorf("Sessions.SubscriberBuffer = %d, want 32", cfg.Sessions.SubscriberBuffer)
	}

	if cfg.Telemetry.MaxEntries != 500 {
		t.Errorf("Telemetry.MaxEntries = %d, want 500", cfg.Telemetry.MaxEntries)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9090"

[runtime]
adapter_priority = ["gemini", "desktop"]

[adapters.gemini]
api_key = "g-key"
timeout = "45s"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9090" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:9090")
	}
	if cfg.Adapters.Gemini.APIKey != "g-key" {
		t.Errorf("Adapters.Gemini.APIKey = %q, want %q", cfg.Adapters.Gemini.APIKey, "g-key")
	}
	if cfg.Adapters.Gemini.Timeout != 45*time.Second {
		t.Errorf("Adapters.Gemini.Timeout = %v, want %v", cfg.Adapters.Gemini.Timeout, 45*time.Second)
	}
	if len(cfg.Runtime.AdapterPriority) != 2 || cfg.Runtime.AdapterPriority[0] != "gemini" {
		t.Errorf("Runtime.AdapterPriority = %v, want [gemini desktop]", cfg.Runtime.AdapterPriority)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-from-env")
	t.Setenv("TEST_JWT_SECRET", strings.Repeat("s", 32))

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
adapters:
  anthropic:
    api_key: "${TEST_ANTHROPIC_KEY}"
  openai:
    api_key: "${TEST_UNSET_VARIABLE}"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Adapters.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("Adapters.Anthropic.APIKey = %q, want %q", cfg.Adapters.Anthropic.APIKey, "sk-from-env")
	}
	if cfg.Adapters.OpenAI.APIKey != "" {
		t.Errorf("Adapters.OpenAI.APIKey = %q, want empty for unset variable", cfg.Adapters.OpenAI.APIKey)
	}
	if len(cfg.Auth.JWTSecret) != 32 {
		t.Errorf("Auth.JWTSecret length = %d, want 32", len(cfg.Auth.JWTSecret))
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Sessions.KeepaliveInterval != 15*time.Second {
		t.Errorf("Sessions.KeepaliveInterval = %v, want 15s", cfg.Sessions.KeepaliveInterval)
	}
	if cfg.Sessions.IdleTimeout != 0 {
		t.Errorf("Sessions.IdleTimeout = %v, want 0 (disabled)", cfg.Sessions.IdleTimeout)
	}
	if cfg.Sessions.SubscriberBuffer != 256 {
		t.Errorf("Sessions.SubscriberBuffer = %d, want 256", cfg.Sessions.SubscriberBuffer)
	}
	if cfg.Adapters.Ollama.BaseURL != "http://127.0.0.1:11434" {
		t.Errorf("Adapters.Ollama.BaseURL = %q", cfg.Adapters.Ollama.BaseURL)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("Redis.TTL = %v, want 24h", cfg.Redis.TTL)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want info/text", cfg.Logging)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
sessions:
  keepalive_interval: "soon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "keepalive_interval") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "server.http_addr",
		},
		{
			name: "tailscale without hostname",
			mutate: func(c *Config) {
				c.Tailscale.Enabled = true
				c.Server.HTTPAddr = ""
			},
			wantErr: "tailscale.hostname",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr: "jwt_secret",
		},
		{
			name: "redis without addr",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantErr: "redis.addr",
		},
		{
			name:    "negative idle timeout",
			mutate:  func(c *Config) { c.Sessions.IdleTimeout = -time.Second },
			wantErr: "idle_timeout",
		},
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAdaptersByID(t *testing.T) {
	cfg := Default()
	cfg.Adapters.Desktop.BaseURL = "http://desktop"

	if got := cfg.Adapters.ByID("desktop").BaseURL; got != "http://desktop" {
		t.Errorf("ByID(desktop).BaseURL = %q", got)
	}
	if !cfg.Adapters.ByID("unknown").Disabled {
		t.Error("ByID(unknown) should be disabled")
	}
}
