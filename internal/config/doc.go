// Package config handles configuration loading for uta-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion. The package applies defaults, validates the result, and resolves
// the process-wide RuntimeConfig.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from UTA_CONFIG environment variable
//  3. ~/.config/uta/gateway.yaml
//
// When no file exists, Default() is used.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	adapters:
//	  anthropic:
//	    api_key: "${ANTHROPIC_API_KEY}"
//
// # Configuration Sections
//
// Server and listeners:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	tailscale:
//	  enabled: false
//	  hostname: "uta-gateway"
//	  https: true
//
// Runtime (overridden by UTA_DEFAULT_MODE, UTA_ADAPTER_PRIORITY, UTA_FAILOVER_ENABLED):
//
//	runtime:
//	  default_mode: "auto"          # auto or an adapter id
//	  adapter_priority: [anthropic, openai, gemini, ollama, desktop]
//	  failover_enabled: true
//
// Adapters:
//
//	adapters:
//	  anthropic: {api_key: "...", model: "...", timeout: "60s"}
//	  openai:    {api_key: "...", base_url: "https://api.openai.com"}
//	  gemini:    {api_key: "..."}
//	  ollama:    {base_url: "http://127.0.0.1:11434", model: "llama3.1"}
//	  desktop:   {base_url: "http://127.0.0.1:17871", disabled: false}
//
// Sessions:
//
//	sessions:
//	  idle_timeout: "0s"         # 0 disables the idle sweep
//	  sweep_interval: "1m"
//	  keepalive_interval: "15s"
//	  subscriber_buffer: 256
//	  require_stream_token: false
//
// Telemetry, Redis mirror and caller auth:
//
//	telemetry:
//	  database_path: "/var/lib/uta/telemetry.db"
//	  otlp_endpoint: "localhost:4317"
//	  max_entries: 10000
//	redis:
//	  enabled: false
//	  addr: "localhost:6379"
//	  ttl: "24h"
//	auth:
//	  jwt_secret: "${UTA_JWT_SECRET}"
//
// # Runtime Configuration
//
// ResolveRuntime validates every value against the enumerated adapter ids.
// Unknown priority entries are dropped, duplicates removed, and an empty list
// falls back to anthropic, openai, gemini, ollama, desktop. The result is
// passed by value into the adapter manager; there is no live reload.
package config
