// ABOUTME: Runtime configuration: default adapter mode, adapter priority and failover flag
// ABOUTME: Resolved once from file settings overridden by UTA_* environment variables

package config

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/2389/uta-gateway/internal/bridge"
)

// Environment variables that override the runtime section.
const (
	EnvDefaultMode     = "UTA_DEFAULT_MODE"
	EnvAdapterPriority = "UTA_ADAPTER_PRIORITY"
	EnvFailoverEnabled = "UTA_FAILOVER_ENABLED"
)

// ModeAuto lets the adapter manager pick the first available adapter.
const ModeAuto = "auto"

// RuntimeConfig is immutable for the lifetime of the process.
type RuntimeConfig struct {
	DefaultMode     string   `json:"defaultMode"`
	AdapterPriority []string `json:"adapterPriority"`
	FailoverEnabled bool     `json:"failoverEnabled"`
}

// DefaultRuntime returns auto mode, the documented priority and failover on.
func DefaultRuntime() RuntimeConfig {
	return RuntimeConfig{
		DefaultMode:     ModeAuto,
		AdapterPriority: bridge.DefaultPriority(),
		FailoverEnabled: true,
	}
}

// Preferred returns the adapter id implied by the default mode, or "" in auto mode.
func (r RuntimeConfig) Preferred() string {
	if r.DefaultMode == ModeAuto {
		return ""
	}
	return r.DefaultMode
}

// ResolveRuntime validates the runtime section against the enumerated adapter
// ids. getenv is usually os.Getenv; a non-empty environment value replaces
// the file value. Invalid values are logged and replaced by defaults.
func ResolveRuntime(section RuntimeSection, getenv func(string) string, logger *slog.Logger) RuntimeConfig {
	if logger == nil {
		logger = slog.Default()
	}
	rt := DefaultRuntime()

	mode := strings.ToLower(strings.TrimSpace(section.DefaultMode))
	if env := strings.TrimSpace(getenv(EnvDefaultMode)); env != "" {
		mode = strings.ToLower(env)
	}
	switch {
	case mode == "":
	case mode == ModeAuto || bridge.IsKnownAdapter(mode):
		rt.DefaultMode = mode
	default:
		logger.Warn("invalid default adapter mode, using auto", "value", mode)
	}

	entries := section.AdapterPriority
	if env := strings.TrimSpace(getenv(EnvAdapterPriority)); env != "" {
		entries = strings.Split(env, ",")
	}
	if len(entries) > 0 {
		if priority := parsePriority(entries, logger); len(priority) > 0 {
			rt.AdapterPriority = priority
		} else {
			logger.Warn("adapter priority has no valid entries, using default ordering",
				"default", rt.AdapterPriority)
		}
	}

	if section.FailoverEnabled != nil {
		rt.FailoverEnabled = *section.FailoverEnabled
	}
	if env := strings.TrimSpace(getenv(EnvFailoverEnabled)); env != "" {
		enabled, err := strconv.ParseBool(env)
		if err != nil {
			logger.Warn("invalid failover flag, keeping previous value", "value", env, "failover_enabled", rt.FailoverEnabled)
		} else {
			rt.FailoverEnabled = enabled
		}
	}

	return rt
}

// parsePriority keeps known adapter ids in order, dropping unknown entries and duplicates.
func parsePriority(entries []string, logger *slog.Logger) []string {
	out := make([]string, 0, len(entries))
	for _, raw := range entries {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" {
			continue
		}
		if !bridge.IsKnownAdapter(id) {
			logger.Warn("dropping unknown adapter from priority", "value", raw)
			continue
		}
		if slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
