// ABOUTME: Enumerated adapter identifiers and the documented fallback ordering
// ABOUTME: Shared by runtime configuration, the adapter manager and request validation

package bridge

import "slices"

// Adapter identifiers.
const (
	AdapterAnthropic = "anthropic" // first-party hosted API
	AdapterOpenAI    = "openai"    // alternative hosted API (OpenAI-compatible)
	AdapterGemini    = "gemini"    // alternative hosted API
	AdapterOllama    = "ollama"    // local open-weight runtime
	AdapterDesktop   = "desktop"   // desktop-hosted assistant app
)

var defaultPriority = []string{
	AdapterAnthropic,
	AdapterOpenAI,
	AdapterGemini,
	AdapterOllama,
	AdapterDesktop,
}

// DefaultPriority returns the documented adapter ordering. The slice is a copy.
func DefaultPriority() []string {
	return slices.Clone(defaultPriority)
}

// BaselineFallbacks are always tried last, even when absent from the
// configured priority.
func BaselineFallbacks() []string {
	return []string{AdapterOllama, AdapterDesktop}
}

// IsKnownAdapter reports whether id is one of the enumerated adapter ids.
func IsKnownAdapter(id string) bool {
	return slices.Contains(defaultPriority, id)
}
