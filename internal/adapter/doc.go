// Package adapter connects uta-gateway to its AI backends.
//
// # Adapters
//
// An Adapter reports its status and processes one inbound message:
//
//	type Adapter interface {
//	    ID() string
//	    Status(ctx context.Context) Status
//	    Process(ctx context.Context, sess *session.Session, msg bridge.InboundMessage, emit EmitFunc) (*Result, error)
//	}
//
// Five implementations share one JSON-over-HTTP client:
//
//   - anthropic: first-party hosted Messages API
//   - openai: OpenAI-compatible chat completions
//   - gemini: generateContent API
//   - ollama: local open-weight runtime
//   - desktop: the desktop assistant app's local bridge
//
// Hosted adapters are available when configured with an API key. The
// ollama and desktop adapters probe their local endpoint with a short
// deadline. Every backend failure is returned as a *BackendError so the
// manager can fail over.
//
// # Manager
//
// The Manager owns the adapter registry and the telemetry recorder. For
// each message it builds a candidate order:
//
//  1. the preferred adapter (the session's current binding)
//  2. the configured adapter priority
//  3. ollama and desktop as last-resort fallbacks
//
// Candidates are tried at most once each. Unavailable adapters are skipped
// without a telemetry entry. The first success ends the pass; a failure
// moves on to the next candidate only when failover is enabled. Each
// attempt runs under the adapter's timeout plus a short grace period.
package adapter
