// Package bridge defines the wire types shared by the session store, the
// adapters and the HTTP surface of uta-gateway.
//
// # Events
//
// Everything that happens in a session is republished as an Event:
//
//	{"id": "...", "type": "message", "timestamp": "...",
//	 "message": {"role": "assistant", "content": "Hi", "voiceHint": "calm"}}
//
//	{"id": "...", "type": "tool_result", "timestamp": "...",
//	 "payload": {"toolName": "calendar.lookup", "payload": {...}}}
//
//	{"id": "...", "type": "status", "timestamp": "...",
//	 "payload": {"state": "adapter_switched", "from": "anthropic", "to": "ollama"}}
//
// Events are values. Constructors copy payload maps so a published event
// cannot be edited through a map the caller still holds.
//
// # Adapter identifiers
//
// The gateway knows five adapter ids. DefaultPriority lists them in the
// documented fallback order; IsKnownAdapter validates configuration and
// request values against the same set.
package bridge
