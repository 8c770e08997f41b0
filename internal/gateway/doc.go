// Package gateway is the composition root and HTTP surface of uta-gateway.
//
// # Overview
//
// New builds every component from configuration: the session store (with
// its idle sweeper and optional Redis mirror), the telemetry recorder (with
// OTel instruments and optional SQLite history), the adapter manager and
// the optional JWT verifier. Run serves until its context is cancelled and
// then calls Shutdown, which releases them in reverse dependency order.
//
// # HTTP API
//
//	POST   /uta/session              create a session (201)
//	POST   /uta/message              send a message through the adapters (200)
//	POST   /uta/tool-result          publish a tool result (200)
//	GET    /uta/session/{id}/stream  Server-Sent Events for one session
//	DELETE /uta/session/{id}?token=  delete a session (204)
//	GET    /uta/heartbeat            diagnostics
//	GET    /health                   liveness
//	GET    /health/ready             200 when any adapter is available
//
// Errors are JSON objects with an "error" message; validation failures add
// a "details" list of {field, message}. Unknown session ids and wrong
// tokens both produce the same 401.
//
// A message carrying a messageId is processed at most once per session
// within ten minutes; a retry gets the first reply with "duplicate": true.
//
// # Event Stream
//
// Each event is written as
//
//	id: <event id>
//	data: <event JSON>
//
// followed by a blank line. A ": keepalive" comment is written every
// sessions.keepalive_interval whether or not events flow.
//
// # Listeners
//
// Without Tailscale the gateway listens on server.http_addr. With
// tailscale.enabled it joins the tailnet through tsnet and serves on :80,
// or :443 with tailnet certificates (https) or publicly (funnel).
package gateway
