// Package telemetry records adapter invocation outcomes for uta-gateway.
//
// # Recorder
//
// The Recorder keeps a bounded in-memory log of Invocations. RecordInvocation
// appends under a short lock and never fails; Snapshot aggregates the log per
// adapter on every call:
//
//	rec := telemetry.NewRecorder(telemetry.Config{MaxEntries: 10000}, logger)
//	rec.RecordInvocation(telemetry.Invocation{AdapterID: "ollama", Success: true, Duration: d})
//	snap := rec.Snapshot()["ollama"]
//
// # Metrics
//
// Every invocation also increments the uta.adapter.invocations counter and
// records uta.adapter.duration (milliseconds) on the configured OTel meter.
// NewMeterProvider builds an OTLP gRPC provider, or an exporter-less one when
// no endpoint is configured.
//
// # Persistence
//
// Config.Sink receives each invocation from a background worker. The queue is
// bounded; when it is full the invocation is still kept in memory but is not
// persisted.
package telemetry
