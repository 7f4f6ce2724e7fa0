// Package observability provides the logging, metrics and tracing used by
// the turnstream server.
//
// # Logging
//
// Logger wraps a slog handler. Request and session ids stored with
// AddRequestID and AddSessionID are attached to every record logged with
// that context, and API keys, bearer tokens and passwords are redacted.
// The level lives in a slog.LevelVar so a config reload can change it.
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.AddRequestID(ctx, requestID)
//	logger.Slog().InfoContext(ctx, "turn started")
//
// # Metrics
//
// Metrics registers Prometheus collectors with an injected registry and
// serves them through Handler:
//
//	turnstream_turns_total{outcome}
//	turnstream_turn_duration_seconds
//	turnstream_tool_executions_total{tool,status}
//	turnstream_active_sessions
//	turnstream_active_requests
//
// # Tracing
//
// Tracer exports OpenTelemetry spans over OTLP gRPC. With no endpoint it is
// a no-op. The orchestrator opens chat.turn_stream for each request, with
// model.stream and tool.execute children.
package observability
