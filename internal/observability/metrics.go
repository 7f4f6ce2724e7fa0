package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn outcomes used as the outcome label of TurnCounter.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds the Prometheus collectors of the server. Collectors are
// registered with the registry given to NewMetrics, so several servers (and
// tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec

	// HTTPRequestDuration measures HTTP request latency in seconds. Streaming
	// requests are observed when the stream ends.
	// Labels: method, path
	HTTPRequestDuration *prometheus.HistogramVec

	// TurnCounter counts turn streams by outcome.
	// Labels: outcome (completed|cancelled|failed)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures turn stream duration in seconds.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	TurnDuration prometheus.Histogram

	// ModelTurnCounter counts model round trips across all turn streams.
	ModelTurnCounter prometheus.Counter

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ActiveSessions is the number of live sessions.
	ActiveSessions prometheus.Gauge

	// ActiveRequests is the number of in-flight turn streams.
	ActiveRequests prometheus.Gauge

	// SessionsExpired counts sessions removed by the idle sweep.
	SessionsExpired prometheus.Counter

	// ErrorCounter tracks errors by component and type.
	// Labels: component (gateway|agent|tool|session), type
	ErrorCounter *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstream_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnstream_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
			[]string{"method", "path"},
		),

		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstream_turns_total",
				Help: "Total number of turn streams by outcome",
			},
			[]string{"outcome"},
		),

		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turnstream_turn_duration_seconds",
				Help:    "Duration of turn streams in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
		),

		ModelTurnCounter: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turnstream_model_turns_total",
				Help: "Total number of model round trips",
			},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstream_tool_executions_total",
				Help: "Total number of tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "turnstream_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "turnstream_active_sessions",
				Help: "Current number of live sessions",
			},
		),

		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "turnstream_active_requests",
				Help: "Current number of in-flight turn streams",
			},
		),

		SessionsExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "turnstream_sessions_expired_total",
				Help: "Total number of sessions removed by the idle sweep",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turnstream_errors_total",
				Help: "Total number of errors by component and type",
			},
			[]string{"component", "type"},
		),
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TurnStarted marks a turn stream in flight.
func (m *Metrics) TurnStarted() {
	m.ActiveRequests.Inc()
}

// TurnFinished records the outcome of a turn stream that ran modelTurns
// model round trips.
func (m *Metrics) TurnFinished(outcome string, modelTurns int, duration time.Duration) {
	m.ActiveRequests.Dec()
	m.TurnCounter.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(duration.Seconds())
	if modelTurns > 0 {
		m.ModelTurnCounter.Add(float64(modelTurns))
	}
}

// RecordToolExecution records one tool execution.
func (m *Metrics) RecordToolExecution(tool, status string, duration time.Duration) {
	m.ToolExecutionCounter.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionCreated increments the live session gauge.
func (m *Metrics) SessionCreated() {
	m.ActiveSessions.Inc()
}

// SessionDeleted decrements the live session gauge.
func (m *Metrics) SessionDeleted() {
	m.ActiveSessions.Dec()
}

// SessionsSwept records count sessions removed by the idle sweep.
func (m *Metrics) SessionsSwept(count int) {
	if count <= 0 {
		return
	}
	m.ActiveSessions.Sub(float64(count))
	m.SessionsExpired.Add(float64(count))
}
