// Package observability exposes the server's Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects session, run and tool metrics.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RunFinished("deferred")
type Metrics struct {
	// ActiveSessions is the number of open /events streams.
	ActiveSessions prometheus.Gauge

	// PingsDropped counts keepalive pings dropped on a full queue.
	PingsDropped prometheus.Counter

	// RunCounter counts runs by outcome.
	// Labels: status (completed|deferred|cancelled|error)
	RunCounter *prometheus.CounterVec

	// FrameCounter counts frames emitted to clients.
	// Labels: type
	FrameCounter *prometheus.CounterVec

	// MessagesSaved counts persisted turns.
	// Labels: status (success|error)
	MessagesSaved *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aguitest_active_sessions",
			Help: "Current number of open event streams",
		}),

		PingsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aguitest_keepalive_pings_dropped_total",
			Help: "Total number of keepalive pings dropped because a session queue was full",
		}),

		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aguitest_runs_total",
				Help: "Total number of agent runs by outcome",
			},
			[]string{"status"},
		),

		FrameCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aguitest_frames_total",
				Help: "Total number of frames emitted by event type",
			},
			[]string{"type"},
		),

		MessagesSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aguitest_messages_saved_total",
				Help: "Total number of persisted turns by status",
			},
			[]string{"status"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aguitest_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aguitest_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
	}
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) PingDropped() {
	if m == nil {
		return
	}
	m.PingsDropped.Inc()
}

// RunFinished records the outcome of a run.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.RunCounter.WithLabelValues(status).Inc()
}

// FrameEmitted records one frame of the given event type.
func (m *Metrics) FrameEmitted(eventType string) {
	if m == nil {
		return
	}
	m.FrameCounter.WithLabelValues(eventType).Inc()
}

// MessageSaved records a persistence attempt.
func (m *Metrics) MessageSaved(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.MessagesSaved.WithLabelValues(status).Inc()
}

// ObserveTool records a tool execution.
func (m *Metrics) ObserveTool(toolName, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}
