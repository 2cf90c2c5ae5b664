// Package metrics exposes Prometheus collectors for authentication and tool
// access decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks token validation outcomes, tool visibility, call decisions
// and tool execution latency. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	TokenValidations    *prometheus.CounterVec
	ToolsListed         prometheus.Counter
	VisibleTools        prometheus.Histogram
	CallDecisions       *prometheus.CounterVec
	ToolCallDuration    *prometheus.HistogramVec
	RevocationCheckTime prometheus.Histogram
	ActiveSessions      prometheus.Gauge
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_mcp_token_validations_total",
			Help: "Token validation attempts by outcome",
		}, []string{"transport", "outcome"}),
		ToolsListed: factory.NewCounter(prometheus.CounterOpts{
			Name: "docs_mcp_tools_list_requests_total",
			Help: "Authenticated tools/list requests",
		}),
		VisibleTools: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docs_mcp_visible_tools",
			Help:    "Number of tools visible to a caller per tools/list request",
			Buckets: []float64{0, 1, 2, 5, 10, 25},
		}),
		CallDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docs_mcp_tool_call_decisions_total",
			Help: "Tool call authorization decisions",
		}, []string{"tool", "decision", "reason"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docs_mcp_tool_call_duration_seconds",
			Help:    "Duration of allowed tool executions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"tool", "result"}),
		RevocationCheckTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "docs_mcp_revocation_check_duration_seconds",
			Help:    "Latency of token revocation lookups",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docs_mcp_active_sessions",
			Help: "Open streamable HTTP sessions",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveValidation records one token validation. An empty reason means
// the token was accepted.
func (m *Metrics) ObserveValidation(transport, reason string) {
	if m == nil {
		return
	}
	outcome := reason
	if outcome == "" {
		outcome = "authenticated"
	}
	m.TokenValidations.WithLabelValues(transport, outcome).Inc()
}

// ObserveListing records the size of one filtered tool list.
func (m *Metrics) ObserveListing(visible int) {
	if m == nil {
		return
	}
	m.ToolsListed.Inc()
	m.VisibleTools.Observe(float64(visible))
}

// ObserveDecision records one call authorization decision.
func (m *Metrics) ObserveDecision(tool string, allowed bool, reason string) {
	if m == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.CallDecisions.WithLabelValues(tool, decision, reason).Inc()
}

// ObserveToolCall records the duration of an allowed tool execution.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveToolCall(tool, result string, start time.Time) {
	if m == nil {
		return
	}
	m.ToolCallDuration.WithLabelValues(tool, result).Observe(time.Since(start).Seconds())
}

// ObserveRevocationCheck records the latency of a revocation lookup.
func (m *Metrics) ObserveRevocationCheck(start time.Time) {
	if m == nil {
		return
	}
	m.RevocationCheckTime.Observe(time.Since(start).Seconds())
}

// SessionOpened increments the open session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the open session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
