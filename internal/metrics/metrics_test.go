package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsDecisions(t *testing.T) {
	m := New()

	m.ObserveValidation("http", "")
	m.ObserveValidation("http", "expired")
	m.ObserveValidation("http", "expired")
	m.ObserveDecision("get_public_info", true, "")
	m.ObserveDecision("get_confidential_info", false, "insufficient_scope")
	m.ObserveListing(1)

	require.InDelta(t, 1, testutil.ToFloat64(m.TokenValidations.WithLabelValues("http", "authenticated")), 0)
	require.InDelta(t, 2, testutil.ToFloat64(m.TokenValidations.WithLabelValues("http", "expired")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.CallDecisions.WithLabelValues("get_confidential_info", "denied", "insufficient_scope")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.ToolsListed), 0)
}

func TestMetrics_SessionGauge(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	require.InDelta(t, 1, testutil.ToFloat64(m.ActiveSessions), 0)
}

func TestMetrics_HandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveToolCall("get_public_info", "success", time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "docs_mcp_tool_call_duration_seconds")
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveValidation("http", "")
		m.ObserveListing(0)
		m.ObserveDecision("x", false, "unknown_tool")
		m.ObserveToolCall("x", "error", time.Now())
		m.ObserveRevocationCheck(time.Now())
		m.SessionOpened()
		m.SessionClosed()
	})
	require.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
