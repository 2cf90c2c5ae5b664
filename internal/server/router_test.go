package server

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_OperationalRoutes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(h.newRequest(http.MethodGet, "/health", "", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "mcp/v1", rec.Header().Get("X-API-Version"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(h.newRequest(http.MethodGet, "/ready", "", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(h.newRequest(http.MethodGet, "/version", "", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "abc123")

	h.initialize(h.token("alice", "public:read"))
	rec = h.do(h.newRequest(http.MethodGet, "/metrics", "", "", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "docs_mcp_token_validations_total")
	require.Contains(t, rec.Body.String(), "docs_mcp_active_sessions 1")
}

func TestRouter_ReadinessFailure(t *testing.T) {
	h := newHarness(t, withReadiness(func(context.Context) error {
		return errors.New("document files missing: confidential.md")
	}))

	rec := h.do(h.newRequest(http.MethodGet, "/ready", "", "", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "confidential.md")
}

func TestRouter_NoToolContractRoute(t *testing.T) {
	h := newHarness(t)

	rec := h.do(h.newRequest(http.MethodGet, "/api/tools.yaml", "", "", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
