package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmecorp/docs-mcp/internal/httputil"
)

func decodeProblem(t *testing.T, body string) httputil.Problem {
	t.Helper()
	var problem httputil.Problem
	require.NoError(t, json.Unmarshal([]byte(body), &problem), body)
	return problem
}

func TestHTTPListTools_FiltersByScope(t *testing.T) {
	h := newHarness(t)

	rec := h.do(h.newRequest(http.MethodGet, "/mcp/v1/tools", h.token("alice", "public:read"), "", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result listToolsResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Tools, 1)
	require.Equal(t, "get_public_info", result.Tools[0].Name)
	require.Equal(t, "object", result.Tools[0].InputSchema["type"])
}

func TestHTTPListTools_RequiresToken(t *testing.T) {
	h := newHarness(t)

	rec := h.do(h.newRequest(http.MethodGet, "/mcp/v1/tools", "", "", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
	require.Equal(t, unauthorizedMessage, decodeProblem(t, rec.Body.String()).Detail)
}

func TestHTTPInitialize(t *testing.T) {
	h := newHarness(t)

	rec := h.do(h.newRequest(http.MethodPost, "/mcp/v1/initialize", h.token("alice"), "", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var result initializeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, latestProtocolVersion, result.ProtocolVersion)
	require.Equal(t, "test", result.ServerInfo.Version)

	rec = h.do(h.newRequest(http.MethodPost, "/mcp/v1/initialize", "garbage", "", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPCallTool_Allowed(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{"name": "get_public_info", "arguments": map[string]any{}}

	req := h.newRequest(http.MethodPost, "/mcp/v1/tools/call", h.token("alice", "public:read"), "", body)
	req.Header.Set(httputil.RequestIDHeader, "req-rest-1")
	rec := h.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result callToolResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.False(t, result.IsError)
	require.Equal(t, "contents of get_public_info", result.Content[0].Text)

	completed := h.auditEvents("mcp.tool_call.completed")
	require.Len(t, completed, 1)
	require.Equal(t, "req-rest-1", completed[0]["request_id"])
	require.Equal(t, "success", completed[0]["result"])
	require.Equal(t, "alice", completed[0]["caller_subject"])
}

func TestHTTPCallTool_Denials(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		tool    string
		message string
		reason  string
	}{
		{
			name:    "insufficient scope",
			scopes:  []string{"public:read"},
			tool:    "get_confidential_info",
			message: "Access denied: tool 'get_confidential_info' requires scope 'confidential:read'",
			reason:  "insufficient_scope",
		},
		{
			name:    "unknown tool",
			scopes:  []string{"public:read", "confidential:read"},
			tool:    "delete_everything",
			message: "Access denied: tool 'delete_everything' is not available",
			reason:  "unknown_tool",
		},
		{
			name:    "padded tool name",
			scopes:  []string{"public:read", "confidential:read"},
			tool:    " get_public_info ",
			message: "Access denied: tool ' get_public_info ' is not available",
			reason:  "unknown_tool",
		},
		{
			name:    "case sensitive scope",
			scopes:  []string{"PUBLIC:READ"},
			tool:    "get_public_info",
			message: "Access denied: tool 'get_public_info' requires scope 'public:read'",
			reason:  "insufficient_scope",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			body := map[string]any{"name": tc.tool}

			rec := h.do(h.newRequest(http.MethodPost, "/mcp/v1/tools/call", h.token("bob", tc.scopes...), "", body))
			require.Equal(t, http.StatusForbidden, rec.Code)
			require.Equal(t, tc.message, decodeProblem(t, rec.Body.String()).Detail)
			require.Empty(t, h.caller.Calls())

			decisions := h.auditEvents("mcp.tool_call.authorized")
			require.Len(t, decisions, 1)
			require.Equal(t, tc.reason, decisions[0]["reason"])

			completed := h.auditEvents("mcp.tool_call.completed")
			require.Len(t, completed, 1)
			require.Equal(t, "denied", completed[0]["result"])
			require.EqualValues(t, http.StatusForbidden, completed[0]["response_code"])
		})
	}
}

func TestHTTPCallTool_RejectsBadRequests(t *testing.T) {
	h := newHarness(t)
	token := h.token("alice", "public:read")

	rec := h.do(h.newRequest(http.MethodPost, "/mcp/v1/tools/call", token, "", `{"name":"get_public_info","extra":1}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(h.newRequest(http.MethodPost, "/mcp/v1/tools/call", token, "", `{"name":""}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "tool name is required", decodeProblem(t, rec.Body.String()).Detail)

	rec = h.do(h.newRequest(http.MethodPost, "/mcp/v1/tools/call", h.expiredToken("alice", "public:read"), "", `{"name":"get_public_info"}`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, h.caller.Calls())
}

func TestHTTPCallToolSSE_StreamsEvents(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{"name": "get_confidential_info"}

	rec := h.do(h.newRequest(http.MethodPost, "/mcp/v1/tools/call/sse", h.token("bob", "confidential:read"), "", body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	payload := rec.Body.String()
	accepted := strings.Index(payload, "event: accepted")
	result := strings.Index(payload, "event: result")
	done := strings.Index(payload, "event: done")
	require.GreaterOrEqual(t, accepted, 0)
	require.Greater(t, result, accepted)
	require.Greater(t, done, result)
	require.Contains(t, payload, "contents of get_confidential_info")

	completed := h.auditEvents("mcp.tool_call.completed")
	require.Len(t, completed, 1)
	require.Equal(t, "http-sse", completed[0]["transport"])
	require.Equal(t, "success", completed[0]["result"])
}

func TestHTTPCallToolSSE_DeniedBeforeStreaming(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{"name": "get_confidential_info"}

	rec := h.do(h.newRequest(http.MethodPost, "/mcp/v1/tools/call/sse", h.token("alice", "public:read"), "", body))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotContains(t, rec.Body.String(), "event:")
	require.Empty(t, h.caller.Calls())
}
