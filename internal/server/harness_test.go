package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/acmecorp/docs-mcp/api"
	"github.com/acmecorp/docs-mcp/internal/audit"
	"github.com/acmecorp/docs-mcp/internal/auth"
	"github.com/acmecorp/docs-mcp/internal/config"
	"github.com/acmecorp/docs-mcp/internal/httputil"
	"github.com/acmecorp/docs-mcp/internal/metrics"
	"github.com/acmecorp/docs-mcp/internal/policy"
)

const testSecret = "server-test-secret"

type recordingCaller struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *recordingCaller) Call(_ context.Context, name string, args map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	if c.err != nil {
		return nil, c.err
	}
	return map[string]any{
		"tool":    name,
		"content": "contents of " + name,
		"args":    len(args),
	}, nil
}

func (c *recordingCaller) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) Revoke(_ context.Context, jti string, _ time.Duration) error {
	f.revoked[jti] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[jti], nil
}

type harness struct {
	t       *testing.T
	key     auth.VerificationKey
	issuer  *auth.Issuer
	logs    *bytes.Buffer
	caller  *recordingCaller
	metrics *metrics.Metrics
	guard   *AccessGuard
	server  *HTTPServer
	handler http.Handler
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	guardOpts []GuardOption
	readiness []httputil.ReadinessCheck
}

func withGuardOptions(opts ...GuardOption) harnessOption {
	return func(c *harnessConfig) {
		c.guardOpts = append(c.guardOpts, opts...)
	}
}

func withReadiness(checks ...httputil.ReadinessCheck) harnessOption {
	return func(c *harnessConfig) {
		c.readiness = append(c.readiness, checks...)
	}
}

func testCatalog(t *testing.T) *policy.Catalog {
	t.Helper()
	catalog, err := policy.NewCatalog(api.ToolsContract)
	require.NoError(t, err)
	return catalog
}

func newTestGuard(t *testing.T, logs *bytes.Buffer, m *metrics.Metrics, opts ...GuardOption) (*AccessGuard, auth.VerificationKey) {
	t.Helper()
	key, err := auth.NewHMACKey("HS256", []byte(testSecret))
	require.NoError(t, err)

	all := []GuardOption{
		WithAuditLogger(audit.NewLogger(zerolog.New(logs))),
		WithMetrics(m),
	}
	guard, err := NewAccessGuard(auth.NewValidator(key), policy.NewGate(testCatalog(t)), append(all, opts...)...)
	require.NoError(t, err)
	return guard, key
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	var hc harnessConfig
	for _, opt := range opts {
		opt(&hc)
	}

	logs := &bytes.Buffer{}
	m := metrics.New()
	guard, key := newTestGuard(t, logs, m, hc.guardOpts...)
	issuer, err := auth.NewIssuer(key)
	require.NoError(t, err)

	caller := &recordingCaller{}
	cfg := config.Config{MetricsEnabled: true, SessionTTL: time.Minute}
	srv := NewHTTPServer(cfg, BuildInfo{Version: "test", Commit: "abc123", Date: "2026-01-01"},
		guard, caller, m, zerolog.New(logs), hc.readiness...)

	return &harness{
		t:       t,
		key:     key,
		issuer:  issuer,
		logs:    logs,
		caller:  caller,
		metrics: m,
		guard:   guard,
		server:  srv,
		handler: srv.Router(),
	}
}

func (h *harness) token(subject string, scopes ...string) string {
	h.t.Helper()
	raw, _, err := h.issuer.Issue(auth.IssueRequest{Subject: subject, Scopes: scopes, TTL: time.Hour})
	require.NoError(h.t, err)
	return raw
}

// signedToken signs arbitrary claims with the harness key.
func (h *harness) signedToken(claims jwt.MapClaims) string {
	h.t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(h.t, err)
	return raw
}

func (h *harness) tokenWithID(subject, id string, scopes ...string) string {
	h.t.Helper()
	raw, _, err := h.issuer.Issue(auth.IssueRequest{Subject: subject, Scopes: scopes, TTL: time.Hour, ID: id})
	require.NoError(h.t, err)
	return raw
}

func (h *harness) expiredToken(subject string, scopes ...string) string {
	h.t.Helper()
	raw, _, err := h.issuer.Issue(auth.IssueRequest{Subject: subject, Scopes: scopes, TTL: -time.Second})
	require.NoError(h.t, err)
	return raw
}

func (h *harness) do(req *http.Request) *httptest.ResponseRecorder {
	h.t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) newRequest(method, path, token, sessionID string, body any) *http.Request {
	h.t.Helper()
	var payload []byte
	switch typed := body.(type) {
	case nil:
	case string:
		payload = []byte(typed)
	default:
		encoded, err := json.Marshal(typed)
		require.NoError(h.t, err)
		payload = encoded
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	return req
}

func (h *harness) postRPC(token, sessionID string, id int, method string, params any) *httptest.ResponseRecorder {
	h.t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "method": method}
	if id > 0 {
		msg["id"] = id
	}
	if params != nil {
		msg["params"] = params
	}
	return h.do(h.newRequest(http.MethodPost, "/mcp", token, sessionID, msg))
}

// initialize opens a session and returns its id.
func (h *harness) initialize(token string) string {
	h.t.Helper()
	rec := h.postRPC(token, "", 1, "initialize", map[string]any{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]any{"name": "test-client", "version": "0.0.1"},
	})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	sessionID := rec.Header().Get(sessionHeader)
	require.NotEmpty(h.t, sessionID)
	return sessionID
}

type testRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) testRPCResponse {
	t.Helper()
	var resp testRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func (h *harness) listTools(token, sessionID string) []string {
	h.t.Helper()
	rec := h.postRPC(token, sessionID, 2, "tools/list", nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeRPC(h.t, rec)
	require.Nil(h.t, resp.Error)

	var result listToolsResult
	require.NoError(h.t, json.Unmarshal(resp.Result, &result))
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	return names
}

func (h *harness) callTool(token, sessionID, name string) callToolResult {
	h.t.Helper()
	rec := h.postRPC(token, sessionID, 3, "tools/call", map[string]any{"name": name, "arguments": map[string]any{}})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeRPC(h.t, rec)
	require.Nil(h.t, resp.Error)

	var result callToolResult
	require.NoError(h.t, json.Unmarshal(resp.Result, &result))
	return result
}

// auditEvents returns the audit entries with the given event name.
func (h *harness) auditEvents(event string) []map[string]any {
	h.t.Helper()
	return auditEventsFromLogs(h.t, h.logs.String(), event)
}

func auditEventsFromLogs(t *testing.T, raw, event string) []map[string]any {
	t.Helper()
	var events []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["component"] == "audit" && entry["event"] == event {
			events = append(events, entry)
		}
	}
	return events
}
