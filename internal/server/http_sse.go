package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acmecorp/docs-mcp/internal/audit"
	"github.com/acmecorp/docs-mcp/internal/httputil"
	"github.com/acmecorp/docs-mcp/internal/policy"
)

func (s *HTTPServer) registerMCPHTTPRoutes(r chi.Router) {
	r.Route("/mcp/v1", func(r chi.Router) {
		r.Post("/initialize", s.handleInitializeHTTP)
		r.Get("/tools", s.handleListToolsHTTP)
		r.Post("/tools/call", s.handleCallToolHTTP)
		r.Post("/tools/call/sse", s.handleCallToolSSE)
	})
}

func (s *HTTPServer) restMeta(r *http.Request, transport string) requestMeta {
	requestID := httputil.RequestIDFromContext(r.Context())
	return requestMeta{
		RequestID: requestID,
		SessionID: sessionIDFromHTTPRequest(r, requestID),
		Transport: transport,
	}
}

func (s *HTTPServer) handleInitializeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, err := s.authenticateHTTP(r, s.restMeta(r, "http")); err != nil {
		respondAuthProblem(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, newInitializeResult(r.Header.Get(protocolVersionHeader), s.build.Version))
}

func (s *HTTPServer) handleListToolsHTTP(w http.ResponseWriter, r *http.Request) {
	meta := s.restMeta(r, "http")
	principal, err := s.authenticateHTTP(r, meta)
	if err != nil {
		respondAuthProblem(w, r, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, s.dispatcher.listTools(r.Context(), principal, meta))
}

func (s *HTTPServer) handleCallToolHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	meta := s.restMeta(r, "http")

	params, decision, principal, rejection, ok := s.parseCallToolRequest(w, r, meta)
	auditEvent := audit.ToolCallCompletion{
		RequestID: meta.RequestID,
		SessionID: meta.SessionID,
		Transport: meta.Transport,
		ToolName:  params.Name,
		CallerSub: principal.Subject,
		Arguments: params.Arguments,
		Result:    "error",
	}
	defer func() {
		auditEvent.Duration = time.Since(started)
		s.dispatcher.audit.Complete(auditEvent)
	}()

	if !ok {
		auditEvent.ErrorDetail = rejection.detail
		auditEvent.ResponseCode = rejection.status
		if rejection.status == http.StatusForbidden {
			auditEvent.Result = "denied"
		}
		return
	}

	s.logger.Info().Str("transport", meta.Transport).Str("tool", decision.Tool).Msg("received tool call")
	payload, err := s.dispatcher.execute(r.Context(), decision, params.Arguments)
	if err != nil {
		auditEvent.ErrorDetail = toolErrorMessage(err)
		auditEvent.ResponseCode = toolErrorStatus(err)
		httputil.RespondProblem(w, r, toolErrorStatus(err), toolErrorMessage(err))
		return
	}
	auditEvent.Result = "success"
	auditEvent.ResponseCode = http.StatusOK
	httputil.RespondJSON(w, http.StatusOK, toolCallResultFromExecution(decision.Tool, payload))
}

func (s *HTTPServer) handleCallToolSSE(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	meta := s.restMeta(r, "http-sse")

	params, decision, principal, rejection, ok := s.parseCallToolRequest(w, r, meta)
	auditEvent := audit.ToolCallCompletion{
		RequestID: meta.RequestID,
		SessionID: meta.SessionID,
		Transport: meta.Transport,
		ToolName:  params.Name,
		CallerSub: principal.Subject,
		Arguments: params.Arguments,
		Result:    "error",
	}
	defer func() {
		auditEvent.Duration = time.Since(started)
		s.dispatcher.audit.Complete(auditEvent)
	}()

	if !ok {
		auditEvent.ErrorDetail = rejection.detail
		auditEvent.ResponseCode = rejection.status
		if rejection.status == http.StatusForbidden {
			auditEvent.Result = "denied"
		}
		return
	}

	controller := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info().Str("transport", meta.Transport).Str("tool", decision.Tool).Msg("streaming tool call")

	if err := writeSSEEvent(r.Context(), w, "accepted", map[string]any{
		"tool":      decision.Tool,
		"status":    "accepted",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		auditEvent.ErrorDetail = err.Error()
		auditEvent.ResponseCode = http.StatusInternalServerError
		return
	}
	_ = controller.Flush()

	payload, err := s.dispatcher.execute(r.Context(), decision, params.Arguments)
	result := toolCallResultFromExecution(decision.Tool, payload)
	if err != nil {
		result = toolCallResultFromError(decision.Tool, err)
		auditEvent.ErrorDetail = toolErrorMessage(err)
		auditEvent.ResponseCode = toolErrorStatus(err)
	}

	if writeErr := writeSSEEvent(r.Context(), w, "result", result); writeErr != nil {
		auditEvent.ErrorDetail = writeErr.Error()
		auditEvent.ResponseCode = http.StatusInternalServerError
		return
	}
	_ = controller.Flush()
	_ = writeSSEEvent(r.Context(), w, "done", map[string]any{"status": "done"})
	_ = controller.Flush()

	if err == nil {
		auditEvent.Result = "success"
		auditEvent.ResponseCode = http.StatusOK
	}
}

type callRejection struct {
	status int
	detail string
}

// parseCallToolRequest authenticates, decodes and authorizes a REST tool
// call. On failure it has already written the problem response.
func (s *HTTPServer) parseCallToolRequest(
	w http.ResponseWriter,
	r *http.Request,
	meta requestMeta,
) (callToolParams, policy.Decision, Principal, callRejection, bool) {
	principal, err := s.authenticateHTTP(r, meta)
	if err != nil {
		status, _ := authFailureResponse(err)
		respondAuthProblem(w, r, err)
		return callToolParams{}, policy.Decision{}, Principal{}, callRejection{status: status, detail: err.Error()}, false
	}

	var params callToolParams
	if err := decodeJSONStrict(r, &params); err != nil {
		detail := fmt.Sprintf("invalid request body: %v", err)
		httputil.RespondProblem(w, r, http.StatusBadRequest, detail)
		return callToolParams{}, policy.Decision{}, principal, callRejection{status: http.StatusBadRequest, detail: detail}, false
	}

	if strings.TrimSpace(params.Name) == "" {
		httputil.RespondProblem(w, r, http.StatusBadRequest, "tool name is required")
		return params, policy.Decision{}, principal, callRejection{status: http.StatusBadRequest, detail: "tool name is required"}, false
	}

	decision := s.guard.AuthorizeCall(r.Context(), principal, params.Name, meta)
	if !decision.Allowed {
		httputil.RespondProblem(w, r, http.StatusForbidden, decision.DenialMessage())
		return params, decision, principal, callRejection{status: http.StatusForbidden, detail: decision.DenialMessage()}, false
	}

	return params, decision, principal, callRejection{}, true
}

func writeSSEEvent(ctx context.Context, w http.ResponseWriter, event string, payload any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", strings.TrimSpace(event)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

func decodeJSONStrict(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if decoder.More() {
		return fmt.Errorf("request must contain exactly one JSON object")
	}
	return nil
}

func sessionIDFromHTTPRequest(r *http.Request, fallback string) string {
	if r == nil {
		return strings.TrimSpace(fallback)
	}
	if sessionID := strings.TrimSpace(r.Header.Get(sessionHeader)); sessionID != "" {
		return sessionID
	}
	if sessionID := strings.TrimSpace(r.Header.Get("X-Session-ID")); sessionID != "" {
		return sessionID
	}
	return strings.TrimSpace(fallback)
}
