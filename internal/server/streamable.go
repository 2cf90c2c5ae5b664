package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/acmecorp/docs-mcp/internal/httputil"
)

const (
	sessionHeader         = "Mcp-Session-Id"
	protocolVersionHeader = "Mcp-Protocol-Version"

	// MaxRequestBodySize bounds a single JSON-RPC message on /mcp.
	MaxRequestBodySize = 1 << 20
)

func (s *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleMCPPost(w, r)
	case http.MethodDelete:
		s.handleMCPDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		httputil.RespondProblem(w, r, http.StatusMethodNotAllowed, "server-initiated streams are not supported")
	}
}

// handleMCPPost authenticates, then processes exactly one JSON-RPC message.
func (s *HTTPServer) handleMCPPost(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	meta := requestMeta{
		RequestID: httputil.RequestIDFromContext(r.Context()),
		SessionID: sessionID,
		Transport: "http",
	}

	principal, err := s.authenticateHTTP(r, meta)
	if err != nil {
		status, message := authFailureResponse(err)
		setAuthChallenge(w, status)
		writeRPCStatus(w, status, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: rpcCodeUnauthorized, Message: message},
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		writeRPCStatus(w, http.StatusOK, rpcErrorResponse(nil, rpcCodeParseError, "failed to read request body"))
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		writeRPCStatus(w, http.StatusOK, rpcErrorResponse(nil, rpcCodeInvalidRequest, "request body too large"))
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCStatus(w, http.StatusOK, rpcErrorResponse(nil, rpcCodeParseError, "invalid JSON"))
		return
	}
	if req.JSONRPC != "2.0" {
		writeRPCStatus(w, http.StatusOK, rpcErrorResponse(req.ID, rpcCodeInvalidRequest, "jsonrpc must be 2.0"))
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		writeRPCStatus(w, http.StatusOK, rpcErrorResponse(req.ID, rpcCodeInvalidRequest, "method is required"))
		return
	}

	isInitialize := req.Method == "initialize"
	if !isInitialize {
		if version := strings.TrimSpace(r.Header.Get(protocolVersionHeader)); version != "" && !isSupportedProtocolVersion(version) {
			httputil.RespondProblem(w, r, http.StatusBadRequest, "unsupported "+protocolVersionHeader)
			return
		}
		if sessionID == "" {
			httputil.RespondProblem(w, r, http.StatusBadRequest, "missing "+sessionHeader+" header")
			return
		}
		sess, ok := s.sessions.get(sessionID)
		if !ok {
			httputil.RespondProblem(w, r, http.StatusNotFound, "session not found")
			return
		}
		if sess.Subject != principal.Subject {
			httputil.RespondProblem(w, r, http.StatusForbidden, "session belongs to another subject")
			return
		}
	}

	if req.isNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := s.dispatcher.dispatch(r.Context(), req, principal, meta)
	if isInitialize && resp.Error == nil {
		if result, ok := resp.Result.(initializeResult); ok {
			sess := s.sessions.create(result.ProtocolVersion, principal.Subject)
			w.Header().Set(sessionHeader, sess.ID)
			s.logger.Debug().Str("session_id", sess.ID).Str("subject", principal.Subject).Msg("mcp session opened")
		}
	}

	if wantsEventStream(r) {
		s.writeRPCEvent(w, r, resp)
		return
	}
	writeRPCStatus(w, http.StatusOK, resp)
}

// handleMCPDelete ends a session. Only the subject that opened it may do so.
func (s *HTTPServer) handleMCPDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	meta := requestMeta{
		RequestID: httputil.RequestIDFromContext(r.Context()),
		SessionID: sessionID,
		Transport: "http",
	}

	principal, err := s.authenticateHTTP(r, meta)
	if err != nil {
		respondAuthProblem(w, r, err)
		return
	}
	if sessionID == "" {
		httputil.RespondProblem(w, r, http.StatusBadRequest, "missing "+sessionHeader+" header")
		return
	}
	sess, ok := s.sessions.get(sessionID)
	if !ok {
		httputil.RespondProblem(w, r, http.StatusNotFound, "session not found")
		return
	}
	if sess.Subject != principal.Subject {
		httputil.RespondProblem(w, r, http.StatusForbidden, "session belongs to another subject")
		return
	}

	s.sessions.delete(sessionID)
	s.logger.Debug().Str("session_id", sessionID).Msg("mcp session closed")
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) writeRPCEvent(w http.ResponseWriter, r *http.Request, resp rpcResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := writeSSEEvent(r.Context(), w, "message", resp); err != nil {
		s.logger.Warn().Err(err).Msg("writing mcp event")
		return
	}
	_ = http.NewResponseController(w).Flush()
}

// wantsEventStream reports whether the client accepts only SSE responses.
func wantsEventStream(r *http.Request) bool {
	accept := strings.ToLower(r.Header.Get("Accept"))
	return strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "application/json")
}

func rpcErrorResponse(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

func writeRPCStatus(w http.ResponseWriter, status int, resp rpcResponse) {
	httputil.RespondJSON(w, status, resp)
}
