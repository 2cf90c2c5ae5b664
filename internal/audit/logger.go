// Package audit provides structured audit logging for MCP access decisions.
package audit

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	bearerTokenPattern = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	keyValuePattern    = regexp.MustCompile(`(?i)\b(token|secret|password|authorization)\s*[:=]\s*([^\s,;]+)`)
	jwtPattern         = regexp.MustCompile(`\beyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]*`)
)

// Decisions recorded in audit entries.
const (
	DecisionAuthenticated = "authenticated"
	DecisionRejected      = "rejected"
	DecisionAllowed       = "allowed"
	DecisionDenied        = "denied"
)

// Authentication captures one token validation attempt. The raw token is
// never part of the entry.
type Authentication struct {
	RequestID string
	Transport string
	Subject   string
	Scopes    []string
	TokenID   string
	Reason    string
	Detail    string
}

// ToolListing captures one filtered tools/list response.
type ToolListing struct {
	RequestID    string
	SessionID    string
	Transport    string
	Subject      string
	Scopes       []string
	VisibleTools []string
	CatalogSize  int
}

// CallAuthorization captures one tool-call authorization decision.
type CallAuthorization struct {
	RequestID     string
	SessionID     string
	Transport     string
	Subject       string
	ToolName      string
	RequiredScope string
	Allowed       bool
	Reason        string
}

// ToolCallCompletion captures one finalized tool-call outcome.
type ToolCallCompletion struct {
	RequestID    string
	SessionID    string
	Transport    string
	ToolName     string
	CallerSub    string
	Arguments    map[string]any
	Result       string
	ErrorDetail  string
	Duration     time.Duration
	ResponseCode int
}

// Logger emits structured audit entries.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates an audit logger.
func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Authenticated writes the outcome of a token validation. An empty Reason
// means the token was accepted.
func (l *Logger) Authenticated(event Authentication) {
	if l == nil {
		return
	}

	decision := DecisionAuthenticated
	entry := l.logger.Info()
	if event.Reason != "" {
		decision = DecisionRejected
		entry = l.logger.Warn()
	}

	entry = entry.
		Str("event", "mcp.auth.validated").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("transport", strings.TrimSpace(event.Transport)).
		Str("subject", strings.TrimSpace(event.Subject)).
		Strs("scopes", nonNil(event.Scopes)).
		Str("decision", decision)

	if event.TokenID != "" {
		entry = entry.Str("token_id", event.TokenID)
	}
	if event.Reason != "" {
		entry = entry.Str("reason", event.Reason)
	}
	if redacted := RedactSensitiveText(event.Detail); redacted != "" {
		entry = entry.Str("error_detail", redacted)
	}

	entry.Msg("token validation")
}

// ToolsListed writes the result of a visibility filter.
func (l *Logger) ToolsListed(event ToolListing) {
	if l == nil {
		return
	}

	l.logger.Info().
		Str("event", "mcp.tools.listed").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("session_id", strings.TrimSpace(event.SessionID)).
		Str("transport", strings.TrimSpace(event.Transport)).
		Str("subject", strings.TrimSpace(event.Subject)).
		Strs("scopes", nonNil(event.Scopes)).
		Strs("visible_tools", nonNil(event.VisibleTools)).
		Int("hidden_count", max(event.CatalogSize-len(event.VisibleTools), 0)).
		Msg("tools listed")
}

// CallAuthorized writes a tool-call authorization decision.
func (l *Logger) CallAuthorized(event CallAuthorization) {
	if l == nil {
		return
	}

	decision := DecisionAllowed
	entry := l.logger.Info()
	if !event.Allowed {
		decision = DecisionDenied
		entry = l.logger.Warn()
	}

	tool := strings.TrimSpace(event.ToolName)
	if tool == "" {
		tool = "unknown"
	}

	entry = entry.
		Str("event", "mcp.tool_call.authorized").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("session_id", strings.TrimSpace(event.SessionID)).
		Str("transport", strings.TrimSpace(event.Transport)).
		Str("subject", strings.TrimSpace(event.Subject)).
		Str("tool", tool).
		Str("decision", decision)

	if event.RequiredScope != "" {
		entry = entry.Str("required_scope", event.RequiredScope)
	}
	if event.Reason != "" {
		entry = entry.Str("reason", event.Reason)
	}

	entry.Msg("tool call authorization")
}

// Complete writes a single completion log entry for one tool call.
func (l *Logger) Complete(event ToolCallCompletion) {
	if l == nil {
		return
	}

	result := strings.TrimSpace(event.Result)
	if result == "" {
		result = "error"
	}

	tool := strings.TrimSpace(event.ToolName)
	if tool == "" {
		tool = "unknown"
	}

	duration := event.Duration
	if duration < 0 {
		duration = 0
	}

	entry := l.logger.Info().
		Str("event", "mcp.tool_call.completed").
		Str("request_id", strings.TrimSpace(event.RequestID)).
		Str("session_id", strings.TrimSpace(event.SessionID)).
		Str("transport", strings.TrimSpace(event.Transport)).
		Str("tool", tool).
		Str("caller_subject", strings.TrimSpace(event.CallerSub)).
		Str("result", result).
		Int64("duration_ms", duration.Milliseconds()).
		Strs("argument_keys", ArgumentKeys(event.Arguments))

	if event.ResponseCode > 0 {
		entry = entry.Int("response_code", event.ResponseCode)
	}
	if redactedError := RedactSensitiveText(event.ErrorDetail); redactedError != "" {
		entry = entry.Str("error_detail", redactedError)
	}

	entry.Msg("tool call completed")
}

// ArgumentKeys returns the sorted argument names of a call. Values are
// never logged.
func ArgumentKeys(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for key := range args {
		keys = append(keys, key)
	}
	return uniqueStrings(keys)
}

// RedactSensitiveText removes obvious secrets from free-text error details.
func RedactSensitiveText(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	redacted := bearerTokenPattern.ReplaceAllString(trimmed, "Bearer [REDACTED]")
	redacted = jwtPattern.ReplaceAllString(redacted, "[REDACTED]")
	redacted = keyValuePattern.ReplaceAllStringFunc(redacted, func(match string) string {
		parts := strings.SplitN(match, ":", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s: [REDACTED]", strings.TrimSpace(parts[0]))
		}
		parts = strings.SplitN(match, "=", 2)
		if len(parts) == 2 {
			return fmt.Sprintf("%s=[REDACTED]", strings.TrimSpace(parts[0]))
		}
		return "[REDACTED]"
	})
	return redacted
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		unique = append(unique, trimmed)
	}
	slices.Sort(unique)
	return unique
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
