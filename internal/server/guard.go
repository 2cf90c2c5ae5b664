package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/acmecorp/docs-mcp/internal/audit"
	"github.com/acmecorp/docs-mcp/internal/auth"
	"github.com/acmecorp/docs-mcp/internal/metrics"
	"github.com/acmecorp/docs-mcp/internal/policy"
	"github.com/acmecorp/docs-mcp/internal/scope"
	"github.com/acmecorp/docs-mcp/internal/telemetry"
)

// ErrRevocationUnavailable indicates the revocation list could not be
// consulted. Requests fail closed when it is returned.
var ErrRevocationUnavailable = errors.New("token revocation check unavailable")

// TokenValidator verifies a raw bearer token and returns its claims.
type TokenValidator interface {
	Validate(rawToken string) (auth.Claims, error)
}

// Principal is the verified caller of a single request. It is rebuilt from
// the token on every request and never cached.
type Principal struct {
	Subject   string
	Scopes    scope.Set
	TokenID   string
	ExpiresAt time.Time
}

type requestMeta struct {
	RequestID string
	SessionID string
	Transport string
}

// AccessGuard composes token validation, the revocation list, and the tool
// gate, and records every decision in the audit log and metrics.
type AccessGuard struct {
	validator   TokenValidator
	revocations auth.RevocationList
	gate        *policy.Gate
	audit       *audit.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

// GuardOption configures an AccessGuard.
type GuardOption func(*AccessGuard)

// WithRevocationList makes the guard reject tokens whose jti is revoked.
func WithRevocationList(list auth.RevocationList) GuardOption {
	return func(g *AccessGuard) {
		g.revocations = list
	}
}

// WithAuditLogger sets the audit sink.
func WithAuditLogger(logger *audit.Logger) GuardOption {
	return func(g *AccessGuard) {
		g.audit = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) GuardOption {
	return func(g *AccessGuard) {
		g.metrics = m
	}
}

// NewAccessGuard returns a guard over validator and gate.
func NewAccessGuard(validator TokenValidator, gate *policy.Gate, opts ...GuardOption) (*AccessGuard, error) {
	if validator == nil {
		return nil, fmt.Errorf("access guard requires a token validator")
	}
	if gate == nil || gate.Catalog() == nil {
		return nil, fmt.Errorf("access guard requires a tool gate")
	}
	g := &AccessGuard{
		validator: validator,
		gate:      gate,
		tracer:    telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// CatalogSize returns the number of tools known to the gate.
func (g *AccessGuard) CatalogSize() int {
	return g.gate.Catalog().Len()
}

// Authenticate validates rawToken and consults the revocation list.
func (g *AccessGuard) Authenticate(ctx context.Context, rawToken string, meta requestMeta) (Principal, error) {
	ctx, span := g.tracer.Start(ctx, "mcp.authenticate",
		trace.WithAttributes(attribute.String("mcp.transport", meta.Transport)))
	defer span.End()

	claims, err := g.validator.Validate(rawToken)
	if err == nil {
		err = g.checkRevoked(ctx, claims.ID)
	}
	if err != nil {
		reason := auth.Reason(err)
		span.SetAttributes(attribute.String("mcp.auth.reason", reason))
		span.SetStatus(codes.Error, reason)
		g.metrics.ObserveValidation(meta.Transport, reason)
		g.audit.Authenticated(audit.Authentication{
			RequestID: meta.RequestID,
			Transport: meta.Transport,
			Subject:   claims.Subject,
			TokenID:   claims.ID,
			Reason:    reason,
			Detail:    err.Error(),
		})
		return Principal{}, err
	}

	principal := Principal{
		Subject:   claims.Subject,
		Scopes:    claims.Scopes,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt,
	}
	span.SetAttributes(attribute.String("mcp.subject", principal.Subject))
	g.metrics.ObserveValidation(meta.Transport, "")
	g.audit.Authenticated(audit.Authentication{
		RequestID: meta.RequestID,
		Transport: meta.Transport,
		Subject:   principal.Subject,
		Scopes:    principal.Scopes.Sorted(),
		TokenID:   principal.TokenID,
	})
	return principal, nil
}

func (g *AccessGuard) checkRevoked(ctx context.Context, tokenID string) error {
	if g.revocations == nil || tokenID == "" {
		return nil
	}
	start := time.Now()
	revoked, err := g.revocations.IsRevoked(ctx, tokenID)
	g.metrics.ObserveRevocationCheck(start)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if revoked {
		return fmt.Errorf("%w: jti %s", auth.ErrTokenRevoked, tokenID)
	}
	return nil
}

// ListTools returns the tools visible to principal in catalog order.
func (g *AccessGuard) ListTools(ctx context.Context, principal Principal, meta requestMeta) []policy.Descriptor {
	_, span := g.tracer.Start(ctx, "mcp.tools.list")
	defer span.End()

	visible := g.gate.ListVisibleTools(principal.Scopes)
	names := make([]string, 0, len(visible))
	for _, tool := range visible {
		names = append(names, tool.Name)
	}
	span.SetAttributes(attribute.Int("mcp.tools.visible", len(visible)))

	g.metrics.ObserveListing(len(visible))
	g.audit.ToolsListed(audit.ToolListing{
		RequestID:    meta.RequestID,
		SessionID:    meta.SessionID,
		Transport:    meta.Transport,
		Subject:      principal.Subject,
		Scopes:       principal.Scopes.Sorted(),
		VisibleTools: names,
		CatalogSize:  g.CatalogSize(),
	})
	return visible
}

// AuthorizeCall decides whether principal may call the named tool.
func (g *AccessGuard) AuthorizeCall(ctx context.Context, principal Principal, toolName string, meta requestMeta) policy.Decision {
	_, span := g.tracer.Start(ctx, "mcp.tool.authorize",
		trace.WithAttributes(attribute.String("mcp.tool", toolName)))
	defer span.End()

	decision := g.gate.AuthorizeCall(principal.Scopes, toolName)
	span.SetAttributes(attribute.Bool("mcp.tool.allowed", decision.Allowed))
	if !decision.Allowed {
		span.SetAttributes(attribute.String("mcp.tool.denial_reason", decision.Reason))
	}

	metricTool := decision.Tool
	if decision.Reason == policy.ReasonUnknownTool {
		metricTool = "unknown"
	}
	g.metrics.ObserveDecision(metricTool, decision.Allowed, decision.Reason)
	g.audit.CallAuthorized(audit.CallAuthorization{
		RequestID:     meta.RequestID,
		SessionID:     meta.SessionID,
		Transport:     meta.Transport,
		Subject:       principal.Subject,
		ToolName:      toolName,
		RequiredScope: decision.RequiredScope,
		Allowed:       decision.Allowed,
		Reason:        decision.Reason,
	})
	return decision
}
