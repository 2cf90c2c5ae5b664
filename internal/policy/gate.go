package policy

import (
	"errors"
	"fmt"

	"github.com/acmecorp/docs-mcp/internal/scope"
)

var (
	// ErrUnknownTool is returned for calls naming a tool outside the catalog.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInsufficientScope is returned when the caller lacks the tool's scope.
	ErrInsufficientScope = errors.New("insufficient scope")
)

// Denial reasons carried by Decision.
const (
	ReasonUnknownTool       = "unknown_tool"
	ReasonInsufficientScope = "insufficient_scope"
)

// Decision is the outcome of AuthorizeCall.
type Decision struct {
	Allowed       bool
	Tool          string
	RequiredScope string
	Reason        string
}

// Err returns nil for allowed decisions and the matching sentinel otherwise.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonUnknownTool:
		return fmt.Errorf("%w: %s", ErrUnknownTool, d.Tool)
	default:
		return fmt.Errorf("%w: tool %s requires %s", ErrInsufficientScope, d.Tool, d.RequiredScope)
	}
}

// DenialMessage is the caller-facing text for a denied decision.
func (d Decision) DenialMessage() string {
	if d.Reason == ReasonUnknownTool {
		return fmt.Sprintf("Access denied: tool '%s' is not available", d.Tool)
	}
	return fmt.Sprintf("Access denied: tool '%s' requires scope '%s'", d.Tool, d.RequiredScope)
}

// Gate answers visibility and call questions against a fixed catalog. It is
// stateless and safe for concurrent use.
type Gate struct {
	catalog *Catalog
}

// NewGate returns a Gate over catalog.
func NewGate(catalog *Catalog) *Gate {
	return &Gate{catalog: catalog}
}

// Catalog returns the underlying catalog.
func (g *Gate) Catalog() *Catalog {
	return g.catalog
}

// ListVisibleTools returns the tools whose required scope is held, in
// catalog order. Never nil.
func (g *Gate) ListVisibleTools(scopes scope.Set) []Descriptor {
	visible := make([]Descriptor, 0, len(g.catalog.contract.Tools))
	for _, tool := range g.catalog.contract.Tools {
		if scopes.Has(tool.RequiredScope) {
			visible = append(visible, tool)
		}
	}
	return visible
}

// AuthorizeCall decides whether a caller holding scopes may invoke toolName.
// Prior listing does not matter; every call is checked.
func (g *Gate) AuthorizeCall(scopes scope.Set, toolName string) Decision {
	tool, ok := g.catalog.Lookup(toolName)
	if !ok {
		return Decision{Tool: toolName, Reason: ReasonUnknownTool}
	}
	if !scopes.Has(tool.RequiredScope) {
		return Decision{Tool: tool.Name, RequiredScope: tool.RequiredScope, Reason: ReasonInsufficientScope}
	}
	return Decision{Allowed: true, Tool: tool.Name, RequiredScope: tool.RequiredScope}
}
