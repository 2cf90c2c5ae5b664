// Package tools provides MCP tool execution backed by the document store.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/acmecorp/docs-mcp/internal/documents"
	"github.com/acmecorp/docs-mcp/internal/policy"
)

// DocumentReader loads documents by file name.
type DocumentReader interface {
	Read(ctx context.Context, name string) (documents.Document, error)
}

// Runner executes MCP tool calls. It performs no authorization; callers
// must have consulted the policy gate first.
type Runner struct {
	docs      DocumentReader
	documents map[string]string
}

// ToolError carries an HTTP-style status code and message for tool failures.
type ToolError struct {
	statusCode int
	message    string
}

// Error implements error.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(e.message)
}

// StatusCode returns the attached status code.
func (e *ToolError) StatusCode() int {
	if e == nil || e.statusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.statusCode
}

// NewRunner binds every catalog tool to its document. A tool without a
// document is a configuration error.
func NewRunner(catalog *policy.Catalog, docs DocumentReader) (*Runner, error) {
	if catalog == nil {
		return nil, errors.New("tool catalog is required")
	}
	if docs == nil {
		return nil, errors.New("document reader is required")
	}

	bound := make(map[string]string, catalog.Len())
	for _, tool := range catalog.List() {
		doc := strings.TrimSpace(tool.Document)
		if doc == "" {
			return nil, fmt.Errorf("tool %q has no document", tool.Name)
		}
		bound[tool.Name] = doc
	}
	return &Runner{docs: docs, documents: bound}, nil
}

// Documents returns the sorted document names referenced by the catalog.
func (r *Runner) Documents() []string {
	names := make([]string, 0, len(r.documents))
	seen := make(map[string]struct{}, len(r.documents))
	for _, doc := range r.documents {
		if _, ok := seen[doc]; ok {
			continue
		}
		seen[doc] = struct{}{}
		names = append(names, doc)
	}
	slices.Sort(names)
	return names
}

type noArgs struct{}

// Call executes one tool by name and returns JSON-like map content.
func (r *Runner) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	docName, ok := r.documents[name]
	if !ok {
		return nil, notFoundErrorf("tool %s is not implemented", name)
	}

	var params noArgs
	if err := decodeArgsStrict(args, &params); err != nil {
		return nil, err
	}

	doc, err := r.docs.Read(ctx, docName)
	if err != nil {
		return nil, mapExecutionError(err, fmt.Sprintf("reading %s", docName))
	}

	return toMap(documentResult{
		Tool:      name,
		Document:  doc.Name,
		Content:   doc.Content,
		Bytes:     doc.Size,
		UpdatedAt: doc.UpdatedAt,
	})
}

type documentResult struct {
	Tool      string    `json:"tool"`
	Document  string    `json:"document"`
	Content   string    `json:"content"`
	Bytes     int64     `json:"bytes"`
	UpdatedAt time.Time `json:"updated_at"`
}

func validationErrorf(format string, args ...any) error {
	return &ToolError{
		statusCode: http.StatusBadRequest,
		message:    fmt.Sprintf(format, args...),
	}
}

func notFoundErrorf(format string, args ...any) error {
	return &ToolError{
		statusCode: http.StatusNotFound,
		message:    fmt.Sprintf(format, args...),
	}
}

func mapExecutionError(err error, fallback string) error {
	if err == nil {
		return nil
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	if errors.Is(err, documents.ErrNotFound) {
		return notFoundErrorf("%s: document not found", fallback)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{
			statusCode: http.StatusGatewayTimeout,
			message:    fallback + ": request timed out",
		}
	}
	if errors.Is(err, context.Canceled) {
		return &ToolError{
			statusCode: http.StatusRequestTimeout,
			message:    fallback + ": request canceled",
		}
	}
	return &ToolError{
		statusCode: http.StatusInternalServerError,
		message:    fmt.Sprintf("%s: %v", fallback, err),
	}
}

func decodeArgsStrict(args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return validationErrorf("invalid tool arguments: %v", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(encoded))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return validationErrorf("invalid tool arguments: %v", err)
	}
	if decoder.More() {
		return validationErrorf("tool arguments must be a single JSON object")
	}
	return nil
}

func toMap(v any) (map[string]any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool response: %w", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return nil, fmt.Errorf("decoding tool response: %w", err)
	}
	return decoded, nil
}
