package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/acmecorp/docs-mcp/internal/audit"
	"github.com/acmecorp/docs-mcp/internal/metrics"
	"github.com/acmecorp/docs-mcp/internal/policy"
	"github.com/acmecorp/docs-mcp/internal/telemetry"
)

// dispatcher runs authenticated JSON-RPC requests. It is shared by the
// stdio and streamable HTTP transports.
type dispatcher struct {
	guard   *AccessGuard
	caller  ToolCaller
	version string
	audit   *audit.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

func newDispatcher(
	guard *AccessGuard,
	caller ToolCaller,
	version string,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *dispatcher {
	return &dispatcher{
		guard:   guard,
		caller:  caller,
		version: version,
		audit:   audit.NewLogger(logger),
		metrics: m,
		tracer:  telemetry.Tracer(),
		logger:  logger,
	}
}

func (d *dispatcher) dispatch(ctx context.Context, req rpcRequest, principal Principal, meta requestMeta) rpcResponse {
	response := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch strings.TrimSpace(req.Method) {
	case "initialize":
		var params initializeParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				response.Error = &rpcError{
					Code:    rpcCodeInvalidParams,
					Message: fmt.Sprintf("invalid initialize params: %v", err),
				}
				return response
			}
		}
		response.Result = newInitializeResult(params.ProtocolVersion, d.version)
		return response

	case "ping":
		response.Result = map[string]any{}
		return response

	case "tools/list":
		response.Result = d.listTools(ctx, principal, meta)
		return response

	case "tools/call":
		if len(req.Params) == 0 {
			response.Error = &rpcError{Code: rpcCodeInvalidParams, Message: "missing params"}
			return response
		}
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			response.Error = &rpcError{
				Code:    rpcCodeInvalidParams,
				Message: fmt.Sprintf("invalid tools/call params: %v", err),
			}
			return response
		}
		if strings.TrimSpace(params.Name) == "" {
			response.Error = &rpcError{Code: rpcCodeInvalidParams, Message: "tool name is required"}
			return response
		}
		response.Result = d.callTool(ctx, params, principal, meta)
		return response

	default:
		response.Error = &rpcError{
			Code:    rpcCodeMethodNotFound,
			Message: fmt.Sprintf("unknown method: %s", strings.TrimSpace(req.Method)),
		}
		return response
	}
}

func (d *dispatcher) listTools(ctx context.Context, principal Principal, meta requestMeta) listToolsResult {
	visible := d.guard.ListTools(ctx, principal, meta)
	items := make([]toolDescriptor, 0, len(visible))
	for _, tool := range visible {
		items = append(items, toolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return listToolsResult{Tools: items}
}

// callTool authorizes and, when allowed, executes one tool call. Denials and
// execution failures are reported as isError results.
func (d *dispatcher) callTool(ctx context.Context, params callToolParams, principal Principal, meta requestMeta) callToolResult {
	started := time.Now()
	name := params.Name
	event := audit.ToolCallCompletion{
		RequestID: meta.RequestID,
		SessionID: meta.SessionID,
		Transport: meta.Transport,
		ToolName:  name,
		CallerSub: principal.Subject,
		Arguments: params.Arguments,
		Result:    "error",
	}
	defer func() {
		event.Duration = time.Since(started)
		d.audit.Complete(event)
	}()

	decision := d.guard.AuthorizeCall(ctx, principal, name, meta)
	if !decision.Allowed {
		event.Result = "denied"
		event.ErrorDetail = decision.DenialMessage()
		event.ResponseCode = http.StatusForbidden
		return toolCallResultFromDenial(decision)
	}

	d.logger.Info().Str("transport", meta.Transport).Str("tool", decision.Tool).Msg("received tool call")
	payload, err := d.execute(ctx, decision, params.Arguments)
	if err != nil {
		event.ErrorDetail = toolErrorMessage(err)
		event.ResponseCode = toolErrorStatus(err)
		return toolCallResultFromError(decision.Tool, err)
	}
	event.Result = "success"
	event.ResponseCode = http.StatusOK
	return toolCallResultFromExecution(decision.Tool, payload)
}

// execute runs an allowed tool. Callers must pass an allowed decision.
func (d *dispatcher) execute(ctx context.Context, decision policy.Decision, args map[string]any) (map[string]any, error) {
	if !decision.Allowed {
		return nil, decision.Err()
	}

	ctx, span := d.tracer.Start(ctx, "mcp.tool.execute",
		trace.WithAttributes(attribute.String("mcp.tool", decision.Tool)))
	defer span.End()

	started := time.Now()
	if d.caller == nil {
		d.metrics.ObserveToolCall(decision.Tool, "success", started)
		return map[string]any{}, nil
	}

	payload, err := d.caller.Call(ctx, decision.Tool, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, toolErrorMessage(err))
		d.metrics.ObserveToolCall(decision.Tool, "error", started)
		return nil, err
	}
	d.metrics.ObserveToolCall(decision.Tool, "success", started)
	return payload, nil
}
