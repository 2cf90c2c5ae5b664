package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acmecorp/docs-mcp/internal/metrics"
)

// StdioOptions configures RunStdio.
type StdioOptions struct {
	// Token is the caller's bearer token. It is validated again for every
	// request so an expiry during the session takes effect.
	Token   string
	Version string
	Metrics *metrics.Metrics
}

// RunStdio handles MCP requests over stdin/stdout using line-delimited
// JSON-RPC messages.
func RunStdio(
	ctx context.Context,
	in io.Reader,
	out io.Writer,
	guard *AccessGuard,
	caller ToolCaller,
	opts StdioOptions,
	logger zerolog.Logger,
) error {
	d := newDispatcher(guard, caller, opts.Version, opts.Metrics, logger)
	sessionID := uuid.NewString()

	scanner := bufio.NewScanner(in)
	// Allow larger requests in stdio mode (up to 4 MiB per message).
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			if writeErr := writeRPC(writer, rpcErrorResponse(nil, rpcCodeParseError,
				fmt.Sprintf("invalid json-rpc payload: %v", err))); writeErr != nil {
				return writeErr
			}
			continue
		}

		resp, ok := handleStdioRequest(ctx, d, req, opts.Token, requestMeta{
			RequestID: uuid.NewString(),
			SessionID: sessionID,
			Transport: "stdio",
		})
		if !ok {
			continue
		}
		if err := writeRPC(writer, resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio request: %w", err)
	}
	return nil
}

// handleStdioRequest authenticates and dispatches one request. The second
// return value is false for notifications, which get no response.
func handleStdioRequest(ctx context.Context, d *dispatcher, req rpcRequest, token string, meta requestMeta) (rpcResponse, bool) {
	if strings.TrimSpace(req.JSONRPC) != "2.0" {
		return rpcErrorResponse(req.ID, rpcCodeInvalidRequest, "jsonrpc must be 2.0"), true
	}

	principal, err := d.guard.Authenticate(ctx, token, meta)
	if err != nil {
		if req.isNotification() {
			return rpcResponse{}, false
		}
		_, message := authFailureResponse(err)
		return rpcErrorResponse(req.ID, rpcCodeUnauthorized, message), true
	}

	if req.isNotification() {
		return rpcResponse{}, false
	}
	return d.dispatch(ctx, req, principal, meta), true
}

func writeRPC(w *bufio.Writer, resp rpcResponse) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding rpc response: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("writing rpc response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing rpc newline: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing rpc response: %w", err)
	}
	return nil
}
