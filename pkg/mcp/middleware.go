package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fiberplane/fpx-sub000/pkg/mcplog"
)

// loggingMiddleware appends one call-log entry per tool call. It is only
// installed when Options.CallLog is set.
func (s *Server) loggingMiddleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start := mcplog.Now()
			result, err := next(ctx, req)

			entry := mcplog.NewEntry(req.Params.Name, req.GetArguments(), start, result, err)
			s.logger.Debug("tool call",
				"tool", entry.Tool,
				"duration_ms", entry.DurationMs,
				"outcome", entry.Outcome,
				"tool_error", entry.ToolError)

			// A broken log file must not change the answer.
			if werr := s.callLog.Write(entry); werr != nil {
				s.logger.Warn("failed to write tool call log", "error", werr)
			}
			return result, err
		}
	}
}
