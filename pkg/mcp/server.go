// Package mcp exposes route location as MCP tools over stdio.
package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/fiberplane/fpx-sub000/pkg/locator"
	"github.com/fiberplane/fpx-sub000/pkg/mcplog"
	"github.com/fiberplane/fpx-sub000/pkg/util"
	"github.com/fiberplane/fpx-sub000/pkg/workspace"
)

const defaultVersion = "0.1.0-dev"

// Options configures a Server.
type Options struct {
	// Root is the workspace directory. Tool calls that name neither code nor
	// paths analyze it; relative paths are resolved against it.
	Root string

	// Workspace holds the include/exclude globs for directories.
	Workspace workspace.Config

	// CallLog records every tool call when non-nil.
	CallLog *mcplog.Logger

	// Version is reported to clients.
	Version string

	Logger *slog.Logger
}

// Server implements the MCP server, exposing route and handler lookup.
type Server struct {
	mcpServer *server.MCPServer
	locator   *locator.Locator
	files     util.FileCache
	opts      Options
	callLog   *mcplog.Logger
	logger    *slog.Logger
}

// NewServer creates an MCP server backed by loc. Files named by tool calls
// are read through files.
func NewServer(loc *locator.Locator, files util.FileCache, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	if opts.Workspace.Include == nil && opts.Workspace.Exclude == nil {
		opts.Workspace = workspace.DefaultConfig()
	}

	s := &Server{
		locator: loc,
		files:   files,
		opts:    opts,
		callLog: opts.CallLog,
		logger:  opts.Logger,
	}

	serverOpts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	}
	if s.callLog != nil {
		serverOpts = append(serverOpts, server.WithToolHandlerMiddleware(s.loggingMiddleware()))
	}
	s.mcpServer = server.NewMCPServer("fpx-locate", opts.Version, serverOpts...)

	s.mcpServer.AddTools(
		server.ServerTool{Tool: locateRouteTool(), Handler: s.handleLocateRoute},
		server.ServerTool{Tool: locateHandlerTool(), Handler: s.handleLocateHandler},
		server.ServerTool{Tool: listRoutesTool(), Handler: s.handleListRoutes},
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

const instructions = `Locates the source of Hono route handlers without running the app.
Pass inline "code" or workspace "paths" (files or directories); with neither,
the server's workspace root is analyzed. Answers carry the handler's span and
text, or a failure reason such as NotFound, ExternalModule or OpaqueCall.`
