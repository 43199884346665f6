package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fiberplane/fpx-sub000/pkg/locator"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
	"github.com/fiberplane/fpx-sub000/pkg/workspace"
)

func (s *Server) handleLocateRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	method, err := req.RequireString("method")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := s.snapshot(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := s.locator.Locate(ctx, snap, locator.Query{
		Method:     method,
		Path:       path,
		Middleware: req.GetBool("middleware", false),
	})
	return jsonResult(res)
}

func (s *Server) handleLocateHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := s.snapshot(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(s.locator.Locate(ctx, snap, locator.Query{HandlerName: name}))
}

type routeListing struct {
	Routes      []locator.Route     `json:"routes"`
	Diagnostics []syntax.Diagnostic `json:"diagnostics,omitempty"`
}

func (s *Server) handleListRoutes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap, err := s.snapshot(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	a, err := s.locator.Analyze(ctx, snap)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	withMiddleware := req.GetBool("middleware", false)
	method := strings.ToUpper(req.GetString("method", ""))

	out := routeListing{Routes: []locator.Route{}, Diagnostics: a.Diagnostics}
	for _, r := range a.Routes() {
		if r.Middleware && !withMiddleware {
			continue
		}
		if method != "" && r.Method != method && r.Method != "ALL" {
			continue
		}
		out.Routes = append(out.Routes, r)
	}
	return jsonResult(out)
}

// snapshot builds the snapshot named by a tool call: inline code, explicit
// paths, or the whole workspace root.
func (s *Server) snapshot(req mcp.CallToolRequest) (locator.Snapshot, error) {
	if code := req.GetString("code", ""); code != "" {
		name := req.GetString("filename", "index.ts")
		return locator.Snapshot{Files: []locator.Source{{Path: name, Content: []byte(code)}}}, nil
	}

	paths, err := stringSlice(req.GetArguments(), "paths")
	if err != nil {
		return locator.Snapshot{}, err
	}
	if len(paths) == 0 {
		if s.opts.Root == "" {
			return locator.Snapshot{}, fmt.Errorf("no source given: pass code or paths")
		}
		paths = []string{s.opts.Root}
	}

	base := s.opts.Root
	if base == "" {
		base = "."
	}
	for i, p := range paths {
		if !filepath.IsAbs(p) {
			paths[i] = filepath.Join(base, p)
		}
	}

	files, err := workspace.Collect(paths, s.opts.Workspace)
	if err != nil {
		return locator.Snapshot{}, err
	}
	if len(files) == 0 {
		return locator.Snapshot{}, fmt.Errorf("no source files found in %s", strings.Join(paths, ", "))
	}
	return workspace.Load(files, base, s.files)
}

func stringSlice(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be an array of strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{v}, nil
	}
	return nil, fmt.Errorf("%s must be an array of strings", key)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
