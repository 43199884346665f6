package mcp

import "github.com/mark3labs/mcp-go/mcp"

func sourceOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("code",
			mcp.Description("Inline JavaScript or TypeScript source to analyze instead of workspace files"),
		),
		mcp.WithString("filename",
			mcp.Description("Snapshot path of the inline code; its extension selects the grammar (default index.ts)"),
		),
		mcp.WithArray("paths",
			mcp.Description("Files or directories to analyze, relative to the workspace root; snapshot order follows this list"),
			mcp.WithStringItems(),
		),
	}
}

func locateRouteTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Find the function that handles an HTTP route. Returns its span, source text and wrap depth, or a typed failure."),
		mcp.WithString("method",
			mcp.Required(),
			mcp.Description("HTTP method, e.g. GET; ALL matches any registration"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Request path such as /users/42, or a registered pattern such as /users/:id"),
		),
		mcp.WithBoolean("middleware",
			mcp.Description("Return the first middleware applying to the route instead of its handler"),
		),
	}
	return mcp.NewTool("locate_route", append(opts, sourceOptions()...)...)
}

func locateHandlerTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Find a function by its declared name, bypassing route matching."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Declared name of the handler function or variable"),
		),
	}
	return mcp.NewTool("locate_handler", append(opts, sourceOptions()...)...)
}

func listRoutesTool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List every registered route with its resolved handler location, plus analysis diagnostics."),
		mcp.WithBoolean("middleware",
			mcp.Description("Include middleware rows (use() and non-final handler arguments)"),
		),
		mcp.WithString("method",
			mcp.Description("Only list routes registered for this method"),
		),
	}
	return mcp.NewTool("list_routes", append(opts, sourceOptions()...)...)
}
