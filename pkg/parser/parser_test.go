package parser

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

func newTestManager(t *testing.T) *ParserManager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := NewParserManager(logger)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func findKind(root *syntax.Node, kind string) *syntax.Node {
	var found *syntax.Node
	root.Walk(func(n *syntax.Node) bool {
		if found != nil {
			return false
		}
		if n.Kind == kind {
			found = n
			return false
		}
		return true
	})
	return found
}

func TestParseSource_JavaScript(t *testing.T) {
	manager := newTestManager(t)

	src := []byte("const app = new Hono();\napp.get(\"/users\", (c) => c.text(\"ok\"));\n")
	file, err := manager.ParseSource(context.Background(), "src/index.js", src)
	require.NoError(t, err)
	require.NotNil(t, file.Root)

	assert.Equal(t, "program", file.Root.Kind)
	assert.False(t, file.HasErrors)
	assert.Equal(t, "src/index.js", file.Path)

	call := findKind(file.Root, "call_expression")
	require.NotNil(t, call)
	assert.Equal(t, 2, call.Span.StartLine)
	assert.Equal(t, 1, call.Span.StartCol)
	assert.Equal(t, "src/index.js", call.Span.File)

	callee := call.ChildByField("function")
	require.NotNil(t, callee)
	assert.Equal(t, "member_expression", callee.Kind)
	assert.Equal(t, "get", callee.ChildByField("property").Text())
	assert.Same(t, call, callee.Parent)

	args := syntax.Arguments(call)
	require.Len(t, args, 2)
	value, ok := syntax.StringValue(args[0])
	require.True(t, ok)
	assert.Equal(t, "/users", value)
	assert.Equal(t, "arrow_function", args[1].Kind)
}

func TestParseSource_TypeScript(t *testing.T) {
	manager := newTestManager(t)

	src := []byte("import { Hono } from \"hono\";\nconst app = new Hono<{ Bindings: Env }>();\nexport default app satisfies Hono;\n")
	file, err := manager.ParseSource(context.Background(), "src/index.ts", src)
	require.NoError(t, err)
	assert.False(t, file.HasErrors)

	exp := findKind(file.Root, "export_statement")
	require.NotNil(t, exp)
	value := exp.ChildByField("value")
	require.NotNil(t, value)
	assert.Equal(t, "identifier", syntax.Unwrap(value).Kind)
	assert.Equal(t, "app", syntax.Unwrap(value).Text())
}

func TestParseSource_TSX(t *testing.T) {
	manager := newTestManager(t)

	src := []byte("app.get(\"/\", (c) => c.html(<div>Hello</div>));\n")
	file, err := manager.ParseSource(context.Background(), "src/page.tsx", src)
	require.NoError(t, err)
	assert.False(t, file.HasErrors)
	assert.NotNil(t, findKind(file.Root, "jsx_element"))
}

func TestParseSource_UnknownExtensionFallsBackToJavaScript(t *testing.T) {
	manager := newTestManager(t)

	file, err := manager.ParseSource(context.Background(), "bundle.out", []byte("var x = function () {};"))
	require.NoError(t, err)
	assert.Equal(t, "program", file.Root.Kind)
	assert.NotNil(t, findKind(file.Root, "variable_declarator"))
}

func TestParseSource_CommentsAreDropped(t *testing.T) {
	manager := newTestManager(t)

	src := []byte("f(/* first */ a, // second\n b);")
	file, err := manager.ParseSource(context.Background(), "a.js", src)
	require.NoError(t, err)

	assert.Nil(t, findKind(file.Root, "comment"))
	call := findKind(file.Root, "call_expression")
	require.NotNil(t, call)
	args := syntax.Arguments(call)
	require.Len(t, args, 2)
	assert.Equal(t, "a", args[0].Text())
	assert.Equal(t, "b", args[1].Text())
}

func TestParseSource_SyntaxErrorsKeepPartialTree(t *testing.T) {
	manager := newTestManager(t)

	src := []byte("app.get(\"/ok\", (c) => c.text(\"ok\"));\napp.get(\"/broken\", (c) => {\n")
	file, err := manager.ParseSource(context.Background(), "broken.js", src)
	require.NoError(t, err)
	require.NotNil(t, file.Root)
	assert.True(t, file.HasErrors)
	assert.Equal(t, 1, manager.Stats().ParseErrors)

	// The registration before the error is still in the tree, whatever
	// kind the grammar gives the recovered root.
	var routes []string
	file.Root.Walk(func(n *syntax.Node) bool {
		if n.Kind == "call_expression" {
			if args := syntax.Arguments(n); len(args) > 0 {
				if p, ok := syntax.StringValue(args[0]); ok {
					routes = append(routes, p)
				}
			}
		}
		return true
	})
	assert.Contains(t, routes, "/ok")
}

func TestParse_UnknownGrammar(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.Parse(context.Background(), []byte("x"), GrammarUnknown)
	assert.Error(t, err)
	assert.Equal(t, 0, manager.Stats().ParsesCalled)
}

func TestGrammarFor(t *testing.T) {
	testCases := []struct {
		path     string
		expected Grammar
	}{
		{"a.ts", GrammarTypeScript},
		{"a.mts", GrammarTypeScript},
		{"a.tsx", GrammarTSX},
		{"a.js", GrammarJavaScript},
		{"a.cjs", GrammarJavaScript},
		{"a.JSX", GrammarJavaScript},
		{"a.txt", GrammarUnknown},
		{"Makefile", GrammarUnknown},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.expected, GrammarFor(tc.path))
		})
	}
	assert.Equal(t, "tsx", GrammarTSX.String())
	assert.Equal(t, "unknown", Grammar(42).String())
}

func TestSourceExtensionsHaveGrammars(t *testing.T) {
	for _, ext := range SourceExtensions {
		assert.NotEqual(t, GrammarUnknown, GrammarFor("x"+ext), ext)
	}
}

func TestSpanSlicing(t *testing.T) {
	manager := newTestManager(t)

	src := []byte("function helper(req) {\n  return 1;\n}\n")
	file, err := manager.ParseSource(context.Background(), "h.js", src)
	require.NoError(t, err)

	fn := findKind(file.Root, "function_declaration")
	require.NotNil(t, fn)
	assert.Equal(t, "function helper(req) {\n  return 1;\n}", fn.Text())
	assert.Equal(t, 1, fn.Span.StartLine)
	assert.Equal(t, 3, fn.Span.EndLine)
	assert.Equal(t, 2, fn.Span.EndCol)
	assert.Equal(t, 0, fn.Span.StartByte)
}
