package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberplane/fpx-sub000/pkg/parser"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
	"github.com/fiberplane/fpx-sub000/pkg/util"
)

func buildTable(t *testing.T, path, src string) *Table {
	t.Helper()
	manager := parser.NewParserManager(util.DiscardLogger())
	t.Cleanup(func() { manager.Close() })

	file, err := manager.ParseSource(context.Background(), path, []byte(src))
	require.NoError(t, err)
	require.False(t, file.HasErrors, "fixture must parse cleanly")
	return Build(file, util.DiscardLogger())
}

// identifiers returns the identifier nodes named name in source order.
func identifiers(root *syntax.Node, name string) []*syntax.Node {
	var out []*syntax.Node
	root.Walk(func(n *syntax.Node) bool {
		if (n.Kind == "identifier" || n.Kind == "shorthand_property_identifier") && n.Text() == name {
			out = append(out, n)
		}
		return true
	})
	return out
}

func TestBuild_FunctionDeclarationsAreHoisted(t *testing.T) {
	table := buildTable(t, "app.js", `
const app = new Hono();
app.get("/helper-function", helperFunction);
function helperFunction(req) {
  return req;
}
`)

	refs := identifiers(table.File.Root, "helperFunction")
	require.Len(t, refs, 2)

	bnd := table.Resolve(refs[0])
	require.NotNil(t, bnd, "reference before the declaration must resolve")
	assert.Equal(t, FunctionDecl, bnd.Kind)
	assert.Equal(t, "function_declaration", bnd.Decl.Kind)
	assert.Equal(t, ModuleScope, bnd.Scope.Kind)
	assert.Same(t, bnd, table.Resolve(refs[1]))
}

func TestBuild_VarIsHoistedToFunctionScope(t *testing.T) {
	table := buildTable(t, "a.js", `
function outer() {
  if (true) {
    var inner = 1;
  }
  return inner;
}
`)
	refs := identifiers(table.File.Root, "inner")
	require.Len(t, refs, 2)

	bnd := table.Resolve(refs[1])
	require.NotNil(t, bnd)
	assert.Equal(t, FunctionScope, bnd.Scope.Kind)
	assert.Equal(t, "1", bnd.Init.Text())
}

func TestBuild_LexicalVisibility(t *testing.T) {
	table := buildTable(t, "a.js", `
var x = "outer";
{
  use(x);
  let x = "inner";
  use(x);
}
{
  function later() { return y; }
  const y = "deferred";
}
`)

	xs := identifiers(table.File.Root, "x")
	require.Len(t, xs, 4)

	before := table.Resolve(xs[1])
	require.NotNil(t, before)
	assert.Equal(t, `"outer"`, before.Init.Text(), "reference before a let falls through to the outer scope")

	after := table.Resolve(xs[3])
	require.NotNil(t, after)
	assert.Equal(t, `"inner"`, after.Init.Text())
	assert.True(t, after.Lexical)

	ys := identifiers(table.File.Root, "y")
	require.Len(t, ys, 2)
	deferred := table.Resolve(ys[0])
	require.NotNil(t, deferred, "a nested function sees later block declarations")
	assert.Equal(t, `"deferred"`, deferred.Init.Text())
}

func TestBuild_DestructuringPaths(t *testing.T) {
	table := buildTable(t, "a.js", `
const { a, b: { c }, d = 1, ...rest } = obj;
const [p, , q] = arr;
`)

	testCases := []struct {
		name string
		path []string
		init string
	}{
		{"a", []string{"a"}, "obj"},
		{"c", []string{"b", "c"}, "obj"},
		{"d", []string{"d"}, "obj"},
		{"rest", nil, "obj"},
		{"p", []string{"0"}, "arr"},
		{"q", []string{"2"}, "arr"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bnd := table.Lookup(table.Root.ID, tc.name)
			require.NotNil(t, bnd)
			assert.Equal(t, VarDecl, bnd.Kind)
			assert.Equal(t, tc.path, bnd.Path)
			assert.Equal(t, tc.init, bnd.Init.Text())
		})
	}
}

func TestBuild_Imports(t *testing.T) {
	table := buildTable(t, "index.ts", `
import otherRouter, { Hono as H, instrument } from "hono";
import * as routes from "./routes";
`)

	testCases := []struct {
		local     string
		specifier string
		imported  string
	}{
		{"otherRouter", "hono", "default"},
		{"H", "hono", "Hono"},
		{"instrument", "hono", "instrument"},
		{"routes", "./routes", "*"},
	}

	for _, tc := range testCases {
		t.Run(tc.local, func(t *testing.T) {
			bnd := table.Lookup(table.Root.ID, tc.local)
			require.NotNil(t, bnd)
			assert.Equal(t, ImportBinding, bnd.Kind)
			require.NotNil(t, bnd.Import)
			assert.Equal(t, tc.specifier, bnd.Import.Specifier)
			assert.Equal(t, tc.imported, bnd.Import.Name)
			assert.Equal(t, NoTarget, bnd.Import.Target)
		})
	}

	assert.Nil(t, table.Lookup(table.Root.ID, "Hono"), "the imported name is not a local binding")
	assert.Len(t, table.Imports(), 4)
}

func TestBuild_DuplicateDeclarationLastWriteWins(t *testing.T) {
	table := buildTable(t, "a.js", `
var handler = first;
var handler = second;
var kept = 1;
var kept;
`)

	bnd := table.Lookup(table.Root.ID, "handler")
	require.NotNil(t, bnd)
	assert.Equal(t, "second", bnd.Init.Text())

	kept := table.Lookup(table.Root.ID, "kept")
	require.NotNil(t, kept)
	assert.Equal(t, "1", kept.Init.Text())

	require.Len(t, table.Diagnostics, 1)
	assert.Equal(t, syntax.SeverityInfo, table.Diagnostics[0].Severity)
	assert.Contains(t, table.Diagnostics[0].Message, `"handler" redeclared`)
}

func TestBuild_AssignmentsProvideValue(t *testing.T) {
	table := buildTable(t, "a.js", `
let app;
app = new Hono();
`)

	bnd := table.Lookup(table.Root.ID, "app")
	require.NotNil(t, bnd)
	assert.Nil(t, bnd.Init)
	require.NotNil(t, bnd.Value())
	assert.Equal(t, "new Hono()", bnd.Value().Text())
}

func TestBuild_ParametersAndCatch(t *testing.T) {
	table := buildTable(t, "a.ts", `
const f = (req: Request, { id }: Params, ...more: string[]) => id;
try { run(); } catch (err) { report(err); }
`)

	ids := identifiers(table.File.Root, "id")
	require.NotEmpty(t, ids)
	last := table.Resolve(ids[len(ids)-1])
	require.NotNil(t, last)
	assert.Equal(t, ParamBinding, last.Kind)
	assert.Equal(t, FunctionScope, last.Scope.Kind)

	reqs := identifiers(table.File.Root, "req")
	require.Len(t, reqs, 1)
	assert.Equal(t, ParamBinding, table.Resolve(reqs[0]).Kind)

	errs := identifiers(table.File.Root, "err")
	require.Len(t, errs, 2)
	catchParam := table.Resolve(errs[1])
	require.NotNil(t, catchParam)
	assert.Equal(t, ParamBinding, catchParam.Kind)
	assert.Equal(t, BlockScope, catchParam.Scope.Kind)
}

func TestBuild_NamedFunctionExpressionBindsInside(t *testing.T) {
	table := buildTable(t, "a.js", `
const h = function named() { return named; };
`)

	assert.Nil(t, table.Lookup(table.Root.ID, "named"))
	refs := identifiers(table.File.Root, "named")
	require.Len(t, refs, 2)
	bnd := table.Resolve(refs[1])
	require.NotNil(t, bnd)
	assert.Equal(t, FunctionScope, bnd.Scope.Kind)
}

func TestBuild_UnboundGlobals(t *testing.T) {
	table := buildTable(t, "a.js", `console.log(module.exports);`)

	for _, name := range []string{"console", "module"} {
		refs := identifiers(table.File.Root, name)
		require.Len(t, refs, 1)
		assert.Nil(t, table.Resolve(refs[0]), name)
	}
}

func TestDeclared_OutermostFirst(t *testing.T) {
	table := buildTable(t, "a.js", `
function wrap() { function handler() {} }
function handler() {}
`)

	found := table.Declared("handler")
	require.Len(t, found, 2)
	assert.Equal(t, ModuleScope, found[0].Scope.Kind)
	assert.Equal(t, FunctionScope, found[1].Scope.Kind)
}
