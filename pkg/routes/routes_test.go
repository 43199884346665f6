package routes

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/parser"
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
	"github.com/fiberplane/fpx-sub000/pkg/util"
)

type fixture struct {
	path string
	src  string
}

func buildTable(t *testing.T, files ...fixture) *Table {
	t.Helper()
	manager := parser.NewParserManager(util.DiscardLogger())
	t.Cleanup(func() { manager.Close() })

	var tables []*scope.Table
	for i, f := range files {
		file, err := manager.ParseSource(context.Background(), f.path, []byte(f.src))
		require.NoError(t, err)
		require.False(t, file.HasErrors, "fixture %s must parse cleanly", f.path)
		file.Index = i
		tables = append(tables, scope.Build(file, util.DiscardLogger()))
	}
	sigs := resolve.DefaultSignatures()
	set := module.Resolve(tables, sigs.Loaders, util.DiscardLogger())
	r := resolve.New(set, sigs, 0, util.DiscardLogger())
	return Build(set, r, util.DiscardLogger())
}

func single(t *testing.T, src string) *Table {
	t.Helper()
	return buildTable(t, fixture{"src/index.ts", src})
}

func match(t *testing.T, table *Table, method, path string) *Entry {
	t.Helper()
	e, err := table.Match(Query{Method: method, Path: path}, false)
	require.NoError(t, err)
	return e
}

func requireReason(t *testing.T, err error, reason resolve.Reason) *resolve.Failure {
	t.Helper()
	require.Error(t, err)
	f := resolve.AsFailure(err)
	require.Equal(t, reason, f.Reason, "failure: %v", f)
	return f
}

func TestMountComposition(t *testing.T) {
	table := buildTable(t,
		fixture{"src/index.ts", `
import { Hono } from "hono";
import otherRouterDefault from "./other-router";
const app = new Hono();
app.get("/", (c) => c.text("home"));
app.route("/other-router", otherRouterDefault);
export default app;
`},
		fixture{"src/other-router.ts", `
import { Hono } from "hono";
const router = new Hono();
router.get("/db", async (c) => c.text("db"));
export default router;
`},
	)

	require.Len(t, table.Mounts, 1)
	assert.Equal(t, "/other-router", table.Mounts[0].Prefix)

	e := match(t, table, "GET", "/other-router/db")
	assert.Equal(t, "/other-router/db", e.Path)
	assert.Equal(t, "src/other-router.ts", e.Resolved.Node.Span.File)
	require.Len(t, e.Mounts, 1)

	_, err := table.Match(Query{Method: "GET", Path: "/db"}, false)
	requireReason(t, err, resolve.NotFound)
}

func TestMountComposition_IsIndependentOfFileOrder(t *testing.T) {
	files := []fixture{
		{"src/c.ts", `
import { Hono } from "hono";
export const c = new Hono();
c.get("/leaf", (ctx) => ctx.text("leaf"));
`},
		{"src/b.ts", `
import { Hono } from "hono";
import { c } from "./c";
export const b = new Hono();
b.route("/c", c);
`},
		{"src/a.ts", `
import { Hono } from "hono";
import { b } from "./b";
const a = new Hono();
a.route("/b", b);
`},
	}

	forward := buildTable(t, files...)
	backward := buildTable(t, files[2], files[1], files[0])

	for _, table := range []*Table{forward, backward} {
		e := match(t, table, "GET", "/b/c/leaf")
		assert.Len(t, e.Mounts, 2)
		for _, p := range []string{"/leaf", "/c/leaf"} {
			_, err := table.Match(Query{Method: "GET", Path: p}, false)
			requireReason(t, err, resolve.NotFound)
		}
	}
}

func TestOrderTieBreak(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
app.get("/dup", function first(c) { return c.text("1"); });
app.get("/dup", function second(c) { return c.text("2"); });
`)

	e := match(t, table, "GET", "/dup")
	assert.Contains(t, e.Resolved.Node.Text(), "first")
	assert.Equal(t, 0, e.Order)
}

func TestChainedRegistrationsKeepSourceOrder(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
app.get("/chain", (c) => c.text("inner")).get("/chain", (c) => c.text("outer"));
`)

	require.Len(t, table.Registrations, 2)
	e := match(t, table, "GET", "/chain")
	assert.Contains(t, e.Resolved.Node.Text(), "inner")
}

func TestParameterizedMatching(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
app.get("/users/:id", (c) => c.text("user"));
app.get("/users/me", (c) => c.text("me"));
app.get("/orders/:id{[0-9]+}", (c) => c.text("order"));
app.get("/posts/:slug?", (c) => c.text("post"));
app.get("/files/*", (c) => c.text("file"));
app.all("/any", (c) => c.text("any"));
`)

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"GET", "/users/42", "/users/:id"},
		{"GET", "/users/me", "/users/me"},
		{"get", "/users/42/", "/users/:id"},
		{"GET", "/orders/17", "/orders/:id{[0-9]+}"},
		{"GET", "/posts", "/posts/:slug?"},
		{"GET", "/posts/hello", "/posts/:slug?"},
		{"GET", "/files/a/b/c.txt", "/files/*"},
		{"DELETE", "/any", "/any"},
		{"GET", "/users/:id", "/users/:id"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, match(t, table, tt.method, tt.path).Path)
		})
	}

	for _, q := range []Query{
		{Method: "GET", Path: "/orders/abc"},
		{Method: "POST", Path: "/users/42"},
		{Method: "GET", Path: "/users/42/extra"},
	} {
		_, err := table.Match(q, false)
		requireReason(t, err, resolve.NotFound)
	}
}

func TestOnWithArrays(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
const METHODS = ["get", "post"];
app.on(METHODS, ["/a", "/b"], (c) => c.text("multi"));
app.on("PURGE", "/cache", (c) => c.text("purge"));
`)

	assert.Len(t, table.Registrations, 5)
	for _, q := range []Query{
		{Method: "GET", Path: "/a"},
		{Method: "POST", Path: "/b"},
		{Method: "PURGE", Path: "/cache"},
	} {
		_, err := table.Match(q, false)
		assert.NoError(t, err, "%s %s", q.Method, q.Path)
	}
}

func TestBasePath(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
const api = app.basePath("/api");
api.get("/users", (c) => c.json([]));
const v1 = new Hono().basePath("/v1");
v1.get("/status", (c) => c.text("ok"));
api.route("/versions", v1);
`)

	assert.Equal(t, "/api/users", match(t, table, "GET", "/api/users").Path)
	assert.Equal(t, "/api/versions/v1/status", match(t, table, "GET", "/api/versions/v1/status").Path)
}

func TestMiddlewareQueries(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
function auth(c, next) { return next(); }
function validate(c, next) { return next(); }
app.use("/api/*", auth);
app.post("/api/items", validate, function create(c) { return c.text("created"); });
`)

	canonical := match(t, table, "POST", "/api/items")
	assert.Contains(t, canonical.Resolved.Node.Text(), "create")
	assert.False(t, canonical.Middleware)

	mw, err := table.Match(Query{Method: "POST", Path: "/api/items", Middleware: true}, false)
	require.NoError(t, err)
	assert.Equal(t, "auth", mw.Resolved.Name)

	cands := table.Candidates(Query{Method: "POST", Path: "/api/items", Middleware: true})
	require.Len(t, cands, 2)
	assert.Equal(t, "validate", cands[1].Resolved.Name)
}

func TestRankByWrapDepth(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const app = new Hono();
function direct(c) { return c.text("direct"); }
const aliased = direct;
function other(c) { return c.text("other"); }
app.get("/ranked", aliased);
app.get("/ranked", direct);
app.get("/tied", direct);
app.get("/tied", other);
`)

	first := match(t, table, "GET", "/ranked")
	assert.Equal(t, 1, first.Resolved.WrapDepth, "source order picks the aliased registration")

	ranked, err := table.Match(Query{Method: "GET", Path: "/ranked"}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, ranked.Resolved.WrapDepth)
	assert.Equal(t, 1, ranked.Order-first.Order)

	_, err = table.Match(Query{Method: "GET", Path: "/tied"}, true)
	f := requireReason(t, err, resolve.AmbiguousMatch)
	assert.Len(t, f.Candidates, 2)
}

func TestMountOrderPrecedesLaterRegistrations(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const sub = new Hono();
sub.get("/db", function fromSub(c) { return c.text("sub"); });
const app = new Hono();
app.route("/x", sub);
app.get("/x/db", function fromApp(c) { return c.text("app"); });
`)

	e := match(t, table, "GET", "/x/db")
	assert.Contains(t, e.Resolved.Node.Text(), "fromSub")
}

func TestOpenAPIRoutes(t *testing.T) {
	table := single(t, `
import { OpenAPIHono, createRoute } from "@hono/zod-openapi";
const app = new OpenAPIHono();
const getUser = createRoute({ method: "get", path: "/users/{id}" });
app.openapi(getUser, (c) => c.json({ id: c.req.param("id") }));
`)

	e := match(t, table, "GET", "/users/7")
	assert.Equal(t, "/users/:id", e.Path)
}

func TestSelectedHandlerFailure(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
import { remote } from "remote-handlers";
const app = new Hono();
app.get("/remote", remote);
`)

	_, err := table.Match(Query{Method: "GET", Path: "/remote"}, false)
	f := requireReason(t, err, resolve.ExternalModule)
	assert.Equal(t, "remote-handlers", f.Module)
}

// routerAliases declares a router and n aliases of it, returning the
// source and the last alias.
func routerAliases(n int) (string, string) {
	var sb strings.Builder
	sb.WriteString("import { Hono } from \"hono\";\nvar a0 = new Hono();\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "var a%d = a%d;\n", i, i-1)
	}
	return sb.String(), fmt.Sprintf("a%d", n)
}

func TestUnresolvedReceiverKeepsRoutes(t *testing.T) {
	src, last := routerAliases(80)
	src += fmt.Sprintf(`const sub = new Hono();
sub.get("/y", function inner(c) { return c.text("y"); });
%s.get("/x", function handler(c) { return c.text("x"); });
%s.route("/sub", sub);
`, last, last)
	table := single(t, src)

	_, err := table.Match(Query{Method: "GET", Path: "/x"}, false)
	f := requireReason(t, err, resolve.CyclicReference)
	assert.Contains(t, f.Detail, "hop limit")
	assert.NotEmpty(t, f.Chain)

	// Routes mounted through the unresolved router inherit its failure.
	_, err = table.Match(Query{Method: "GET", Path: "/sub/y"}, false)
	requireReason(t, err, resolve.CyclicReference)

	var warnings int
	for _, d := range table.Diagnostics {
		if d.Severity == syntax.SeverityWarning && strings.Contains(d.Message, "not resolved") {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestReceiverWithinHopLimit(t *testing.T) {
	src, last := routerAliases(60)
	src += last + `.get("/x", function handler(c) { return c.text("x"); });` + "\n"

	e := match(t, single(t, src), "GET", "/x")
	require.NotNil(t, e.Resolved)
	assert.Equal(t, "handler", e.Resolved.Name)
}

func TestNonRouterCallsAreIgnored(t *testing.T) {
	table := single(t, `
const cache = new Map();
cache.get("/not-a-route");
const headers = { get(name) { return name; } };
headers.get("/neither", () => 1);
`)

	assert.Empty(t, table.Registrations)
	assert.Empty(t, table.Entries)
}

func TestMountCycleIsDiagnosed(t *testing.T) {
	table := single(t, `
import { Hono } from "hono";
const a = new Hono();
const b = new Hono();
a.route("/b", b);
b.route("/a", a);
b.get("/x", (c) => c.text("x"));
`)

	assert.Empty(t, table.Entries)
	require.NotEmpty(t, table.Diagnostics)
	assert.Contains(t, table.Diagnostics[0].Message, "mount cycle")
}

func TestNormalizePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", "/"},
		{"/", "/"},
		{"users", "/users"},
		{"/users/", "/users"},
		{"//a//b/", "/a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}

	assert.Equal(t, "/api", JoinPath("/api", "/"))
	assert.Equal(t, "/api/users", JoinPath("/api/", "users"))
	assert.Equal(t, "/users", JoinPath("", "/users"))
}
