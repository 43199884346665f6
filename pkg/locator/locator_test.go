package locator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/util"
)

func newLocator(t *testing.T, mutate ...func(*Config)) *Locator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = util.DiscardLogger()
	for _, m := range mutate {
		m(&cfg)
	}
	loc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { loc.Close() })
	return loc
}

func snapshot(files ...string) Snapshot {
	var snap Snapshot
	for i := 0; i+1 < len(files); i += 2 {
		snap.Files = append(snap.Files, Source{Path: files[i], Content: []byte(files[i+1])})
	}
	return snap
}

func route(method, path string) Query {
	return Query{Method: method, Path: path}
}

func requireMatch(t *testing.T, res Result) *Match {
	t.Helper()
	require.Nil(t, res.Failure, "unexpected failure: %v", res.Failure)
	require.NotNil(t, res.Match)
	return res.Match
}

func requireFailure(t *testing.T, res Result, reason resolve.Reason) *resolve.Failure {
	t.Helper()
	require.Nil(t, res.Match)
	require.NotNil(t, res.Failure)
	require.Equal(t, reason, res.Failure.Reason, "failure: %v", res.Failure)
	return res.Failure
}

const hoisting = `import { Hono } from "hono";

const app = new Hono();

app.get("/helper-function", helperFunction);

function helperFunction(c) {
  return c.text("helped");
}

export default app;
`

func TestLocate_HoistedHandler(t *testing.T) {
	loc := newLocator(t)
	res := loc.Locate(context.Background(), snapshot("src/index.ts", hoisting), route("GET", "/helper-function"))

	m := requireMatch(t, res)
	assert.Equal(t, "src/index.ts", m.Span.File)
	assert.Equal(t, 7, m.Span.StartLine)
	assert.Equal(t, 1, m.Span.StartCol)
	assert.Equal(t, 9, m.Span.EndLine)
	assert.True(t, strings.HasPrefix(m.FunctionText, "function helperFunction(c) {"))
	assert.True(t, strings.HasSuffix(m.FunctionText, "}"))
	assert.Equal(t, 0, m.WrapDepth)
	assert.Equal(t, resolve.NamedFunction, m.Kind)
	assert.Equal(t, "GET", m.Method)
	assert.Equal(t, "/helper-function", m.Pattern)
}

func TestLocate_CrossSegmentMount(t *testing.T) {
	snap := snapshot(
		"src/index.ts", `import { Hono } from "hono";
import otherRouterDefault from "./other-router";

const app = new Hono();
app.route("/other-router", otherRouterDefault);
export default app;
`,
		"src/other-router.ts", `import { Hono } from "hono";

const app = new Hono();
app.get("/db", async (c) => {
  return c.json({ ok: true });
});
export default app;
`)

	loc := newLocator(t)
	m := requireMatch(t, loc.Locate(context.Background(), snap, route("GET", "/other-router/db")))
	assert.Equal(t, "src/other-router.ts", m.Span.File)
	assert.Equal(t, 4, m.Span.StartLine)
	assert.Equal(t, resolve.InlineFunction, m.Kind)
	assert.True(t, strings.HasPrefix(m.FunctionText, "async (c) =>"))

	requireFailure(t, loc.Locate(context.Background(), snap, route("GET", "/db")), resolve.NotFound)
}

const bundle = `var __create = Object.create;
var __getOwnPropNames = Object.getOwnPropertyNames;
var __commonJS = (cb, mod) => function __require() {
  return mod || (0, cb[__getOwnPropNames(cb)[0]])((mod = { exports: {} }).exports, mod), mod.exports;
};
var __toESM = (mod, isNodeMode, target) => (target = mod != null ? __create(mod) : {}, mod);

// src/other-router.ts
var require_other_router = __commonJS({
  "src/other-router.ts"(exports, module) {
    var import_hono = require("hono");
    var app2 = new import_hono.Hono();
    app2.get("/db", function dbHandler(c) {
      return c.text("db");
    });
    module.exports = app2;
  }
});

// src/index.ts
var import_hono2 = require("hono");
var import_other_router = __toESM(require_other_router());
var import_hono_otel = require("@fiberplane/hono-otel");
var app = new import_hono2.Hono();
app.route("/other-router", import_other_router.default);
module.exports = (0, import_hono_otel.instrument)(app);
`

func TestLocate_BundledSnapshot(t *testing.T) {
	loc := newLocator(t)
	m := requireMatch(t, loc.Locate(context.Background(), snapshot("dist/index.js", bundle), route("GET", "/other-router/db")))
	assert.Equal(t, "dbHandler", m.Name)
	assert.Equal(t, 13, m.Span.StartLine)

	requireFailure(t, loc.Locate(context.Background(), snapshot("dist/index.js", bundle), route("GET", "/db")), resolve.NotFound)
}

func TestLocate_WrapperTransparency(t *testing.T) {
	const plain = `import { Hono } from "hono";
const app = new Hono();
app.get("/users/:id", function getUser(c) { return c.text("user"); });
app.post("/users", (c) => c.text("created"));
export default app;
`
	wrapped := strings.Replace(plain, "export default app;", "export default instrument(app);", 1)
	wrapped = `import { instrument } from "@fiberplane/hono-otel";
` + wrapped

	loc := newLocator(t)
	for _, q := range []Query{route("GET", "/users/7"), route("POST", "/users")} {
		a := requireMatch(t, loc.Locate(context.Background(), snapshot("src/index.ts", plain), q))
		b := requireMatch(t, loc.Locate(context.Background(), snapshot("src/index.ts", wrapped), q))
		assert.Equal(t, a.FunctionText, b.FunctionText, q.String())
		assert.Equal(t, a.Span.StartLine+1, b.Span.StartLine, q.String())
	}
}

func TestLocate_AliasingTransparency(t *testing.T) {
	loc := newLocator(t)
	for _, n := range []int{0, 1, 2, 3, 6, 31, 32, 60} {
		var sb strings.Builder
		sb.WriteString("import { Hono } from \"hono\";\nvar a0 = new Hono();\n")
		for i := 1; i <= n; i++ {
			fmt.Fprintf(&sb, "var a%d = a%d;\n", i, i-1)
		}
		fmt.Fprintf(&sb, "a%d.get(\"/x\", function handler(c) { return c.text(\"x\"); });\n", n)

		m := requireMatch(t, loc.Locate(context.Background(), snapshot("index.js", sb.String()), route("GET", "/x")))
		assert.Equal(t, "handler", m.Name, "aliases: %d", n)
		assert.Equal(t, 0, m.WrapDepth, "router aliases do not count toward the handler")
	}
}

func TestLocate_RouterPastHopLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("import { Hono } from \"hono\";\nvar a0 = new Hono();\n")
	for i := 1; i <= 70; i++ {
		fmt.Fprintf(&sb, "var a%d = a%d;\n", i, i-1)
	}
	sb.WriteString("a70.get(\"/x\", function handler(c) { return c.text(\"x\"); });\n")

	loc := newLocator(t)
	snap := snapshot("index.js", sb.String())
	f := requireFailure(t, loc.Locate(context.Background(), snap, route("GET", "/x")), resolve.CyclicReference)
	assert.Contains(t, f.Detail, "hop limit")
	assert.Equal(t, "a70", f.Chain[0])

	// A larger budget resolves the same chain.
	roomy := newLocator(t, func(c *Config) { c.MaxHops = 128 })
	m := requireMatch(t, roomy.Locate(context.Background(), snap, route("GET", "/x")))
	assert.Equal(t, "handler", m.Name)
}

func TestLocate_PartialTree(t *testing.T) {
	src := `import { Hono } from "hono";
const app = new Hono();
app.get("/ok", function ok(c) { return c.text("ok"); });
app.get("/broken", (c) => {
`
	loc := newLocator(t)
	snap := snapshot("index.js", src)

	a, err := loc.Analyze(context.Background(), snap)
	require.NoError(t, err)
	var warned bool
	for _, d := range a.Diagnostics {
		warned = warned || strings.Contains(d.Message, "syntax errors")
	}
	assert.True(t, warned)

	m := requireMatch(t, loc.Locate(context.Background(), snap, route("GET", "/ok")))
	assert.Equal(t, "ok", m.Name)
}

func TestLocate_CycleSafety(t *testing.T) {
	loc := newLocator(t)
	res := loc.Locate(context.Background(), snapshot("index.js", `
const { Hono } = require("hono");
const app = new Hono();
var a = b;
var b = a;
app.get("/cycle", a);
`), route("GET", "/cycle"))

	f := requireFailure(t, res, resolve.CyclicReference)
	assert.Equal(t, []string{"a", "b", "a"}, f.Chain)
}

func TestLocate_OrderTieBreak(t *testing.T) {
	src := `import { Hono } from "hono";
const app = new Hono();
app.get("/same", function first(c) { return c.text("1"); });
app.get("/same", function second(c) { return c.text("2"); });
`
	m := requireMatch(t, newLocator(t).Locate(context.Background(), snapshot("index.ts", src), route("GET", "/same")))
	assert.Equal(t, "first", m.Name)

	ranked := newLocator(t, func(c *Config) { c.RankByWrapDepth = true })
	f := requireFailure(t, ranked.Locate(context.Background(), snapshot("index.ts", src), route("GET", "/same")), resolve.AmbiguousMatch)
	assert.Len(t, f.Candidates, 2)
}

func TestLocate_Determinism(t *testing.T) {
	snap := snapshot("dist/index.js", bundle)
	q := route("GET", "/other-router/db")

	first := newLocator(t).Locate(context.Background(), snap, q)
	for i := 0; i < 5; i++ {
		loc := newLocator(t)
		assert.Equal(t, first, loc.Locate(context.Background(), snap, q))
	}
}

func TestLocate_HandlerName(t *testing.T) {
	snap := snapshot(
		"src/index.ts", `import { Hono } from "hono";
import { listUsers } from "./handlers";
const app = new Hono();
app.get("/users", listUsers);
const helper = (c) => c.text("inline");
`,
		"src/handlers.ts", `export function listUsers(c) {
  return c.json([]);
}
function run(helper) { return helper; }
`)
	loc := newLocator(t)

	m := requireMatch(t, loc.Locate(context.Background(), snap, Query{HandlerName: "listUsers"}))
	assert.Equal(t, "src/handlers.ts", m.Span.File)
	assert.Equal(t, 1, m.Span.StartLine)
	assert.Empty(t, m.Method)

	m = requireMatch(t, loc.Locate(context.Background(), snap, Query{HandlerName: "helper"}))
	assert.Equal(t, resolve.InlineFunction, m.Kind)
	assert.Equal(t, `(c) => c.text("inline")`, m.FunctionText)

	requireFailure(t, loc.Locate(context.Background(), snap, Query{HandlerName: "missing"}), resolve.NotFound)
}

func TestLocate_HandlerNameFailure(t *testing.T) {
	loc := newLocator(t)
	res := loc.Locate(context.Background(), snapshot("index.ts", `
import { remote } from "some-package";
const local = 42;
`), Query{HandlerName: "remote"})
	requireFailure(t, res, resolve.ExternalModule)

	res = loc.Locate(context.Background(), snapshot("index.ts", `const local = 42;`), Query{HandlerName: "local"})
	requireFailure(t, res, resolve.Unsupported)
}

func TestLocate_Middleware(t *testing.T) {
	src := `import { Hono } from "hono";
const app = new Hono();
app.use("*", function logger(c, next) { return next(); });
app.get("/mw", function auth(c, next) { return next(); }, function handler(c) { return c.text("ok"); });
`
	loc := newLocator(t)
	m := requireMatch(t, loc.Locate(context.Background(), snapshot("index.ts", src), route("GET", "/mw")))
	assert.Equal(t, "handler", m.Name)

	m = requireMatch(t, loc.Locate(context.Background(), snapshot("index.ts", src), Query{Method: "GET", Path: "/mw", Middleware: true}))
	assert.Equal(t, "logger", m.Name)
}

func TestLocate_InvalidInput(t *testing.T) {
	loc := newLocator(t)
	ctx := context.Background()
	snap := snapshot("index.ts", hoisting)

	tests := []struct {
		name string
		snap Snapshot
		q    Query
	}{
		{"empty snapshot", Snapshot{}, route("GET", "/")},
		{"empty query", snap, Query{}},
		{"method only", snap, Query{Method: "GET"}},
		{"route and handler", snap, Query{Method: "GET", Path: "/", HandlerName: "x"}},
		{"duplicate path", snapshot("a.ts", "", "a.ts", ""), route("GET", "/")},
		{"missing path", Snapshot{Files: []Source{{Content: []byte("1")}}}, route("GET", "/")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireFailure(t, loc.Locate(ctx, tt.snap, tt.q), resolve.InvalidInput)
		})
	}
}

func TestAnalyze_CachesBySnapshotHash(t *testing.T) {
	loc := newLocator(t, func(c *Config) { c.CacheSize = 1 })
	ctx := context.Background()

	first, err := loc.Analyze(ctx, snapshot("index.ts", hoisting))
	require.NoError(t, err)
	second, err := loc.Analyze(ctx, snapshot("index.ts", hoisting))
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = loc.Analyze(ctx, snapshot("other.ts", hoisting))
	require.NoError(t, err)

	stats := loc.Stats()
	assert.Equal(t, int64(2), stats.Analyses)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.Equal(t, 1, stats.CachedAnalyses)
}

func TestAnalyze_ConcurrentCallsShareAnalysis(t *testing.T) {
	loc := newLocator(t)
	snap := snapshot("dist/index.js", bundle)

	var wg sync.WaitGroup
	results := make([]*Analysis, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := loc.Analyze(context.Background(), snap)
			assert.NoError(t, err)
			results[i] = a
		}()
	}
	wg.Wait()

	for _, a := range results[1:] {
		assert.Same(t, results[0], a)
	}
	assert.Equal(t, int64(1), loc.Stats().Analyses)
}

func TestAnalyze_CancelledCallerDoesNotFailOthers(t *testing.T) {
	loc := newLocator(t)
	snap := snapshot("dist/index.js", bundle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if a, err := loc.Analyze(ctx, snap); err != nil {
		f := resolve.AsFailure(err)
		assert.Equal(t, resolve.InvalidInput, f.Reason)
		assert.Contains(t, f.Detail, "analysis cancelled")
	} else {
		assert.NotNil(t, a)
	}

	a, err := loc.Analyze(context.Background(), snap)
	require.NoError(t, err)
	requireMatch(t, a.Locate(context.Background(), route("GET", "/other-router/db")))
	assert.Equal(t, int64(1), loc.Stats().Analyses, "the cancelled caller's analysis is reused")
}

func TestSnapshot_HashSeparatesPathsAndContent(t *testing.T) {
	a := snapshot("ab", "c").Hash()
	b := snapshot("a", "bc").Hash()
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, snapshot("ab", "c").Hash())
}

func TestAnalysis_LocateAllAndRoutes(t *testing.T) {
	loc := newLocator(t)
	a, err := loc.Analyze(context.Background(), snapshot("dist/index.js", bundle))
	require.NoError(t, err)

	results := a.LocateAll(context.Background(), []Query{
		route("GET", "/other-router/db"),
		route("GET", "/missing"),
		{HandlerName: "dbHandler"},
	})
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.Equal(t, resolve.NotFound, results[1].Failure.Reason)
	require.True(t, results[2].OK(), "named function expressions bind their own name")
	assert.Equal(t, results[0].Match.Span, results[2].Match.Span)
	assert.Equal(t, resolve.NamedFunction, results[2].Match.Kind)

	listed := a.Routes()
	require.Len(t, listed, 1)
	assert.Equal(t, "GET", listed[0].Method)
	assert.Equal(t, "/other-router/db", listed[0].Path)
	require.NotNil(t, listed[0].Handler)
	assert.Equal(t, "dbHandler", listed[0].Handler.Name)
}

func TestAnalyze_ReportsDiagnostics(t *testing.T) {
	loc := newLocator(t)
	a, err := loc.Analyze(context.Background(), snapshot("index.ts", `
import { Hono } from "hono";
import { missing } from "./nowhere";
const app = new Hono();
app.get(dynamicPath(), (c) => c.text("x"));
`))
	require.NoError(t, err)

	var messages []string
	for _, d := range a.Diagnostics {
		messages = append(messages, d.Message)
	}
	joined := strings.Join(messages, "\n")
	assert.Contains(t, joined, "./nowhere")
	assert.Contains(t, joined, "not a constant")
}
