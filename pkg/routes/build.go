package routes

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Build scans every file of the module set for route registrations and
// mounts, composes mount prefixes and resolves every handler argument.
func Build(set *module.Set, r *resolve.Resolver, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	b := &builder{
		r:      r,
		sigs:   r.Signatures(),
		logger: logger,
		t:      &Table{},
	}

	for _, seg := range set.Segments {
		if !seg.IsFile() {
			continue
		}
		seg.Root.Walk(func(n *syntax.Node) bool {
			if n.Kind == "call_expression" {
				b.call(n)
			}
			return true
		})
	}

	sort.SliceStable(b.t.Registrations, func(i, j int) bool {
		return b.t.Registrations[i].Position.Less(b.t.Registrations[j].Position)
	})
	sort.SliceStable(b.t.Mounts, func(i, j int) bool {
		return b.t.Mounts[i].Position.Less(b.t.Mounts[j].Position)
	})

	b.entries(b.compose())

	logger.Debug("route table built",
		"registrations", len(b.t.Registrations),
		"mounts", len(b.t.Mounts),
		"entries", len(b.t.Entries))

	return b.t
}

type builder struct {
	r      *resolve.Resolver
	sigs   resolve.Signatures
	logger *slog.Logger
	t      *Table

	// pending is the receiver failure of the call being handled.
	pending *resolve.Failure
}

// call inspects one call expression for a router method.
func (b *builder) call(call *syntax.Node) {
	callee := syntax.Unwrap(call.ChildByField("function"))
	if callee == nil || callee.Kind != "member_expression" {
		return
	}
	method, ok := syntax.MemberName(callee)
	if !ok {
		return
	}

	var handle func(*syntax.Node, *resolve.Resolution, []*syntax.Node)
	switch {
	case b.sigs.IsRouteMethod(method):
		handle = func(call *syntax.Node, router *resolve.Resolution, args []*syntax.Node) {
			b.route(call, router, []string{strings.ToUpper(method)}, args)
		}
	case method == "on":
		handle = b.on
	case method == "use":
		handle = b.use
	case method == "route":
		handle = b.mount
	case method == "openapi":
		handle = b.openapi
	default:
		return
	}

	receiver := callee.ChildByField("object")
	router, err := b.r.Router(receiver)
	if err != nil {
		f := resolve.AsFailure(err)
		if f.Reason != resolve.CyclicReference {
			b.logger.Debug("skipping call on non-router receiver",
				"call", callee.Text(),
				"at", call.Span.String(),
				"reason", f.Reason.String())
			return
		}
		// The receiver may well be a router; keep its routes so that
		// queries for them report the failure instead of NotFound.
		b.t.Diagnostics = append(b.t.Diagnostics, syntax.Diagnostic{
			Severity: syntax.SeverityWarning,
			Message:  fmt.Sprintf("receiver of %s not resolved: %s", callee.Text(), f.Error()),
			Span:     call.Span,
		})
		b.pending = f
		defer func() { b.pending = nil }()
		router = &resolve.Resolution{Kind: resolve.Router, Node: receiver}
	}
	handle(call, router, syntax.Arguments(call))
}

func (b *builder) position(call *syntax.Node) Position {
	callee := syntax.Unwrap(call.ChildByField("function"))
	offset := call.Span.StartByte
	if prop := callee.ChildByField("property"); prop != nil {
		offset = prop.Span.StartByte
	}
	return Position{File: call.File().Index, Offset: offset}
}

// route registers `router.get(path, ...handlers)`.
func (b *builder) route(call *syntax.Node, router *resolve.Resolution, methods []string, args []*syntax.Node) {
	if len(args) < 2 {
		b.diagnose(call, "route call without path and handler")
		return
	}
	paths, ok := b.constStrings(args[0])
	if !ok {
		b.diagnose(call, "route path %s is not a constant", args[0].Text())
		return
	}
	b.register(call, router, methods, paths, args[1:], false)
}

// on registers `router.on(method | methods[], path | paths[], ...handlers)`.
func (b *builder) on(call *syntax.Node, router *resolve.Resolution, args []*syntax.Node) {
	if len(args) < 3 {
		b.diagnose(call, "on() call without method, path and handler")
		return
	}
	methods, ok := b.constStrings(args[0])
	if !ok {
		b.diagnose(call, "on() methods %s are not constants", args[0].Text())
		return
	}
	paths, ok := b.constStrings(args[1])
	if !ok {
		b.diagnose(call, "on() path %s is not a constant", args[1].Text())
		return
	}
	for i := range methods {
		methods[i] = strings.ToUpper(methods[i])
	}
	b.register(call, router, methods, paths, args[2:], false)
}

// use registers middleware, with an optional leading path.
func (b *builder) use(call *syntax.Node, router *resolve.Resolution, args []*syntax.Node) {
	if len(args) == 0 {
		return
	}
	paths := []string{"*"}
	if p, ok := b.r.ConstString(args[0]); ok {
		paths = []string{p}
		args = args[1:]
	}
	if len(args) == 0 {
		b.diagnose(call, "use() without middleware")
		return
	}
	b.register(call, router, []string{"ALL"}, paths, args, true)
}

// openapi registers `router.openapi(createRoute({ method, path }), handler)`.
func (b *builder) openapi(call *syntax.Node, router *resolve.Resolution, args []*syntax.Node) {
	if len(args) < 2 {
		return
	}
	def, err := b.r.Resolve(args[0])
	if err != nil || def.Kind != resolve.Value || def.Node.Kind != "object" {
		b.diagnose(call, "openapi route definition %s is not an object literal", args[0].Text())
		return
	}
	members := syntax.ObjectMembers(def.Node)
	method, okMethod := b.r.ConstString(members["method"])
	path, okPath := b.r.ConstString(members["path"])
	if members["method"] == nil || members["path"] == nil || !okMethod || !okPath {
		b.diagnose(call, "openapi route definition lacks a constant method and path")
		return
	}
	b.register(call, router, []string{strings.ToUpper(method)}, []string{fromOpenAPI(path)}, args[1:], false)
}

// mount records `router.route(prefix, sub)`.
func (b *builder) mount(call *syntax.Node, router *resolve.Resolution, args []*syntax.Node) {
	if len(args) < 2 {
		return
	}
	prefix, ok := b.r.ConstString(args[0])
	if !ok {
		b.diagnose(call, "mount prefix %s is not a constant", args[0].Text())
		return
	}
	sub, err := b.r.Router(args[1])
	if err != nil {
		f := resolve.AsFailure(err)
		b.t.Diagnostics = append(b.t.Diagnostics, syntax.Diagnostic{
			Severity: syntax.SeverityWarning,
			Message:  fmt.Sprintf("mounted router %s not resolved: %s", args[1].Text(), f.Error()),
			Span:     call.Span,
		})
		return
	}
	b.t.Mounts = append(b.t.Mounts, &Mount{
		From:     router.Node,
		To:       sub.Node,
		Prefix:   JoinPath(router.BasePath, prefix),
		Call:     call,
		Position: b.position(call),
		Failure:  b.pending,
	})
}

func (b *builder) register(call *syntax.Node, router *resolve.Resolution, methods, paths []string, handlers []*syntax.Node, middleware bool) {
	pos := b.position(call)
	for _, method := range methods {
		for _, p := range paths {
			b.t.Registrations = append(b.t.Registrations, &Registration{
				Method:     method,
				Path:       JoinPath(router.BasePath, p),
				Handlers:   handlers,
				Router:     router.Node,
				Call:       call,
				Position:   pos,
				Middleware: middleware,
				Failure:    b.pending,
			})
		}
	}
}

// constStrings evaluates a constant string or an array of constant strings,
// possibly bound to a name.
func (b *builder) constStrings(n *syntax.Node) ([]string, bool) {
	if s, ok := b.r.ConstString(n); ok {
		return []string{s}, true
	}
	arr := syntax.Unwrap(n)
	if arr != nil && arr.Kind != "array" {
		res, err := b.r.Resolve(n)
		if err != nil || res.Kind != resolve.Value {
			return nil, false
		}
		arr = res.Node
	}
	if arr != nil && arr.Kind == "array" {
		var out []string
		for _, el := range arr.NamedChildren() {
			s, ok := b.r.ConstString(el)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, len(out) > 0
	}
	return nil, false
}

func (b *builder) diagnose(call *syntax.Node, format string, args ...any) {
	b.t.Diagnostics = append(b.t.Diagnostics, syntax.Diagnostic{
		Severity: syntax.SeverityInfo,
		Message:  fmt.Sprintf(format, args...),
		Span:     call.Span,
	})
}

// mountPath is one way a router is reachable from a root router.
type mountPath struct {
	prefix string
	mounts []*Mount
}

// compose computes every prefix under which each router is served. Routers
// that are never mounted are roots with an empty prefix; mounted routers
// are reachable only through their mounts.
func (b *builder) compose() map[*syntax.Node][]mountPath {
	mounted := make(map[*syntax.Node]bool)
	for _, m := range b.t.Mounts {
		mounted[m.To] = true
	}

	paths := make(map[*syntax.Node][]mountPath)
	seen := make(map[*syntax.Node]map[string]bool)
	add := func(router *syntax.Node, mp mountPath) bool {
		key := mp.prefix + "|" + mountKey(mp.mounts)
		if seen[router] == nil {
			seen[router] = make(map[string]bool)
		}
		if seen[router][key] {
			return false
		}
		seen[router][key] = true
		paths[router] = append(paths[router], mp)
		return true
	}

	for _, reg := range b.t.Registrations {
		if !mounted[reg.Router] {
			add(reg.Router, mountPath{prefix: "/"})
		}
	}
	for _, m := range b.t.Mounts {
		if !mounted[m.From] {
			add(m.From, mountPath{prefix: "/"})
		}
	}

	// Each round extends paths by one mount; a path never needs more
	// rounds than there are edges.
	changed := true
	for round := 0; changed && round <= len(b.t.Mounts); round++ {
		changed = false
		for _, m := range b.t.Mounts {
			for _, from := range append([]mountPath(nil), paths[m.From]...) {
				if containsMount(from.mounts, m) {
					continue
				}
				next := mountPath{
					prefix: JoinPath(from.prefix, m.Prefix),
					mounts: append(append([]*Mount(nil), from.mounts...), m),
				}
				if add(m.To, next) {
					changed = true
				}
			}
		}
	}

	for _, m := range b.t.Mounts {
		if len(paths[m.From]) == 0 {
			b.t.Diagnostics = append(b.t.Diagnostics, syntax.Diagnostic{
				Severity: syntax.SeverityWarning,
				Message:  fmt.Sprintf("router mounted at %q is only reachable through a mount cycle", m.Prefix),
				Span:     m.Call.Span,
			})
		}
	}

	return paths
}

func (b *builder) entries(paths map[*syntax.Node][]mountPath) {
	for _, reg := range b.t.Registrations {
		for _, mp := range paths[reg.Router] {
			key := make([]Position, 0, len(mp.mounts)+1)
			for _, m := range mp.mounts {
				key = append(key, m.Position)
			}
			key = append(key, reg.Position)
			full := JoinPath(mp.prefix, reg.Path)

			blocked := reg.Failure
			for _, m := range mp.mounts {
				if blocked == nil {
					blocked = m.Failure
				}
			}

			last := len(reg.Handlers) - 1
			for i := range reg.Handlers {
				e := &Entry{
					Method:       reg.Method,
					Path:         full,
					Registration: reg,
					Handler:      i,
					Middleware:   reg.Middleware || i < last,
					Mounts:       mp.mounts,
					key:          key,
					pattern:      compilePattern(full),
				}
				if blocked != nil {
					e.Failure = blocked
					b.t.Entries = append(b.t.Entries, e)
					continue
				}
				res, err := b.r.Function(reg.Handlers[i])
				if err != nil {
					e.Failure = resolve.AsFailure(err)
				} else {
					e.Resolved = res
				}
				b.t.Entries = append(b.t.Entries, e)
			}
		}
	}

	sort.SliceStable(b.t.Entries, func(i, j int) bool {
		a, c := b.t.Entries[i], b.t.Entries[j]
		if cmp := compareKeys(a.key, c.key); cmp != 0 {
			return cmp < 0
		}
		return a.Handler < c.Handler
	})
	for i, e := range b.t.Entries {
		e.Order = i
	}
}

func compareKeys(a, b []Position) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i].Less(b[i]) {
			return -1
		}
		if b[i].Less(a[i]) {
			return 1
		}
	}
	return len(a) - len(b)
}

func containsMount(ms []*Mount, m *Mount) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}

func mountKey(ms []*Mount) string {
	var sb strings.Builder
	for _, m := range ms {
		fmt.Fprintf(&sb, "%d:%d,", m.Position.File, m.Position.Offset)
	}
	return sb.String()
}
