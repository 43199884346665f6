// Package module partitions parsed files into module segments and links
// imports across them.
//
// A segment is either a whole file or one factory of a bundler module table
// (esbuild's __commonJS/__esm wrappers, webpack's __webpack_modules__).
// Both conventions end up behind the same Segment type: exports map to
// bindings or expressions, and every import binding is linked to the
// segment its specifier names.
package module

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Set is the segment index of one snapshot.
//
// Thread Safety:
//   - Built once by Resolve; read-only afterwards.
type Set struct {
	Segments    []*Segment
	Diagnostics []syntax.Diagnostic

	loaders Loaders
	logger  *slog.Logger

	tables     map[*syntax.File]*scope.Table
	byKey      map[string]*Segment
	keys       []string
	byRoot     map[*syntax.Node]*Segment
	byFactory  map[*syntax.Node]*Segment
	namespaces map[*scope.Binding]map[string]*syntax.Node
	synthetic  []*scope.Binding
}

// Resolve discovers the segments of every file, collects their exports and
// links imports. Tables must be given in snapshot order.
func Resolve(tables []*scope.Table, loaders Loaders, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Set{
		loaders:    loaders,
		logger:     logger,
		tables:     make(map[*syntax.File]*scope.Table, len(tables)),
		byKey:      make(map[string]*Segment),
		byRoot:     make(map[*syntax.Node]*Segment),
		byFactory:  make(map[*syntax.Node]*Segment),
		namespaces: make(map[*scope.Binding]map[string]*syntax.Node),
	}

	for _, t := range tables {
		s.tables[t.File] = t
		s.discover(t)
	}
	for key := range s.byKey {
		s.keys = append(s.keys, key)
	}
	sort.Strings(s.keys)

	for _, seg := range s.Segments {
		s.collectExports(seg)
	}
	for _, seg := range s.Segments {
		s.adoptNamespace(seg)
	}
	s.link(tables)

	return s
}

// discover registers the file segment of t and every factory inside it.
func (s *Set) discover(t *scope.Table) {
	file := &Segment{
		Key:   t.File.Path,
		Kind:  fileKind(t.File.Root),
		File:  t.File,
		Table: t,
		Root:  t.File.Root,
		Scope: t.Root,
	}
	s.add(file)

	t.File.Root.Walk(func(n *syntax.Node) bool {
		switch n.Kind {
		case "call_expression":
			s.factoryCall(t, n)
		case "variable_declarator":
			if name := n.ChildByField("name"); name != nil && s.isModuleTable(name.Text()) {
				s.moduleTable(t, n.ChildByField("value"))
			}
		case "assignment_expression":
			if left := n.ChildByField("left"); left != nil && left.Kind == "identifier" && s.isModuleTable(left.Text()) {
				s.moduleTable(t, n.ChildByField("right"))
			}
		}
		return true
	})

	if file.Kind == InlineScript && s.hasCommonJSExports(file) {
		file.Kind = CommonJSStyle
	}
}

func (s *Set) add(seg *Segment) {
	seg.ID = len(s.Segments)
	seg.Exports = make(map[string]*Export)
	s.Segments = append(s.Segments, seg)
	s.byRoot[seg.Root] = seg

	for _, key := range []string{seg.Key, cleanKey(seg.Key)} {
		if prev, ok := s.byKey[key]; ok && prev != seg {
			s.Diagnostics = append(s.Diagnostics, syntax.Diagnostic{
				Severity: syntax.SeverityInfo,
				Message:  fmt.Sprintf("module key %q registered twice, keeping the first", key),
				Span:     seg.Root.Span,
			})
			continue
		}
		s.byKey[key] = seg
	}

	s.logger.Debug("module segment",
		"id", seg.ID,
		"key", seg.Key,
		"kind", seg.Kind.String())
}

// factoryCall registers `helper({ "key"(exports, module) {...} })`.
func (s *Set) factoryCall(t *scope.Table, call *syntax.Node) {
	callee := syntax.Unwrap(call.ChildByField("function"))
	if callee == nil || callee.Kind != "identifier" {
		return
	}
	name := syntax.BaseName(callee.Text())

	kind := CommonJSStyle
	switch {
	case contains(s.loaders.FactoryHelpers, name):
	case contains(s.loaders.StaticFactoryHelpers, name):
		kind = StaticStyle
	default:
		return
	}

	args := syntax.Arguments(call)
	if len(args) == 0 {
		return
	}
	obj := syntax.Unwrap(args[0])
	if obj == nil || obj.Kind != "object" {
		return
	}

	for _, entry := range obj.NamedChildren() {
		key, fn := factoryEntry(entry)
		if fn == nil {
			continue
		}
		seg := &Segment{
			Key:     key,
			Kind:    kind,
			File:    t.File,
			Table:   t,
			Root:    fn,
			Scope:   t.ScopeFor(fn),
			Factory: call,
		}
		if kind == CommonJSStyle {
			params := paramBindings(t, fn)
			seg.exportsParam = at(params, 0)
			seg.moduleParam = at(params, 1)
		}
		s.add(seg)
		if _, ok := s.byFactory[call]; !ok {
			s.byFactory[call] = seg
		}
	}
}

// moduleTable registers every entry of `{ "key": (module, exports, require) => {...} }`.
func (s *Set) moduleTable(t *scope.Table, value *syntax.Node) {
	obj := syntax.Unwrap(value)
	if obj == nil || obj.Kind != "object" {
		return
	}
	for _, entry := range obj.NamedChildren() {
		key, fn := factoryEntry(entry)
		if fn == nil {
			continue
		}
		params := paramBindings(t, fn)
		seg := &Segment{
			Key:          key,
			Kind:         CommonJSStyle,
			File:         t.File,
			Table:        t,
			Root:         fn,
			Scope:        t.ScopeFor(fn),
			Factory:      entry,
			moduleParam:  at(params, 0),
			exportsParam: at(params, 1),
		}
		s.add(seg)
		s.byFactory[entry] = seg
	}
}

func (s *Set) isModuleTable(name string) bool {
	return contains(s.loaders.ModuleTables, syntax.BaseName(name))
}

// factoryEntry extracts the key and factory function of a module table
// entry: either `"key": function (...) {}` or a method `"key"(...) {}`.
func factoryEntry(entry *syntax.Node) (string, *syntax.Node) {
	switch entry.Kind {
	case "pair":
		key, ok := syntax.PropertyName(entry.ChildByField("key"))
		fn := syntax.Unwrap(entry.ChildByField("value"))
		if !ok || !syntax.IsFunction(fn) {
			return "", nil
		}
		return key, fn
	case "method_definition":
		key, ok := syntax.PropertyName(entry.ChildByField("name"))
		if !ok {
			return "", nil
		}
		return key, entry
	}
	return "", nil
}

// paramBindings returns the bindings of simple identifier parameters by
// position; destructured parameters yield nil entries.
func paramBindings(t *scope.Table, fn *syntax.Node) []*scope.Binding {
	params := fn.ChildByField("parameters")
	if params == nil {
		if single := fn.ChildByField("parameter"); single != nil {
			return []*scope.Binding{t.Resolve(single)}
		}
		return nil
	}
	var out []*scope.Binding
	for _, p := range params.NamedChildren() {
		ident := p
		if p.Kind == "required_parameter" || p.Kind == "optional_parameter" {
			ident = p.ChildByField("pattern")
		}
		if ident != nil && ident.Kind == "identifier" {
			out = append(out, t.Resolve(ident))
		} else {
			out = append(out, nil)
		}
	}
	return out
}

func at(bs []*scope.Binding, i int) *scope.Binding {
	if i < len(bs) {
		return bs[i]
	}
	return nil
}

// fileKind classifies a program by its top-level statements.
func fileKind(root *syntax.Node) Kind {
	for _, c := range root.Children {
		if c.Kind == "import_statement" || c.Kind == "export_statement" {
			return StaticStyle
		}
	}
	return InlineScript
}

func (s *Set) hasCommonJSExports(seg *Segment) bool {
	found := false
	s.walkSegment(seg, func(n *syntax.Node) {
		if found || n.Kind != "assignment_expression" {
			return
		}
		left := syntax.Unwrap(n.ChildByField("left"))
		if s.isModuleExports(seg, left) {
			found = true
			return
		}
		if left != nil && (left.Kind == "member_expression" || left.Kind == "subscript_expression") &&
			s.isExportsObject(seg, syntax.Unwrap(left.ChildByField("object"))) {
			found = true
		}
	})
	return found
}

// walkSegment visits the nodes of seg without entering nested segments.
func (s *Set) walkSegment(seg *Segment, visit func(*syntax.Node)) {
	seg.Root.Walk(func(n *syntax.Node) bool {
		if n != seg.Root {
			if _, nested := s.byRoot[n]; nested {
				return false
			}
		}
		visit(n)
		return true
	})
}
