package module

import (
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Segment returns the segment with the given id, or nil.
func (s *Set) Segment(id int) *Segment {
	if id < 0 || id >= len(s.Segments) {
		return nil
	}
	return s.Segments[id]
}

// ByKey returns the segment registered under key, or nil.
func (s *Set) ByKey(key string) *Segment {
	if seg, ok := s.byKey[key]; ok {
		return seg
	}
	return s.byKey[cleanKey(key)]
}

// Table returns the scope table of a file.
func (s *Set) Table(f *syntax.File) *scope.Table {
	return s.tables[f]
}

// Loaders returns the loader helper names the set was built with.
func (s *Set) Loaders() Loaders {
	return s.loaders
}

// Enclosing returns the innermost segment containing n.
func (s *Set) Enclosing(n *syntax.Node) *Segment {
	for p := n; p != nil; p = p.Parent {
		if seg, ok := s.byRoot[p]; ok {
			return seg
		}
	}
	return nil
}

// ForFactory returns the segment registered by a loader call such as
// `__commonJS({...})`, or nil when call is not one.
func (s *Set) ForFactory(call *syntax.Node) *Segment {
	return s.byFactory[call]
}

// Namespace returns the getters defined on a namespace object through an
// export helper (`var ns = {}; __export(ns, {...})`).
func (s *Set) Namespace(bnd *scope.Binding) (map[string]*syntax.Node, bool) {
	ns, ok := s.namespaces[bnd]
	return ns, ok
}

// Export looks name up in seg, following `export * from` re-exports in
// source order. A star export never provides "default".
func (s *Set) Export(seg *Segment, name string) *Export {
	return s.export(seg, name, make(map[int]bool))
}

func (s *Set) export(seg *Segment, name string, seen map[int]bool) *Export {
	if seg == nil || seen[seg.ID] {
		return nil
	}
	seen[seg.ID] = true

	if ex, ok := seg.Exports[name]; ok {
		return ex
	}
	if name == "default" {
		return nil
	}
	for _, star := range seg.Stars {
		if ex := s.export(s.Segment(star.Target), name, seen); ex != nil {
			return ex
		}
	}
	return nil
}

// SelfReference reports whether n is the exports object of its segment
// (`exports`, `module.exports`) or the `module` object itself.
func (s *Set) SelfReference(n *syntax.Node) (seg *Segment, isModule bool, ok bool) {
	seg = s.Enclosing(n)
	if seg == nil {
		return nil, false, false
	}
	if s.isExportsObject(seg, n) {
		return seg, false, true
	}
	if s.isModuleObject(seg, n) {
		return seg, true, true
	}
	return nil, false, false
}

// IsRequire reports whether a call loads a module by specifier, returning
// the specifier.
func (s *Set) IsRequire(call *syntax.Node) (string, bool) {
	callee := syntax.Unwrap(call.ChildByField("function"))
	if callee == nil || callee.Kind != "identifier" {
		return "", false
	}
	if !contains(s.loaders.RequireFunctions, syntax.BaseName(callee.Text())) {
		return "", false
	}
	args := syntax.Arguments(call)
	if len(args) != 1 {
		return "", false
	}
	arg := syntax.Unwrap(args[0])
	if spec, ok := syntax.StringValue(arg); ok {
		return spec, true
	}
	if arg != nil && arg.Kind == "number" {
		return arg.Text(), true
	}
	return "", false
}
