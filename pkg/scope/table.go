package scope

import (
	"sort"

	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Lookup returns the binding declared directly in a scope.
func (t *Table) Lookup(scopeID int, name string) *Binding {
	return t.index[Key{ScopeID: scopeID, Name: name}]
}

// Resolve returns the binding an identifier refers to. Declaring
// identifiers resolve to their own binding. Nil means the name is not
// declared anywhere visible (a global, or a typo).
func (t *Table) Resolve(ident *syntax.Node) *Binding {
	return t.refs[ident]
}

// ScopeOf returns the innermost scope containing n.
func (t *Table) ScopeOf(n *syntax.Node) *Scope {
	for p := n; p != nil; p = p.Parent {
		if s, ok := t.scopeOf[p]; ok {
			return s
		}
	}
	return t.Root
}

// ScopeFor returns the scope created by n (a function, block or program
// node), or nil.
func (t *Table) ScopeFor(n *syntax.Node) *Scope {
	return t.scopeOf[n]
}

// Visible walks the scope chain from s without position checks. Used for
// names that are referenced implicitly, such as a factory's `module`
// parameter.
func (t *Table) Visible(s *Scope, name string) *Binding {
	for cur := s; cur != nil; cur = cur.Parent {
		if bnd, ok := cur.Bindings[name]; ok {
			return bnd
		}
	}
	return nil
}

// Declared returns the current bindings named name, outermost scopes first
// and in source order within the same depth.
func (t *Table) Declared(name string) []*Binding {
	var out []*Binding
	for _, s := range t.Scopes {
		if bnd, ok := s.Bindings[name]; ok {
			out = append(out, bnd)
		}
	}
	sortByDepth(out)
	return out
}

// Imports returns every import binding of the file in declaration order.
func (t *Table) Imports() []*Binding {
	var out []*Binding
	for _, bnd := range t.Bindings {
		if bnd.Kind == ImportBinding && t.index[Key{ScopeID: bnd.Scope.ID, Name: bnd.Name}] == bnd {
			out = append(out, bnd)
		}
	}
	return out
}

func sortByDepth(bs []*Binding) {
	sort.SliceStable(bs, func(i, j int) bool {
		di, dj := bs[i].Scope.Depth(), bs[j].Scope.Depth()
		if di != dj {
			return di < dj
		}
		return bs[i].Decl.Span.StartByte < bs[j].Decl.Span.StartByte
	})
}
