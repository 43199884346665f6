package scope

import (
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Kind classifies a lexical scope.
type Kind int

const (
	// ModuleScope is the program scope of one file.
	ModuleScope Kind = iota
	// FunctionScope holds parameters and hoisted declarations of a function.
	FunctionScope
	// BlockScope holds let/const/class declarations of a block.
	BlockScope
)

// String returns the scope kind name.
func (k Kind) String() string {
	switch k {
	case ModuleScope:
		return "module"
	case FunctionScope:
		return "function"
	case BlockScope:
		return "block"
	default:
		return "unknown"
	}
}

// Scope is one lexical scope. Scopes are created by Build and never change
// afterwards.
type Scope struct {
	ID       int
	Kind     Kind
	Parent   *Scope
	Node     *syntax.Node
	Bindings map[string]*Binding
	Children []*Scope
}

// hoistTarget returns the nearest function or module scope.
func (s *Scope) hoistTarget() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind != BlockScope {
			return cur
		}
	}
	return s
}

// Depth returns the number of ancestors of s.
func (s *Scope) Depth() int {
	depth := 0
	for cur := s.Parent; cur != nil; cur = cur.Parent {
		depth++
	}
	return depth
}

// BindingKind classifies what declared a name.
type BindingKind int

const (
	// FunctionDecl is a function or class declaration.
	FunctionDecl BindingKind = iota
	// VarDecl is a var/let/const declarator, possibly destructured.
	VarDecl
	// ImportBinding is a local name introduced by an import declaration.
	ImportBinding
	// ParamBinding is a function or catch parameter.
	ParamBinding
)

// String returns the binding kind name.
func (k BindingKind) String() string {
	switch k {
	case FunctionDecl:
		return "function"
	case VarDecl:
		return "var"
	case ImportBinding:
		return "import"
	case ParamBinding:
		return "param"
	default:
		return "unknown"
	}
}

// NoTarget marks an import whose specifier matched no module segment.
const NoTarget = -1

// Import describes where an ImportBinding points.
type Import struct {
	// Specifier is the module specifier as written.
	Specifier string

	// Name is the imported export name: "default", "*" for namespace
	// imports, or an export name.
	Name string

	// Target is the linked segment id, or NoTarget. Set by the module
	// linker before any resolution runs.
	Target int
}

// Binding associates a name with its declaring construct.
type Binding struct {
	Name string
	Kind BindingKind

	// Decl is the declaring construct: the function or class declaration,
	// the variable_declarator, the import specifier, or the parameter.
	Decl *syntax.Node

	// Ident is the identifier naming the binding. Nil for synthetic
	// re-export bindings.
	Ident *syntax.Node

	Scope *Scope

	// Init is the initializer of a VarDecl, nil when absent.
	Init *syntax.Node

	// Path is the property path from Init to the bound value for
	// destructured declarations, e.g. ["router", "0"].
	Path []string

	// Assigned lists right-hand sides of plain assignments to the name in
	// source order.
	Assigned []*syntax.Node

	Import *Import

	// Lexical is true for let/const/class bindings, which are visible only
	// from their declaration point.
	Lexical bool
}

// Value returns the expression the binding currently stands for: the
// initializer, or the last plain assignment when there is none.
func (b *Binding) Value() *syntax.Node {
	if b.Init != nil {
		return b.Init
	}
	if n := len(b.Assigned); n > 0 {
		return b.Assigned[n-1]
	}
	return nil
}

// Key identifies a binding in the flat index.
type Key struct {
	ScopeID int
	Name    string
}
