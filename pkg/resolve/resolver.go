// Package resolve follows expressions back to the function, router or
// constant they stand for.
//
// Resolution walks aliases, destructuring, object members, imports and
// re-exports across module segments, and unwinds allow-listed wrapper calls.
// The walk is iterative and bounded by a hop limit; every call either
// yields a Resolution or a typed *Failure.
package resolve

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// DefaultMaxHops bounds the hops of one resolution, nested callee
// classification included. A hop is one binding, export, module load or
// wrapper passed through.
const DefaultMaxHops = 64

// Kind is what an expression resolved to.
type Kind int

const (
	// InlineFunction is a function or arrow literal, or an object method.
	InlineFunction Kind = iota
	// NamedFunction is a function or class declaration.
	NamedFunction
	// Router is a router construction (`new Hono()`).
	Router
	// Value is any other terminal expression, such as a string literal.
	Value
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case InlineFunction:
		return "InlineFunction"
	case NamedFunction:
		return "NamedFunction"
	case Router:
		return "Router"
	case Value:
		return "Value"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for c := InlineFunction; c <= Value; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown resolution kind %q", text)
}

// Resolution is the terminal of a resolution chain.
type Resolution struct {
	Kind Kind

	// Node is the function node, the router construction or the value.
	Node *syntax.Node

	// Name is the last binding name on the chain, empty for anonymous
	// inline values.
	Name string

	// WrapDepth counts the aliasing, import and wrapper hops unwound.
	WrapDepth int

	// Chain lists the names visited, in order.
	Chain []string

	// BasePath is the prefix contributed by basePath() derivations when
	// Kind is Router.
	BasePath string
}

// Identity names the definition a callee refers to.
type Identity struct {
	// Module is the specifier of an external module, or the segment key
	// of a local definition.
	Module string
	Export string

	// Local is set for definitions inside the snapshot and for globals.
	Local bool
}

// Resolver resolves expressions against one module set.
//
// Thread Safety:
//   - Read-only after New; safe for concurrent use.
type Resolver struct {
	set     *module.Set
	sigs    Signatures
	maxHops int
	logger  *slog.Logger
}

// New creates a resolver. A maxHops of 0 selects DefaultMaxHops.
func New(set *module.Set, sigs Signatures, maxHops int, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Resolver{
		set:     set,
		sigs:    sigs,
		maxHops: maxHops,
		logger:  logger,
	}
}

// Signatures returns the allow-list the resolver uses.
func (r *Resolver) Signatures() Signatures {
	return r.sigs
}

// Set returns the module set the resolver works on.
func (r *Resolver) Set() *module.Set {
	return r.set
}

// Resolve follows expr to its terminal. The error is always a *Failure.
func (r *Resolver) Resolve(expr *syntax.Node) (*Resolution, error) {
	budget := r.maxHops
	res, fail := r.run(expr, &budget)
	if fail != nil {
		return nil, fail
	}
	return res, nil
}

// Binding follows a declared binding to its terminal.
func (r *Resolver) Binding(bnd *scope.Binding) (*Resolution, error) {
	budget := r.maxHops
	w := r.walker(&budget)
	w.goBinding(bnd)
	res, fail := w.loop()
	if fail != nil {
		return nil, fail
	}
	return res, nil
}

// Function resolves expr and requires a function terminal.
func (r *Resolver) Function(expr *syntax.Node) (*Resolution, error) {
	res, err := r.Resolve(expr)
	if err != nil {
		return nil, err
	}
	if res.Kind != InlineFunction && res.Kind != NamedFunction {
		f := Failf(Unsupported, "%s resolves to a %s, not a function", describe(expr), res.Kind)
		f.Chain = res.Chain
		f.At = spanOf(res.Node)
		return nil, f
	}
	return res, nil
}

// Router resolves expr and requires a router terminal.
func (r *Resolver) Router(expr *syntax.Node) (*Resolution, error) {
	res, err := r.Resolve(expr)
	if err != nil {
		return nil, err
	}
	if res.Kind != Router {
		f := Failf(Unsupported, "%s resolves to a %s, not a router", describe(expr), res.Kind)
		f.Chain = res.Chain
		f.At = spanOf(res.Node)
		return nil, f
	}
	return res, nil
}

// ConstString evaluates expr to a string constant: a literal, a template
// without substitutions, or a name or member bound to one.
func (r *Resolver) ConstString(expr *syntax.Node) (string, bool) {
	budget := r.maxHops
	return r.constString(expr, &budget)
}

// Classify identifies the function a callee expression refers to.
func (r *Resolver) Classify(callee *syntax.Node) (Identity, bool) {
	budget := r.maxHops
	return r.classify(callee, &budget)
}

func (r *Resolver) classify(callee *syntax.Node, budget *int) (Identity, bool) {
	callee = syntax.Unwrap(callee)
	res, fail := r.run(callee, budget)
	if fail != nil {
		if fail.rest > 0 {
			return Identity{}, false
		}
		switch fail.Reason {
		case ExternalModule:
			if fail.Export != "" {
				return Identity{Module: fail.Module, Export: fail.Export}, true
			}
		case Unbound:
			if fail.Name != "" {
				return Identity{Export: fail.Name, Local: true}, true
			}
		}
		return Identity{}, false
	}

	switch res.Kind {
	case InlineFunction, NamedFunction:
		name := res.Name
		if name == "" {
			name = declaredName(res.Node)
		}
		if name == "" {
			return Identity{}, false
		}
		id := Identity{Export: syntax.BaseName(name), Local: true}
		if seg := r.set.Enclosing(res.Node); seg != nil {
			id.Module = seg.Key
		}
		return id, true
	}
	return Identity{}, false
}

// AsFailure extracts the *Failure from an error returned by the resolver.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Reason: InvalidInput, Detail: err.Error()}
}

func declaredName(n *syntax.Node) string {
	if n == nil {
		return ""
	}
	if name := n.ChildByField("name"); name != nil && name.Kind != "string" {
		return name.Text()
	}
	return ""
}

func describe(n *syntax.Node) string {
	if n == nil {
		return "expression"
	}
	text := n.Text()
	if len(text) > 40 {
		text = text[:37] + "..."
	}
	return "`" + text + "`"
}

func spanOf(n *syntax.Node) *syntax.Span {
	if n == nil {
		return nil
	}
	s := n.Span
	return &s
}
