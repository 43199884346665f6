package resolve

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

type stepKind int

const (
	stepNode stepKind = iota
	stepBinding
	stepExport
	stepModuleValue
	stepModuleNamespace
	stepNamespace
)

// maxIdleSteps bounds the steps taken between two hops. Such steps only
// descend into the syntax tree, so reaching the bound means a broken tree.
const maxIdleSteps = 4096

// walker is the state of one resolution. The pending path holds property
// accesses still to apply, next one first.
//
// The budget is charged once per hop: a binding, an export, a module load
// or a wrapper. Steps inside one expression are free.
type walker struct {
	r       *Resolver
	budget  *int
	idle    int
	visited map[*scope.Binding]bool

	path     []string
	depth    int
	chain    []string
	name     string
	basePath string

	// chainCall is the first receiver-returning call passed through; the
	// walk must end at a router for it to hold.
	chainCall *syntax.Node

	step      stepKind
	node      *syntax.Node
	bnd       *scope.Binding
	seg       *module.Segment
	export    string
	namespace map[string]*syntax.Node
}

func (r *Resolver) run(expr *syntax.Node, budget *int) (*Resolution, *Failure) {
	w := r.walker(budget)
	w.goNode(expr)
	return w.loop()
}

func (r *Resolver) walker(budget *int) *walker {
	return &walker{
		r:       r,
		budget:  budget,
		visited: make(map[*scope.Binding]bool),
	}
}

func (w *walker) loop() (*Resolution, *Failure) {
	for {
		w.idle++
		if w.idle > maxIdleSteps {
			return nil, w.fail(Unsupported, "expression nested deeper than %d steps", maxIdleSteps)
		}

		var res *Resolution
		var fail *Failure
		switch w.step {
		case stepNode:
			res, fail = w.visitNode()
		case stepBinding:
			res, fail = w.visitBinding()
		case stepExport:
			res, fail = w.visitExport()
		case stepModuleValue:
			res, fail = w.visitModuleValue()
		case stepModuleNamespace:
			res, fail = w.visitModuleNamespace()
		case stepNamespace:
			res, fail = w.visitNamespace()
		}

		if fail != nil {
			return nil, fail
		}
		if res != nil {
			if w.chainCall != nil && res.Kind != Router {
				f := w.fail(OpaqueCall, "%s is not called on a router", describe(w.chainCall))
				f.Name = w.chainCall.Text()
				return nil, f
			}
			return res, nil
		}
	}
}

// hop charges one hop against the budget.
func (w *walker) hop() *Failure {
	if *w.budget <= 0 {
		return w.fail(CyclicReference, "hop limit of %d exceeded", w.r.maxHops)
	}
	*w.budget--
	w.idle = 0
	return nil
}

func (w *walker) goNode(n *syntax.Node) {
	w.step, w.node = stepNode, n
}

func (w *walker) goBinding(b *scope.Binding) {
	w.step, w.bnd = stepBinding, b
}

func (w *walker) goExport(seg *module.Segment, name string) {
	w.step, w.seg, w.export = stepExport, seg, name
}

func (w *walker) goModuleValue(seg *module.Segment) {
	w.step, w.seg = stepModuleValue, seg
}

func (w *walker) goModuleNamespace(seg *module.Segment) {
	w.step, w.seg = stepModuleNamespace, seg
}

func (w *walker) goNamespace(ns map[string]*syntax.Node) {
	w.step, w.namespace = stepNamespace, ns
}

func (w *walker) fail(reason Reason, format string, args ...any) *Failure {
	f := Failf(reason, format, args...)
	f.Chain = append([]string(nil), w.chain...)
	f.At = spanOf(w.node)
	f.rest = len(w.path)
	return f
}

func (w *walker) result(kind Kind, n *syntax.Node) *Resolution {
	return &Resolution{
		Kind:      kind,
		Node:      n,
		Name:      w.name,
		WrapDepth: w.depth,
		Chain:     append([]string(nil), w.chain...),
		BasePath:  w.basePath,
	}
}

func (w *walker) visitNode() (*Resolution, *Failure) {
	n := syntax.Unwrap(w.node)
	if n == nil {
		return nil, w.fail(Unsupported, "empty expression")
	}
	w.node = n

	if syntax.IsFunction(n) {
		if len(w.path) > 0 {
			return nil, w.fail(Unsupported, "property %q of a function", w.path[0])
		}
		kind := InlineFunction
		if n.Kind == "function_declaration" || n.Kind == "generator_function_declaration" {
			kind = NamedFunction
		}
		if w.name == "" {
			w.name = declaredName(n)
		}
		return w.result(kind, n), nil
	}
	if syntax.IsClass(n) {
		if len(w.path) > 0 {
			return w.staticMember(n)
		}
		if w.name == "" {
			w.name = declaredName(n)
		}
		return w.result(NamedFunction, n), nil
	}

	switch n.Kind {
	case "identifier", "shorthand_property_identifier":
		return w.identifier(n)

	case "member_expression", "subscript_expression":
		name, ok := syntax.MemberName(n)
		if !ok {
			return nil, w.fail(Unsupported, "computed property access %s", describe(n))
		}
		w.path = prepend(name, w.path)
		w.goNode(n.ChildByField("object"))
		return nil, nil

	case "assignment_expression":
		w.goNode(n.ChildByField("right"))
		return nil, nil

	case "object":
		return w.object(n)

	case "array":
		return w.array(n)

	case "call_expression":
		return w.call(n)

	case "new_expression":
		return w.construct(n)

	case "string", "template_string", "number", "true", "false", "null", "undefined", "regex":
		if len(w.path) > 0 {
			return nil, w.fail(Unsupported, "property %q of a literal", w.path[0])
		}
		return w.result(Value, n), nil

	case "ternary_expression", "binary_expression":
		return nil, w.fail(Unsupported, "conditional expression %s", describe(n))
	}

	return nil, w.fail(Unsupported, "%s %s", strings.ReplaceAll(n.Kind, "_", " "), describe(n))
}

func (w *walker) identifier(n *syntax.Node) (*Resolution, *Failure) {
	set := w.r.set
	if seg, isModule, ok := set.SelfReference(n); ok {
		if isModule {
			if len(w.path) == 0 || w.path[0] != "exports" {
				return nil, w.fail(Unsupported, "module object of %s", seg.Key)
			}
			w.path = w.path[1:]
		}
		if f := w.hop(); f != nil {
			return nil, f
		}
		w.chain = append(w.chain, seg.Key)
		w.goModuleValue(seg)
		return nil, nil
	}

	var bnd *scope.Binding
	if table := set.Table(n.File()); table != nil {
		bnd = table.Resolve(n)
	}
	if bnd == nil {
		f := w.fail(Unbound, "%q is not declared in the snapshot", n.Text())
		f.Name = n.Text()
		return nil, f
	}
	w.goBinding(bnd)
	return nil, nil
}

func (w *walker) visitBinding() (*Resolution, *Failure) {
	bnd := w.bnd
	if bnd.Decl != nil {
		w.node = bnd.Decl
	}
	if w.visited[bnd] {
		w.chain = append(w.chain, bnd.Name)
		return nil, w.fail(CyclicReference, "%q refers back to itself", bnd.Name)
	}
	if f := w.hop(); f != nil {
		return nil, f
	}
	w.visited[bnd] = true
	w.chain = append(w.chain, bnd.Name)
	w.name = bnd.Name

	switch bnd.Kind {
	case scope.FunctionDecl:
		if syntax.IsFunction(bnd.Decl) {
			if len(w.path) > 0 {
				return nil, w.fail(Unsupported, "property %q of function %q", w.path[0], bnd.Name)
			}
			return w.result(NamedFunction, bnd.Decl), nil
		}
		w.goNode(bnd.Decl)
		return nil, nil

	case scope.VarDecl:
		if ns, ok := w.r.set.Namespace(bnd); ok {
			w.goNamespace(ns)
			return nil, nil
		}
		value := bnd.Value()
		if value == nil {
			return nil, w.fail(Unsupported, "%q has no value", bnd.Name)
		}
		w.path = append(append([]string(nil), bnd.Path...), w.path...)
		if isAlias(value) {
			w.depth++
		}
		w.goNode(value)
		return nil, nil

	case scope.ImportBinding:
		return w.importBinding(bnd)
	}

	return nil, w.fail(Unsupported, "%q is a parameter", bnd.Name)
}

func (w *walker) importBinding(bnd *scope.Binding) (*Resolution, *Failure) {
	imp := bnd.Import
	if imp.Target == scope.NoTarget {
		return nil, w.external(imp.Specifier, imp.Name)
	}

	seg := w.r.set.Segment(imp.Target)
	if seg == nil {
		return nil, w.external(imp.Specifier, imp.Name)
	}
	w.depth++
	if imp.Name == "*" {
		w.goModuleNamespace(seg)
	} else {
		w.goExport(seg, imp.Name)
	}
	return nil, nil
}

// external reports a dependency outside the snapshot. A namespace import
// (or a require) consumes the first pending property as the export name.
func (w *walker) external(specifier, export string) *Failure {
	rest := len(w.path)
	if export == "*" || export == "" {
		export = ""
		if len(w.path) > 0 {
			export = w.path[0]
			rest--
		}
	}
	f := w.fail(ExternalModule, "module %q is not part of the snapshot", specifier)
	f.Module, f.Export = specifier, export
	f.rest = rest
	return f
}

func (w *walker) visitExport() (*Resolution, *Failure) {
	seg, name := w.seg, w.export
	if f := w.hop(); f != nil {
		return nil, f
	}
	w.chain = append(w.chain, fmt.Sprintf("%s:%s", seg.Key, name))

	if ex := w.r.set.Export(seg, name); ex != nil {
		if ex.Binding != nil {
			w.goBinding(ex.Binding)
		} else {
			w.goNode(ex.Value)
		}
		return nil, nil
	}

	// CommonJS interop: named imports read properties of module.exports,
	// the default import is module.exports itself.
	if seg.ModuleValue != nil {
		if name != "default" {
			w.path = prepend(name, w.path)
		}
		w.goNode(seg.ModuleValue)
		return nil, nil
	}

	f := w.fail(Unbound, "module %q has no export %q", seg.Key, name)
	f.Name = name
	return nil, f
}

func (w *walker) visitModuleValue() (*Resolution, *Failure) {
	seg := w.seg
	if seg.ModuleValue == nil {
		w.goModuleNamespace(seg)
		return nil, nil
	}
	if len(w.path) > 0 && w.path[0] == "default" {
		if _, ok := seg.Exports["default"]; !ok {
			w.path = w.path[1:]
		}
	}
	w.goNode(seg.ModuleValue)
	return nil, nil
}

func (w *walker) visitModuleNamespace() (*Resolution, *Failure) {
	if len(w.path) == 0 {
		return nil, w.fail(Unsupported, "namespace object of module %q", w.seg.Key)
	}
	name := w.path[0]
	w.path = w.path[1:]
	w.goExport(w.seg, name)
	return nil, nil
}

func (w *walker) visitNamespace() (*Resolution, *Failure) {
	if len(w.path) == 0 {
		return nil, w.fail(Unsupported, "namespace object %q", w.name)
	}
	value, ok := w.namespace[w.path[0]]
	if !ok {
		f := w.fail(Unbound, "namespace %q has no member %q", w.name, w.path[0])
		f.Name = w.path[0]
		return nil, f
	}
	w.path = w.path[1:]
	w.goNode(value)
	return nil, nil
}

func (w *walker) object(n *syntax.Node) (*Resolution, *Failure) {
	if len(w.path) == 0 {
		return w.result(Value, n), nil
	}
	key := w.path[0]
	if value, ok := syntax.ObjectMembers(n)[key]; ok {
		w.path = w.path[1:]
		w.goNode(value)
		return nil, nil
	}

	// The last spread is the most likely source of the missing key.
	var spread *syntax.Node
	for _, m := range n.NamedChildren() {
		if m.Kind == "spread_element" {
			spread = m
		}
	}
	if spread != nil {
		w.goNode(spread.FirstNamed())
		return nil, nil
	}

	f := w.fail(Unbound, "object has no property %q", key)
	f.Name = key
	return nil, f
}

func (w *walker) array(n *syntax.Node) (*Resolution, *Failure) {
	if len(w.path) == 0 {
		return w.result(Value, n), nil
	}
	idx, err := strconv.Atoi(w.path[0])
	elems := n.NamedChildren()
	if err != nil || idx < 0 || idx >= len(elems) || elems[idx].Kind == "spread_element" {
		return nil, w.fail(Unsupported, "element %q of an array", w.path[0])
	}
	w.path = w.path[1:]
	w.goNode(elems[idx])
	return nil, nil
}

func (w *walker) staticMember(cls *syntax.Node) (*Resolution, *Failure) {
	key := w.path[0]
	for _, m := range cls.ChildByField("body").NamedChildren() {
		if m.ChildOfKind("static") == nil {
			continue
		}
		switch m.Kind {
		case "method_definition":
			if name, ok := syntax.PropertyName(m.ChildByField("name")); ok && name == key {
				w.path = w.path[1:]
				w.goNode(m)
				return nil, nil
			}
		case "field_definition", "public_field_definition":
			nameNode := m.ChildByField("property")
			if nameNode == nil {
				nameNode = m.ChildByField("name")
			}
			if name, ok := syntax.PropertyName(nameNode); ok && name == key {
				if value := m.ChildByField("value"); value != nil {
					w.path = w.path[1:]
					w.goNode(value)
					return nil, nil
				}
			}
		}
	}
	f := w.fail(Unbound, "class has no static member %q", key)
	f.Name = key
	return nil, f
}

func (w *walker) call(n *syntax.Node) (*Resolution, *Failure) {
	callee := syntax.Unwrap(n.ChildByField("function"))
	if callee == nil {
		return nil, w.fail(Unsupported, "call without callee")
	}
	sigs := w.r.sigs

	if callee.Kind == "member_expression" {
		if method, ok := syntax.MemberName(callee); ok {
			switch {
			case sigs.returnsReceiver(method):
				if w.chainCall == nil {
					w.chainCall = callee
				}
				w.goNode(callee.ChildByField("object"))
				return nil, nil

			case sigs.isBasePath(method):
				args := syntax.Arguments(n)
				if len(args) != 1 {
					return nil, w.fail(Unsupported, "%s takes one prefix", describe(callee))
				}
				prefix, ok := w.r.constString(args[0], w.budget)
				if !ok {
					return nil, w.fail(Unsupported, "prefix of %s is not a constant", describe(callee))
				}
				w.basePath = strings.TrimSuffix(prefix, "/") + w.basePath
				if w.chainCall == nil {
					w.chainCall = callee
				}
				w.goNode(callee.ChildByField("object"))
				return nil, nil
			}
		}
	}

	if specifier, ok := w.r.set.IsRequire(n); ok {
		target := w.r.set.Link(w.r.set.Enclosing(n), specifier)
		if target == nil {
			return nil, w.external(specifier, "")
		}
		if f := w.hop(); f != nil {
			return nil, f
		}
		w.depth++
		w.chain = append(w.chain, target.Key)
		w.goModuleValue(target)
		return nil, nil
	}

	if seg := w.factory(callee); seg != nil {
		if f := w.hop(); f != nil {
			return nil, f
		}
		w.depth++
		w.chain = append(w.chain, seg.Key)
		w.goModuleValue(seg)
		return nil, nil
	}

	if id, ok := w.r.classify(callee, w.budget); ok {
		if wr, ok := sigs.wrapper(id); ok {
			return w.unwrap(n, wr)
		}
		if sigs.routerFactory(id) {
			return w.router(n)
		}
	}

	f := w.fail(OpaqueCall, "call to %s is not a known wrapper", describe(callee))
	f.Name = callee.Text()
	return nil, f
}

func (w *walker) construct(n *syntax.Node) (*Resolution, *Failure) {
	ctor := n.ChildByField("constructor")
	if id, ok := w.r.classify(ctor, w.budget); ok {
		if w.r.sigs.routerFactory(id) {
			return w.router(n)
		}
		if wr, ok := w.r.sigs.wrapper(id); ok {
			return w.unwrap(n, wr)
		}
	}
	f := w.fail(OpaqueCall, "construction of %s is not a known router", describe(ctor))
	f.Name = syntax.Unwrap(ctor).Text()
	return nil, f
}

func (w *walker) unwrap(call *syntax.Node, wr Wrapper) (*Resolution, *Failure) {
	args := syntax.Arguments(call)
	if wr.Arg >= len(args) {
		return nil, w.fail(Unsupported, "%s called without argument %d", wr, wr.Arg)
	}
	if len(w.path) > 0 && hasName(wr.EscapeHatches, w.path[0]) {
		w.path = w.path[1:]
	}
	if f := w.hop(); f != nil {
		return nil, f
	}
	w.depth++
	w.chain = append(w.chain, wr.String()+"()")
	w.goNode(args[wr.Arg])
	return nil, nil
}

func (w *walker) router(n *syntax.Node) (*Resolution, *Failure) {
	if len(w.path) > 0 {
		return nil, w.fail(Unsupported, "property %q of a router", w.path[0])
	}
	return w.result(Router, n), nil
}

// factory returns the segment loaded by calling a bundler factory variable
// (`require_routes()`), or nil.
func (w *walker) factory(callee *syntax.Node) *module.Segment {
	if callee.Kind != "identifier" {
		return nil
	}
	table := w.r.set.Table(callee.File())
	if table == nil {
		return nil
	}
	bnd := table.Resolve(callee)
	if bnd == nil || bnd.Kind != scope.VarDecl || len(bnd.Path) > 0 {
		return nil
	}
	value := syntax.Unwrap(bnd.Value())
	if value == nil || value.Kind != "call_expression" {
		return nil
	}
	seg := w.r.set.ForFactory(value)
	if seg == nil || seg.Kind != module.CommonJSStyle {
		return nil
	}
	return seg
}

func (r *Resolver) constString(expr *syntax.Node, budget *int) (string, bool) {
	if s, ok := syntax.StringValue(syntax.Unwrap(expr)); ok {
		return s, true
	}
	res, fail := r.run(expr, budget)
	if fail != nil || res.Kind != Value {
		return "", false
	}
	return syntax.StringValue(res.Node)
}

// isAlias reports whether a variable value is another name for something,
// as opposed to a definition. Calls count their own hops.
func isAlias(value *syntax.Node) bool {
	value = syntax.Unwrap(value)
	if value == nil {
		return false
	}
	switch value.Kind {
	case "identifier", "member_expression", "subscript_expression", "assignment_expression":
		return true
	}
	return false
}

func prepend(elem string, path []string) []string {
	out := make([]string, 0, len(path)+1)
	out = append(out, elem)
	return append(out, path...)
}
