// Package scope builds lexical scope tables for parsed files.
//
// Build runs two passes over a file. The first pass creates scopes and
// declares every name the way the JavaScript runtime hoists them: function
// declarations and var declarators land in the enclosing function (or
// module) scope, let/const/class in the enclosing block. The second pass
// binds every identifier reference to the declaration it sees.
//
// Example:
//
//	table := scope.Build(file, logger)
//	b := table.Resolve(identNode) // nil when the name is a global
package scope

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Table is the scope tree and binding index of one file.
//
// Thread Safety:
//   - Tables are mutated only inside Build (and by the module linker setting
//     Import.Target before analysis completes); afterwards all methods are
//     safe for concurrent use.
type Table struct {
	File *syntax.File
	Root *Scope

	// Scopes in creation order; Scopes[i].ID == i.
	Scopes []*Scope

	// Bindings in declaration order, including overwritten ones.
	Bindings []*Binding

	Diagnostics []syntax.Diagnostic

	index   map[Key]*Binding
	scopeOf map[*syntax.Node]*Scope
	refs    map[*syntax.Node]*Binding
}

// Build creates the scope table of a parsed file.
func Build(file *syntax.File, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}

	b := &builder{
		logger: logger,
		t: &Table{
			File:    file,
			index:   make(map[Key]*Binding),
			scopeOf: make(map[*syntax.Node]*Scope),
			refs:    make(map[*syntax.Node]*Binding),
		},
	}

	root := b.newScope(ModuleScope, file.Root, nil)
	b.t.Root = root
	for _, c := range file.Root.Children {
		b.declarations(c, root)
	}
	b.references(file.Root)

	return b.t
}

type builder struct {
	t      *Table
	logger *slog.Logger
}

func (b *builder) newScope(kind Kind, node *syntax.Node, parent *Scope) *Scope {
	s := &Scope{
		ID:       len(b.t.Scopes),
		Kind:     kind,
		Parent:   parent,
		Node:     node,
		Bindings: make(map[string]*Binding),
	}
	if parent != nil {
		parent.Children = append(parent.Children, s)
	}
	b.t.Scopes = append(b.t.Scopes, s)
	b.t.scopeOf[node] = s
	return s
}

// declarations is pass 1.
func (b *builder) declarations(n *syntax.Node, s *Scope) {
	switch n.Kind {
	case "function_declaration", "generator_function_declaration":
		if name := n.ChildByField("name"); name != nil {
			b.declare(s.hoistTarget(), &Binding{Name: name.Text(), Kind: FunctionDecl, Decl: n, Ident: name})
		}
		b.function(n, s)
		return

	case "function_expression", "function", "generator_function", "arrow_function", "method_definition":
		b.function(n, s)
		return

	case "class_declaration", "abstract_class_declaration":
		if name := n.ChildByField("name"); name != nil {
			b.declare(s, &Binding{Name: name.Text(), Kind: FunctionDecl, Decl: n, Ident: name, Lexical: true})
		}

	case "variable_declaration":
		for _, d := range n.NamedChildren() {
			if d.Kind == "variable_declarator" {
				b.declarator(d, s.hoistTarget(), false)
			}
		}

	case "lexical_declaration":
		for _, d := range n.NamedChildren() {
			if d.Kind == "variable_declarator" {
				b.declarator(d, s, true)
			}
		}

	case "import_statement":
		b.importStatement(n, s)
		return

	case "statement_block", "switch_body", "class_static_block":
		s = b.newScope(BlockScope, n, s)

	case "for_statement":
		s = b.newScope(BlockScope, n, s)

	case "for_in_statement":
		s = b.newScope(BlockScope, n, s)
		if kind := n.ChildByField("kind"); kind != nil {
			target, lexical := s, kind.Text() != "var"
			if !lexical {
				target = s.hoistTarget()
			}
			if left := n.ChildByField("left"); left != nil {
				b.bindPattern(left, target, Binding{Kind: VarDecl, Decl: n, Lexical: lexical}, nil)
			}
		}

	case "catch_clause":
		s = b.newScope(BlockScope, n, s)
		if param := n.ChildByField("parameter"); param != nil {
			b.bindPattern(param, s, Binding{Kind: ParamBinding, Decl: n}, nil)
		}
	}

	for _, c := range n.Children {
		b.declarations(c, s)
	}
}

// function opens a function scope, binds parameters and walks the body.
func (b *builder) function(n *syntax.Node, outer *Scope) {
	fs := b.newScope(FunctionScope, n, outer)

	if n.Kind == "function_expression" || n.Kind == "function" || n.Kind == "generator_function" {
		if name := n.ChildByField("name"); name != nil {
			b.declare(fs, &Binding{Name: name.Text(), Kind: FunctionDecl, Decl: n, Ident: name})
		}
	}

	if param := n.ChildByField("parameter"); param != nil {
		b.bindPattern(param, fs, Binding{Kind: ParamBinding, Decl: param}, nil)
	}
	if params := n.ChildByField("parameters"); params != nil {
		for _, p := range params.NamedChildren() {
			b.bindPattern(p, fs, Binding{Kind: ParamBinding, Decl: p}, nil)
		}
	}

	for _, c := range n.Children {
		if c.Field == "body" && c.Kind == "statement_block" {
			for _, stmt := range c.Children {
				b.declarations(stmt, fs)
			}
			continue
		}
		b.declarations(c, fs)
	}
}

func (b *builder) declarator(d *syntax.Node, s *Scope, lexical bool) {
	name := d.ChildByField("name")
	if name == nil {
		return
	}
	b.bindPattern(name, s, Binding{Kind: VarDecl, Decl: d, Init: d.ChildByField("value"), Lexical: lexical}, nil)
}

// bindPattern declares every name of a binding pattern. proto carries the
// fields shared by all names; path is the property path walked so far.
func (b *builder) bindPattern(p *syntax.Node, s *Scope, proto Binding, path []string) {
	switch p.Kind {
	case "identifier", "shorthand_property_identifier_pattern":
		bnd := proto
		bnd.Name = p.Text()
		bnd.Ident = p
		if len(path) > 0 {
			bnd.Path = path
		}
		b.declare(s, &bnd)

	case "required_parameter", "optional_parameter":
		if pattern := p.ChildByField("pattern"); pattern != nil {
			b.bindPattern(pattern, s, proto, path)
		}

	case "assignment_pattern":
		if left := p.ChildByField("left"); left != nil {
			b.bindPattern(left, s, proto, path)
		}

	case "rest_pattern":
		if inner := p.FirstNamed(); inner != nil {
			b.bindPattern(inner, s, proto, extend(path, "..."))
		}

	case "object_pattern":
		for _, c := range p.NamedChildren() {
			switch c.Kind {
			case "shorthand_property_identifier_pattern":
				b.bindPattern(c, s, proto, extend(path, c.Text()))
			case "pair_pattern":
				key, ok := syntax.PropertyName(c.ChildByField("key"))
				if !ok {
					key = "[computed]"
				}
				if value := c.ChildByField("value"); value != nil {
					b.bindPattern(value, s, proto, extend(path, key))
				}
			case "object_assignment_pattern":
				if left := c.ChildByField("left"); left != nil {
					b.bindPattern(left, s, proto, extend(path, left.Text()))
				}
			case "rest_pattern":
				// Object rest keeps every remaining property under its own name.
				if inner := c.FirstNamed(); inner != nil {
					b.bindPattern(inner, s, proto, path)
				}
			}
		}

	case "array_pattern":
		idx := 0
		for _, c := range p.Children {
			if c.Kind == "," {
				idx++
				continue
			}
			if c.Named {
				b.bindPattern(c, s, proto, extend(path, strconv.Itoa(idx)))
			}
		}
	}
}

func (b *builder) importStatement(n *syntax.Node, s *Scope) {
	specifier, _ := syntax.StringValue(n.ChildByField("source"))

	if req := n.ChildOfKind("import_require_clause"); req != nil {
		// TypeScript `import x = require("y")`
		if id := req.ChildOfKind("identifier"); id != nil {
			spec, _ := syntax.StringValue(req.ChildByField("source"))
			b.declareImport(s, id, req, spec, "*")
		}
		return
	}

	clause := n.ChildOfKind("import_clause")
	if clause == nil {
		return
	}
	for _, c := range clause.NamedChildren() {
		switch c.Kind {
		case "identifier":
			b.declareImport(s, c, c, specifier, "default")
		case "namespace_import":
			if id := c.ChildOfKind("identifier"); id != nil {
				b.declareImport(s, id, c, specifier, "*")
			}
		case "named_imports":
			for _, spec := range c.NamedChildren() {
				if spec.Kind != "import_specifier" {
					continue
				}
				name := spec.ChildByField("name")
				local := spec.ChildByField("alias")
				if local == nil {
					local = name
				}
				imported, ok := syntax.PropertyName(name)
				if !ok || local == nil {
					continue
				}
				b.declareImport(s, local, spec, specifier, imported)
			}
		}
	}
}

func (b *builder) declareImport(s *Scope, ident, decl *syntax.Node, specifier, imported string) {
	b.declare(s, &Binding{
		Name:   ident.Text(),
		Kind:   ImportBinding,
		Decl:   decl,
		Ident:  ident,
		Import: &Import{Specifier: specifier, Name: imported, Target: NoTarget},
	})
}

// declare adds bnd to s. A redeclaration replaces the earlier binding,
// except that a bare `var x;` leaves an existing binding untouched.
func (b *builder) declare(s *Scope, bnd *Binding) {
	bnd.Scope = s
	key := Key{ScopeID: s.ID, Name: bnd.Name}

	if prev, ok := b.t.index[key]; ok {
		if bnd.Kind == VarDecl && !bnd.Lexical && bnd.Init == nil && len(bnd.Path) == 0 {
			b.t.refs[bnd.Ident] = prev
			return
		}
		msg := fmt.Sprintf("%q redeclared in %s scope, earlier declaration at %s is shadowed",
			bnd.Name, s.Kind, prev.Decl.Span)
		b.t.Diagnostics = append(b.t.Diagnostics, syntax.Diagnostic{
			Severity: syntax.SeverityInfo,
			Message:  msg,
			Span:     bnd.Decl.Span,
		})
		b.logger.Debug("duplicate declaration",
			"name", bnd.Name,
			"file", b.t.File.Path,
			"line", bnd.Decl.Span.StartLine)
	}

	s.Bindings[bnd.Name] = bnd
	b.t.index[key] = bnd
	b.t.Bindings = append(b.t.Bindings, bnd)
	if bnd.Ident != nil {
		b.t.refs[bnd.Ident] = bnd
	}
}

// references is pass 2: bind every identifier reference and collect plain
// assignments to declared names.
func (b *builder) references(root *syntax.Node) {
	root.Walk(func(n *syntax.Node) bool {
		switch n.Kind {
		case "identifier", "shorthand_property_identifier":
			if _, done := b.t.refs[n]; done || !isReference(n) {
				return true
			}
			if bnd := b.lookup(n); bnd != nil {
				b.t.refs[n] = bnd
			}

		case "assignment_expression":
			left := syntax.Unwrap(n.ChildByField("left"))
			right := n.ChildByField("right")
			if left != nil && right != nil && left.Kind == "identifier" {
				if bnd := b.lookup(left); bnd != nil {
					bnd.Assigned = append(bnd.Assigned, right)
				}
			}
		}
		return true
	})
}

// isReference filters identifiers that name something other than a local
// value: imported names and export aliases.
func isReference(n *syntax.Node) bool {
	p := n.Parent
	if p == nil {
		return true
	}
	switch p.Kind {
	case "import_specifier":
		return false
	case "export_specifier":
		return n.Field != "alias"
	}
	return true
}

// lookup finds the binding visible from ref. Lexical bindings are visible
// from their declaration onward, or anywhere inside a nested function since
// the function body runs later.
func (b *builder) lookup(ref *syntax.Node) *Binding {
	name := ref.Text()
	deferred := false
	for cur := b.t.ScopeOf(ref); cur != nil; cur = cur.Parent {
		if bnd, ok := cur.Bindings[name]; ok {
			if !bnd.Lexical || bnd.Ident == nil || deferred || bnd.Ident.Span.StartByte <= ref.Span.StartByte {
				return bnd
			}
		}
		if cur.Kind == FunctionScope {
			deferred = true
		}
	}
	return nil
}

func extend(path []string, elem string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}
