package module

import (
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// collectExports fills seg.Exports from CommonJS assignments, export helper
// calls and (for file segments) export declarations.
func (s *Set) collectExports(seg *Segment) {
	s.walkSegment(seg, func(n *syntax.Node) {
		switch n.Kind {
		case "assignment_expression":
			s.commonJSAssignment(seg, n)
		case "call_expression":
			s.exportCall(seg, n)
		}
	})

	if seg.IsFile() {
		for _, stmt := range seg.Root.Children {
			if stmt.Kind == "export_statement" {
				s.exportStatement(seg, stmt)
			}
		}
	}
}

func (s *Set) commonJSAssignment(seg *Segment, n *syntax.Node) {
	left := syntax.Unwrap(n.ChildByField("left"))
	right := n.ChildByField("right")
	if left == nil || right == nil {
		return
	}

	if s.isModuleExports(seg, left) {
		seg.ModuleValue = right
		if obj := syntax.Unwrap(right); obj != nil && obj.Kind == "object" {
			for name, value := range syntax.ObjectMembers(obj) {
				s.setExport(seg, &Export{Name: name, Value: value})
			}
		}
		return
	}

	if left.Kind != "member_expression" && left.Kind != "subscript_expression" {
		return
	}
	if !s.isExportsObject(seg, syntax.Unwrap(left.ChildByField("object"))) {
		return
	}
	if name, ok := syntax.MemberName(left); ok {
		s.setExport(seg, &Export{Name: name, Value: right})
	}
}

// exportCall handles export helpers and Object.defineProperty(exports, ...).
func (s *Set) exportCall(seg *Segment, call *syntax.Node) {
	callee := syntax.CalleeName(call)
	args := syntax.Arguments(call)

	if callee == "Object.defineProperty" && len(args) == 3 {
		if !s.isExportsObject(seg, syntax.Unwrap(args[0])) {
			return
		}
		name, ok := syntax.StringValue(args[1])
		desc := syntax.Unwrap(args[2])
		if !ok || desc == nil || desc.Kind != "object" {
			return
		}
		members := syntax.ObjectMembers(desc)
		if get, ok := members["get"]; ok {
			if value := GetterValue(get); value != nil {
				s.setExport(seg, &Export{Name: name, Value: value})
			}
		} else if value, ok := members["value"]; ok {
			s.setExport(seg, &Export{Name: name, Value: value})
		}
		return
	}

	if !contains(s.loaders.ExportHelpers, syntax.BaseName(callee)) || len(args) < 2 {
		return
	}
	obj := syntax.Unwrap(args[1])
	if obj == nil || obj.Kind != "object" {
		return
	}

	getters := make(map[string]*syntax.Node)
	for name, get := range syntax.ObjectMembers(obj) {
		if value := GetterValue(get); value != nil {
			getters[name] = value
		}
	}

	target := syntax.Unwrap(args[0])
	if s.isExportsObject(seg, target) {
		for name, value := range getters {
			s.setExport(seg, &Export{Name: name, Value: value})
		}
		return
	}
	if target == nil || target.Kind != "identifier" {
		return
	}
	if bnd := seg.Table.Resolve(target); bnd != nil {
		ns := s.namespaces[bnd]
		if ns == nil {
			ns = make(map[string]*syntax.Node)
			s.namespaces[bnd] = ns
		}
		for name, value := range getters {
			ns[name] = value
		}
	}
}

func (s *Set) exportStatement(seg *Segment, stmt *syntax.Node) {
	source := stmt.ChildByField("source")
	specifier, fromModule := syntax.StringValue(source)
	isDefault := stmt.ChildOfKind("default") != nil

	if decl := stmt.ChildByField("declaration"); decl != nil {
		names := declaredNames(decl)
		if isDefault && len(names) > 0 {
			s.setExport(seg, &Export{Name: "default", Binding: seg.Table.Resolve(names[0])})
			return
		}
		if isDefault {
			s.setExport(seg, &Export{Name: "default", Value: decl})
			return
		}
		for _, ident := range names {
			if bnd := seg.Table.Resolve(ident); bnd != nil {
				s.setExport(seg, &Export{Name: ident.Text(), Binding: bnd})
			}
		}
		return
	}

	if value := stmt.ChildByField("value"); value != nil && isDefault {
		s.setExport(seg, &Export{Name: "default", Value: value})
		return
	}

	if clause := stmt.ChildOfKind("export_clause"); clause != nil {
		for _, spec := range clause.NamedChildren() {
			if spec.Kind != "export_specifier" {
				continue
			}
			nameNode := spec.ChildByField("name")
			local, ok := syntax.PropertyName(nameNode)
			if !ok {
				continue
			}
			exported := local
			if alias, ok := syntax.PropertyName(spec.ChildByField("alias")); ok {
				exported = alias
			}
			if fromModule {
				s.setExport(seg, &Export{Name: exported, Binding: s.reexport(seg, spec, exported, specifier, local)})
			} else {
				s.setExport(seg, &Export{Name: exported, Value: nameNode})
			}
		}
		return
	}

	if !fromModule {
		return
	}
	if ns := stmt.ChildOfKind("namespace_export"); ns != nil {
		// export * as name from "mod"
		if name, ok := syntax.PropertyName(ns.FirstNamed()); ok {
			s.setExport(seg, &Export{Name: name, Binding: s.reexport(seg, ns, name, specifier, "*")})
		}
		return
	}
	if stmt.ChildOfKind("*") != nil {
		seg.Stars = append(seg.Stars, &scope.Import{Specifier: specifier, Name: "*", Target: scope.NoTarget})
	}
}

// reexport creates a synthetic import binding for `export { a } from "m"`.
// It is not declared in any scope; only the export entry refers to it.
func (s *Set) reexport(seg *Segment, decl *syntax.Node, name, specifier, imported string) *scope.Binding {
	bnd := &scope.Binding{
		Name:   name,
		Kind:   scope.ImportBinding,
		Decl:   decl,
		Scope:  seg.Scope,
		Import: &scope.Import{Specifier: specifier, Name: imported, Target: scope.NoTarget},
	}
	s.synthetic = append(s.synthetic, bnd)
	return bnd
}

// setExport records an export; later definitions of a name win, as they
// would at runtime.
func (s *Set) setExport(seg *Segment, ex *Export) {
	if ex.Binding == nil && ex.Value == nil {
		return
	}
	seg.Exports[ex.Name] = ex
}

// adoptNamespace copies the getters of `module.exports = __toCommonJS(ns)`
// into the segment's exports.
func (s *Set) adoptNamespace(seg *Segment) {
	value := syntax.Unwrap(seg.ModuleValue)
	for value != nil && value.Kind == "call_expression" {
		args := syntax.Arguments(value)
		if len(args) != 1 {
			return
		}
		value = syntax.Unwrap(args[0])
	}
	if value == nil || value.Kind != "identifier" {
		return
	}
	bnd := seg.Table.Resolve(value)
	if bnd == nil {
		return
	}
	for name, v := range s.namespaces[bnd] {
		if _, exists := seg.Exports[name]; !exists {
			seg.Exports[name] = &Export{Name: name, Value: v}
		}
	}
}

// isModuleExports matches `module.exports` where module is the segment's
// module parameter (or the free `module` global in file segments).
func (s *Set) isModuleExports(seg *Segment, n *syntax.Node) bool {
	if n == nil || n.Kind != "member_expression" {
		return false
	}
	name, ok := syntax.MemberName(n)
	return ok && name == "exports" && s.isModuleObject(seg, syntax.Unwrap(n.ChildByField("object")))
}

// isModuleObject matches the segment's `module` reference.
func (s *Set) isModuleObject(seg *Segment, n *syntax.Node) bool {
	if n == nil || n.Kind != "identifier" {
		return false
	}
	bnd := seg.Table.Resolve(n)
	if seg.moduleParam != nil {
		return bnd == seg.moduleParam
	}
	return seg.IsFile() && bnd == nil && n.Text() == "module"
}

// isExportsObject matches `exports` (the parameter or free global) and
// `module.exports`.
func (s *Set) isExportsObject(seg *Segment, n *syntax.Node) bool {
	if n == nil {
		return false
	}
	if n.Kind == "identifier" {
		bnd := seg.Table.Resolve(n)
		if seg.exportsParam != nil {
			return bnd == seg.exportsParam
		}
		return seg.IsFile() && bnd == nil && n.Text() == "exports"
	}
	return s.isModuleExports(seg, n)
}

// declaredNames returns the identifiers declared by a declaration node.
func declaredNames(decl *syntax.Node) []*syntax.Node {
	switch decl.Kind {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration":
		if name := decl.ChildByField("name"); name != nil {
			return []*syntax.Node{name}
		}
		return nil
	case "lexical_declaration", "variable_declaration":
		var out []*syntax.Node
		for _, d := range decl.NamedChildren() {
			if d.Kind != "variable_declarator" {
				continue
			}
			d.ChildByField("name").Walk(func(n *syntax.Node) bool {
				switch n.Kind {
				case "identifier", "shorthand_property_identifier_pattern":
					if n.Field != "key" {
						out = append(out, n)
					}
				case "assignment_pattern", "object_assignment_pattern":
					if left := n.ChildByField("left"); left != nil {
						left.Walk(func(m *syntax.Node) bool {
							if m.Kind == "identifier" || m.Kind == "shorthand_property_identifier_pattern" {
								out = append(out, m)
							}
							return true
						})
					}
					return false
				}
				return true
			})
		}
		return out
	}
	return nil
}

// GetterValue returns the expression returned by a getter: the body of an
// expression-bodied arrow, or the first return statement of a function.
func GetterValue(fn *syntax.Node) *syntax.Node {
	fn = syntax.Unwrap(fn)
	if !syntax.IsFunction(fn) {
		return nil
	}
	body := fn.ChildByField("body")
	if body == nil {
		return nil
	}
	if body.Kind != "statement_block" {
		return body
	}
	for _, stmt := range body.NamedChildren() {
		if stmt.Kind == "return_statement" {
			return stmt.FirstNamed()
		}
	}
	return nil
}
