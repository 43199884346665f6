package syntax

import (
	"regexp"
	"strings"
)

// Function-like node kinds across the JavaScript and TypeScript grammars.
var functionKinds = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

// IsFunction reports whether n is a function or arrow literal, a function
// declaration or a method definition.
func IsFunction(n *Node) bool {
	return n != nil && functionKinds[n.Kind]
}

// IsClass reports whether n is a class declaration or class expression.
func IsClass(n *Node) bool {
	return n != nil && (n.Kind == "class_declaration" || n.Kind == "class" || n.Kind == "abstract_class_declaration")
}

// Unwrap strips parentheses and TypeScript-only expression wrappers
// (as, satisfies, non-null assertion, angle-bracket assertion). A sequence
// expression yields its last operand, which covers the `(0, fn)` idiom.
func Unwrap(n *Node) *Node {
	for n != nil {
		switch n.Kind {
		case "parenthesized_expression":
			n = n.FirstNamed()
		case "as_expression", "satisfies_expression", "non_null_expression":
			n = n.FirstNamed()
		case "type_assertion":
			named := n.NamedChildren()
			if len(named) == 0 {
				return n
			}
			n = named[len(named)-1]
		case "sequence_expression":
			named := n.NamedChildren()
			if len(named) == 0 {
				return n
			}
			n = named[len(named)-1]
		default:
			return n
		}
	}
	return n
}

// StringValue returns the literal value of a string or a template literal
// without substitutions. Escape sequences are kept as written.
func StringValue(n *Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case "string":
		text := n.Text()
		if len(text) < 2 {
			return "", false
		}
		return text[1 : len(text)-1], true
	case "template_string":
		if n.ChildOfKind("template_substitution") != nil {
			return "", false
		}
		text := n.Text()
		if len(text) < 2 {
			return "", false
		}
		return text[1 : len(text)-1], true
	}
	return "", false
}

// PropertyName returns the static name of an object key, member property or
// import/export name node.
func PropertyName(n *Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case "property_identifier", "identifier", "shorthand_property_identifier",
		"private_property_identifier", "type_identifier", "statement_identifier":
		return n.Text(), true
	case "string", "template_string":
		return StringValue(n)
	case "number":
		return n.Text(), true
	}
	return "", false
}

// Arguments returns the argument expressions of a call or new expression.
func Arguments(call *Node) []*Node {
	args := call.ChildByField("arguments")
	if args == nil {
		return nil
	}
	return args.NamedChildren()
}

// CalleeName returns the textual callee of a call expression with
// surrounding parentheses and `(0, fn)` wrappers removed.
func CalleeName(call *Node) string {
	callee := Unwrap(call.ChildByField("function"))
	if callee == nil {
		return ""
	}
	return strings.TrimSpace(callee.Text())
}

var renameSuffix = regexp.MustCompile(`(\$\d+|\d+)$`)

// BaseName strips the numeric suffix bundlers append to colliding names,
// so `Hono2` and `Hono$1` both yield `Hono`.
func BaseName(name string) string {
	return renameSuffix.ReplaceAllString(name, "")
}

// MemberName returns the static property of a member or subscript
// expression.
func MemberName(n *Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case "member_expression":
		return PropertyName(n.ChildByField("property"))
	case "subscript_expression":
		return PropertyName(Unwrap(n.ChildByField("index")))
	}
	return "", false
}

// ObjectMembers maps the static keys of an object literal to their value
// expressions. Shorthand properties map to the identifier, methods to the
// method itself. Computed keys and spreads are skipped.
func ObjectMembers(obj *Node) map[string]*Node {
	out := make(map[string]*Node)
	for _, m := range obj.NamedChildren() {
		switch m.Kind {
		case "pair":
			if key, ok := PropertyName(m.ChildByField("key")); ok {
				out[key] = m.ChildByField("value")
			}
		case "shorthand_property_identifier":
			out[m.Text()] = m
		case "method_definition":
			if key, ok := PropertyName(m.ChildByField("name")); ok {
				out[key] = m
			}
		}
	}
	return out
}
