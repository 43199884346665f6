// Package syntax holds the immutable syntax tree consumed by the analysis
// packages.
//
// Trees are produced by pkg/parser from tree-sitter parse trees. Converting
// into plain Go values lets the CGO tree be released right after parsing and
// makes concurrent read-only traversal safe.
package syntax

import (
	"fmt"
)

// Span is a source range. Lines and columns are 1-based, byte offsets are
// 0-based with EndByte exclusive.
type Span struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
	StartByte int    `json:"startByte"`
	EndByte   int    `json:"endByte"`
}

// String formats the span as file:line:col.
func (s Span) String() string {
	return fmt.Sprintf("%s:%d:%d", s.File, s.StartLine, s.StartCol)
}

// Contains reports whether other lies within s.
func (s Span) Contains(other Span) bool {
	return s.File == other.File && s.StartByte <= other.StartByte && other.EndByte <= s.EndByte
}

// File is one parsed source file of a snapshot.
type File struct {
	// Path is the snapshot path of the file (also its default segment key).
	Path string

	// Index is the position of the file in the snapshot. Registration order
	// is derived from (Index, byte offset).
	Index int

	// Source is the raw file content. Never mutated after parsing.
	Source []byte

	// Root is the program node.
	Root *Node

	// HasErrors is set when the parser produced ERROR or MISSING nodes.
	HasErrors bool
}

// Slice returns the source text between two byte offsets.
func (f *File) Slice(start, end int) string {
	if start < 0 || end > len(f.Source) || start > end {
		return ""
	}
	return string(f.Source[start:end])
}

// Node is one syntax node. Comments are not part of the tree.
type Node struct {
	// Kind is the grammar node kind (e.g. "call_expression").
	Kind string

	// Field is the field name under which the node hangs off its parent,
	// empty when the grammar assigns none.
	Field string

	// Named is false for anonymous tokens such as punctuation and keywords.
	Named bool

	Span     Span
	Parent   *Node
	Children []*Node

	file *File
}

// NewNode creates a detached node. Used by the parser when building trees.
func NewNode(file *File, kind, field string, named bool, span Span) *Node {
	return &Node{Kind: kind, Field: field, Named: named, Span: span, file: file}
}

// Append attaches child as the last child of n.
func (n *Node) Append(child *Node) {
	child.Parent = n
	n.Children = append(n.Children, child)
}

// File returns the file the node belongs to.
func (n *Node) File() *File {
	return n.file
}

// Text returns the source text covered by the node.
func (n *Node) Text() string {
	if n == nil || n.file == nil {
		return ""
	}
	return n.file.Slice(n.Span.StartByte, n.Span.EndByte)
}

// ChildByField returns the first child hanging off the given field.
func (n *Node) ChildByField(field string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns every child hanging off the given field.
func (n *Node) ChildrenByField(field string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// NamedChildren returns the named children in source order.
func (n *Node) NamedChildren() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Named {
			out = append(out, c)
		}
	}
	return out
}

// FirstNamed returns the first named child, or nil.
func (n *Node) FirstNamed() *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Named {
			return c
		}
	}
	return nil
}

// ChildOfKind returns the first child (named or anonymous) of the given kind.
func (n *Node) ChildOfKind(kind string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants in pre-order. Returning false from
// visit skips the node's children. The traversal uses an explicit stack so
// deeply nested bundles cannot exhaust the goroutine stack.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil {
		return
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(cur) {
			continue
		}
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
}

// Encloses reports whether other is n or one of its descendants.
func (n *Node) Encloses(other *Node) bool {
	for p := other; p != nil; p = p.Parent {
		if p == n {
			return true
		}
	}
	return false
}

// Ancestor returns the nearest strict ancestor whose kind is one of kinds.
func (n *Node) Ancestor(kinds ...string) *Node {
	for p := n.Parent; p != nil; p = p.Parent {
		for _, k := range kinds {
			if p.Kind == k {
				return p
			}
		}
	}
	return nil
}
