package parser

import (
	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// skippedKinds are extra nodes that may appear anywhere in the tree and
// would otherwise shift positional child access.
var skippedKinds = map[string]bool{
	"comment":      true,
	"html_comment": true,
}

// convert copies a tree-sitter tree into a syntax tree owned by file.
//
// The walk uses a TreeCursor so field names are available for every child
// and so deep bundles do not recurse on the Go stack.
func convert(tree *ts.Tree, file *syntax.File) *syntax.Node {
	cursor := tree.Walk()
	defer cursor.Close()

	root := newSyntaxNode(cursor.Node(), "", file)
	if !cursor.GotoFirstChild() {
		return root
	}

	parent := root
	for {
		n := cursor.Node()
		if !skippedKinds[n.Kind()] {
			child := newSyntaxNode(n, cursor.FieldName(), file)
			parent.Append(child)
			if cursor.GotoFirstChild() {
				parent = child
				continue
			}
		}

		for !cursor.GotoNextSibling() {
			if !cursor.GotoParent() || parent.Parent == nil {
				return root
			}
			parent = parent.Parent
		}
	}
}

func newSyntaxNode(n *ts.Node, field string, file *syntax.File) *syntax.Node {
	start := n.StartPosition()
	end := n.EndPosition()
	span := syntax.Span{
		File:      file.Path,
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
	}
	return syntax.NewNode(file, n.Kind(), field, n.IsNamed(), span)
}
