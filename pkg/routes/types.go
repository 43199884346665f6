// Package routes collects route registrations and mount edges from router
// method calls, composes mount prefixes and answers route queries.
package routes

import (
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Position is a registration's place in the snapshot: the file index and the
// byte offset of the method name. Inner calls of a chain come first.
type Position struct {
	File   int `json:"file"`
	Offset int `json:"offset"`
}

// Less orders positions by file, then offset.
func (p Position) Less(q Position) bool {
	if p.File != q.File {
		return p.File < q.File
	}
	return p.Offset < q.Offset
}

// Registration is one route method call on a router.
type Registration struct {
	// Method is upper-case; ALL matches every method.
	Method string

	// Path is the normalized path including the router's basePath, but not
	// mount prefixes.
	Path string

	// Handlers are the handler arguments in order; the last one is the
	// canonical handler.
	Handlers []*syntax.Node

	// Router is the construction node of the receiving router.
	Router *syntax.Node

	Call     *syntax.Node
	Position Position

	// Middleware is set for use() registrations, which have no canonical
	// handler.
	Middleware bool

	// Failure is set when the receiver could not be resolved to a router
	// within the hop limit. Router is then the receiver expression.
	Failure *resolve.Failure
}

// Mount is a `.route(prefix, sub)` edge.
type Mount struct {
	From     *syntax.Node
	To       *syntax.Node
	Prefix   string
	Call     *syntax.Node
	Position Position

	// Failure is set when the mounting router did not resolve.
	Failure *resolve.Failure
}

// Entry is one row of the flattened route table: a handler argument at its
// fully prefixed path.
type Entry struct {
	Method string
	Path   string

	Registration *Registration

	// Handler is the index of the handler argument in Registration.Handlers.
	Handler int

	// Middleware marks use() handlers and non-final handler arguments.
	Middleware bool

	// Order is the rank of the entry in the table; lower registers first.
	Order int

	// Mounts lists the mount edges from the outermost router inwards.
	Mounts []*Mount

	// Resolved is the handler's resolution; Failure is set instead when
	// resolution failed.
	Resolved *resolve.Resolution
	Failure  *resolve.Failure

	// key is the sequence of positions from the outermost mount call down
	// to the registration, compared lexicographically.
	key     []Position
	pattern pattern
}

// HandlerExpr returns the handler argument of the entry.
func (e *Entry) HandlerExpr() *syntax.Node {
	return e.Registration.Handlers[e.Handler]
}

// Query selects a route by method and concrete (or pattern) path.
type Query struct {
	Method string
	Path   string

	// Middleware matches middleware instead of canonical handlers.
	Middleware bool
}

// Table is the flattened route table of one snapshot.
//
// Thread Safety:
//   - Built once by Build; read-only afterwards.
type Table struct {
	Entries       []*Entry
	Registrations []*Registration
	Mounts        []*Mount
	Diagnostics   []syntax.Diagnostic
}
