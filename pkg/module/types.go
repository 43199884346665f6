package module

import (
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Kind is the module convention a segment was written in.
type Kind int

const (
	// CommonJSStyle segments export through module.exports / exports.X.
	CommonJSStyle Kind = iota
	// StaticStyle segments use import/export declarations (or an ESM
	// wrapper emitted by a bundler).
	StaticStyle
	// InlineScript segments export nothing.
	InlineScript
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case CommonJSStyle:
		return "commonjs"
	case StaticStyle:
		return "static"
	case InlineScript:
		return "inline"
	default:
		return "unknown"
	}
}

// Segment is one logical module: a whole file, or one factory function of
// a bundler's module table.
type Segment struct {
	ID   int
	Key  string
	Kind Kind

	File  *syntax.File
	Table *scope.Table

	// Root is the program node for file segments and the factory function
	// for bundled segments.
	Root  *syntax.Node
	Scope *scope.Scope

	// Exports maps exported names to their definitions.
	Exports map[string]*Export

	// Stars are `export * from` re-exports, searched in order when a name
	// is missing from Exports.
	Stars []*scope.Import

	// ModuleValue is the expression assigned to module.exports, if any.
	ModuleValue *syntax.Node

	// Factory is the loader call or table entry that registered the
	// segment. Nil for file segments.
	Factory *syntax.Node

	exportsParam *scope.Binding
	moduleParam  *scope.Binding
}

// IsFile reports whether the segment spans a whole file.
func (s *Segment) IsFile() bool {
	return s.Factory == nil
}

// Export is one exported name. Exactly one of Binding and Value is set.
type Export struct {
	Name string

	// Binding is the local (or synthetic re-export) binding.
	Binding *scope.Binding

	// Value is an expression evaluated in the segment, e.g. the right-hand
	// side of `exports.X = ...` or the body of an export getter.
	Value *syntax.Node
}

// Loaders names the bundler runtime helpers that shape module tables.
// Names are compared after stripping the numeric suffix bundlers append
// on collisions (`__export2`, `require$1`).
type Loaders struct {
	// FactoryHelpers wrap a single-entry factory object:
	// `var require_x = __commonJS({ "key"(exports, module) {...} })`.
	FactoryHelpers []string `yaml:"factoryHelpers"`

	// StaticFactoryHelpers are factory helpers whose segments use the
	// static convention (esbuild's __esm).
	StaticFactoryHelpers []string `yaml:"staticFactoryHelpers"`

	// ModuleTables are variables holding a key → factory object, with
	// factories taking (module, exports, require).
	ModuleTables []string `yaml:"moduleTables"`

	// RequireFunctions load a segment by specifier.
	RequireFunctions []string `yaml:"requireFunctions"`

	// ExportHelpers define getters on an exports object:
	// `__export(target, { name: () => value })`.
	ExportHelpers []string `yaml:"exportHelpers"`
}

// DefaultLoaders returns the esbuild and webpack runtime helper names.
func DefaultLoaders() Loaders {
	return Loaders{
		FactoryHelpers:       []string{"__commonJS"},
		StaticFactoryHelpers: []string{"__esm"},
		ModuleTables:         []string{"__webpack_modules__"},
		RequireFunctions:     []string{"require", "__require", "__webpack_require__"},
		ExportHelpers:        []string{"__export", "__webpack_require__.d"},
	}
}

// Merge returns l with the names of other appended.
func (l Loaders) Merge(other Loaders) Loaders {
	l.FactoryHelpers = appendNew(l.FactoryHelpers, other.FactoryHelpers)
	l.StaticFactoryHelpers = appendNew(l.StaticFactoryHelpers, other.StaticFactoryHelpers)
	l.ModuleTables = appendNew(l.ModuleTables, other.ModuleTables)
	l.RequireFunctions = appendNew(l.RequireFunctions, other.RequireFunctions)
	l.ExportHelpers = appendNew(l.ExportHelpers, other.ExportHelpers)
	return l
}

func appendNew(dst, src []string) []string {
	out := append([]string(nil), dst...)
	for _, s := range src {
		if !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
