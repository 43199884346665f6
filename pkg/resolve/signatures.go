package resolve

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Signature names an exported function or class.
//
// A reference to an external module matches when the module is Module or
// one of its subpaths. A definition inside the snapshot, or a global,
// matches by export name alone, whatever Module says: bundlers inline
// vendored packages and erase the module a definition came from, so a
// bundled `var Hono2 = class {...}` must still count as hono's Hono. The
// flip side is that a local `function instrument(fn)` is taken for the
// instrumentation wrapper too. Signatures with an empty Module only ever
// match local definitions.
type Signature struct {
	Module string `yaml:"module"`
	Export string `yaml:"export"`
}

// Matches reports whether id refers to the signature. External modules
// match by prefix, so "hono" also covers "hono/tiny"; local definitions
// match by name.
func (s Signature) Matches(id Identity) bool {
	if syntax.BaseName(id.Export) != s.Export {
		return false
	}
	if id.Local {
		return true
	}
	return s.Module != "" && (id.Module == s.Module || strings.HasPrefix(id.Module, s.Module+"/"))
}

// String formats the signature as module#export.
func (s Signature) String() string {
	if s.Module == "" {
		return s.Export
	}
	return s.Module + "#" + s.Export
}

// Wrapper is an identity-preserving higher-order function: it returns a
// value that behaves like its argument.
type Wrapper struct {
	Signature `yaml:",inline"`

	// Arg is the index of the wrapped argument.
	Arg int `yaml:"arg"`

	// EscapeHatches are properties of the wrapped value that expose the
	// original argument; accessing one is equivalent to the argument.
	EscapeHatches []string `yaml:"escapeHatches"`
}

// Signatures is the allow-list driving router detection and wrapper
// unwinding.
type Signatures struct {
	// RouterFactories construct routers (`new Hono()`).
	RouterFactories []Signature `yaml:"routerFactories"`

	Wrappers []Wrapper `yaml:"wrappers"`

	// RouteMethods register a handler for the method of the same name.
	RouteMethods []string `yaml:"routeMethods"`

	// ChainMethods return their receiver, so `app.get(...).post(...)`
	// registers both routes on app.
	ChainMethods []string `yaml:"chainMethods"`

	// BasePathMethods derive a router whose routes carry a prefix.
	BasePathMethods []string `yaml:"basePathMethods"`

	Loaders module.Loaders `yaml:"loaders"`
}

// DefaultSignatures returns the built-in allow-list for Hono applications,
// the Fiberplane instrumentation wrapper and esbuild interop helpers.
func DefaultSignatures() Signatures {
	return Signatures{
		RouterFactories: []Signature{
			{Module: "hono", Export: "Hono"},
			{Module: "@hono/zod-openapi", Export: "OpenAPIHono"},
		},
		Wrappers: []Wrapper{
			{Signature: Signature{Module: "@fiberplane/hono-otel", Export: "instrument"}},
			{Signature: Signature{Module: "chanfana", Export: "fromHono"}},
			{Signature: Signature{Module: "@hono/zod-openapi", Export: "createRoute"}},
			{Signature: Signature{Export: "Proxy"}},
			{Signature: Signature{Export: "__toESM"}},
			{Signature: Signature{Export: "__toCommonJS"}},
		},
		RouteMethods:    []string{"get", "post", "put", "delete", "patch", "options", "all"},
		ChainMethods:    []string{"on", "use", "route", "mount", "openapi", "onError", "notFound"},
		BasePathMethods: []string{"basePath"},
		Loaders:         module.DefaultLoaders(),
	}
}

// Merge returns s extended with the entries of other.
func (s Signatures) Merge(other Signatures) Signatures {
	out := s
	out.RouterFactories = append(append([]Signature(nil), s.RouterFactories...), other.RouterFactories...)
	out.Wrappers = append(append([]Wrapper(nil), s.Wrappers...), other.Wrappers...)
	out.RouteMethods = mergeNames(s.RouteMethods, other.RouteMethods)
	out.ChainMethods = mergeNames(s.ChainMethods, other.ChainMethods)
	out.BasePathMethods = mergeNames(s.BasePathMethods, other.BasePathMethods)
	out.Loaders = s.Loaders.Merge(other.Loaders)
	return out
}

// LoadSignatures reads a YAML signature file and merges it over the
// defaults. An empty path returns the defaults.
func LoadSignatures(path string) (Signatures, error) {
	defaults := DefaultSignatures()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Signatures{}, fmt.Errorf("failed to read signatures: %w", err)
	}

	var extra Signatures
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Signatures{}, fmt.Errorf("failed to parse signatures %s: %w", path, err)
	}
	if err := extra.validate(); err != nil {
		return Signatures{}, fmt.Errorf("invalid signatures %s: %w", path, err)
	}

	return defaults.Merge(extra), nil
}

func (s Signatures) validate() error {
	for i, f := range s.RouterFactories {
		if f.Export == "" {
			return fmt.Errorf("routerFactories[%d]: export is required", i)
		}
	}
	for i, w := range s.Wrappers {
		if w.Export == "" {
			return fmt.Errorf("wrappers[%d]: export is required", i)
		}
		if w.Arg < 0 {
			return fmt.Errorf("wrappers[%d]: arg must not be negative", i)
		}
	}
	return nil
}

// IsRouteMethod reports whether name registers a route.
func (s Signatures) IsRouteMethod(name string) bool {
	return hasName(s.RouteMethods, name)
}

// returnsReceiver reports whether a method call evaluates to its receiver.
func (s Signatures) returnsReceiver(name string) bool {
	return hasName(s.RouteMethods, name) || hasName(s.ChainMethods, name)
}

func (s Signatures) isBasePath(name string) bool {
	return hasName(s.BasePathMethods, name)
}

func (s Signatures) routerFactory(id Identity) bool {
	for _, f := range s.RouterFactories {
		if f.Matches(id) {
			return true
		}
	}
	return false
}

func (s Signatures) wrapper(id Identity) (Wrapper, bool) {
	for _, w := range s.Wrappers {
		if w.Matches(id) {
			return w, true
		}
	}
	return Wrapper{}, false
}

func mergeNames(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, name := range b {
		if !hasName(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func hasName(list []string, name string) bool {
	for _, v := range list {
		if v == name {
			return true
		}
	}
	return false
}
