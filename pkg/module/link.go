package module

import (
	"fmt"
	"path"
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// probeExtensions are appended to extensionless relative specifiers.
var probeExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts"}

// link sets Import.Target on every import binding, synthetic re-export and
// star export.
func (s *Set) link(tables []*scope.Table) {
	for _, t := range tables {
		for _, bnd := range t.Imports() {
			s.linkImport(s.Enclosing(bnd.Decl), bnd.Import, bnd.Decl)
		}
	}
	for _, bnd := range s.synthetic {
		s.linkImport(s.Enclosing(bnd.Decl), bnd.Import, bnd.Decl)
	}
	for _, seg := range s.Segments {
		for _, star := range seg.Stars {
			s.linkImport(seg, star, seg.Root)
		}
	}
}

func (s *Set) linkImport(from *Segment, imp *scope.Import, at *syntax.Node) {
	target := s.Link(from, imp.Specifier)
	if target == nil {
		imp.Target = scope.NoTarget
		if isRelative(imp.Specifier) {
			s.Diagnostics = append(s.Diagnostics, syntax.Diagnostic{
				Severity: syntax.SeverityWarning,
				Message:  fmt.Sprintf("relative import %q matches no module in the snapshot", imp.Specifier),
				Span:     at.Span,
			})
		}
		return
	}
	imp.Target = target.ID
}

// Link finds the segment a specifier names when imported from from.
//
// Matching order: the exact key, then for relative specifiers the path
// joined onto from's key with extension and index probing, then for bare
// specifiers a vendored copy under node_modules/<specifier>/.
// Returns nil when nothing matches.
func (s *Set) Link(from *Segment, specifier string) *Segment {
	if specifier == "" {
		return nil
	}
	if seg, ok := s.byKey[specifier]; ok {
		return seg
	}

	if isRelative(specifier) {
		base := "."
		if from != nil {
			base = path.Dir(cleanKey(from.Key))
		}
		for _, cand := range candidates(path.Join(base, specifier)) {
			if seg, ok := s.byKey[cand]; ok {
				return seg
			}
		}
		return nil
	}

	if strings.HasPrefix(specifier, "/") {
		for _, cand := range candidates(path.Clean(specifier)) {
			if seg, ok := s.byKey[cand]; ok {
				return seg
			}
		}
		return nil
	}

	return s.vendored(specifier)
}

// vendored picks the entry module of a bundled package: the shallowest
// index file under node_modules/<pkg>/, else the first key in sort order.
func (s *Set) vendored(specifier string) *Segment {
	marker := "node_modules/" + specifier + "/"
	var best string
	bestDepth := -1
	for _, key := range s.keys {
		i := strings.Index(key, marker)
		if i < 0 || (i > 0 && key[i-1] != '/') {
			continue
		}
		rest := key[i+len(marker):]
		if strings.Contains(rest[strings.LastIndex(rest, "/")+1:], "index.") {
			depth := strings.Count(rest, "/")
			if bestDepth < 0 || depth < bestDepth {
				best, bestDepth = key, depth
			}
			continue
		}
		if best == "" {
			best = key
		}
	}
	if best == "" {
		return nil
	}
	return s.byKey[best]
}

// candidates lists the keys a resolved relative path may be stored under.
func candidates(p string) []string {
	out := []string{p}
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	switch ext {
	case ".js", ".jsx", ".mjs", ".cjs":
		// TypeScript sources import their siblings with .js extensions.
		for _, e := range probeExtensions {
			out = append(out, stem+e)
		}
	}
	for _, e := range probeExtensions {
		out = append(out, p+e)
	}
	for _, e := range probeExtensions {
		out = append(out, p+"/index"+e)
	}
	return out
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// cleanKey normalizes a module key: forward slashes, no leading "./".
func cleanKey(key string) string {
	key = strings.ReplaceAll(key, "\\", "/")
	cleaned := path.Clean(key)
	return strings.TrimPrefix(cleaned, "./")
}
