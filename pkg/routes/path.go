package routes

import (
	"regexp"
	"strings"
)

// NormalizePath returns p with a single leading slash, no duplicate slashes
// and no trailing slash (except for the root).
func NormalizePath(p string) string {
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return "/" + strings.Join(out, "/")
}

// JoinPath appends p to prefix. Joining the root onto a prefix yields the
// prefix itself.
func JoinPath(prefix, p string) string {
	return NormalizePath(prefix + "/" + p)
}

// openAPIParam matches `{name}` parameters of OpenAPI path templates.
var openAPIParam = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// fromOpenAPI converts `/users/{id}` into `/users/:id`.
func fromOpenAPI(p string) string {
	return openAPIParam.ReplaceAllString(p, ":$1")
}

type segmentKind int

const (
	literalSegment segmentKind = iota
	paramSegment
	optionalSegment
	wildcardSegment
)

type segment struct {
	kind    segmentKind
	literal string
	re      *regexp.Regexp
}

// pattern is a compiled route path.
type pattern struct {
	segments []segment
	// rest is set when the pattern ends in `*` and matches any suffix.
	rest bool
}

// compilePattern parses `:name`, `:name{regex}`, `:name?` and `*` segments.
// An invalid regex constraint makes the segment match any value.
func compilePattern(p string) pattern {
	var pat pattern
	parts := splitPath(p)
	for i, part := range parts {
		switch {
		case part == "*" && i == len(parts)-1:
			pat.rest = true
		case part == "*":
			pat.segments = append(pat.segments, segment{kind: wildcardSegment})
		case strings.HasPrefix(part, ":"):
			seg := segment{kind: paramSegment}
			name := part[1:]
			if open := strings.Index(name, "{"); open >= 0 && strings.HasSuffix(name, "}") {
				if re, err := regexp.Compile("^(?:" + name[open+1:len(name)-1] + ")$"); err == nil {
					seg.re = re
				}
			} else if strings.HasSuffix(name, "?") {
				seg.kind = optionalSegment
			}
			pat.segments = append(pat.segments, seg)
		default:
			pat.segments = append(pat.segments, segment{kind: literalSegment, literal: part})
		}
	}
	return pat
}

// match reports whether a concrete request path matches the pattern.
func (p pattern) match(path string) bool {
	parts := splitPath(path)
	i := 0
	for _, seg := range p.segments {
		if i >= len(parts) {
			if seg.kind == optionalSegment {
				continue
			}
			return false
		}
		switch seg.kind {
		case literalSegment:
			if parts[i] != seg.literal {
				return false
			}
		case paramSegment:
			if seg.re != nil && !seg.re.MatchString(parts[i]) {
				return false
			}
		}
		i++
	}
	return i == len(parts) || p.rest
}

// isStatic reports whether the pattern has no parameters or wildcards.
func (p pattern) isStatic() bool {
	if p.rest {
		return false
	}
	for _, seg := range p.segments {
		if seg.kind != literalSegment {
			return false
		}
	}
	return true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
