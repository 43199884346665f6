package routes

import (
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// Candidates returns the entries matching q in table order. For handler
// queries exact path matches win over parameterized ones; middleware
// queries return every layer that applies. ALL entries match every method.
func (t *Table) Candidates(q Query) []*Entry {
	method := strings.ToUpper(q.Method)
	path := NormalizePath(q.Path)

	var all, exact []*Entry
	for _, e := range t.Entries {
		if e.Middleware != q.Middleware {
			continue
		}
		if e.Method != method && e.Method != "ALL" && method != "ALL" {
			continue
		}
		switch {
		case e.Path == path:
			exact = append(exact, e)
			all = append(all, e)
		case !e.pattern.isStatic() && e.pattern.match(path):
			all = append(all, e)
		}
	}
	if !q.Middleware && len(exact) > 0 {
		return exact
	}
	return all
}

// Match selects the entry answering q.
//
// By default the lowest order wins, mirroring first-match routing. With
// rankByWrapDepth the candidate with the fewest unwound wrappers wins and
// remaining ties are reported as AmbiguousMatch. A selected entry whose
// handler did not resolve yields that resolution failure.
func (t *Table) Match(q Query, rankByWrapDepth bool) (*Entry, error) {
	cands := t.Candidates(q)
	if len(cands) == 0 {
		kind := "route"
		if q.Middleware {
			kind = "middleware"
		}
		return nil, resolve.Failf(resolve.NotFound, "no %s matches %s %s", kind, strings.ToUpper(q.Method), NormalizePath(q.Path))
	}

	if !rankByWrapDepth {
		return settle(cands[0])
	}

	var best []*Entry
	for _, e := range cands {
		if e.Resolved == nil {
			continue
		}
		switch {
		case len(best) == 0 || e.Resolved.WrapDepth < best[0].Resolved.WrapDepth:
			best = []*Entry{e}
		case e.Resolved.WrapDepth == best[0].Resolved.WrapDepth:
			best = append(best, e)
		}
	}
	switch len(best) {
	case 0:
		return settle(cands[0])
	case 1:
		return best[0], nil
	}

	f := resolve.Failf(resolve.AmbiguousMatch, "%d handlers match %s %s with wrap depth %d",
		len(best), strings.ToUpper(q.Method), NormalizePath(q.Path), best[0].Resolved.WrapDepth)
	for _, e := range best {
		f.Candidates = append(f.Candidates, e.Resolved.Node.Span)
	}
	return nil, f
}

func settle(e *Entry) (*Entry, error) {
	if e.Failure != nil {
		return nil, e.Failure
	}
	return e, nil
}

// ForRouter returns the entries registered on a router, in table order.
func (t *Table) ForRouter(router *syntax.Node) []*Entry {
	var out []*Entry
	for _, e := range t.Entries {
		if e.Registration.Router == router {
			out = append(out, e)
		}
	}
	return out
}
