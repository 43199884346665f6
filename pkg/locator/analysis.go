package locator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/routes"
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
	"github.com/fiberplane/fpx-sub000/pkg/util"
)

// Analysis is the indexed form of one snapshot.
//
// Thread Safety:
//   - Immutable after Analyze; queries may run concurrently.
type Analysis struct {
	Hash        string
	Files       []*syntax.File
	Diagnostics []syntax.Diagnostic

	set             *module.Set
	resolver        *resolve.Resolver
	table           *routes.Table
	rankByWrapDepth bool
	logger          *slog.Logger
}

// Table returns the flattened route table.
func (a *Analysis) Table() *routes.Table {
	return a.table
}

// Segments returns the module segments of the snapshot.
func (a *Analysis) Segments() []*module.Segment {
	return a.set.Segments
}

// Locate answers one query against the analysis.
func (a *Analysis) Locate(ctx context.Context, q Query) Result {
	_, span := tracer.Start(ctx, "locator.Locate", trace.WithAttributes(
		attribute.String("query", q.String()),
	))
	defer span.End()

	res := a.locate(q)
	if res.Failure != nil {
		span.SetStatus(codes.Error, res.Failure.Reason.String())
		span.SetAttributes(attribute.String("failure.reason", res.Failure.Reason.String()))
		a.logger.Debug("query failed", "query", q.String(), "reason", res.Failure.Reason.String(), "detail", res.Failure.Detail)
	} else {
		span.SetAttributes(
			attribute.String("match.span", res.Match.Span.String()),
			attribute.Int("match.wrap_depth", res.Match.WrapDepth),
		)
	}
	return res
}

func (a *Analysis) locate(q Query) Result {
	if f := q.validate(); f != nil {
		return failed(q, f)
	}
	if q.HandlerName != "" {
		return a.locateHandler(q)
	}

	e, err := a.table.Match(routes.Query{Method: q.Method, Path: q.Path, Middleware: q.Middleware}, a.rankByWrapDepth)
	if err != nil {
		return failed(q, resolve.AsFailure(err))
	}
	m := newMatch(e.Resolved)
	m.Method = e.Method
	m.Pattern = e.Path
	return Result{Query: q, Match: m}
}

// locateHandler looks a function up by its declared name. Declarations are
// considered file by file in snapshot order, outermost scopes first; the
// first one that resolves to a function wins.
func (a *Analysis) locateHandler(q Query) Result {
	var (
		found    []*resolve.Resolution
		firstErr error
	)
	for _, file := range a.Files {
		table := a.set.Table(file)
		if table == nil {
			continue
		}
		for _, bnd := range table.Declared(q.HandlerName) {
			if bnd.Kind == scope.ParamBinding {
				continue
			}
			res, err := a.resolver.Binding(bnd)
			if err == nil && res.Kind != resolve.InlineFunction && res.Kind != resolve.NamedFunction {
				err = resolve.Failf(resolve.Unsupported, "%q resolves to a %s, not a function", q.HandlerName, res.Kind)
			}
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			found = append(found, res)
		}
	}

	switch {
	case len(found) == 0 && firstErr != nil:
		return failed(q, resolve.AsFailure(firstErr))
	case len(found) == 0:
		return failed(q, resolve.Failf(resolve.NotFound, "no function named %q is declared", q.HandlerName))
	case !a.rankByWrapDepth || len(found) == 1:
		return Result{Query: q, Match: newMatch(found[0])}
	}

	best := found[:1]
	for _, res := range found[1:] {
		switch {
		case res.WrapDepth < best[0].WrapDepth:
			best = []*resolve.Resolution{res}
		case res.WrapDepth == best[0].WrapDepth && res.Node != best[0].Node:
			best = append(best, res)
		}
	}
	if len(best) == 1 {
		return Result{Query: q, Match: newMatch(best[0])}
	}
	f := resolve.Failf(resolve.AmbiguousMatch, "%d functions named %q with wrap depth %d", len(best), q.HandlerName, best[0].WrapDepth)
	for _, res := range best {
		f.Candidates = append(f.Candidates, res.Node.Span)
	}
	return failed(q, f)
}

// LocateAll answers several queries concurrently. Results are in query
// order.
func (a *Analysis) LocateAll(ctx context.Context, qs []Query) []Result {
	out := make([]Result, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(util.GetOptimalPoolSize())
	for i, q := range qs {
		g.Go(func() error {
			out[i] = a.Locate(gctx, q)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Routes lists every table entry with its resolved handler or failure.
func (a *Analysis) Routes() []Route {
	out := make([]Route, 0, len(a.table.Entries))
	for _, e := range a.table.Entries {
		r := Route{
			Method:     e.Method,
			Path:       e.Path,
			Middleware: e.Middleware,
			Order:      e.Order,
			Failure:    e.Failure,
		}
		if e.Resolved != nil {
			r.Handler = newMatch(e.Resolved)
			r.Handler.Method = e.Method
			r.Handler.Pattern = e.Path
		}
		out = append(out, r)
	}
	return out
}
