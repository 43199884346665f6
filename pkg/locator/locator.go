// Package locator is the entry point of route source location: it parses a
// snapshot, builds the scope, module and route tables, and answers route and
// handler queries with a span or a typed failure.
package locator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fiberplane/fpx-sub000/pkg/module"
	"github.com/fiberplane/fpx-sub000/pkg/parser"
	"github.com/fiberplane/fpx-sub000/pkg/resolve"
	"github.com/fiberplane/fpx-sub000/pkg/routes"
	"github.com/fiberplane/fpx-sub000/pkg/scope"
	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

var tracer = otel.Tracer("github.com/fiberplane/fpx-sub000/pkg/locator")

// Locator analyzes snapshots and answers queries against them.
//
// Analyses are immutable and cached by snapshot hash, so repeated queries
// against an unchanged snapshot skip parsing entirely.
//
// Thread Safety:
//   - All methods are safe for concurrent use
//   - Concurrent Analyze calls for the same snapshot share one analysis
//   - Statistics use atomic counters
//
// Usage:
//
//	loc, err := locator.New(locator.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer loc.Close()
//
//	res := loc.Locate(ctx, snapshot, locator.Query{Method: "GET", Path: "/users/:id"})
type Locator struct {
	config  Config
	parsers *parser.ParserManager
	cache   *lru.Cache[string, *Analysis]
	group   singleflight.Group
	logger  *slog.Logger

	analyses    atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	evictions   atomic.Int64
}

// New creates a Locator. Zero-valued options fall back to DefaultConfig.
// The locator must be closed to release its parsers.
func New(config Config) (*Locator, error) {
	defaults := DefaultConfig()
	if len(config.Signatures.RouterFactories) == 0 {
		config.Signatures = defaults.Signatures
	}
	if config.MaxHops <= 0 {
		config.MaxHops = defaults.MaxHops
	}
	if config.CacheSize <= 0 {
		config.CacheSize = defaults.CacheSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &Locator{
		config:  config,
		parsers: parser.NewParserManagerWithPoolSize(logger, config.PoolSize),
		logger:  logger,
	}

	cache, err := lru.NewWithEvict(config.CacheSize, func(hash string, a *Analysis) {
		l.evictions.Add(1)
		logger.Debug("evicting analysis", "hash", hash[:12], "files", len(a.Files))
	})
	if err != nil {
		l.parsers.Close()
		return nil, fmt.Errorf("failed to create analysis cache: %w", err)
	}
	l.cache = cache

	return l, nil
}

// Locate analyzes snap (or reuses a cached analysis) and answers q. It never
// returns an error: every failure is reported in the result.
func (l *Locator) Locate(ctx context.Context, snap Snapshot, q Query) Result {
	if f := q.validate(); f != nil {
		return failed(q, f)
	}
	a, err := l.Analyze(ctx, snap)
	if err != nil {
		return failed(q, resolve.AsFailure(err))
	}
	return a.Locate(ctx, q)
}

// Analyze parses and indexes snap. Errors are *resolve.Failure values with
// reason InvalidInput.
func (l *Locator) Analyze(ctx context.Context, snap Snapshot) (*Analysis, error) {
	if len(snap.Files) == 0 {
		return nil, resolve.Failf(resolve.InvalidInput, "snapshot contains no files")
	}

	hash := snap.Hash()
	if a, ok := l.cache.Get(hash); ok {
		l.cacheHits.Add(1)
		l.logger.Debug("analysis cache hit", "hash", hash[:12])
		return a, nil
	}
	l.cacheMisses.Add(1)

	// The analysis is shared by every caller waiting on the hash, so it
	// runs detached from the first caller's cancellation; each caller
	// stops waiting on its own context instead.
	detached := context.WithoutCancel(ctx)
	ch := l.group.DoChan(hash, func() (any, error) {
		if a, ok := l.cache.Get(hash); ok {
			return a, nil
		}
		a, err := l.analyze(detached, snap, hash)
		if err != nil {
			return nil, err
		}
		l.cache.Add(hash, a)
		return a, nil
	})
	select {
	case <-ctx.Done():
		return nil, resolve.Failf(resolve.InvalidInput, "analysis cancelled: %v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			l.logger.Debug("shared in-flight analysis", "hash", hash[:12])
		}
		return res.Val.(*Analysis), nil
	}
}

func (l *Locator) analyze(ctx context.Context, snap Snapshot, hash string) (*Analysis, error) {
	ctx, span := tracer.Start(ctx, "locator.Analyze", trace.WithAttributes(
		attribute.Int("files", len(snap.Files)),
		attribute.String("hash", hash),
	))
	defer span.End()

	start := time.Now()

	seen := make(map[string]bool, len(snap.Files))
	for _, src := range snap.Files {
		if src.Path == "" {
			return nil, l.invalid(span, resolve.Failf(resolve.InvalidInput, "snapshot file without a path"))
		}
		if seen[src.Path] {
			return nil, l.invalid(span, resolve.Failf(resolve.InvalidInput, "snapshot lists %s twice", src.Path))
		}
		seen[src.Path] = true
	}

	files := make([]*syntax.File, len(snap.Files))
	tables := make([]*scope.Table, len(snap.Files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parsers.PoolSize())
	for i, src := range snap.Files {
		g.Go(func() error {
			file, err := l.parsers.ParseSource(gctx, src.Path, src.Content)
			if err != nil {
				return err
			}
			file.Index = i
			files[i] = file
			tables[i] = scope.Build(file, l.logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, l.invalid(span, resolve.Failf(resolve.InvalidInput, "failed to parse snapshot: %v", err))
	}

	set := module.Resolve(tables, l.config.Signatures.Loaders, l.logger)
	r := resolve.New(set, l.config.Signatures, l.config.MaxHops, l.logger)
	table := routes.Build(set, r, l.logger)

	a := &Analysis{
		Hash:            hash,
		Files:           files,
		set:             set,
		resolver:        r,
		table:           table,
		rankByWrapDepth: l.config.RankByWrapDepth,
		logger:          l.logger,
	}
	for i, file := range files {
		if file.HasErrors {
			a.Diagnostics = append(a.Diagnostics, syntax.Diagnostic{
				Severity: syntax.SeverityWarning,
				Message:  "file contains syntax errors; analysis uses the partial tree",
				Span:     file.Root.Span,
			})
		}
		a.Diagnostics = append(a.Diagnostics, tables[i].Diagnostics...)
	}
	a.Diagnostics = append(a.Diagnostics, set.Diagnostics...)
	a.Diagnostics = append(a.Diagnostics, table.Diagnostics...)

	l.analyses.Add(1)
	span.SetAttributes(
		attribute.Int("segments", len(set.Segments)),
		attribute.Int("routes", len(table.Entries)),
	)
	l.logger.Debug("snapshot analyzed",
		"hash", hash[:12],
		"files", len(files),
		"segments", len(set.Segments),
		"routes", len(table.Entries),
		"diagnostics", len(a.Diagnostics),
		"duration", time.Since(start))

	return a, nil
}

func (l *Locator) invalid(span trace.Span, f *resolve.Failure) *resolve.Failure {
	span.RecordError(f)
	span.SetStatus(codes.Error, f.Detail)
	l.logger.Debug("snapshot rejected", "detail", f.Detail)
	return f
}

// Stats returns cache and parser counters.
func (l *Locator) Stats() Stats {
	ps := l.parsers.Stats()
	return Stats{
		Analyses:       l.analyses.Load(),
		CacheHits:      l.cacheHits.Load(),
		CacheMisses:    l.cacheMisses.Load(),
		Evictions:      l.evictions.Load(),
		CachedAnalyses: l.cache.Len(),
		ParsesCalled:   ps.ParsesCalled,
		ParseErrors:    ps.ParseErrors,
	}
}

// Purge drops every cached analysis.
func (l *Locator) Purge() {
	l.cache.Purge()
}

// Close releases the parser pools. The locator cannot be used afterwards.
func (l *Locator) Close() error {
	stats := l.Stats()
	l.cache.Purge()
	if err := l.parsers.Close(); err != nil {
		return fmt.Errorf("failed to close parsers: %w", err)
	}
	l.logger.Info("locator closed", "stats", stats.String())
	return nil
}
