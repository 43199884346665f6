package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/fiberplane/fpx-sub000/pkg/syntax"
)

// ParserManager parses snapshot files into syntax trees. It keeps one
// parser pool per grammar, created on first use, so concurrent callers
// share a bounded number of tree-sitter parsers.
//
// A ParserManager is safe for concurrent use and must be closed to free the
// parsers' C memory. Trees handed out by ParseSource are plain Go values and
// outlive the manager.
//
//	manager := NewParserManager(logger)
//	defer manager.Close()
//
//	file, err := manager.ParseSource(ctx, "src/index.ts", content)
type ParserManager struct {
	mu    sync.Mutex
	pools [len(grammarNames)]*parserPool

	limit  int
	logger *slog.Logger

	parses      atomic.Int64
	parseErrors atomic.Int64
}

// NewParserManager creates a manager with CPU-based pool sizing.
func NewParserManager(logger *slog.Logger) *ParserManager {
	return NewParserManagerWithPoolSize(logger, 0)
}

// NewParserManagerWithPoolSize is NewParserManager with an explicit number
// of parsers per grammar. A size of 0 selects the CPU-based default.
func NewParserManagerWithPoolSize(logger *slog.Logger, poolSize int) *ParserManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParserManager{
		limit:  poolLimit(poolSize),
		logger: logger,
	}
}

// PoolSize returns the number of parsers each grammar pool may hold.
func (pm *ParserManager) PoolSize() int {
	return pm.limit
}

// Parse runs tree-sitter over source and returns the raw tree, which the
// caller must close. Waiting for a free parser ends with ctx.
func (pm *ParserManager) Parse(ctx context.Context, source []byte, grammar Grammar) (*ts.Tree, error) {
	pool, err := pm.pool(grammar)
	if err != nil {
		return nil, err
	}
	pm.parses.Add(1)

	parser, err := pool.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s parser: %w", grammar, err)
	}
	tree := parser.Parse(source, nil)
	pool.release(parser)

	if tree == nil {
		return nil, fmt.Errorf("tree-sitter produced no tree")
	}
	return tree, nil
}

// ParseSource parses one snapshot file into a syntax tree.
//
// Paths without a source extension are parsed as JavaScript since bundles
// are often stored under arbitrary names. A tree with syntax errors is
// still returned with HasErrors set; most registrations in it stay
// resolvable.
func (pm *ParserManager) ParseSource(ctx context.Context, path string, source []byte) (*syntax.File, error) {
	grammar := GrammarFor(path)
	if grammar == GrammarUnknown {
		grammar = GrammarJavaScript
	}

	tree, err := pm.Parse(ctx, source, grammar)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	file := &syntax.File{Path: path, Source: source}
	file.Root = convert(tree, file)
	file.HasErrors = tree.RootNode().HasError()
	if file.HasErrors {
		pm.parseErrors.Add(1)
		pm.logger.Warn("parse tree contains errors", "path", path, "grammar", grammar.String())
	}
	return file, nil
}

func (pm *ParserManager) pool(grammar Grammar) (*parserPool, error) {
	if grammar <= GrammarUnknown || int(grammar) >= len(pm.pools) {
		return nil, fmt.Errorf("cannot parse %s source", grammar)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if p := pm.pools[grammar]; p != nil {
		return p, nil
	}
	p, err := newParserPool(grammar, pm.limit, pm.logger)
	if err != nil {
		return nil, err
	}
	pm.pools[grammar] = p
	return p, nil
}

// Close frees every pooled parser. The manager cannot be used afterwards.
func (pm *ParserManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	created := 0
	for i, p := range pm.pools {
		if p == nil {
			continue
		}
		created += p.drain()
		pm.pools[i] = nil
	}
	pm.logger.Debug("parser manager closed",
		"parsers_created", created,
		"parses", pm.parses.Load())
	return nil
}

// Stats returns parser usage counters.
func (pm *ParserManager) Stats() ParserStats {
	pm.mu.Lock()
	created := 0
	for _, p := range pm.pools {
		if p != nil {
			created += p.created()
		}
	}
	pm.mu.Unlock()

	return ParserStats{
		ParsersCreated: created,
		ParsesCalled:   int(pm.parses.Load()),
		ParseErrors:    int(pm.parseErrors.Load()),
	}
}

// ParserStats contains parser usage counters.
type ParserStats struct {
	ParsersCreated int
	ParsesCalled   int
	// ParseErrors counts files whose tree contained syntax errors.
	ParseErrors int
}
