package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"

	"github.com/fiberplane/fpx-sub000/pkg/util"
)

// parserPool lends out parsers for a single grammar.
//
// Idle parsers wait in a buffered channel. A borrower that finds it empty
// creates a parser while the pool is below its limit and otherwise blocks
// until another borrower gives one back or its context ends.
type parserPool struct {
	grammar Grammar
	lang    *ts.Language
	idle    chan *ts.Parser
	limit   int

	mu   sync.Mutex
	made int

	logger *slog.Logger
}

// poolLimit is the number of parsers kept per grammar. It follows
// util.GetOptimalPoolSize unless overridden, which keeps the locator's
// parse fan-out from queueing on parsers.
func poolLimit(override int) int {
	return util.GetOptimalPoolSizeWithOverride(override)
}

func newParserPool(grammar Grammar, limit int, logger *slog.Logger) (*parserPool, error) {
	lang, err := grammar.language()
	if err != nil {
		return nil, err
	}
	return &parserPool{
		grammar: grammar,
		lang:    lang,
		idle:    make(chan *ts.Parser, limit),
		limit:   limit,
		logger:  logger,
	}, nil
}

func (p *parserPool) acquire(ctx context.Context) (*ts.Parser, error) {
	select {
	case parser := <-p.idle:
		return parser, nil
	default:
	}

	if parser, err := p.grow(); parser != nil || err != nil {
		return parser, err
	}

	select {
	case parser := <-p.idle:
		return parser, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// grow makes a new parser, or returns nil when the limit is reached.
func (p *parserPool) grow() (*ts.Parser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.made >= p.limit {
		return nil, nil
	}

	parser := ts.NewParser()
	if parser == nil {
		return nil, fmt.Errorf("tree-sitter returned no parser")
	}
	if err := parser.SetLanguage(p.lang); err != nil {
		parser.Close()
		return nil, fmt.Errorf("load %s grammar: %w", p.grammar, err)
	}
	p.made++
	p.logger.Debug("parser created", "grammar", p.grammar.String(), "parsers", p.made)
	return parser, nil
}

func (p *parserPool) release(parser *ts.Parser) {
	if parser == nil {
		return
	}
	select {
	case p.idle <- parser:
	default:
		// Only reachable if a parser is released twice.
		parser.Close()
		p.logger.Warn("parser pool overflow", "grammar", p.grammar.String())
	}
}

// drain closes every idle parser and returns how many were created in
// total. Borrowed parsers must be back before drain is called.
func (p *parserPool) drain() int {
	close(p.idle)
	for parser := range p.idle {
		parser.Close()
	}
	return p.created()
}

func (p *parserPool) created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.made
}
