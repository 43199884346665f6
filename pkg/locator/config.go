package locator

import (
	"log/slog"

	"github.com/fiberplane/fpx-sub000/pkg/resolve"
)

// Config configures a Locator.
type Config struct {
	// Signatures is the router, wrapper and loader allow-list.
	Signatures resolve.Signatures

	// MaxHops bounds each resolution. 0 selects resolve.DefaultMaxHops.
	MaxHops int

	// RankByWrapDepth selects, among matching routes, the handler reached
	// through the fewest wrappers and aliases; ties become AmbiguousMatch.
	// When false the first registration in source order wins.
	RankByWrapDepth bool

	// CacheSize is the number of analyses kept in the LRU cache.
	CacheSize int

	// PoolSize is the number of parsers per grammar. 0 selects the
	// CPU-based default.
	PoolSize int

	// Logger for analysis events. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the built-in signatures, source-order ranking and a
// cache of 16 analyses.
func DefaultConfig() Config {
	return Config{
		Signatures: resolve.DefaultSignatures(),
		MaxHops:    resolve.DefaultMaxHops,
		CacheSize:  16,
	}
}
