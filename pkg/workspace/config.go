// Package workspace turns files and directories on disk into locator
// snapshots and watches them for changes.
package workspace

import (
	"fmt"
	"path"

	"github.com/bmatcuk/doublestar/v4"
)

// Config holds the include/exclude globs applied to directories. Patterns
// are matched against slash-separated paths relative to the walked root.
type Config struct {
	Include []string `mapstructure:"include" yaml:"include"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude"`

	// DebounceMs groups change events before the watcher reports them.
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// DefaultConfig includes JavaScript and TypeScript sources and skips
// dependencies, declaration files and tests.
func DefaultConfig() Config {
	return Config{
		Include: []string{"**/*.{js,mjs,cjs,jsx,ts,mts,cts,tsx}"},
		Exclude: []string{
			"**/node_modules",
			"**/.git",
			"**/.wrangler",
			"**/*.d.ts",
			"**/*.test.*",
			"**/*.spec.*",
			"**/__tests__",
		},
		DebounceMs: 200,
	}
}

// Validate checks every pattern.
func (c Config) Validate() error {
	for _, pattern := range c.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}
	for _, pattern := range c.Include {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid include pattern: %s", pattern)
		}
	}
	return nil
}

// excluded reports whether rel (or its base name, for single-segment
// patterns such as "node_modules") is excluded.
func (c Config) excluded(rel string) bool {
	for _, pattern := range c.Exclude {
		if m, _ := doublestar.Match(pattern, rel); m {
			return true
		}
		if m, _ := doublestar.Match(pattern, path.Base(rel)); m {
			return true
		}
	}
	return false
}

// included reports whether a file passes the include patterns. No
// patterns include everything.
func (c Config) included(rel string) bool {
	if len(c.Include) == 0 {
		return true
	}
	for _, pattern := range c.Include {
		if m, _ := doublestar.Match(pattern, rel); m {
			return true
		}
	}
	return false
}
