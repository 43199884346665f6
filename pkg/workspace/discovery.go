package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fiberplane/fpx-sub000/pkg/locator"
	"github.com/fiberplane/fpx-sub000/pkg/util"
)

// Discover walks rootDir applying the include/exclude globs of cfg.
// Returns a sorted slice of absolute file paths for deterministic output.
func Discover(rootDir string, cfg Config) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}

	var files []string
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Continue walking on errors.
		}
		if p == absRoot {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			rel = p
		}
		rel = filepath.ToSlash(rel)

		if cfg.excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !cfg.included(rel) {
			return nil
		}

		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// Collect expands a mix of files and directories into a file list.
// Arguments keep their order; directories expand in sorted order and files
// named explicitly are kept even if the include globs would skip them.
// Duplicates are dropped.
func Collect(paths []string, cfg Config) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(abs)
			continue
		}
		files, err := Discover(abs, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to discover files in %s: %w", p, err)
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

// Load reads files through cache into a snapshot. Files under base are
// keyed by their slash-separated path relative to base, so relative imports
// between them link; other files keep their absolute path.
func Load(files []string, base string, cache util.FileCache) (locator.Snapshot, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return locator.Snapshot{}, fmt.Errorf("failed to resolve base path: %w", err)
	}

	snap := locator.Snapshot{Files: make([]locator.Source, 0, len(files))}
	for _, f := range files {
		content, err := cache.Read(f)
		if err != nil {
			return locator.Snapshot{}, fmt.Errorf("failed to read %s: %w", f, err)
		}
		snap.Files = append(snap.Files, locator.Source{
			Path:    SnapshotPath(absBase, f),
			Content: content,
		})
	}
	return snap, nil
}

// SnapshotPath returns the snapshot key of file relative to base.
func SnapshotPath(base, file string) string {
	rel, err := filepath.Rel(base, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(file)
	}
	return filepath.ToSlash(rel)
}
