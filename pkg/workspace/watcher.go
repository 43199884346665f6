package workspace

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fiberplane/fpx-sub000/pkg/util"
)

// Watcher watches a directory tree and reports changed source files.
//
// Features:
//   - Debouncing: changes within the window are reported as one batch
//   - Cache coherence: every changed file is invalidated in the FileCache
//     before the batch is reported
//   - New directories are watched as they appear
//
// Usage:
//
//	w, err := NewWatcher(cfg, cache, func(changed []string) { ... }, logger)
//	if err != nil {
//	    return err
//	}
//	if err := w.Start(root); err != nil {
//	    return err
//	}
//	defer w.Stop()
type Watcher struct {
	watcher  *fsnotify.Watcher
	cfg      Config
	cache    util.FileCache
	onChange func(changed []string)
	logger   *slog.Logger
	root     string

	// Debouncing
	pending map[string]struct{}
	timer   *time.Timer
	batches int
	pendMu  sync.Mutex

	// Lifecycle
	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
}

// NewWatcher creates a watcher. onChange runs on a timer goroutine with
// the sorted absolute paths of a batch; cache may be nil.
func NewWatcher(cfg Config, cache util.FileCache, onChange func(changed []string), logger *slog.Logger) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DebounceMs <= 0 {
		cfg.DebounceMs = 200
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		watcher:  fsw,
		cfg:      cfg,
		cache:    cache,
		onChange: onChange,
		logger:   logger,
		pending:  make(map[string]struct{}),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching rootPath and its subdirectories in the background.
func (w *Watcher) Start(rootPath string) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	w.mu.Unlock()

	root, err := filepath.Abs(rootPath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", rootPath, err)
	}
	w.root = root

	if err := w.addTree(root); err != nil {
		return err
	}

	w.logger.Info("file watcher started", "root", root)
	go w.eventLoop()
	return nil
}

func (w *Watcher) addTree(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || p == dir {
			return nil
		}
		if w.cfg.excluded(w.rel(p)) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("failed to watch directory", "path", p, "error", err)
		}
		return nil
	})
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopChan)

	w.pendMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pending = make(map[string]struct{})
	w.pendMu.Unlock()

	err := w.watcher.Close()
	w.logger.Info("file watcher stopped")
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel := w.rel(event.Name)
	if w.cfg.excluded(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !w.cfg.included(rel) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.logger.Debug("file event", "op", event.Op.String(), "file", event.Name)
	if w.cache != nil {
		if err := w.cache.Invalidate(event.Name); err != nil {
			w.logger.Warn("failed to invalidate cached file", "file", event.Name, "error", err)
		}
	}
	w.schedule(event.Name)
}

// schedule adds path to the pending batch and restarts the debounce timer.
func (w *Watcher) schedule(path string) {
	w.pendMu.Lock()
	defer w.pendMu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(time.Duration(w.cfg.DebounceMs)*time.Millisecond, w.flush)
}

func (w *Watcher) flush() {
	w.pendMu.Lock()
	if len(w.pending) == 0 {
		w.pendMu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]struct{})
	w.batches++
	w.pendMu.Unlock()

	sort.Strings(changed)
	w.logger.Debug("reporting changed files", "count", len(changed))
	if w.onChange != nil {
		w.onChange(changed)
	}
}

func (w *Watcher) rel(p string) string {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	running := !w.stopped
	w.mu.Unlock()

	w.pendMu.Lock()
	defer w.pendMu.Unlock()
	return WatcherStats{
		PendingChanges:  len(w.pending),
		BatchesReported: w.batches,
		IsRunning:       running,
	}
}

// WatcherStats contains watcher statistics.
type WatcherStats struct {
	PendingChanges  int
	BatchesReported int
	IsRunning       bool
}
