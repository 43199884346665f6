package util

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/edsrzf/mmap-go"
)

// FileCache gives memory-mapped access to workspace source files.
//
// Files are mapped on first access and stay mapped until invalidated or the
// cache is closed. When mmap fails (special files, some network mounts) the
// file is read into memory instead.
//
// Thread-safe: lookups take a read lock, loads and invalidation take the
// write lock.
type FileCache interface {
	// Get returns the mapped file, loading it on first access.
	Get(filePath string) (*MappedFile, error)

	// Read returns a private copy of the file content. The copy stays valid
	// after the file is invalidated, which is what snapshots need since
	// analyses outlive file changes.
	Read(filePath string) ([]byte, error)

	// Invalidate unmaps a file so the next access reloads it. Unknown paths
	// are ignored.
	Invalidate(filePath string) error

	// Size returns number of currently cached files.
	Size() int

	// Stats returns current cache metrics.
	Stats() FileCacheStats

	// Close unmaps all files.
	Close() error
}

// FileCacheConfig controls FileCache behavior.
type FileCacheConfig struct {
	// MaxFiles caps the number of cached files. 0 means unlimited.
	MaxFiles int

	// MaxMemoryMB caps the mapped virtual memory. 0 means unlimited.
	MaxMemoryMB int

	// Logger for warnings. If nil, uses slog.Default().
	Logger *slog.Logger
}

// DefaultFileCacheConfig returns limits suited to application workspaces:
// route sources rarely exceed a few thousand files, bundles a few MB each.
func DefaultFileCacheConfig() *FileCacheConfig {
	return &FileCacheConfig{
		MaxFiles:    10000,
		MaxMemoryMB: 2048,
	}
}

// MappedFile is one cached file.
type MappedFile struct {
	Path string

	// Data is the mapped region (or the fallback buffer). Nil for empty files.
	Data mmap.MMap

	// file is nil for fallback entries
	file *os.File

	Size     int64
	MappedAt time.Time
}

// FileCacheStats tracks cache performance metrics.
type FileCacheStats struct {
	FilesLoaded   int64
	FilesCached   int
	CacheHits     int64
	CacheMisses   int64
	MmapFailures  int64
	Invalidations int64
	TotalMappedMB float64
}

// NewFileCache creates a new FileCache with the given config.
//
// If config is nil, uses DefaultFileCacheConfig().
func NewFileCache(config *FileCacheConfig) FileCache {
	if config == nil {
		config = DefaultFileCacheConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &fileCache{
		config: config,
		logger: logger,
		files:  make(map[string]*MappedFile),
	}
}

type fileCache struct {
	config *FileCacheConfig
	logger *slog.Logger

	mu    sync.RWMutex
	files map[string]*MappedFile

	statsMu sync.Mutex
	stats   FileCacheStats
}

func (fc *fileCache) Get(filePath string) (*MappedFile, error) {
	fc.mu.RLock()
	if mf, ok := fc.files[filePath]; ok {
		fc.mu.RUnlock()
		fc.count(func(s *FileCacheStats) { s.CacheHits++ })
		return mf, nil
	}
	fc.mu.RUnlock()

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if mf, ok := fc.files[filePath]; ok {
		fc.count(func(s *FileCacheStats) { s.CacheHits++ })
		return mf, nil
	}
	fc.count(func(s *FileCacheStats) { s.CacheMisses++ })

	mf, err := fc.load(filePath)
	if err != nil {
		return nil, err
	}
	fc.files[filePath] = mf
	fc.count(func(s *FileCacheStats) { s.FilesLoaded++ })
	return mf, nil
}

// load maps a file after checking the limits. Must hold mu.Lock.
func (fc *fileCache) load(filePath string) (*MappedFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w", filePath, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file %q: %w", filePath, err)
	}

	if err := fc.checkLimits(stat.Size()); err != nil {
		file.Close()
		return nil, err
	}

	mf := &MappedFile{Path: filePath, Size: stat.Size(), MappedAt: time.Now()}
	if stat.Size() == 0 {
		file.Close()
		return mf, nil
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		fc.logger.Warn("mmap failed, using fallback",
			"file", filePath,
			"size", stat.Size(),
			"error", err)
		fc.count(func(s *FileCacheStats) { s.MmapFailures++ })

		buf, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("mmap failed and fallback failed for %q: mmap error: %v, read error: %w",
				filePath, err, readErr)
		}
		mf.Data = mmap.MMap(buf)
		mf.Size = int64(len(buf))
		return mf, nil
	}

	mf.Data = data
	mf.file = file
	return mf, nil
}

// checkLimits verifies that one more file of the given size fits.
// Must hold mu.Lock.
func (fc *fileCache) checkLimits(size int64) error {
	if fc.config.MaxFiles > 0 && len(fc.files) >= fc.config.MaxFiles {
		return fmt.Errorf("FileCache limit reached: %d files (limit: %d files)",
			len(fc.files), fc.config.MaxFiles)
	}
	if fc.config.MaxMemoryMB > 0 {
		after := fc.mappedMBLocked() + float64(size)/(1024*1024)
		if after >= float64(fc.config.MaxMemoryMB) {
			return fmt.Errorf("FileCache memory limit reached: %.2f MB (limit: %d MB)",
				after, fc.config.MaxMemoryMB)
		}
	}
	return nil
}

func (fc *fileCache) Read(filePath string) ([]byte, error) {
	mf, err := fc.Get(filePath)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(mf.Data))
	copy(out, mf.Data)
	return out, nil
}

func (fc *fileCache) Invalidate(filePath string) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	mf, ok := fc.files[filePath]
	if !ok {
		return nil
	}
	delete(fc.files, filePath)
	fc.count(func(s *FileCacheStats) { s.Invalidations++ })
	return unmap(mf)
}

func (fc *fileCache) Size() int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()
	return len(fc.files)
}

func (fc *fileCache) Stats() FileCacheStats {
	fc.mu.RLock()
	cached := len(fc.files)
	mapped := fc.mappedMBLocked()
	fc.mu.RUnlock()

	fc.statsMu.Lock()
	defer fc.statsMu.Unlock()
	stats := fc.stats
	stats.FilesCached = cached
	stats.TotalMappedMB = mapped
	return stats
}

func (fc *fileCache) Close() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	var firstErr error
	for path, mf := range fc.files {
		if err := unmap(mf); err != nil {
			fc.logger.Warn("failed to unmap file", "file", path, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	fc.files = make(map[string]*MappedFile)
	return firstErr
}

// mappedMBLocked sums cached file sizes. Must hold mu (read or write).
func (fc *fileCache) mappedMBLocked() float64 {
	var total int64
	for _, mf := range fc.files {
		total += mf.Size
	}
	return float64(total) / (1024 * 1024)
}

func (fc *fileCache) count(update func(*FileCacheStats)) {
	fc.statsMu.Lock()
	update(&fc.stats)
	fc.statsMu.Unlock()
}

// unmap releases a mapping and its descriptor. Fallback entries own no
// mapping.
func unmap(mf *MappedFile) error {
	if mf.file == nil {
		return nil
	}
	err := mf.Data.Unmap()
	if cerr := mf.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("unmap %q: %w", mf.Path, err)
	}
	return nil
}
