package util

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestFileCache_BasicOperations(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "index.ts", "function helper(req) {\n  return 1;\n}\n")

	cache := NewFileCache(DefaultFileCacheConfig())
	defer cache.Close()

	assert.Equal(t, 0, cache.Size())

	mf, err := cache.Get(path)
	require.NoError(t, err)
	assert.Equal(t, path, mf.Path)
	assert.Equal(t, int64(37), mf.Size)
	assert.Equal(t, 1, cache.Size())

	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "helper", string(data[9:15]))

	_, err = cache.Get(path)
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.FilesLoaded)
	assert.Equal(t, int64(2), stats.CacheHits)
	assert.Equal(t, 1, stats.FilesCached)
	assert.Greater(t, stats.TotalMappedMB, float64(0))

	require.NoError(t, cache.Close())
	assert.Equal(t, 0, cache.Size())
}

func TestFileCache_ReadReturnsPrivateCopy(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.js", "const a = 1;")

	cache := NewFileCache(nil)
	defer cache.Close()

	data, err := cache.Read(path)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(path))

	// The copy must survive the unmap.
	assert.Equal(t, "const a = 1;", string(data))
}

func TestFileCache_InvalidateReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.js", "v1")

	cache := NewFileCache(nil)
	defer cache.Close()

	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))

	require.NoError(t, os.WriteFile(path, []byte("version2"), 0644))
	require.NoError(t, cache.Invalidate(path))

	data, err = cache.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "version2", string(data))
	assert.Equal(t, int64(1), cache.Stats().Invalidations)

	assert.NoError(t, cache.Invalidate(filepath.Join(dir, "unknown.js")))
}

func TestFileCache_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.js", "")

	cache := NewFileCache(nil)
	defer cache.Close()

	data, err := cache.Read(path)
	require.NoError(t, err)
	assert.Empty(t, data)

	mf, err := cache.Get(path)
	require.NoError(t, err)
	assert.Nil(t, mf.Data)
	assert.Equal(t, int64(0), mf.Size)
}

func TestFileCache_MaxFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.js", "a")
	b := writeFile(t, dir, "b.js", "b")

	cache := NewFileCache(&FileCacheConfig{MaxFiles: 1})
	defer cache.Close()

	_, err := cache.Get(a)
	require.NoError(t, err)
	_, err = cache.Get(b)
	assert.ErrorContains(t, err, "limit reached")
}

func TestFileCache_MissingFile(t *testing.T) {
	cache := NewFileCache(nil)
	defer cache.Close()

	_, err := cache.Get(filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
	_, err = cache.Read(filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Size())
}

func TestFileCache_ConcurrentGet(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.js", "shared content")

	cache := NewFileCache(nil)
	defer cache.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := cache.Read(path)
			assert.NoError(t, err)
			assert.Equal(t, "shared content", string(data))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, cache.Size())
	assert.Equal(t, int64(1), cache.Stats().FilesLoaded)
}
