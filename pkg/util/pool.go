package util

import "runtime"

const (
	minWorkers = 4
	maxWorkers = 32
)

// GetOptimalPoolSize returns the parallelism used for parsing: two workers
// per CPU, clamped to [4, 32]. Tree-sitter work runs in cgo, so a second
// worker per core keeps cores busy while another goroutine is scheduled.
// The locator's fan-out and each grammar's parser pool share this size.
func GetOptimalPoolSize() int {
	return min(max(runtime.NumCPU()*2, minWorkers), maxWorkers)
}

// GetOptimalPoolSizeWithOverride returns override when positive.
func GetOptimalPoolSizeWithOverride(override int) int {
	if override > 0 {
		return override
	}
	return GetOptimalPoolSize()
}
