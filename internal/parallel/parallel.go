// Package parallel splits row loops of CPU kernels across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a loop is split.
type Config struct {
	Enabled bool // split at all
	Workers int  // upper bound on goroutines
	MinWork int  // minimum units of work (rows × inner size) per goroutine
}

// DefaultConfig enables splitting on multi-core machines.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled: n > 1,
		Workers: n,
		MinWork: 1 << 14,
	}
}

// Rows calls f on disjoint [start, end) ranges covering [0, rows).
//
// cost is the work per row; ranges are sized so each goroutine gets at
// least cfg.MinWork units. Small loops run inline on the caller's
// goroutine. f must only write to its own rows.
func Rows(rows, cost int, cfg Config, f func(start, end int)) {
	if rows == 0 {
		return
	}
	chunk := rows
	if cfg.Enabled && cfg.Workers > 1 {
		minRows := max(cfg.MinWork/max(cost, 1), 1)
		chunk = max((rows+cfg.Workers-1)/cfg.Workers, minRows)
	}
	if chunk >= rows {
		f(0, rows)
		return
	}

	var wg sync.WaitGroup
	for start := 0; start < rows; start += chunk {
		end := min(start+chunk, rows)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
