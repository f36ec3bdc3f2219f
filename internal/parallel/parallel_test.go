package parallel

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func collect(rows, cost int, cfg Config) [][2]int {
	var mu sync.Mutex
	var ranges [][2]int
	Rows(rows, cost, cfg, func(start, end int) {
		mu.Lock()
		ranges = append(ranges, [2]int{start, end})
		mu.Unlock()
	})
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	return ranges
}

func TestRowsCoversEveryRowOnce(t *testing.T) {
	cfg := Config{Enabled: true, Workers: 4, MinWork: 10}
	ranges := collect(103, 1, cfg)

	assert.Len(t, ranges, 4)
	next := 0
	for _, r := range ranges {
		assert.Equal(t, next, r[0])
		next = r[1]
	}
	assert.Equal(t, 103, next)
}

func TestRowsRespectsMinWork(t *testing.T) {
	cfg := Config{Enabled: true, Workers: 8, MinWork: 100}
	// 50 rows of cost 10: at least 10 rows per goroutine.
	ranges := collect(50, 10, cfg)
	assert.Len(t, ranges, 5)
}

func TestRowsInline(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 7}}, collect(7, 1, Config{}))
	assert.Equal(t, [][2]int{{0, 7}}, collect(7, 1, Config{Enabled: true, Workers: 4, MinWork: 1000}))
	assert.Empty(t, collect(0, 1, DefaultConfig()))
}
