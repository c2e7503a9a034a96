package telemetry

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/nuvex/nuvex/internal/types"
)

// emaAlpha is the exponential-moving-average smoothing factor for response
// time, fixed by spec.md §4.4.1.
const emaAlpha = 0.2

// Metrics accumulates per-layer hit/miss/error counters plus an EMA of
// response time for the engine. Grounded on monitoring/metrics.go's
// atomic.Int64 counters and cache-manager/service.go's Metrics struct,
// narrowed to exactly what spec.md §4.4.11 and §8 (P10) ask for.
type Metrics struct {
	memoryHits   atomic.Int64
	redisHits    atomic.Int64
	postgresHits atomic.Int64
	misses       atomic.Int64
	sets         atomic.Int64
	deletes      atomic.Int64
	errors       atomic.Int64

	mu              sync.Mutex
	avgResponseTime float64 // EMA, milliseconds
	haveEMA         bool
}

// RecordHit increments the hit counter for the layer that served a read.
func (m *Metrics) RecordHit(layer types.LayerTag) {
	switch layer {
	case types.LayerMemory:
		m.memoryHits.Add(1)
	case types.LayerRedis:
		m.redisHits.Add(1)
	case types.LayerPostgres:
		m.postgresHits.Add(1)
	}
}

// RecordMiss increments the overall-miss counter (no layer had the key).
func (m *Metrics) RecordMiss() { m.misses.Add(1) }

// RecordSet increments the set counter.
func (m *Metrics) RecordSet() { m.sets.Add(1) }

// RecordDelete increments the delete counter.
func (m *Metrics) RecordDelete() { m.deletes.Add(1) }

// RecordError increments the error counter.
func (m *Metrics) RecordError() { m.errors.Add(1) }

// RecordResponseTime folds a new sample into the EMA with α=0.2.
func (m *Metrics) RecordResponseTime(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.haveEMA {
		m.avgResponseTime = ms
		m.haveEMA = true
		return
	}
	m.avgResponseTime = emaAlpha*ms + (1-emaAlpha)*m.avgResponseTime
}

// Snapshot is a point-in-time view of the counters, suitable for
// getMetrics(). L1Size is filled in by the caller (the engine), since
// Metrics itself doesn't hold a reference to the memory layer.
type Snapshot struct {
	MemoryHits      int64
	RedisHits       int64
	PostgresHits    int64
	Misses          int64
	Sets            int64
	Deletes         int64
	Errors          int64
	AvgResponseTime float64
	L1Size          int
	CacheHitRatio   float64
}

// Snapshot returns the current counter values plus a derived hit ratio
// over the requested layer subset. An empty/nil layers slice means "all".
func (m *Metrics) Snapshot(layers []types.LayerTag, l1Size int) Snapshot {
	s := Snapshot{
		MemoryHits:   m.memoryHits.Load(),
		RedisHits:    m.redisHits.Load(),
		PostgresHits: m.postgresHits.Load(),
		Misses:       m.misses.Load(),
		Sets:         m.sets.Load(),
		Deletes:      m.deletes.Load(),
		Errors:       m.errors.Load(),
		L1Size:       l1Size,
	}

	m.mu.Lock()
	s.AvgResponseTime = m.avgResponseTime
	m.mu.Unlock()

	var hits, total int64
	included := func(l types.LayerTag) bool {
		if len(layers) == 0 {
			return true
		}
		for _, want := range layers {
			if want == l {
				return true
			}
		}
		return false
	}
	if included(types.LayerMemory) {
		hits += s.MemoryHits
	}
	if included(types.LayerRedis) {
		hits += s.RedisHits
	}
	if included(types.LayerPostgres) {
		hits += s.PostgresHits
	}
	total = hits + s.Misses
	if total > 0 {
		s.CacheHitRatio = float64(hits) / float64(total)
	}
	if math.IsNaN(s.CacheHitRatio) {
		s.CacheHitRatio = 0
	}
	return s
}

// Reset zeroes every counter and the EMA. Used by resetMetrics().
func (m *Metrics) Reset() {
	m.memoryHits.Store(0)
	m.redisHits.Store(0)
	m.postgresHits.Store(0)
	m.misses.Store(0)
	m.sets.Store(0)
	m.deletes.Store(0)
	m.errors.Store(0)
	m.mu.Lock()
	m.avgResponseTime = 0
	m.haveEMA = false
	m.mu.Unlock()
}
