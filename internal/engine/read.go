package engine

import (
	"context"
	"sync"
	"time"

	"github.com/nuvex/nuvex/internal/types"
)

// Get implements spec.md §4.4.1's read cascade. Response-time telemetry is
// recorded on every return path via a deferred EMA update, matching
// cache-manager/service.go's startTime/time.Since bracketing (there it's
// measured but not wired into a metric; here it feeds Metrics.RecordResponseTime
// per spec.md's explicit requirement).
func (e *Engine) Get(ctx context.Context, key string, opts types.GetOptions) ([]byte, bool, error) {
	start := time.Now()
	defer func() {
		e.metrics.RecordResponseTime(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	if !e.connected() {
		return nil, false, types.ErrNotConnected
	}

	l1, l2, l3 := e.layers()

	if opts.SkipCache {
		if l3 == nil {
			e.metrics.RecordMiss()
			return nil, false, nil
		}
		v, ok := l3.Get(ctx, key)
		if !ok {
			e.metrics.RecordMiss()
			return nil, false, nil
		}
		e.metrics.RecordHit(types.LayerPostgres)
		return v, true, nil
	}

	if opts.Layer != nil {
		return e.getFromLayer(ctx, *opts.Layer, key)
	}

	if v, ok := l1.Get(ctx, key); ok {
		e.metrics.RecordHit(types.LayerMemory)
		return v, true, nil
	}

	if l2 != nil {
		if v, ok := l2.Get(ctx, key); ok {
			l1.Set(ctx, key, v, e.resolveMemoryTTL(opts.TTL))
			e.metrics.RecordHit(types.LayerRedis)
			return v, true, nil
		}
	}

	if l3 == nil {
		e.metrics.RecordMiss()
		return nil, false, nil
	}

	// Stampede protection: concurrent misses on the same key collapse into
	// a single L3 fetch. Grounded on warming/service.go's
	// `deduper singleflight.Group` pattern, applied here to the cascade's
	// L3 fallback instead of only the warming path's origin fetch.
	result, err, _ := e.fetchGroup.Do(key, func() (any, error) {
		v, ok := l3.Get(ctx, key)
		if !ok {
			return nil, nil
		}
		return v, nil
	})
	if err != nil || result == nil {
		e.metrics.RecordMiss()
		return nil, false, nil
	}
	v := result.([]byte)

	// Warm L1 and L2 concurrently, best-effort: individual warm failures
	// never fail the read. Each layer warms with its own default TTL
	// (memory.ttl for L1, redis.ttl for L2) per spec.md §6.
	memTTL, cacheTTL := e.resolveMemoryTTL(opts.TTL), e.resolveTTL(opts.TTL)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l1.Set(ctx, key, v, memTTL)
	}()
	if l2 != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l2.Set(ctx, key, v, cacheTTL)
		}()
	}
	wg.Wait()

	e.metrics.RecordHit(types.LayerPostgres)
	return v, true, nil
}

// getFromLayer serves a layer-targeted get(), returning absent if the
// named layer isn't configured.
func (e *Engine) getFromLayer(ctx context.Context, layer types.LayerTag, key string) ([]byte, bool, error) {
	l1, l2, l3 := e.layers()
	switch layer {
	case types.LayerMemory:
		v, ok := l1.Get(ctx, key)
		if ok {
			e.metrics.RecordHit(types.LayerMemory)
		} else {
			e.metrics.RecordMiss()
		}
		return v, ok, nil
	case types.LayerRedis:
		if l2 == nil {
			e.metrics.RecordMiss()
			return nil, false, nil
		}
		v, ok := l2.Get(ctx, key)
		if ok {
			e.metrics.RecordHit(types.LayerRedis)
		} else {
			e.metrics.RecordMiss()
		}
		return v, ok, nil
	case types.LayerPostgres:
		if l3 == nil {
			e.metrics.RecordMiss()
			return nil, false, nil
		}
		v, ok := l3.Get(ctx, key)
		if ok {
			e.metrics.RecordHit(types.LayerPostgres)
		} else {
			e.metrics.RecordMiss()
		}
		return v, ok, nil
	default:
		e.metrics.RecordMiss()
		return nil, false, nil
	}
}
