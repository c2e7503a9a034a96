package engine

import (
	"context"
	"sync"

	"github.com/nuvex/nuvex/internal/types"
)

// Set implements spec.md §4.4.2's write protocol: L3-first with
// best-effort cache fan-out, or a single layer-targeted write bypassing
// the source-of-truth rule.
func (e *Engine) Set(ctx context.Context, key string, value []byte, opts types.SetOptions) bool {
	if !e.connected() {
		return false
	}
	l1, l2, l3 := e.layers()

	if opts.Layer != nil {
		switch *opts.Layer {
		case types.LayerMemory:
			ok := l1.Set(ctx, key, value, e.resolveMemoryTTL(opts.TTL))
			if ok {
				e.metrics.RecordSet()
			}
			return ok
		case types.LayerRedis:
			if l2 == nil {
				return false
			}
			ok := l2.Set(ctx, key, value, e.resolveTTL(opts.TTL))
			if ok {
				e.metrics.RecordSet()
			}
			return ok
		case types.LayerPostgres:
			if l3 == nil {
				return false
			}
			if err := l3.Set(ctx, key, value, toTTLPtr(opts.TTL)); err != nil {
				e.metrics.RecordError()
				return false
			}
			e.metrics.RecordSet()
			return true
		default:
			return false
		}
	}

	if l3 != nil {
		if err := l3.Set(ctx, key, value, toTTLPtr(opts.TTL)); err != nil {
			e.metrics.RecordError()
			return false
		}
	}

	// Each cache fans out with its own default TTL (memory.ttl for L1,
	// redis.ttl for L2) per spec.md §6.
	memTTL, cacheTTL := e.resolveMemoryTTL(opts.TTL), e.resolveTTL(opts.TTL)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l1.Set(ctx, key, value, memTTL)
	}()
	if l2 != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l2.Set(ctx, key, value, cacheTTL)
		}()
	}
	wg.Wait()

	e.metrics.RecordSet()
	return true
}

// Delete implements spec.md §4.4.3: default short-circuit-free parallel
// best-effort delete across all three layers, or a single layer-targeted
// delete.
func (e *Engine) Delete(ctx context.Context, key string, opts types.DeleteOptions) bool {
	if !e.connected() {
		return false
	}
	l1, l2, l3 := e.layers()

	if opts.Layer != nil {
		switch *opts.Layer {
		case types.LayerMemory:
			return l1.Delete(ctx, key)
		case types.LayerRedis:
			return l2 != nil && l2.Delete(ctx, key)
		case types.LayerPostgres:
			return l3 != nil && l3.Delete(ctx, key)
		default:
			return false
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l1.Delete(ctx, key)
	}()
	if l2 != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l2.Delete(ctx, key)
		}()
	}
	if l3 != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l3.Delete(ctx, key)
		}()
	}
	wg.Wait()

	e.metrics.RecordDelete()
	return true
}

// Exists implements spec.md §4.4.4: short-circuit OR across L1 → L2 → L3,
// or a single layer-targeted check.
func (e *Engine) Exists(ctx context.Context, key string, opts types.ExistsOptions) bool {
	if !e.connected() {
		return false
	}
	l1, l2, l3 := e.layers()

	if opts.Layer != nil {
		switch *opts.Layer {
		case types.LayerMemory:
			return l1.Exists(ctx, key)
		case types.LayerRedis:
			return l2 != nil && l2.Exists(ctx, key)
		case types.LayerPostgres:
			return l3 != nil && l3.Exists(ctx, key)
		default:
			return false
		}
	}

	if l1.Exists(ctx, key) {
		return true
	}
	if l2 != nil && l2.Exists(ctx, key) {
		return true
	}
	if l3 != nil && l3.Exists(ctx, key) {
		return true
	}
	return false
}

// Expire implements spec.md §4.4.5: get then set with a new TTL. Returns
// false if the key is absent.
func (e *Engine) Expire(ctx context.Context, key string, ttl types.SetOptions) bool {
	v, ok, err := e.Get(ctx, key, types.GetOptions{})
	if err != nil || !ok {
		return false
	}
	return e.Set(ctx, key, v, ttl)
}
