package engine

import (
	"context"
	"sync"

	"github.com/nuvex/nuvex/internal/telemetry"
	"github.com/nuvex/nuvex/internal/types"
)

// GetMetrics implements spec.md §4.4.11's getMetrics(layers?): the full
// counter set plus derived cacheHitRatio and L1 size. A non-empty selector
// restricts only cacheHitRatio to the requested layers; every counter is
// still reported for all layers. An empty/nil selector means "all".
func (e *Engine) GetMetrics(layers []types.LayerTag) telemetry.Snapshot {
	return e.metrics.Snapshot(layers, e.l1.Size())
}

// ResetMetrics zeroes every counter, used by the facade's resetMetrics().
func (e *Engine) ResetMetrics() {
	e.metrics.Reset()
}

// HealthCheck implements spec.md §4.4.11's healthCheck(layers?): ping()
// each requested layer in parallel with best-effort semantics; a missing
// layer yields false rather than being omitted, except that an
// unconfigured layer not in the selector is simply absent from the map.
// Grounded on monitoring/service.go's parallel-probe health aggregation,
// narrowed to ping()-only per SPEC_FULL.md §9 (no destructive health
// probes).
func (e *Engine) HealthCheck(ctx context.Context, layers []string) map[string]bool {
	if len(layers) == 0 {
		layers = []string{"memory", "redis", "postgres"}
	}

	l1, l2, l3 := e.layers()
	result := make(map[string]bool, len(layers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range layers {
		name := name
		switch name {
		case "memory":
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok := pingCache(ctx, l1)
				mu.Lock()
				result[name] = ok
				mu.Unlock()
			}()
		case "redis":
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok := l2 != nil && pingCache(ctx, l2)
				mu.Lock()
				result[name] = ok
				mu.Unlock()
			}()
		case "postgres":
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok := l3 != nil && l3.Ping(ctx)
				mu.Lock()
				result[name] = ok
				mu.Unlock()
			}()
		}
	}
	wg.Wait()
	return result
}

// pingCache probes any cache satisfying the shared types.Layer capability
// set (L1 and L2 — L3's pglayer.Layer doesn't, since its Set/Increment
// shapes differ). Takes the interface rather than a concrete type so L1 and
// L2 share one code path here instead of two near-identical ones.
func pingCache(ctx context.Context, l types.Layer) bool {
	return l.Ping(ctx)
}

// LayerInfo reports whether each layer is configured, used by the
// facade's getLayerInfo().
func (e *Engine) LayerInfo() map[string]bool {
	_, l2, l3 := e.layers()
	return map[string]bool{
		"memory":   true,
		"redis":    l2 != nil,
		"postgres": l3 != nil,
	}
}
