package engine

import (
	"context"
	"fmt"

	"github.com/nuvex/nuvex/internal/types"
)

// Increment implements spec.md §4.4.6's cascade: the most authoritative
// configured layer (L3 > L2 > L1) performs the native atomic increment,
// then the result is propagated to every less authoritative layer via
// plain set (not a second increment), so the cache reflects the exact
// value the authoritative layer computed.
func (e *Engine) Increment(ctx context.Context, key string, delta int64, ttl types.SetOptions) (int64, error) {
	if !e.connected() {
		return 0, types.ErrNotConnected
	}
	l1, l2, l3 := e.layers()

	var next int64
	var err error
	var propagateToL2, propagateToL1 bool

	switch {
	case l3 != nil:
		next, err = l3.Increment(ctx, key, delta, toTTLPtr(ttl.TTL))
		propagateToL2, propagateToL1 = true, true
	case l2 != nil:
		next, err = l2.Increment(ctx, key, delta, e.resolveTTL(ttl.TTL))
		propagateToL1 = true
	case l1 != nil:
		next, err = l1.Increment(ctx, key, delta, e.resolveMemoryTTL(ttl.TTL))
	default:
		return 0, fmt.Errorf("increment failed: no layer available")
	}
	if err != nil {
		e.metrics.RecordError()
		return 0, fmt.Errorf("increment failed: %w", err)
	}

	// Each cache is propagated with its own default TTL (memory.ttl for L1,
	// redis.ttl for L2) per spec.md §6.
	payload := []byte(fmt.Sprintf("%d", next))
	if propagateToL1 {
		l1.Set(ctx, key, payload, e.resolveMemoryTTL(ttl.TTL))
	}
	if propagateToL2 && l2 != nil {
		l2.Set(ctx, key, payload, e.resolveTTL(ttl.TTL))
	}

	return next, nil
}
