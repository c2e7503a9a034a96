package engine

import (
	"context"

	"github.com/nuvex/nuvex/internal/types"
)

// layerRank expresses authority order for demote's "strictly higher than
// target" rule: L3 is most authoritative (rank 2), then L2 (rank 1), then
// L1 (rank 0).
func layerRank(l types.LayerTag) int {
	switch l {
	case types.LayerPostgres:
		return 2
	case types.LayerRedis:
		return 1
	default:
		return 0
	}
}

// Promote implements spec.md §4.4.9: read the current value via the
// cascade, then write it to target.
func (e *Engine) Promote(ctx context.Context, key string, target types.LayerTag) bool {
	v, ok, err := e.Get(ctx, key, types.GetOptions{})
	if err != nil || !ok {
		return false
	}
	return e.Set(ctx, key, v, types.SetOptions{Layer: &target})
}

// Demote implements spec.md §4.4.9: delete key from every layer strictly
// more authoritative than target.
func (e *Engine) Demote(ctx context.Context, key string, target types.LayerTag) bool {
	l1, l2, l3 := e.layers()
	targetRank := layerRank(target)

	if layerRank(types.LayerPostgres) > targetRank && l3 != nil {
		l3.Delete(ctx, key)
	}
	if layerRank(types.LayerRedis) > targetRank && l2 != nil {
		l2.Delete(ctx, key)
	}
	if layerRank(types.LayerMemory) > targetRank {
		l1.Delete(ctx, key)
	}
	return true
}
