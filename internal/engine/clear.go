package engine

import (
	"context"

	"github.com/nuvex/nuvex/internal/pattern"
	"github.com/nuvex/nuvex/internal/telemetry"
	"github.com/nuvex/nuvex/internal/types"
)

// Clear implements spec.md §6's clear(pattern?) → count. An empty or "*"
// pattern flushes every layer outright (cheaper than per-key deletes); a
// restrictive pattern enumerates matches, deletes them from L1/L3 per key,
// and — when the pattern uses nothing but the glob wildcards Redis' own
// MATCH syntax understands — delegates L2's half of the deletion to a
// single DeletePattern scan instead of one round trip per key (grounded on
// RemoteCache.DeletePattern, the teacher's namespace-invalidation path).
func (e *Engine) Clear(ctx context.Context, globPattern string) (int, error) {
	if !e.connected() {
		return 0, types.ErrNotConnected
	}
	l1, l2, l3 := e.layers()

	if globPattern == "" || globPattern == "*" {
		keys, err := e.Keys(ctx)
		if err != nil {
			return 0, err
		}
		l1.Clear(ctx)
		if l3 != nil {
			if err := l3.Clear(ctx); err != nil {
				return 0, err
			}
		}
		if l2 != nil {
			if err := l2.Clear(ctx); err != nil {
				e.log.Warn("l2 clear failed", telemetry.Fields{"error": err.Error()})
			}
		}
		return len(keys), nil
	}

	var keys []string
	var err error
	if l3 != nil {
		keys, err = l3.Keys(ctx, pattern.ToSQLLike(globPattern))
	} else {
		keys, err = pattern.Filter(globPattern, l1.Keys(ctx))
	}
	if err != nil {
		return 0, err
	}

	for _, k := range keys {
		l1.Delete(ctx, k)
		if l3 != nil {
			l3.Delete(ctx, k)
		}
	}

	if l2 != nil {
		if pattern.IsGlobOnly(globPattern) {
			if err := l2.DeletePattern(ctx, globPattern); err != nil {
				e.log.Warn("l2 pattern delete failed", telemetry.Fields{"pattern": globPattern, "error": err.Error()})
			}
		} else {
			for _, k := range keys {
				l2.Delete(ctx, k)
			}
		}
	}

	return len(keys), nil
}
