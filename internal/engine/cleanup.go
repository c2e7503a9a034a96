package engine

import (
	"context"
	"time"

	"github.com/nuvex/nuvex/internal/telemetry"
)

// startCleanupScheduler implements spec.md §4.4.10: a recurring timer
// invoking L1.cleanup() every memoryTTL/24 (or memory.cleanupInterval, when
// configured, per spec.md §6's override knob), cancelled on disconnect.
// Grounded on cache-manager/service.go's runTTLCleanup/Shutdown pair,
// reused almost verbatim since memlayer.Layer already owns its own
// ticker lifecycle (StartCleanupTicker/StopCleanupTicker).
func (e *Engine) startCleanupScheduler() {
	interval := e.cleanupInterval
	if interval <= 0 {
		interval = e.defaultMemoryTTL / 24
	}
	if interval <= 0 {
		interval = time.Minute
	}
	e.l1.StartCleanupTicker(interval)

	if e.l3 == nil {
		return
	}
	l3 := e.l3
	stop := e.cleanupStop
	e.cleanupWG.Add(1)
	go func() {
		defer e.cleanupWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n, err := l3.Cleanup(context.Background()); err != nil {
					e.log.Warn("l3 cleanup sweep failed", telemetry.Fields{"error": err.Error()})
				} else if n > 0 {
					e.log.Debug("l3 cleanup sweep evicted expired rows", telemetry.Fields{"count": n})
				}
			}
		}
	}()
}

func (e *Engine) stopCleanupScheduler() {
	e.l1.StopCleanupTicker()
	select {
	case <-e.cleanupStop:
	default:
		close(e.cleanupStop)
	}
	e.cleanupWG.Wait()
}

// Cleanup runs an immediate out-of-band sweep of L1 (and L3, if present),
// used by the Client facade's exposed cleanup() operation in addition to
// the background scheduler.
func (e *Engine) Cleanup(ctx context.Context) int {
	n := e.l1.Cleanup(ctx)
	_, _, l3 := e.layers()
	if l3 != nil {
		if m, err := l3.Cleanup(ctx); err == nil {
			n += m
		}
	}
	return n
}

// Compact reclaims dead-tuple space at L3, backing the facade's compact().
// A no-op when L3 isn't configured.
func (e *Engine) Compact(ctx context.Context) error {
	_, _, l3 := e.layers()
	if l3 == nil {
		return nil
	}
	return l3.Compact(ctx)
}

// Keys enumerates every non-expired key known to the engine, preferring
// L3 (the source of truth) when present and falling back to L1's resident
// key set otherwise. Used by the backup path, Clear, and the facade's
// keys() helper.
func (e *Engine) Keys(ctx context.Context) ([]string, error) {
	l1, _, l3 := e.layers()
	if l3 != nil {
		return l3.Keys(ctx, "")
	}
	return l1.Keys(ctx), nil
}
