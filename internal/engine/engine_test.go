package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nuvex/nuvex/internal/types"
)

// newMemoryOnlyEngine builds an Engine with no L2/L3 connectors, so
// Connect succeeds immediately and every operation runs entirely against
// L1. This covers everything the state machine and layer-targeted/fallback
// logic can exercise without a live Redis or Postgres instance.
func newMemoryOnlyEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{
		MemoryMaxSize:    100,
		DefaultMemoryTTL: time.Hour,
		DefaultCacheTTL:  time.Minute,
	})
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	t.Cleanup(func() { e.Disconnect(context.Background()) })
	return e
}

func TestStateMachineTransitions(t *testing.T) {
	e := New(Config{MemoryMaxSize: 10})
	if e.State() != StateConstructed {
		t.Fatalf("expected StateConstructed, got %v", e.State())
	}
	if err := e.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	if e.State() != StateConnected {
		t.Fatalf("expected StateConnected, got %v", e.State())
	}
	if err := e.Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	if e.State() != StateDisconnected {
		t.Fatalf("expected StateDisconnected, got %v", e.State())
	}
}

func TestSetRequiresConnectedState(t *testing.T) {
	e := New(Config{MemoryMaxSize: 10})
	ok := e.Set(context.Background(), "k", []byte("v"), types.SetOptions{})
	if ok {
		t.Fatalf("expected Set on a non-connected engine to return false")
	}
}

func TestGetSetRoundTripMemoryOnly(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()

	if !e.Set(ctx, "a", []byte("1"), types.SetOptions{}) {
		t.Fatalf("Set returned false")
	}
	v, ok, err := e.Get(ctx, "a", types.GetOptions{})
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("got %q, %v, %v; want \"1\", true, nil", v, ok, err)
	}
}

func TestIncrementFallsBackToMemoryLayer(t *testing.T) {
	// Concrete scenario 3's shape (atomic increment), restricted to the
	// case where only L1 is configured.
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()

	start := make(chan struct{})
	const workers = 20
	results := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		go func() {
			<-start
			n, err := e.Increment(ctx, "counter", 1, types.SetOptions{})
			if err != nil {
				t.Error(err)
				return
			}
			results <- n
		}()
	}
	close(start)

	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		n := <-results
		if seen[n] {
			t.Fatalf("duplicate increment result %d, lost update", n)
		}
		seen[n] = true
	}
}

func TestDeleteIsBestEffortAndAlwaysSucceeds(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()
	if !e.Delete(ctx, "absent-key", types.DeleteOptions{}) {
		t.Fatalf("expected delete of an absent key to still report success")
	}
}

func TestExistsShortCircuits(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()
	e.Set(ctx, "present", []byte("1"), types.SetOptions{})
	if !e.Exists(ctx, "present", types.ExistsOptions{}) {
		t.Fatalf("expected present to exist")
	}
	if e.Exists(ctx, "absent", types.ExistsOptions{}) {
		t.Fatalf("expected absent to not exist")
	}
}

func TestExpireAbsentKeyFails(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()
	if e.Expire(ctx, "nope", types.SetOptions{TTL: time.Minute}) {
		t.Fatalf("expected expire on an absent key to return false")
	}
}

func TestPromoteDemote(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()
	memTag := types.LayerMemory

	e.Set(ctx, "k", []byte("v"), types.SetOptions{Layer: &memTag})
	if !e.Promote(ctx, "k", types.LayerMemory) {
		t.Fatalf("promote failed")
	}
	if !e.Demote(ctx, "k", types.LayerMemory) {
		t.Fatalf("demote failed")
	}
}

func TestHealthCheckPartialSelector(t *testing.T) {
	// Concrete scenario 6 from spec.md §8, restricted to layers actually
	// reachable in a memory-only test engine: "redis" and "postgres" are
	// unconfigured here, so both must report false and "memory" must be
	// absent when not requested.
	e := newMemoryOnlyEngine(t)
	result := e.HealthCheck(context.Background(), []string{"redis", "postgres"})
	if len(result) != 2 {
		t.Fatalf("expected exactly 2 entries, got %d", len(result))
	}
	if _, present := result["memory"]; present {
		t.Fatalf("expected no memory key in a selector that didn't request it")
	}
	if result["redis"] {
		t.Fatalf("expected redis to be unhealthy (not configured)")
	}
	if result["postgres"] {
		t.Fatalf("expected postgres to be unhealthy (not configured)")
	}
}

func TestGetBatchCollectsPerEntryResults(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()
	e.Set(ctx, "a", []byte("1"), types.SetOptions{})

	results := e.GetBatch(ctx, []string{"a", "missing"}, types.GetOptions{})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Success || string(results[0].Value.([]byte)) != "1" {
		t.Fatalf("expected first entry to succeed with value 1, got %+v", results[0])
	}
	if results[1].Success {
		t.Fatalf("expected second entry (missing key) to report failure")
	}
}

func TestMetricsSnapshotTracksHitsAndMisses(t *testing.T) {
	e := newMemoryOnlyEngine(t)
	ctx := context.Background()
	e.Set(ctx, "a", []byte("1"), types.SetOptions{})
	e.Get(ctx, "a", types.GetOptions{})
	e.Get(ctx, "missing", types.GetOptions{})

	snap := e.GetMetrics(nil)
	if snap.MemoryHits != 1 {
		t.Fatalf("expected 1 memory hit, got %d", snap.MemoryHits)
	}
	if snap.Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", snap.Misses)
	}
}
