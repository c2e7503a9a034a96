package types

import (
	"context"
	"time"
)

// Layer is the capability set shared by the two cache tiers, L1
// (memlayer.Layer) and L2 (redislayer.Layer); both assert conformance with a
// var _ Layer = (*...)(nil) declaration. L3 (pglayer.Layer) deliberately
// doesn't satisfy it: it's the authoritative store, not a cache, so its Set
// returns error instead of bool and its Increment takes *time.Duration
// instead of time.Duration. The engine holds three named fields of
// differing concrete types rather than a homogeneous slice of Layer for the
// same reason — see spec.md §9's note on replacing inheritance-based
// dispatch with an explicit capability interface plus named, semantically
// distinct fields on the orchestrator.
type Layer interface {
	// Get returns the value stored at key, or ok=false if absent or
	// expired. Layer-internal errors are logged and surfaced as a miss,
	// never returned, per spec.md §7's propagation policy for read paths.
	Get(ctx context.Context, key string) (value []byte, ok bool)
	// Set stores value at key with the given TTL (zero means "never
	// expires"). Returns false on failure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool
	// Delete removes key. Returns true if the key existed.
	Delete(ctx context.Context, key string) bool
	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) bool
	// Clear removes every entry from this layer.
	Clear(ctx context.Context) error
	// Ping exercises a minimal round trip to verify the layer is healthy.
	Ping(ctx context.Context) bool
	// Increment atomically adjusts the numeric interpretation of key by
	// delta (treating an absent key as 0) and returns the new value.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
}
