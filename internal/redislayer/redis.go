// Package redislayer implements L2, the optional distributed cache layer.
// The tiering shape is grounded on cache-manager/service.go's RemoteCache
// interface (Get/Set/Delete/DeletePattern), but the concrete client is
// github.com/redis/go-redis/v9 — the teacher only ever abstracts L2 behind
// an interface and never imports a driver for it. The retrieval pack's own
// tiered-cache implementations (e.g. the GridCache tiering in
// other_examples/) consistently reach for go-redis/v9 for this exact role,
// so that's what backs it here.
package redislayer

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nuvex/nuvex/internal/telemetry"
	"github.com/nuvex/nuvex/internal/types"
)

// Layer is the L2 CacheLayer backed by a single Redis server or cluster
// endpoint. Unlike L1, every operation crosses the network, so errors are
// routine (timeouts, connection resets) rather than exceptional — callers
// in internal/engine treat any Layer method failure as "L2 unavailable,
// fall through" per spec.md §4.4.1's best-effort tiering.
type Layer struct {
	client *redis.Client
	log    *telemetry.Logger
}

// Layer satisfies the shared capability set in internal/types, the same
// shape memlayer.Layer implements; see that package's assertion for why
// pglayer.Layer doesn't.
var _ types.Layer = (*Layer)(nil)

// New wraps an already-constructed *redis.Client. Connection options
// (address, password, DB index, pool size) are the caller's concern, built
// from Config.Redis in the root package, mirroring how the teacher's
// Service accepts a RemoteCache it doesn't construct itself.
func New(client *redis.Client, log *telemetry.Logger) *Layer {
	return &Layer{client: client, log: log}
}

// Get returns the raw bytes for key, or ok=false on miss or error. Errors
// are logged but not surfaced — per spec.md, L2 is always an optional,
// skippable layer.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := l.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.warn("get", key, err)
		}
		return nil, false
	}
	return v, true
}

// Set writes key with the given TTL (0 means no expiry).
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if err := l.client.Set(ctx, key, value, ttl).Err(); err != nil {
		l.warn("set", key, err)
		return false
	}
	return true
}

// Delete removes key, reporting whether it was present.
func (l *Layer) Delete(ctx context.Context, key string) bool {
	n, err := l.client.Del(ctx, key).Result()
	if err != nil {
		l.warn("delete", key, err)
		return false
	}
	return n > 0
}

// Exists reports whether key is present.
func (l *Layer) Exists(ctx context.Context, key string) bool {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		l.warn("exists", key, err)
		return false
	}
	return n > 0
}

// Clear flushes the entire logical Redis database this client is bound to.
// Used by clear() with no namespace restriction; namespace-scoped clears go
// through DeletePattern instead (see internal/engine).
func (l *Layer) Clear(ctx context.Context) error {
	return l.client.FlushDB(ctx).Err()
}

// Ping issues a native Redis PING.
func (l *Layer) Ping(ctx context.Context) bool {
	return l.client.Ping(ctx).Err() == nil
}

// Increment uses native INCRBY, then applies ttl with a separate EXPIRE
// call whenever ttl > 0, refreshing the expiry on every increment. go-redis doesn't expose
// an atomic "INCRBY with TTL" primitive, so a freshly created counter has a
// brief window where it exists without its TTL set; this mirrors the same
// best-effort tradeoff the teacher accepts for L2 consistency elsewhere.
func (l *Layer) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	next, err := l.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		l.warn("increment", key, err)
		return 0, err
	}
	if ttl > 0 {
		if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
			l.warn("increment-expire", key, err)
		}
	}
	return next, nil
}

// DeletePattern removes every key matching a glob pattern, using SCAN to
// avoid blocking the server the way KEYS would. Grounded on the RemoteCache
// interface's DeletePattern method; invoked by internal/engine's Clear when
// a pattern-scoped clear()'s pattern uses only glob wildcards Redis' own
// MATCH syntax understands, instead of one Delete round trip per key.
func (l *Layer) DeletePattern(ctx context.Context, pattern string) error {
	iter := l.client.Scan(ctx, 0, pattern, 0).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 256 {
			if err := l.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return l.client.Del(ctx, batch...).Err()
	}
	return nil
}

func (l *Layer) warn(op, key string, err error) {
	if l.log == nil {
		return
	}
	l.log.Warn("l2 operation failed", telemetry.Fields{"op": op, "key": key, "error": err.Error()})
}
