// Package memlayer implements L1, the bounded LRU+TTL in-process memory
// cache. Grounded directly on cache-manager/cache.go's L1Cache: the same
// container/list.List + map[string]*entry structure, the same
// deleteUnsafe/evictLRUUnsafe internal split, and the same lazy-expiry-on-Get
// behavior, extended with ping/increment/cleanup per spec.md §4.1.
package memlayer

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nuvex/nuvex/internal/telemetry"
	"github.com/nuvex/nuvex/internal/types"
)

// Layer satisfies the shared capability set in internal/types: its
// Get/Set/Delete/Exists/Clear/Ping/Increment shapes line up exactly with
// redislayer.Layer's, since both are caches (unlike pglayer.Layer, whose
// atomic-upsert Set/Increment signatures differ because L3 is authoritative
// rather than a cache).
var _ types.Layer = (*Layer)(nil)

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means "never expires"
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Layer is the L1 MemoryLayer: a bounded, LRU-ordered, TTL-aware map local
// to the process. All operations are serialized on a single mutex — per
// spec.md §5, even reads mutate LRU order, so a read-write split offers no
// real concurrency benefit here.
type Layer struct {
	mu      sync.Mutex
	items   map[string]*entry
	order   *list.List
	maxSize int
	log     *telemetry.Logger

	tickerMu sync.Mutex
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

const probeKey = "__nuvex_l1_probe__"

// New creates an L1 layer bounded to maxSize entries.
func New(maxSize int, log *telemetry.Logger) *Layer {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Layer{
		items:   make(map[string]*entry, maxSize),
		order:   list.New(),
		maxSize: maxSize,
		log:     log,
	}
}

// Get returns the value for key if present and unexpired, moving it to the
// most-recently-used position. Lazy expiry: an expired entry is evicted on
// access and treated as absent.
func (l *Layer) Get(_ context.Context, key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		l.removeLocked(e)
		return nil, false
	}
	l.order.MoveToFront(e.elem)
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set inserts or replaces key, evicting the least-recently-used entry first
// if the layer is at capacity and key is not already present.
func (l *Layer) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	v := make([]byte, len(value))
	copy(v, value)

	if e, ok := l.items[key]; ok {
		e.value = v
		e.expiresAt = expiresAt
		l.order.MoveToFront(e.elem)
		return true
	}

	if len(l.items) >= l.maxSize {
		l.evictOldestLocked()
	}

	e := &entry{key: key, value: v, expiresAt: expiresAt}
	e.elem = l.order.PushFront(e)
	l.items[key] = e
	return true
}

// Delete removes key, returning whether it was present.
func (l *Layer) Delete(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.items[key]
	if !ok {
		return false
	}
	l.removeLocked(e)
	return true
}

// Exists reports whether key is present and unexpired, applying the same
// lazy-expiry rule as Get (but without disturbing LRU order, since spec.md
// doesn't require an Exists check to count as a "use").
func (l *Layer) Exists(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.items[key]
	if !ok {
		return false
	}
	if e.expired(time.Now()) {
		l.removeLocked(e)
		return false
	}
	return true
}

// Clear removes every entry.
func (l *Layer) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = make(map[string]*entry, l.maxSize)
	l.order = list.New()
	return nil
}

// Ping exercises a write+delete of an internal probe key.
func (l *Layer) Ping(ctx context.Context) bool {
	if !l.Set(ctx, probeKey, []byte("1"), time.Second) {
		return false
	}
	l.Delete(ctx, probeKey)
	return true
}

// Increment reads the current numeric value (absent treated as 0), writes
// cur+delta with the given TTL, and returns the new value. In the engine's
// cascade (L3 > L2 > L1) this is the authoritative increment only when
// neither L2 nor L3 is configured.
func (l *Layer) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cur int64
	if e, ok := l.items[key]; ok && !e.expired(time.Now()) {
		if n, err := strconv.ParseInt(string(e.value), 10, 64); err == nil {
			cur = n
		}
	}
	next := cur + delta

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	val := []byte(strconv.FormatInt(next, 10))

	if e, ok := l.items[key]; ok {
		e.value = val
		e.expiresAt = expiresAt
		l.order.MoveToFront(e.elem)
	} else {
		if len(l.items) >= l.maxSize {
			l.evictOldestLocked()
		}
		e := &entry{key: key, value: val, expiresAt: expiresAt}
		e.elem = l.order.PushFront(e)
		l.items[key] = e
	}
	return next, nil
}

// Cleanup scans all entries and deletes those whose TTL has elapsed,
// returning the count removed. Runs periodically via the cleanup ticker the
// engine starts (spec.md §4.4.10); Get/Exists separately drop a single
// expired entry when they touch it.
func (l *Layer) Cleanup(_ context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var expired []*entry
	for _, e := range l.items {
		if e.expired(now) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		l.removeLocked(e)
	}
	return len(expired)
}

// Keys returns a snapshot of every non-expired key currently held. Used by
// the engine's query()/getByPrefix()/namespace helpers to enumerate L1,
// which (unlike L3) keeps its full keyspace resident in memory already.
func (l *Layer) Keys(_ context.Context) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	out := make([]string, 0, len(l.items))
	for k, e := range l.items {
		if !e.expired(now) {
			out = append(out, k)
		}
	}
	return out
}

// Size returns the current entry count.
func (l *Layer) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// MaxSize returns the configured capacity.
func (l *Layer) MaxSize() int { return l.maxSize }

// StartCleanupTicker launches a background goroutine invoking Cleanup every
// interval, until StopCleanupTicker is called. Grounded on
// cache-manager/service.go's runTTLCleanup/Shutdown pair.
func (l *Layer) StartCleanupTicker(interval time.Duration) {
	if interval <= 0 {
		return
	}
	l.tickerMu.Lock()
	stop := make(chan struct{})
	l.stopCh = stop
	l.tickerMu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n := l.Cleanup(context.Background())
				if n > 0 && l.log != nil {
					l.log.Debug("l1 cleanup evicted expired entries", telemetry.Fields{"count": n})
				}
			}
		}
	}()
}

// StopCleanupTicker cancels the background cleanup goroutine, if running.
// Safe to call more than once, and safe to call even if no ticker was ever
// started (e.g. a memory-only engine that never calls connect()).
func (l *Layer) StopCleanupTicker() {
	l.tickerMu.Lock()
	stop := l.stopCh
	l.stopCh = nil
	l.tickerMu.Unlock()
	if stop != nil {
		close(stop)
	}
	l.wg.Wait()
}

func (l *Layer) removeLocked(e *entry) {
	l.order.Remove(e.elem)
	delete(l.items, e.key)
}

func (l *Layer) evictOldestLocked() {
	oldest := l.order.Back()
	if oldest == nil {
		return
	}
	e := oldest.Value.(*entry)
	l.order.Remove(oldest)
	delete(l.items, e.key)
}
