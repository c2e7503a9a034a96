// Package engine implements StorageEngine, the orchestrator composing
// L1/L2/L3 into the read cascade, L3-first write protocol, increment
// cascade, and health/metrics aggregation. Grounded on
// cache-manager/service.go's Service — its Get/Set/fetchWithFallback
// method shapes and once.Do-free, explicit-handle construction style —
// generalized from the teacher's two-layer (L1+L2) model to the spec's
// three-layer model with L3 as source of truth.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nuvex/nuvex/internal/memlayer"
	"github.com/nuvex/nuvex/internal/pglayer"
	"github.com/nuvex/nuvex/internal/redislayer"
	"github.com/nuvex/nuvex/internal/telemetry"
)

// State is the engine's connection lifecycle state (spec.md §4.4.12).
type State int

const (
	StateConstructed State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connectors are the lazy constructors the engine invokes during connect().
// Each returns nil if that layer isn't configured at all (L2/L3 are
// optional at the engine's boundary; L1 always exists).
type Connectors struct {
	ConnectRedis    func(ctx context.Context) (*redislayer.Layer, error)
	ConnectPostgres func(ctx context.Context) (*pglayer.Layer, error)
}

// Engine is the StorageEngine. l1 is always present; l2/l3 may be nil,
// reflecting "the engine owns three named fields, not a homogeneous
// vector, because their semantics differ" (spec.md §9).
type Engine struct {
	mu sync.RWMutex

	state State

	l1 *memlayer.Layer
	l2 *redislayer.Layer
	l3 *pglayer.Layer

	connectors Connectors

	defaultMemoryTTL time.Duration
	defaultCacheTTL  time.Duration
	cleanupInterval  time.Duration

	metrics *telemetry.Metrics
	log     *telemetry.Logger

	fetchGroup singleflight.Group

	cleanupStop chan struct{}
	cleanupWG   sync.WaitGroup
}

// Config configures a new Engine. L1 is constructed eagerly since it has
// no external dependency; L2/L3 are connected lazily by connect().
type Config struct {
	MemoryMaxSize    int
	DefaultMemoryTTL time.Duration // drives cleanup cadence: ttl/24, unless CleanupInterval overrides it
	DefaultCacheTTL  time.Duration // used when warming L2 and absent an operation-level TTL
	CleanupInterval  time.Duration // optional override for the L1/L3 cleanup cadence
	Connectors       Connectors
	Log              *telemetry.Logger
}

// New constructs an Engine in StateConstructed. It does not connect.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = telemetry.New()
	}
	return &Engine{
		state:            StateConstructed,
		l1:               memlayer.New(cfg.MemoryMaxSize, log),
		connectors:       cfg.Connectors,
		defaultMemoryTTL: cfg.DefaultMemoryTTL,
		defaultCacheTTL:  cfg.DefaultCacheTTL,
		cleanupInterval:  cfg.CleanupInterval,
		metrics:          &telemetry.Metrics{},
		log:              log,
		cleanupStop:      make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Connect implements spec.md §4.4.12's connect(): L2 is attempted but
// dropped (logged, not fatal) on failure; L3 is mandatory if configured —
// its failure aborts the call. The cleanup timer starts only on success.
func (e *Engine) Connect(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateConnecting
	e.mu.Unlock()

	var l2 *redislayer.Layer
	if e.connectors.ConnectRedis != nil {
		conn, err := e.connectors.ConnectRedis(ctx)
		if err != nil {
			e.log.Warn("l2 connect failed, proceeding without it", telemetry.Fields{"error": err.Error()})
		} else {
			l2 = conn
		}
	}

	var l3 *pglayer.Layer
	if e.connectors.ConnectPostgres != nil {
		conn, err := e.connectors.ConnectPostgres(ctx)
		if err != nil {
			e.mu.Lock()
			e.state = StateConstructed
			e.mu.Unlock()
			return fmt.Errorf("l3 connect failed: %w", err)
		}
		l3 = conn
	}

	e.mu.Lock()
	e.l2 = l2
	e.l3 = l3
	e.state = StateConnected
	e.cleanupStop = make(chan struct{})
	e.mu.Unlock()

	e.startCleanupScheduler()
	return nil
}

// Disconnect implements spec.md §4.4.12's disconnect(): stop the cleanup
// timer, drop L2/L3, mark disconnected. L3's pool is only closed if the
// engine owns it (pglayer.Layer.Close already honors that); L2 is released
// from the engine without closing its Redis client.
func (e *Engine) Disconnect(_ context.Context) error {
	e.mu.Lock()
	e.state = StateDisconnecting
	e.mu.Unlock()

	e.stopCleanupScheduler()

	e.mu.Lock()
	l3 := e.l3
	e.l3 = nil
	e.l2 = nil
	e.state = StateDisconnected
	e.mu.Unlock()

	if l3 != nil {
		l3.Close()
	}
	return nil
}

func (e *Engine) connected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateConnected
}

func (e *Engine) layers() (*memlayer.Layer, *redislayer.Layer, *pglayer.Layer) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.l1, e.l2, e.l3
}

// resolveTTL picks the operation-level TTL if set, otherwise the engine's
// configured default cache TTL (redis.ttl), used for L2 writes and as the
// fallback TTL passed to Increment/Expire callers that don't distinguish
// per-layer defaults.
func (e *Engine) resolveTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return e.defaultCacheTTL
}

// resolveMemoryTTL picks the operation-level TTL if set, otherwise the
// engine's configured default L1 TTL (memory.ttl). spec.md §6 keeps
// memory.ttl and redis.ttl as distinct knobs; L1 writes must default to the
// former, not to redis.ttl.
func (e *Engine) resolveMemoryTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return e.defaultMemoryTTL
}

func toTTLPtr(ttl time.Duration) *time.Duration {
	if ttl <= 0 {
		return nil
	}
	return &ttl
}
