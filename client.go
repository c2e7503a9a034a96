// Package nuvex implements a tiered key/value storage engine fronting a
// durable relational store (L3) with two progressively faster caches: an
// in-process LRU memory cache (L1) and an optional distributed cache (L2).
//
// The Client facade wraps internal/engine.Engine, adding namespace
// helpers, batch conveniences, backup/restore, and a process-singleton
// lifecycle — grounded on cache-manager/service.go's once.Do(initService)
// pattern, adapted from Encore's generated-HTTP-endpoint style to plain
// exported Go methods.
package nuvex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nuvex/nuvex/internal/backup"
	"github.com/nuvex/nuvex/internal/engine"
	"github.com/nuvex/nuvex/internal/pglayer"
	"github.com/nuvex/nuvex/internal/redislayer"
	"github.com/nuvex/nuvex/internal/schema"
	"github.com/nuvex/nuvex/internal/telemetry"
	"github.com/nuvex/nuvex/internal/types"
)

// Client is the public entry point. All operations delegate to an
// internal/engine.Engine; Client itself holds no storage state beyond
// namespace/backup bookkeeping.
type Client struct {
	mu             sync.Mutex
	eng            *engine.Engine
	cfg            Config
	log            *telemetry.Logger
	lastFullBackup *time.Time
}

var (
	instance     *Client
	instanceOnce sync.Once
	instanceMu   sync.Mutex
)

// Create builds a new, independent Client (not the process singleton).
// Useful for tests and for hosts that want more than one engine instance.
func Create(cfg Config) *Client {
	log := telemetry.New()
	log.Configure(cfg.Logging.Enabled, telemetry.Level(cfg.Logging.Level))

	c := &Client{cfg: cfg, log: log}
	c.eng = engine.New(engine.Config{
		MemoryMaxSize:    cfg.Memory.MaxSize,
		DefaultMemoryTTL: cfg.Memory.TTL,
		DefaultCacheTTL:  cfg.Redis.TTL,
		CleanupInterval:  cfg.Memory.CleanupInterval,
		Log:              log,
		Connectors: engine.Connectors{
			ConnectRedis:    c.connectRedis,
			ConnectPostgres: c.connectPostgres,
		},
	})
	return c
}

// Initialize builds and connects the process-wide singleton. Calling it
// more than once is a no-op after the first call (matching
// cache-manager/service.go's sync.Once-guarded initService).
func Initialize(ctx context.Context, cfg Config) (*Client, error) {
	var err error
	instanceOnce.Do(func() {
		instanceMu.Lock()
		instance = Create(cfg)
		instanceMu.Unlock()
		err = instance.Connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return GetInstance()
}

// GetInstance returns the process singleton, failing if Initialize hasn't
// run yet.
func GetInstance() (*Client, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		return nil, fmt.Errorf("nuvex: client not initialized, call Initialize first")
	}
	return instance, nil
}

// Shutdown disconnects and clears the process singleton.
func Shutdown(ctx context.Context) error {
	instanceMu.Lock()
	c := instance
	instance = nil
	instanceMu.Unlock()
	if c == nil {
		return nil
	}
	return c.Disconnect(ctx)
}

func (c *Client) connectRedis(ctx context.Context) (*redislayer.Layer, error) {
	if c.cfg.Redis.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(c.cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return redislayer.New(client, c.log), nil
}

func (c *Client) connectPostgres(ctx context.Context) (*pglayer.Layer, error) {
	if c.cfg.Postgres.Host == "" {
		return nil, nil
	}
	sslmode := "prefer"
	switch c.cfg.Postgres.SSL {
	case SSLOff:
		sslmode = "disable"
	case SSLCustom:
		sslmode = "require"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.cfg.Postgres.User, c.cfg.Postgres.Password,
		c.cfg.Postgres.Host, c.cfg.Postgres.Port, c.cfg.Postgres.Database, sslmode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	if c.cfg.Postgres.Max > 0 {
		poolCfg.MaxConns = int32(c.cfg.Postgres.Max)
	}
	if c.cfg.Postgres.ConnectionTimeoutMillis > 0 {
		poolCfg.ConnConfig.ConnectTimeout = time.Duration(c.cfg.Postgres.ConnectionTimeoutMillis) * time.Millisecond
	}
	if c.cfg.Postgres.IdleTimeoutMillis > 0 {
		poolCfg.MaxConnIdleTime = time.Duration(c.cfg.Postgres.IdleTimeoutMillis) * time.Millisecond
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	mgr, err := schema.New(schema.Config{
		TableName:      c.cfg.Postgres.Schema.TableName,
		KeyColumn:      c.cfg.Postgres.Schema.KeyColumn,
		ValueColumn:    c.cfg.Postgres.Schema.ValueColumn,
		EnableTrigram:  c.cfg.Postgres.Schema.EnableTrigram,
		EnableSchedule: c.cfg.Postgres.Schema.EnableSchedule,
		ScheduleName:   c.cfg.Postgres.Schema.ScheduleName,
		ScheduleCron:   c.cfg.Postgres.Schema.ScheduleCron,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := mgr.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	if c.cfg.Postgres.Schema.EnableSchedule {
		if err := mgr.ApplySchedule(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return pglayer.New(pool, true, c.cfg.Postgres.Schema.TableName, c.cfg.Postgres.Schema.KeyColumn, c.cfg.Postgres.Schema.ValueColumn, c.log), nil
}

// Connect implements connect().
func (c *Client) Connect(ctx context.Context) error {
	return c.eng.Connect(ctx)
}

// Disconnect implements disconnect().
func (c *Client) Disconnect(ctx context.Context) error {
	return c.eng.Disconnect(ctx)
}

// IsConnected implements isConnected().
func (c *Client) IsConnected() bool {
	return c.eng.State() == engine.StateConnected
}

// Configure merges partial into the running configuration and re-applies
// the merged logging enabled flag and level to the logger, without
// reconnecting (spec.md §4.5). The logger keeps writing to the same sink.
func (c *Client) Configure(partial Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = c.cfg.merge(partial)
	c.log.Configure(c.cfg.Logging.Enabled, telemetry.Level(c.cfg.Logging.Level))
}

// GetConfig returns a snapshot of the current configuration.
func (c *Client) GetConfig() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func namespacedKey(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// NamespaceGet retrieves key scoped to namespace ns, composing "<ns>:<key>"
// per spec.md §4.5's namespace helpers.
func (c *Client) NamespaceGet(ctx context.Context, ns, key string, out any, opts types.GetOptions) (bool, error) {
	return c.Get(ctx, namespacedKey(ns, key), out, opts)
}

// NamespaceSet stores value under key scoped to namespace ns.
func (c *Client) NamespaceSet(ctx context.Context, ns, key string, value any, opts types.SetOptions) (bool, error) {
	return c.Set(ctx, namespacedKey(ns, key), value, opts)
}

// NamespaceKeys enumerates every key belonging to namespace ns, stripping
// the "<ns>:" prefix from the results.
func (c *Client) NamespaceKeys(ctx context.Context, ns string) ([]string, error) {
	res, err := c.eng.Query(ctx, types.QueryOptions{Pattern: ns + ":*", Limit: getByPrefixLimit})
	if err != nil {
		return nil, err
	}
	prefix := ns + ":"
	out := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, it.Key[len(prefix):])
	}
	return out, nil
}

// NamespaceClear deletes every key belonging to namespace ns, returning the
// count removed.
func (c *Client) NamespaceClear(ctx context.Context, ns string) (int, error) {
	return c.Clear(ctx, ns+":*")
}

// marshalValue/unmarshalValue cross the engine's []byte boundary with
// plain encoding/json, matching cache-manager/service.go's
// json.Marshal(entry)/json.Unmarshal convention.
func marshalValue(v any) ([]byte, error) { return json.Marshal(v) }

func unmarshalInto(data []byte, out any) error { return json.Unmarshal(data, out) }

// Get retrieves key's value, decoding it into out.
func (c *Client) Get(ctx context.Context, key string, out any, opts types.GetOptions) (bool, error) {
	v, ok, err := c.eng.Get(ctx, key, opts)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	return true, unmarshalInto(v, out)
}

// Set stores value under key.
func (c *Client) Set(ctx context.Context, key string, value any, opts types.SetOptions) (bool, error) {
	data, err := marshalValue(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.eng.Set(ctx, key, data, opts), nil
}

// SetIfNotExists implements the facade's setIfNotExists: check-then-set,
// intentionally non-atomic across concurrent callers — see SPEC_FULL.md
// §9's resolution of this open question.
func (c *Client) SetIfNotExists(ctx context.Context, key string, value any, opts types.SetOptions) (bool, error) {
	if c.eng.Exists(ctx, key, types.ExistsOptions{Layer: opts.Layer}) {
		return false, nil
	}
	return c.Set(ctx, key, value, opts)
}

// Delete implements delete(k).
func (c *Client) Delete(ctx context.Context, key string, opts types.DeleteOptions) bool {
	return c.eng.Delete(ctx, key, opts)
}

// Exists implements exists(k).
func (c *Client) Exists(ctx context.Context, key string, opts types.ExistsOptions) bool {
	return c.eng.Exists(ctx, key, opts)
}

// Expire implements expire(k, ttl).
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) bool {
	return c.eng.Expire(ctx, key, types.SetOptions{TTL: ttl})
}

// Increment implements increment(k, δ, ttl?).
func (c *Client) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return c.eng.Increment(ctx, key, delta, types.SetOptions{TTL: ttl})
}

// Decrement is increment with a negated delta, per spec.md §6's
// decrement(k, δ, ttl?) pass-through.
func (c *Client) Decrement(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	return c.eng.Increment(ctx, key, -delta, types.SetOptions{TTL: ttl})
}

// getByPrefixLimit bounds a single getByPrefix() call; larger namespaces
// should page through Query directly instead.
const getByPrefixLimit = 10000

// GetByPrefix enumerates keys with the given prefix and fetches each.
func (c *Client) GetByPrefix(ctx context.Context, prefix string) (types.QueryResult, error) {
	return c.eng.Query(ctx, types.QueryOptions{Pattern: prefix + "*", Limit: getByPrefixLimit})
}

// Query implements query(opts).
func (c *Client) Query(ctx context.Context, opts types.QueryOptions) (types.QueryResult, error) {
	return c.eng.Query(ctx, opts)
}

// Keys implements keys(pattern?).
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	all, err := c.eng.Keys(ctx)
	if err != nil || pattern == "" || pattern == "*" {
		return all, err
	}
	res, err := c.eng.Query(ctx, types.QueryOptions{Pattern: pattern, Limit: len(all) + 1})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, it.Key)
	}
	return out, nil
}

// Clear implements clear(pattern?) → count. An empty pattern clears every
// layer entirely; a pattern restricts the clear to matching keys.
func (c *Client) Clear(ctx context.Context, pattern string) (int, error) {
	return c.eng.Clear(ctx, pattern)
}

// GetMetrics implements getMetrics(layers?).
func (c *Client) GetMetrics(layers []types.LayerTag) telemetry.Snapshot {
	return c.eng.GetMetrics(layers)
}

// ResetMetrics implements resetMetrics().
func (c *Client) ResetMetrics() {
	c.eng.ResetMetrics()
}

// HealthCheck implements healthCheck(layers?).
func (c *Client) HealthCheck(ctx context.Context, layers []string) map[string]bool {
	return c.eng.HealthCheck(ctx, layers)
}

// GetBatch implements getBatch(): sequential per-key gets, collecting a
// result per entry. Since there's no per-key destination type, each
// successful Value is decoded into a generic interface{}.
func (c *Client) GetBatch(ctx context.Context, keys []string, opts types.GetOptions) []types.BatchResult {
	raw := c.eng.GetBatch(ctx, keys, opts)
	out := make([]types.BatchResult, len(raw))
	for i, r := range raw {
		out[i] = types.BatchResult{Key: r.Key, Success: r.Success, Err: r.Err}
		if !r.Success {
			continue
		}
		data, ok := r.Value.([]byte)
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			out[i].Success = false
			out[i].Err = fmt.Errorf("failed to unmarshal value for key %q: %w", r.Key, err)
			continue
		}
		out[i].Value = v
	}
	return out
}

// SetBatch implements setBatch(): sequential per-key sets, collecting a
// result per entry. A marshal failure fails only that entry.
func (c *Client) SetBatch(ctx context.Context, entries map[string]any, opts types.SetOptions) []types.BatchResult {
	encoded := make(map[string][]byte, len(entries))
	out := make([]types.BatchResult, 0, len(entries))
	for k, v := range entries {
		data, err := marshalValue(v)
		if err != nil {
			out = append(out, types.BatchResult{Key: k, Success: false, Err: fmt.Errorf("failed to marshal value for key %q: %w", k, err)})
			continue
		}
		encoded[k] = data
	}
	raw := c.eng.SetBatch(ctx, encoded, opts)
	for _, r := range raw {
		out = append(out, types.BatchResult{Key: r.Key, Success: r.Success})
	}
	return out
}

// DeleteBatch implements deleteBatch(): sequential per-key deletes,
// collecting a result per entry.
func (c *Client) DeleteBatch(ctx context.Context, keys []string, opts types.DeleteOptions) []types.BatchResult {
	raw := c.eng.DeleteBatch(ctx, keys, opts)
	out := make([]types.BatchResult, len(raw))
	for i, r := range raw {
		out[i] = types.BatchResult{Key: r.Key, Success: r.Success}
	}
	return out
}

// Promote implements promote(k, target).
func (c *Client) Promote(ctx context.Context, key string, target types.LayerTag) bool {
	return c.eng.Promote(ctx, key, target)
}

// Demote implements demote(k, target).
func (c *Client) Demote(ctx context.Context, key string, target types.LayerTag) bool {
	return c.eng.Demote(ctx, key, target)
}

// GetLayerInfo implements getLayerInfo().
func (c *Client) GetLayerInfo() map[string]bool {
	return c.eng.LayerInfo()
}

// Cleanup implements cleanup().
func (c *Client) Cleanup(ctx context.Context) int {
	return c.eng.Cleanup(ctx)
}

// Compact implements compact().
func (c *Client) Compact(ctx context.Context) error {
	return c.eng.Compact(ctx)
}
