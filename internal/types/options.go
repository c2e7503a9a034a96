package types

import "time"

// LayerTag is a closed sum type identifying one of the three storage tiers.
// Replaces the source's duck-typed "layer" string option per the redesign
// note in spec.md §9.
type LayerTag int

const (
	// LayerMemory is the in-process LRU cache (L1).
	LayerMemory LayerTag = iota
	// LayerRedis is the optional distributed cache (L2).
	LayerRedis
	// LayerPostgres is the durable relational store (L3).
	LayerPostgres
)

func (l LayerTag) String() string {
	switch l {
	case LayerMemory:
		return "memory"
	case LayerRedis:
		return "redis"
	case LayerPostgres:
		return "postgres"
	default:
		return "unknown"
	}
}

// ParseLayerTag maps the wire/config names used across the public surface
// ("memory", "redis", "postgres") to a LayerTag.
func ParseLayerTag(s string) (LayerTag, bool) {
	switch s {
	case "memory":
		return LayerMemory, true
	case "redis":
		return LayerRedis, true
	case "postgres":
		return LayerPostgres, true
	default:
		return 0, false
	}
}

// GetOptions configures a single get() call.
type GetOptions struct {
	// TTL, when set, re-arms the TTL of any layer the value is warmed into
	// as a result of this read. Zero means "use each layer's default TTL".
	TTL time.Duration
	// Layer, when non-nil, bypasses the cascade and reads only that layer.
	Layer *LayerTag
	// SkipCache forces a direct L3 read, bypassing L1/L2 entirely.
	SkipCache bool
}

// SetOptions configures a single set() call.
type SetOptions struct {
	// TTL is the time-to-live applied to the write. Zero means "use each
	// layer's configured default".
	TTL time.Duration
	// Layer, when non-nil, targets the write at a single layer and bypasses
	// the L3-first source-of-truth rule (layer-targeted intent).
	Layer *LayerTag
}

// DeleteOptions configures a single delete() call.
type DeleteOptions struct {
	// Layer, when non-nil, restricts the delete to that layer.
	Layer *LayerTag
}

// ExistsOptions configures a single exists() call.
type ExistsOptions struct {
	// Layer, when non-nil, restricts the check to that layer.
	Layer *LayerTag
}

// SortField selects the field query() sorts by.
type SortField int

const (
	SortByKey SortField = iota
	SortByCreatedAt
)

// SortDirection selects query() sort direction.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// QueryOptions configures query().
type QueryOptions struct {
	Pattern   string
	SortField SortField
	SortDir   SortDirection
	Offset    int
	Limit     int
}

// QueryItem is one row of a query() result.
type QueryItem struct {
	Key       string
	Value     any
	CreatedAt time.Time
}

// QueryResult is the return value of query().
type QueryResult struct {
	Items   []QueryItem
	HasMore bool
}

// BatchResult is one entry of a batch operation's result set.
type BatchResult struct {
	Key     string
	Success bool
	Value   any
	Err     error
}
