package nuvex

import "time"

// Config is the top-level configuration surface described in spec.md §6.
// Nested structs mirror the teacher's Config in cache-manager/service.go
// (a flat struct of tunables passed to initService), expanded to the
// three-layer shape.
type Config struct {
	Postgres PostgresConfig
	Redis    RedisConfig
	Memory   MemoryConfig
	Logging  LoggingConfig
}

// PostgresConfig drives L3's connection and schema.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSL      SSLMode

	Max                     int // pool size, default 10
	IdleTimeoutMillis       int
	ConnectionTimeoutMillis int

	Schema SchemaColumnsConfig
}

// SSLMode is a closed set of TLS modes for the L3 connection.
type SSLMode int

const (
	SSLOff SSLMode = iota
	SSLDefault
	SSLCustom
)

// SchemaColumnsConfig names the L3 table and its identifier columns; all
// three are validated per I6 before SchemaManager uses them.
type SchemaColumnsConfig struct {
	TableName   string
	KeyColumn   string
	ValueColumn string

	EnableTrigram  bool
	EnableSchedule bool
	ScheduleName   string
	ScheduleCron   string
}

// RedisConfig drives L2 presence. A zero-value URL means "no L2" — the
// engine runs in two-layer mode.
type RedisConfig struct {
	URL string
	TTL time.Duration // default cache TTL used when warming and absent an operation-level TTL
}

// MemoryConfig drives L1.
type MemoryConfig struct {
	TTL             time.Duration // default L1 TTL; also drives cleanup cadence (TTL/24)
	MaxSize         int           // default 10,000
	CleanupInterval time.Duration // optional override for cleanup cadence
}

// LoggingConfig drives the structured log sink.
type LoggingConfig struct {
	Enabled bool
	Level   string
}

// DefaultConfig returns sensible defaults matching spec.md §6's stated
// defaults (pool size 10, L1 capacity 10,000).
func DefaultConfig() Config {
	return Config{
		Postgres: PostgresConfig{
			Max: 10,
			Schema: SchemaColumnsConfig{
				TableName:   "nuvex_store",
				KeyColumn:   "cache_key",
				ValueColumn: "cache_value",
			},
		},
		Redis: RedisConfig{
			TTL: time.Hour,
		},
		Memory: MemoryConfig{
			TTL:     time.Hour,
			MaxSize: 10000,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// merge overlays non-zero fields of partial onto a copy of c, implementing
// the facade's configure(partial) semantics (spec.md §4.5): "merges new
// settings ... does not reconnect." Two groups are replaced wholesale
// instead of field by field: Postgres when partial.Postgres.Host is set,
// and Logging when partial.Logging.Level is set.
func (c Config) merge(partial Config) Config {
	out := c
	if partial.Postgres.Host != "" {
		out.Postgres = partial.Postgres
	}
	if partial.Redis.URL != "" {
		out.Redis.URL = partial.Redis.URL
	}
	if partial.Redis.TTL > 0 {
		out.Redis.TTL = partial.Redis.TTL
	}
	if partial.Memory.MaxSize > 0 {
		out.Memory.MaxSize = partial.Memory.MaxSize
	}
	if partial.Memory.TTL > 0 {
		out.Memory.TTL = partial.Memory.TTL
	}
	if partial.Memory.CleanupInterval > 0 {
		out.Memory.CleanupInterval = partial.Memory.CleanupInterval
	}
	if partial.Logging.Level != "" {
		out.Logging = partial.Logging
	}
	return out
}
