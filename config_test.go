package nuvex

import "testing"

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Memory.MaxSize != 10000 {
		t.Fatalf("expected default memory max size 10000, got %d", cfg.Memory.MaxSize)
	}
	if cfg.Postgres.Max != 10 {
		t.Fatalf("expected default postgres pool size 10, got %d", cfg.Postgres.Max)
	}
	if cfg.Postgres.Schema.TableName == "" {
		t.Fatalf("expected a default table name")
	}
}

func TestMergeLeavesUnsetFieldsUntouched(t *testing.T) {
	base := DefaultConfig()
	merged := base.merge(Config{})

	if merged.Memory.MaxSize != base.Memory.MaxSize {
		t.Fatalf("expected merge with zero-value partial to leave Memory.MaxSize unchanged")
	}
	if merged.Postgres.Host != base.Postgres.Host {
		t.Fatalf("expected merge with zero-value partial to leave Postgres.Host unchanged")
	}
}

func TestMergeOverlaysNonZeroFields(t *testing.T) {
	base := DefaultConfig()
	merged := base.merge(Config{
		Redis: RedisConfig{URL: "redis://localhost:6379"},
	})

	if merged.Redis.URL != "redis://localhost:6379" {
		t.Fatalf("expected Redis.URL to be overlaid, got %q", merged.Redis.URL)
	}
	if merged.Memory.MaxSize != base.Memory.MaxSize {
		t.Fatalf("expected unrelated fields to survive the merge")
	}
}

func TestMergeReplacesPostgresWholesaleWhenHostSet(t *testing.T) {
	base := DefaultConfig()
	merged := base.merge(Config{
		Postgres: PostgresConfig{Host: "db.internal", Port: 5432},
	})

	if merged.Postgres.Host != "db.internal" || merged.Postgres.Port != 5432 {
		t.Fatalf("expected Postgres config to be replaced wholesale, got %+v", merged.Postgres)
	}
}
