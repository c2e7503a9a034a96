// Package schema implements SchemaManager: identifier validation and DDL
// generation/application for the L3 table. Grounded on
// invalidation/audit.go's ensureSchema, which builds a single
// `CREATE TABLE IF NOT EXISTS` + `CREATE INDEX IF NOT EXISTS` string and
// runs it through the pool's Exec — the same shape, expanded to cover
// every step spec.md §4.3 requires (trigram index, trigger function,
// cleanup function, optional scheduler).
package schema

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

// identifierPattern is invariant I6: every identifier interpolated into L3
// DDL/DML must match this before it touches a query string.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateIdentifier enforces I6, returning a descriptive error on failure
// so misconfiguration fails loudly at setup time rather than producing an
// injectable query later.
func ValidateIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid %s identifier %q: must match ^[A-Za-z_][A-Za-z0-9_]*$", kind, name)
	}
	return nil
}

// Config describes the L3 table SchemaManager provisions.
type Config struct {
	TableName      string
	KeyColumn      string
	ValueColumn    string
	EnableTrigram  bool   // optional fuzzy-search index on the key column
	EnableSchedule bool   // optionally install a database-side cleanup schedule
	ScheduleName   string // per-tenant job name when EnableSchedule is set
	ScheduleCron   string // cron expression for the scheduled cleanup job
}

// Manager applies Config's DDL against an L3 pool.
type Manager struct {
	cfg Config
}

// New validates every identifier in cfg per I6 before returning a Manager.
func New(cfg Config) (*Manager, error) {
	if err := ValidateIdentifier("table", cfg.TableName); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("key column", cfg.KeyColumn); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("value column", cfg.ValueColumn); err != nil {
		return nil, err
	}
	if cfg.EnableSchedule {
		if err := ValidateIdentifier("schedule job", cfg.ScheduleName); err != nil {
			return nil, err
		}
	}
	return &Manager{cfg: cfg}, nil
}

func (m *Manager) triggerFunctionName() string  { return "nuvex_set_updated_at_" + m.cfg.TableName }
func (m *Manager) cleanupFunctionName() string  { return "cleanup_expired_" + m.cfg.TableName }
func (m *Manager) triggerName() string          { return "nuvex_touch_updated_at_" + m.cfg.TableName }
func (m *Manager) expiresIndexName() string     { return "idx_" + m.cfg.TableName + "_expires_at" }
func (m *Manager) trigramIndexName() string     { return "idx_" + m.cfg.TableName + "_key_trgm" }

// Apply provisions the table, indexes, trigger, and cleanup function,
// matching spec.md §4.3's Schema setup steps 2-6. Step 7 (scheduling) is
// applied separately by ApplySchedule, since it's optional and allowed to
// fail hard independently of the rest of setup.
func (m *Manager) Apply(ctx context.Context, pool *pgxpool.Pool) error {
	table, key, value := m.cfg.TableName, m.cfg.KeyColumn, m.cfg.ValueColumn

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			%[2]s VARCHAR(512) UNIQUE NOT NULL,
			%[3]s JSONB NOT NULL,
			expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS %[4]s ON %[1]s (expires_at) WHERE expires_at IS NOT NULL;

		CREATE OR REPLACE FUNCTION %[5]s() RETURNS trigger AS $$
		BEGIN
			NEW.updated_at = now();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS %[6]s ON %[1]s;
		CREATE TRIGGER %[6]s
			BEFORE UPDATE ON %[1]s
			FOR EACH ROW
			EXECUTE FUNCTION %[5]s();

		CREATE OR REPLACE FUNCTION %[7]s() RETURNS integer AS $$
		DECLARE
			purged integer;
		BEGIN
			DELETE FROM %[1]s WHERE expires_at IS NOT NULL AND expires_at <= now();
			GET DIAGNOSTICS purged = ROW_COUNT;
			RETURN purged;
		END;
		$$ LANGUAGE plpgsql;
	`, table, key, value, m.expiresIndexName(), m.triggerFunctionName(), m.triggerName(), m.cleanupFunctionName())

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}

	if m.cfg.EnableTrigram {
		trigramDDL := fmt.Sprintf(`
			CREATE EXTENSION IF NOT EXISTS pg_trgm;
			CREATE INDEX IF NOT EXISTS %s ON %s USING gin (%s gin_trgm_ops);
		`, m.trigramIndexName(), table, key)
		if _, err := pool.Exec(ctx, trigramDDL); err != nil {
			return fmt.Errorf("trigram index setup failed: %w", err)
		}
	}

	return nil
}

// ApplySchedule installs a pg_cron job invoking the cleanup function on
// ScheduleCron. Per spec.md §4.3 step 7, if the pg_cron extension isn't
// installed this is a hard failure, not a silent skip — the caller decides
// whether that aborts setup.
func (m *Manager) ApplySchedule(ctx context.Context, pool *pgxpool.Pool) error {
	if !m.cfg.EnableSchedule {
		return nil
	}

	var hasExtension bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'pg_cron')`,
	).Scan(&hasExtension)
	if err != nil {
		return fmt.Errorf("failed to check for pg_cron extension: %w", err)
	}
	if !hasExtension {
		return fmt.Errorf("pg_cron extension is not installed; cannot schedule %s", m.cleanupFunctionName())
	}

	_, err = pool.Exec(ctx, `SELECT cron.unschedule($1)`, m.cfg.ScheduleName)
	// unschedule fails if the job doesn't exist yet; that's expected on first setup.
	_ = err

	scheduleQuery := fmt.Sprintf(`SELECT cron.schedule($1, $2, 'SELECT %s()')`, m.cleanupFunctionName())
	if _, err := pool.Exec(ctx, scheduleQuery, m.cfg.ScheduleName, m.cfg.ScheduleCron); err != nil {
		return fmt.Errorf("failed to schedule cleanup job %s: %w", m.cfg.ScheduleName, err)
	}
	return nil
}
