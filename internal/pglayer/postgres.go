// Package pglayer implements L3, the durable relational store that acts as
// the engine's source of truth. Query shape (Exec/Query/QueryRow against a
// pooled connection, wrapped errors with %w) is grounded on
// invalidation/audit.go, adapted from encore.dev/storage/sqldb's thin
// wrapper to a direct github.com/jackc/pgx/v5/pgxpool.Pool — the teacher's
// sqldb.Database is itself backed by pgx, so this keeps the same driver
// while dropping the Encore platform coupling (see DESIGN.md).
package pglayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nuvex/nuvex/internal/telemetry"
)

// ttlSecondsArg converts an optional TTL into the nullable float8 parameter
// the upsert/increment queries expect. A nil ttl or a non-positive duration
// both mean "never expires".
func ttlSecondsArg(ttl *time.Duration) any {
	if ttl == nil || *ttl <= 0 {
		return nil
	}
	return ttl.Seconds()
}

// Layer is the L3 StoreLayer: a single table identified by (tableName,
// keyColumn, valueColumn), all three already validated by SchemaManager
// per I6 before this Layer is constructed.
type Layer struct {
	pool        *pgxpool.Pool
	ownsPool    bool
	tableName   string
	keyColumn   string
	valueColumn string
	log         *telemetry.Logger
}

// New wraps pool for the given table/column identifiers. ownsPool controls
// whether Close actually closes the pool: spec.md §5's pool-ownership rule
// is "if the engine creates the pool from configuration, it owns and
// closes it at disconnect; if the caller provides one, the engine must not
// close it."
func New(pool *pgxpool.Pool, ownsPool bool, tableName, keyColumn, valueColumn string, log *telemetry.Logger) *Layer {
	return &Layer{
		pool:        pool,
		ownsPool:    ownsPool,
		tableName:   tableName,
		keyColumn:   keyColumn,
		valueColumn: valueColumn,
		log:         log,
	}
}

// Close releases the underlying pool, but only if this Layer owns it.
func (l *Layer) Close() {
	if l.ownsPool && l.pool != nil {
		l.pool.Close()
	}
}

func (l *Layer) getQuery() string {
	return fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1 AND (expires_at IS NULL OR expires_at > now())`,
		l.valueColumn, l.tableName, l.keyColumn,
	)
}

// Get implements spec.md §4.3's get(k): select the value where the row
// exists and is not expired.
func (l *Layer) Get(ctx context.Context, key string) ([]byte, bool) {
	var raw []byte
	err := l.pool.QueryRow(ctx, l.getQuery(), key).Scan(&raw)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			l.warn("get", key, err)
		}
		return nil, false
	}
	return raw, true
}

// Set implements the atomic upsert from spec.md §4.3: insert, or on
// conflict on the key column, update value and expires_at. updated_at is
// maintained by the trigger SchemaManager installs, not by this query.
func (l *Layer) Set(ctx context.Context, key string, value []byte, ttl *time.Duration) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, expires_at)
		VALUES ($1, $2, CASE WHEN $3::double precision IS NULL THEN NULL ELSE now() + ($3::double precision * interval '1 second') END)
		ON CONFLICT (%[2]s) DO UPDATE SET
			%[3]s = EXCLUDED.%[3]s,
			expires_at = EXCLUDED.expires_at
	`, l.tableName, l.keyColumn, l.valueColumn)

	var valueJSON json.RawMessage = value
	_, err := l.pool.Exec(ctx, query, key, valueJSON, ttlSecondsArg(ttl))
	if err != nil {
		l.warn("set", key, err)
		return fmt.Errorf("l3 set failed: %w", err)
	}
	return nil
}

// Delete implements delete(k): unconditional removal by key.
func (l *Layer) Delete(ctx context.Context, key string) bool {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, l.tableName, l.keyColumn)
	tag, err := l.pool.Exec(ctx, query, key)
	if err != nil {
		l.warn("delete", key, err)
		return false
	}
	return tag.RowsAffected() > 0
}

// Exists implements exists(k) with the same non-expired predicate as Get.
func (l *Layer) Exists(ctx context.Context, key string) bool {
	query := fmt.Sprintf(
		`SELECT 1 FROM %s WHERE %s = $1 AND (expires_at IS NULL OR expires_at > now())`,
		l.tableName, l.keyColumn,
	)
	var one int
	err := l.pool.QueryRow(ctx, query, key).Scan(&one)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			l.warn("exists", key, err)
		}
		return false
	}
	return true
}

// Clear implements clear(): delete every row in the table.
func (l *Layer) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s`, l.tableName)
	_, err := l.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("l3 clear failed: %w", err)
	}
	return nil
}

// Ping implements ping(): acquire a connection and run SELECT 1.
func (l *Layer) Ping(ctx context.Context) bool {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		l.warn("ping-acquire", "", err)
		return false
	}
	defer conn.Release()
	var one int
	if err := conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		l.warn("ping", "", err)
		return false
	}
	return true
}

// Increment implements the single-statement atomic upsert-increment from
// spec.md §4.3: on conflict, adds delta to the current value when the row
// isn't expired, otherwise resets it to delta — all inside one statement so
// concurrent increments compose correctly under Postgres row locking.
func (l *Layer) Increment(ctx context.Context, key string, delta int64, ttl *time.Duration) (int64, error) {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (%[2]s, %[3]s, expires_at)
		VALUES ($1, to_jsonb($2::bigint), CASE WHEN $3::double precision IS NULL THEN NULL ELSE now() + ($3::double precision * interval '1 second') END)
		ON CONFLICT (%[2]s) DO UPDATE SET
			%[3]s = to_jsonb(
				(CASE
					WHEN %[1]s.expires_at IS NULL OR %[1]s.expires_at > now()
					THEN (%[1]s.%[3]s)::text::numeric + $2::numeric
					ELSE $2::numeric
				END)
			),
			expires_at = CASE WHEN $3::double precision IS NULL THEN NULL ELSE now() + ($3::double precision * interval '1 second') END
		RETURNING (%[3]s)::text::numeric
	`, l.tableName, l.keyColumn, l.valueColumn)

	var result string
	err := l.pool.QueryRow(ctx, query, key, delta, ttlSecondsArg(ttl)).Scan(&result)
	if err != nil {
		l.warn("increment", key, err)
		return 0, fmt.Errorf("l3 increment failed: %w", err)
	}
	var next int64
	if _, err := fmt.Sscanf(result, "%d", &next); err != nil {
		return 0, fmt.Errorf("l3 increment returned unparseable value %q: %w", result, err)
	}
	return next, nil
}

// Cleanup removes expired rows and reports how many were purged. This is
// the Go-side equivalent of the scheduled cleanup_expired_<table>() SQL
// function SchemaManager installs; the engine's own periodic sweep
// (§4.4.10) calls this directly rather than invoking the DB function,
// keeping the engine in control of scheduling cadence even when the
// database-side scheduler extension isn't installed.
func (l *Layer) Cleanup(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= now()`, l.tableName)
	tag, err := l.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("l3 cleanup failed: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Compact reclaims dead-tuple space left by deletes/expirations via
// VACUUM, backing the facade's compact() operation.
func (l *Layer) Compact(ctx context.Context) error {
	query := fmt.Sprintf(`VACUUM %s`, l.tableName)
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("l3 compact failed: %w", err)
	}
	return nil
}

// Keys enumerates non-expired keys matching a SQL LIKE pattern (already
// translated from the caller's glob syntax by internal/pattern.ToSQLLike).
// An empty pattern enumerates every key.
func (l *Layer) Keys(ctx context.Context, likePattern string) ([]string, error) {
	var query string
	var args []any
	if likePattern == "" {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE expires_at IS NULL OR expires_at > now()`, l.keyColumn, l.tableName)
	} else {
		query = fmt.Sprintf(
			`SELECT %s FROM %s WHERE (expires_at IS NULL OR expires_at > now()) AND %s LIKE $1 ESCAPE '\'`,
			l.keyColumn, l.tableName, l.keyColumn,
		)
		args = []any{likePattern}
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("l3 key enumeration failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("l3 key enumeration scan failed: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Query implements the sorted/paginated enumeration backing the engine's
// query() operation: rows matching likePattern (empty means all),
// ordered by the requested field/direction, sliced by offset/limit. limit
// is fetched as limit+1 so the caller can derive HasMore without a second
// COUNT query.
func (l *Layer) Query(ctx context.Context, likePattern, orderByColumn, orderByDir string, offset, limit int) ([]Row, bool, error) {
	where := `WHERE (expires_at IS NULL OR expires_at > now())`
	args := []any{}
	argN := 1
	if likePattern != "" {
		where += fmt.Sprintf(` AND %s LIKE $%d ESCAPE '\'`, l.keyColumn, argN)
		args = append(args, likePattern)
		argN++
	}
	// "key" names the configured key column.
	if orderByColumn == "key" {
		orderByColumn = l.keyColumn
	}

	query := fmt.Sprintf(
		`SELECT %s, %s, created_at FROM %s %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		l.keyColumn, l.valueColumn, l.tableName, where, orderByColumn, orderByDir, argN, argN+1,
	)
	args = append(args, limit+1, offset)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("l3 query failed: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Key, &r.Value, &r.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("l3 query scan failed: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func (l *Layer) warn(op, key string, err error) {
	if l.log == nil {
		return
	}
	l.log.Warn("l3 operation failed", telemetry.Fields{"op": op, "key": key, "error": err.Error()})
}
