// Package backup implements the backup/restore envelope described in
// spec.md §6: a JSON document `{metadata, data}` persisted under
// ./nuvex-backups/<id>.json[.gz]. Envelope marshaling follows
// pkg/utils/encoding.go's MarshalJSON/PrettyJSON conventions (plain
// encoding/json, no alternate codec); large-backup key enumeration is
// throttled with golang.org/x/time/rate, the same dependency
// warming/service.go uses to protect its origin fetcher from being
// overwhelmed, repurposed here to avoid hammering L3 while scanning a
// large keyspace.
package backup

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/google/uuid"
)

const envelopeVersion = "1.0.0"

// Metadata is the envelope's top-level descriptor.
type Metadata struct {
	ID             string     `json:"id"`
	CreatedAt      time.Time  `json:"createdAt"`
	KeyCount       int        `json:"keyCount"`
	KeysSkipped    int        `json:"keysSkipped"`
	Version        string     `json:"version"`
	Type           string     `json:"type"` // "full" | "incremental"
	LastBackupTime *time.Time `json:"lastBackupTime"`
	Compression    bool       `json:"compression"`
	TotalKeys      int        `json:"totalKeys"`
}

// LayerInfo records which layer a backed-up value was read from, and its
// remaining TTL in seconds if any.
type LayerInfo struct {
	Layer string `json:"layer"`
	TTL   *int64 `json:"ttl,omitempty"`
}

// Entry is a single key's backed-up record.
type Entry struct {
	Value          json.RawMessage `json:"value"`
	LayerInfo      *LayerInfo      `json:"layerInfo"`
	CreatedAt      time.Time       `json:"createdAt"`
	Version        string          `json:"version"`
	BackupType     string          `json:"backupType,omitempty"`
	LastBackupTime *time.Time      `json:"lastBackupTime,omitempty"`
}

// Envelope is the full on-disk document.
type Envelope struct {
	Metadata Metadata         `json:"metadata"`
	Data     map[string]Entry `json:"data"`
}

// Options configures a backup run.
type Options struct {
	Dir            string // defaults to "nuvex-backups"
	Incremental    bool
	Compress       bool
	LastBackupTime *time.Time
	RateLimit      rate.Limit // key-enumeration throttle; 0 disables limiting
}

// KeySource supplies the enumerate-and-fetch capability backup needs
// without importing internal/engine directly, keeping this package
// decoupled from the orchestrator (it's invoked by the Client facade,
// which already holds the engine).
type KeySource interface {
	Keys(ctx context.Context) ([]string, error)
	FetchForBackup(ctx context.Context, key string) (Entry, bool, error)
}

// Run enumerates non-internal keys from src, snapshots each into an
// envelope entry, and writes it to Options.Dir/<id>.json[.gz]. Returns the
// written metadata.
func Run(ctx context.Context, src KeySource, id string, opts Options) (Metadata, error) {
	if id == "" {
		id = uuid.NewString()
	}
	dir := opts.Dir
	if dir == "" {
		dir = "nuvex-backups"
	}

	keys, err := src.Keys(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("backup key enumeration failed: %w", err)
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(opts.RateLimit, int(opts.RateLimit))
	}

	data := make(map[string]Entry, len(keys))
	skipped := 0
	for _, k := range keys {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return Metadata{}, fmt.Errorf("backup cancelled: %w", err)
			}
		}
		entry, ok, err := src.FetchForBackup(ctx, k)
		if err != nil || !ok {
			skipped++
			continue
		}
		if opts.Incremental {
			entry.BackupType = "incremental"
			if opts.LastBackupTime != nil {
				entry.LastBackupTime = opts.LastBackupTime
			}
		}
		entry.Version = envelopeVersion
		data[k] = entry
	}

	backupType := "full"
	if opts.Incremental {
		backupType = "incremental"
	}

	meta := Metadata{
		ID:             id,
		CreatedAt:      time.Now(),
		KeyCount:       len(data),
		KeysSkipped:    skipped,
		Version:        envelopeVersion,
		Type:           backupType,
		LastBackupTime: opts.LastBackupTime,
		Compression:    opts.Compress,
		TotalKeys:      len(keys),
	}
	envelope := Envelope{Metadata: meta, Data: data}

	if err := writeEnvelope(dir, id, opts.Compress, envelope); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func writeEnvelope(dir, id string, compress bool, env Envelope) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := id + ".json"
	if compress {
		name += ".gz"
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return fmt.Errorf("failed to encode backup envelope: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finalize compressed backup: %w", err)
		}
	}
	return nil
}

// Load reads an envelope from path, auto-detecting gzip by its magic
// bytes rather than by file extension, so a misnamed file still loads.
func Load(path string) (Envelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	magic := make([]byte, 2)
	if n, _ := io.ReadFull(f, magic); n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Envelope{}, fmt.Errorf("failed to seek backup file: %w", err)
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to open gzip backup: %w", err)
		}
		defer gz.Close()
		r = gz
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Envelope{}, fmt.Errorf("failed to seek backup file: %w", err)
		}
	}

	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode backup envelope: %w", err)
	}
	return env, nil
}

// RestoreTarget receives each entry during a restore. The Client facade
// implements this by calling the engine's Set with the entry's preserved
// layer and TTL.
type RestoreTarget interface {
	Clear(ctx context.Context) error
	Restore(ctx context.Context, key string, entry Entry) error
}

// RestoreOptions configures a restore run.
type RestoreOptions struct {
	ClearFirst bool
	DryRun     bool
}

// RestoreResult summarizes what a restore did (or, in dry-run mode, would
// have done).
type RestoreResult struct {
	KeysRestored int
	DryRun       bool
}

// Restore loads path and replays every entry into dst, implementing
// spec.md §6's restore operation: optional clear() first, then per-entry
// set with preserved layer and TTL; dry-run reports without writing.
func Restore(ctx context.Context, path string, dst RestoreTarget, opts RestoreOptions) (RestoreResult, error) {
	env, err := Load(path)
	if err != nil {
		return RestoreResult{}, err
	}

	if opts.DryRun {
		return RestoreResult{KeysRestored: len(env.Data), DryRun: true}, nil
	}

	if opts.ClearFirst {
		if err := dst.Clear(ctx); err != nil {
			return RestoreResult{}, fmt.Errorf("restore clear failed: %w", err)
		}
	}

	restored := 0
	for key, entry := range env.Data {
		if err := dst.Restore(ctx, key, entry); err != nil {
			continue
		}
		restored++
	}
	return RestoreResult{KeysRestored: restored}, nil
}
