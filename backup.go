package nuvex

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nuvex/nuvex/internal/backup"
	"github.com/nuvex/nuvex/internal/types"
)

var errEntryRestoreFailed = errors.New("entry set failed during restore")

// internalKeyPrefix marks the engine's own bookkeeping keys (such as L1's
// ping probe key), which backups leave out.
const internalKeyPrefix = "__nuvex_"

// clientBackupSource adapts a Client to backup.KeySource.
type clientBackupSource struct{ c *Client }

func (s *clientBackupSource) Keys(ctx context.Context) ([]string, error) {
	all, err := s.c.eng.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if !strings.HasPrefix(k, internalKeyPrefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *clientBackupSource) FetchForBackup(ctx context.Context, key string) (backup.Entry, bool, error) {
	v, ok, err := s.c.eng.Get(ctx, key, types.GetOptions{})
	if err != nil || !ok {
		return backup.Entry{}, false, err
	}
	return backup.Entry{
		Value:     json.RawMessage(v),
		CreatedAt: time.Now(),
	}, true, nil
}

// clientRestoreTarget adapts a Client to backup.RestoreTarget.
type clientRestoreTarget struct{ c *Client }

func (t *clientRestoreTarget) Clear(ctx context.Context) error {
	_, err := t.c.Clear(ctx, "")
	return err
}

func (t *clientRestoreTarget) Restore(ctx context.Context, key string, entry backup.Entry) error {
	var layer *types.LayerTag
	if entry.LayerInfo != nil {
		if lt, ok := types.ParseLayerTag(entry.LayerInfo.Layer); ok {
			layer = &lt
		}
	}
	var ttl time.Duration
	if entry.LayerInfo != nil && entry.LayerInfo.TTL != nil {
		ttl = time.Duration(*entry.LayerInfo.TTL) * time.Second
	}
	ok := t.c.eng.Set(ctx, key, entry.Value, types.SetOptions{TTL: ttl, Layer: layer})
	if !ok {
		return types.NewError(types.ErrRestoreFormatKind, "restore", key, errEntryRestoreFailed)
	}
	return nil
}

// BackupOptions configures a Backup call.
type BackupOptions struct {
	ID          string
	Dir         string
	Incremental bool
	Compress    bool
}

// Backup implements the facade's backup(): enumerate non-internal keys,
// snapshot each into the envelope described in spec.md §6, and persist it
// under ./nuvex-backups/ (or opts.Dir).
func (c *Client) Backup(ctx context.Context, opts BackupOptions) (backup.Metadata, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	meta, err := backup.Run(ctx, &clientBackupSource{c: c}, id, backup.Options{
		Dir:            opts.Dir,
		Incremental:    opts.Incremental,
		Compress:       opts.Compress,
		LastBackupTime: c.lastFullBackup,
	})
	if err != nil {
		return backup.Metadata{}, err
	}
	c.mu.Lock()
	now := meta.CreatedAt
	c.lastFullBackup = &now
	c.mu.Unlock()
	return meta, nil
}

// RestoreOptions configures a Restore call.
type RestoreOptions struct {
	ClearFirst bool
	DryRun     bool
}

// Restore implements the facade's restore(): load the envelope
// (auto-detecting gzip), optionally clear() first, then replay each entry
// with its preserved layer and TTL. Dry-run reports without writing.
func (c *Client) Restore(ctx context.Context, path string, opts RestoreOptions) (backup.RestoreResult, error) {
	return backup.Restore(ctx, path, &clientRestoreTarget{c: c}, backup.RestoreOptions{
		ClearFirst: opts.ClearFirst,
		DryRun:     opts.DryRun,
	})
}
