package backup

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

type fakeSource struct {
	entries map[string]Entry
}

func (f *fakeSource) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(f.entries))
	for k := range f.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeSource) FetchForBackup(ctx context.Context, key string) (Entry, bool, error) {
	e, ok := f.entries[key]
	return e, ok, nil
}

type fakeTarget struct {
	cleared bool
	set     map[string]Entry
}

func (f *fakeTarget) Clear(ctx context.Context) error {
	f.cleared = true
	f.set = map[string]Entry{}
	return nil
}

func (f *fakeTarget) Restore(ctx context.Context, key string, entry Entry) error {
	if f.set == nil {
		f.set = map[string]Entry{}
	}
	f.set[key] = entry
	return nil
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return b
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	// P9: restoring a full backup into an empty engine reproduces the full
	// mapping of non-internal keys to values.
	src := &fakeSource{entries: map[string]Entry{
		"user:1": {Value: rawJSON(t, map[string]string{"name": "ava"})},
		"user:2": {Value: rawJSON(t, map[string]string{"name": "bo"})},
	}}

	dir := t.TempDir()
	meta, err := Run(context.Background(), src, "test-backup", Options{Dir: dir})
	if err != nil {
		t.Fatalf("backup run failed: %v", err)
	}
	if meta.KeyCount != 2 {
		t.Fatalf("expected 2 keys backed up, got %d", meta.KeyCount)
	}

	target := &fakeTarget{}
	path := filepath.Join(dir, "test-backup.json")
	result, err := Restore(context.Background(), path, target, RestoreOptions{ClearFirst: true})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if result.KeysRestored != 2 {
		t.Fatalf("expected 2 keys restored, got %d", result.KeysRestored)
	}
	if !target.cleared {
		t.Fatalf("expected target to be cleared first")
	}
	if len(target.set) != 2 {
		t.Fatalf("expected 2 entries in restored target, got %d", len(target.set))
	}
}

func TestBackupCompressedRoundTrip(t *testing.T) {
	src := &fakeSource{entries: map[string]Entry{
		"k": {Value: rawJSON(t, "v")},
	}}

	dir := t.TempDir()
	meta, err := Run(context.Background(), src, "gz-backup", Options{Dir: dir, Compress: true})
	if err != nil {
		t.Fatalf("backup run failed: %v", err)
	}
	if !meta.Compression {
		t.Fatalf("expected metadata to record compression")
	}

	path := filepath.Join(dir, "gz-backup.json.gz")
	env, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(env.Data) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(env.Data))
	}
}

func TestRestoreDryRunDoesNotWrite(t *testing.T) {
	src := &fakeSource{entries: map[string]Entry{"k": {Value: rawJSON(t, "v")}}}
	dir := t.TempDir()
	if _, err := Run(context.Background(), src, "dry-backup", Options{Dir: dir}); err != nil {
		t.Fatalf("backup run failed: %v", err)
	}

	target := &fakeTarget{}
	path := filepath.Join(dir, "dry-backup.json")
	result, err := Restore(context.Background(), path, target, RestoreOptions{DryRun: true})
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if !result.DryRun {
		t.Fatalf("expected DryRun to be true in the result")
	}
	if target.cleared || len(target.set) != 0 {
		t.Fatalf("expected dry run to leave target untouched")
	}
}
