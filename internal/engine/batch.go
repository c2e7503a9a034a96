package engine

import (
	"context"

	"github.com/nuvex/nuvex/internal/types"
)

// GetBatch, SetBatch, and DeleteBatch implement spec.md §4.4.7: sequential
// iteration over the single-key operation, collecting a per-entry result.
// A failed entry does not abort the batch.

func (e *Engine) GetBatch(ctx context.Context, keys []string, opts types.GetOptions) []types.BatchResult {
	out := make([]types.BatchResult, 0, len(keys))
	for _, k := range keys {
		v, ok, err := e.Get(ctx, k, opts)
		out = append(out, types.BatchResult{Key: k, Success: ok && err == nil, Value: v, Err: err})
	}
	return out
}

func (e *Engine) SetBatch(ctx context.Context, entries map[string][]byte, opts types.SetOptions) []types.BatchResult {
	out := make([]types.BatchResult, 0, len(entries))
	for k, v := range entries {
		ok := e.Set(ctx, k, v, opts)
		out = append(out, types.BatchResult{Key: k, Success: ok})
	}
	return out
}

func (e *Engine) DeleteBatch(ctx context.Context, keys []string, opts types.DeleteOptions) []types.BatchResult {
	out := make([]types.BatchResult, 0, len(keys))
	for _, k := range keys {
		ok := e.Delete(ctx, k, opts)
		out = append(out, types.BatchResult{Key: k, Success: ok})
	}
	return out
}
