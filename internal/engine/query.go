package engine

import (
	"context"
	"sort"

	"github.com/nuvex/nuvex/internal/pattern"
	"github.com/nuvex/nuvex/internal/types"
)

// Query implements spec.md §4.4.8. Per SPEC_FULL.md §9's resolution of the
// keys(pattern) open question: when L3 is present it is the key-space
// source of truth and is queried directly (it already supports sorted,
// paginated enumeration via pglayer.Layer.Query); when L3 is absent, L1's
// resident key set is enumerated and filtered/sorted/paginated in process,
// since L2 never holds a key that L3 doesn't also hold (invariant I2).
func (e *Engine) Query(ctx context.Context, opts types.QueryOptions) (types.QueryResult, error) {
	if !e.connected() {
		return types.QueryResult{}, types.ErrNotConnected
	}
	l1, _, l3 := e.layers()

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	orderColumn := "key"
	if opts.SortField == types.SortByCreatedAt {
		orderColumn = "created_at"
	}
	orderDir := "ASC"
	if opts.SortDir == types.Descending {
		orderDir = "DESC"
	}

	if l3 != nil {
		likePattern := ""
		if opts.Pattern != "" && opts.Pattern != "*" {
			likePattern = pattern.ToSQLLike(opts.Pattern)
		}
		rows, hasMore, err := l3.Query(ctx, likePattern, orderColumn, orderDir, opts.Offset, limit)
		if err != nil {
			return types.QueryResult{}, err
		}
		items := make([]types.QueryItem, 0, len(rows))
		for _, r := range rows {
			items = append(items, types.QueryItem{Key: r.Key, Value: r.Value, CreatedAt: r.CreatedAt})
		}
		return types.QueryResult{Items: items, HasMore: hasMore}, nil
	}

	keys := l1.Keys(ctx)
	if opts.Pattern != "" && opts.Pattern != "*" {
		keys, err := pattern.Filter(opts.Pattern, keys)
		if err != nil {
			return types.QueryResult{}, err
		}
		return e.buildQueryResult(ctx, keys, opts, orderDir)
	}
	return e.buildQueryResult(ctx, keys, opts, orderDir)
}

func (e *Engine) buildQueryResult(ctx context.Context, keys []string, opts types.QueryOptions, orderDir string) (types.QueryResult, error) {
	l1, _, _ := e.layers()

	sort.Strings(keys)
	if orderDir == "DESC" {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	start := opts.Offset
	if start > len(keys) {
		start = len(keys)
	}
	end := start + limit + 1
	if end > len(keys) {
		end = len(keys)
	}
	page := keys[start:end]

	hasMore := len(page) > limit
	if hasMore {
		page = page[:limit]
	}

	items := make([]types.QueryItem, 0, len(page))
	for _, k := range page {
		v, ok := l1.Get(ctx, k)
		if !ok {
			continue
		}
		items = append(items, types.QueryItem{Key: k, Value: v})
	}
	return types.QueryResult{Items: items, HasMore: hasMore}, nil
}
