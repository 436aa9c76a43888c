package persidict

import (
	"context"
	"time"
)

// AppendOnlyCacheWrapper wraps a main backend configured append-only
// with a single value-cache. Because items are immutable once written,
// a cache hit on Get is returned without any ETag round-trip against
// main — unlike MutableCacheWrapper, staleness is not a concern here by
// construction. Discard/DiscardIf are unsupported at the wrapper
// boundary regardless of what main would do with them; every other
// conditional operation is delegated straight through.
type AppendOnlyCacheWrapper[V any] struct {
	main  PersiDict[V]
	cache PersiDict[V]
}

// NewAppendOnlyCacheWrapper wraps main (expected to be append-only) with
// cache as its value cache.
func NewAppendOnlyCacheWrapper[V any](main, cache PersiDict[V]) *AppendOnlyCacheWrapper[V] {
	return &AppendOnlyCacheWrapper[V]{main: main, cache: cache}
}

func (w *AppendOnlyCacheWrapper[V]) Config() Config[V] { return w.main.Config() }

func (w *AppendOnlyCacheWrapper[V]) Get(ctx context.Context, key SafeKey) (V, error) {
	if v, err := w.cache.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := w.main.Get(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	_ = w.cache.Set(ctx, key, RealInput(v))
	return v, nil
}

func (w *AppendOnlyCacheWrapper[V]) Set(ctx context.Context, key SafeKey, input InputSlot[V]) error {
	if err := w.main.Set(ctx, key, input); err != nil {
		return err
	}
	if input.IsReal() {
		v, _ := input.Value()
		_ = w.cache.Set(ctx, key, RealInput(v))
	}
	return nil
}

func (w *AppendOnlyCacheWrapper[V]) Discard(ctx context.Context, key SafeKey) (bool, error) {
	return false, &MutationPolicyError{Policy: "append_only_cache: discard is not supported"}
}

func (w *AppendOnlyCacheWrapper[V]) Contains(ctx context.Context, key SafeKey) (bool, error) {
	if ok, err := w.cache.Contains(ctx, key); err == nil && ok {
		return true, nil
	}
	return w.main.Contains(ctx, key)
}

func (w *AppendOnlyCacheWrapper[V]) Len(ctx context.Context) (int, error) { return w.main.Len(ctx) }

func (w *AppendOnlyCacheWrapper[V]) Keys(ctx context.Context) ([]SafeKey, error) {
	return w.main.Keys(ctx)
}

func (w *AppendOnlyCacheWrapper[V]) Values(ctx context.Context) ([]V, error) {
	return w.main.Values(ctx)
}

func (w *AppendOnlyCacheWrapper[V]) Items(ctx context.Context) (map[string]V, error) {
	return w.main.Items(ctx)
}

func (w *AppendOnlyCacheWrapper[V]) Etag(ctx context.Context, key SafeKey) (ETag, error) {
	return w.main.Etag(ctx, key)
}

func (w *AppendOnlyCacheWrapper[V]) Timestamp(ctx context.Context, key SafeKey) (time.Time, error) {
	return w.main.Timestamp(ctx, key)
}

func (w *AppendOnlyCacheWrapper[V]) RandomKey(ctx context.Context) (SafeKey, bool, error) {
	return w.main.RandomKey(ctx)
}

func (w *AppendOnlyCacheWrapper[V]) OldestKeys(ctx context.Context, maxN int) ([]SafeKey, error) {
	return w.main.OldestKeys(ctx, maxN)
}

func (w *AppendOnlyCacheWrapper[V]) NewestKeys(ctx context.Context, maxN int) ([]SafeKey, error) {
	return w.main.NewestKeys(ctx, maxN)
}

func (w *AppendOnlyCacheWrapper[V]) Subdicts(ctx context.Context) ([]SafeKey, error) {
	return w.main.Subdicts(ctx)
}

func (w *AppendOnlyCacheWrapper[V]) GetSubdict(ctx context.Context, prefix SafeKey) (PersiDict[V], error) {
	mainSub, err := w.main.GetSubdict(ctx, prefix)
	if err != nil {
		return nil, err
	}
	cacheSub, err := w.cache.GetSubdict(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return NewAppendOnlyCacheWrapper[V](mainSub, cacheSub), nil
}

func (w *AppendOnlyCacheWrapper[V]) GetItemIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	return w.main.GetItemIf(ctx, key, expected, cond, retrieve)
}

func (w *AppendOnlyCacheWrapper[V]) SetItemIf(ctx context.Context, key SafeKey, input InputSlot[V], expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	r, err := w.main.SetItemIf(ctx, key, input, expected, cond, retrieve)
	if err != nil {
		return ConditionalResult[V]{}, err
	}
	if v, ok := r.NewValue.Value(); ok {
		_ = w.cache.Set(ctx, key, RealInput(v))
	}
	return r, nil
}

func (w *AppendOnlyCacheWrapper[V]) SetdefaultIf(ctx context.Context, key SafeKey, def V, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	r, err := w.main.SetdefaultIf(ctx, key, def, expected, cond, retrieve)
	if err != nil {
		return ConditionalResult[V]{}, err
	}
	if v, ok := r.NewValue.Value(); ok {
		_ = w.cache.Set(ctx, key, RealInput(v))
	}
	return r, nil
}

func (w *AppendOnlyCacheWrapper[V]) DiscardIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag) (ConditionalResult[V], error) {
	return ConditionalResult[V]{}, &MutationPolicyError{Policy: "append_only_cache: discard_if is not supported"}
}
