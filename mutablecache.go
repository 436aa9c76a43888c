package persidict

import (
	"context"
	"time"
)

// MutableCacheWrapper wraps a main backend with two subordinate caches —
// a value-cache (PersiDict[V]) and an ETag-cache (PersiDict[ETag]) — so a
// read whose cached ETag still matches the main backend's current ETag
// never has to re-fetch and re-decode the full value. Both caches are
// typically MemoryBackend, but any PersiDict works, including the
// subordinate backends in backend/rediscache, backend/ristrettocache and
// backend/bigcachestore.
//
// Invariant: after any successful write, the caches hold the written
// value and its resulting ETag; after any conditional operation whose
// condition was not satisfied but which retrieved the main backend's
// actual state, the caches are updated to match that state, so they
// never diverge by more than a single read-then-cache race.
type MutableCacheWrapper[V any] struct {
	main       PersiDict[V]
	valueCache PersiDict[V]
	etagCache  PersiDict[ETag]
}

// NewMutableCacheWrapper wraps main with valueCache/etagCache as its
// subordinate caches.
func NewMutableCacheWrapper[V any](main, valueCache PersiDict[V], etagCache PersiDict[ETag]) *MutableCacheWrapper[V] {
	return &MutableCacheWrapper[V]{main: main, valueCache: valueCache, etagCache: etagCache}
}

func (w *MutableCacheWrapper[V]) Config() Config[V] { return w.main.Config() }

func (w *MutableCacheWrapper[V]) cachedEtag(ctx context.Context, key SafeKey) EtagSlot {
	tag, err := w.etagCache.Etag(ctx, key)
	if err != nil {
		return ItemNotAvailable
	}
	return RealEtag(tag)
}

// mirrorValue brings the caches in line with a (value, etag) observation
// from the main backend. A Real value is written into both caches; an
// Absent value clears both; a NotRetrieved value carries no information
// and leaves the caches untouched.
func (w *MutableCacheWrapper[V]) mirrorValue(ctx context.Context, key SafeKey, value ValueSlot[V], etag EtagSlot) {
	switch {
	case value.IsReal():
		v, _ := value.Value()
		_ = w.valueCache.Set(ctx, key, RealInput(v))
		if tag, ok := etag.Tag(); ok {
			_ = w.etagCache.Set(ctx, key, RealInput(tag))
		}
	case value.IsAbsent():
		_, _ = w.valueCache.Discard(ctx, key)
		_, _ = w.etagCache.Discard(ctx, key)
	}
}

func (w *MutableCacheWrapper[V]) Set(ctx context.Context, key SafeKey, input InputSlot[V]) error {
	_, err := w.SetItemIf(ctx, key, input, ItemNotAvailable, AnyEtag, AlwaysRetrieve)
	return err
}

func (w *MutableCacheWrapper[V]) Get(ctx context.Context, key SafeKey) (V, error) {
	var zero V
	cached := w.cachedEtag(ctx, key)
	r, err := w.main.GetItemIf(ctx, key, cached, EtagHasChanged, IfEtagChanged)
	if err != nil {
		return zero, err
	}
	if r.NewValue.IsAbsent() {
		_, _ = w.valueCache.Discard(ctx, key)
		_, _ = w.etagCache.Discard(ctx, key)
		return zero, &KeyMissingError{Key: key}
	}
	if v, ok := r.NewValue.Value(); ok {
		w.mirrorValue(ctx, key, r.NewValue, r.ActualEtag)
		return v, nil
	}
	// Cached ETag still matches: serve from the value cache, falling
	// back to main on an unexpected cache miss (eviction race).
	if v, err := w.valueCache.Get(ctx, key); err == nil {
		return v, nil
	}
	return w.main.Get(ctx, key)
}

func (w *MutableCacheWrapper[V]) Discard(ctx context.Context, key SafeKey) (bool, error) {
	removed, err := w.main.Discard(ctx, key)
	if err != nil {
		return false, err
	}
	_, _ = w.valueCache.Discard(ctx, key)
	_, _ = w.etagCache.Discard(ctx, key)
	return removed, nil
}

func (w *MutableCacheWrapper[V]) Contains(ctx context.Context, key SafeKey) (bool, error) {
	return w.main.Contains(ctx, key)
}

func (w *MutableCacheWrapper[V]) Len(ctx context.Context) (int, error) { return w.main.Len(ctx) }

func (w *MutableCacheWrapper[V]) Keys(ctx context.Context) ([]SafeKey, error) { return w.main.Keys(ctx) }

func (w *MutableCacheWrapper[V]) Values(ctx context.Context) ([]V, error) { return w.main.Values(ctx) }

func (w *MutableCacheWrapper[V]) Items(ctx context.Context) (map[string]V, error) {
	return w.main.Items(ctx)
}

func (w *MutableCacheWrapper[V]) Etag(ctx context.Context, key SafeKey) (ETag, error) {
	tag, err := w.main.Etag(ctx, key)
	if err != nil {
		return "", err
	}
	_ = w.etagCache.Set(ctx, key, RealInput(tag))
	return tag, nil
}

func (w *MutableCacheWrapper[V]) Timestamp(ctx context.Context, key SafeKey) (time.Time, error) {
	return w.main.Timestamp(ctx, key)
}

func (w *MutableCacheWrapper[V]) RandomKey(ctx context.Context) (SafeKey, bool, error) {
	return w.main.RandomKey(ctx)
}

func (w *MutableCacheWrapper[V]) OldestKeys(ctx context.Context, maxN int) ([]SafeKey, error) {
	return w.main.OldestKeys(ctx, maxN)
}

func (w *MutableCacheWrapper[V]) NewestKeys(ctx context.Context, maxN int) ([]SafeKey, error) {
	return w.main.NewestKeys(ctx, maxN)
}

func (w *MutableCacheWrapper[V]) Subdicts(ctx context.Context) ([]SafeKey, error) {
	return w.main.Subdicts(ctx)
}

func (w *MutableCacheWrapper[V]) GetSubdict(ctx context.Context, prefix SafeKey) (PersiDict[V], error) {
	mainSub, err := w.main.GetSubdict(ctx, prefix)
	if err != nil {
		return nil, err
	}
	valueSub, err := w.valueCache.GetSubdict(ctx, prefix)
	if err != nil {
		return nil, err
	}
	etagSub, err := w.etagCache.GetSubdict(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return NewMutableCacheWrapper[V](mainSub, valueSub, etagSub), nil
}

func (w *MutableCacheWrapper[V]) GetItemIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	r, err := w.main.GetItemIf(ctx, key, expected, cond, retrieve)
	if err != nil {
		return ConditionalResult[V]{}, err
	}
	w.mirrorValue(ctx, key, r.NewValue, r.ActualEtag)
	return r, nil
}

func (w *MutableCacheWrapper[V]) SetItemIf(ctx context.Context, key SafeKey, input InputSlot[V], expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	r, err := w.main.SetItemIf(ctx, key, input, expected, cond, retrieve)
	if err != nil {
		return ConditionalResult[V]{}, err
	}
	w.mirrorValue(ctx, key, r.NewValue, r.ResultingEtag)
	return r, nil
}

func (w *MutableCacheWrapper[V]) SetdefaultIf(ctx context.Context, key SafeKey, def V, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	r, err := w.main.SetdefaultIf(ctx, key, def, expected, cond, retrieve)
	if err != nil {
		return ConditionalResult[V]{}, err
	}
	w.mirrorValue(ctx, key, r.NewValue, r.ResultingEtag)
	return r, nil
}

func (w *MutableCacheWrapper[V]) DiscardIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag) (ConditionalResult[V], error) {
	r, err := w.main.DiscardIf(ctx, key, expected, cond)
	if err != nil {
		return ConditionalResult[V]{}, err
	}
	if r.ConditionWasSatisfied {
		_, _ = w.valueCache.Discard(ctx, key)
		_, _ = w.etagCache.Discard(ctx, key)
	} else {
		w.mirrorValue(ctx, key, r.NewValue, r.ActualEtag)
	}
	return r, nil
}
