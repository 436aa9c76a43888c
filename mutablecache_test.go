package persidict_test

import (
	"context"
	"testing"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/backend/memory"
)

func newMutableCacheFixture() (*pd.MutableCacheWrapper[string], pd.PersiDict[string]) {
	main := memory.New[string](pd.Config[string]{})
	valueCache := memory.New[string](pd.Config[string]{})
	etagCache := memory.New[pd.ETag](pd.Config[pd.ETag]{})
	return pd.NewMutableCacheWrapper[string](main, valueCache, etagCache), main
}

func TestMutableCacheGetPopulatesCache(t *testing.T) {
	ctx := context.Background()
	w, main := newMutableCacheFixture()
	k := pd.MustSafeKey("k")
	_ = pd.SetValue(ctx, main, k, "v1")

	v, err := w.Get(ctx, k)
	if err != nil || v != "v1" {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}
}

func TestMutableCacheGetMissing(t *testing.T) {
	ctx := context.Background()
	w, _ := newMutableCacheFixture()
	k := pd.MustSafeKey("missing")

	if _, err := w.Get(ctx, k); err == nil {
		t.Fatalf("expected *KeyMissingError for an absent key")
	}
}

func TestMutableCacheSetThenGetServesFromCacheOnSecondRead(t *testing.T) {
	ctx := context.Background()
	w, main := newMutableCacheFixture()
	k := pd.MustSafeKey("k")

	if err := w.Set(ctx, k, pd.RealInput("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, err := w.Get(ctx, k)
	if err != nil || v != "v1" {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}

	// Mutate main directly (bypassing the wrapper's cache mirroring): a
	// subsequent Get should notice the etag changed and refresh.
	_ = pd.SetValue(ctx, main, k, "v2")
	v, err = w.Get(ctx, k)
	if err != nil || v != "v2" {
		t.Fatalf("Get after direct main mutation: v=%v err=%v", v, err)
	}
}

func TestMutableCacheDiscardClearsCache(t *testing.T) {
	ctx := context.Background()
	w, _ := newMutableCacheFixture()
	k := pd.MustSafeKey("k")
	_ = w.Set(ctx, k, pd.RealInput("v1"))
	_, _ = w.Get(ctx, k) // populate the cache

	removed, err := w.Discard(ctx, k)
	if err != nil || !removed {
		t.Fatalf("Discard: removed=%v err=%v", removed, err)
	}
	if _, err := w.Get(ctx, k); err == nil {
		t.Fatalf("expected a miss after Discard")
	}
}

func TestMutableCacheGetSubdictIsIsolated(t *testing.T) {
	ctx := context.Background()
	w, _ := newMutableCacheFixture()
	prefix := pd.MustSafeKey("users")
	sub, err := w.GetSubdict(ctx, prefix)
	if err != nil {
		t.Fatalf("GetSubdict: %v", err)
	}

	k := pd.MustSafeKey("1")
	_ = sub.Set(ctx, k, pd.RealInput("Ada"))

	if exists, _ := w.Contains(ctx, k); exists {
		t.Fatalf("a write to a subdict should not be visible at the root under the bare key")
	}
	if v, err := sub.Get(ctx, k); err != nil || v != "Ada" {
		t.Fatalf("sub.Get: v=%v err=%v", v, err)
	}
}
