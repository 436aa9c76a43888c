package bigcachestore

import (
	"context"
	"testing"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/codec"
)

func newCache(t *testing.T) *bc.BigCache {
	t.Helper()
	cache, err := bc.New(context.Background(), bc.DefaultConfig(10*time.Minute))
	if err != nil {
		t.Fatalf("bc.New: %v", err)
	}
	return cache
}

func newBackend(t *testing.T) *Backend[string] {
	t.Helper()
	return New[string](pd.Config[string]{}, newCache(t), codec.String{})
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	k := pd.MustSafeKey("users", "1")

	if err := b.Set(ctx, k, pd.RealInput("Ada")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := b.Get(ctx, k)
	if err != nil || v != "Ada" {
		t.Fatalf("Get: v=%v err=%v", v, err)
	}
}

func TestGetMissingKey(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	if _, err := b.Get(ctx, pd.MustSafeKey("nope")); err == nil {
		t.Fatalf("expected *KeyMissingError")
	}
}

func TestDiscardRemovesEntry(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	k := pd.MustSafeKey("k")
	_ = b.Set(ctx, k, pd.RealInput("v1"))

	removed, err := b.Discard(ctx, k)
	if err != nil || !removed {
		t.Fatalf("Discard: removed=%v err=%v", removed, err)
	}
	if exists, _ := b.Contains(ctx, k); exists {
		t.Fatalf("key should be gone after Discard")
	}
	if _, err := b.Get(ctx, k); err == nil {
		t.Fatalf("expected KeyMissingError once the sidecar index no longer has the entry")
	}
}

func TestAppendOnlyForbidsOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	b := New[string](pd.Config[string]{AppendOnly: true}, newCache(t), codec.String{})
	k := pd.MustSafeKey("k")

	if err := b.Set(ctx, k, pd.RealInput("v1")); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	if err := b.Set(ctx, k, pd.RealInput("v2")); err == nil {
		t.Fatalf("overwrite should be forbidden")
	}
	if _, err := b.Discard(ctx, k); err == nil {
		t.Fatalf("delete should be forbidden")
	}
}

func TestEtagChangesOnOverwrite(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	k := pd.MustSafeKey("k")
	_ = b.Set(ctx, k, pd.RealInput("v1"))
	first, err := b.Etag(ctx, k)
	if err != nil {
		t.Fatalf("Etag: %v", err)
	}
	_ = b.Set(ctx, k, pd.RealInput("v2"))
	second, err := b.Etag(ctx, k)
	if err != nil {
		t.Fatalf("Etag: %v", err)
	}
	if first == second {
		t.Fatalf("etag should change on overwrite")
	}
}

func TestKeysValuesItems(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	_ = b.Set(ctx, pd.MustSafeKey("a"), pd.RealInput("1"))
	_ = b.Set(ctx, pd.MustSafeKey("b"), pd.RealInput("2"))

	keys, err := b.Keys(ctx)
	if err != nil || len(keys) != 2 {
		t.Fatalf("Keys: %v err=%v", keys, err)
	}
	items, err := b.Items(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("Items: %v err=%v", items, err)
	}
}

func TestGetSubdictIsolation(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	sub, err := b.GetSubdict(ctx, pd.MustSafeKey("users"))
	if err != nil {
		t.Fatalf("GetSubdict: %v", err)
	}
	_ = sub.Set(ctx, pd.MustSafeKey("1"), pd.RealInput("Ada"))

	rootKeys, err := b.Keys(ctx)
	if err != nil || len(rootKeys) != 1 {
		t.Fatalf("root should see one key via the shared index: %v err=%v", rootKeys, err)
	}
	subKeys, err := sub.Keys(ctx)
	if err != nil || len(subKeys) != 1 || subKeys[0].At(0) != "1" {
		t.Fatalf("subdict view should see its own key without the prefix: %v err=%v", subKeys, err)
	}
}

func TestSetItemIfOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	k := pd.MustSafeKey("k")

	cr, err := b.SetItemIf(ctx, k, pd.RealInput("v1"), pd.ItemNotAvailable, pd.EtagIsTheSame, pd.AlwaysRetrieve)
	if err != nil || !cr.ConditionWasSatisfied {
		t.Fatalf("first insert should succeed: cr=%+v err=%v", cr, err)
	}

	cr2, err := b.SetItemIf(ctx, k, pd.RealInput("v2"), pd.ItemNotAvailable, pd.EtagIsTheSame, pd.AlwaysRetrieve)
	if err != nil {
		t.Fatalf("SetItemIf stale: %v", err)
	}
	if cr2.ConditionWasSatisfied {
		t.Fatalf("stale etag should not satisfy EtagIsTheSame")
	}
}

func TestOldestAndNewestKeys(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	_ = b.Set(ctx, pd.MustSafeKey("a"), pd.RealInput("1"))
	time.Sleep(time.Millisecond)
	_ = b.Set(ctx, pd.MustSafeKey("b"), pd.RealInput("2"))

	oldest, err := b.OldestKeys(ctx, 1)
	if err != nil || len(oldest) != 1 || oldest[0].At(0) != "a" {
		t.Fatalf("OldestKeys: %v err=%v", oldest, err)
	}
	newest, err := b.NewestKeys(ctx, 1)
	if err != nil || len(newest) != 1 || newest[0].At(0) != "b" {
		t.Fatalf("NewestKeys: %v err=%v", newest, err)
	}
}
