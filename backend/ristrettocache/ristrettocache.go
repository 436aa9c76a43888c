// Package ristrettocache implements persidict.PersiDict as a
// subordinate, admission-controlled in-process cache backed by
// dgraph-io/ristretto, for use as a value- or ETag-cache half of a
// MutableCacheWrapper. Ristretto may silently refuse or evict an entry
// under memory pressure; callers of a cache-backed PersiDict are expected
// to tolerate a miss by re-reading from the wrapper's main dict, exactly
// as they tolerate a miss from any other subordinate cache.
//
// Grounded on the teacher's provider/ristretto (ristretto wiring, the
// Get-time self-heal on an unexpected entry shape), with a sidecar
// etag/timestamp index added since ristretto itself carries neither.
package ristrettocache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/codec"
)

const keySep = "\x00"

type meta struct {
	etag uint64
	ts   time.Time
}

// sharedState is the metadata index shared by a root Backend and every
// subdict view derived from it, so the index stays single-sourced the
// same way backend/memory's sharedState does for MemoryBackend.
type sharedState struct {
	mu    sync.RWMutex
	index map[string]meta
	next  uint64
}

// Backend is persidict.PersiDict backed by an in-process admission-
// controlled cache. ETag is a monotonic counter maintained in the
// sidecar index, mirroring MemoryBackend's ETag derivation.
type Backend[V any] struct {
	cfg         pd.Config[V]
	cache       *rc.Cache
	codec       codec.Codec[V]
	state       *sharedState
	prefix      []string
	defaultCost int64
	ttl         time.Duration
}

// New constructs a root RistrettoCacheBackend over an already-configured
// ristretto cache. defaultCost is the cost charged per entry; ttl <= 0
// disables expiry.
func New[V any](cfg pd.Config[V], cache *rc.Cache, cd codec.Codec[V], defaultCost int64, ttl time.Duration) *Backend[V] {
	return &Backend[V]{
		cfg:         cfg,
		cache:       cache,
		codec:       cd,
		state:       &sharedState{index: make(map[string]meta)},
		defaultCost: defaultCost,
		ttl:         ttl,
	}
}

func (b *Backend[V]) Config() pd.Config[V] { return b.cfg }

func (b *Backend[V]) fullParts(key pd.SafeKey) []string {
	return append(append([]string{}, b.prefix...), key.Parts()...)
}

func joinKey(parts []string) string { return strings.Join(parts, keySep) }

func etagSlotOf(n uint64) pd.EtagSlot { return pd.RealEtag(pd.ETag(fmt.Sprintf("%d", n))) }

func (b *Backend[V]) lookup(key pd.SafeKey) (pd.EtagSlot, time.Time, bool) {
	k := joinKey(b.fullParts(key))
	b.state.mu.RLock()
	m, ok := b.state.index[k]
	b.state.mu.RUnlock()
	if !ok {
		return pd.ItemNotAvailable, time.Time{}, false
	}
	return etagSlotOf(m.etag), m.ts, true
}

// getBytes fetches raw bytes from the cache, self-healing the index when
// ristretto has evicted an entry the index still believes is present.
func (b *Backend[V]) getBytes(key pd.SafeKey) ([]byte, bool) {
	k := joinKey(b.fullParts(key))
	v, ok := b.cache.Get(k)
	if !ok {
		b.state.mu.Lock()
		delete(b.state.index, k)
		b.state.mu.Unlock()
		return nil, false
	}
	bts, ok := v.([]byte)
	if !ok {
		b.cache.Del(k)
		b.state.mu.Lock()
		delete(b.state.index, k)
		b.state.mu.Unlock()
		return nil, false
	}
	return bts, true
}

func (b *Backend[V]) writeValue(key pd.SafeKey, v V) (pd.EtagSlot, error) {
	payload, err := b.codec.Encode(v)
	if err != nil {
		return pd.ItemNotAvailable, &pd.BackendError{Backend: "ristrettocache", Operation: "encode", Key: &key, Cause: err}
	}
	k := joinKey(b.fullParts(key))

	b.state.mu.Lock()
	b.state.next++
	newEtag := b.state.next
	b.state.index[k] = meta{etag: newEtag, ts: time.Now()}
	b.state.mu.Unlock()

	b.cache.SetWithTTL(k, payload, b.defaultCost, b.ttl)
	b.cache.Wait()
	return etagSlotOf(newEtag), nil
}

func (b *Backend[V]) deleteValue(key pd.SafeKey) {
	k := joinKey(b.fullParts(key))
	b.cache.Del(k)
	b.state.mu.Lock()
	delete(b.state.index, k)
	b.state.mu.Unlock()
}

func (b *Backend[V]) Set(ctx context.Context, key pd.SafeKey, input pd.InputSlot[V]) error {
	if input.IsKeepCurrent() {
		return nil
	}
	if input.IsDeleteCurrent() {
		_, err := b.Discard(ctx, key)
		return err
	}
	v, _ := input.Value()
	if err := b.cfg.CheckValue(v); err != nil {
		return err
	}
	if b.cfg.AppendOnly {
		if _, _, exists := b.lookup(key); exists {
			return &pd.MutationPolicyError{Policy: "append_only: overwrite of existing key is forbidden"}
		}
	}
	_, err := b.writeValue(key, v)
	return err
}

func (b *Backend[V]) Get(ctx context.Context, key pd.SafeKey) (V, error) {
	var zero V
	bts, ok := b.getBytes(key)
	if !ok {
		return zero, &pd.KeyMissingError{Key: key}
	}
	v, err := b.codec.Decode(bts)
	if err != nil {
		return zero, &pd.BackendError{Backend: "ristrettocache", Operation: "decode", Key: &key, Cause: err}
	}
	return v, nil
}

func (b *Backend[V]) Discard(ctx context.Context, key pd.SafeKey) (bool, error) {
	_, _, exists := b.lookup(key)
	if !exists {
		return false, nil
	}
	if b.cfg.AppendOnly {
		return false, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
	}
	b.deleteValue(key)
	return true, nil
}

func (b *Backend[V]) Contains(ctx context.Context, key pd.SafeKey) (bool, error) {
	_, _, exists := b.lookup(key)
	return exists, nil
}

func (b *Backend[V]) Etag(ctx context.Context, key pd.SafeKey) (pd.ETag, error) {
	slot, _, exists := b.lookup(key)
	if !exists {
		return "", &pd.KeyMissingError{Key: key}
	}
	tag, _ := slot.Tag()
	return tag, nil
}

func (b *Backend[V]) Timestamp(ctx context.Context, key pd.SafeKey) (time.Time, error) {
	_, ts, exists := b.lookup(key)
	if !exists {
		return time.Time{}, &pd.KeyMissingError{Key: key}
	}
	return ts, nil
}

func hasPrefix(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i, p := range prefix {
		if parts[i] != p {
			return false
		}
	}
	return true
}

func (b *Backend[V]) keysLocked() []pd.SafeKey {
	prefixLen := len(b.prefix)
	out := make([]pd.SafeKey, 0, len(b.state.index))
	for k := range b.state.index {
		parts := strings.Split(k, keySep)
		if len(parts) <= prefixLen || !hasPrefix(parts, b.prefix) {
			continue
		}
		sk, err := pd.NewSafeKey(parts[prefixLen:]...)
		if err != nil {
			continue
		}
		out = append(out, sk)
	}
	return out
}

// Keys/Values/Items/Len enumerate the sidecar index, which tracks every
// admitted write but not ristretto's subsequent, silent evictions.
// Keys and Len report every index entry, including ones ristretto has
// since evicted. Values and Items read each entry back and skip those no
// longer present in the cache rather than surfacing them, the same
// tolerance the iteration contract documents for vanished-during-iteration
// entries in the file-backed store.
func (b *Backend[V]) Keys(ctx context.Context) ([]pd.SafeKey, error) {
	b.state.mu.RLock()
	keys := b.keysLocked()
	b.state.mu.RUnlock()
	return keys, nil
}

func (b *Backend[V]) Len(ctx context.Context) (int, error) {
	keys, err := b.Keys(ctx)
	return len(keys), err
}

func (b *Backend[V]) Values(ctx context.Context) ([]V, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		v, err := b.Get(ctx, k)
		if err != nil {
			if _, ok := err.(*pd.KeyMissingError); ok {
				b.cfg.HooksOrNop().VanishedDuringIteration(strings.Join(k.Parts(), "/"))
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *Backend[V]) Items(ctx context.Context) (map[string]V, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		v, err := b.Get(ctx, k)
		if err != nil {
			if _, ok := err.(*pd.KeyMissingError); ok {
				b.cfg.HooksOrNop().VanishedDuringIteration(strings.Join(k.Parts(), "/"))
				continue
			}
			return nil, err
		}
		out[k.String()] = v
	}
	return out, nil
}

func (b *Backend[V]) RandomKey(ctx context.Context) (pd.SafeKey, bool, error) {
	keys, err := b.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return pd.SafeKey{}, false, err
	}
	return keys[pseudoRandIntn(len(keys))], true, nil
}

var (
	randMu    sync.Mutex
	randState uint64 = 0x9E3779B97F4A7C15
)

// pseudoRandIntn is a dependency-free xorshift PRNG, sufficient for
// uniform RandomKey sampling without pulling in a dedicated random
// source for what is already an approximate, best-effort cache.
func pseudoRandIntn(n int) int {
	if n <= 1 {
		return 0
	}
	randMu.Lock()
	defer randMu.Unlock()
	randState ^= randState << 13
	randState ^= randState >> 7
	randState ^= randState << 17
	return int(randState % uint64(n))
}

func (b *Backend[V]) sortedKeys(ctx context.Context, maxN int, ascending bool) ([]pd.SafeKey, error) {
	b.state.mu.RLock()
	keys := b.keysLocked()
	type ts struct {
		k pd.SafeKey
		t time.Time
	}
	withTS := make([]ts, 0, len(keys))
	for _, k := range keys {
		m := b.state.index[joinKey(b.fullParts(k))]
		withTS = append(withTS, ts{k: k, t: m.ts})
	}
	b.state.mu.RUnlock()

	sort.Slice(withTS, func(i, j int) bool {
		if ascending {
			return withTS[i].t.Before(withTS[j].t)
		}
		return withTS[i].t.After(withTS[j].t)
	})
	if maxN >= 0 && maxN < len(withTS) {
		withTS = withTS[:maxN]
	}
	out := make([]pd.SafeKey, len(withTS))
	for i, e := range withTS {
		out[i] = e.k
	}
	return out, nil
}

func (b *Backend[V]) OldestKeys(ctx context.Context, maxN int) ([]pd.SafeKey, error) {
	return b.sortedKeys(ctx, maxN, true)
}

func (b *Backend[V]) NewestKeys(ctx context.Context, maxN int) ([]pd.SafeKey, error) {
	return b.sortedKeys(ctx, maxN, false)
}

func (b *Backend[V]) GetSubdict(ctx context.Context, prefix pd.SafeKey) (pd.PersiDict[V], error) {
	return &Backend[V]{
		cfg:         b.cfg,
		cache:       b.cache,
		codec:       b.codec,
		state:       b.state,
		prefix:      b.fullParts(prefix),
		defaultCost: b.defaultCost,
		ttl:         b.ttl,
	}, nil
}

func (b *Backend[V]) Subdicts(ctx context.Context) ([]pd.SafeKey, error) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	prefixLen := len(b.prefix)
	seen := map[string]bool{}
	var out []pd.SafeKey
	for k := range b.state.index {
		parts := strings.Split(k, keySep)
		if len(parts) <= prefixLen+1 || !hasPrefix(parts, b.prefix) {
			continue
		}
		child := parts[prefixLen]
		if seen[child] {
			continue
		}
		seen[child] = true
		sk, err := pd.NewSafeKey(child)
		if err != nil {
			continue
		}
		out = append(out, sk)
	}
	return out, nil
}

func (b *Backend[V]) GetItemIf(ctx context.Context, key pd.SafeKey, expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	actual, _, exists := b.lookup(key)
	satisfied := cond.Satisfied(expected, actual)

	shouldFetch := false
	switch retrieve {
	case pd.AlwaysRetrieve:
		shouldFetch = true
	case pd.IfEtagChanged:
		shouldFetch = !expected.Equal(actual)
	case pd.NeverRetrieve:
		shouldFetch = false
	}

	newValue := pd.NotRetrievedValue[V]()
	if !exists {
		newValue = pd.AbsentValue[V]()
	} else if shouldFetch {
		v, err := b.Get(ctx, key)
		if err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		newValue = pd.RealValue(v)
	}
	return pd.ConditionalResult[V]{ConditionWasSatisfied: satisfied, ActualEtag: actual, ResultingEtag: actual, NewValue: newValue}, nil
}

func (b *Backend[V]) notSatisfiedResult(ctx context.Context, key pd.SafeKey, expected, actual pd.EtagSlot, exists bool, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	if !exists {
		return pd.ConditionalResult[V]{ConditionWasSatisfied: false, ActualEtag: pd.ItemNotAvailable, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
	}
	shouldFetch := false
	switch retrieve {
	case pd.AlwaysRetrieve:
		shouldFetch = true
	case pd.IfEtagChanged:
		shouldFetch = !expected.Equal(actual)
	case pd.NeverRetrieve:
		shouldFetch = false
	}
	nv := pd.NotRetrievedValue[V]()
	if shouldFetch {
		v, err := b.Get(ctx, key)
		if err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		nv = pd.RealValue(v)
	}
	return pd.ConditionalResult[V]{ConditionWasSatisfied: false, ActualEtag: actual, ResultingEtag: actual, NewValue: nv}, nil
}

func (b *Backend[V]) SetItemIf(ctx context.Context, key pd.SafeKey, input pd.InputSlot[V], expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	actual, _, exists := b.lookup(key)
	satisfied := cond.Satisfied(expected, actual)
	if !satisfied {
		return b.notSatisfiedResult(ctx, key, expected, actual, exists, retrieve)
	}

	switch {
	case input.IsKeepCurrent():
		nv := pd.AbsentValue[V]()
		if exists {
			v, err := b.Get(ctx, key)
			if err != nil {
				return pd.ConditionalResult[V]{}, err
			}
			nv = pd.RealValue(v)
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: actual, NewValue: nv}, nil
	case input.IsDeleteCurrent():
		if exists {
			if b.cfg.AppendOnly {
				return pd.ConditionalResult[V]{}, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
			}
			b.deleteValue(key)
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
	default:
		v, _ := input.Value()
		if err := b.cfg.CheckValue(v); err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		if b.cfg.AppendOnly && exists {
			return pd.ConditionalResult[V]{}, &pd.MutationPolicyError{Policy: "append_only: overwrite of existing key is forbidden"}
		}
		resulting, err := b.writeValue(key, v)
		if err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: resulting, NewValue: pd.RealValue(v)}, nil
	}
}

func (b *Backend[V]) SetdefaultIf(ctx context.Context, key pd.SafeKey, def V, expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	actual, _, exists := b.lookup(key)
	if exists {
		return b.notSatisfiedResult(ctx, key, expected, actual, true, retrieve)
	}
	return b.SetItemIf(ctx, key, pd.RealInput(def), expected, cond, retrieve)
}

func (b *Backend[V]) DiscardIf(ctx context.Context, key pd.SafeKey, expected pd.EtagSlot, cond pd.ConditionFlag) (pd.ConditionalResult[V], error) {
	actual, _, exists := b.lookup(key)
	satisfied := cond.Satisfied(expected, actual)
	if !satisfied {
		nv := pd.AbsentValue[V]()
		if exists {
			nv = pd.NotRetrievedValue[V]()
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: false, ActualEtag: actual, ResultingEtag: actual, NewValue: nv}, nil
	}
	if !exists {
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: pd.ItemNotAvailable, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
	}
	if b.cfg.AppendOnly {
		return pd.ConditionalResult[V]{}, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
	}
	b.deleteValue(key)
	return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
}
