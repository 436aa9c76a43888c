// Package memory implements persidict.PersiDict as a process-local,
// mutex-guarded map with monotonically increasing counter ETags. ETags
// are strong within the process and worthless across processes, which is
// acceptable: MemoryBackend is never shared outside one process.
//
// Grounded on the teacher's cas.go: a single RWMutex plus a
// map[string]entry carrying a generation counter, the same shape reused
// here with the generation reinterpreted as the item's ETag.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	pd "github.com/unkn0wn-root/persidict"
)

const keySep = "\x00"

type item[V any] struct {
	value     V
	etag      uint64
	updatedAt time.Time
}

// sharedState is the single mutex-guarded map backing a root Backend and
// every subdict view derived from it, so locking is actually shared
// rather than merely the data.
type sharedState[V any] struct {
	mu      sync.RWMutex
	items   map[string]*item[V]
	nextTag uint64
}

// Backend is persidict.PersiDict backed by an in-process map. All
// conditional operations are serialized by a single instance-wide mutex:
// atomic within the process, not across processes.
type Backend[V any] struct {
	cfg    pd.Config[V]
	state  *sharedState[V]
	prefix []string // subdict view restriction, empty for the root
}

// New constructs a root MemoryBackend.
func New[V any](cfg pd.Config[V]) *Backend[V] {
	return &Backend[V]{cfg: cfg, state: &sharedState[V]{items: make(map[string]*item[V])}}
}

func joinKey(parts []string) string { return strings.Join(parts, keySep) }

func (b *Backend[V]) fullParts(key pd.SafeKey) []string {
	return append(append([]string{}, b.prefix...), key.Parts()...)
}

func etagSlotOf(e uint64) pd.EtagSlot {
	return pd.RealEtag(pd.ETag(fmt.Sprintf("%d", e)))
}

func (b *Backend[V]) Config() pd.Config[V] { return b.cfg }

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

	k := joinKey(b.fullParts(key))
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	if b.cfg.AppendOnly {
		if _, exists := b.state.items[k]; exists {
			return &pd.MutationPolicyError{Policy: "append_only: overwrite of existing key is forbidden"}
		}
	}
	b.state.nextTag++
	b.state.items[k] = &item[V]{value: v, etag: b.state.nextTag, updatedAt: time.Now()}
	return nil
}

func (b *Backend[V]) Get(ctx context.Context, key pd.SafeKey) (V, error) {
	var zero V
	k := joinKey(b.fullParts(key))
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	it, ok := b.state.items[k]
	if !ok {
		return zero, &pd.KeyMissingError{Key: key}
	}
	return it.value, nil
}

func (b *Backend[V]) Discard(ctx context.Context, key pd.SafeKey) (bool, error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	if _, ok := b.state.items[k]; !ok {
		return false, nil
	}
	if b.cfg.AppendOnly {
		return false, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
	}
	delete(b.state.items, k)
	return true, nil
}

func (b *Backend[V]) Contains(ctx context.Context, key pd.SafeKey) (bool, error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	_, ok := b.state.items[k]
	return ok, nil
}

func (b *Backend[V]) Len(ctx context.Context) (int, error) {
	keys, err := b.Keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (b *Backend[V]) keysLocked() []pd.SafeKey {
	prefixLen := len(b.prefix)
	out := make([]pd.SafeKey, 0, len(b.state.items))
	for k := range b.state.items {
		parts := strings.Split(k, keySep)
		if len(parts) <= prefixLen {
			continue
		}
		if !hasPrefix(parts, b.prefix) {
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

func (b *Backend[V]) Keys(ctx context.Context) ([]pd.SafeKey, error) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	return b.keysLocked(), nil
}

func (b *Backend[V]) Values(ctx context.Context) ([]V, error) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	keys := b.keysLocked()
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		it := b.state.items[joinKey(b.fullParts(k))]
		out = append(out, it.value)
	}
	return out, nil
}

func (b *Backend[V]) Items(ctx context.Context) (map[string]V, error) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	keys := b.keysLocked()
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		it := b.state.items[joinKey(b.fullParts(k))]
		out[k.String()] = it.value
	}
	return out, nil
}

func (b *Backend[V]) Etag(ctx context.Context, key pd.SafeKey) (pd.ETag, error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	it, ok := b.state.items[k]
	if !ok {
		return "", &pd.KeyMissingError{Key: key}
	}
	tag, _ := etagSlotOf(it.etag).Tag()
	return tag, nil
}

func (b *Backend[V]) Timestamp(ctx context.Context, key pd.SafeKey) (time.Time, error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	it, ok := b.state.items[k]
	if !ok {
		return time.Time{}, &pd.KeyMissingError{Key: key}
	}
	return it.updatedAt, nil
}

func (b *Backend[V]) RandomKey(ctx context.Context) (pd.SafeKey, bool, error) {
	keys, err := b.Keys(ctx)
	if err != nil || len(keys) == 0 {
		return pd.SafeKey{}, false, err
	}
	// reservoir sampling over the already-materialized slice keeps this
	// consistent with the other backends' streaming variant.
	chosen := keys[0]
	n := 1
	for _, k := range keys[1:] {
		n++
		if randIntn(n) == 0 {
			chosen = k
		}
	}
	return chosen, true, nil
}

func (b *Backend[V]) OldestKeys(ctx context.Context, maxN int) ([]pd.SafeKey, error) {
	return b.sortedKeys(ctx, maxN, true)
}

func (b *Backend[V]) NewestKeys(ctx context.Context, maxN int) ([]pd.SafeKey, error) {
	return b.sortedKeys(ctx, maxN, false)
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
		it := b.state.items[joinKey(b.fullParts(k))]
		withTS = append(withTS, ts{k: k, t: it.updatedAt})
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

func (b *Backend[V]) GetSubdict(ctx context.Context, prefix pd.SafeKey) (pd.PersiDict[V], error) {
	return &Backend[V]{
		cfg:    b.cfg,
		state:  b.state, // shares the same map and mutex as the root
		prefix: b.fullParts(prefix),
	}, nil
}

func (b *Backend[V]) Subdicts(ctx context.Context) ([]pd.SafeKey, error) {
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()
	prefixLen := len(b.prefix)
	seen := map[string]bool{}
	var out []pd.SafeKey
	for k := range b.state.items {
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
	k := joinKey(b.fullParts(key))
	b.state.mu.RLock()
	defer b.state.mu.RUnlock()

	it, exists := b.state.items[k]
	if !exists {
		return pd.ConditionalResult[V]{
			ConditionWasSatisfied: cond.Satisfied(expected, pd.ItemNotAvailable),
			ActualEtag:            pd.ItemNotAvailable,
			ResultingEtag:         pd.ItemNotAvailable,
			NewValue:              pd.AbsentValue[V](),
		}, nil
	}

	actual := etagSlotOf(it.etag)
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
	if shouldFetch {
		newValue = pd.RealValue(it.value)
	}

	return pd.ConditionalResult[V]{
		ConditionWasSatisfied: satisfied,
		ActualEtag:            actual,
		ResultingEtag:         actual,
		NewValue:              newValue,
	}, nil
}

func (b *Backend[V]) SetItemIf(ctx context.Context, key pd.SafeKey, input pd.InputSlot[V], expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.Lock()
	defer b.state.mu.Unlock()

	it, exists := b.state.items[k]
	var actual pd.EtagSlot = pd.ItemNotAvailable
	if exists {
		actual = etagSlotOf(it.etag)
	}

	satisfied := cond.Satisfied(expected, actual)
	if !satisfied {
		return b.notSatisfiedResultLocked(expected, actual, it, retrieve), nil
	}

	switch {
	case input.IsKeepCurrent():
		nv := pd.AbsentValue[V]()
		if exists {
			nv = pd.RealValue(it.value)
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: actual, NewValue: nv}, nil
	case input.IsDeleteCurrent():
		if b.cfg.AppendOnly && exists {
			return pd.ConditionalResult[V]{}, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
		}
		delete(b.state.items, k)
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
	default:
		v, _ := input.Value()
		if err := b.cfg.CheckValue(v); err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		if b.cfg.AppendOnly && exists {
			return pd.ConditionalResult[V]{}, &pd.MutationPolicyError{Policy: "append_only: overwrite of existing key is forbidden"}
		}
		b.state.nextTag++
		newTag := b.state.nextTag
		b.state.items[k] = &item[V]{value: v, etag: newTag, updatedAt: time.Now()}
		resulting := etagSlotOf(newTag)
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: resulting, NewValue: pd.RealValue(v)}, nil
	}
}

func (b *Backend[V]) notSatisfiedResultLocked(expected, actual pd.EtagSlot, it *item[V], retrieve pd.RetrieveMode) pd.ConditionalResult[V] {
	if it == nil {
		return pd.ConditionalResult[V]{ConditionWasSatisfied: false, ActualEtag: pd.ItemNotAvailable, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}
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
		nv = pd.RealValue(it.value)
	}
	return pd.ConditionalResult[V]{ConditionWasSatisfied: false, ActualEtag: actual, ResultingEtag: actual, NewValue: nv}
}

func (b *Backend[V]) SetdefaultIf(ctx context.Context, key pd.SafeKey, def V, expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.Lock()
	defer b.state.mu.Unlock()
	if it, exists := b.state.items[k]; exists {
		actual := etagSlotOf(it.etag)
		return b.notSatisfiedResultLocked(expected, actual, it, retrieve), nil
	}
	if !cond.Satisfied(expected, pd.ItemNotAvailable) {
		return b.notSatisfiedResultLocked(expected, pd.ItemNotAvailable, nil, retrieve), nil
	}
	if err := b.cfg.CheckValue(def); err != nil {
		return pd.ConditionalResult[V]{}, err
	}
	b.state.nextTag++
	b.state.items[k] = &item[V]{value: def, etag: b.state.nextTag, updatedAt: time.Now()}
	return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: pd.ItemNotAvailable, ResultingEtag: etagSlotOf(b.state.nextTag), NewValue: pd.RealValue(def)}, nil
}

func (b *Backend[V]) DiscardIf(ctx context.Context, key pd.SafeKey, expected pd.EtagSlot, cond pd.ConditionFlag) (pd.ConditionalResult[V], error) {
	k := joinKey(b.fullParts(key))
	b.state.mu.Lock()
	defer b.state.mu.Unlock()

	it, exists := b.state.items[k]
	actual := pd.ItemNotAvailable
	if exists {
		actual = etagSlotOf(it.etag)
	}
	satisfied := cond.Satisfied(expected, actual)
	if !satisfied {
		nv := pd.ValueSlot[V]{}
		if exists {
			nv = pd.NotRetrievedValue[V]()
		} else {
			nv = pd.AbsentValue[V]()
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: false, ActualEtag: actual, ResultingEtag: actual, NewValue: nv}, nil
	}
	if !exists {
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: pd.ItemNotAvailable, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
	}
	if b.cfg.AppendOnly {
		return pd.ConditionalResult[V]{}, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
	}
	delete(b.state.items, k)
	return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
}

var randMu sync.Mutex
var randState uint64 = 0x9E3779B97F4A7C15

// randIntn is a tiny, dependency-free xorshift PRNG used only for
// reservoir sampling in RandomKey; it need not be cryptographically
// strong.
func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	randMu.Lock()
	randState ^= randState << 13
	randState ^= randState >> 7
	randState ^= randState << 17
	v := randState
	randMu.Unlock()
	return int(v % uint64(n))
}
