package persidict

import (
	"context"
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"
)

// WriteOnceWrapper enforces first-write-wins over an append-only main
// dict. A write targeting an existing key is silently dropped rather
// than attempted (the key already has its permanent value); an optional
// sampling rate drives a probabilistic equality check of the new value
// against what is already stored, raising MutationPolicyError on a
// mismatch. set_item_if has no first-write-wins interpretation — a
// conditional overwrite contradicts the policy outright — so it always
// fails with MutationPolicyError rather than being delegated.
// Discard/DiscardIf fail the same way, since items here are immutable.
// This wrapper is meant to sit above any caching wrapper, not below it.
type WriteOnceWrapper[V any] struct {
	main PersiDict[V]
	p    float64

	mu              sync.Mutex
	rnd             *rand.Rand
	checksAttempted int
	checksPassed    int
}

// NewWriteOnceWrapper wraps main (which must itself be configured
// append-only) with first-write-wins semantics. p is the probability, in
// [0, 1], of consistency-checking a write against an already-existing
// key; p <= 0 disables checking, p >= 1 checks every repeat write.
func NewWriteOnceWrapper[V any](main PersiDict[V], p float64) *WriteOnceWrapper[V] {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &WriteOnceWrapper[V]{main: main, p: p, rnd: rand.New(rand.NewSource(1))}
}

func (w *WriteOnceWrapper[V]) Config() Config[V] { return w.main.Config() }

// ChecksAttempted reports how many consistency checks have run.
func (w *WriteOnceWrapper[V]) ChecksAttempted() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checksAttempted
}

// ChecksPassed reports how many consistency checks found the values equal.
func (w *WriteOnceWrapper[V]) ChecksPassed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checksPassed
}

// ChecksFailed reports how many consistency checks found a mismatch.
func (w *WriteOnceWrapper[V]) ChecksFailed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checksAttempted - w.checksPassed
}

func (w *WriteOnceWrapper[V]) roll() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rnd.Float64()
}

func (w *WriteOnceWrapper[V]) recordCheck(passed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.checksAttempted++
	if passed {
		w.checksPassed++
	}
}

// checkAgainst compares attempted against stored by decoded-value
// deep-equality, recording the outcome and returning a
// MutationPolicyError on mismatch.
func (w *WriteOnceWrapper[V]) checkAgainst(key SafeKey, attempted, stored V) error {
	passed := reflect.DeepEqual(attempted, stored)
	w.recordCheck(passed)
	if !passed {
		w.main.Config().HooksOrNop().ConsistencyCheckFailed(strings.Join(key.Parts(), "/"))
		return &MutationPolicyError{Policy: fmt.Sprintf("write_once: value for key %s differs from the value already written", key)}
	}
	return nil
}

func (w *WriteOnceWrapper[V]) Set(ctx context.Context, key SafeKey, input InputSlot[V]) error {
	if input.IsKeepCurrent() {
		return nil
	}
	if input.IsDeleteCurrent() {
		return &MutationPolicyError{Policy: "write_once: delete is not supported"}
	}
	v, _ := input.Value()

	alwaysCheck := w.p >= 1.0
	retrieve := NeverRetrieve
	if alwaysCheck {
		retrieve = AlwaysRetrieve
	}
	r, err := w.main.SetdefaultIf(ctx, key, v, ItemNotAvailable, AnyEtag, retrieve)
	if err != nil {
		return err
	}
	if r.ValueWasMutated() {
		return nil // first write for this key; nothing further to verify
	}

	if alwaysCheck {
		stored, ok := r.NewValue.Value()
		if !ok {
			return nil
		}
		return w.checkAgainst(key, v, stored)
	}
	if w.p > 0 && w.roll() < w.p {
		stored, err := w.main.Get(ctx, key)
		if err != nil {
			return err
		}
		return w.checkAgainst(key, v, stored)
	}
	return nil
}

func (w *WriteOnceWrapper[V]) Get(ctx context.Context, key SafeKey) (V, error) {
	return w.main.Get(ctx, key)
}

func (w *WriteOnceWrapper[V]) Discard(ctx context.Context, key SafeKey) (bool, error) {
	return false, &MutationPolicyError{Policy: "write_once: items are immutable and cannot be discarded"}
}

func (w *WriteOnceWrapper[V]) Contains(ctx context.Context, key SafeKey) (bool, error) {
	return w.main.Contains(ctx, key)
}

func (w *WriteOnceWrapper[V]) Len(ctx context.Context) (int, error) { return w.main.Len(ctx) }

func (w *WriteOnceWrapper[V]) Keys(ctx context.Context) ([]SafeKey, error) { return w.main.Keys(ctx) }

func (w *WriteOnceWrapper[V]) Values(ctx context.Context) ([]V, error) { return w.main.Values(ctx) }

func (w *WriteOnceWrapper[V]) Items(ctx context.Context) (map[string]V, error) {
	return w.main.Items(ctx)
}

func (w *WriteOnceWrapper[V]) Etag(ctx context.Context, key SafeKey) (ETag, error) {
	return w.main.Etag(ctx, key)
}

func (w *WriteOnceWrapper[V]) Timestamp(ctx context.Context, key SafeKey) (time.Time, error) {
	return w.main.Timestamp(ctx, key)
}

func (w *WriteOnceWrapper[V]) RandomKey(ctx context.Context) (SafeKey, bool, error) {
	return w.main.RandomKey(ctx)
}

func (w *WriteOnceWrapper[V]) OldestKeys(ctx context.Context, maxN int) ([]SafeKey, error) {
	return w.main.OldestKeys(ctx, maxN)
}

func (w *WriteOnceWrapper[V]) NewestKeys(ctx context.Context, maxN int) ([]SafeKey, error) {
	return w.main.NewestKeys(ctx, maxN)
}

func (w *WriteOnceWrapper[V]) Subdicts(ctx context.Context) ([]SafeKey, error) {
	return w.main.Subdicts(ctx)
}

// GetSubdict returns a WriteOnceWrapper view over the corresponding
// sub-dictionary of main, sharing this wrapper's consistency-check
// probability.
func (w *WriteOnceWrapper[V]) GetSubdict(ctx context.Context, prefix SafeKey) (PersiDict[V], error) {
	sub, err := w.main.GetSubdict(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return NewWriteOnceWrapper[V](sub, w.p), nil
}

func (w *WriteOnceWrapper[V]) GetItemIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	return w.main.GetItemIf(ctx, key, expected, cond, retrieve)
}

// SetItemIf is not supported: a conditional overwrite contradicts
// write-once semantics, which only ever permit insert-if-absent.
func (w *WriteOnceWrapper[V]) SetItemIf(ctx context.Context, key SafeKey, input InputSlot[V], expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	return ConditionalResult[V]{}, &MutationPolicyError{Policy: "write_once: set_item_if is not supported, use setdefault_if"}
}

func (w *WriteOnceWrapper[V]) SetdefaultIf(ctx context.Context, key SafeKey, def V, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error) {
	return w.main.SetdefaultIf(ctx, key, def, expected, cond, retrieve)
}

func (w *WriteOnceWrapper[V]) DiscardIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag) (ConditionalResult[V], error) {
	return ConditionalResult[V]{}, &MutationPolicyError{Policy: "write_once: items are immutable and cannot be discarded"}
}
