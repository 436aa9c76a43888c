package persidict

import (
	"context"
	"time"
)

// PersiDict is the capability set every backend and wrapper implements:
// mapping operations, the conditional-operation protocol, ETag/timestamp
// queries, and hierarchical subdict views. Wrappers hold an inner
// PersiDict as an owned, unexported field; there are no cyclic references.
type PersiDict[V any] interface {
	// Set honors joker inputs: KeepCurrentInput is a no-op, DeleteCurrentInput
	// is equivalent to Discard. A real input is written unconditionally.
	Set(ctx context.Context, key SafeKey, input InputSlot[V]) error

	// Get returns the current value or a *KeyMissingError if key is absent.
	Get(ctx context.Context, key SafeKey) (V, error)

	// Discard removes key. It never raises for a missing key and reports
	// whether anything was actually removed.
	Discard(ctx context.Context, key SafeKey) (bool, error)

	Contains(ctx context.Context, key SafeKey) (bool, error)
	Len(ctx context.Context) (int, error)

	Keys(ctx context.Context) ([]SafeKey, error)
	Values(ctx context.Context) ([]V, error)
	Items(ctx context.Context) (map[string]V, error)

	// Etag raises *KeyMissingError if key is absent.
	Etag(ctx context.Context, key SafeKey) (ETag, error)
	// Timestamp raises *KeyMissingError if key is absent.
	Timestamp(ctx context.Context, key SafeKey) (time.Time, error)

	// RandomKey returns a uniformly sampled key and true, or the zero
	// SafeKey and false if the dict is empty.
	RandomKey(ctx context.Context) (SafeKey, bool, error)
	OldestKeys(ctx context.Context, maxN int) ([]SafeKey, error)
	NewestKeys(ctx context.Context, maxN int) ([]SafeKey, error)

	// GetSubdict returns a view restricted to keys sharing prefix; prefix
	// itself is excluded from the view's own keys.
	GetSubdict(ctx context.Context, prefix SafeKey) (PersiDict[V], error)
	// Subdicts lists the immediate child prefixes one level below the
	// dict's root.
	Subdicts(ctx context.Context) ([]SafeKey, error)

	GetItemIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error)
	SetItemIf(ctx context.Context, key SafeKey, input InputSlot[V], expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error)
	SetdefaultIf(ctx context.Context, key SafeKey, def V, expected EtagSlot, cond ConditionFlag, retrieve RetrieveMode) (ConditionalResult[V], error)
	DiscardIf(ctx context.Context, key SafeKey, expected EtagSlot, cond ConditionFlag) (ConditionalResult[V], error)

	Config() Config[V]
}
