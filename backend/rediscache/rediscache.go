// Package rediscache implements persidict.PersiDict as a subordinate,
// process-external cache backed by Redis, for use as the value- or
// ETag-cache half of a MutableCacheWrapper. Unlike MemoryBackend its
// ETag counter survives process restarts and is shared across processes
// talking to the same Redis instance.
//
// Grounded on the teacher's genstore/redis.go (INCR-based generation
// counters, pipelined writes) and provider/redis's go-redis client
// wiring, repurposed here to carry full values rather than opaque cache
// payloads.
package rediscache

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/codec"
)

// Backend is persidict.PersiDict backed by Redis. Conditional operations
// are check-then-act (read meta, evaluate, then write/delete): atomic
// only within a single Redis command, not across the read-evaluate-write
// sequence. Acceptable for a subordinate cache, whose own wrapper already
// tolerates stale/missing entries.
type Backend[V any] struct {
	cfg   pd.Config[V]
	rdb   goredis.UniversalClient
	ns    string
	codec codec.Codec[V]
	ttl   time.Duration
}

// New constructs a RedisCacheBackend under the given namespace. ttl <= 0
// means entries never expire.
func New[V any](cfg pd.Config[V], client goredis.UniversalClient, namespace string, cd codec.Codec[V], ttl time.Duration) *Backend[V] {
	return &Backend[V]{cfg: cfg, rdb: client, ns: namespace, codec: cd, ttl: ttl}
}

func (b *Backend[V]) Config() pd.Config[V] { return b.cfg }

func (b *Backend[V]) storageKey(key pd.SafeKey) string {
	return strings.Join(key.Parts(), "/")
}

func (b *Backend[V]) valueKey(key pd.SafeKey) string {
	return b.ns + ":v:" + b.storageKey(key)
}

func (b *Backend[V]) metaKey(key pd.SafeKey) string {
	return b.ns + ":m:" + b.storageKey(key)
}

func etagSlotOf(n int64) pd.EtagSlot {
	return pd.RealEtag(pd.ETag(strconv.FormatInt(n, 10)))
}

func (b *Backend[V]) readMeta(ctx context.Context, key pd.SafeKey) (pd.EtagSlot, time.Time, bool, error) {
	res, err := b.rdb.HMGet(ctx, b.metaKey(key), "etag", "ts").Result()
	if err != nil {
		return pd.ItemNotAvailable, time.Time{}, false, &pd.BackendError{Backend: "rediscache", Operation: "hmget", Key: &key, Cause: err}
	}
	if res[0] == nil {
		return pd.ItemNotAvailable, time.Time{}, false, nil
	}
	etagStr, _ := res[0].(string)
	n, err := strconv.ParseInt(etagStr, 10, 64)
	if err != nil {
		return pd.ItemNotAvailable, time.Time{}, false, &pd.BackendError{Backend: "rediscache", Operation: "parse_etag", Key: &key, Cause: err}
	}
	var ts time.Time
	if tsStr, ok := res[1].(string); ok {
		if nanos, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			ts = time.Unix(0, nanos)
		}
	}
	return etagSlotOf(n), ts, true, nil
}

func (b *Backend[V]) writeValue(ctx context.Context, key pd.SafeKey, v V) (pd.EtagSlot, error) {
	payload, err := b.codec.Encode(v)
	if err != nil {
		return pd.ItemNotAvailable, &pd.BackendError{Backend: "rediscache", Operation: "encode", Key: &key, Cause: err}
	}
	vk, mk := b.valueKey(key), b.metaKey(key)

	pipe := b.rdb.TxPipeline()
	pipe.Set(ctx, vk, payload, b.ttl)
	incr := pipe.HIncrBy(ctx, mk, "etag", 1)
	pipe.HSet(ctx, mk, "ts", fmt.Sprintf("%d", time.Now().UnixNano()))
	if b.ttl > 0 {
		pipe.Expire(ctx, mk, b.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return pd.ItemNotAvailable, &pd.BackendError{Backend: "rediscache", Operation: "pipeline_set", Key: &key, Cause: err}
	}
	return etagSlotOf(incr.Val()), nil
}

func (b *Backend[V]) deleteValue(ctx context.Context, key pd.SafeKey) error {
	if err := b.rdb.Del(ctx, b.valueKey(key), b.metaKey(key)).Err(); err != nil {
		return &pd.BackendError{Backend: "rediscache", Operation: "del", Key: &key, Cause: err}
	}
	return nil
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
		_, _, exists, err := b.readMeta(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return &pd.MutationPolicyError{Policy: "append_only: overwrite of existing key is forbidden"}
		}
	}
	_, err := b.writeValue(ctx, key, v)
	return err
}

func (b *Backend[V]) Get(ctx context.Context, key pd.SafeKey) (V, error) {
	var zero V
	data, err := b.rdb.Get(ctx, b.valueKey(key)).Bytes()
	if err == goredis.Nil {
		return zero, &pd.KeyMissingError{Key: key}
	}
	if err != nil {
		return zero, &pd.BackendError{Backend: "rediscache", Operation: "get", Key: &key, Cause: err}
	}
	v, err := b.codec.Decode(data)
	if err != nil {
		return zero, &pd.BackendError{Backend: "rediscache", Operation: "decode", Key: &key, Cause: err}
	}
	return v, nil
}

func (b *Backend[V]) Discard(ctx context.Context, key pd.SafeKey) (bool, error) {
	_, _, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if b.cfg.AppendOnly {
		return false, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
	}
	if err := b.deleteValue(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Backend[V]) Contains(ctx context.Context, key pd.SafeKey) (bool, error) {
	_, _, exists, err := b.readMeta(ctx, key)
	return exists, err
}

func (b *Backend[V]) Etag(ctx context.Context, key pd.SafeKey) (pd.ETag, error) {
	slot, _, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &pd.KeyMissingError{Key: key}
	}
	tag, _ := slot.Tag()
	return tag, nil
}

func (b *Backend[V]) Timestamp(ctx context.Context, key pd.SafeKey) (time.Time, error) {
	_, ts, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if !exists {
		return time.Time{}, &pd.KeyMissingError{Key: key}
	}
	return ts, nil
}

type scanned struct {
	key pd.SafeKey
	ts  time.Time
}

func (b *Backend[V]) scanAll(ctx context.Context) ([]scanned, error) {
	prefix := b.ns + ":m:"
	var out []scanned
	iter := b.rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), prefix)
		parts := strings.Split(name, "/")
		key, err := pd.NewSafeKey(parts...)
		if err != nil {
			b.cfg.HooksOrNop().ForeignEntrySkipped(name)
			continue
		}
		_, ts, exists, err := b.readMeta(ctx, key)
		if err != nil {
			continue
		}
		if !exists {
			b.cfg.HooksOrNop().VanishedDuringIteration(name)
			continue
		}
		out = append(out, scanned{key: key, ts: ts})
	}
	if err := iter.Err(); err != nil {
		return nil, &pd.BackendError{Backend: "rediscache", Operation: "scan", Cause: err}
	}
	return out, nil
}

func (b *Backend[V]) Len(ctx context.Context) (int, error) {
	entries, err := b.scanAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (b *Backend[V]) Keys(ctx context.Context) ([]pd.SafeKey, error) {
	entries, err := b.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]pd.SafeKey, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out, nil
}

func (b *Backend[V]) Values(ctx context.Context) ([]V, error) {
	entries, err := b.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(entries))
	for _, e := range entries {
		v, err := b.Get(ctx, e.key)
		if err != nil {
			if _, ok := err.(*pd.KeyMissingError); ok {
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *Backend[V]) Items(ctx context.Context) (map[string]V, error) {
	entries, err := b.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]V, len(entries))
	for _, e := range entries {
		v, err := b.Get(ctx, e.key)
		if err != nil {
			if _, ok := err.(*pd.KeyMissingError); ok {
				continue
			}
			return nil, err
		}
		out[e.key.String()] = v
	}
	return out, nil
}

func (b *Backend[V]) RandomKey(ctx context.Context) (pd.SafeKey, bool, error) {
	entries, err := b.scanAll(ctx)
	if err != nil || len(entries) == 0 {
		return pd.SafeKey{}, false, err
	}
	idx := pseudoRandIntn(len(entries))
	return entries[idx].key, true, nil
}

func (b *Backend[V]) sortedKeys(ctx context.Context, maxN int, ascending bool) ([]pd.SafeKey, error) {
	entries, err := b.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].ts.Before(entries[j].ts)
		}
		return entries[i].ts.After(entries[j].ts)
	})
	if maxN >= 0 && maxN < len(entries) {
		entries = entries[:maxN]
	}
	out := make([]pd.SafeKey, len(entries))
	for i, e := range entries {
		out[i] = e.key
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
	return &Backend[V]{cfg: b.cfg, rdb: b.rdb, ns: b.ns + ":" + strings.Join(prefix.Parts(), "/"), codec: b.codec, ttl: b.ttl}, nil
}

func (b *Backend[V]) Subdicts(ctx context.Context) ([]pd.SafeKey, error) {
	entries, err := b.scanAll(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []pd.SafeKey
	for _, e := range entries {
		parts := e.key.Parts()
		if len(parts) < 2 {
			continue
		}
		child := parts[0]
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
	actual, _, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return pd.ConditionalResult[V]{}, err
	}
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
	actual, _, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return pd.ConditionalResult[V]{}, err
	}
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
			if err := b.deleteValue(ctx, key); err != nil {
				return pd.ConditionalResult[V]{}, err
			}
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
		resulting, err := b.writeValue(ctx, key, v)
		if err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: resulting, NewValue: pd.RealValue(v)}, nil
	}
}

func (b *Backend[V]) SetdefaultIf(ctx context.Context, key pd.SafeKey, def V, expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	actual, _, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return pd.ConditionalResult[V]{}, err
	}
	if exists {
		return b.notSatisfiedResult(ctx, key, expected, actual, true, retrieve)
	}
	return b.SetItemIf(ctx, key, pd.RealInput(def), expected, cond, retrieve)
}

func (b *Backend[V]) DiscardIf(ctx context.Context, key pd.SafeKey, expected pd.EtagSlot, cond pd.ConditionFlag) (pd.ConditionalResult[V], error) {
	actual, _, exists, err := b.readMeta(ctx, key)
	if err != nil {
		return pd.ConditionalResult[V]{}, err
	}
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
	if err := b.deleteValue(ctx, key); err != nil {
		return pd.ConditionalResult[V]{}, err
	}
	return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
}

var (
	randMu    sync.Mutex
	randState uint64 = 0x2545F4914F6CDD1D
)

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
