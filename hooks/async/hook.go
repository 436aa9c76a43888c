// Package asynchook wraps a persidict.Hooks implementation so that each
// callback is dispatched to a small worker pool instead of running
// inline on the backend's hot path. Events queued past qlen are dropped
// rather than blocking the caller.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    RenameRetriedEvery: 1,
//	})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	be, _ := filedir.New[User](persidict.Config[User]{Hooks: hooks}, dir, codec.JSONCodec[User]{})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/persidict"
)

type Hooks struct {
	inner persidict.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ persidict.Hooks = (*Hooks)(nil)

func New(inner persidict.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) RenameRetried(storageKey string, attempt int, err error) {
	h.try(func() { h.inner.RenameRetried(storageKey, attempt, err) })
}
func (h *Hooks) FsyncFailureAbsorbed(dir string, err error) {
	h.try(func() { h.inner.FsyncFailureAbsorbed(dir, err) })
}
func (h *Hooks) VanishedDuringIteration(storageKey string) {
	h.try(func() { h.inner.VanishedDuringIteration(storageKey) })
}
func (h *Hooks) ForeignEntrySkipped(name string) {
	h.try(func() { h.inner.ForeignEntrySkipped(name) })
}
func (h *Hooks) BucketLifecycleAbsorbed(bucket, reason string) {
	h.try(func() { h.inner.BucketLifecycleAbsorbed(bucket, reason) })
}
func (h *Hooks) PreconditionRetried(storageKey string, err error) {
	h.try(func() { h.inner.PreconditionRetried(storageKey, err) })
}
func (h *Hooks) ConsistencyCheckFailed(storageKey string) {
	h.try(func() { h.inner.ConsistencyCheckFailed(storageKey) })
}
