package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/persidict"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	RenameRetriedEvery       uint64
	ForeignEntrySkippedEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	renameCtr  atomic.Uint64
	foreignCtr atomic.Uint64
}

var _ persidict.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) RenameRetried(storageKey string, attempt int, err error) {
	if h.l == nil || !sample(h.opts.RenameRetriedEvery, &h.renameCtr) {
		return
	}
	h.l.Debug("persidict.rename_retried",
		"key", h.redact(storageKey),
		"attempt", attempt,
		"err", err)
}

func (h *Hooks) FsyncFailureAbsorbed(dir string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("persidict.fsync_failure_absorbed",
		"dir", h.redact(dir),
		"err", err)
}

func (h *Hooks) VanishedDuringIteration(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Debug("persidict.vanished_during_iteration",
		"key", h.redact(storageKey))
}

func (h *Hooks) ForeignEntrySkipped(name string) {
	if h.l == nil || !sample(h.opts.ForeignEntrySkippedEvery, &h.foreignCtr) {
		return
	}
	h.l.Debug("persidict.foreign_entry_skipped",
		"name", h.redact(name))
}

func (h *Hooks) BucketLifecycleAbsorbed(bucket, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("persidict.bucket_lifecycle_absorbed",
		"bucket", bucket,
		"reason", reason)
}

func (h *Hooks) PreconditionRetried(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Debug("persidict.precondition_retried",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) ConsistencyCheckFailed(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("persidict.consistency_check_failed",
		"key", h.redact(storageKey))
}
