// Package filedir implements persidict.PersiDict on top of a local
// directory tree: one file per item, SafeKey components mapped onto
// nested directories, digest-suffixed for case-insensitive-filesystem
// safety, with atomic rename on write and a stat-derived ETag.
//
// Grounded on the teacher's file-based layout conventions and on
// file_dir_dict.py's directory-walk iteration and check-then-act
// conditional semantics; atomic rename is a deliberate strengthening the
// Python original lacks.
package filedir

import (
	"context"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	pd "github.com/unkn0wn-root/persidict"
	"github.com/unkn0wn-root/persidict/codec"
	"github.com/unkn0wn-root/persidict/internal/util"
)

const maxRenameRetries = 5

// Backend is persidict.PersiDict backed by files under BaseDir. Readers
// always see either a previous or a current version of an item's
// contents, never a partial write, because every write lands via
// temp-file-then-rename.
type Backend[V any] struct {
	cfg     pd.Config[V]
	baseDir string
	codec   codec.Codec[V]
	ext     string

	// randMu guards rnd. It is a pointer so GetSubdict can share both the
	// generator and its lock with every subdict carved from this Backend —
	// math/rand.Rand is not safe for concurrent use on its own.
	randMu *sync.Mutex
	rnd    *rand.Rand
}

// New constructs a root FileDirBackend rooted at baseDir, creating it if
// absent. cd determines both the wire format and (via codec.Extension,
// when implemented) the file extension; codecs that do not implement
// Extension fall back to "bin".
func New[V any](cfg pd.Config[V], baseDir string, cd codec.Codec[V]) (*Backend[V], error) {
	if fi, err := os.Stat(baseDir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("persidict/filedir: %s is a file, not a directory", baseDir)
		}
	} else if err := mkdirWithRetry(baseDir); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, err
	}
	return &Backend[V]{
		cfg:     cfg,
		baseDir: abs,
		codec:   cd,
		ext:     extOfAny(cd),
		randMu:  &sync.Mutex{},
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(os.Getpid()))),
	}, nil
}

func extOfAny(cd any) string {
	if e, ok := cd.(codec.Extension); ok {
		return e.Ext()
	}
	return "bin"
}

func (b *Backend[V]) Config() pd.Config[V] { return b.cfg }

// mkdirWithRetry mirrors file_dir_dict.py's extra-protection pattern: a
// concurrent mkdir by another process can race os.Mkdir, so on failure we
// back off briefly and check again before giving up.
func mkdirWithRetry(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err == nil {
		return nil
	}
	time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// renderedParts returns the digest-suffixed directory components and the
// digest-suffixed, extension-qualified filename for key.
func (b *Backend[V]) renderedParts(key pd.SafeKey) (dirs []string, filename string) {
	parts := key.Parts()
	rendered := make([]string, len(parts))
	for i, p := range parts {
		rendered[i] = pd.AddDigestSuffixIfAbsent(p, b.cfg.DigestLen)
	}
	return rendered[:len(rendered)-1], rendered[len(rendered)-1] + "." + b.ext
}

func (b *Backend[V]) dirPath(dirs []string) string {
	return filepath.Join(append([]string{b.baseDir}, dirs...)...)
}

func (b *Backend[V]) filePath(key pd.SafeKey) string {
	dirs, filename := b.renderedParts(key)
	return filepath.Join(b.dirPath(dirs), filename)
}

func (b *Backend[V]) ensureParentDir(key pd.SafeKey) (string, error) {
	dirs, filename := b.renderedParts(key)
	dir := b.dirPath(dirs)
	if err := mkdirWithRetry(dir); err != nil {
		return "", &pd.BackendError{Backend: "filedir", Operation: "mkdir", Key: &key, Cause: err}
	}
	return filepath.Join(dir, filename), nil
}

func statEtag(fi os.FileInfo) pd.EtagSlot {
	var ino uint64
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		ino = uint64(st.Ino)
	}
	return pd.RealEtag(pd.ETag(fmt.Sprintf("%d:%d:%d", fi.ModTime().UnixNano(), fi.Size(), ino)))
}

func (b *Backend[V]) statFile(path string) (pd.EtagSlot, time.Time, bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return pd.ItemNotAvailable, time.Time{}, false, nil
		}
		return pd.ItemNotAvailable, time.Time{}, false, err
	}
	return statEtag(fi), fi.ModTime(), true, nil
}

func (b *Backend[V]) writeFile(ctx context.Context, key pd.SafeKey, v V) error {
	path, err := b.ensureParentDir(key)
	if err != nil {
		return err
	}
	payload, err := b.codec.Encode(v)
	if err != nil {
		return &pd.BackendError{Backend: "filedir", Operation: "encode", Key: &key, Cause: err}
	}

	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+util.TempSuffix()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &pd.BackendError{Backend: "filedir", Operation: "write", Key: &key, Cause: err}
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return &pd.BackendError{Backend: "filedir", Operation: "write", Key: &key, Cause: err}
	}
	syncErr := f.Sync()
	closeErr := f.Close()
	if syncErr != nil {
		os.Remove(tmp)
		return &pd.BackendError{Backend: "filedir", Operation: "fsync", Key: &key, Cause: syncErr}
	}
	if closeErr != nil {
		os.Remove(tmp)
		return &pd.BackendError{Backend: "filedir", Operation: "write", Key: &key, Cause: closeErr}
	}

	storageKey := strings.Join(key.Parts(), "/")
	var renameErr error
	for attempt := 1; attempt <= maxRenameRetries; attempt++ {
		if renameErr = os.Rename(tmp, path); renameErr == nil {
			break
		}
		b.cfg.HooksOrNop().RenameRetried(storageKey, attempt, renameErr)
		time.Sleep(time.Duration(5*attempt) * time.Millisecond)
	}
	if renameErr != nil {
		os.Remove(tmp)
		return &pd.BackendError{Backend: "filedir", Operation: "rename", Key: &key, Cause: renameErr}
	}

	if df, err := os.Open(dir); err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			b.cfg.HooksOrNop().FsyncFailureAbsorbed(dir, syncErr)
		}
		df.Close()
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
		if _, _, exists, err := b.statFile(b.filePath(key)); err != nil {
			return &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
		} else if exists {
			return &pd.MutationPolicyError{Policy: "append_only: overwrite of existing key is forbidden"}
		}
	}
	return b.writeFile(ctx, key, v)
}

func (b *Backend[V]) Get(ctx context.Context, key pd.SafeKey) (V, error) {
	var zero V
	path := b.filePath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, &pd.KeyMissingError{Key: key}
		}
		return zero, &pd.BackendError{Backend: "filedir", Operation: "read", Key: &key, Cause: err}
	}
	v, err := b.codec.Decode(data)
	if err != nil {
		return zero, &pd.BackendError{Backend: "filedir", Operation: "decode", Key: &key, Cause: err}
	}
	return v, nil
}

func (b *Backend[V]) Discard(ctx context.Context, key pd.SafeKey) (bool, error) {
	path := b.filePath(key)
	if _, _, exists, err := b.statFile(path); err != nil {
		return false, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
	} else if !exists {
		return false, nil
	}
	if b.cfg.AppendOnly {
		return false, &pd.MutationPolicyError{Policy: "append_only: delete of existing key is forbidden"}
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &pd.BackendError{Backend: "filedir", Operation: "remove", Key: &key, Cause: err}
	}
	return true, nil
}

func (b *Backend[V]) Contains(ctx context.Context, key pd.SafeKey) (bool, error) {
	_, _, exists, err := b.statFile(b.filePath(key))
	if err != nil {
		return false, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
	}
	return exists, nil
}

func (b *Backend[V]) Etag(ctx context.Context, key pd.SafeKey) (pd.ETag, error) {
	slot, _, exists, err := b.statFile(b.filePath(key))
	if err != nil {
		return "", &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
	}
	if !exists {
		return "", &pd.KeyMissingError{Key: key}
	}
	tag, _ := slot.Tag()
	return tag, nil
}

func (b *Backend[V]) Timestamp(ctx context.Context, key pd.SafeKey) (time.Time, error) {
	_, mtime, exists, err := b.statFile(b.filePath(key))
	if err != nil {
		return time.Time{}, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
	}
	if !exists {
		return time.Time{}, &pd.KeyMissingError{Key: key}
	}
	return mtime, nil
}

// walkEntry is a single file found while walking the tree, with its key
// already recovered from its path.
type walkEntry struct {
	key   pd.SafeKey
	path  string
	mtime time.Time
}

func (b *Backend[V]) walk(ctx context.Context) ([]walkEntry, error) {
	var out []walkEntry
	suffix := "." + b.ext
	err := filepath.WalkDir(b.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				b.cfg.HooksOrNop().VanishedDuringIteration(path)
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), suffix) {
			b.cfg.HooksOrNop().ForeignEntrySkipped(d.Name())
			return nil
		}
		rel, err := filepath.Rel(b.baseDir, path)
		if err != nil {
			return nil
		}
		key, ok := b.keyFromRelPath(rel)
		if !ok {
			b.cfg.HooksOrNop().ForeignEntrySkipped(d.Name())
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				b.cfg.HooksOrNop().VanishedDuringIteration(strings.Join(key.Parts(), "/"))
				return nil
			}
			return err
		}
		out = append(out, walkEntry{key: key, path: path, mtime: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, &pd.BackendError{Backend: "filedir", Operation: "walk", Cause: err}
	}
	return out, nil
}

// keyFromRelPath reconstructs a SafeKey from a file's path relative to
// baseDir, stripping the extension and the per-component digest suffix.
// Names that do not carry the expected suffix pattern are treated as
// foreign and rejected.
func (b *Backend[V]) keyFromRelPath(rel string) (pd.SafeKey, bool) {
	rel = strings.TrimSuffix(rel, "."+b.ext)
	segs := strings.Split(filepath.ToSlash(rel), "/")
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		orig, ok := pd.StripDigestSuffix(s, b.cfg.DigestLen)
		if !ok && b.cfg.DigestLen > 0 {
			return pd.SafeKey{}, false
		}
		parts = append(parts, orig)
	}
	key, err := pd.NewSafeKey(parts...)
	if err != nil {
		return pd.SafeKey{}, false
	}
	return key, true
}

func (b *Backend[V]) Len(ctx context.Context) (int, error) {
	entries, err := b.walk(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (b *Backend[V]) Keys(ctx context.Context) ([]pd.SafeKey, error) {
	entries, err := b.walk(ctx)
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
	entries, err := b.walk(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(entries))
	for _, e := range entries {
		v, err := b.Get(ctx, e.key)
		if err != nil {
			if _, ok := err.(*pd.KeyMissingError); ok {
				b.cfg.HooksOrNop().VanishedDuringIteration(strings.Join(e.key.Parts(), "/"))
				continue
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (b *Backend[V]) Items(ctx context.Context) (map[string]V, error) {
	entries, err := b.walk(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]V, len(entries))
	for _, e := range entries {
		v, err := b.Get(ctx, e.key)
		if err != nil {
			if _, ok := err.(*pd.KeyMissingError); ok {
				b.cfg.HooksOrNop().VanishedDuringIteration(strings.Join(e.key.Parts(), "/"))
				continue
			}
			return nil, err
		}
		out[e.key.String()] = v
	}
	return out, nil
}

func (b *Backend[V]) RandomKey(ctx context.Context) (pd.SafeKey, bool, error) {
	entries, err := b.walk(ctx)
	if err != nil || len(entries) == 0 {
		return pd.SafeKey{}, false, err
	}
	b.randMu.Lock()
	defer b.randMu.Unlock()
	chosen := entries[0].key
	n := 1
	for _, e := range entries[1:] {
		n++
		if b.rnd.Intn(n) == 0 {
			chosen = e.key
		}
	}
	return chosen, true, nil
}

func (b *Backend[V]) sortedKeys(ctx context.Context, maxN int, ascending bool) ([]pd.SafeKey, error) {
	entries, err := b.walk(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].mtime.Before(entries[j].mtime)
		}
		return entries[i].mtime.After(entries[j].mtime)
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
	allParts := make([]string, 0, prefix.Len())
	for _, p := range prefix.Parts() {
		allParts = append(allParts, pd.AddDigestSuffixIfAbsent(p, b.cfg.DigestLen))
	}
	dir := filepath.Join(append([]string{b.baseDir}, allParts...)...)
	if err := mkdirWithRetry(dir); err != nil {
		return nil, &pd.BackendError{Backend: "filedir", Operation: "mkdir", Key: &prefix, Cause: err}
	}
	return &Backend[V]{cfg: b.cfg, baseDir: dir, codec: b.codec, ext: b.ext, randMu: b.randMu, rnd: b.rnd}, nil
}

func (b *Backend[V]) Subdicts(ctx context.Context) ([]pd.SafeKey, error) {
	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, &pd.BackendError{Backend: "filedir", Operation: "readdir", Cause: err}
	}
	var out []pd.SafeKey
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		orig, ok := pd.StripDigestSuffix(e.Name(), b.cfg.DigestLen)
		if !ok && b.cfg.DigestLen > 0 {
			continue
		}
		sk, err := pd.NewSafeKey(orig)
		if err != nil {
			continue
		}
		out = append(out, sk)
	}
	return out, nil
}

func (b *Backend[V]) GetItemIf(ctx context.Context, key pd.SafeKey, expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	path := b.filePath(key)
	actual, _, exists, err := b.statFile(path)
	if err != nil {
		return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
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

	return pd.ConditionalResult[V]{
		ConditionWasSatisfied: satisfied,
		ActualEtag:            actual,
		ResultingEtag:         actual,
		NewValue:              newValue,
	}, nil
}

func (b *Backend[V]) SetItemIf(ctx context.Context, key pd.SafeKey, input pd.InputSlot[V], expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	path := b.filePath(key)
	actual, _, exists, err := b.statFile(path)
	if err != nil {
		return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
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
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "remove", Key: &key, Cause: err}
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
		if err := b.writeFile(ctx, key, v); err != nil {
			return pd.ConditionalResult[V]{}, err
		}
		resulting, _, _, err := b.statFile(path)
		if err != nil {
			return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
		}
		return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: resulting, NewValue: pd.RealValue(v)}, nil
	}
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

func (b *Backend[V]) SetdefaultIf(ctx context.Context, key pd.SafeKey, def V, expected pd.EtagSlot, cond pd.ConditionFlag, retrieve pd.RetrieveMode) (pd.ConditionalResult[V], error) {
	path := b.filePath(key)
	actual, _, exists, err := b.statFile(path)
	if err != nil {
		return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
	}
	if exists {
		return b.notSatisfiedResult(ctx, key, expected, actual, true, retrieve)
	}
	return b.SetItemIf(ctx, key, pd.RealInput(def), expected, cond, retrieve)
}

func (b *Backend[V]) DiscardIf(ctx context.Context, key pd.SafeKey, expected pd.EtagSlot, cond pd.ConditionFlag) (pd.ConditionalResult[V], error) {
	path := b.filePath(key)
	actual, _, exists, err := b.statFile(path)
	if err != nil {
		return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "stat", Key: &key, Cause: err}
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
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return pd.ConditionalResult[V]{}, &pd.BackendError{Backend: "filedir", Operation: "remove", Key: &key, Cause: err}
	}
	return pd.ConditionalResult[V]{ConditionWasSatisfied: true, ActualEtag: actual, ResultingEtag: pd.ItemNotAvailable, NewValue: pd.AbsentValue[V]()}, nil
}
