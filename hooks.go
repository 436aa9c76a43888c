package persidict

// Hooks are lightweight callbacks for the swallow points spec.md §7
// requires every absorbed backend failure to document. Implementations
// MUST be cheap and non-blocking; backends call them on hot paths.
type Hooks interface {
	// A rename of a temp file onto its target failed and is about to be
	// retried, or was the last of the bounded attempts (FileDirBackend).
	// attempt is 1-based.
	RenameRetried(storageKey string, attempt int, err error)

	// A directory fsync failed and was ignored (FileDirBackend).
	FsyncFailureAbsorbed(dir string, err error)

	// An entry vanished between listing and reading during iteration.
	VanishedDuringIteration(storageKey string)

	// An unrecognized/foreign filename or object was skipped during
	// iteration.
	ForeignEntrySkipped(name string)

	// Bucket-already-exists or not-authorized-on-head-bucket was absorbed
	// during S3Backend bucket lifecycle handling.
	BucketLifecycleAbsorbed(bucket, reason string)

	// A 412 Precondition Failed / 409 Conflict was re-read and turned into
	// a not-satisfied conditional result instead of propagating (S3Backend).
	PreconditionRetried(storageKey string, err error)

	// WriteOnceWrapper's sampled consistency check found a mismatch.
	ConsistencyCheckFailed(storageKey string)
}

// NopHooks is the default no-op implementation.
type NopHooks struct{}

func (NopHooks) RenameRetried(string, int, error)     {}
func (NopHooks) FsyncFailureAbsorbed(string, error)   {}
func (NopHooks) VanishedDuringIteration(string)       {}
func (NopHooks) ForeignEntrySkipped(string)           {}
func (NopHooks) BucketLifecycleAbsorbed(string, string) {}
func (NopHooks) PreconditionRetried(string, error)    {}
func (NopHooks) ConsistencyCheckFailed(string)        {}
