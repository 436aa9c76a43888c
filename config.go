package persidict

// BaseTypeConstraint is an isinstance-equivalent predicate applied to
// every incoming value before a write; a false return is a type error at
// the caller's boundary, before any backend I/O.
type BaseTypeConstraint[V any] func(V) bool

// Config is the common, per-instance configuration record shared by every
// backend and wrapper, per spec.md §4.1/§6.
type Config[V any] struct {
	// SerializationFormat names the codec + extension in use (e.g.
	// "json", "cbor"); informational for callers composing
	// MultiFormatContainer, not interpreted by the core itself.
	SerializationFormat string

	// BaseTypeConstraint, if non-nil, is checked against every value
	// before a write is attempted.
	BaseTypeConstraint BaseTypeConstraint[V]

	// AppendOnly forbids overwriting or deleting an existing key; writes
	// to existing keys and discards raise MutationPolicyError.
	AppendOnly bool

	// DigestLen is FileDirBackend-only: length in hex characters of the
	// digest suffix appended to each rendered path component. 0 disables
	// suffixing.
	DigestLen int

	Logger Logger
	Hooks  Hooks
}

// LoggerOrNop returns the configured Logger, or a no-op if none was set.
func (c Config[V]) LoggerOrNop() Logger {
	if c.Logger == nil {
		return NopLogger{}
	}
	return c.Logger
}

// HooksOrNop returns the configured Hooks, or a no-op if none was set.
func (c Config[V]) HooksOrNop() Hooks {
	if c.Hooks == nil {
		return NopHooks{}
	}
	return c.Hooks
}

// CheckValue applies BaseTypeConstraint, if any, returning a
// *MutationPolicyError on mismatch.
func (c Config[V]) CheckValue(v V) error {
	if c.BaseTypeConstraint != nil && !c.BaseTypeConstraint(v) {
		return &MutationPolicyError{Policy: "base_class_for_values: value does not satisfy the configured type constraint"}
	}
	return nil
}
