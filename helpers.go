package persidict

import "context"

// SetValue writes a real value; shorthand for Set(ctx, key, RealInput(v)).
func SetValue[V any](ctx context.Context, d PersiDict[V], key SafeKey, v V) error {
	return d.Set(ctx, key, RealInput(v))
}

// GetWithDefault absorbs *KeyMissingError and returns def instead.
func GetWithDefault[V any](ctx context.Context, d PersiDict[V], key SafeKey, def V) (V, error) {
	v, err := d.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if _, ok := err.(*KeyMissingError); ok {
		return def, nil
	}
	var zero V
	return zero, err
}

// Pop returns and removes the value for key, or (zero, false, nil) if
// absent.
func Pop[V any](ctx context.Context, d PersiDict[V], key SafeKey) (V, bool, error) {
	v, err := d.Get(ctx, key)
	if err != nil {
		if _, ok := err.(*KeyMissingError); ok {
			var zero V
			return zero, false, nil
		}
		var zero V
		return zero, false, err
	}
	if _, err := d.Discard(ctx, key); err != nil {
		var zero V
		return zero, false, err
	}
	return v, true, nil
}

// Setdefault returns the existing value for key, or writes and returns
// def if key is absent.
func Setdefault[V any](ctx context.Context, d PersiDict[V], key SafeKey, def V) (V, error) {
	if v, err := d.Get(ctx, key); err == nil {
		return v, nil
	} else if _, ok := err.(*KeyMissingError); !ok {
		var zero V
		return zero, err
	}
	if err := d.Set(ctx, key, RealInput(def)); err != nil {
		var zero V
		return zero, err
	}
	return def, nil
}
