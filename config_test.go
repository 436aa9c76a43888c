package persidict

import "testing"

func TestConfigLoggerOrNop(t *testing.T) {
	var cfg Config[int]
	if _, ok := cfg.LoggerOrNop().(NopLogger); !ok {
		t.Fatalf("expected NopLogger when Logger is unset")
	}
}

func TestConfigHooksOrNop(t *testing.T) {
	var cfg Config[int]
	if _, ok := cfg.HooksOrNop().(NopHooks); !ok {
		t.Fatalf("expected NopHooks when Hooks is unset")
	}
}

func TestConfigCheckValue(t *testing.T) {
	cfg := Config[int]{BaseTypeConstraint: func(v int) bool { return v >= 0 }}
	if err := cfg.CheckValue(5); err != nil {
		t.Fatalf("CheckValue(5): %v", err)
	}
	if err := cfg.CheckValue(-1); err == nil {
		t.Fatalf("CheckValue(-1) should fail the constraint")
	}

	var noConstraint Config[int]
	if err := noConstraint.CheckValue(-1); err != nil {
		t.Fatalf("CheckValue with no constraint should always pass: %v", err)
	}
}
