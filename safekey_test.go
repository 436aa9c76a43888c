package persidict

import "testing"

func TestIsSafeString(t *testing.T) {
	cases := []struct {
		s    string
		want bool
	}{
		{"", false},
		{".", false},
		{"..", false},
		{"ok", true},
		{"with spaces", true},
		{"a/b", false},
		{"a\\b", false},
		{"a\x00b", false},
		{"\x01control", false},
	}
	for _, c := range cases {
		if got := IsSafeString(c.s); got != c.want {
			t.Errorf("IsSafeString(%q) = %v, want %v", c.s, got, c.want)
		}
	}
}

func TestIsSafeStringLength(t *testing.T) {
	ok := make([]byte, MaxSafeStringLength)
	for i := range ok {
		ok[i] = 'a'
	}
	if !IsSafeString(string(ok)) {
		t.Fatalf("string at MaxSafeStringLength should be safe")
	}
	tooLong := append(ok, 'a')
	if IsSafeString(string(tooLong)) {
		t.Fatalf("string beyond MaxSafeStringLength should not be safe")
	}
}

func TestNewSafeKey(t *testing.T) {
	if _, err := NewSafeKey(); err == nil {
		t.Fatalf("NewSafeKey with no parts should error")
	}
	if _, err := NewSafeKey("ok", "bad/part"); err == nil {
		t.Fatalf("NewSafeKey with an unsafe part should error")
	}
	k, err := NewSafeKey("users", "42")
	if err != nil {
		t.Fatalf("NewSafeKey: %v", err)
	}
	if k.Len() != 2 || k.At(0) != "users" || k.At(1) != "42" {
		t.Fatalf("unexpected key %v", k)
	}
}

func TestSafeKeyPartsIsDefensiveCopy(t *testing.T) {
	k := MustSafeKey("a", "b")
	parts := k.Parts()
	parts[0] = "mutated"
	if k.At(0) != "a" {
		t.Fatalf("mutating Parts() result leaked into the key: %v", k)
	}
}

func TestSafeKeyJoin(t *testing.T) {
	k := MustSafeKey("a")
	joined, err := k.Join("b", "c")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if joined.String() != "(a, b, c)" {
		t.Fatalf("unexpected joined key: %s", joined)
	}
	if k.Len() != 1 {
		t.Fatalf("Join mutated the receiver")
	}
}

func TestSafeKeyHasPrefixAndSuffix(t *testing.T) {
	k := MustSafeKey("a", "b", "c")
	prefix := MustSafeKey("a", "b")
	if !k.HasPrefix(prefix) {
		t.Fatalf("expected %v to have prefix %v", k, prefix)
	}
	if k.HasPrefix(MustSafeKey("a", "x")) {
		t.Fatalf("should not match a differing prefix")
	}
	if MustSafeKey("a").HasPrefix(k) {
		t.Fatalf("shorter key should not have a longer prefix")
	}
	suffix := k.Suffix(prefix.Len())
	if len(suffix) != 1 || suffix[0] != "c" {
		t.Fatalf("unexpected suffix %v", suffix)
	}
	if k.Suffix(k.Len()) != nil {
		t.Fatalf("suffix at full length should be nil")
	}
}

func TestSafeKeyEqual(t *testing.T) {
	a := MustSafeKey("x", "y")
	b := MustSafeKey("x", "y")
	c := MustSafeKey("x", "z")
	if !a.Equal(b) {
		t.Fatalf("equal keys compared unequal")
	}
	if a.Equal(c) {
		t.Fatalf("differing keys compared equal")
	}
	if a.Equal(MustSafeKey("x")) {
		t.Fatalf("keys of differing length compared equal")
	}
}
