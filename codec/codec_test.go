package codec

import "testing"

type widget struct {
	ID    string
	Count int
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSONCodec[widget]{}
	w := widget{ID: "w1", Count: 3}

	b, err := c.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != w {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, w)
	}
	if c.Ext() != "json" {
		t.Fatalf("unexpected extension: %s", c.Ext())
	}
}

func TestBytesCodecIsIdentity(t *testing.T) {
	c := Bytes{}
	in := []byte{1, 2, 3, 0, 255}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(out) != string(in) {
		t.Fatalf("identity codec changed the payload: %v -> %v", in, out)
	}
	if c.Ext() != "bin" {
		t.Fatalf("unexpected extension: %s", c.Ext())
	}
}

func TestStringCodecRoundTrip(t *testing.T) {
	c := String{}
	b, err := c.Encode("hello")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil || got != "hello" {
		t.Fatalf("Decode: got=%q err=%v", got, err)
	}
	if c.Ext() != "txt" {
		t.Fatalf("unexpected extension: %s", c.Ext())
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	c := Msgpack[widget]{}
	w := widget{ID: "w2", Count: 7}
	b, err := c.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil || got != w {
		t.Fatalf("round trip mismatch: got %+v err=%v", got, err)
	}
	if c.Ext() != "msgpack" {
		t.Fatalf("unexpected extension: %s", c.Ext())
	}
}

func TestCBORCodecRoundTrip(t *testing.T) {
	c, err := NewCBOR[widget](false)
	if err != nil {
		t.Fatalf("NewCBOR: %v", err)
	}
	w := widget{ID: "w3", Count: 9}
	b, err := c.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil || got != w {
		t.Fatalf("round trip mismatch: got %+v err=%v", got, err)
	}
	if c.Ext() != "cbor" {
		t.Fatalf("unexpected extension: %s", c.Ext())
	}
}

func TestCBORDeterministicEncodingIsStable(t *testing.T) {
	c := MustCBOR[widget](true)
	w := widget{ID: "w4", Count: 1}
	a, err := c.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b, err := c.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("deterministic encoding should be stable across calls")
	}
}

func TestLimitCodecRejectsOversizedPayload(t *testing.T) {
	lc := LimitCodec[widget]{Inner: JSONCodec[widget]{}, MaxDecode: 4}
	big, err := JSONCodec[widget]{}.Encode(widget{ID: "too-long-to-fit", Count: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := lc.Decode(big); err == nil {
		t.Fatalf("expected Decode to reject a payload over MaxDecode")
	}
}

func TestLimitCodecPassesSmallPayload(t *testing.T) {
	lc := LimitCodec[widget]{Inner: JSONCodec[widget]{}, MaxDecode: 1 << 20}
	w := widget{ID: "w5", Count: 2}
	b, err := lc.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := lc.Decode(b)
	if err != nil || got != w {
		t.Fatalf("Decode: got=%+v err=%v", got, err)
	}
}

func TestLimitCodecExtDelegatesToInner(t *testing.T) {
	lc := LimitCodec[widget]{Inner: JSONCodec[widget]{}, MaxDecode: 0}
	if lc.Ext() != "json" {
		t.Fatalf("expected Ext to delegate to Inner's JSON extension, got %s", lc.Ext())
	}
}

type nonExtensionCodec struct{}

func (nonExtensionCodec) Encode(v widget) ([]byte, error) { return nil, nil }
func (nonExtensionCodec) Decode(b []byte) (widget, error) { return widget{}, nil }

func TestLimitCodecExtFallsBackToBin(t *testing.T) {
	lc := LimitCodec[widget]{Inner: nonExtensionCodec{}, MaxDecode: 0}
	if lc.Ext() != "bin" {
		t.Fatalf("expected fallback extension bin, got %s", lc.Ext())
	}
}

func TestLimitCodecDisabledPassesAnySize(t *testing.T) {
	lc := LimitCodec[widget]{Inner: JSONCodec[widget]{}, MaxDecode: 0}
	big, err := JSONCodec[widget]{}.Encode(widget{ID: "arbitrarily long identifier string", Count: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := lc.Decode(big); err != nil {
		t.Fatalf("MaxDecode<=0 should disable size limiting, got error: %v", err)
	}
}

func TestVerifyingCodecPassesForIdentityPreservingInner(t *testing.T) {
	vc := VerifyingCodec[widget]{Inner: JSONCodec[widget]{}}
	w := widget{ID: "w6", Count: 11}
	b, err := vc.Encode(w)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := vc.Decode(b)
	if err != nil || got != w {
		t.Fatalf("Decode: got=%+v err=%v", got, err)
	}
	if vc.Ext() != "json" {
		t.Fatalf("expected Ext to delegate to Inner, got %s", vc.Ext())
	}
}

// truncatingCodec drops Count on decode, simulating a codec that silently
// fails to round-trip a value's full state.
type truncatingCodec struct{}

func (truncatingCodec) Encode(v widget) ([]byte, error) { return JSONCodec[widget]{}.Encode(v) }
func (truncatingCodec) Decode(b []byte) (widget, error) {
	v, err := JSONCodec[widget]{}.Decode(b)
	if err != nil {
		return v, err
	}
	v.Count = 0
	return v, nil
}

func TestVerifyingCodecRejectsNonIdentityInner(t *testing.T) {
	vc := VerifyingCodec[widget]{Inner: truncatingCodec{}}
	if _, err := vc.Encode(widget{ID: "w7", Count: 5}); err == nil {
		t.Fatalf("expected Encode to reject a non-identity-preserving codec")
	}
}
