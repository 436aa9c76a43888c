package codec

import (
	"fmt"
	"reflect"
)

// VerifyingCodec wraps another codec and enforces the identity contract
// persidict's core assumes of every codec: decode(encode(v)) must equal v.
// Encode runs Inner.Encode and then Inner.Decode on the result, comparing
// the round-tripped value back against v by deep structural equality;
// a mismatch is reported as an encode error so callers never persist a
// value that cannot survive its own codec. Decode is forwarded unchanged.
//
// Round-tripping on every Encode call doubles the cost of serialization, so
// this is meant for codecs under development or for values where silent
// corruption is unacceptable, not as a default wrapper for every Set.
type VerifyingCodec[V any] struct {
	Inner Codec[V]
}

func (c VerifyingCodec[V]) Encode(v V) ([]byte, error) {
	b, err := c.Inner.Encode(v)
	if err != nil {
		return nil, err
	}
	back, err := c.Inner.Decode(b)
	if err != nil {
		return nil, wrapErr("encode", fmt.Errorf("round-trip decode failed: %w", err))
	}
	if !reflect.DeepEqual(v, back) {
		return nil, wrapErr("encode", fmt.Errorf("codec is not identity-preserving: decode(encode(v)) != v"))
	}
	return b, nil
}

func (c VerifyingCodec[V]) Decode(b []byte) (V, error) { return c.Inner.Decode(b) }

// Ext forwards to Inner's extension when Inner implements Extension,
// otherwise returns "bin".
func (c VerifyingCodec[V]) Ext() string {
	if ext, ok := c.Inner.(Extension); ok {
		return ext.Ext()
	}
	return "bin"
}
