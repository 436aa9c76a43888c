package codec

import "encoding/json"

type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	b, err := json.Marshal(v)
	return b, wrapErr("encode", err)
}

func (JSONCodec[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, wrapErr("decode", err)
}

func (JSONCodec[V]) Ext() string { return "json" }
