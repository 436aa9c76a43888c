// Package codec provides the serialization codec contract persidict treats
// as an external collaborator: encode(value) -> bytes, decode(bytes) ->
// value, plus a stable extension used by FileDirBackend/S3Backend to name
// stored objects.
package codec

import pd "github.com/unkn0wn-root/persidict"

// Codec encodes/decodes values V to []byte for storage. decode(encode(v))
// must be identity for every v accepted by the caller's base-type
// constraint.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Extension is implemented by codecs that know their own canonical file
// extension (without the leading dot).
type Extension interface {
	Ext() string
}

// wrapErr folds a concrete codec's raw marshal/unmarshal error into the same
// *pd.BackendError shape every backend already uses for its own I/O
// failures, so a caller inspecting an error from Set/Get never has to know
// whether the failure came from the transport or from the wire format.
func wrapErr(operation string, err error) error {
	if err == nil {
		return nil
	}
	return &pd.BackendError{Backend: "codec", Operation: operation, Cause: err}
}
