// Package codec implements the kernel's single stable, byte-deterministic
// encoding for everything that is ever hashed or persisted: fixed-width
// big-endian integers in signing payloads, maps serialized in sorted-key
// order, and union variants tagged by a stable small integer. Adapted
// from pkg/commitment/commitment.go CanonicalizeJSON.
package codec

import (
	"encoding/json"
	"sort"
)

// MarshalCanonical encodes v as JSON with every object's keys sorted,
// matching the RFC 8785-style canonicalization this runtime uses for
// commitment hashing.
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON takes arbitrary JSON bytes and returns a canonical
// re-encoding with deterministic key order.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

func canonicalizeValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]any, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// PutUint64BE writes v into b (which must be at least 8 bytes) in
// big-endian order. Used for values embedded in signing payloads
// (e.g. the oracle counter).
func PutUint64BE(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}

// Uint64BE returns v encoded as 8 big-endian bytes.
func Uint64BE(v uint64) []byte {
	b := make([]byte, 8)
	PutUint64BE(b, v)
	return b
}

// Uint64FromBE decodes 8 big-endian bytes into a uint64.
func Uint64FromBE(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}
