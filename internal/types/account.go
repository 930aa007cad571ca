// Package types defines the core data model shared across the kernel:
// accounts, credentials, transactions, blocks, validator sets, and the
// persisted-state layout constants.
package types

import "crypto/sha256"

// AccountId is a 32-byte content address derived from the account's
// first bound credential. It is stable across key rotations: only the
// credential bound to the slot changes, never the account identity.
type AccountId [32]byte

// String returns the hex representation of the account id.
func (a AccountId) String() string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range a {
		out[i*2] = hexdigits[b>>4]
		out[i*2+1] = hexdigits[b&0xf]
	}
	return string(out)
}

// IsZero reports whether the account id is the zero value.
func (a AccountId) IsZero() bool {
	return a == AccountId{}
}

// DeriveAccountId computes H(suiteTag || publicKeyMaterial) and returns
// the resulting AccountId. suiteTag is a single byte so distinct suites
// never collide on identically-shaped key material.
func DeriveAccountId(suiteTag byte, publicKeyMaterial []byte) AccountId {
	h := sha256.New()
	h.Write([]byte{suiteTag})
	h.Write(publicKeyMaterial)
	var id AccountId
	copy(id[:], h.Sum(nil))
	return id
}
