// Package commitment defines the abstract commitment-scheme capability:
// a family of implementations producing a Commitment and Proof for a
// set of values under a Selector. The state tree (internal/statetree)
// is built on top of one selected concrete variant
// (internal/commitment/hashscheme).
package commitment

import "errors"

// ErrNotFound names the case of a selector that addresses no value in
// a leaf set. No Scheme method returns it: CreateProof reports that
// case as found=false with a nil error.
var ErrNotFound = errors.New("commitment: selector not found")

// SelectorKind tags which addressing mode a Selector uses.
type SelectorKind uint8

const (
	SelectorNone SelectorKind = iota
	SelectorPosition
	SelectorKeyKind
	SelectorPredicate
)

// Selector addresses a single value within a committed set. The only
// implementation, the Hash variant (internal/commitment/hashscheme),
// accepts the Key kind only and returns an error for None, Position
// and Predicate selectors.
type Selector struct {
	Kind      SelectorKind
	Position  uint64
	Key       []byte
	Predicate []byte
}

// SelectorForKey builds a Key-kind selector, the addressing mode the
// state tree uses for point lookups and membership proofs.
func SelectorForKey(key []byte) Selector {
	return Selector{Kind: SelectorKeyKind, Key: key}
}

// Commitment is a short binding digest of a value set under a scheme.
// Implementations must serialize it to a stable byte string.
type Commitment []byte

// Proof is a scheme-specific membership proof. Implementations must
// serialize it to a stable byte string.
type Proof []byte

// Leaf is one (key, value) pair contributing to a committed value
// set. Keys must be unique within a single Commit/CreateProof call.
type Leaf struct {
	Key   []byte
	Value []byte
}

// Scheme is the abstract commitment capability. Implementations must
// satisfy: (a) deterministic commitment for equal value-sets; (b)
// soundness — Verify only returns true for the authentic value at a
// selector under a given commitment; (c) stable-byte serialization of
// Commitment and Proof.
type Scheme interface {
	// Name identifies the concrete variant (e.g. "hash", "kzg").
	Name() string

	// Commit computes the deterministic commitment of leaves. The
	// order of leaves must not affect the result.
	Commit(leaves []Leaf) (Commitment, error)

	// CreateProof builds a membership proof for sel against leaves.
	// found reports whether sel addressed a present value. For an
	// absent key a scheme returns either a non-membership proof or,
	// if it cannot prove non-membership (as hashscheme), a nil proof.
	CreateProof(leaves []Leaf, sel Selector) (proof Proof, found bool, err error)

	// Verify checks that value is the authentic value at sel under
	// commit, given proof. A nil value with found=false in the
	// corresponding CreateProof call is verified by passing a nil
	// value here for non-membership proofs that the scheme supports;
	// schemes that cannot prove non-membership return an error.
	Verify(commit Commitment, proof Proof, sel Selector, value []byte) (bool, error)
}
