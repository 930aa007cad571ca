// Package txmodel defines the contracts the execution machine and
// services build on: the state access contract, the
// service handler contract, and stateless signature verification over
// the canonical encoding in internal/codec.
package txmodel

import "github.com/certen/kernel/internal/commitment"

// View is the state access contract consumed by services and
// decorators. internal/statetree.Tree satisfies it directly.
type View interface {
	Get(key []byte) ([]byte, bool)
	Insert(key, value []byte)
	Delete(key []byte)
	BatchGet(keys [][]byte) [][]byte
	BatchSet(entries []commitment.Leaf)
	BatchApply(inserts []commitment.Leaf, deletes [][]byte)
	PrefixScan(prefix []byte) []commitment.Leaf
}
