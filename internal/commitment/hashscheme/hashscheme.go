// Package hashscheme implements the Hash variant of the commitment
// scheme: a binary SHA-256 Merkle tree over sorted (key, value)
// leaves. Adapted from pkg/merkle/tree.go
// (BuildTree/GenerateProof/VerifyProof), generalized from a fixed
// leaf list to a key-addressed Selector.
package hashscheme

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/certen/kernel/internal/commitment"
)

var (
	errUnsupportedSelector = errors.New("hashscheme: only a Key selector is supported")
	errMalformedProof      = errors.New("hashscheme: malformed proof")
)

// Scheme is the Hash commitment scheme.
type Scheme struct{}

// New returns the Hash commitment scheme.
func New() *Scheme { return &Scheme{} }

func (*Scheme) Name() string { return "hash" }

func leafHash(key, value []byte) [32]byte {
	h := sha256.New()
	h.Write(key)
	h.Write(value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashPair(left, right [32]byte) [32]byte {
	combined := make([]byte, 64)
	copy(combined[:32], left[:])
	copy(combined[32:], right[:])
	return sha256.Sum256(combined)
}

func sortedLeafHashes(leaves []commitment.Leaf) []commitment.Leaf {
	sorted := make([]commitment.Leaf, len(leaves))
	copy(sorted, leaves)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0
	})
	return sorted
}

func buildLevels(leaves []commitment.Leaf) [][][32]byte {
	sorted := sortedLeafHashes(leaves)
	current := make([][32]byte, len(sorted))
	for i, l := range sorted {
		current[i] = leafHash(l.Key, l.Value)
	}
	levels := [][][32]byte{current}
	for len(current) > 1 {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, hashPair(current[i], current[i]))
			}
		}
		levels = append(levels, next)
		current = next
	}
	return levels
}

// Commit computes the deterministic root of the sorted leaf set. An
// empty leaf set commits to H(nil), matching EmptyTransactionsRoot.
func (s *Scheme) Commit(leaves []commitment.Leaf) (commitment.Commitment, error) {
	if len(leaves) == 0 {
		root := sha256.Sum256(nil)
		return commitment.Commitment(root[:]), nil
	}
	levels := buildLevels(leaves)
	root := levels[len(levels)-1][0]
	return commitment.Commitment(root[:]), nil
}

// proofNode is one step of an inclusion proof: a sibling hash and
// which side it sits on.
type proofNode struct {
	hash  [32]byte
	right bool // true if the sibling is on the right of the current node
}

func encodeProof(nodes []proofNode) commitment.Proof {
	out := make([]byte, 4, 4+len(nodes)*33)
	binary.BigEndian.PutUint32(out, uint32(len(nodes)))
	for _, n := range nodes {
		if n.right {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
		out = append(out, n.hash[:]...)
	}
	return out
}

func decodeProof(p commitment.Proof) ([]proofNode, error) {
	if len(p) < 4 {
		return nil, errMalformedProof
	}
	count := binary.BigEndian.Uint32(p[:4])
	rest := p[4:]
	if uint64(len(rest)) != uint64(count)*33 {
		return nil, errMalformedProof
	}
	nodes := make([]proofNode, count)
	for i := range nodes {
		off := i * 33
		nodes[i].right = rest[off] == 1
		copy(nodes[i].hash[:], rest[off+1:off+33])
	}
	return nodes, nil
}

// CreateProof builds an inclusion proof for sel.Key against leaves.
// found is false, with no error, if the key is absent from leaves.
func (s *Scheme) CreateProof(leaves []commitment.Leaf, sel commitment.Selector) (commitment.Proof, bool, error) {
	if sel.Kind != commitment.SelectorKeyKind {
		return nil, false, errUnsupportedSelector
	}
	sorted := sortedLeafHashes(leaves)
	idx := -1
	for i, l := range sorted {
		if bytes.Equal(l.Key, sel.Key) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, false, nil
	}

	levels := buildLevels(leaves)
	var nodes []proofNode
	current := idx
	for level := 0; level < len(levels)-1; level++ {
		nodesAtLevel := levels[level]
		if current%2 == 0 {
			sibling := current + 1
			if sibling < len(nodesAtLevel) {
				nodes = append(nodes, proofNode{hash: nodesAtLevel[sibling], right: true})
			} else {
				nodes = append(nodes, proofNode{hash: nodesAtLevel[current], right: true})
			}
		} else {
			nodes = append(nodes, proofNode{hash: nodesAtLevel[current-1], right: false})
		}
		current /= 2
	}
	return encodeProof(nodes), true, nil
}

// Verify checks that value is the authentic value at sel.Key under
// commit, given proof.
func (s *Scheme) Verify(commit commitment.Commitment, proof commitment.Proof, sel commitment.Selector, value []byte) (bool, error) {
	if sel.Kind != commitment.SelectorKeyKind {
		return false, errUnsupportedSelector
	}
	if len(commit) != 32 {
		return false, fmt.Errorf("hashscheme: commitment must be 32 bytes, got %d", len(commit))
	}
	nodes, err := decodeProof(proof)
	if err != nil {
		return false, err
	}

	current := leafHash(sel.Key, value)
	if len(nodes) == 0 {
		return subtle.ConstantTimeCompare(current[:], commit) == 1, nil
	}
	for _, n := range nodes {
		if n.right {
			current = hashPair(current, n.hash)
		} else {
			current = hashPair(n.hash, current)
		}
	}
	return subtle.ConstantTimeCompare(current[:], commit) == 1, nil
}

var _ commitment.Scheme = (*Scheme)(nil)
