// Package statetree implements the versioned authenticated map: a
// persistent key-value store whose pending version can be committed
// under a height, queried with inclusion proofs at any retained
// historical root, and pruned by height.
//
// Adapted from pkg/merkle/tree.go, which rebuilds a
// fixed-leaf binary tree from scratch on every commit. Here the same
// rebuild-from-leaves style is kept, but generalized from a static
// leaf list to a mutable key-value map: every CommitVersion snapshots
// the full current leaf set under its height, and proofs for a past
// height are served from that retained snapshot rather than from a
// shared trie (there is no incremental trie here; this keeps that
// same simplicity while adding versioning on top).
package statetree

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/certen/kernel/internal/commitment"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// RootHash is the commitment produced by committing a version.
type RootHash = commitment.Commitment

// Membership is the result of a historical point lookup: either the
// value present at that root, or an assertion of absence.
type Membership struct {
	Present bool
	Value   []byte
}

// Delta is the set of dirty leaves produced by a single CommitVersion
// call, handed to a NodeStore for durable persistence.
type Delta struct {
	Height  uint64
	Root    RootHash
	Upserts []commitment.Leaf
	Deletes [][]byte
}

// NodeStore is the durability sink a tree hands its deltas to. The
// concrete implementation lives in internal/nodestore; the interface
// is declared here to avoid an import cycle.
type NodeStore interface {
	PutNodes(ctx context.Context, delta Delta) error
}

type versionSnapshot struct {
	root   RootHash
	leaves map[string][]byte
}

// Tree is a versioned authenticated map over a single commitment
// scheme.
type Tree struct {
	mu sync.RWMutex

	scheme commitment.Scheme

	current map[string][]byte

	pendingUpserts map[string][]byte
	pendingDeletes map[string]struct{}

	versions     map[uint64]versionSnapshot
	rootToHeight map[string]uint64
	heights      []uint64 // ascending, retained (non-pruned) committed heights
}

// New returns an empty tree backed by scheme.
func New(scheme commitment.Scheme) *Tree {
	return &Tree{
		scheme:         scheme,
		current:        make(map[string][]byte),
		pendingUpserts: make(map[string][]byte),
		pendingDeletes: make(map[string]struct{}),
		versions:       make(map[uint64]versionSnapshot),
		rootToHeight:   make(map[string]uint64),
	}
}

// Get returns the latest-version value at key, if present.
func (t *Tree) Get(key []byte) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.current[string(key)]
	return v, ok
}

// Insert sets key to value in the pending version.
func (t *Tree) Insert(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	t.current[k] = value
	t.pendingUpserts[k] = value
	delete(t.pendingDeletes, k)
}

// Delete removes key from the pending version.
func (t *Tree) Delete(key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	if _, existed := t.current[k]; !existed {
		return
	}
	delete(t.current, k)
	delete(t.pendingUpserts, k)
	t.pendingDeletes[k] = struct{}{}
}

// BatchGet looks up several keys against the latest version.
func (t *Tree) BatchGet(keys [][]byte) []([]byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = t.current[string(k)]
	}
	return out
}

// BatchSet upserts several (key, value) pairs.
func (t *Tree) BatchSet(entries []commitment.Leaf) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range entries {
		k := string(e.Key)
		t.current[k] = e.Value
		t.pendingUpserts[k] = e.Value
		delete(t.pendingDeletes, k)
	}
}

// BatchApply applies a set of inserts and a set of deletes atomically
// with respect to pending-version bookkeeping.
func (t *Tree) BatchApply(inserts []commitment.Leaf, deletes [][]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range deletes {
		k := string(key)
		if _, existed := t.current[k]; existed {
			delete(t.current, k)
			delete(t.pendingUpserts, k)
			t.pendingDeletes[k] = struct{}{}
		}
	}
	for _, e := range inserts {
		k := string(e.Key)
		t.current[k] = e.Value
		t.pendingUpserts[k] = e.Value
		delete(t.pendingDeletes, k)
	}
}

// PrefixScan returns all (key, value) pairs of the latest version
// whose key starts with prefix, in lexicographic key order.
func (t *Tree) PrefixScan(prefix []byte) []commitment.Leaf {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []commitment.Leaf
	for k, v := range t.current {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, commitment.Leaf{Key: []byte(k), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

func (t *Tree) currentLeavesLocked() []commitment.Leaf {
	leaves := make([]commitment.Leaf, 0, len(t.current))
	for k, v := range t.current {
		leaves = append(leaves, commitment.Leaf{Key: []byte(k), Value: v})
	}
	return leaves
}

// RootCommitment returns the commitment of the pending (uncommitted)
// version.
func (t *Tree) RootCommitment() (RootHash, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scheme.Commit(t.currentLeavesLocked())
}

// CreateProof builds a membership proof for key against the pending
// version. found is false, with a nil error, if key is absent.
func (t *Tree) CreateProof(key []byte) (commitment.Proof, bool, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scheme.CreateProof(t.currentLeavesLocked(), commitment.SelectorForKey(key))
}

// VerifyProof checks proof against commit for (key, value); it is
// pure with respect to tree state.
func (t *Tree) VerifyProof(commit RootHash, proof commitment.Proof, key, value []byte) (bool, error) {
	return t.scheme.Verify(commit, proof, commitment.SelectorForKey(key), value)
}

// GetWithProofAt looks up key against a retained historical root and
// returns its membership plus a proof against that root. It returns a
// KindState error if commit does not match any retained version
// (pruned, or never committed).
func (t *Tree) GetWithProofAt(commit RootHash, key []byte) (Membership, commitment.Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	height, ok := t.rootToHeight[string(commit)]
	if !ok {
		return Membership{}, nil, kernerr.New(kernerr.KindState, "root is not a retained version")
	}
	snap := t.versions[height]

	leaves := make([]commitment.Leaf, 0, len(snap.leaves))
	for k, v := range snap.leaves {
		leaves = append(leaves, commitment.Leaf{Key: []byte(k), Value: v})
	}

	proof, found, err := t.scheme.CreateProof(leaves, commitment.SelectorForKey(key))
	if err != nil {
		return Membership{}, nil, err
	}
	if !found {
		return Membership{Present: false}, proof, nil
	}
	return Membership{Present: true, Value: snap.leaves[string(key)]}, proof, nil
}

// CommitVersion finalizes the pending mutations as height, snapshots
// the resulting leaf set for later historical queries, and returns
// the new root. height must be greater than the last committed height
// (any height is accepted for the first commit); gaps are allowed.
func (t *Tree) CommitVersion(height uint64) (RootHash, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	root, delta, err := t.commitVersionLocked(height)
	_ = delta
	return root, err
}

func (t *Tree) commitVersionLocked(height uint64) (RootHash, Delta, error) {
	if n := len(t.heights); n > 0 && height <= t.heights[n-1] {
		return nil, Delta{}, kernerr.New(kernerr.KindState, "commit height must exceed the last committed height")
	}

	root, err := t.scheme.Commit(t.currentLeavesLocked())
	if err != nil {
		return nil, Delta{}, err
	}

	snapLeaves := make(map[string][]byte, len(t.current))
	for k, v := range t.current {
		snapLeaves[k] = v
	}
	t.versions[height] = versionSnapshot{root: root, leaves: snapLeaves}
	t.rootToHeight[string(root)] = height
	t.heights = append(t.heights, height)

	delta := Delta{Height: height, Root: root}
	for k, v := range t.pendingUpserts {
		delta.Upserts = append(delta.Upserts, commitment.Leaf{Key: []byte(k), Value: v})
	}
	for k := range t.pendingDeletes {
		delta.Deletes = append(delta.Deletes, []byte(k))
	}
	t.pendingUpserts = make(map[string][]byte)
	t.pendingDeletes = make(map[string]struct{})

	return root, delta, nil
}

// CommitVersionPersist commits height, then hands the resulting delta
// to store for durable persistence. Per spec, store.PutNodes must
// return before height is advertised as the committed tip.
func (t *Tree) CommitVersionPersist(ctx context.Context, height uint64, store NodeStore) (RootHash, error) {
	t.mu.Lock()
	root, delta, err := t.commitVersionLocked(height)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := store.PutNodes(ctx, delta); err != nil {
		return nil, kernerr.Wrap(kernerr.KindState, "node store persist failed", err)
	}
	return root, nil
}

// PruneBatch drops retained versions strictly below plan.CutoffHeight,
// except those pinned in plan.ExcludedHeights, up to limit heights.
// It returns the number of heights actually dropped.
func (t *Tree) PruneBatch(plan types.PrunePlan, limit int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	dropped := 0
	remaining := t.heights[:0:0]
	for _, h := range t.heights {
		if dropped < limit && !plan.Survives(h) {
			snap, ok := t.versions[h]
			if ok {
				delete(t.rootToHeight, string(snap.root))
			}
			delete(t.versions, h)
			dropped++
			continue
		}
		remaining = append(remaining, h)
	}
	t.heights = remaining
	return dropped
}

// PruneBatchBestEffort behaves like PruneBatch but never blocks: if
// the write lock is currently contested it returns immediately with
// ok=false instead of waiting, so a cooperative GC pass can skip this
// cycle rather than stall a concurrent writer.
func (t *Tree) PruneBatchBestEffort(plan types.PrunePlan, limit int) (dropped int, ok bool) {
	if !t.mu.TryLock() {
		return 0, false
	}
	defer t.mu.Unlock()

	remaining := t.heights[:0:0]
	for _, h := range t.heights {
		if dropped < limit && !plan.Survives(h) {
			snap, present := t.versions[h]
			if present {
				delete(t.rootToHeight, string(snap.root))
			}
			delete(t.versions, h)
			dropped++
			continue
		}
		remaining = append(remaining, h)
	}
	t.heights = remaining
	return dropped, true
}

// RetainedHeights returns the currently retained (non-pruned)
// committed heights, ascending.
func (t *Tree) RetainedHeights() []uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]uint64, len(t.heights))
	copy(out, t.heights)
	return out
}

var _ txmodel.View = (*Tree)(nil)
