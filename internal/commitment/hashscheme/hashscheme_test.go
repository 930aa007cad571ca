package hashscheme

import (
	"testing"

	"github.com/certen/kernel/internal/commitment"
)

func TestCommitDeterministic(t *testing.T) {
	s := New()
	leaves := []commitment.Leaf{
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	r1, err := s.Commit(leaves)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	reversed := []commitment.Leaf{leaves[2], leaves[1], leaves[0]}
	r2, err := s.Commit(reversed)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if string(r1) != string(r2) {
		t.Fatalf("commitment depends on leaf order")
	}
}

func TestCreateAndVerifyProof(t *testing.T) {
	s := New()
	leaves := []commitment.Leaf{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("c"), Value: []byte("3")},
		{Key: []byte("d"), Value: []byte("4")},
	}
	root, err := s.Commit(leaves)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	for _, l := range leaves {
		proof, found, err := s.CreateProof(leaves, commitment.SelectorForKey(l.Key))
		if err != nil || !found {
			t.Fatalf("create proof for %s: found=%v err=%v", l.Key, found, err)
		}
		ok, err := s.Verify(root, proof, commitment.SelectorForKey(l.Key), l.Value)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if !ok {
			t.Fatalf("proof for key %s did not verify", l.Key)
		}
		// Wrong value must fail.
		ok, err = s.Verify(root, proof, commitment.SelectorForKey(l.Key), []byte("wrong"))
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if ok {
			t.Fatalf("proof verified with wrong value")
		}
	}
}

func TestCreateProofAbsentKey(t *testing.T) {
	s := New()
	leaves := []commitment.Leaf{{Key: []byte("a"), Value: []byte("1")}}
	_, found, err := s.CreateProof(leaves, commitment.SelectorForKey([]byte("missing")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected key to be absent")
	}
}

func TestSingleLeafRootEqualsLeafHash(t *testing.T) {
	s := New()
	leaves := []commitment.Leaf{{Key: []byte("only"), Value: []byte("v")}}
	root, err := s.Commit(leaves)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	proof, found, err := s.CreateProof(leaves, commitment.SelectorForKey([]byte("only")))
	if err != nil || !found {
		t.Fatalf("create proof: found=%v err=%v", found, err)
	}
	ok, err := s.Verify(root, proof, commitment.SelectorForKey([]byte("only")), []byte("v"))
	if err != nil || !ok {
		t.Fatalf("single leaf proof failed: ok=%v err=%v", ok, err)
	}
}
