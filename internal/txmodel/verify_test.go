package txmodel

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/commitment"
	"github.com/certen/kernel/internal/types"
)

func signedTx(t *testing.T, nonce uint64) *types.ChainTransaction {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tx := &types.ChainTransaction{
		Kind: types.TxSettlement,
		Header: types.SignHeader{
			AccountId: types.AccountId{1},
			Nonce:     nonce,
			ChainId:   "certen-test",
			TxVersion: 1,
		},
		Settlement: &types.SettlementPayload{Raw: []byte("payload")},
		SigProof: types.SignatureProof{
			Suite:     types.SuiteEd25519,
			PublicKey: pub,
		},
	}
	sig := ed25519.Sign(priv, codec.CanonicalSignBytes(tx))
	tx.SigProof.Signature = sig
	return tx
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	tx := signedTx(t, 1)
	if err := VerifySignature(tx); err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}

	tx.Header.Nonce = 2 // mutate after signing
	if err := VerifySignature(tx); err == nil {
		t.Fatalf("expected verification failure after mutation")
	}
}

func TestBatchVerifySignatures(t *testing.T) {
	txs := []*types.ChainTransaction{signedTx(t, 1), signedTx(t, 2), signedTx(t, 3)}
	txs[1].SigProof.Signature[0] ^= 0xFF

	results := BatchVerifySignatures(context.Background(), txs)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		want := r.Index != 1
		got := r.Err == nil
		if got != want {
			t.Fatalf("index %d: got err=%v, want valid=%v", r.Index, r.Err, want)
		}
	}
}

type memView struct {
	kv map[string][]byte
}

func newMemView() *memView { return &memView{kv: make(map[string][]byte)} }

func (m *memView) Get(key []byte) ([]byte, bool) { v, ok := m.kv[string(key)]; return v, ok }
func (m *memView) Insert(key, value []byte)      { m.kv[string(key)] = value }
func (m *memView) Delete(key []byte)             { delete(m.kv, string(key)) }
func (m *memView) BatchGet(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.kv[string(k)]
	}
	return out
}
func (m *memView) BatchSet(entries []commitment.Leaf) {
	for _, e := range entries {
		m.kv[string(e.Key)] = e.Value
	}
}
func (m *memView) BatchApply(inserts []commitment.Leaf, deletes [][]byte) {
	for _, k := range deletes {
		delete(m.kv, string(k))
	}
	for _, e := range inserts {
		m.kv[string(e.Key)] = e.Value
	}
}
func (m *memView) PrefixScan(prefix []byte) []commitment.Leaf {
	var out []commitment.Leaf
	for k, v := range m.kv {
		if len(k) >= len(prefix) && k[:len(prefix)] == string(prefix) {
			out = append(out, commitment.Leaf{Key: []byte(k), Value: v})
		}
	}
	return out
}

var _ View = (*memView)(nil)

func TestNamespacedViewConfinesWrites(t *testing.T) {
	inner := newMemView()
	ns := NewNamespacedView(inner, "oracle", [][]byte{types.ValidatorSetKey})
	inner.Insert(types.ValidatorSetKey, []byte("vset"))

	if err := ns.InsertChecked(types.ServiceNamespacePrefix("oracle"), []byte("ok")); err != nil {
		t.Fatalf("expected in-namespace write to succeed: %v", err)
	}
	if err := ns.InsertChecked([]byte("other_key"), []byte("bad")); err == nil {
		t.Fatalf("expected out-of-namespace write to fail")
	}

	if v, ok := ns.Get(types.ValidatorSetKey); !ok || string(v) != "vset" {
		t.Fatalf("expected allowed system prefix to be readable: %v %v", v, ok)
	}
	if _, ok := ns.Get([]byte("other_key")); ok {
		t.Fatalf("expected unrelated key to read as absent")
	}
}
