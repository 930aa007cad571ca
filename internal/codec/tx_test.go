package codec

import (
	"bytes"
	"testing"

	"github.com/certen/kernel/internal/types"
)

func TestCanonicalSignBytesDeterministic(t *testing.T) {
	tx := &types.ChainTransaction{
		Kind: types.TxSystem,
		Header: types.SignHeader{
			AccountId: types.AccountId{1, 2, 3},
			Nonce:     7,
			ChainId:   "certen-validator",
			TxVersion: 1,
		},
		CallService: &types.CallServicePayload{
			ServiceId: "governance",
			Method:    "stake@v1",
			Params:    []byte("params"),
		},
		SigProof: types.SignatureProof{
			Suite:     types.SuiteEd25519,
			PublicKey: []byte("pubkey"),
		},
	}

	a := CanonicalSignBytes(tx)
	b := CanonicalSignBytes(tx)
	if !bytes.Equal(a, b) {
		t.Fatalf("encoding is not deterministic")
	}

	tx2 := *tx
	tx2.Header.Nonce = 8
	c := CanonicalSignBytes(&tx2)
	if bytes.Equal(a, c) {
		t.Fatalf("expected differing nonce to change sign bytes")
	}
}

func TestCanonicalSignBytesCoversIdentityRotatePayload(t *testing.T) {
	tx := &types.ChainTransaction{
		Kind: types.TxIdentityRotate,
		Header: types.SignHeader{
			AccountId: types.AccountId{9},
			Nonce:     1,
			ChainId:   "certen-validator",
			TxVersion: 1,
		},
		IdentityRotate: &types.RotateKeyPayload{
			Proof: types.RotationProof{
				OldPublicKey: []byte("old"),
				NewPublicKey: []byte("new"),
				TargetSuite:  types.SuiteMLDSA44,
			},
		},
		SigProof: types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: []byte("pubkey")},
	}

	a := CanonicalSignBytes(tx)

	tx2 := *tx
	rotated := *tx.IdentityRotate
	rotated.Proof.NewPublicKey = []byte("different")
	tx2.IdentityRotate = &rotated
	b := CanonicalSignBytes(&tx2)

	if bytes.Equal(a, b) {
		t.Fatalf("expected a different new public key to change sign bytes")
	}
}

func TestCanonicalizeJSONSortsKeys(t *testing.T) {
	raw := []byte(`{"b":1,"a":2}`)
	out, err := CanonicalizeJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"a":2,"b":1}` {
		t.Fatalf("got %s, want sorted keys", out)
	}
}

func TestUint64BERoundTrip(t *testing.T) {
	v := uint64(0x0102030405060708)
	got := Uint64FromBE(Uint64BE(v))
	if got != v {
		t.Fatalf("round-trip mismatch: got %x want %x", got, v)
	}
}
