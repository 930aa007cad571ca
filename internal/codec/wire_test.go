package codec

import (
	"testing"

	"github.com/certen/kernel/internal/types"
)

func TestEncodeDecodeTransactionRoundTrip(t *testing.T) {
	tx := &types.ChainTransaction{
		Kind: types.TxSettlement,
		Header: types.SignHeader{
			AccountId: types.AccountId{9, 9},
			Nonce:     3,
			ChainId:   "certen-test",
			TxVersion: 1,
		},
		Settlement: &types.SettlementPayload{Raw: []byte("raw")},
		SigProof: types.SignatureProof{
			Suite:     types.SuiteEd25519,
			PublicKey: []byte("pub"),
			Signature: []byte("sig"),
		},
	}

	raw, err := EncodeTransaction(tx)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Header.Nonce != tx.Header.Nonce || got.Header.AccountId != tx.Header.AccountId {
		t.Fatalf("round-trip mismatch: %+v", got.Header)
	}
	if string(got.Settlement.Raw) != "raw" {
		t.Fatalf("expected settlement payload to round-trip, got %+v", got.Settlement)
	}
}

func TestDecodeTransactionRejectsGarbage(t *testing.T) {
	if _, err := DecodeTransaction([]byte("not json")); err == nil {
		t.Fatalf("expected decode error for malformed input")
	}
}
