package execution

import (
	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

func readNonce(view txmodel.View, account types.AccountId) uint64 {
	raw, ok := view.Get(types.AccountNonceKey(account))
	if !ok || len(raw) != 8 {
		return 0
	}
	return codec.Uint64FromBE(raw)
}

// assertNextNonce requires tx.Header.Nonce to equal the account's
// currently recorded next nonce.
func assertNextNonce(view txmodel.View, tx *types.ChainTransaction) error {
	want := readNonce(view, tx.Header.AccountId)
	if tx.Header.Nonce != want {
		return kernerr.New(kernerr.KindInvalid, "nonce mismatch")
	}
	return nil
}

func bumpNonce(view txmodel.View, tx *types.ChainTransaction) {
	view.Insert(types.AccountNonceKey(tx.Header.AccountId), codec.Uint64BE(tx.Header.Nonce+1))
}
