package codec

import (
	"encoding/json"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// EncodeTransaction serializes tx for network gossip and mempool raw
// storage. No wire encoding is mandated elsewhere in this kernel, so
// JSON is used here for the same reason the rest of the kernel favors
// it for on-disk records (see internal/nodestore, internal/credential)
// — canonical_sign_bytes (codec/tx.go) remains the only format that
// participates in hashing or signing.
func EncodeTransaction(tx *types.ChainTransaction) ([]byte, error) {
	b, err := json.Marshal(tx)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindInvalid, "encode transaction", err)
	}
	return b, nil
}

// DecodeTransaction is the inverse of EncodeTransaction.
func DecodeTransaction(raw []byte) (*types.ChainTransaction, error) {
	var tx types.ChainTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, kernerr.Wrap(kernerr.KindInvalid, "decode transaction", err)
	}
	return &tx, nil
}

// EncodeBlock serializes a finalized block for gossip and node-store
// persistence, under the same JSON convention as EncodeTransaction.
func EncodeBlock(b *types.Block) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindInvalid, "encode block", err)
	}
	return raw, nil
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(raw []byte) (*types.Block, error) {
	var b types.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, kernerr.Wrap(kernerr.KindInvalid, "decode block", err)
	}
	return &b, nil
}
