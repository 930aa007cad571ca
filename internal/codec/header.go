package codec

import (
	"crypto/sha256"

	"github.com/certen/kernel/internal/types"
)

// CanonicalHeaderWithoutSig encodes a BlockHeader's fields excluding
// Signature.
func CanonicalHeaderWithoutSig(h *types.BlockHeader) []byte {
	var buf []byte
	buf = appendUint64(buf, h.Height)
	buf = appendUint64(buf, h.View)
	buf = append(buf, h.ParentHash[:]...)
	buf = append(buf, h.ParentStateRoot[:]...)
	buf = append(buf, h.StateRoot[:]...)
	buf = append(buf, h.TransactionsRoot[:]...)
	buf = appendUint64(buf, uint64(h.Timestamp.UnixNano()))
	buf = appendUint64(buf, h.GasUsed)
	buf = append(buf, h.ProducerAccountId[:]...)
	buf = append(buf, byte(h.ProducerKeySuite))
	buf = append(buf, h.ProducerPubkeyHash[:]...)
	buf = appendBytes(buf, h.ProducerPubkey)
	return buf
}

// HeaderSigningPayload is the oracle-anchored payload signed and
// verified for every block header:
//
//	H(canonical_header_without_sig) || be64(oracle_counter) || oracle_trace_hash
func HeaderSigningPayload(h *types.BlockHeader) []byte {
	headerHash := sha256.Sum256(CanonicalHeaderWithoutSig(h))
	buf := make([]byte, 0, 32+8+32)
	buf = append(buf, headerHash[:]...)
	buf = appendUint64(buf, h.OracleCounter)
	buf = append(buf, h.OracleTraceHash[:]...)
	return buf
}

// BlockHash returns the canonical hash of a finalized header,
// including its signature, used for equivocation/divergence tracking.
func BlockHash(h *types.BlockHeader) [32]byte {
	buf := CanonicalHeaderWithoutSig(h)
	buf = appendBytes(buf, h.Signature)
	buf = appendUint64(buf, h.OracleCounter)
	return sha256.Sum256(buf)
}

// EmptyTransactionsRoot is H(∅), the transactions_root for an empty
// block.
func EmptyTransactionsRoot() [32]byte {
	return sha256.Sum256(nil)
}
