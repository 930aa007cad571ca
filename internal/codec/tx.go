package codec

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/certen/kernel/internal/types"
)

// txTag is the stable small integer tag for each ChainTransaction
// variant in the canonical encoding.
func txTag(kind types.TxKind) byte { return byte(kind) }

func encodeHeader(buf []byte, h *types.SignHeader) []byte {
	buf = append(buf, h.AccountId[:]...)
	buf = appendUint64(buf, h.Nonce)
	buf = appendString(buf, h.ChainId)
	buf = appendUint32(buf, h.TxVersion)
	if h.SessionAuth != nil {
		buf = append(buf, 1)
		buf = appendBytes(buf, h.SessionAuth.SessionKeyPub)
		buf = appendUint64(buf, h.SessionAuth.ExpiryHeight)
		buf = appendUint64(buf, h.SessionAuth.MaxSpend)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// CanonicalSessionAuthSignBytes encodes a SessionAuthorization's
// session key, expiry height and max spend (SignerSig excluded) in
// the length-prefixed binary form. The execution pipeline does not
// call it: it checks the master credential's delegation signature
// over MarshalCanonical of the authorization with SignerSig cleared
// (execution.sessionAuthSignedBytes).
func CanonicalSessionAuthSignBytes(s *types.SessionAuthorization) []byte {
	var buf []byte
	buf = appendBytes(buf, s.SessionKeyPub)
	buf = appendUint64(buf, s.ExpiryHeight)
	buf = appendUint64(buf, s.MaxSpend)
	return buf
}

// CanonicalSignBytes returns the bytes a transaction's embedded public
// key signs over: the header plus the payload, excluding the
// signature itself.
func CanonicalSignBytes(tx *types.ChainTransaction) []byte {
	var buf []byte
	buf = append(buf, txTag(tx.Kind))
	buf = encodeHeader(buf, &tx.Header)
	switch tx.Kind {
	case types.TxSystem:
		if tx.CallService != nil {
			buf = appendString(buf, tx.CallService.ServiceId)
			buf = appendString(buf, tx.CallService.Method)
			buf = appendBytes(buf, tx.CallService.Params)
		}
	case types.TxSettlement:
		if tx.Settlement != nil {
			buf = appendBytes(buf, tx.Settlement.Raw)
		}
	case types.TxDeployContract:
		if tx.DeployContract != nil {
			buf = appendBytes(buf, tx.DeployContract.Code)
		}
	case types.TxCallContract:
		if tx.CallContract != nil {
			buf = append(buf, tx.CallContract.Address[:]...)
			buf = appendBytes(buf, tx.CallContract.Input)
			buf = appendUint64(buf, tx.CallContract.GasLimit)
		}
	case types.TxSemantic:
		if tx.Semantic != nil {
			buf = appendBytes(buf, tx.Semantic.Result)
			buf = append(buf, tx.Semantic.IntentHash[:]...)
		}
	case types.TxIdentityRotate:
		if tx.IdentityRotate != nil {
			p := tx.IdentityRotate.Proof
			buf = appendBytes(buf, p.OldPublicKey)
			buf = appendBytes(buf, p.OldSignature)
			buf = appendBytes(buf, p.NewPublicKey)
			buf = appendBytes(buf, p.NewSignature)
			buf = append(buf, byte(p.TargetSuite))
			if p.L2Location != nil {
				buf = append(buf, 1)
				buf = appendString(buf, *p.L2Location)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	buf = append(buf, byte(tx.SigProof.Suite))
	buf = appendBytes(buf, tx.SigProof.PublicKey)
	return buf
}

// CanonicalTxHash is the canonical transaction hash used for
// per-account nonce indexing and mempool dedup: SHA-256 over the full
// sign bytes plus the signature.
func CanonicalTxHash(tx *types.ChainTransaction) [32]byte {
	buf := CanonicalSignBytes(tx)
	buf = appendBytes(buf, tx.SigProof.Signature)
	return sha256.Sum256(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendString(buf []byte, s string) []byte {
	return appendBytes(buf, []byte(s))
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = appendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}
