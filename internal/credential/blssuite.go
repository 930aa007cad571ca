package credential

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/certen/kernel/internal/kernerr"
)

// BLS12-381 key, signature sizes (compressed G2 pubkey, compressed
// G1 signature), matching pkg/crypto/bls/bls.go.
const (
	blsPrivateKeySize = 32
	blsPublicKeySize  = 96
	blsSignatureSize  = 48
)

// blsDomain is the domain-separation tag mixed into every signed
// message.
const blsDomain = "certen-kernel/block-header/v1"

var (
	blsG1Gen bls12381.G1Affine
	blsG2Gen bls12381.G2Affine
)

func init() {
	g1, _, _, g2 := bls12381.Generators()
	blsG1Gen = g1
	blsG2Gen = g2
}

// blsHashToG1 deterministically maps message to a G1 point via
// try-and-increment.
func blsHashToG1(message []byte) bls12381.G1Affine {
	h := sha256.New()
	h.Write([]byte(blsDomain))
	h.Write(message)
	base := h.Sum(nil)

	for counter := uint64(0); counter < 1000; counter++ {
		h2 := sha256.New()
		h2.Write(base)
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], counter)
		h2.Write(ctr[:])
		digest := h2.Sum(nil)

		var point bls12381.G1Affine
		if _, err := point.SetBytes(digest); err == nil && !point.IsInfinity() {
			return point
		}

		var scalar fr.Element
		scalar.SetBytes(digest)
		var scalarBig big.Int
		scalar.BigInt(&scalarBig)

		var result bls12381.G1Affine
		result.ScalarMultiplication(&blsG1Gen, &scalarBig)
		if !result.IsInfinity() {
			return result
		}
	}
	return blsG1Gen
}

func signBLS12381(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != blsPrivateKeySize {
		return nil, kernerr.New(kernerr.KindInvalid, "bls12381: wrong private key size")
	}
	var sk fr.Element
	sk.SetBytes(privateKey)

	h := blsHashToG1(message)
	var skBig big.Int
	sk.BigInt(&skBig)

	var sig bls12381.G1Affine
	sig.ScalarMultiplication(&h, &skBig)

	out := sig.Bytes()
	return out[:], nil
}

func verifyBLS12381(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != blsPublicKeySize {
		return false, kernerr.New(kernerr.KindInvalid, "bls12381: wrong public key size")
	}
	if len(signature) != blsSignatureSize {
		return false, kernerr.New(kernerr.KindInvalid, "bls12381: wrong signature size")
	}

	var pk bls12381.G2Affine
	if _, err := pk.SetBytes(publicKey); err != nil {
		return false, kernerr.Wrap(kernerr.KindInvalid, "bls12381: malformed public key", err)
	}
	var sig bls12381.G1Affine
	if _, err := sig.SetBytes(signature); err != nil {
		return false, kernerr.Wrap(kernerr.KindInvalid, "bls12381: malformed signature", err)
	}

	h := blsHashToG1(message)

	var negPk bls12381.G2Affine
	negPk.Neg(&pk)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{sig, h},
		[]bls12381.G2Affine{blsG2Gen, negPk},
	)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// BLS12381PublicKeyFromPrivate derives the G2 public key bytes for a
// raw 32-byte scalar private key, for validator key provisioning.
func BLS12381PublicKeyFromPrivate(privateKey []byte) ([]byte, error) {
	if len(privateKey) != blsPrivateKeySize {
		return nil, kernerr.New(kernerr.KindInvalid, "bls12381: wrong private key size")
	}
	var sk fr.Element
	sk.SetBytes(privateKey)
	var skBig big.Int
	sk.BigInt(&skBig)

	var pk bls12381.G2Affine
	pk.ScalarMultiplication(&blsG2Gen, &skBig)
	out := pk.Bytes()
	return out[:], nil
}
