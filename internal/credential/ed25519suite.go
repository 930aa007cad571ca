package credential

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

func hashSuiteAndKey(suite types.SignatureSuite, publicKey []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte{byte(suite)})
	h.Write(publicKey)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func verifyEd25519(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return false, kernerr.New(kernerr.KindInvalid, "ed25519: wrong public key size")
	}
	if len(signature) != ed25519.SignatureSize {
		return false, kernerr.New(kernerr.KindInvalid, "ed25519: wrong signature size")
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
}

// signEd25519 expects privateKey to be the 64-byte seed||pubkey
// encoding crypto/ed25519 produces from ed25519.GenerateKey.
func signEd25519(privateKey, message []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, kernerr.New(kernerr.KindInvalid, "ed25519: wrong private key size")
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), message), nil
}
