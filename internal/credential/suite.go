// Package credential implements the SignatureSuite registry (verify
// and sign dispatch across Ed25519, BLS12-381, and a hash-based
// ML-DSA-44 stand-in) and the CredentialStore mediating an account's
// [active, staged] credential slot.
package credential

import (
	"fmt"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// Verify dispatches signature verification to the suite identified by
// suite.
func Verify(suite types.SignatureSuite, publicKey, message, signature []byte) (bool, error) {
	switch suite {
	case types.SuiteEd25519:
		return verifyEd25519(publicKey, message, signature)
	case types.SuiteBLS12381:
		return verifyBLS12381(publicKey, message, signature)
	case types.SuiteMLDSA44:
		return verifyMLDSA44(publicKey, message, signature)
	default:
		return false, kernerr.New(kernerr.KindUnsupported, fmt.Sprintf("signature suite %s", suite))
	}
}

// Sign dispatches to the suite identified by suite. privateKey is the
// suite's raw private-key encoding (see each suite's doc comment).
func Sign(suite types.SignatureSuite, privateKey, message []byte) ([]byte, error) {
	switch suite {
	case types.SuiteEd25519:
		return signEd25519(privateKey, message)
	case types.SuiteBLS12381:
		return signBLS12381(privateKey, message)
	case types.SuiteMLDSA44:
		return signMLDSA44(privateKey, message)
	default:
		return nil, kernerr.New(kernerr.KindUnsupported, fmt.Sprintf("signature suite %s", suite))
	}
}

// PublicKeyHash is H(suite || public_key), matching the identity
// hub's active.public_key_hash binding.
func PublicKeyHash(suite types.SignatureSuite, publicKey []byte) [32]byte {
	return hashSuiteAndKey(suite, publicKey)
}
