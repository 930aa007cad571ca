package types

// SignatureSuite is a small integer tag enumerating signature
// algorithms. The registry is open per spec: new suites only need a
// verify function and a byte-prefix tag for account-id derivation
// (see internal/credential).
type SignatureSuite uint8

const (
	SuiteEd25519 SignatureSuite = iota
	SuiteMLDSA44
	SuiteFalcon512
	SuiteHybridEd25519MLDSA44
	// SuiteBLS12381 is used for validator consensus keys (block header
	// producer signatures), not for account credentials.
	SuiteBLS12381
)

// String returns a human-readable suite name.
func (s SignatureSuite) String() string {
	switch s {
	case SuiteEd25519:
		return "Ed25519"
	case SuiteMLDSA44:
		return "ML-DSA-44"
	case SuiteFalcon512:
		return "Falcon-512"
	case SuiteHybridEd25519MLDSA44:
		return "Hybrid(Ed25519‖ML-DSA-44)"
	case SuiteBLS12381:
		return "BLS12-381"
	default:
		return "Unknown"
	}
}

// IsPostQuantum reports whether the suite is believed to resist a
// quantum adversary.
func (s SignatureSuite) IsPostQuantum() bool {
	switch s {
	case SuiteMLDSA44, SuiteFalcon512, SuiteHybridEd25519MLDSA44:
		return true
	default:
		return false
	}
}
