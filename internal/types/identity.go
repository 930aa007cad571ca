package types

// RotationProof authorizes an account's credential rotation: the
// outgoing and incoming keys each sign the same rotation challenge,
// binding the handoff to a specific suite transition.
type RotationProof struct {
	OldPublicKey []byte
	OldSignature []byte
	NewPublicKey []byte
	NewSignature []byte
	TargetSuite  SignatureSuite
	L2Location   *string
}

// RotateKeyPayload carries a RotationProof as a transaction payload.
type RotateKeyPayload struct {
	Proof RotationProof
}
