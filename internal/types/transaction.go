package types

// TxKind tags the ChainTransaction union variant. Union variants are
// tagged by a stable small integer in the canonical encoding.
type TxKind uint8

const (
	TxSystem TxKind = iota
	TxSettlement
	TxDeployContract
	TxCallContract
	TxSemantic
	TxIdentityRotate
)

// CallServicePayload dispatches a call to an active on-chain service.
type CallServicePayload struct {
	ServiceId string
	Method    string
	Params    []byte
}

// DeployContractPayload deploys WASM bytecode; the contract address is
// derived as H(sender_pubkey || code).
type DeployContractPayload struct {
	Code []byte
}

// CallContractPayload invokes a deployed contract.
type CallContractPayload struct {
	Address  [32]byte
	Input    []byte
	GasLimit uint64
}

// SemanticPayload is an aggregate-attested result with no single
// signer; the tx is valid iff H(Result) == IntentHash.
type SemanticPayload struct {
	Result    []byte
	IntentHash [32]byte
}

// SettlementPayload covers balance/fee settlement. Details are out of
// scope for this kernel; the shape is kept opaque.
type SettlementPayload struct {
	Raw []byte
}

// ChainTransaction is the tagged union of every transaction variant
// the execution machine understands.
type ChainTransaction struct {
	Kind      TxKind
	Header    SignHeader
	SigProof  SignatureProof

	CallService     *CallServicePayload
	Settlement      *SettlementPayload
	DeployContract  *DeployContractPayload
	CallContract    *CallContractPayload
	Semantic        *SemanticPayload
	IdentityRotate  *RotateKeyPayload
}

// SignatureProof is the embedded public key, suite tag, and signature
// bytes attached to a signed transaction.
type SignatureProof struct {
	Suite     SignatureSuite
	PublicKey []byte
	Signature []byte
}
