package execution

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

var contractCodePrefix = []byte("contract_code::")

func contractCodeKey(address [32]byte) []byte {
	return append(append([]byte{}, contractCodePrefix...), address[:]...)
}

// DeriveContractAddress computes H(sender_pubkey || code) using the
// Keccak-256 hash go-ethereum's account model uses, rather than the
// plain SHA-256 this kernel's other content addressing relies on.
func DeriveContractAddress(senderPubkey, code []byte) [32]byte {
	return crypto.Keccak256Hash(senderPubkey, code)
}

// WorkloadClient is the boundary a concrete WASM engine driver
// satisfies to execute deployed contract bytecode against an
// overlaid state view. No concrete engine ships with this kernel;
// NullWorkloadClient is the default.
type WorkloadClient interface {
	Call(view txmodel.View, address [32]byte, code, input []byte, gasLimit uint64) (output []byte, gasUsed uint64, err error)
}

// NullWorkloadClient accepts every call, performs no state mutation
// beyond what the caller already applied, and reports the code's
// length, capped at gasLimit, as gas used.
type NullWorkloadClient struct{}

func (NullWorkloadClient) Call(_ txmodel.View, _ [32]byte, code, _ []byte, gasLimit uint64) ([]byte, uint64, error) {
	used := uint64(len(code))
	if used > gasLimit {
		used = gasLimit
	}
	return nil, used, nil
}

func (m *Machine) executeDeployContract(view txmodel.View, tx *types.ChainTransaction) (uint64, error) {
	payload := tx.DeployContract
	if payload == nil {
		return 0, kernerr.New(kernerr.KindInvalid, "missing deploy_contract payload")
	}
	address := DeriveContractAddress(tx.SigProof.PublicKey, payload.Code)
	view.Insert(contractCodeKey(address), payload.Code)
	return uint64(len(payload.Code)) + 1, nil
}

func (m *Machine) executeCallContract(view txmodel.View, tx *types.ChainTransaction) (uint64, error) {
	payload := tx.CallContract
	if payload == nil {
		return 0, kernerr.New(kernerr.KindInvalid, "missing call_contract payload")
	}
	code, ok := view.Get(contractCodeKey(payload.Address))
	if !ok {
		return 0, kernerr.New(kernerr.KindUnsupported, "contract not deployed at this address")
	}
	_, gasUsed, err := m.workload.Call(view, payload.Address, code, payload.Input, payload.GasLimit)
	if err != nil {
		return 0, err
	}
	return gasUsed, nil
}
