package execution

import (
	"crypto/sha256"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/policy"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

var semanticAttestationPrefix = []byte("semantic_attestation::")

// applyPayload dispatches phase-3 payload execution by transaction
// kind, returning the gas consumed.
func (m *Machine) applyPayload(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) (uint64, error) {
	switch tx.Kind {
	case types.TxSystem:
		return m.executeCallService(view, tx, ctx)
	case types.TxDeployContract:
		return m.executeDeployContract(view, tx)
	case types.TxCallContract:
		return m.executeCallContract(view, tx)
	case types.TxSettlement:
		// Delegated to the settlement sub-model; out of scope here.
		return 0, nil
	case types.TxSemantic:
		return m.executeSemantic(view, tx)
	case types.TxIdentityRotate:
		return m.executeIdentityRotate(view, tx, ctx)
	default:
		return 0, kernerr.New(kernerr.KindInvalid, "unknown transaction kind")
	}
}

func (m *Machine) executeIdentityRotate(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) (uint64, error) {
	if m.identity == nil {
		return 0, kernerr.New(kernerr.KindUnsupported, "identity hub is not configured")
	}
	payload := tx.IdentityRotate
	if payload == nil {
		return 0, kernerr.New(kernerr.KindInvalid, "missing identity_rotate payload")
	}
	if err := m.identity.Rotate(view, ctx.CallerAccount, payload.Proof, ctx.BlockHeight); err != nil {
		return 0, err
	}
	return uint64(len(payload.Proof.NewPublicKey)) + 1, nil
}

func (m *Machine) executeCallService(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) (uint64, error) {
	payload := tx.CallService
	if payload == nil {
		return 0, kernerr.New(kernerr.KindInvalid, "missing call_service payload")
	}
	if err := policy.CheckServiceCall(view, payload.ServiceId, payload.Method, ctx.IsInternal); err != nil {
		return 0, err
	}
	meta, err := m.loadServiceMeta(view, payload.ServiceId)
	if err != nil {
		return 0, err
	}
	if perm := meta.Methods[payload.Method]; perm == types.PermissionGovernance && ctx.CallerAccount != ctx.GovernanceAccount {
		return 0, kernerr.New(kernerr.KindPermission, "method requires the configured governance account")
	}
	handler, ok := m.services.Lookup(payload.ServiceId)
	if !ok {
		return 0, kernerr.New(kernerr.KindUnsupported, "service '"+payload.ServiceId+"' has no registered handler")
	}
	namespaced := txmodel.NewNamespacedView(view, payload.ServiceId, meta.AllowedSystemPrefixes)
	if err := handler.HandleServiceCall(namespaced, payload.Method, payload.Params, ctx); err != nil {
		return 0, err
	}
	return uint64(len(payload.Params)) + 1, nil
}

func (m *Machine) executeSemantic(view txmodel.View, tx *types.ChainTransaction) (uint64, error) {
	payload := tx.Semantic
	if payload == nil {
		return 0, kernerr.New(kernerr.KindInvalid, "missing semantic payload")
	}
	if sha256.Sum256(payload.Result) != payload.IntentHash {
		return 0, kernerr.New(kernerr.KindInvalid, "semantic result does not match its intent hash")
	}
	key := append(append([]byte{}, semanticAttestationPrefix...), payload.IntentHash[:]...)
	view.Insert(key, payload.Result)
	return uint64(len(payload.Result)) + 1, nil
}
