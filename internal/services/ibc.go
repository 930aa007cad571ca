package services

import (
	"encoding/json"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// RegisterVerifierParams registers an external chain's light-client
// verifier artifact under a client type tag.
type RegisterVerifierParams struct {
	ClientType string `json:"client_type"`
	ArtifactSHA256 [32]byte `json:"artifact_sha256"`
}

// SubmitHeaderParams submits a header claim for an external chain,
// to be checked against a previously registered verifier.
type SubmitHeaderParams struct {
	ChainID   string `json:"chain_id"`
	StateRoot [32]byte `json:"state_root"`
	Header    []byte `json:"header"`
}

// VerifyStateParams asks the service to materialize an inclusion
// claim against a previously submitted, trusted state root.
type VerifyStateParams struct {
	ChainID   string `json:"chain_id"`
	StateRoot [32]byte `json:"state_root"`
	Path      []byte `json:"path"`
	Value     []byte `json:"value"`
}

const (
	ibcVerifierPrefix  = "verifier::"
	ibcHeaderPrefix    = "header::"
	ibcMaterialPrefix  = "materialized::"
)

// IBCService is the kernel's external-chain light-client dispatch
// stub: it registers a verifier's artifact hash under a client type,
// records submitted headers against it, and materializes state claims
// proved against an already-trusted header. It never performs the
// actual light-client cryptography — per spec.md §1 the IBC light
// client contract is a service-dispatch stub, not a concrete
// implementation.
//
// Grounded on crates/services/src/ibc/core/registry.rs's
// register_verifier@v1 / submit_header@v1 / verify_state@v1 dispatch
// shape, with WASM verifier resolution and actual proof verification
// left as the out-of-scope collaborator spec.md names.
type IBCService struct{}

// NewIBCService constructs an IBCService.
func NewIBCService() *IBCService { return &IBCService{} }

func (s *IBCService) Id() string           { return "ibc" }
func (s *IBCService) AbiVersion() uint32   { return 1 }
func (s *IBCService) StateSchema() string  { return "v1" }
func (s *IBCService) Capabilities() types.CapabilitySet { return 0 }

func (s *IBCService) Descriptor() types.ActiveServiceMeta {
	return types.ActiveServiceMeta{
		Id:          s.Id(),
		AbiVersion:  s.AbiVersion(),
		StateSchema: s.StateSchema(),
		Caps:        s.Capabilities(),
		Methods: map[string]types.MethodPermission{
			"register_verifier@v1": types.PermissionGovernance,
			"submit_header@v1":      types.PermissionUser,
			"verify_state@v1":       types.PermissionUser,
		},
	}
}

func (s *IBCService) key(suffix string) []byte {
	return append(types.ServiceNamespacePrefix(s.Id()), suffix...)
}

func (s *IBCService) verifierKey(clientType string) []byte {
	return s.key(ibcVerifierPrefix + clientType)
}

func (s *IBCService) headerKey(chainID string, root [32]byte) []byte {
	return s.key(ibcHeaderPrefix + chainID + "::" + string(root[:]))
}

func (s *IBCService) materialKey(chainID string, path []byte) []byte {
	return s.key(ibcMaterialPrefix + chainID + "::" + string(path))
}

// HandleServiceCall dispatches register_verifier@v1, submit_header@v1
// and verify_state@v1.
func (s *IBCService) HandleServiceCall(view txmodel.View, method string, params []byte, ctx *txmodel.CallContext) error {
	switch method {
	case "register_verifier@v1":
		var p RegisterVerifierParams
		if err := json.Unmarshal(params, &p); err != nil {
			return kernerr.Wrap(kernerr.KindInvalid, "decode register_verifier params", err)
		}
		view.Insert(s.verifierKey(p.ClientType), p.ArtifactSHA256[:])
		return nil
	case "submit_header@v1":
		var p SubmitHeaderParams
		if err := json.Unmarshal(params, &p); err != nil {
			return kernerr.Wrap(kernerr.KindInvalid, "decode submit_header params", err)
		}
		if _, ok := view.Get(s.verifierKey(p.ChainID)); !ok {
			return kernerr.New(kernerr.KindUnsupported, "no verifier registered for chain "+p.ChainID)
		}
		view.Insert(s.headerKey(p.ChainID, p.StateRoot), p.Header)
		return nil
	case "verify_state@v1":
		var p VerifyStateParams
		if err := json.Unmarshal(params, &p); err != nil {
			return kernerr.Wrap(kernerr.KindInvalid, "decode verify_state params", err)
		}
		if _, ok := view.Get(s.headerKey(p.ChainID, p.StateRoot)); !ok {
			return kernerr.New(kernerr.KindInvalid, "untrusted or unknown state root")
		}
		view.Insert(s.materialKey(p.ChainID, p.Path), p.Value)
		return nil
	default:
		return kernerr.New(kernerr.KindUnsupported, "ibc: unknown method "+method)
	}
}

// ValidateAnte is a no-op: the ibc service does not decorate every
// transaction.
func (s *IBCService) ValidateAnte(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) error {
	return nil
}

// WriteAnte is a no-op for the same reason as ValidateAnte.
func (s *IBCService) WriteAnte(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) error {
	return nil
}

// OnEndBlock is a no-op: the ibc service has no periodic housekeeping.
func (s *IBCService) OnEndBlock(view txmodel.View, height uint64) error { return nil }

var _ txmodel.ServiceHandler = (*IBCService)(nil)
