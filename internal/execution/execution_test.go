package execution

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/commitment/hashscheme"
	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/statetree"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

type fakeService struct {
	id    string
	caps  types.CapabilitySet
	calls []string

	validateErr error
	writeErr    error
	endBlockErr error
}

func (f *fakeService) Id() string                      { return f.id }
func (f *fakeService) AbiVersion() uint32               { return 1 }
func (f *fakeService) StateSchema() string              { return "v1" }
func (f *fakeService) Capabilities() types.CapabilitySet { return f.caps }

func (f *fakeService) Descriptor() types.ActiveServiceMeta {
	return types.ActiveServiceMeta{Id: f.id, AbiVersion: 1, StateSchema: "v1", Caps: f.caps}
}

func (f *fakeService) HandleServiceCall(view txmodel.View, method string, params []byte, _ *txmodel.CallContext) error {
	f.calls = append(f.calls, "call:"+method)
	view.Insert([]byte("handled::"+f.id), params)
	return nil
}

func (f *fakeService) ValidateAnte(_ txmodel.View, _ *types.ChainTransaction, _ *txmodel.CallContext) error {
	f.calls = append(f.calls, "validate")
	return f.validateErr
}

func (f *fakeService) WriteAnte(view txmodel.View, _ *types.ChainTransaction, _ *txmodel.CallContext) error {
	f.calls = append(f.calls, "write")
	if f.writeErr == nil {
		view.Insert([]byte("write_ante::"+f.id), []byte("1"))
	}
	return f.writeErr
}

func (f *fakeService) OnEndBlock(_ txmodel.View, _ uint64) error {
	f.calls = append(f.calls, "end_block")
	return f.endBlockErr
}

var _ txmodel.ServiceHandler = (*fakeService)(nil)

type fakeStore struct {
	blocks map[uint64][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{blocks: make(map[uint64][]byte)} }

func (s *fakeStore) PutNodes(context.Context, statetree.Delta) error { return nil }

func (s *fakeStore) PutBlock(height uint64, raw []byte) error {
	s.blocks[height] = raw
	return nil
}

func (s *fakeStore) GetBlock(height uint64) ([]byte, error) {
	raw, ok := s.blocks[height]
	if !ok {
		return nil, errors.New("block not found")
	}
	return raw, nil
}

var _ Store = (*fakeStore)(nil)

func newTestMachine(svc *fakeService) (*Machine, *statetree.Tree) {
	tree := statetree.New(hashscheme.New())
	reg := NewRegistry(svc)
	m := NewMachine(tree, reg, "test-chain", types.AccountId{}, false, nil, nil, nil)
	return m, tree
}

func bootstrapMachine(t *testing.T, m *Machine, svc *fakeService, methods map[string]types.MethodPermission) *fakeStore {
	t.Helper()
	store := newFakeStore()
	policies := map[string]ServicePolicy{svc.id: {Methods: methods}}
	if err := m.Bootstrap(context.Background(), store, policies, types.BlockTimingParams{TargetBlockTime: 5}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return store
}

func bootstrapAccount(pub ed25519.PublicKey) types.AccountId {
	return types.AccountId(credential.PublicKeyHash(types.SuiteEd25519, pub))
}

func newBootstrapCallServiceTx(t *testing.T, nonce uint64, serviceID, method string, params []byte) *types.ChainTransaction {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	account := bootstrapAccount(pub)
	tx := &types.ChainTransaction{
		Kind:        types.TxSystem,
		Header:      types.SignHeader{AccountId: account, Nonce: nonce, ChainId: "test", TxVersion: 1},
		CallService: &types.CallServicePayload{ServiceId: serviceID, Method: method, Params: params},
	}
	sig, err := credential.Sign(types.SuiteEd25519, priv, codec.CanonicalSignBytes(tx))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx.SigProof = types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: pub, Signature: sig}
	return tx
}

func TestBootstrapInitializesGenesis(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: types.CapTxDecorator | types.CapOnEndBlock}
	m, tree := newTestMachine(svc)
	store := bootstrapMachine(t, m, svc, map[string]types.MethodPermission{"submit": types.PermissionUser})

	if _, ok := tree.Get(types.StatusKey); !ok {
		t.Fatalf("expected status key to be set")
	}
	if _, ok := tree.Get(types.ActiveServiceKey("oracle")); !ok {
		t.Fatalf("expected oracle service to be registered active")
	}
	if _, ok := tree.Get(types.BlockTimingParamsKey); !ok {
		t.Fatalf("expected default block timing params")
	}
	if _, ok := store.blocks[0]; !ok {
		t.Fatalf("expected genesis block persisted at height 0")
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	m, _ := newTestMachine(svc)
	bootstrapMachine(t, m, svc, nil)

	if err := m.Bootstrap(context.Background(), newFakeStore(), nil, types.BlockTimingParams{}); err != nil {
		t.Fatalf("second bootstrap call should load existing status: %v", err)
	}
	if m.Status().Height != 0 {
		t.Fatalf("expected loaded status height 0, got %d", m.Status().Height)
	}
}

func TestProcessTransactionCallServiceHappyPath(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: types.CapTxDecorator}
	m, tree := newTestMachine(svc)
	bootstrapMachine(t, m, svc, map[string]types.MethodPermission{"submit": types.PermissionUser})

	tx := newBootstrapCallServiceTx(t, 0, "oracle", "submit", []byte("payload"))

	overlay := NewOverlay(tree)
	gas, err := m.ProcessTransaction(overlay, tx, 1)
	if err != nil {
		t.Fatalf("process transaction: %v", err)
	}
	overlay.Flush()

	if gas == 0 {
		t.Fatalf("expected nonzero gas used")
	}
	wantCalls := []string{"validate", "write", "call:submit"}
	if len(svc.calls) != len(wantCalls) {
		t.Fatalf("expected calls %v, got %v", wantCalls, svc.calls)
	}
	for i, c := range wantCalls {
		if svc.calls[i] != c {
			t.Fatalf("expected call %d to be %q, got %q", i, c, svc.calls[i])
		}
	}
	if got := readNonce(tree, tx.Header.AccountId); got != 1 {
		t.Fatalf("expected nonce bumped to 1, got %d", got)
	}
}

func TestProcessTransactionNonceMismatchRejectedWithoutSideEffects(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: types.CapTxDecorator}
	m, tree := newTestMachine(svc)
	bootstrapMachine(t, m, svc, map[string]types.MethodPermission{"submit": types.PermissionUser})

	tx := newBootstrapCallServiceTx(t, 5, "oracle", "submit", []byte("payload"))

	overlay := NewOverlay(tree)
	_, err := m.ProcessTransaction(overlay, tx, 1)
	if err == nil {
		t.Fatalf("expected nonce mismatch to be rejected")
	}
	overlay.Discard()

	if len(svc.calls) != 0 {
		t.Fatalf("expected decorators never invoked, got %v", svc.calls)
	}
	if _, ok := tree.Get([]byte("write_ante::oracle")); ok {
		t.Fatalf("expected no state mutation to have leaked into the tree")
	}
}

func TestProcessTransactionBadSignatureRejected(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	m, tree := newTestMachine(svc)
	bootstrapMachine(t, m, svc, map[string]types.MethodPermission{"submit": types.PermissionUser})

	tx := newBootstrapCallServiceTx(t, 0, "oracle", "submit", []byte("payload"))
	tx.SigProof.Signature[0] ^= 0xFF

	_, err := m.ProcessTransaction(NewOverlay(tree), tx, 1)
	if err == nil {
		t.Fatalf("expected signature verification failure")
	}
}

func TestProcessTransactionGovernanceMethodRejectsNonGovernanceCaller(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	tree := statetree.New(hashscheme.New())
	reg := NewRegistry(svc)
	governance := types.AccountId{0xAA}
	m := NewMachine(tree, reg, "test-chain", governance, false, nil, nil, nil)
	bootstrapMachine(t, m, svc, map[string]types.MethodPermission{"settle": types.PermissionGovernance})

	tx := newBootstrapCallServiceTx(t, 0, "oracle", "settle", nil)
	_, err := m.ProcessTransaction(NewOverlay(tree), tx, 1)
	if err == nil {
		t.Fatalf("expected governance-only method to reject a non-governance caller")
	}
}

func TestProcessBlockStopsAdmissionAtGasTarget(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	m, _ := newTestMachine(svc)
	bootstrapMachine(t, m, svc, map[string]types.MethodPermission{"submit": types.PermissionUser})

	txs := []*types.ChainTransaction{
		newBootstrapCallServiceTx(t, 0, "oracle", "submit", []byte("aaaaaaaaaa")),
		newBootstrapCallServiceTx(t, 0, "oracle", "submit", []byte("bbbbbbbbbb")),
	}

	result := m.ProcessBlock(context.Background(), txs, 1, 5)
	if len(result.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(result.Outcomes))
	}
	if result.Outcomes[0].Err != nil {
		t.Fatalf("expected first tx to succeed, got %v", result.Outcomes[0].Err)
	}
	if result.Outcomes[1].Err == nil {
		t.Fatalf("expected second tx to be rejected for exceeding the gas target")
	}
}

func TestProcessBlockInvokesEndBlockInCapableServices(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: types.CapOnEndBlock}
	m, _ := newTestMachine(svc)
	bootstrapMachine(t, m, svc, nil)

	m.ProcessBlock(context.Background(), nil, 1, 0)

	found := false
	for _, c := range svc.calls {
		if c == "end_block" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected on_end_block to be invoked, got %v", svc.calls)
	}
}

func TestDeriveContractAddressIsDeterministicAndCodeSensitive(t *testing.T) {
	pub := []byte("sender-pubkey")
	a1 := DeriveContractAddress(pub, []byte("code-v1"))
	a2 := DeriveContractAddress(pub, []byte("code-v1"))
	if a1 != a2 {
		t.Fatalf("expected deterministic address derivation")
	}
	a3 := DeriveContractAddress(pub, []byte("code-v2"))
	if a1 == a3 {
		t.Fatalf("expected different code to derive a different address")
	}
}

func TestDeployThenCallContract(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	m, tree := newTestMachine(svc)

	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	deployTx := &types.ChainTransaction{
		Kind:           types.TxDeployContract,
		SigProof:       types.SignatureProof{PublicKey: pub},
		DeployContract: &types.DeployContractPayload{Code: []byte("wasm-bytes")},
	}
	gas, err := m.applyPayload(tree, deployTx, &txmodel.CallContext{})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if gas == 0 {
		t.Fatalf("expected nonzero deploy gas")
	}

	address := DeriveContractAddress(pub, []byte("wasm-bytes"))
	callTx := &types.ChainTransaction{
		Kind:         types.TxCallContract,
		CallContract: &types.CallContractPayload{Address: address, Input: []byte("ping"), GasLimit: 100},
	}
	_, err = m.applyPayload(tree, callTx, &txmodel.CallContext{})
	if err != nil {
		t.Fatalf("call contract: %v", err)
	}

	unknownTx := &types.ChainTransaction{
		Kind:         types.TxCallContract,
		CallContract: &types.CallContractPayload{Address: [32]byte{0xFF}},
	}
	if _, err := m.applyPayload(tree, unknownTx, &txmodel.CallContext{}); err == nil {
		t.Fatalf("expected call to an undeployed address to fail")
	}
}

func TestExecuteSemantic(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	m, tree := newTestMachine(svc)

	result := []byte("attested-result")
	matching := &types.ChainTransaction{
		Kind: types.TxSemantic,
		Semantic: &types.SemanticPayload{
			Result:     result,
			IntentHash: sha256.Sum256(result),
		},
	}
	if _, err := m.applyPayload(tree, matching, &txmodel.CallContext{}); err != nil {
		t.Fatalf("expected matching intent hash to succeed: %v", err)
	}

	mismatching := &types.ChainTransaction{
		Kind:     types.TxSemantic,
		Semantic: &types.SemanticPayload{Result: result, IntentHash: [32]byte{0x01}},
	}
	if _, err := m.applyPayload(tree, mismatching, &txmodel.CallContext{}); err == nil {
		t.Fatalf("expected mismatched intent hash to fail")
	}
}

func TestVerifyStatefulAuthorizationSessionDelegation(t *testing.T) {
	svc := &fakeService{id: "oracle", caps: 0}
	m, tree := newTestMachine(svc)

	masterPub, masterPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate master key: %v", err)
	}
	account := bootstrapAccount(masterPub)
	tree.Insert(types.AccountPubkeyKey(account), masterPub)

	store := credential.NewStore(tree)
	slot := types.CredentialSlot{Active: &types.Credential{
		Suite:         types.SuiteEd25519,
		PublicKeyHash: credential.PublicKeyHash(types.SuiteEd25519, masterPub),
	}}
	if err := store.Save(account, slot); err != nil {
		t.Fatalf("save credential slot: %v", err)
	}

	sessionPub, sessionPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate session key: %v", err)
	}
	auth := &types.SessionAuthorization{SessionKeyPub: sessionPub, ExpiryHeight: 100}
	signedBytes, err := sessionAuthSignedBytes(auth)
	if err != nil {
		t.Fatalf("canonical session bytes: %v", err)
	}
	auth.SignerSig, err = credential.Sign(types.SuiteEd25519, masterPriv, signedBytes)
	if err != nil {
		t.Fatalf("sign delegation: %v", err)
	}

	tx := &types.ChainTransaction{
		Kind:   types.TxSettlement,
		Header: types.SignHeader{AccountId: account, Nonce: 0, SessionAuth: auth},
	}
	sig, err := credential.Sign(types.SuiteEd25519, sessionPriv, codec.CanonicalSignBytes(tx))
	if err != nil {
		t.Fatalf("sign tx with session key: %v", err)
	}
	tx.SigProof = types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: sessionPub, Signature: sig}

	if err := m.verifyStatefulAuthorization(tree, tx, 50); err != nil {
		t.Fatalf("expected session delegation to authorize, got %v", err)
	}
	if err := m.verifyStatefulAuthorization(tree, tx, 200); err == nil {
		t.Fatalf("expected expired session authorization to be rejected")
	} else if kerr, ok := err.(*kernerr.Error); !ok || kerr.Kind != kernerr.KindExpiredKey {
		t.Fatalf("expected KindExpiredKey, got %v", err)
	}
}
