package orchestration

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/commitment/hashscheme"
	"github.com/certen/kernel/internal/consensus"
	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/execution"
	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/mempool"
	"github.com/certen/kernel/internal/statetree"
	"github.com/certen/kernel/internal/types"
)

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

var _ execution.Store = (*fakeStore)(nil)

type capturingGossip struct {
	published [][]byte
}

func (g *capturingGossip) PublishBlock(raw []byte) {
	g.published = append(g.published, raw)
}

type capturingTipSink struct {
	tips []types.NewTipEvent
}

func (s *capturingTipSink) Publish(e types.NewTipEvent) {
	s.tips = append(s.tips, e)
}

// validatorKeyMaterial generates a consensus keypair and returns both
// the KeyMaterial the orchestrator signs with and the ValidatorEntry
// that makes it eligible to lead.
func validatorKeyMaterial(t *testing.T, account types.AccountId) (KeyMaterial, types.ValidatorEntry) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys := KeyMaterial{Suite: types.SuiteEd25519, PublicKey: pub, PrivateKey: priv}
	entry := types.ValidatorEntry{
		AccountId: account,
		Weight:    1,
		ConsensusKey: types.ActiveKeyRecord{
			Suite:         types.SuiteEd25519,
			PublicKeyHash: credential.PublicKeyHash(types.SuiteEd25519, pub),
		},
	}
	return keys, entry
}

// seedValidatorSet writes the validator set and block-timing state an
// orchestrator tick needs directly into the tree, mirroring the
// layout internal/consensus seeds in its own tests.
func seedValidatorSet(t *testing.T, tree *statetree.Tree, entries []types.ValidatorEntry) {
	t.Helper()
	var total uint64
	for _, e := range entries {
		total += e.Weight
	}
	sets := types.ValidatorSetsV1{Current: types.ValidatorSetV1{Validators: entries, TotalWeight: total}}
	raw, err := json.Marshal(sets)
	if err != nil {
		t.Fatalf("marshal validator sets: %v", err)
	}
	tree.Insert(types.ValidatorSetKey, raw)

	timing := types.BlockTimingParams{TargetBlockTime: 5 * time.Second, MaxBlockTime: 30 * time.Second}
	timingRaw, _ := json.Marshal(timing)
	tree.Insert(types.BlockTimingParamsKey, timingRaw)

	runtime := types.BlockTimingRuntime{EmaBlockTime: 5 * time.Second, LastTimestamp: time.Unix(1_000, 0)}
	runtimeRaw, _ := json.Marshal(runtime)
	tree.Insert(types.BlockTimingRuntimeKey, runtimeRaw)

	status := types.ChainStatus{Height: 0, LatestTimestamp: time.Unix(1_000, 0)}
	statusRaw, _ := json.Marshal(status)
	tree.Insert(types.StatusKey, statusRaw)
}

func newTestMachine(t *testing.T) (*execution.Machine, *fakeStore) {
	t.Helper()
	tree := statetree.New(hashscheme.New())
	reg := execution.NewRegistry()
	m := execution.NewMachine(tree, reg, "test-chain", types.AccountId{}, false, nil, nil, nil)
	store := newFakeStore()
	if err := m.Bootstrap(context.Background(), store, nil, types.BlockTimingParams{TargetBlockTime: 5 * time.Second}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return m, store
}

func bootstrapAccount(pub ed25519.PublicKey) types.AccountId {
	return types.AccountId(credential.PublicKeyHash(types.SuiteEd25519, pub))
}

// newPendingTransfer builds a self-authorizing (no credential on
// record yet) transaction for account at nonce, using the bootstrap
// exception in verifyStatefulAuthorization.
func newPendingTransfer(t *testing.T, nonce uint64) *types.ChainTransaction {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	account := bootstrapAccount(pub)
	tx := &types.ChainTransaction{
		Kind:   types.TxSettlement,
		Header: types.SignHeader{AccountId: account, Nonce: nonce, ChainId: "test-chain", TxVersion: 1},
	}
	sig, err := credential.Sign(types.SuiteEd25519, priv, codec.CanonicalSignBytes(tx))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx.SigProof = types.SignatureProof{Suite: types.SuiteEd25519, PublicKey: pub, Signature: sig}
	return tx
}

func TestTickSoloLeaderProducesAndAdvancesTip(t *testing.T) {
	m, store := newTestMachine(t)
	var ourAccount types.AccountId
	ourAccount[0] = 0x01
	keys, entry := validatorKeyMaterial(t, ourAccount)
	seedValidatorSet(t, m.Tree(), []types.ValidatorEntry{entry})

	engine := consensus.New(nil)
	pool := mempool.New()
	gossip := &capturingGossip{}
	tips := &capturingTipSink{}

	o, err := New(engine, m, pool, store, ourAccount, keys, gossip, tips, kernlog.Nop, Config{GasTarget: 1000, SelectionSize: 10})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	if err := o.Tick(context.Background(), "timer", 0); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := m.Status().Height; got != 1 {
		t.Fatalf("expected height 1, got %d", got)
	}
	if len(gossip.published) != 1 {
		t.Fatalf("expected one block published, got %d", len(gossip.published))
	}
	if len(tips.tips) != 1 {
		t.Fatalf("expected one NewTip event, got %d", len(tips.tips))
	}
	if tips.tips[0].Height != 1 {
		t.Fatalf("expected tip event height 1, got %d", tips.tips[0].Height)
	}

	raw, err := store.GetBlock(1)
	if err != nil {
		t.Fatalf("expected block 1 to be persisted: %v", err)
	}
	block, err := codec.DecodeBlock(raw)
	if err != nil {
		t.Fatalf("decode persisted block: %v", err)
	}
	if block.Header.ProducerAccountId != ourAccount {
		t.Fatalf("expected our account as producer, got %v", block.Header.ProducerAccountId)
	}
	genesis, err := codec.DecodeBlock(store.blocks[0])
	if err != nil {
		t.Fatalf("decode genesis block: %v", err)
	}
	if block.Header.ParentHash != codec.BlockHash(&genesis.Header) {
		t.Fatalf("expected block 1's parent hash to be the genesis block hash")
	}

	ok, err := credential.Verify(keys.Suite, keys.PublicKey, codec.HeaderSigningPayload(&block.Header), block.Header.Signature)
	if err != nil || !ok {
		t.Fatalf("expected header signature to verify, ok=%v err=%v", ok, err)
	}
}

func TestTickIncludesPendingMempoolTransactionAndRemovesIt(t *testing.T) {
	m, store := newTestMachine(t)
	var ourAccount types.AccountId
	ourAccount[0] = 0x01
	keys, entry := validatorKeyMaterial(t, ourAccount)
	seedValidatorSet(t, m.Tree(), []types.ValidatorEntry{entry})

	engine := consensus.New(nil)
	pool := mempool.New()

	tx := newPendingTransfer(t, 0)
	hash := codec.CanonicalTxHash(tx)
	result := pool.Add(tx, hash, &tx.Header.AccountId, tx.Header.Nonce, m.CommittedNonce(tx.Header.AccountId))
	if result.Outcome != mempool.AddReady {
		t.Fatalf("expected transaction to be admitted ready, got %+v", result)
	}
	if pool.Len() != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", pool.Len())
	}

	o, err := New(engine, m, pool, store, ourAccount, keys, nil, nil, nil, Config{GasTarget: 1000, SelectionSize: 10})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	if err := o.Tick(context.Background(), "timer", 0); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if pool.Len() != 0 {
		t.Fatalf("expected mempool drained after inclusion, got %d pending", pool.Len())
	}

	raw, err := store.GetBlock(1)
	if err != nil {
		t.Fatalf("expected block 1 persisted: %v", err)
	}
	block, err := codec.DecodeBlock(raw)
	if err != nil {
		t.Fatalf("decode block: %v", err)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("expected 1 included transaction, got %d", len(block.Transactions))
	}
}

func TestTickNonLeaderWaitsWithoutMutatingState(t *testing.T) {
	m, store := newTestMachine(t)
	var ourAccount, otherAccount types.AccountId
	ourAccount[0] = 0x02
	otherAccount[0] = 0x01
	keys, ourEntry := validatorKeyMaterial(t, ourAccount)
	_, otherEntry := validatorKeyMaterial(t, otherAccount)
	// otherEntry sorts first by round-robin index 0 at height 1/view 0,
	// so ourAccount is never the leader in this two-validator set.
	seedValidatorSet(t, m.Tree(), []types.ValidatorEntry{otherEntry, ourEntry})

	engine := consensus.New(nil)
	pool := mempool.New()

	o, err := New(engine, m, pool, store, ourAccount, keys, nil, nil, nil, Config{GasTarget: 1000, SelectionSize: 10})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	if err := o.Tick(context.Background(), "timer", 3); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if got := m.Status().Height; got != 0 {
		t.Fatalf("expected height to remain 0 while waiting, got %d", got)
	}
	if _, err := store.GetBlock(1); err == nil {
		t.Fatalf("expected no block persisted at height 1")
	}
}

func TestTickStallsWithNoValidatorSet(t *testing.T) {
	m, store := newTestMachine(t)
	var ourAccount types.AccountId
	ourAccount[0] = 0x01
	keys := KeyMaterial{Suite: types.SuiteEd25519, PublicKey: []byte("pub"), PrivateKey: []byte("priv")}

	engine := consensus.New(nil)
	pool := mempool.New()

	o, err := New(engine, m, pool, store, ourAccount, keys, nil, nil, nil, Config{GasTarget: 1000, SelectionSize: 10})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	if err := o.Tick(context.Background(), "timer", 5); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if got := m.Status().Height; got != 0 {
		t.Fatalf("expected height to remain 0 on stall, got %d", got)
	}
}

func TestResolveParentRefAdvancesAcrossTicks(t *testing.T) {
	m, store := newTestMachine(t)
	var ourAccount types.AccountId
	ourAccount[0] = 0x01
	keys, entry := validatorKeyMaterial(t, ourAccount)
	seedValidatorSet(t, m.Tree(), []types.ValidatorEntry{entry})

	engine := consensus.New(nil)
	pool := mempool.New()

	o, err := New(engine, m, pool, store, ourAccount, keys, nil, nil, nil, Config{GasTarget: 1000, SelectionSize: 10})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	if err := o.Tick(context.Background(), "timer", 0); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	first := o.resolveParentRef()
	if first.Height != 1 {
		t.Fatalf("expected parent ref height 1 after first tick, got %d", first.Height)
	}

	if err := o.Tick(context.Background(), "timer", 0); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	second := o.resolveParentRef()
	if second.Height != 2 {
		t.Fatalf("expected parent ref height 2 after second tick, got %d", second.Height)
	}
	if second.BlockHash == first.BlockHash {
		t.Fatalf("expected distinct block hashes across heights")
	}
}
