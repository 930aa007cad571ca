// Package orchestration implements the single-threaded cooperative
// driver that turns consensus decisions into committed blocks: it
// snapshots the minimum state a tick needs, asks the consensus engine
// to decide, and on ProduceBlock pulls transactions from the mempool,
// hands them to the execution machine, signs the resulting header
// under the oracle-anchored protocol, and advances the tip.
//
// Grounded on crates/validator/src/standard/orchestration/consensus.rs:
// the lock-then-release snapshot pattern, parent_ref resolution, and
// the decide/select/process/sign/broadcast/advance sequence.
package orchestration

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/consensus"
	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/execution"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/mempool"
	"github.com/certen/kernel/internal/types"
)

// ParentRef identifies the state a new block extends.
type ParentRef struct {
	Height     uint64
	StateRoot  [32]byte
	BlockHash  [32]byte
}

// KeyMaterial is the local validator's consensus signing identity.
type KeyMaterial struct {
	Suite      types.SignatureSuite
	PublicKey  []byte
	PrivateKey []byte
}

// BlockGossip publishes a finalized, encoded block to the network.
type BlockGossip interface {
	PublishBlock(raw []byte)
}

// TipSink receives NewTip notifications as the committed height
// advances.
type TipSink interface {
	Publish(types.NewTipEvent)
}

// nopTipSink discards NewTip events.
type nopTipSink struct{}

func (nopTipSink) Publish(types.NewTipEvent) {}

// nopGossip discards outbound blocks, used by tests and single-node
// operation.
type nopGossip struct{}

func (nopGossip) PublishBlock([]byte) {}

// Orchestrator drives consensus ticks against a single execution
// machine, mempool, and consensus engine. Not safe for concurrent
// Tick calls: the caller's tick source (timer, ingestion kick, block
// arrival) must serialize them, matching the single-threaded
// cooperative driver this is grounded on.
type Orchestrator struct {
	mu sync.Mutex

	engine  *consensus.Engine
	machine *execution.Machine
	pool    *mempool.Mempool
	store   execution.Store
	gossip  BlockGossip
	tips    TipSink
	logger  kernlog.Logger

	ourAccount types.AccountId
	keys       KeyMaterial

	gasTarget     uint64
	selectionSize int

	lastCommitted *types.Block
	oracleCounter uint64
}

// Config bundles the fixed parameters an Orchestrator is constructed
// with.
type Config struct {
	GasTarget     uint64
	SelectionSize int
}

// New wires an Orchestrator around an already-bootstrapped machine. If
// the store already holds a block at machine.Status().Height, it is
// loaded as the starting tip; otherwise genesis (height 0) is used.
func New(engine *consensus.Engine, machine *execution.Machine, pool *mempool.Mempool, store execution.Store, ourAccount types.AccountId, keys KeyMaterial, gossip BlockGossip, tips TipSink, logger kernlog.Logger, cfg Config) (*Orchestrator, error) {
	if gossip == nil {
		gossip = nopGossip{}
	}
	if tips == nil {
		tips = nopTipSink{}
	}
	if logger == nil {
		logger = kernlog.Nop
	}
	if cfg.SelectionSize <= 0 {
		cfg.SelectionSize = 20000
	}

	o := &Orchestrator{
		engine:        engine,
		machine:       machine,
		pool:          pool,
		store:         store,
		gossip:        gossip,
		tips:          tips,
		logger:        logger,
		ourAccount:    ourAccount,
		keys:          keys,
		gasTarget:     cfg.GasTarget,
		selectionSize: cfg.SelectionSize,
	}

	height := machine.Status().Height
	raw, err := store.GetBlock(height)
	if err == nil && raw != nil {
		block, decErr := codec.DecodeBlock(raw)
		if decErr == nil {
			o.lastCommitted = block
			o.oracleCounter = block.Header.OracleCounter
		}
	}
	return o, nil
}

// resolveParentRef derives the ref of the block a new one would
// extend: the last committed block, or the genesis root if none has
// been committed yet.
func (o *Orchestrator) resolveParentRef() ParentRef {
	if o.lastCommitted == nil {
		root, _ := o.machine.Tree().RootCommitment()
		var rootArr [32]byte
		copy(rootArr[:], root)
		return ParentRef{Height: 0, StateRoot: rootArr}
	}
	h := &o.lastCommitted.Header
	return ParentRef{
		Height:    h.Height,
		StateRoot: h.StateRoot,
		BlockHash: codec.BlockHash(h),
	}
}

// Tick drives one consensus decision and, if it resolves to
// ProduceBlock, a full block production and commit cycle. cause is
// advisory, logged only. knownPeers gates whether we may stall rather
// than wait when we are not the leader.
func (o *Orchestrator) Tick(ctx context.Context, cause string, knownPeers int) error {
	// Step 1: snapshot immutable handles under the lock; nothing below
	// this point re-enters the lock, so no await happens while held.
	o.mu.Lock()
	parentRef := o.resolveParentRef()
	producingHeight := parentRef.Height + 1
	o.mu.Unlock()

	o.logger.Printf("orchestration tick: cause=%s parent_height=%d producing_height=%d", cause, parentRef.Height, producingHeight)

	// Step 2/3: decide against the parent's committed view. The
	// machine's tree always reflects the last committed height, since
	// ProcessBlock/CommitBlock only ever advance it.
	decision := o.engine.Decide(ctx, o.machine.Tree(), o.ourAccount, producingHeight, 0, knownPeers)

	if decision.Stall {
		return nil
	}
	if decision.WaitForBlock {
		return nil
	}
	if !decision.Produce {
		return nil
	}

	return o.produceBlock(ctx, parentRef, producingHeight, decision)
}

// produceBlock runs step 4 of the tick: select, verify, execute, sign,
// broadcast, advance.
func (o *Orchestrator) produceBlock(ctx context.Context, parentRef ParentRef, height uint64, decision consensus.Decision) error {
	candidates := o.selectTransactions()
	result := o.machine.ProcessBlock(ctx, candidates, height, o.gasTarget)

	included := make([]types.ChainTransaction, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			o.pool.RemoveByHash(codec.CanonicalTxHash(candidates[outcome.Index]))
			continue
		}
		tx := *candidates[outcome.Index]
		included = append(included, tx)
		o.pool.RemoveByHash(codec.CanonicalTxHash(candidates[outcome.Index]))
	}

	root, err := o.machine.CommitBlock(ctx, o.store, height, len(included))
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "commit block failed", err)
	}

	effectiveSet := o.loadEffectiveValidatorSet(height)

	header := types.BlockHeader{
		Height:            height,
		View:              decision.View,
		ParentHash:        parentRef.BlockHash,
		ParentStateRoot:   parentRef.StateRoot,
		TransactionsRoot:  transactionsRoot(included),
		Timestamp:         time.Unix(decision.ExpectedTimestamp, 0),
		GasUsed:           result.GasUsed,
		ValidatorSet:      effectiveSet,
		ProducerAccountId: o.ourAccount,
		ProducerKeySuite:  o.keys.Suite,
		ProducerPubkeyHash: credential.PublicKeyHash(o.keys.Suite, o.keys.PublicKey),
		ProducerPubkey:    o.keys.PublicKey,
	}
	copy(header.StateRoot[:], root)

	o.oracleCounter++
	header.OracleCounter = o.oracleCounter

	payload := codec.HeaderSigningPayload(&header)
	sig, err := credential.Sign(o.keys.Suite, o.keys.PrivateKey, payload)
	if err != nil {
		return kernerr.Wrap(kernerr.KindConsensus, "sign block header failed", err)
	}
	header.Signature = sig

	block := types.Block{Header: header, Transactions: included}

	// Self-verify before broadcasting: this both sanity-checks the
	// header we just built and seeds the engine's divergence/
	// monotonicity bookkeeping so a gossip loopback of our own block
	// is not mistaken for equivocation.
	if verifyErr := o.engine.VerifyBlockProposal(o.machine.Tree(), &header, consensus.PeerID(o.ourAccount.String())); verifyErr != nil {
		return kernerr.Wrap(kernerr.KindConsensus, "self-produced header failed verification", verifyErr)
	}

	raw, err := codec.EncodeBlock(&block)
	if err != nil {
		return err
	}
	if err := o.store.PutBlock(height, raw); err != nil {
		return kernerr.Wrap(kernerr.KindState, "persist finalized block", err)
	}

	o.gossip.PublishBlock(raw)

	o.mu.Lock()
	o.lastCommitted = &block
	o.mu.Unlock()

	o.engine.Reset(height)
	o.tips.Publish(types.NewTipEvent{
		Height:    height,
		StateRoot: header.StateRoot,
		BlockHash: codec.BlockHash(&header),
		Timestamp: header.Timestamp.Unix(),
	})

	return nil
}

// selectTransactions pulls Ready candidates from the mempool,
// resolving each pending account's committed nonce from the
// execution machine first.
func (o *Orchestrator) selectTransactions() []*types.ChainTransaction {
	accounts := o.pool.PendingAccounts()
	committed := make(map[types.AccountId]uint64, len(accounts))
	for _, acc := range accounts {
		committed[acc] = o.machine.CommittedNonce(acc)
	}
	return o.pool.SelectTransactions(o.selectionSize, committed)
}

func (o *Orchestrator) loadEffectiveValidatorSet(height uint64) types.ValidatorSetV1 {
	raw, ok := o.machine.Tree().Get(types.ValidatorSetKey)
	if !ok {
		return types.ValidatorSetV1{}
	}
	var sets types.ValidatorSetsV1
	if err := json.Unmarshal(raw, &sets); err != nil {
		o.logger.Printf("failed to decode validator sets for header: %v", err)
		return types.ValidatorSetV1{}
	}
	return types.EffectiveSetForHeight(&sets, height)
}

// transactionsRoot is H(∅) for an empty block, else H of the
// concatenated canonical transaction hashes in inclusion order.
func transactionsRoot(txs []types.ChainTransaction) [32]byte {
	if len(txs) == 0 {
		return codec.EmptyTransactionsRoot()
	}
	var buf []byte
	for i := range txs {
		h := codec.CanonicalTxHash(&txs[i])
		buf = append(buf, h[:]...)
	}
	return sha256.Sum256(buf)
}
