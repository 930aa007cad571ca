// Package hostabci adapts the kernel's ExecutionMachine and
// ConsensusEngine to a CometBFT abci.Application: CometBFT owns peer
// gossip, block proposal voting and finality, while this adapter owns
// transaction admission, execution and state commitment.
//
// Grounded on pkg/consensus/abci_validator.go's ValidatorApp method
// set (Info/CheckTx/FinalizeBlock/Commit/Query/InitChain plus the
// snapshot and vote-extension no-ops) and pkg/consensus/bft_integration.go's
// CertenApplication, adapted from a single fixed ValidatorBlock
// payload to the kernel's ChainTransaction/ChainStatus model.
package hostabci

import (
	"context"
	"fmt"
	"sync"

	abcitypes "github.com/cometbft/cometbft/abci/types"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/execution"
	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/metrics"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// TxCodec is the wire (de)serialization of a ChainTransaction, broken
// out so tests can swap in a faulty codec without touching real
// wire-format code.
type TxCodec interface {
	Decode(raw []byte) (*types.ChainTransaction, error)
}

// Application is the kernel's abci.Application. One Application
// drives one Machine; it does not itself know how to start a
// CometBFT node (see Engine for that).
type Application struct {
	machine  *execution.Machine
	store    execution.Store
	codec    TxCodec
	policies map[string]execution.ServicePolicy
	timing   types.BlockTimingParams
	gasTarget uint64
	metrics  *metrics.Metrics
	logger   kernlog.Logger

	mu             sync.Mutex
	pendingResult  *execution.BlockResult
	pendingTxs     []*types.ChainTransaction
	lastAppHash    []byte
}

// Config bundles the parameters Application needs beyond the machine
// itself.
type Config struct {
	GasTarget     uint64
	Policies      map[string]execution.ServicePolicy
	DefaultTiming types.BlockTimingParams
}

// New constructs an Application around machine. A nil metrics/logger
// disables the corresponding observability surface.
func New(machine *execution.Machine, store execution.Store, codec TxCodec, cfg Config, m *metrics.Metrics, logger kernlog.Logger) *Application {
	if logger == nil {
		logger = kernlog.Nop
	}
	return &Application{
		machine:   machine,
		store:     store,
		codec:     codec,
		policies:  cfg.Policies,
		timing:    cfg.DefaultTiming,
		gasTarget: cfg.GasTarget,
		metrics:   m,
		logger:    logger,
	}
}

var _ abcitypes.Application = (*Application)(nil)

// Info reports the machine's last-committed height and app hash. A
// fresh in-memory tree always starts at height 0; restoring a prior
// run's height from the node store is not implemented (see
// DESIGN.md's "state-tree restore" entry), so a process restart
// against existing data currently re-runs genesis bootstrap rather
// than resuming.
func (a *Application) Info(ctx context.Context, req *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	status := a.machine.Status()
	return &abcitypes.ResponseInfo{
		Data:             "certen kernel validator",
		Version:          "1.0.0",
		AppVersion:       1,
		LastBlockHeight:  int64(status.Height),
		LastBlockAppHash: a.lastAppHash,
	}, nil
}

// InitChain bootstraps the machine's genesis state: every registered
// service is activated under its configured policy, and default block
// timing parameters are seeded. A genesis validator set is derived
// from req.Validators, keyed by Ed25519 public-key hash, matching the
// account-identity convention internal/orchestration's tests use for
// bootstrap accounts.
func (a *Application) InitChain(ctx context.Context, req *abcitypes.RequestInitChain) (*abcitypes.ResponseInitChain, error) {
	if err := a.machine.Bootstrap(ctx, a.store, a.policies, a.timing); err != nil {
		return nil, fmt.Errorf("bootstrap genesis: %w", err)
	}
	if err := seedGenesisValidatorSet(a.machine.Tree(), req.Validators); err != nil {
		return nil, fmt.Errorf("seed genesis validator set: %w", err)
	}
	a.logger.Printf("hostabci: init chain %q with %d genesis validators", req.ChainId, len(req.Validators))
	return &abcitypes.ResponseInitChain{}, nil
}

// CheckTx stateless-validates a candidate transaction: it must decode
// and its embedded signature must verify. CometBFT's own mempool
// reactor, not internal/mempool, holds admitted bytes once accepted
// here.
func (a *Application) CheckTx(ctx context.Context, req *abcitypes.RequestCheckTx) (*abcitypes.ResponseCheckTx, error) {
	tx, err := a.codec.Decode(req.Tx)
	if err != nil {
		return &abcitypes.ResponseCheckTx{Code: CodeDecodeError, Log: "decode transaction: " + err.Error()}, nil
	}
	if err := txmodel.VerifySignature(tx); err != nil {
		if a.metrics != nil {
			a.metrics.TxsRejected.WithLabelValues("bad_signature").Inc()
		}
		return &abcitypes.ResponseCheckTx{Code: CodeBadSignature, Log: "signature verification failed: " + err.Error()}, nil
	}
	root, err := a.machine.Tree().RootCommitment()
	if err == nil {
		var anchor [32]byte
		copy(anchor[:], root)
		if errs := a.machine.CheckTransactions(ctx, anchor, []*types.ChainTransaction{tx}); len(errs) == 1 && errs[0] != nil {
			if a.metrics != nil {
				a.metrics.TxsRejected.WithLabelValues("ante_check").Inc()
			}
			return &abcitypes.ResponseCheckTx{Code: CodeAnteCheckFailed, Log: "ante check failed: " + errs[0].Error()}, nil
		}
	}
	if a.metrics != nil {
		a.metrics.TxsAdmitted.Inc()
	}
	return &abcitypes.ResponseCheckTx{Code: abcitypes.CodeTypeOK, GasWanted: 1}, nil
}

// PrepareProposal decodes CometBFT's candidate transaction list and
// greedily admits it gas-first-fit up to gasTarget, the same
// cumulative-budget discipline internal/mempool.SelectTransactions
// applies to its own candidate pool.
func (a *Application) PrepareProposal(ctx context.Context, req *abcitypes.RequestPrepareProposal) (*abcitypes.ResponsePrepareProposal, error) {
	var (
		accepted []([]byte)
		gasUsed  uint64
	)
	for _, raw := range req.Txs {
		tx, err := a.codec.Decode(raw)
		if err != nil {
			continue
		}
		if err := txmodel.VerifySignature(tx); err != nil {
			continue
		}
		gasUsed += estimatedGas(tx)
		if a.gasTarget > 0 && gasUsed > a.gasTarget {
			break
		}
		accepted = append(accepted, raw)
	}
	return &abcitypes.ResponsePrepareProposal{Txs: accepted}, nil
}

// ProcessProposal re-validates a proposed block's transactions before
// voting for it: every transaction must decode and verify.
func (a *Application) ProcessProposal(ctx context.Context, req *abcitypes.RequestProcessProposal) (*abcitypes.ResponseProcessProposal, error) {
	for _, raw := range req.Txs {
		tx, err := a.codec.Decode(raw)
		if err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
		if err := txmodel.VerifySignature(tx); err != nil {
			return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_REJECT}, nil
		}
	}
	return &abcitypes.ResponseProcessProposal{Status: abcitypes.ResponseProcessProposal_ACCEPT}, nil
}

// FinalizeBlock decodes and executes the agreed transaction set
// against the machine. State mutations land in the machine's
// in-memory tree but are not yet persisted or committed to a height;
// Commit does that, mirroring the machine's own two-phase
// ProcessBlock/CommitBlock contract.
func (a *Application) FinalizeBlock(ctx context.Context, req *abcitypes.RequestFinalizeBlock) (*abcitypes.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	txs := make([]*types.ChainTransaction, 0, len(req.Txs))
	txResults := make([]*abcitypes.ExecTxResult, len(req.Txs))
	decodeErrs := make([]error, len(req.Txs))
	for i, raw := range req.Txs {
		tx, err := a.codec.Decode(raw)
		decodeErrs[i] = err
		if err == nil {
			txs = append(txs, tx)
		}
	}

	result := a.machine.ProcessBlock(ctx, txs, uint64(req.Height), a.gasTarget)

	outcomeByIndex := make(map[int]execution.TxOutcome, len(result.Outcomes))
	for _, o := range result.Outcomes {
		outcomeByIndex[o.Index] = o
	}

	decodedIdx := 0
	for i := range req.Txs {
		if decodeErrs[i] != nil {
			txResults[i] = &abcitypes.ExecTxResult{Code: CodeDecodeError, Log: "decode transaction: " + decodeErrs[i].Error()}
			continue
		}
		outcome := outcomeByIndex[decodedIdx]
		decodedIdx++
		if outcome.Err != nil {
			txResults[i] = &abcitypes.ExecTxResult{Code: CodeExecutionFailed, Log: "execution failed: " + outcome.Err.Error()}
			if a.metrics != nil {
				a.metrics.TxsRejected.WithLabelValues("execution").Inc()
			}
			continue
		}
		txResults[i] = &abcitypes.ExecTxResult{Code: abcitypes.CodeTypeOK, GasUsed: int64(outcome.GasUsed)}
	}

	a.pendingResult = &result
	a.pendingTxs = txs

	return &abcitypes.ResponseFinalizeBlock{TxResults: txResults}, nil
}

// Commit persists the block finalized by the preceding FinalizeBlock
// call: it commits the tree version, writes it to the node store, and
// records the resulting root as this Application's app hash.
func (a *Application) Commit(ctx context.Context, req *abcitypes.RequestCommit) (*abcitypes.ResponseCommit, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pendingResult == nil {
		return &abcitypes.ResponseCommit{}, nil
	}

	height := a.pendingResult.Height
	root, err := a.machine.CommitBlock(ctx, a.store, height, len(a.pendingTxs))
	if err != nil {
		return nil, fmt.Errorf("commit block %d: %w", height, err)
	}
	a.lastAppHash = append([]byte(nil), root...)

	if a.metrics != nil {
		a.metrics.BlocksProduced.Inc()
		a.metrics.BlockHeight.Set(float64(height))
	}

	a.logger.Printf("hostabci: committed height %d with %d transactions, root=%x", height, len(a.pendingTxs), root)

	a.pendingResult = nil
	a.pendingTxs = nil

	return &abcitypes.ResponseCommit{}, nil
}

// Query answers a small set of read-only paths against the machine's
// committed tree; anything else is reported as an unknown path,
// matching the teacher's Query dispatch shape.
func (a *Application) Query(ctx context.Context, req *abcitypes.RequestQuery) (*abcitypes.ResponseQuery, error) {
	switch req.Path {
	case "/status":
		status := a.machine.Status()
		return &abcitypes.ResponseQuery{Code: abcitypes.CodeTypeOK, Value: []byte(fmt.Sprintf(`{"height":%d}`, status.Height))}, nil
	case "/store":
		value, ok := a.machine.Tree().Get(req.Data)
		if !ok {
			return &abcitypes.ResponseQuery{Code: CodeNotFound, Log: "key not found"}, nil
		}
		return &abcitypes.ResponseQuery{Code: abcitypes.CodeTypeOK, Value: value}, nil
	default:
		return &abcitypes.ResponseQuery{Code: CodeUnknownPath, Log: "unknown query path: " + req.Path}, nil
	}
}

func (a *Application) ExtendVote(ctx context.Context, req *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (a *Application) VerifyVoteExtension(ctx context.Context, req *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{Status: abcitypes.ResponseVerifyVoteExtension_ACCEPT}, nil
}

func (a *Application) ListSnapshots(ctx context.Context, req *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return &abcitypes.ResponseListSnapshots{}, nil
}

func (a *Application) OfferSnapshot(ctx context.Context, req *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return &abcitypes.ResponseOfferSnapshot{Result: abcitypes.ResponseOfferSnapshot_ABORT}, nil
}

func (a *Application) LoadSnapshotChunk(ctx context.Context, req *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return &abcitypes.ResponseLoadSnapshotChunk{}, nil
}

func (a *Application) ApplySnapshotChunk(ctx context.Context, req *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return &abcitypes.ResponseApplySnapshotChunk{Result: abcitypes.ResponseApplySnapshotChunk_ABORT}, nil
}

// estimatedGas is a cheap, decode-only stand-in for the gas a
// transaction will actually consume, used only to bound proposal
// assembly; the machine's own ProcessBlock re-checks the real budget.
func estimatedGas(tx *types.ChainTransaction) uint64 {
	raw, err := codec.EncodeTransaction(tx)
	if err != nil {
		return 1
	}
	return uint64(len(raw)) + 1
}
