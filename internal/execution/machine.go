// Package execution implements the Execution Machine: the
// per-transaction pipeline (capability preflight, stateless signature
// verification, stateful authorization, nonce assertion, decorator
// dispatch, payload execution) and the per-block orchestration
// (gas-bounded transaction admission, end-of-block hooks, genesis
// bootstrap) that turns an ordered transaction list into authenticated
// state mutations.
//
// Grounded on crates/execution/src/app/mod.rs: the
// ExecutionMachine/ExecutionMachineState split, load_or_initialize_status's
// genesis bootstrap sequence, and process_transaction's three-phase
// pipeline.
package execution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/identity"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/policy"
	"github.com/certen/kernel/internal/statetree"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// IdentityHub is the execution machine's hook into credential
// rotation: a tx-dispatched Rotate call plus a per-block promotion
// pass that may stage a validator consensus-key update. A nil hub
// rejects rotation transactions and is a no-op at end of block.
type IdentityHub interface {
	Rotate(view identity.StateAccess, account types.AccountId, proof types.RotationProof, currentHeight uint64) error
	OnEndBlock(view identity.StateAccess, height uint64) error
}

// Store is the durability boundary the execution machine needs at
// genesis: a node store for tree deltas plus a place to persist the
// finalized genesis block.
type Store interface {
	statetree.NodeStore
	PutBlock(height uint64, raw []byte) error
	GetBlock(height uint64) ([]byte, error)
}

// ServicePolicy is the configuration-driven half of a service's
// ActiveServiceMeta: the method-permission map and read escape-hatch
// prefixes an operator grants it. The rest (abi version, state schema,
// capabilities) comes from the handler itself via ServiceHandler.Descriptor.
type ServicePolicy struct {
	Methods               map[string]types.MethodPermission
	AllowedSystemPrefixes [][]byte
}

// Machine is the execution machine: it owns the authenticated state
// tree and dispatches transactions and end-of-block hooks against the
// services registered in its directory.
type Machine struct {
	tree     *statetree.Tree
	services ServiceDirectory
	workload WorkloadClient
	identity IdentityHub
	logger   kernlog.Logger

	chainID                 string
	governanceAccount       types.AccountId
	acceptStagedDuringGrace bool

	status types.ChainStatus
}

// NewMachine constructs a Machine over tree, dispatching transactions
// to the handlers in services. A nil workload defaults to
// NullWorkloadClient, a nil identityHub disables rotation
// transactions, and a nil logger to kernlog.Nop.
func NewMachine(tree *statetree.Tree, services ServiceDirectory, chainID string, governanceAccount types.AccountId, acceptStagedDuringGrace bool, workload WorkloadClient, identityHub IdentityHub, logger kernlog.Logger) *Machine {
	if workload == nil {
		workload = NullWorkloadClient{}
	}
	if logger == nil {
		logger = kernlog.Nop
	}
	return &Machine{
		tree:                    tree,
		services:                services,
		workload:                workload,
		identity:                identityHub,
		logger:                  logger,
		chainID:                 chainID,
		governanceAccount:       governanceAccount,
		acceptStagedDuringGrace: acceptStagedDuringGrace,
	}
}

// Status returns the last loaded or initialized chain status.
func (m *Machine) Status() types.ChainStatus { return m.status }

// Tree returns the underlying authenticated state tree.
func (m *Machine) Tree() *statetree.Tree { return m.tree }

func (m *Machine) loadServiceMeta(view txmodel.View, serviceID string) (types.ActiveServiceMeta, error) {
	raw, ok := view.Get(types.ActiveServiceKey(serviceID))
	if !ok {
		return types.ActiveServiceMeta{}, kernerr.New(kernerr.KindUnsupported, "service '"+serviceID+"' is not active")
	}
	return policy.DecodeServiceMeta(raw)
}

// Bootstrap loads chain status from the tree, or, on a fresh tree,
// registers every handler in the service directory as active
// (governed by policies), seeds default block timing parameters,
// commits and persists genesis height 0, and self-checks the result
// via a proof query against STATUS_KEY.
func (m *Machine) Bootstrap(ctx context.Context, store Store, policies map[string]ServicePolicy, defaultTiming types.BlockTimingParams) error {
	if raw, ok := m.tree.Get(types.StatusKey); ok {
		var status types.ChainStatus
		if err := json.Unmarshal(raw, &status); err != nil {
			return kernerr.Wrap(kernerr.KindState, "decode chain status", err)
		}
		m.status = status
		m.logger.Printf("loaded existing chain status at height %d", status.Height)
		return nil
	}

	m.logger.Printf("no chain status found, initializing genesis")

	for _, handler := range m.services.InOrder() {
		meta := handler.Descriptor()
		policyCfg := policies[handler.Id()]
		meta.Methods = policyCfg.Methods
		meta.AllowedSystemPrefixes = policyCfg.AllowedSystemPrefixes
		meta.ActivatedAt = 0

		raw, err := json.Marshal(meta)
		if err != nil {
			return kernerr.Wrap(kernerr.KindState, "encode active service meta", err)
		}
		m.tree.Insert(types.ActiveServiceKey(handler.Id()), raw)
		m.logger.Printf("registered initial service %q as active", handler.Id())
	}

	if _, ok := m.tree.Get(types.BlockTimingParamsKey); !ok {
		raw, err := json.Marshal(defaultTiming)
		if err != nil {
			return kernerr.Wrap(kernerr.KindState, "encode block timing params", err)
		}
		m.tree.Insert(types.BlockTimingParamsKey, raw)
	}

	if _, ok := m.tree.Get(types.BlockTimingRuntimeKey); !ok {
		runtime := types.BlockTimingRuntime{EmaBlockTime: defaultTiming.TargetBlockTime}
		raw, err := json.Marshal(runtime)
		if err != nil {
			return kernerr.Wrap(kernerr.KindState, "encode block timing runtime", err)
		}
		m.tree.Insert(types.BlockTimingRuntimeKey, raw)
	}

	m.status = types.ChainStatus{Height: 0, IsRunning: false}
	statusBytes, err := json.Marshal(m.status)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode chain status", err)
	}
	m.tree.Insert(types.StatusKey, statusBytes)

	root, err := m.tree.CommitVersionPersist(ctx, 0, store)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "commit genesis version", err)
	}

	genesisHeader := types.BlockHeader{
		Height:           0,
		TransactionsRoot: codec.EmptyTransactionsRoot(),
		Timestamp:        time.Time{},
	}
	copy(genesisHeader.StateRoot[:], root)
	genesisBlock := types.Block{Header: genesisHeader}

	blockBytes, err := json.Marshal(genesisBlock)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode genesis block", err)
	}
	if err := store.PutBlock(0, blockBytes); err != nil {
		return kernerr.Wrap(kernerr.KindState, "persist genesis block", err)
	}

	membership, _, err := m.tree.GetWithProofAt(root, types.StatusKey)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "genesis self-check query", err)
	}
	if !membership.Present {
		return kernerr.New(kernerr.KindState, "committed genesis state is not provable")
	}
	m.logger.Printf("genesis self-check passed, root committed")

	return nil
}
