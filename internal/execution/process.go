package execution

import (
	"context"
	"encoding/json"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/statetree"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// TxOutcome is one transaction's result from a ProcessBlock call.
type TxOutcome struct {
	Index   int
	GasUsed uint64
	Err     error
}

// BlockResult summarizes a fully processed block.
type BlockResult struct {
	Height   uint64
	GasUsed  uint64
	Outcomes []TxOutcome
}

func signerFromTx(tx *types.ChainTransaction) types.AccountId {
	return tx.Header.AccountId
}

// safeValidateAnte runs a decorator's ValidateAnte, converting an
// attempted write (a panic from the read-only view it is handed) into
// an ordinary error instead of crashing the pipeline.
func safeValidateAnte(d txmodel.ServiceHandler, view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if kerr, ok := r.(*kernerr.Error); ok {
				err = kerr
				return
			}
			err = kernerr.New(kernerr.KindInvalid, "validate_ante attempted a write")
		}
	}()
	return d.ValidateAnte(view, tx, ctx)
}

func (m *Machine) decoratorsInOrder() []txmodel.ServiceHandler {
	var out []txmodel.ServiceHandler
	for _, h := range m.services.InOrder() {
		if h.Capabilities().Has(types.CapTxDecorator) {
			out = append(out, h)
		}
	}
	return out
}

// ProcessTransaction runs the full read-validate / mutate / execute
// pipeline for a single transaction against view. view must be scoped
// (e.g. an Overlay) so the caller can discard its mutations as a unit
// if any phase returns an error.
func (m *Machine) ProcessTransaction(view txmodel.View, tx *types.ChainTransaction, blockHeight uint64) (uint64, error) {
	ctx := &txmodel.CallContext{
		BlockHeight:       blockHeight,
		CallerAccount:     signerFromTx(tx),
		IsInternal:        false,
		GovernanceAccount: m.governanceAccount,
	}

	// --- Phase 1: read-only validation ---
	if err := txmodel.VerifySignature(tx); err != nil {
		return 0, err
	}
	if err := m.verifyStatefulAuthorization(view, tx, blockHeight); err != nil {
		return 0, err
	}
	if err := assertNextNonce(view, tx); err != nil {
		return 0, err
	}

	decorators := m.decoratorsInOrder()
	for _, d := range decorators {
		meta, err := m.loadServiceMeta(view, d.Id())
		if err != nil {
			return 0, err
		}
		namespaced := txmodel.NewNamespacedView(view, d.Id(), meta.AllowedSystemPrefixes)
		if err := safeValidateAnte(d, txmodel.NewReadOnlyView(namespaced), tx, ctx); err != nil {
			return 0, err
		}
	}

	// --- Phase 2: state mutation ---
	for _, d := range decorators {
		meta, err := m.loadServiceMeta(view, d.Id())
		if err != nil {
			return 0, err
		}
		namespaced := txmodel.NewNamespacedView(view, d.Id(), meta.AllowedSystemPrefixes)
		if err := d.WriteAnte(namespaced, tx, ctx); err != nil {
			return 0, err
		}
	}
	bumpNonce(view, tx)
	if tx.Header.SessionAuth == nil {
		view.Insert(types.AccountPubkeyKey(tx.Header.AccountId), tx.SigProof.PublicKey)
	}

	// --- Phase 3: payload execution ---
	return m.applyPayload(view, tx, ctx)
}

// ProcessBlock applies txs in order against a single overlay scoped to
// the block, invokes end-of-block hooks in deterministic service-id
// order, and flushes the net effect into the underlying tree. Once
// the block's cumulative gas has reached gasTarget, each remaining
// transaction is rejected without being applied; the transaction
// whose gas carries the block past the target is itself applied, and
// earlier successes in the same block stand.
// The caller is responsible for calling CommitVersionPersist on the
// tree afterward.
func (m *Machine) ProcessBlock(ctx context.Context, txs []*types.ChainTransaction, height uint64, gasTarget uint64) BlockResult {
	blockOverlay := NewOverlay(m.tree)
	result := BlockResult{Height: height}

	for i, tx := range txs {
		select {
		case <-ctx.Done():
			result.Outcomes = append(result.Outcomes, TxOutcome{Index: i, Err: ctx.Err()})
			continue
		default:
		}

		if gasTarget > 0 && result.GasUsed >= gasTarget {
			result.Outcomes = append(result.Outcomes, TxOutcome{
				Index: i,
				Err:   kernerr.New(kernerr.KindResourceExhausted, "block gas target reached"),
			})
			continue
		}

		txOverlay := NewOverlay(blockOverlay)
		gas, err := m.ProcessTransaction(txOverlay, tx, height)
		if err != nil {
			txOverlay.Discard()
			result.Outcomes = append(result.Outcomes, TxOutcome{Index: i, Err: err})
			continue
		}
		txOverlay.Flush()
		result.GasUsed += gas
		result.Outcomes = append(result.Outcomes, TxOutcome{Index: i, GasUsed: gas})
	}

	for _, h := range m.services.InOrder() {
		if !h.Capabilities().Has(types.CapOnEndBlock) {
			continue
		}
		meta, err := m.loadServiceMeta(blockOverlay, h.Id())
		if err != nil {
			m.logger.Printf("on_end_block: service %q has no active metadata: %v", h.Id(), err)
			continue
		}
		namespaced := txmodel.NewNamespacedView(blockOverlay, h.Id(), meta.AllowedSystemPrefixes)
		if err := h.OnEndBlock(namespaced, height); err != nil {
			m.logger.Printf("on_end_block: service %q failed: %v", h.Id(), err)
		}
	}

	if m.identity != nil {
		if err := m.identity.OnEndBlock(blockOverlay, height); err != nil {
			m.logger.Printf("on_end_block: identity hub failed: %v", err)
		}
	}

	blockOverlay.Flush()
	return result
}

// CommitBlock writes the advanced chain status into the tree, then
// persists the block's resulting tree version, returning the new
// root. Call this after ProcessBlock has flushed its effects in.
func (m *Machine) CommitBlock(ctx context.Context, store statetree.NodeStore, height uint64, txCount int) (statetree.RootHash, error) {
	m.status.Height = height
	m.status.TotalTransactions += uint64(txCount)
	m.status.IsRunning = true

	statusBytes, err := json.Marshal(m.status)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindState, "encode chain status", err)
	}
	m.tree.Insert(types.StatusKey, statusBytes)

	root, err := m.tree.CommitVersionPersist(ctx, height, store)
	if err != nil {
		return nil, err
	}
	return root, nil
}
