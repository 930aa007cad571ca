package execution

import (
	"context"
	"encoding/json"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/policy"
	"github.com/certen/kernel/internal/types"
)

// CommittedNonce satisfies internal/mempool.NonceSource: the
// ingestion worker prefetches each account's next committed nonce
// from here ahead of batch admission.
func (m *Machine) CommittedNonce(account types.AccountId) uint64 {
	return readNonce(m.tree, account)
}

// BlockTimingParams satisfies internal/mempool.TimingSource.
func (m *Machine) BlockTimingParams() (types.BlockTimingParams, types.BlockTimingRuntime) {
	var params types.BlockTimingParams
	var runtime types.BlockTimingRuntime
	if raw, ok := m.tree.Get(types.BlockTimingParamsKey); ok {
		_ = json.Unmarshal(raw, &params)
	}
	if raw, ok := m.tree.Get(types.BlockTimingRuntimeKey); ok {
		_ = json.Unmarshal(raw, &runtime)
	}
	return params, runtime
}

// CheckTransactions satisfies internal/mempool.StatelessChecker: a
// read-only, pre-admission sanity pass over a batch ahead of full
// execution. It currently checks that System::CallService invocations
// target an active, non-disabled service ABI method; other kinds pass
// through, since their stateful checks only make sense at execution
// time.
func (m *Machine) CheckTransactions(ctx context.Context, _ [32]byte, txs []*types.ChainTransaction) []error {
	errs := make([]error, len(txs))
	for i, tx := range txs {
		select {
		case <-ctx.Done():
			errs[i] = ctx.Err()
			continue
		default:
		}
		if tx.Kind != types.TxSystem {
			continue
		}
		if tx.CallService == nil {
			errs[i] = kernerr.New(kernerr.KindInvalid, "missing call_service payload")
			continue
		}
		errs[i] = policy.CheckServiceCall(m.tree, tx.CallService.ServiceId, tx.CallService.Method, false)
	}
	return errs
}
