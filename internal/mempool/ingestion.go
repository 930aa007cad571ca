package mempool

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/policy"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// IngestionConfig controls batch collection for the ingestion worker.
type IngestionConfig struct {
	BatchSize      int
	BatchTimeoutMs int
}

// DefaultIngestionConfig matches the configuration-recognized defaults.
func DefaultIngestionConfig() IngestionConfig {
	return IngestionConfig{BatchSize: 256, BatchTimeoutMs: 10}
}

// agenticServiceIds names the services whose CallService transactions
// pass through the policy gate before admission.
var agenticServiceIds = map[string]struct{}{
	"agentic":        {},
	"desktop_agent":  {},
	"compute_market": {},
}

// Submission is one raw byte payload handed to the ingestion worker,
// tagged with the receipt hash the submitter will poll status under.
type Submission struct {
	ReceiptHash [32]byte
	Raw         []byte
}

// NonceSource resolves an account's next committed nonce from the
// anchor state tree.
type NonceSource interface {
	CommittedNonce(account types.AccountId) uint64
}

// TimingSource resolves the currently configured block-cadence
// parameters.
type TimingSource interface {
	BlockTimingParams() (types.BlockTimingParams, types.BlockTimingRuntime)
}

// StatelessChecker is the execution machine's stateless-validation
// entry point, run against an anchor state root ahead of admission.
type StatelessChecker interface {
	CheckTransactions(ctx context.Context, anchorRoot [32]byte, txs []*types.ChainTransaction) []error
}

// Gossip publishes admitted transactions to the network.
type Gossip interface {
	PublishTransaction(raw []byte)
}

// PolicySource resolves the currently active policy document.
type PolicySource interface {
	ActiveRules() types.ActionRules
}

// EventSink receives firewall interception events.
type EventSink interface {
	Publish(event types.FirewallInterceptionEvent)
}

// Worker batches raw submissions into the pool through a six-step
// admission pipeline.
type Worker struct {
	pool *Mempool

	nonceCache  *lru.Cache // types.AccountId -> uint64
	statusCache *lru.Cache // receipt hash hex -> types.TxStatusEntry
	receiptMap  *lru.Cache // canonical tx hash -> receipt hash hex

	nonces   NonceSource
	timing   TimingSource
	checker  StatelessChecker
	gossip   Gossip
	rules    PolicySource
	events   EventSink
	kickChan chan struct{}

	cfg IngestionConfig

	mu           sync.Mutex
	timingCached bool
	timingAt     time.Time
}

// NewWorker wires a Worker to its dependencies. kickChan is sent to
// (non-blocking) whenever a batch admits at least one transaction; the
// consensus loop should treat it as a coalesced wakeup signal.
func NewWorker(pool *Mempool, nonces NonceSource, timing TimingSource, checker StatelessChecker, gossip Gossip, rules PolicySource, events EventSink, kickChan chan struct{}, cfg IngestionConfig) (*Worker, error) {
	nonceCache, err := lru.New(10000)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindFatal, "allocate nonce cache", err)
	}
	statusCache, err := lru.New(50000)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindFatal, "allocate status cache", err)
	}
	receiptMap, err := lru.New(50000)
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindFatal, "allocate receipt map", err)
	}
	return &Worker{
		pool:        pool,
		nonceCache:  nonceCache,
		statusCache: statusCache,
		receiptMap:  receiptMap,
		nonces:      nonces,
		timing:      timing,
		checker:     checker,
		gossip:      gossip,
		rules:       rules,
		events:      events,
		kickChan:    kickChan,
		cfg:         cfg,
	}, nil
}

// Status returns the cached lifecycle entry for a receipt hash.
func (w *Worker) Status(receiptHash [32]byte) (types.TxStatusEntry, bool) {
	v, ok := w.statusCache.Get(receiptHashKey(receiptHash))
	if !ok {
		return types.TxStatusEntry{}, false
	}
	return v.(types.TxStatusEntry), true
}

func receiptHashKey(h [32]byte) string { return hex.EncodeToString(h[:]) }

func (w *Worker) setStatus(receiptHash [32]byte, entry types.TxStatusEntry) {
	w.statusCache.Add(receiptHashKey(receiptHash), entry)
}

// Run drains submissions, grouping them into batches bounded by
// cfg.BatchSize / cfg.BatchTimeoutMs, until ctx is canceled or in is
// closed, draining any in-flight batch first.
func (w *Worker) Run(ctx context.Context, in <-chan Submission) {
	timeout := time.Duration(w.cfg.BatchTimeoutMs) * time.Millisecond
	for {
		var first Submission
		var ok bool
		select {
		case first, ok = <-in:
		case <-ctx.Done():
			return
		}
		if !ok {
			return
		}
		batch := make([]Submission, 0, w.cfg.BatchSize)
		batch = append(batch, first)

		deadline := time.NewTimer(timeout)
	collect:
		for len(batch) < w.cfg.BatchSize {
			select {
			case s, ok := <-in:
				if !ok {
					break collect
				}
				batch = append(batch, s)
			case <-deadline.C:
				break collect
			case <-ctx.Done():
				deadline.Stop()
				w.ProcessBatch(ctx, batch)
				return
			}
		}
		deadline.Stop()

		w.ProcessBatch(ctx, batch)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

type decoded struct {
	tx          *types.ChainTransaction
	canonHash   [32]byte
	raw         []byte
	receiptHash [32]byte
	account     *types.AccountId
	nonce       uint64
}

// ProcessBatch runs the full six-step pipeline against one batch
// synchronously; Run calls this per collected batch, but it is exposed
// directly so tests (and any caller with its own batching policy) can
// drive it without a channel.
func (w *Worker) ProcessBatch(ctx context.Context, batch []Submission) {
	decodedBatch := make([]decoded, 0, len(batch))

	// Step 1: decode + canonical hash.
	for _, sub := range batch {
		tx, err := codec.DecodeTransaction(sub.Raw)
		if err != nil {
			w.setStatus(sub.ReceiptHash, types.TxStatusEntry{Status: types.TxStatusRejected, Error: "decode: " + err.Error()})
			continue
		}
		canonHash := codec.CanonicalTxHash(tx)

		var account *types.AccountId
		var nonce uint64
		if tx.Kind != types.TxSemantic {
			acc := tx.Header.AccountId
			account = &acc
			nonce = tx.Header.Nonce
		}

		decodedBatch = append(decodedBatch, decoded{
			tx: tx, canonHash: canonHash, raw: sub.Raw, receiptHash: sub.ReceiptHash,
			account: account, nonce: nonce,
		})
	}
	if len(decodedBatch) == 0 {
		return
	}

	// Step 2: prefetch committed nonces for never-seen accounts.
	for _, d := range decodedBatch {
		if d.account == nil {
			continue
		}
		if w.pool.ContainsAccount(*d.account) {
			continue
		}
		if _, cached := w.nonceCache.Get(*d.account); cached {
			continue
		}
		w.nonceCache.Add(*d.account, w.nonces.CommittedNonce(*d.account))
	}

	// Step 3: refresh timing cache (~2s), informational only here —
	// the orchestrator consumes it for cadence, not admission.
	w.mu.Lock()
	if !w.timingCached || time.Since(w.timingAt) > 2*time.Second {
		w.timing.BlockTimingParams()
		w.timingCached = true
		w.timingAt = time.Now()
	}
	w.mu.Unlock()

	// Step 4: policy gate for agentic service calls.
	safe := make([]decoded, 0, len(decodedBatch))
	rules := w.rules.ActiveRules()
	for _, d := range decodedBatch {
		if !w.passesPolicyGate(&rules, &d) {
			continue
		}
		safe = append(safe, d)
	}
	if len(safe) == 0 {
		return
	}

	// Step 5: batch signature verification.
	txs := make([]*types.ChainTransaction, len(safe))
	for i, d := range safe {
		txs[i] = d.tx
	}
	sigResults := txmodel.BatchVerifySignatures(ctx, txs)
	verified := make([]decoded, 0, len(safe))
	for _, r := range sigResults {
		if r.Err != nil {
			w.setStatus(safe[r.Index].receiptHash, types.TxStatusEntry{Status: types.TxStatusRejected, Error: "signature: " + r.Err.Error()})
			continue
		}
		verified = append(verified, safe[r.Index])
	}
	if len(verified) == 0 {
		return
	}

	// Step 6: stateless workload pre-check, then admission + gossip.
	anchor := [32]byte{}
	checkTxs := make([]*types.ChainTransaction, len(verified))
	for i, d := range verified {
		checkTxs[i] = d.tx
	}
	checkErrs := w.checker.CheckTransactions(ctx, anchor, checkTxs)

	accepted := 0
	for i, d := range verified {
		if i < len(checkErrs) && checkErrs[i] != nil {
			w.setStatus(d.receiptHash, types.TxStatusEntry{Status: types.TxStatusRejected, Error: "validation: " + checkErrs[i].Error()})
			continue
		}

		committed := uint64(0)
		if d.account != nil {
			if v, ok := w.nonceCache.Get(*d.account); ok {
				committed = v.(uint64)
			}
		}

		res := w.pool.Add(d.tx, d.canonHash, d.account, d.nonce, committed)
		switch res.Outcome {
		case AddReady, AddFuture:
			accepted++
			w.setStatus(d.receiptHash, types.TxStatusEntry{Status: types.TxStatusInMempool})
			w.receiptMap.Add(d.canonHash, receiptHashKey(d.receiptHash))
			w.gossip.PublishTransaction(d.raw)
		case AddRejected:
			w.setStatus(d.receiptHash, types.TxStatusEntry{Status: types.TxStatusRejected, Error: "mempool: " + res.Reason})
		}
	}

	if accepted > 0 {
		select {
		case w.kickChan <- struct{}{}:
		default:
		}
	}
}

func (w *Worker) passesPolicyGate(rules *types.ActionRules, d *decoded) bool {
	if d.tx.Kind != types.TxSystem || d.tx.CallService == nil {
		return true
	}
	if _, gated := agenticServiceIds[d.tx.CallService.ServiceId]; !gated {
		return true
	}

	request := &types.ActionRequest{
		Target: types.ActionTarget(d.tx.CallService.Method),
		Params: d.tx.CallService.Params,
		Nonce:  d.nonce,
	}
	if d.account != nil {
		request.Account = *d.account
	}

	verdict := policy.Evaluate(rules, request, nil)
	switch verdict {
	case types.VerdictAllow:
		return true
	case types.VerdictBlock:
		w.events.Publish(types.FirewallInterceptionEvent{Verdict: types.FirewallBlocked, Target: request.Target, RequestHash: request.Hash()})
		w.setStatus(d.receiptHash, types.TxStatusEntry{Status: types.TxStatusRejected, Error: "policy: blocked by active rules"})
		return false
	default: // RequireApproval
		w.events.Publish(types.FirewallInterceptionEvent{Verdict: types.FirewallRequireApproval, Target: request.Target, RequestHash: request.Hash()})
		w.setStatus(d.receiptHash, types.TxStatusEntry{Status: types.TxStatusRejected, Error: "policy: manual approval required"})
		return false
	}
}
