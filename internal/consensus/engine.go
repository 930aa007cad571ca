// Package consensus implements A-DMFT (Adaptive Deterministic Mirror
// Fault Tolerance): deterministic round-robin leader selection over
// the effective validator set, oracle-anchored header signing with a
// strictly monotonic per-validator counter, equivocation/divergence
// detection, and a weight-quorum view-change sub-protocol.
//
// Grounded on crates/consensus/src/admft.rs.
package consensus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// PeerID identifies a gossip peer. The orchestrator's transport layer
// supplies real values; consensus only uses it for divergence
// attribution.
type PeerID string

// Decision is the engine's verdict for a given (height, view) tick.
type Decision struct {
	Stall        bool
	WaitForBlock bool
	Produce      bool

	View               uint64
	ExpectedTimestamp  int64
}

// Engine is the A-DMFT consensus engine. It tracks per-validator
// monotonic oracle counters, in-flight view-change votes, and
// observed block hashes per (height, view) for divergence detection.
// Not safe for concurrent use without an external lock: callers serialize
// access through a single orchestrator tick.
type Engine struct {
	logger kernlog.Logger

	lastSeenCounters map[types.AccountId]uint64
	viewVotes        map[uint64]map[uint64]map[types.AccountId]ViewChangeVote
	tcFormed         map[[2]uint64]struct{}
	seenBlocks       map[[2]uint64]map[[32]byte]PeerID
}

// New returns an empty Engine.
func New(logger kernlog.Logger) *Engine {
	if logger == nil {
		logger = kernlog.Nop
	}
	return &Engine{
		logger:           logger,
		lastSeenCounters: make(map[types.AccountId]uint64),
		viewVotes:        make(map[uint64]map[uint64]map[types.AccountId]ViewChangeVote),
		tcFormed:         make(map[[2]uint64]struct{}),
		seenBlocks:       make(map[[2]uint64]map[[32]byte]PeerID),
	}
}

// activeValidators returns the effective set for height, minus any
// quarantined accounts, in the set's declared order (the round-robin
// index is taken over this slice).
func activeValidators(view txmodel.View, height uint64) ([]types.ValidatorEntry, error) {
	sets, err := loadValidatorSets(view)
	if err != nil {
		return nil, err
	}
	effective := types.EffectiveSetForHeight(sets, height)
	quarantined := loadQuarantined(view)

	out := make([]types.ValidatorEntry, 0, len(effective.Validators))
	for _, v := range effective.Validators {
		if _, q := quarantined[v.AccountId]; q {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func leaderIndex(height, view uint64, n uint64) uint64 {
	round := (height - 1) + view
	return round % n
}

// Decide resolves the (height, view) leader from parentView and
// returns this validator's decision: Stall if the active set is
// empty, or if ourAccount is not the leader and knownPeers is 0;
// Produce (with the deterministically computed timestamp) if
// ourAccount is the leader; WaitForBlock otherwise.
func (e *Engine) Decide(ctx context.Context, parentView txmodel.View, ourAccount types.AccountId, height, view uint64, knownPeers int) Decision {
	active, err := activeValidators(parentView, height)
	if err != nil || len(active) == 0 {
		e.logger.Printf("decide: no active validators at height %d: %v", height, err)
		return Decision{Stall: true}
	}

	e.maybeFormTimeoutCertificate(height, view, active)

	n := uint64(len(active))
	leader := active[leaderIndex(height, view, n)].AccountId

	if knownPeers == 0 && leader != ourAccount {
		return Decision{Stall: true}
	}

	if leader != ourAccount {
		return Decision{WaitForBlock: true, View: view}
	}

	params, runtime, status := loadTimingState(parentView)
	expected := computeNextTimestamp(params, runtime, status.LatestTimestamp)

	return Decision{Produce: true, View: view, ExpectedTimestamp: expected}
}

func loadValidatorSets(view txmodel.View) (*types.ValidatorSetsV1, error) {
	raw, ok := view.Get(types.ValidatorSetKey)
	if !ok {
		return nil, kernerr.New(kernerr.KindState, "validator set key not found")
	}
	var sets types.ValidatorSetsV1
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, kernerr.Wrap(kernerr.KindState, "decode validator sets", err)
	}
	return &sets, nil
}

func loadQuarantined(view txmodel.View) map[types.AccountId]struct{} {
	out := make(map[types.AccountId]struct{})
	raw, ok := view.Get(types.QuarantinedValidatorsKey)
	if !ok {
		return out
	}
	var ids []types.AccountId
	if err := json.Unmarshal(raw, &ids); err != nil {
		return out
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func loadTimingState(view txmodel.View) (types.BlockTimingParams, types.BlockTimingRuntime, types.ChainStatus) {
	var params types.BlockTimingParams
	var runtime types.BlockTimingRuntime
	var status types.ChainStatus
	if raw, ok := view.Get(types.BlockTimingParamsKey); ok {
		_ = json.Unmarshal(raw, &params)
	}
	if raw, ok := view.Get(types.BlockTimingRuntimeKey); ok {
		_ = json.Unmarshal(raw, &runtime)
	}
	if raw, ok := view.Get(types.StatusKey); ok {
		_ = json.Unmarshal(raw, &status)
	}
	return params, runtime, status
}

// computeNextTimestamp derives the deterministic next block timestamp
// from the EMA-tracked runtime state, clamped to
// [parentTimestamp+1, parentTimestamp+MaxBlockTime].
func computeNextTimestamp(params types.BlockTimingParams, runtime types.BlockTimingRuntime, parentTimestamp time.Time) int64 {
	target := int64(params.TargetBlockTime.Seconds())
	if target <= 0 {
		target = 1
	}
	ema := int64(runtime.EmaBlockTime.Seconds())
	if ema <= 0 {
		ema = target
	}
	base := parentTimestamp.Unix()
	next := base + ema
	if maxAdvance := int64(params.MaxBlockTime.Seconds()); maxAdvance > 0 && next > base+maxAdvance {
		next = base + maxAdvance
	}
	if next <= base {
		next = base + 1
	}
	return next
}

// Reset prunes view-change and divergence-tracking state for heights
// below height, called by the orchestrator after a height commits.
func (e *Engine) Reset(height uint64) {
	for h := range e.viewVotes {
		if h < height {
			delete(e.viewVotes, h)
		}
	}
	for k := range e.tcFormed {
		if k[0] < height {
			delete(e.tcFormed, k)
		}
	}
	for k := range e.seenBlocks {
		if k[0] < height {
			delete(e.seenBlocks, k)
		}
	}
}
