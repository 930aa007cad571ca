// Package retention implements the garbage-collection pass that keeps
// the state tree and node store from growing without bound: pin
// tracking for long-lived readers, prune-plan computation from the
// configured retention window, and a cooperative GC loop that applies
// the plan to both stores without stalling a concurrent writer.
//
// Grounded on spec section 4.7 directly; no single teacher file
// covers this concern, so its batching/yielding discipline mirrors
// the node store's own PruneBatch contract (internal/nodestore,
// adapted from pkg/kvdb/adapter.go).
package retention

import "github.com/certen/kernel/internal/types"

// Config is the GC pass's retention window.
type Config struct {
	// KeepRecentHeights is the minimum number of most-recent heights
	// always retained regardless of finality.
	KeepRecentHeights uint64
	// MinFinalityDepth additionally holds back that many heights below
	// the tip before they become eligible for pruning, independent of
	// any pin.
	MinFinalityDepth uint64
}

// ComputePrunePlan derives the PrunePlan a GC pass should apply at
// currentHeight: everything at or above the retention floor survives,
// and anything pinned survives regardless of height.
func ComputePrunePlan(cfg Config, currentHeight uint64, pinned map[uint64]struct{}) types.PrunePlan {
	floor := cfg.KeepRecentHeights
	if cfg.MinFinalityDepth > floor {
		floor = cfg.MinFinalityDepth
	}

	var cutoff uint64
	if currentHeight > floor {
		cutoff = currentHeight - floor
	}

	excluded := make(map[uint64]struct{}, len(pinned))
	for h := range pinned {
		excluded[h] = struct{}{}
	}

	return types.PrunePlan{CutoffHeight: cutoff, ExcludedHeights: excluded}
}
