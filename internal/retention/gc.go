package retention

import (
	"context"
	"time"

	"github.com/certen/kernel/internal/kernlog"
	"github.com/certen/kernel/internal/nodestore"
	"github.com/certen/kernel/internal/types"
)

// Tree is the in-memory state tree's GC-facing surface.
type Tree interface {
	PruneBatchBestEffort(plan types.PrunePlan, limit int) (dropped int, ok bool)
}

// NodeStore is the durable node store's GC-facing surface.
type NodeStore interface {
	PruneBatch(cutoff uint64, excluded map[uint64]struct{}, limit int) (nodestore.PruneStats, error)
}

// HeightSource resolves the current committed tip height.
type HeightSource interface {
	CurrentHeight() uint64
}

// PassStats summarizes one GC pass.
type PassStats struct {
	TreeHeightsDropped int
	StoreHeightsPruned int
	StoreNodesDeleted  int
	TreeLockContested  bool
}

// GC periodically computes a PrunePlan and applies it to both the
// state tree (best-effort) and the node store (batched, yielding
// between batches), then clears the proof cache.
type GC struct {
	cfg    Config
	tree   Tree
	store  NodeStore
	pins   *PinSet
	proofs *ProofCache
	height HeightSource
	logger kernlog.Logger

	treeBatchLimit  int
	storeBatchLimit int
	yieldBetween    time.Duration
}

// NewGC wires a GC pass around tree/store/pins/proofs. treeBatchLimit
// and storeBatchLimit bound how many heights a single batch call may
// drop; yieldBetween is slept between node-store batches so a long
// prune pass never starves other goroutines.
func NewGC(cfg Config, tree Tree, store NodeStore, pins *PinSet, proofs *ProofCache, height HeightSource, logger kernlog.Logger, treeBatchLimit, storeBatchLimit int, yieldBetween time.Duration) *GC {
	if logger == nil {
		logger = kernlog.Nop
	}
	if treeBatchLimit <= 0 {
		treeBatchLimit = 64
	}
	if storeBatchLimit <= 0 {
		storeBatchLimit = 256
	}
	return &GC{
		cfg:             cfg,
		tree:            tree,
		store:           store,
		pins:            pins,
		proofs:          proofs,
		height:          height,
		logger:          logger,
		treeBatchLimit:  treeBatchLimit,
		storeBatchLimit: storeBatchLimit,
		yieldBetween:    yieldBetween,
	}
}

// Run fires a pass every interval until ctx is canceled.
func (g *GC) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single GC pass: prune plan, tree prune
// (best-effort), node-store prune (batched with yields), then clear
// the proof cache.
func (g *GC) RunOnce(ctx context.Context) PassStats {
	plan := ComputePrunePlan(g.cfg, g.height.CurrentHeight(), g.pins.Snapshot())

	var stats PassStats

	dropped, ok := g.tree.PruneBatchBestEffort(plan, g.treeBatchLimit)
	if !ok {
		stats.TreeLockContested = true
		g.logger.Printf("gc: state tree write lock contested, skipping tree prune this pass")
	} else {
		stats.TreeHeightsDropped = dropped
	}

storeLoop:
	for {
		select {
		case <-ctx.Done():
			g.proofs.Clear()
			return stats
		default:
		}

		batchStats, err := g.store.PruneBatch(plan.CutoffHeight, plan.ExcludedHeights, g.storeBatchLimit)
		if err != nil {
			g.logger.Printf("gc: node store prune batch failed: %v", err)
			break
		}
		stats.StoreHeightsPruned += batchStats.HeightsPruned
		stats.StoreNodesDeleted += batchStats.NodesDeleted
		if batchStats.HeightsPruned == 0 {
			break
		}
		if g.yieldBetween > 0 {
			select {
			case <-ctx.Done():
				break storeLoop
			case <-time.After(g.yieldBetween):
			}
		}
	}

	g.proofs.Clear()
	g.logger.Printf("gc pass complete: tree_dropped=%d store_pruned=%d store_nodes_deleted=%d", stats.TreeHeightsDropped, stats.StoreHeightsPruned, stats.StoreNodesDeleted)
	return stats
}
