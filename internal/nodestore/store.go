// Package nodestore implements the durable, epoch-sharded backing
// store for tree deltas and finalized blocks. Grounded on
// pkg/kvdb/adapter.go, which wraps CometBFT's dbm.DB and
// uses SetSync for durable commit-time writes; here that wrapping is
// generalized from a single DB to one dbm.DB instance per epoch.
package nodestore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/statetree"
)

const (
	// DefaultEpochSize is the number of heights per epoch shard.
	DefaultEpochSize = 50_000

	nodesKeyPrefix = "nodes::"
	blockKeyPrefix = "block::"
)

// PruneStats summarizes the effect of a PruneBatch call.
type PruneStats struct {
	HeightsPruned int
	NodesDeleted  int
}

// deltaRecord is the JSON-on-disk representation of a statetree.Delta.
type deltaRecord struct {
	Height  uint64      `json:"height"`
	Root    []byte      `json:"root"`
	Upserts [][2][]byte `json:"upserts"` // [key, value] pairs
	Deletes [][]byte    `json:"deletes"`
}

// Store is a durable, epoch-sharded node and block store.
type Store struct {
	mu        sync.Mutex
	baseDir   string
	epochSize uint64
	shards    map[uint64]dbm.DB
	sealed    map[uint64]bool
	// heights observed per epoch, for prune bookkeeping and sealing.
	heightsByEpoch map[uint64]map[uint64]struct{}
	maxHeightSeen  uint64
}

// Open creates or opens a node store rooted at baseDir. Epoch shards
// are opened lazily, on first write or prune touching that epoch.
func Open(baseDir string, epochSize uint64) (*Store, error) {
	if epochSize == 0 {
		epochSize = DefaultEpochSize
	}
	return &Store{
		baseDir:        baseDir,
		epochSize:      epochSize,
		shards:         make(map[uint64]dbm.DB),
		sealed:         make(map[uint64]bool),
		heightsByEpoch: make(map[uint64]map[uint64]struct{}),
	}, nil
}

func (s *Store) epochOf(height uint64) uint64 { return height / s.epochSize }

// shardLocked returns the dbm.DB for epochID, opening it if needed.
// Caller must hold s.mu.
func (s *Store) shardLocked(epochID uint64) (dbm.DB, error) {
	if db, ok := s.shards[epochID]; ok {
		return db, nil
	}
	name := fmt.Sprintf("epoch-%d", epochID)
	db, err := dbm.NewGoLevelDB(name, filepath.Join(s.baseDir))
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindState, "open epoch shard failed", err)
	}
	s.shards[epochID] = db
	if s.heightsByEpoch[epochID] == nil {
		s.heightsByEpoch[epochID] = make(map[uint64]struct{})
	}
	return db, nil
}

func heightKey(prefix string, height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append([]byte(prefix), b[:]...)
}

// PutNodes durably persists delta into the shard for its height's
// epoch, via SetSync. Satisfies statetree.NodeStore.
func (s *Store) PutNodes(_ context.Context, delta statetree.Delta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	epochID := s.epochOf(delta.Height)
	db, err := s.shardLocked(epochID)
	if err != nil {
		return err
	}

	rec := deltaRecord{Height: delta.Height, Root: delta.Root, Deletes: delta.Deletes}
	for _, l := range delta.Upserts {
		rec.Upserts = append(rec.Upserts, [2][]byte{l.Key, l.Value})
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "marshal delta record failed", err)
	}
	if err := db.SetSync(heightKey(nodesKeyPrefix, delta.Height), raw); err != nil {
		return kernerr.Wrap(kernerr.KindState, "persist delta failed", err)
	}

	s.heightsByEpoch[epochID][delta.Height] = struct{}{}
	s.advanceSealLocked(delta.Height)
	return nil
}

// PutBlock durably persists a finalized block's canonical bytes.
func (s *Store) PutBlock(height uint64, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	epochID := s.epochOf(height)
	db, err := s.shardLocked(epochID)
	if err != nil {
		return err
	}
	if err := db.SetSync(heightKey(blockKeyPrefix, height), raw); err != nil {
		return kernerr.Wrap(kernerr.KindState, "persist block failed", err)
	}
	s.heightsByEpoch[epochID][height] = struct{}{}
	s.advanceSealLocked(height)
	return nil
}

// GetBlock returns the previously persisted bytes for height, if any.
func (s *Store) GetBlock(height uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.shardLocked(s.epochOf(height))
	if err != nil {
		return nil, err
	}
	v, err := db.Get(heightKey(blockKeyPrefix, height))
	if err != nil {
		return nil, kernerr.Wrap(kernerr.KindState, "read block failed", err)
	}
	return v, nil
}

// advanceSealLocked marks every epoch strictly below the epoch of
// height as sealed, once a later height has been observed. Caller
// must hold s.mu.
func (s *Store) advanceSealLocked(height uint64) {
	if height > s.maxHeightSeen {
		s.maxHeightSeen = height
	}
	currentEpoch := s.epochOf(s.maxHeightSeen)
	for e := uint64(0); e < currentEpoch; e++ {
		s.sealed[e] = true
	}
}

// IsSealed reports whether epochID has been fully superseded by a
// later epoch's activity.
func (s *Store) IsSealed(epochID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed[epochID]
}

// PruneBatch drops persisted node-delta and block records for
// heights strictly below cutoff, except those in excluded, up to
// limit heights. It never drops a whole epoch shard wholesale:
// surviving heights in a partially-pruned (even sealed) epoch are
// left intact, since nodes written in one epoch may still be
// referenced by versions in a later one.
func (s *Store) PruneBatch(cutoff uint64, excluded map[uint64]struct{}, limit int) (PruneStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats PruneStats
	for epochID, heights := range s.heightsByEpoch {
		if stats.HeightsPruned >= limit {
			break
		}
		db, err := s.shardLocked(epochID)
		if err != nil {
			return stats, err
		}
		for h := range heights {
			if stats.HeightsPruned >= limit {
				break
			}
			if h >= cutoff {
				continue
			}
			if _, pinned := excluded[h]; pinned {
				continue
			}

			nk := heightKey(nodesKeyPrefix, h)
			if raw, err := db.Get(nk); err == nil && raw != nil {
				var rec deltaRecord
				if json.Unmarshal(raw, &rec) == nil {
					stats.NodesDeleted += len(rec.Upserts) + len(rec.Deletes)
				}
			}
			if err := db.DeleteSync(nk); err != nil {
				return stats, kernerr.Wrap(kernerr.KindState, "delete node record failed", err)
			}
			if err := db.DeleteSync(heightKey(blockKeyPrefix, h)); err != nil {
				return stats, kernerr.Wrap(kernerr.KindState, "delete block record failed", err)
			}
			delete(heights, h)
			stats.HeightsPruned++
		}
	}
	return stats, nil
}

// Close closes every opened epoch shard.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, db := range s.shards {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ statetree.NodeStore = (*Store)(nil)
