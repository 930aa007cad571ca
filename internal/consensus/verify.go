package consensus

import (
	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// VerifyBlockProposal runs every check a received block header must
// pass before its transactions are handed to the execution machine:
// leader eligibility, consensus-key match, the oracle-anchored
// signature, and strict counter monotonicity. parentView is the state
// view at header.Height-1 so the effective validator set and
// quarantine list reflect the block's own parent, not the local tip.
func (e *Engine) VerifyBlockProposal(parentView txmodel.View, header *types.BlockHeader, from PeerID) error {
	active, err := activeValidators(parentView, header.Height)
	if err != nil {
		return kernerr.NewConsensusError(kernerr.FaultStateAccess, err.Error())
	}
	if len(active) == 0 {
		return kernerr.NewConsensusError(kernerr.FaultStateAccess, "active validator set is empty")
	}

	var producer *types.ValidatorEntry
	for i := range active {
		if active[i].AccountId == header.ProducerAccountId {
			producer = &active[i]
			break
		}
	}
	if producer == nil {
		return kernerr.NewConsensusError(kernerr.FaultInvalidLeader, "producer is not in the active validator set")
	}

	n := uint64(len(active))
	expected := active[leaderIndex(header.Height, header.View, n)].AccountId
	if header.ProducerAccountId != expected {
		return kernerr.NewConsensusError(kernerr.FaultInvalidLeader, "producer is not the expected leader for this height/view")
	}

	derivedHash := credential.PublicKeyHash(header.ProducerKeySuite, header.ProducerPubkey)
	if derivedHash != producer.ConsensusKey.PublicKeyHash {
		return kernerr.NewConsensusError(kernerr.FaultInvalidSignature, "producer key does not match its consensus key record")
	}

	payload := codec.HeaderSigningPayload(header)
	ok, err := credential.Verify(header.ProducerKeySuite, header.ProducerPubkey, payload, header.Signature)
	if err != nil {
		return kernerr.NewConsensusError(kernerr.FaultInvalidSignature, err.Error())
	}
	if !ok {
		return kernerr.NewConsensusError(kernerr.FaultInvalidSignature, "oracle-anchored header signature did not verify")
	}

	if last, seen := e.lastSeenCounters[header.ProducerAccountId]; seen && header.OracleCounter <= last {
		return kernerr.NewConsensusError(kernerr.FaultMonotonicity, "oracle counter did not strictly advance")
	}

	blockHash := codec.BlockHash(header)
	if e.detectDivergence(header.Height, header.View, blockHash, from) {
		return kernerr.NewConsensusError(kernerr.FaultMirrorDivergence, "a different block was already seen for this height and view")
	}

	e.lastSeenCounters[header.ProducerAccountId] = header.OracleCounter
	return nil
}

// detectDivergence records blockHash as the first (or only) block seen
// for (height, view); a second, distinct hash is reported as
// equivocation.
func (e *Engine) detectDivergence(height, view uint64, blockHash [32]byte, from PeerID) bool {
	key := [2]uint64{height, view}
	seen, ok := e.seenBlocks[key]
	if !ok {
		seen = make(map[[32]byte]PeerID)
		e.seenBlocks[key] = seen
	}
	if len(seen) == 0 {
		seen[blockHash] = from
		return false
	}
	if _, exists := seen[blockHash]; exists {
		return false
	}
	e.logger.Printf("divergence detected at height %d view %d: a second distinct block hash was observed", height, view)
	return true
}
