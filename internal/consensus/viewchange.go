package consensus

import "github.com/certen/kernel/internal/types"

// ViewChangeVote is one validator's vote to move height to view.
type ViewChangeVote struct {
	Height    uint64
	View      uint64
	Voter     types.AccountId
	Signature []byte
}

// TimeoutCertificate is proof that > 2/3 of validator weight voted to
// advance to (Height, View).
type TimeoutCertificate struct {
	Height uint64
	View   uint64
	Votes  []ViewChangeVote
}

// HandleViewChange records vote, keyed by (height, view, voter); a
// later vote from the same voter for the same (height, view) does not
// replace the first. Neither HandleViewChange nor checkQuorum verifies
// a vote's signature; checkQuorum only counts voters present in the
// active set it is given.
func (e *Engine) HandleViewChange(vote ViewChangeVote) {
	heightMap, ok := e.viewVotes[vote.Height]
	if !ok {
		heightMap = make(map[uint64]map[types.AccountId]ViewChangeVote)
		e.viewVotes[vote.Height] = heightMap
	}
	viewMap, ok := heightMap[vote.View]
	if !ok {
		viewMap = make(map[types.AccountId]ViewChangeVote)
		heightMap[vote.View] = viewMap
	}
	if _, exists := viewMap[vote.Voter]; exists {
		return
	}
	viewMap[vote.Voter] = vote
}

// checkQuorum tallies the weight of votes recorded for (height, view)
// against active, returning a formed TimeoutCertificate once
// accumulated weight exceeds floor(2*totalWeight/3).
func (e *Engine) checkQuorum(height, view uint64, totalWeight uint64, active []types.ValidatorEntry) *TimeoutCertificate {
	viewMap, ok := e.viewVotes[height][view]
	if !ok {
		return nil
	}

	weightByAccount := make(map[types.AccountId]uint64, len(active))
	for _, v := range active {
		weightByAccount[v.AccountId] = v.Weight
	}

	var accumulated uint64
	var votes []ViewChangeVote
	for voter, vote := range viewMap {
		w, isActive := weightByAccount[voter]
		if !isActive {
			continue
		}
		accumulated += w
		votes = append(votes, vote)
	}

	threshold := (totalWeight * 2) / 3
	if accumulated <= threshold {
		return nil
	}
	return &TimeoutCertificate{Height: height, View: view, Votes: votes}
}

func (e *Engine) maybeFormTimeoutCertificate(height, view uint64, active []types.ValidatorEntry) {
	key := [2]uint64{height, view}
	if _, formed := e.tcFormed[key]; formed {
		return
	}
	var totalWeight uint64
	for _, v := range active {
		totalWeight += v.Weight
	}
	if tc := e.checkQuorum(height, view, totalWeight, active); tc != nil {
		e.tcFormed[key] = struct{}{}
		e.logger.Printf("view change quorum reached for height %d view %d (%d votes)", height, view, len(tc.Votes))
	}
}
