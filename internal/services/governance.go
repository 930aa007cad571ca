// Package services provides the kernel's illustrative registered
// services: governance and ibc. Per the dispatch-contract split, each
// implements the full txmodel.ServiceHandler surface (capability
// bits, namespaced HandleServiceCall dispatch, OnEndBlock where
// applicable) while keeping the business logic deliberately small —
// these exist to exercise the service-registration and namespace
// machinery end to end, not to be a production governance or IBC
// implementation.
package services

import (
	"encoding/json"
	"sort"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// ProposalStatus is a governance proposal's lifecycle stage.
type ProposalStatus uint8

const (
	ProposalVoting ProposalStatus = iota
	ProposalPassed
	ProposalRejected
)

// VoteOption is a ballot cast on a proposal.
type VoteOption uint8

const (
	VoteYes VoteOption = iota
	VoteNo
	VoteAbstain
)

// Proposal is a governance proposal and its running tally.
type Proposal struct {
	ID              uint64
	Title           string
	Submitter       types.AccountId
	SubmitHeight    uint64
	VotingEndHeight uint64
	Status          ProposalStatus
	Yes, No, Abstain uint64
}

// SubmitProposalParams is the submit_proposal@v1 method's parameter
// shape.
type SubmitProposalParams struct {
	Title string `json:"title"`
}

// VoteParams is the vote@v1 method's parameter shape.
type VoteParams struct {
	ProposalID uint64     `json:"proposal_id"`
	Option     VoteOption `json:"option"`
}

const (
	govNextIDKey      = "next_proposal_id"
	govProposalPrefix = "proposal::"
	govVotePrefix     = "vote::"
)

// GovernanceParams parameterizes proposal voting.
type GovernanceParams struct {
	VotingPeriodBlocks uint64
	QuorumVotes        uint64
}

// GovernanceService accepts proposals, records one vote per account,
// and tallies by simple majority-of-cast-votes at the voting
// deadline in OnEndBlock.
//
// Grounded on crates/services/src/governance/mod.rs's
// submit_proposal/vote/tally_proposal shape, simplified to a
// presence-vote tally: the original weights votes by validator stake
// read through an identity/stake service dependency this kernel does
// not wire governance to.
type GovernanceService struct {
	params GovernanceParams
}

// NewGovernanceService constructs a GovernanceService, defaulting
// unset params.
func NewGovernanceService(params GovernanceParams) *GovernanceService {
	if params.VotingPeriodBlocks == 0 {
		params.VotingPeriodBlocks = 100
	}
	if params.QuorumVotes == 0 {
		params.QuorumVotes = 1
	}
	return &GovernanceService{params: params}
}

func (s *GovernanceService) Id() string           { return "governance" }
func (s *GovernanceService) AbiVersion() uint32    { return 1 }
func (s *GovernanceService) StateSchema() string   { return "v1" }
func (s *GovernanceService) Capabilities() types.CapabilitySet {
	return types.CapOnEndBlock
}

func (s *GovernanceService) Descriptor() types.ActiveServiceMeta {
	return types.ActiveServiceMeta{
		Id:          s.Id(),
		AbiVersion:  s.AbiVersion(),
		StateSchema: s.StateSchema(),
		Caps:        s.Capabilities(),
		Methods: map[string]types.MethodPermission{
			"submit_proposal@v1": types.PermissionUser,
			"vote@v1":            types.PermissionUser,
		},
	}
}

func (s *GovernanceService) key(suffix string) []byte {
	return append(types.ServiceNamespacePrefix(s.Id()), suffix...)
}

func (s *GovernanceService) proposalKey(id uint64) []byte {
	return s.key(govProposalPrefix + string(codec.Uint64BE(id)))
}

func (s *GovernanceService) voteKey(id uint64, voter types.AccountId) []byte {
	k := s.key(govVotePrefix + string(codec.Uint64BE(id)) + "::")
	return append(k, voter[:]...)
}

func (s *GovernanceService) loadProposal(view txmodel.View, id uint64) (Proposal, bool, error) {
	raw, ok := view.Get(s.proposalKey(id))
	if !ok {
		return Proposal{}, false, nil
	}
	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return Proposal{}, false, kernerr.Wrap(kernerr.KindState, "decode proposal", err)
	}
	return p, true, nil
}

func (s *GovernanceService) storeProposal(view txmodel.View, p Proposal) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode proposal", err)
	}
	view.Insert(s.proposalKey(p.ID), raw)
	return nil
}

// HandleServiceCall dispatches submit_proposal@v1 and vote@v1.
func (s *GovernanceService) HandleServiceCall(view txmodel.View, method string, params []byte, ctx *txmodel.CallContext) error {
	switch method {
	case "submit_proposal@v1":
		var p SubmitProposalParams
		if err := json.Unmarshal(params, &p); err != nil {
			return kernerr.Wrap(kernerr.KindInvalid, "decode submit_proposal params", err)
		}
		raw, _ := view.Get(s.key(govNextIDKey))
		var id uint64
		if raw != nil {
			id = codec.Uint64FromBE(raw)
		}
		view.Insert(s.key(govNextIDKey), codec.Uint64BE(id+1))
		return s.storeProposal(view, Proposal{
			ID:              id,
			Title:           p.Title,
			Submitter:       ctx.CallerAccount,
			SubmitHeight:    ctx.BlockHeight,
			VotingEndHeight: ctx.BlockHeight + s.params.VotingPeriodBlocks,
			Status:          ProposalVoting,
		})
	case "vote@v1":
		var v VoteParams
		if err := json.Unmarshal(params, &v); err != nil {
			return kernerr.Wrap(kernerr.KindInvalid, "decode vote params", err)
		}
		proposal, ok, err := s.loadProposal(view, v.ProposalID)
		if err != nil {
			return err
		}
		if !ok {
			return kernerr.New(kernerr.KindInvalid, "proposal not found")
		}
		if proposal.Status != ProposalVoting || ctx.BlockHeight > proposal.VotingEndHeight {
			return kernerr.New(kernerr.KindInvalid, "proposal is not in its voting period")
		}
		voteKey := s.voteKey(v.ProposalID, ctx.CallerAccount)
		if _, already := view.Get(voteKey); already {
			return kernerr.New(kernerr.KindInvalid, "account already voted on this proposal")
		}
		view.Insert(voteKey, []byte{byte(v.Option)})
		switch v.Option {
		case VoteYes:
			proposal.Yes++
		case VoteNo:
			proposal.No++
		default:
			proposal.Abstain++
		}
		return s.storeProposal(view, proposal)
	default:
		return kernerr.New(kernerr.KindUnsupported, "governance: unknown method "+method)
	}
}

// ValidateAnte is a no-op: governance does not decorate every
// transaction, only its own System::CallService invocations.
func (s *GovernanceService) ValidateAnte(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) error {
	return nil
}

// WriteAnte is a no-op for the same reason as ValidateAnte.
func (s *GovernanceService) WriteAnte(view txmodel.View, tx *types.ChainTransaction, ctx *txmodel.CallContext) error {
	return nil
}

// OnEndBlock tallies every proposal whose voting period has elapsed
// this block, deciding pass/reject by simple majority of cast votes
// against the configured quorum.
func (s *GovernanceService) OnEndBlock(view txmodel.View, height uint64) error {
	prefix := s.key(govProposalPrefix)
	leaves := view.PrefixScan(prefix)
	sort.Slice(leaves, func(i, j int) bool { return string(leaves[i].Key) < string(leaves[j].Key) })

	for _, leaf := range leaves {
		var p Proposal
		if err := json.Unmarshal(leaf.Value, &p); err != nil {
			continue
		}
		if p.Status != ProposalVoting || height < p.VotingEndHeight {
			continue
		}
		total := p.Yes + p.No + p.Abstain
		if total < s.params.QuorumVotes {
			p.Status = ProposalRejected
		} else if p.Yes > p.No {
			p.Status = ProposalPassed
		} else {
			p.Status = ProposalRejected
		}
		if err := s.storeProposal(view, p); err != nil {
			return err
		}
	}
	return nil
}

var _ txmodel.ServiceHandler = (*GovernanceService)(nil)
