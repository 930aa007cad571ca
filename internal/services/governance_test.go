package services

import (
	"bytes"
	"encoding/json"
	"sort"
	"testing"

	"github.com/certen/kernel/internal/commitment"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

type fakeView struct {
	kv map[string][]byte
}

func newFakeView() *fakeView { return &fakeView{kv: make(map[string][]byte)} }

func (f *fakeView) Get(key []byte) ([]byte, bool) {
	v, ok := f.kv[string(key)]
	return v, ok
}

func (f *fakeView) Insert(key, value []byte) { f.kv[string(key)] = value }
func (f *fakeView) Delete(key []byte)        { delete(f.kv, string(key)) }

func (f *fakeView) BatchGet(keys [][]byte) [][]byte {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = f.kv[string(k)]
	}
	return out
}

func (f *fakeView) BatchSet(entries []commitment.Leaf) {
	for _, e := range entries {
		f.Insert(e.Key, e.Value)
	}
}

func (f *fakeView) BatchApply(inserts []commitment.Leaf, deletes [][]byte) {
	for _, k := range deletes {
		f.Delete(k)
	}
	f.BatchSet(inserts)
}

func (f *fakeView) PrefixScan(prefix []byte) []commitment.Leaf {
	var out []commitment.Leaf
	for k, v := range f.kv {
		if bytes.HasPrefix([]byte(k), prefix) {
			out = append(out, commitment.Leaf{Key: []byte(k), Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out
}

var _ txmodel.View = (*fakeView)(nil)

func TestGovernanceSubmitAndVotePassesOnQuorum(t *testing.T) {
	svc := NewGovernanceService(GovernanceParams{VotingPeriodBlocks: 10, QuorumVotes: 1})
	view := newFakeView()
	submitter := types.AccountId{1}
	voter := types.AccountId{2}

	params, _ := json.Marshal(SubmitProposalParams{Title: "raise gas target"})
	if err := svc.HandleServiceCall(view, "submit_proposal@v1", params, &txmodel.CallContext{CallerAccount: submitter, BlockHeight: 5}); err != nil {
		t.Fatalf("submit_proposal: %v", err)
	}

	voteParams, _ := json.Marshal(VoteParams{ProposalID: 0, Option: VoteYes})
	if err := svc.HandleServiceCall(view, "vote@v1", voteParams, &txmodel.CallContext{CallerAccount: voter, BlockHeight: 6}); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if err := svc.OnEndBlock(view, 15); err != nil {
		t.Fatalf("on_end_block: %v", err)
	}

	p, ok, err := svc.loadProposal(view, 0)
	if err != nil || !ok {
		t.Fatalf("expected proposal to be loadable, ok=%v err=%v", ok, err)
	}
	if p.Status != ProposalPassed {
		t.Fatalf("expected proposal to pass, got status %v", p.Status)
	}
}

func TestGovernanceRejectsDoubleVote(t *testing.T) {
	svc := NewGovernanceService(GovernanceParams{VotingPeriodBlocks: 10, QuorumVotes: 1})
	view := newFakeView()
	submitter := types.AccountId{1}
	voter := types.AccountId{2}

	params, _ := json.Marshal(SubmitProposalParams{Title: "x"})
	_ = svc.HandleServiceCall(view, "submit_proposal@v1", params, &txmodel.CallContext{CallerAccount: submitter, BlockHeight: 0})

	voteParams, _ := json.Marshal(VoteParams{ProposalID: 0, Option: VoteYes})
	if err := svc.HandleServiceCall(view, "vote@v1", voteParams, &txmodel.CallContext{CallerAccount: voter, BlockHeight: 1}); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := svc.HandleServiceCall(view, "vote@v1", voteParams, &txmodel.CallContext{CallerAccount: voter, BlockHeight: 1}); err == nil {
		t.Fatalf("expected second vote from same account to fail")
	}
}

func TestGovernanceRejectsVoteAfterDeadline(t *testing.T) {
	svc := NewGovernanceService(GovernanceParams{VotingPeriodBlocks: 5, QuorumVotes: 1})
	view := newFakeView()
	submitter := types.AccountId{1}
	voter := types.AccountId{2}

	params, _ := json.Marshal(SubmitProposalParams{Title: "x"})
	_ = svc.HandleServiceCall(view, "submit_proposal@v1", params, &txmodel.CallContext{CallerAccount: submitter, BlockHeight: 0})

	voteParams, _ := json.Marshal(VoteParams{ProposalID: 0, Option: VoteYes})
	if err := svc.HandleServiceCall(view, "vote@v1", voteParams, &txmodel.CallContext{CallerAccount: voter, BlockHeight: 100}); err == nil {
		t.Fatalf("expected vote after deadline to fail")
	}
}

func TestIBCRejectsSubmitHeaderWithoutRegisteredVerifier(t *testing.T) {
	svc := NewIBCService()
	view := newFakeView()

	p, _ := json.Marshal(SubmitHeaderParams{ChainID: "ethereum", Header: []byte("h")})
	if err := svc.HandleServiceCall(view, "submit_header@v1", p, &txmodel.CallContext{}); err == nil {
		t.Fatalf("expected submit_header without a registered verifier to fail")
	}
}

func TestIBCVerifyStateRequiresTrustedHeader(t *testing.T) {
	svc := NewIBCService()
	view := newFakeView()

	reg, _ := json.Marshal(RegisterVerifierParams{ClientType: "ethereum", ArtifactSHA256: [32]byte{1}})
	if err := svc.HandleServiceCall(view, "register_verifier@v1", reg, &txmodel.CallContext{}); err != nil {
		t.Fatalf("register_verifier: %v", err)
	}

	root := [32]byte{9, 9}
	header, _ := json.Marshal(SubmitHeaderParams{ChainID: "ethereum", StateRoot: root, Header: []byte("h")})
	if err := svc.HandleServiceCall(view, "submit_header@v1", header, &txmodel.CallContext{}); err != nil {
		t.Fatalf("submit_header: %v", err)
	}

	verify, _ := json.Marshal(VerifyStateParams{ChainID: "ethereum", StateRoot: root, Path: []byte("balance"), Value: []byte("100")})
	if err := svc.HandleServiceCall(view, "verify_state@v1", verify, &txmodel.CallContext{}); err != nil {
		t.Fatalf("verify_state: %v", err)
	}

	if _, ok := view.Get(svc.materialKey("ethereum", []byte("balance"))); !ok {
		t.Fatalf("expected verify_state to materialize the claimed value")
	}

	unknownRoot := [32]byte{1, 2, 3}
	bad, _ := json.Marshal(VerifyStateParams{ChainID: "ethereum", StateRoot: unknownRoot, Path: []byte("balance"), Value: []byte("1")})
	if err := svc.HandleServiceCall(view, "verify_state@v1", bad, &txmodel.CallContext{}); err == nil {
		t.Fatalf("expected verify_state against an unknown root to fail")
	}
}
