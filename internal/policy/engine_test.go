package policy

import (
	"encoding/json"
	"testing"

	"github.com/certen/kernel/internal/types"
)

func TestEvaluateApprovalTokenBypass(t *testing.T) {
	rules := &types.ActionRules{Defaults: types.DefaultDenyAll}
	req := &types.ActionRequest{Target: types.ActionFsWrite, Params: []byte(`{"path":"/tmp/x"}`)}
	token := &types.ApprovalToken{RequestHash: req.Hash()}

	if v := Evaluate(rules, req, token); v != types.VerdictAllow {
		t.Fatalf("expected Allow via token bypass, got %v", v)
	}
}

func TestEvaluateMismatchedTokenFallsThroughToDefault(t *testing.T) {
	rules := &types.ActionRules{Defaults: types.DefaultDenyAll}
	req := &types.ActionRequest{Target: types.ActionFsWrite}
	wrongToken := &types.ApprovalToken{RequestHash: [32]byte{0xFF}}

	if v := Evaluate(rules, req, wrongToken); v != types.VerdictBlock {
		t.Fatalf("expected Block default, got %v", v)
	}
}

func TestEvaluateFirstMatchingRuleWins(t *testing.T) {
	rules := &types.ActionRules{
		Rules: []types.Rule{
			{Target: types.ActionNetFetch, Action: types.VerdictBlock},
			{Target: types.ActionTargetWildcard, Action: types.VerdictAllow},
		},
		Defaults: types.DefaultRequireApproval,
	}
	req := &types.ActionRequest{Target: types.ActionNetFetch}
	if v := Evaluate(rules, req, nil); v != types.VerdictBlock {
		t.Fatalf("expected first specific rule to win, got %v", v)
	}

	other := &types.ActionRequest{Target: types.ActionFsRead}
	if v := Evaluate(rules, other, nil); v != types.VerdictAllow {
		t.Fatalf("expected wildcard rule to match, got %v", v)
	}
}

func TestSysExecAllowlist(t *testing.T) {
	rules := &types.ActionRules{
		Rules:    []types.Rule{{Target: types.ActionSysExec, Action: types.VerdictAllow}},
		Defaults: types.DefaultDenyAll,
	}

	ok := &types.ActionRequest{Target: types.ActionSysExec, Params: []byte(`{"command":"whoami"}`)}
	if v := Evaluate(rules, ok, nil); v != types.VerdictAllow {
		t.Fatalf("expected allowlisted command to match rule, got %v", v)
	}

	bad := &types.ActionRequest{Target: types.ActionSysExec, Params: []byte(`{"command":"rm"}`)}
	if v := Evaluate(rules, bad, nil); v != types.VerdictBlock {
		t.Fatalf("expected disallowed command to be blocked, got %v", v)
	}

	chained := &types.ActionRequest{Target: types.ActionSysExec, Params: []byte(`{"command":"ls","args":["-la;","rm -rf /"]}`)}
	if v := Evaluate(rules, chained, nil); v != types.VerdictBlock {
		t.Fatalf("expected dangerous arg characters to block, got %v", v)
	}
}

func TestAllowPathsCondition(t *testing.T) {
	allowed := []string{"/data/"}
	rules := &types.ActionRules{
		Rules: []types.Rule{{
			Target:     types.ActionFsWrite,
			Conditions: types.RuleConditions{AllowPaths: allowed},
			Action:     types.VerdictAllow,
		}},
		Defaults: types.DefaultDenyAll,
	}

	inPath := &types.ActionRequest{Target: types.ActionFsWrite, Params: mustJSON(t, map[string]string{"path": "/data/file.txt"})}
	if v := Evaluate(rules, inPath, nil); v != types.VerdictAllow {
		t.Fatalf("expected path within allowlist to match, got %v", v)
	}

	outOfPath := &types.ActionRequest{Target: types.ActionFsWrite, Params: mustJSON(t, map[string]string{"path": "/etc/passwd"})}
	if v := Evaluate(rules, outOfPath, nil); v != types.VerdictBlock {
		t.Fatalf("expected path outside allowlist to fall to default, got %v", v)
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

type fakeServiceState struct {
	kv map[string][]byte
}

func (f *fakeServiceState) Get(key []byte) ([]byte, bool) {
	v, ok := f.kv[string(key)]
	return v, ok
}

func TestCheckServiceCallPermissions(t *testing.T) {
	state := &fakeServiceState{kv: make(map[string][]byte)}
	meta := types.ActiveServiceMeta{
		Id:      "oracle",
		Methods: map[string]types.MethodPermission{"submit": types.PermissionUser, "settle": types.PermissionInternal},
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal meta: %v", err)
	}
	state.kv[string(types.ActiveServiceKey("oracle"))] = raw

	if err := CheckServiceCall(state, "oracle", "submit", false); err != nil {
		t.Fatalf("expected user method to be callable: %v", err)
	}
	if err := CheckServiceCall(state, "oracle", "settle", false); err == nil {
		t.Fatalf("expected internal method to reject a non-internal caller")
	}
	if err := CheckServiceCall(state, "oracle", "settle", true); err != nil {
		t.Fatalf("expected internal method to succeed for internal caller: %v", err)
	}
	if err := CheckServiceCall(state, "oracle", "missing", false); err == nil {
		t.Fatalf("expected unknown method to be rejected")
	}
	if err := CheckServiceCall(state, "unknown-service", "submit", false); err == nil {
		t.Fatalf("expected inactive service to be rejected")
	}
}

func TestCheckServiceCallDisabled(t *testing.T) {
	state := &fakeServiceState{kv: make(map[string][]byte)}
	meta := types.ActiveServiceMeta{Id: "oracle", Methods: map[string]types.MethodPermission{"submit": types.PermissionUser}}
	raw, _ := json.Marshal(meta)
	state.kv[string(types.ActiveServiceKey("oracle"))] = raw
	state.kv[string(append(append([]byte{}, types.ActiveServiceKey("oracle")...), []byte("::disabled")...))] = []byte{1}

	if err := CheckServiceCall(state, "oracle", "submit", false); err == nil {
		t.Fatalf("expected disabled service to be rejected")
	}
}
