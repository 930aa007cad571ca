// Package policy implements the Policy Engine: the
// firewall agentic-service transactions pass through in the ingestion
// worker's policy gate, plus the service-call ABI permission check the
// execution machine runs before dispatch.
//
// Grounded on the agentic firewall's ActionRules evaluator: an
// ApprovalToken bypass gate, an ordered linear rule scan (first match
// wins), and a fixed set of recognized conditions, followed by a
// configured default verdict.
package policy

import (
	"encoding/json"
	"strings"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// sysExecAllowlist is the hardcoded set of system-exec commands that
// rules and the default verdict may decide on; any other command, or
// an argument containing ';', '|' or '>', is blocked whatever the
// rules say.
var sysExecAllowlist = map[string]struct{}{
	"netstat": {},
	"ping":    {},
	"whoami":  {},
	"ls":      {},
	"echo":    {},
}

// Evaluate decides the verdict for request against rules. presented,
// if non-nil, is an ApprovalToken the caller attached to the
// transaction.
func Evaluate(rules *types.ActionRules, request *types.ActionRequest, presented *types.ApprovalToken) types.Verdict {
	if presented != nil && presented.RequestHash == request.Hash() {
		return types.VerdictAllow
	}

	// An empty rule only fails checkConditions on the sys::exec checks.
	if request.Target == types.ActionSysExec && !checkConditions(&types.Rule{}, request) {
		return types.VerdictBlock
	}

	for _, rule := range rules.Rules {
		if rule.Target != request.Target && rule.Target != types.ActionTargetWildcard {
			continue
		}
		if checkConditions(&rule, request) {
			return rule.Action
		}
	}

	switch rules.Defaults {
	case types.DefaultAllowAll:
		return types.VerdictAllow
	case types.DefaultDenyAll:
		return types.VerdictBlock
	default:
		return types.VerdictRequireApproval
	}
}

// checkConditions reports whether every condition set on rule holds
// for request; a rule with no applicable conditions always matches.
func checkConditions(rule *types.Rule, request *types.ActionRequest) bool {
	cond := rule.Conditions

	if request.Target == types.ActionSysExec {
		var params struct {
			Command string   `json:"command"`
			Args    []string `json:"args"`
		}
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return false
		}
		if _, ok := sysExecAllowlist[params.Command]; !ok {
			return false
		}
		for _, arg := range params.Args {
			if strings.ContainsAny(arg, ";|>") {
				return false
			}
		}
	}

	if cond.AllowPaths != nil && (request.Target == types.ActionFsRead || request.Target == types.ActionFsWrite) {
		var params struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(request.Params, &params); err == nil && params.Path != "" {
			if !anyHasPrefix(cond.AllowPaths, params.Path) {
				return false
			}
		}
	}

	if cond.BlockTextPattern != nil {
		var params struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(request.Params, &params); err == nil {
			if strings.Contains(params.Text, *cond.BlockTextPattern) {
				return false
			}
		}
	}

	if cond.AllowDomains != nil && request.Target == types.ActionNetFetch {
		var params struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(request.Params, &params); err == nil && params.URL != "" {
			if !anyContains(cond.AllowDomains, params.URL) {
				return false
			}
		}
	}

	if cond.MaxSpend != nil && request.Target == types.ActionWalletSend {
		var params struct {
			Amount uint64 `json:"amount"`
		}
		if err := json.Unmarshal(request.Params, &params); err == nil {
			if params.Amount > *cond.MaxSpend {
				return false
			}
		}
	}

	return true
}

func anyHasPrefix(prefixes []string, s string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func anyContains(substrs []string, s string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// ServiceMetaReader is the minimal read capability CheckServiceCall
// needs from a state view.
type ServiceMetaReader interface {
	Get(key []byte) ([]byte, bool)
}

// DecodeServiceMeta unmarshals the bytes stored at an
// ActiveServiceKey into an ActiveServiceMeta; it is a var so the
// execution machine can swap in its canonical codec without this
// package importing it back (avoiding an import cycle).
var DecodeServiceMeta func(data []byte) (types.ActiveServiceMeta, error) = decodeServiceMetaJSON

func decodeServiceMetaJSON(data []byte) (types.ActiveServiceMeta, error) {
	var meta types.ActiveServiceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.ActiveServiceMeta{}, kernerr.Wrap(kernerr.KindInvalid, "decode active service meta", err)
	}
	return meta, nil
}

// CheckServiceCall verifies a System::CallService invocation is
// permitted: the service must be active, not administratively
// disabled, expose the requested method in its ABI, and — for
// internal-only methods — be called from an internal (non-user)
// context.
func CheckServiceCall(state ServiceMetaReader, serviceId, method string, isInternal bool) error {
	metaKey := types.ActiveServiceKey(serviceId)
	raw, ok := state.Get(metaKey)
	if !ok {
		return kernerr.New(kernerr.KindUnsupported, "service '"+serviceId+"' is not active")
	}
	meta, err := DecodeServiceMeta(raw)
	if err != nil {
		return err
	}

	disabledKey := append(append([]byte{}, metaKey...), []byte("::disabled")...)
	if _, disabled := state.Get(disabledKey); disabled {
		return kernerr.New(kernerr.KindUnsupported, "service '"+serviceId+"' is administratively disabled")
	}

	perm, found := meta.Methods[method]
	if !found {
		return kernerr.New(kernerr.KindUnsupported, "method '"+method+"' not found in service '"+serviceId+"' ABI")
	}
	if perm == types.PermissionInternal && !isInternal {
		return kernerr.New(kernerr.KindInvalid, "internal method cannot be called via transaction")
	}
	return nil
}
