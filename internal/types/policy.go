package types

import (
	"crypto/sha256"
	"encoding/binary"
)

// ActionTarget names the kind of agentic-service action a transaction
// requests, for policy-rule matching.
type ActionTarget string

const (
	ActionNetFetch    ActionTarget = "net::fetch"
	ActionFsWrite     ActionTarget = "fs::write"
	ActionFsRead      ActionTarget = "fs::read"
	ActionSysExec     ActionTarget = "sys::exec"
	ActionWalletSign  ActionTarget = "wallet::sign"
	ActionWalletSend  ActionTarget = "wallet::send"
)

// ActionRequest is the intent a transaction addressing an agentic
// service carries into the policy gate.
type ActionRequest struct {
	Target  ActionTarget
	Params  []byte
	Account AccountId
	Nonce   uint64
}

// Hash identifies this exact request for ApprovalToken matching.
func (r *ActionRequest) Hash() [32]byte {
	return hashActionRequest(r)
}

// ApprovalToken is a pre-signed bypass for one specific request hash,
// presented alongside a transaction to skip rule evaluation.
type ApprovalToken struct {
	RequestHash [32]byte
}

// Verdict is the Policy Engine's decision for an ActionRequest.
type Verdict uint8

const (
	VerdictAllow Verdict = iota
	VerdictBlock
	VerdictRequireApproval
)

func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "Allow"
	case VerdictBlock:
		return "Block"
	case VerdictRequireApproval:
		return "RequireApproval"
	default:
		return "Unknown"
	}
}

// DefaultPolicy is the fallback verdict when no rule matches.
type DefaultPolicy uint8

const (
	DefaultAllowAll DefaultPolicy = iota
	DefaultDenyAll
	DefaultRequireApproval
)

// RuleConditions enumerates every condition kind the engine
// recognizes; a nil field means that condition is not checked.
type RuleConditions struct {
	AllowPaths       []string
	AllowDomains     []string
	MaxSpend         *uint64
	BlockTextPattern *string
}

// ActionTargetWildcard matches any ActionTarget in a Rule.
const ActionTargetWildcard ActionTarget = "*"

// Rule matches a target (or ActionTargetWildcard for any) and, if all
// of its conditions hold, yields Action.
type Rule struct {
	Target     ActionTarget
	Conditions RuleConditions
	Action     Verdict
}

// ActionRules is the active policy document: an ordered rule list
// plus the fallback verdict.
type ActionRules struct {
	Rules    []Rule
	Defaults DefaultPolicy
}

func hashActionRequest(r *ActionRequest) [32]byte {
	h := sha256.New()
	h.Write([]byte(r.Target))
	h.Write(r.Params)
	h.Write(r.Account[:])
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], r.Nonce)
	h.Write(nonce[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
