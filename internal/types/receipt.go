package types

// TxStatusKind is the lifecycle state of a submitted transaction, keyed
// by receipt hash in the ingestion worker's status cache.
type TxStatusKind uint8

const (
	TxStatusRejected TxStatusKind = iota
	TxStatusInMempool
	TxStatusInBlock
	TxStatusFailed
)

// TxStatusEntry is one status-cache record.
type TxStatusEntry struct {
	Status      TxStatusKind
	Error       string
	BlockHeight *uint64
}

// FirewallVerdict names the policy gate's outcome for an event.
type FirewallVerdict string

const (
	FirewallBlocked         FirewallVerdict = "BLOCK"
	FirewallRequireApproval FirewallVerdict = "REQUIRE_APPROVAL"
)

// FirewallInterceptionEvent is emitted whenever the policy gate blocks
// or holds a transaction for approval.
type FirewallInterceptionEvent struct {
	Verdict     FirewallVerdict
	Target      ActionTarget
	RequestHash [32]byte
}

// NewTipEvent is emitted whenever the orchestrator advances the
// committed chain tip to a new height.
type NewTipEvent struct {
	Height    uint64
	StateRoot [32]byte
	BlockHash [32]byte
	Timestamp int64
}
