package txmodel

import "github.com/certen/kernel/internal/types"

// CallContext carries the ambient facts a service handler or decorator
// needs beyond the state view itself.
type CallContext struct {
	BlockHeight       uint64
	CallerAccount     types.AccountId
	IsInternal        bool
	GovernanceAccount types.AccountId
}

// ServiceHandler is the contract every registered service satisfies.
// Capability-gated methods (ValidateAnte/WriteAnte/OnEndBlock) are
// always present on the interface, rather than behind a downcast to
// an optional trait, but the execution machine only invokes them when
// Capabilities() reports the corresponding bit set.
type ServiceHandler interface {
	Id() string
	AbiVersion() uint32
	StateSchema() string
	Capabilities() types.CapabilitySet

	// Descriptor returns the metadata recorded for this service in the
	// authenticated map when it is activated.
	Descriptor() types.ActiveServiceMeta

	// HandleServiceCall dispatches a System::CallService invocation.
	// method is a versioned string "name@vN"; params is an opaque
	// canonical byte string.
	HandleServiceCall(view View, method string, params []byte, ctx *CallContext) error

	// ValidateAnte is called against a read-only namespaced view for
	// every transaction when CapTxDecorator is set; any error aborts
	// the transaction before any writes occur.
	ValidateAnte(view View, tx *types.ChainTransaction, ctx *CallContext) error

	// WriteAnte performs the writable counterpart of ValidateAnte.
	WriteAnte(view View, tx *types.ChainTransaction, ctx *CallContext) error

	// OnEndBlock runs once per block, in deterministic service-id
	// byte order, when CapOnEndBlock is set.
	OnEndBlock(view View, height uint64) error
}
