package services

import (
	"github.com/certen/kernel/internal/execution"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// DefaultPolicies returns the operator-granted method-permission map
// and read escape-hatch prefixes for each service this package
// registers, keyed by service id. cmd/validatord feeds this straight
// into execution.Machine.Bootstrap.
func DefaultPolicies() map[string]execution.ServicePolicy {
	return map[string]execution.ServicePolicy{
		"governance": {
			Methods: map[string]types.MethodPermission{
				"submit_proposal@v1": types.PermissionUser,
				"vote@v1":            types.PermissionUser,
			},
		},
		"ibc": {
			Methods: map[string]types.MethodPermission{
				"register_verifier@v1": types.PermissionGovernance,
				"submit_header@v1":      types.PermissionUser,
				"verify_state@v1":       types.PermissionUser,
			},
		},
	}
}

// Handlers returns the service handlers this package provides, in a
// stable order, ready to hand to execution.NewRegistry.
func Handlers(gov GovernanceParams) []txmodel.ServiceHandler {
	return []txmodel.ServiceHandler{
		NewGovernanceService(gov),
		NewIBCService(),
	}
}
