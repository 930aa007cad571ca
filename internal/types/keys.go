package types

// Reserved system key prefixes for the persisted state layout.
var (
	StatusKey                = []byte("status")
	ValidatorSetKey          = []byte("validator_set")
	QuarantinedValidatorsKey = []byte("quarantined_validators")
	BlockTimingParamsKey     = []byte("block_timing_params")
	BlockTimingRuntimeKey    = []byte("block_timing_runtime")

	AccountNonceKeyPrefix       = []byte("account_nonce::")
	AccountPubkeyKeyPrefix      = []byte("account_pubkey::")
	IdentityCredentialsPrefix   = []byte("identity_credentials::")
	IdentityRotationNoncePrefix = []byte("identity_rotation_nonce::")
	IdentityPromotionIndexPrefix = []byte("identity_promotion_index::")

	UpgradeManifestPrefix = []byte("upgrade_manifest::")
	UpgradeArtifactPrefix = []byte("upgrade_artifact::")
	UpgradePendingPrefix  = []byte("upgrade_pending::")
)

// ServiceNamespacePrefix returns the namespace prefix a service's
// reads/writes are confined to: b"_service_data::" || id || b"::".
func ServiceNamespacePrefix(serviceId string) []byte {
	out := make([]byte, 0, len("_service_data::")+len(serviceId)+2)
	out = append(out, []byte("_service_data::")...)
	out = append(out, serviceId...)
	out = append(out, ':', ':')
	return out
}

// ActiveServicePrefix is the common prefix of every ActiveServiceKey,
// used to scan the full set of registered services at startup.
var ActiveServicePrefix = []byte("active_service::")

// ActiveServiceKey returns the key under which an ActiveServiceMeta is
// stored; appending "::disabled" to the same key is used as a
// tombstone.
func ActiveServiceKey(id string) []byte {
	return append(append([]byte{}, ActiveServicePrefix...), id...)
}

// AccountNonceKey returns the key holding an account's next nonce.
func AccountNonceKey(id AccountId) []byte {
	return append(append([]byte{}, AccountNonceKeyPrefix...), id[:]...)
}

// AccountPubkeyKey returns the key holding an account's canonical
// public key bytes.
func AccountPubkeyKey(id AccountId) []byte {
	return append(append([]byte{}, AccountPubkeyKeyPrefix...), id[:]...)
}

// IdentityCredentialsKey returns the key holding an account's
// [active, staged] credential slot.
func IdentityCredentialsKey(id AccountId) []byte {
	return append(append([]byte{}, IdentityCredentialsPrefix...), id[:]...)
}

// IdentityRotationNonceKey returns the key holding an account's
// rotation nonce.
func IdentityRotationNonceKey(id AccountId) []byte {
	return append(append([]byte{}, IdentityRotationNoncePrefix...), id[:]...)
}

// IdentityPromotionIndexKey returns the key holding the list of
// accounts to promote at the given height.
func IdentityPromotionIndexKey(height uint64) []byte {
	var h [8]byte
	putUint64BE(h[:], height)
	return append(append([]byte{}, IdentityPromotionIndexPrefix...), h[:]...)
}

func putUint64BE(b []byte, v uint64) {
	b[0] = byte(v >> 56)
	b[1] = byte(v >> 48)
	b[2] = byte(v >> 40)
	b[3] = byte(v >> 32)
	b[4] = byte(v >> 24)
	b[5] = byte(v >> 16)
	b[6] = byte(v >> 8)
	b[7] = byte(v)
}
