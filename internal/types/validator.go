package types

// ActiveKeyRecord is a validator's currently-effective consensus key.
type ActiveKeyRecord struct {
	Suite         SignatureSuite
	PublicKeyHash [32]byte
	SinceHeight   uint64
}

// ValidatorEntry is one member of a ValidatorSetV1.
type ValidatorEntry struct {
	AccountId   AccountId
	Weight      uint64
	ConsensusKey ActiveKeyRecord
}

// ValidatorSetV1 is an ordered validator list plus its total weight
// and the height at which it takes effect.
type ValidatorSetV1 struct {
	Validators        []ValidatorEntry
	TotalWeight       uint64
	EffectiveFromHeight uint64
}

// ValidatorSetsV1 holds the currently-effective set and an optional
// staged "next" set. Next activates at Next.EffectiveFromHeight.
type ValidatorSetsV1 struct {
	Current ValidatorSetV1
	Next    *ValidatorSetV1
}

// EffectiveSetForHeight returns sets.Next if height has reached its
// EffectiveFromHeight, else sets.Current. See GLOSSARY "Effective
// validator set at height h".
func EffectiveSetForHeight(sets *ValidatorSetsV1, height uint64) ValidatorSetV1 {
	if sets.Next != nil && height >= sets.Next.EffectiveFromHeight {
		return *sets.Next
	}
	return sets.Current
}

// PrunePlan describes a retention pass: drop everything below
// CutoffHeight except heights pinned in ExcludedHeights.
type PrunePlan struct {
	CutoffHeight    uint64
	ExcludedHeights map[uint64]struct{}
}

// Survives reports whether a given height survives this prune plan.
func (p *PrunePlan) Survives(height uint64) bool {
	if height >= p.CutoffHeight {
		return true
	}
	_, pinned := p.ExcludedHeights[height]
	return pinned
}

// MethodPermission gates who may invoke a service method.
type MethodPermission uint8

const (
	PermissionUser MethodPermission = iota
	PermissionGovernance
	PermissionInternal
)

// ActiveServiceMeta describes a service registered and active in the
// authenticated map.
type ActiveServiceMeta struct {
	Id                   string
	AbiVersion           uint32
	StateSchema          string
	Caps                 CapabilitySet
	ArtifactHash         [32]byte
	ActivatedAt          uint64
	Methods              map[string]MethodPermission
	AllowedSystemPrefixes [][]byte
}

// CapabilitySet is the bit-set a ServiceHandler reports instead of
// being downcast to an optional trait for each gated capability.
type CapabilitySet uint8

const (
	CapOnEndBlock CapabilitySet = 1 << iota
	CapTxDecorator
	CapCredentialsView
)

// Has reports whether the set contains cap.
func (c CapabilitySet) Has(cap CapabilitySet) bool {
	return c&cap != 0
}
