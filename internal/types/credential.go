package types

// Credential binds a signature suite and public key hash to an
// activation height. A credential is active once
// current_height >= ActivationHeight and the account holds no
// superseding entry.
type Credential struct {
	Suite            SignatureSuite
	PublicKeyHash    [32]byte
	ActivationHeight uint64
	Weight           uint64
}

// IsActiveAt reports whether the credential is active at the given
// height.
func (c *Credential) IsActiveAt(height uint64) bool {
	return c != nil && height >= c.ActivationHeight
}

// CredentialSlot is the per-account [active, staged] pair. Invariant:
// if Staged is present, Staged.ActivationHeight > Active.ActivationHeight;
// at or after Staged.ActivationHeight, Staged atomically becomes Active
// and the slot returns to [newActive, nil].
type CredentialSlot struct {
	Active *Credential
	Staged *Credential
}

// PromoteIfDue moves Staged into Active when height has reached
// Staged.ActivationHeight. Returns true if a promotion occurred.
func (s *CredentialSlot) PromoteIfDue(height uint64) bool {
	if s.Staged == nil || height < s.Staged.ActivationHeight {
		return false
	}
	s.Active = s.Staged
	s.Staged = nil
	return true
}

// SessionAuthorization permits ephemeral delegation from a master
// credential to a session key, bounded by expiry and max spend.
type SessionAuthorization struct {
	SessionKeyPub []byte
	ExpiryHeight  uint64
	MaxSpend      uint64
	SignerSig     []byte
}

// SignHeader carries the replay-protection and routing fields common
// to every signed transaction variant.
type SignHeader struct {
	AccountId   AccountId
	Nonce       uint64
	ChainId     string
	TxVersion   uint32
	SessionAuth *SessionAuthorization
}
