package credential

import (
	"encoding/json"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// StateAccess is the slice of the state access contract the
// CredentialStore needs.
type StateAccess interface {
	Get(key []byte) ([]byte, bool)
	Insert(key, value []byte)
}

// jsonCredential and jsonSlot give CredentialSlot a stable on-disk
// shape independent of the in-memory struct's field order.
type jsonCredential struct {
	Suite            types.SignatureSuite `json:"suite"`
	PublicKeyHash    []byte               `json:"public_key_hash"`
	ActivationHeight uint64               `json:"activation_height"`
	Weight           uint64               `json:"weight"`
}

type jsonSlot struct {
	Active *jsonCredential `json:"active"`
	Staged *jsonCredential `json:"staged"`
}

func toJSON(c *types.Credential) *jsonCredential {
	if c == nil {
		return nil
	}
	return &jsonCredential{
		Suite:            c.Suite,
		PublicKeyHash:    c.PublicKeyHash[:],
		ActivationHeight: c.ActivationHeight,
		Weight:           c.Weight,
	}
}

func fromJSON(c *jsonCredential) *types.Credential {
	if c == nil {
		return nil
	}
	out := &types.Credential{
		Suite:            c.Suite,
		ActivationHeight: c.ActivationHeight,
		Weight:           c.Weight,
	}
	copy(out.PublicKeyHash[:], c.PublicKeyHash)
	return out
}

// Store mediates the [active, staged] CredentialSlot persisted at
// IdentityCredentialsKey for each account.
type Store struct {
	state StateAccess
}

// NewStore returns a CredentialStore backed by state.
func NewStore(state StateAccess) *Store {
	return &Store{state: state}
}

// Load returns the account's credential slot. A missing entry is not
// an error: found is false and slot is the zero value.
func (s *Store) Load(account types.AccountId) (slot types.CredentialSlot, found bool, err error) {
	raw, ok := s.state.Get(types.IdentityCredentialsKey(account))
	if !ok {
		return types.CredentialSlot{}, false, nil
	}
	var js jsonSlot
	if err := json.Unmarshal(raw, &js); err != nil {
		return types.CredentialSlot{}, false, kernerr.Wrap(kernerr.KindState, "decode credential slot", err)
	}
	return types.CredentialSlot{Active: fromJSON(js.Active), Staged: fromJSON(js.Staged)}, true, nil
}

// Save persists the account's credential slot.
func (s *Store) Save(account types.AccountId, slot types.CredentialSlot) error {
	js := jsonSlot{Active: toJSON(slot.Active), Staged: toJSON(slot.Staged)}
	raw, err := json.Marshal(js)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode credential slot", err)
	}
	s.state.Insert(types.IdentityCredentialsKey(account), raw)
	return nil
}
