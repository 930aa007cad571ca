// Package identity implements the identity hub: the service that
// rotates an account's signature suite (including the classical to
// post-quantum migration path) by staging a new credential behind a
// grace period, then promoting it and its backing validator consensus
// key at the height the grace period elapses.
//
// Grounded on crates/services/src/identity/mod.rs's IdentityHub:
// rotation_challenge, rotate, apply_validator_key_update, and
// on_end_block.
package identity

import (
	"encoding/binary"
	"encoding/json"

	"crypto/sha256"

	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/types"
)

// rotationChallengeDomain separates a rotation challenge from any
// other message an account's keys might be asked to sign.
const rotationChallengeDomain = "DePIN-PQ-MIGRATE/v1"

// Config parameterizes a Service.
type Config struct {
	// ChainID is folded into every rotation challenge so a proof
	// captured on one chain cannot be replayed on another.
	ChainID uint64
	// AllowedTargetSuites lists the suites a rotation may select.
	AllowedTargetSuites []types.SignatureSuite
	// AllowDowngrade permits a rotation to move to a lower-tagged
	// suite outside the classical-to-post-quantum direction.
	AllowDowngrade bool
	// GracePeriodBlocks is how long a staged credential waits before
	// it is promoted to active.
	GracePeriodBlocks uint64
}

func (c Config) suiteAllowed(suite types.SignatureSuite) bool {
	for _, s := range c.AllowedTargetSuites {
		if s == suite {
			return true
		}
	}
	return false
}

// StateAccess is the slice of state access the identity hub needs.
// txmodel.View and any Overlay already satisfy it structurally.
type StateAccess interface {
	Get(key []byte) ([]byte, bool)
	Insert(key, value []byte)
	Delete(key []byte)
}

// Service rotates account credentials and promotes them once staged.
type Service struct {
	cfg Config
}

// NewService returns a Service configured by cfg.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// RotationChallenge is the message both the outgoing and incoming
// keys must sign to authorize a rotation: H(domain || chain_id_le ||
// account_id || rotation_nonce_le).
func (s *Service) RotationChallenge(account types.AccountId, rotationNonce uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(rotationChallengeDomain))
	var chainBuf [8]byte
	binary.LittleEndian.PutUint64(chainBuf[:], s.cfg.ChainID)
	h.Write(chainBuf[:])
	h.Write(account[:])
	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], rotationNonce)
	h.Write(nonceBuf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func loadNonce(view StateAccess, account types.AccountId) uint64 {
	raw, ok := view.Get(types.IdentityRotationNonceKey(account))
	if !ok || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func saveNonce(view StateAccess, account types.AccountId, nonce uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	view.Insert(types.IdentityRotationNonceKey(account), buf[:])
}

// Rotate validates proof against the account's current credential
// slot and rotation nonce. On success it stages a new credential that
// activates GracePeriodBlocks after currentHeight and indexes the
// account for promotion at that height.
func (s *Service) Rotate(view StateAccess, account types.AccountId, proof types.RotationProof, currentHeight uint64) error {
	if !s.cfg.suiteAllowed(proof.TargetSuite) {
		return kernerr.New(kernerr.KindUnsupported, "target suite is not allowed for rotation")
	}

	store := credential.NewStore(view)
	slot, found, err := store.Load(account)
	if err != nil {
		return err
	}
	if !found || slot.Active == nil {
		return kernerr.New(kernerr.KindUnauthorizedByCredentials, "account has no active credential to rotate from")
	}
	if slot.Staged != nil {
		return kernerr.New(kernerr.KindInvalid, "a rotation is already staged for this account")
	}

	isDowngrade := proof.TargetSuite < slot.Active.Suite
	isClassicalToPQ := !slot.Active.Suite.IsPostQuantum() && proof.TargetSuite.IsPostQuantum()
	if isDowngrade && !isClassicalToPQ && !s.cfg.AllowDowngrade {
		return kernerr.New(kernerr.KindInvalid, "rotation would downgrade the account's signature suite")
	}

	if credential.PublicKeyHash(slot.Active.Suite, proof.OldPublicKey) != slot.Active.PublicKeyHash {
		return kernerr.New(kernerr.KindUnauthorizedByCredentials, "old public key does not match the active credential")
	}

	nonce := loadNonce(view, account)
	challenge := s.RotationChallenge(account, nonce)

	oldOK, err := credential.Verify(slot.Active.Suite, proof.OldPublicKey, challenge[:], proof.OldSignature)
	if err != nil {
		return err
	}
	if !oldOK {
		return kernerr.New(kernerr.KindUnauthorizedByCredentials, "old credential signature over the rotation challenge is invalid")
	}
	newOK, err := credential.Verify(proof.TargetSuite, proof.NewPublicKey, challenge[:], proof.NewSignature)
	if err != nil {
		return err
	}
	if !newOK {
		return kernerr.New(kernerr.KindUnauthorizedByCredentials, "new credential signature over the rotation challenge is invalid")
	}

	activation := currentHeight + s.cfg.GracePeriodBlocks
	slot.Staged = &types.Credential{
		Suite:            proof.TargetSuite,
		PublicKeyHash:    credential.PublicKeyHash(proof.TargetSuite, proof.NewPublicKey),
		ActivationHeight: activation,
		Weight:           slot.Active.Weight,
	}
	if err := store.Save(account, slot); err != nil {
		return err
	}
	saveNonce(view, account, nonce+1)
	return indexForPromotion(view, account, activation)
}

func indexForPromotion(view StateAccess, account types.AccountId, height uint64) error {
	key := types.IdentityPromotionIndexKey(height)
	var accounts []types.AccountId
	if raw, ok := view.Get(key); ok {
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return kernerr.Wrap(kernerr.KindState, "decode promotion index", err)
		}
	}
	for _, a := range accounts {
		if a == account {
			return nil
		}
	}
	accounts = append(accounts, account)
	raw, err := json.Marshal(accounts)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode promotion index", err)
	}
	view.Insert(key, raw)
	return nil
}

type promotedAccount struct {
	account types.AccountId
	cred    *types.Credential
}

// OnEndBlock promotes every account indexed at height, then schedules
// the resulting validator consensus-key changes into the validator
// set's next set, effective at height+1.
func (s *Service) OnEndBlock(view StateAccess, height uint64) error {
	key := types.IdentityPromotionIndexKey(height)
	raw, ok := view.Get(key)
	if !ok {
		return nil
	}
	var accounts []types.AccountId
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return kernerr.Wrap(kernerr.KindState, "decode promotion index", err)
	}

	store := credential.NewStore(view)
	var promoted []promotedAccount
	for _, account := range accounts {
		slot, found, err := store.Load(account)
		if err != nil {
			return err
		}
		if !found || !slot.PromoteIfDue(height) {
			continue
		}
		if err := store.Save(account, slot); err != nil {
			return err
		}
		promoted = append(promoted, promotedAccount{account: account, cred: slot.Active})
	}
	view.Delete(key)

	if len(promoted) == 0 {
		return nil
	}
	return applyValidatorKeyUpdates(view, promoted, height)
}

func applyValidatorKeyUpdates(view StateAccess, promoted []promotedAccount, height uint64) error {
	raw, ok := view.Get(types.ValidatorSetKey)
	if !ok {
		return nil
	}
	var sets types.ValidatorSetsV1
	if err := json.Unmarshal(raw, &sets); err != nil {
		return kernerr.Wrap(kernerr.KindState, "decode validator sets", err)
	}

	base := sets.Current
	if sets.Next != nil {
		base = *sets.Next
	}

	changed := false
	for _, p := range promoted {
		for i := range base.Validators {
			if base.Validators[i].AccountId != p.account {
				continue
			}
			base.Validators[i].ConsensusKey = types.ActiveKeyRecord{
				Suite:         p.cred.Suite,
				PublicKeyHash: p.cred.PublicKeyHash,
				SinceHeight:   height + 1,
			}
			changed = true
		}
	}
	if !changed {
		return nil
	}

	var total uint64
	for _, v := range base.Validators {
		total += v.Weight
	}
	base.TotalWeight = total
	base.EffectiveFromHeight = height + 1
	sets.Next = &base

	out, err := json.Marshal(sets)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode validator sets", err)
	}
	view.Insert(types.ValidatorSetKey, out)
	return nil
}
