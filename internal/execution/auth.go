package execution

import (
	"bytes"

	"github.com/certen/kernel/internal/codec"
	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// sessionAuthSignedBytes returns the canonical encoding of auth with
// SignerSig cleared: the bytes the master credential's delegation
// signature covers.
func sessionAuthSignedBytes(auth *types.SessionAuthorization) ([]byte, error) {
	cleared := *auth
	cleared.SignerSig = nil
	return codec.MarshalCanonical(cleared)
}

// verifyStatefulAuthorization implements the credential-slot
// authorization check: the session-delegation path, the ordinary
// active/staged-credential path, and the bootstrap exception for an
// account with no credentials on record yet.
func (m *Machine) verifyStatefulAuthorization(view txmodel.View, tx *types.ChainTransaction, blockHeight uint64) error {
	account := tx.Header.AccountId
	store := credential.NewStore(view)
	slot, found, err := store.Load(account)
	if err != nil {
		return err
	}

	if auth := tx.Header.SessionAuth; auth != nil {
		if !bytes.Equal(tx.SigProof.PublicKey, auth.SessionKeyPub) {
			return kernerr.New(kernerr.KindAccountIdMismatch, "proof public key does not match session key")
		}
		if !found || slot.Active == nil {
			return kernerr.New(kernerr.KindUnauthorizedByCredentials, "no active credential to endorse a session key")
		}
		masterPubkey, ok := view.Get(types.AccountPubkeyKey(account))
		if !ok {
			return kernerr.New(kernerr.KindUnauthorizedByCredentials, "no recorded public key for the master credential")
		}
		if credential.PublicKeyHash(slot.Active.Suite, masterPubkey) != slot.Active.PublicKeyHash {
			return kernerr.New(kernerr.KindUnauthorizedByCredentials, "recorded public key does not match the active credential")
		}
		signed, err := sessionAuthSignedBytes(auth)
		if err != nil {
			return err
		}
		ok, err = credential.Verify(slot.Active.Suite, masterPubkey, signed, auth.SignerSig)
		if err != nil {
			return err
		}
		if !ok {
			return kernerr.New(kernerr.KindUnauthorizedByCredentials, "session delegation signature invalid")
		}
		if blockHeight > auth.ExpiryHeight {
			return kernerr.New(kernerr.KindExpiredKey, "session authorization expired")
		}
		return nil
	}

	pkHash := credential.PublicKeyHash(tx.SigProof.Suite, tx.SigProof.PublicKey)

	if found && slot.Active != nil && pkHash == slot.Active.PublicKeyHash {
		return nil
	}
	if found && m.acceptStagedDuringGrace && slot.Staged != nil && pkHash == slot.Staged.PublicKeyHash {
		return nil
	}
	if !found && types.AccountId(pkHash) == account {
		return nil
	}

	return kernerr.New(kernerr.KindUnauthorizedByCredentials, "no credential authorizes this transaction")
}
