package hostabci

import (
	"encoding/json"
	"fmt"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmted25519 "github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/certen/kernel/internal/credential"
	"github.com/certen/kernel/internal/statetree"
	"github.com/certen/kernel/internal/types"
)

// seedGenesisValidatorSet writes the ValidatorSetsV1 record Machine's
// consensus engine reads, deriving each member's AccountId as
// H(suite || pubkey) the same way internal/orchestration's tests
// derive a bootstrap account, so a genesis validator can immediately
// author transactions under its own identity.
func seedGenesisValidatorSet(tree *statetree.Tree, updates []abcitypes.ValidatorUpdate) error {
	entries := make([]types.ValidatorEntry, 0, len(updates))
	var total uint64
	for _, u := range updates {
		pub, err := validatorUpdatePubkey(u)
		if err != nil {
			return err
		}
		account := types.AccountId(credential.PublicKeyHash(types.SuiteEd25519, pub))
		weight := uint64(u.Power)
		entries = append(entries, types.ValidatorEntry{
			AccountId: account,
			Weight:    weight,
			ConsensusKey: types.ActiveKeyRecord{
				Suite:         types.SuiteEd25519,
				PublicKeyHash: credential.PublicKeyHash(types.SuiteEd25519, pub),
			},
		})
		total += weight
	}

	sets := types.ValidatorSetsV1{Current: types.ValidatorSetV1{Validators: entries, TotalWeight: total}}
	raw, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("encode genesis validator set: %w", err)
	}
	tree.Insert(types.ValidatorSetKey, raw)
	return nil
}

// validatorUpdatePubkey extracts the raw Ed25519 public key bytes from
// a CometBFT ValidatorUpdate. Only Ed25519 genesis validators are
// supported; any other key type is a configuration error.
func validatorUpdatePubkey(u abcitypes.ValidatorUpdate) ([]byte, error) {
	ed := u.PubKey.GetEd25519()
	if len(ed) != cmted25519.PubKeySize {
		return nil, fmt.Errorf("validator update pubkey is not a %d-byte ed25519 key", cmted25519.PubKeySize)
	}
	return ed, nil
}
