package consensus

import (
	"encoding/json"

	"github.com/certen/kernel/internal/kernerr"
	"github.com/certen/kernel/internal/txmodel"
	"github.com/certen/kernel/internal/types"
)

// ApplyQuarantine adds offender to the quarantined-validator set,
// refusing if doing so would drop live (non-quarantined) authorities
// at or below half the current authority count — A-DMFT's liveness
// guard. A no-op if offender is already quarantined.
func ApplyQuarantine(view txmodel.View, offender types.AccountId) error {
	sets, err := loadValidatorSets(view)
	if err != nil {
		return err
	}
	authorities := sets.Current.Validators

	found := false
	for _, v := range authorities {
		if v.AccountId == offender {
			found = true
			break
		}
	}
	if !found {
		return kernerr.New(kernerr.KindInvalid, "offender is not an authority")
	}

	quarantined := loadQuarantined(view)
	if _, already := quarantined[offender]; already {
		return nil
	}

	minLive := len(authorities)/2 + 1
	liveAfter := len(authorities) - len(quarantined) - 1
	if liveAfter < minLive {
		return kernerr.New(kernerr.KindInvalid, "quarantine would jeopardize network liveness: A-DMFT requires more than half the authorities live")
	}

	ids := make([]types.AccountId, 0, len(quarantined)+1)
	for id := range quarantined {
		ids = append(ids, id)
	}
	ids = append(ids, offender)

	raw, err := json.Marshal(ids)
	if err != nil {
		return kernerr.Wrap(kernerr.KindState, "encode quarantined validators", err)
	}
	view.Insert(types.QuarantinedValidatorsKey, raw)
	return nil
}
