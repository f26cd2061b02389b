package checker

import (
	"github.com/blockberries/votorberry/model"
	"github.com/blockberries/votorberry/types"
)

// PropertyKind distinguishes how a property is quantified over the
// reachable state space.
type PropertyKind uint8

const (
	// Invariant properties must hold in every reachable state.
	Invariant PropertyKind = iota + 1
	// Reachability properties must hold in at least one reachable
	// state.
	Reachability
)

// Property is one checkable claim about the model. Check must be pure:
// it may read the state but never mutate it.
type Property struct {
	Name  string
	Kind  PropertyKind
	Check func(m *model.Model, s *model.WorldState) bool
}

// Property names.
const (
	PropCertificateUniqueness = "certificate_uniqueness"
	PropVoteUniqueness        = "vote_uniqueness"
	PropQuorumEnforcement     = "quorum_enforcement"
	PropBadWindowConsistency  = "bad_window_consistency"
	PropBoundedFinalization   = "bounded_finalization"
	PropProgressGuarantee     = "progress_guarantee"
)

// DefaultProperties returns the standard property set for m. The
// progress guarantee is included only when the responsive stake exceeds
// the slow-path threshold; below it no finalization can be expected and
// the claim would be vacuous.
func DefaultProperties(m *model.Model) []Property {
	props := []Property{
		{Name: PropCertificateUniqueness, Kind: Invariant, Check: checkCertificateUniqueness},
		{Name: PropVoteUniqueness, Kind: Invariant, Check: checkVoteUniqueness},
		{Name: PropQuorumEnforcement, Kind: Invariant, Check: checkQuorumEnforcement},
		{Name: PropBadWindowConsistency, Kind: Invariant, Check: checkBadWindowConsistency},
		{Name: PropBoundedFinalization, Kind: Invariant, Check: checkBoundedFinalization},
	}
	if responsiveStake(m) > m.Ledger().QuorumThreshold(model.SlowFinalizePercent) {
		props = append(props, Property{
			Name: PropProgressGuarantee,
			Kind: Reachability,
			Check: func(_ *model.Model, s *model.WorldState) bool {
				for _, slot := range s.FinalizedSlots() {
					if slot >= 1 {
						return true
					}
				}
				return false
			},
		})
	}
	return props
}

func responsiveStake(m *model.Model) types.Stake {
	var sum types.Stake
	for id := 0; id < m.Config().Validators; id++ {
		if m.Config().IsResponsive(id) {
			sum += m.Ledger().MustStakeOf(id)
		}
	}
	return sum
}

// checkCertificateUniqueness fails when any slot carries block
// certificates for two different hashes, in the global ledger or in any
// single validator's observations. Skip certificates are exempt; a slot
// may legitimately hold both a block and a skip certificate.
func checkCertificateUniqueness(_ *model.Model, s *model.WorldState) bool {
	seen := make(map[types.Slot]types.BlockHash)
	for _, r := range s.CertRecords() {
		if r.Skip {
			continue
		}
		if h, ok := seen[r.Slot]; ok && h != r.Hash {
			return false
		}
		seen[r.Slot] = r.Hash
	}
	for i := 0; i < s.NumValidators(); i++ {
		local := make(map[types.Slot]types.BlockHash)
		for _, k := range s.Validator(i).CertificateKeys() {
			if k.Skip {
				continue
			}
			if h, ok := local[k.Slot]; ok && h != k.Hash {
				return false
			}
			local[k.Slot] = k.Hash
		}
	}
	return true
}

// checkVoteUniqueness fails when an honest validator has cast more than
// one vote in a slot. Byzantine validators are exempt; their double
// votes are the attack, not the defect under test.
func checkVoteUniqueness(_ *model.Model, s *model.WorldState) bool {
	for i := 0; i < s.NumValidators(); i++ {
		v := s.Validator(i)
		if v.IsByzantine() {
			continue
		}
		perSlot := make(map[types.Slot]int)
		for _, k := range v.VoteKeys() {
			perSlot[k.Slot]++
			if perSlot[k.Slot] > 1 {
				return false
			}
		}
	}
	return true
}

// checkQuorumEnforcement fails when any recorded certificate or
// finalization lacks a vote pool that backs it with quorum stake. The
// backing stake is recomputed from the pools rather than stored, so the
// check cannot be fooled by a record that was never earned.
func checkQuorumEnforcement(m *model.Model, s *model.WorldState) bool {
	ledger := m.Ledger()
	for _, r := range s.CertRecords() {
		pct := uint64(model.NotarizePercent)
		if r.Skip {
			pct = model.SkipPercent
		}
		if s.MaxPoolStake(r.Key()) < ledger.QuorumThreshold(pct) {
			return false
		}
	}
	for _, slot := range s.FinalizedSlots() {
		if slot < 1 {
			continue
		}
		f, _ := s.FinalizationFor(slot)
		switch f.Round {
		case model.RoundFast:
			if s.MaxPoolStake(model.NotarKey(slot, f.Hash)) < ledger.QuorumThreshold(model.FastFinalizePercent) {
				return false
			}
		case model.RoundSlow:
			if s.MaxFinalVoteStake(slot) < ledger.QuorumThreshold(model.SlowFinalizePercent) {
				return false
			}
		}
	}
	return true
}

// checkBadWindowConsistency fails when a validator's bad-window flag
// disagrees with its skip certificates: the flag must be set exactly
// when some certified slot T satisfies currentSlot < T + WindowSize.
func checkBadWindowConsistency(m *model.Model, s *model.WorldState) bool {
	window := m.Config().WindowSize
	for i := 0; i < s.NumValidators(); i++ {
		v := s.Validator(i)
		inWindow := false
		for _, k := range v.CertificateKeys() {
			if k.Skip && v.CurrentSlot() < k.Slot+window {
				inWindow = true
				break
			}
		}
		flag, _ := v.BadWindow()
		if flag != inWindow {
			return false
		}
	}
	return true
}

// checkBoundedFinalization fails when any finalized slot past genesis
// reports a round other than fast (1) or slow (2).
func checkBoundedFinalization(_ *model.Model, s *model.WorldState) bool {
	for _, slot := range s.FinalizedSlots() {
		if slot < 1 {
			continue
		}
		f, _ := s.FinalizationFor(slot)
		if f.Round != model.RoundFast && f.Round != model.RoundSlow {
			return false
		}
	}
	return true
}
