package model

import (
	"fmt"
	"sort"

	"github.com/blockberries/votorberry/types"
)

// VoteKey identifies one votable outcome in a slot: either a block hash
// or the skip marker. Skip keys carry a zero hash so the key stays a
// plain comparable value.
type VoteKey struct {
	Slot types.Slot
	Skip bool
	Hash types.BlockHash
}

// NotarKey builds the key for a notarization vote on a block.
func NotarKey(slot types.Slot, hash types.BlockHash) VoteKey {
	return VoteKey{Slot: slot, Hash: hash}
}

// SkipKey builds the key for a skip vote on a slot.
func SkipKey(slot types.Slot) VoteKey {
	return VoteKey{Slot: slot, Skip: true}
}

// Compare defines a total order over vote keys: slot, then skip flag
// (block keys before skip keys), then hash.
func (k VoteKey) Compare(o VoteKey) int {
	if k.Slot != o.Slot {
		if k.Slot < o.Slot {
			return -1
		}
		return 1
	}
	if k.Skip != o.Skip {
		if !k.Skip {
			return -1
		}
		return 1
	}
	if k.Hash != o.Hash {
		if k.Hash < o.Hash {
			return -1
		}
		return 1
	}
	return 0
}

// String renders the key for traces.
func (k VoteKey) String() string {
	if k.Skip {
		return fmt.Sprintf("skip(%d)", k.Slot)
	}
	return fmt.Sprintf("notar(%d,%d)", k.Slot, k.Hash)
}

// ValidatorState is one validator's local view. Honest validators hold
// at most one votesCast key per slot; Byzantine equivocation records
// two, which is exactly the violation the vote-uniqueness property
// detects.
type ValidatorState struct {
	votesCast     map[VoteKey]struct{}
	votePool      map[VoteKey]types.ValidatorMask
	finalVotePool map[types.Slot]types.ValidatorMask
	certificates  map[VoteKey]struct{}
	notarized     map[types.Slot]types.BlockHash
	finalVoted    map[types.Slot]struct{}

	badWindow      bool
	badWindowSince types.Slot

	byzantine   bool
	responsive  bool
	partitioned bool
	currentSlot types.Slot
}

func newValidatorState(byzantine, responsive bool) ValidatorState {
	return ValidatorState{
		votesCast:     make(map[VoteKey]struct{}),
		votePool:      make(map[VoteKey]types.ValidatorMask),
		finalVotePool: make(map[types.Slot]types.ValidatorMask),
		certificates:  make(map[VoteKey]struct{}),
		notarized:     make(map[types.Slot]types.BlockHash),
		finalVoted:    make(map[types.Slot]struct{}),
		byzantine:     byzantine,
		responsive:    responsive,
	}
}

func (v *ValidatorState) clone() ValidatorState {
	c := *v
	c.votesCast = make(map[VoteKey]struct{}, len(v.votesCast))
	for k := range v.votesCast {
		c.votesCast[k] = struct{}{}
	}
	c.votePool = make(map[VoteKey]types.ValidatorMask, len(v.votePool))
	for k, m := range v.votePool {
		c.votePool[k] = m
	}
	c.finalVotePool = make(map[types.Slot]types.ValidatorMask, len(v.finalVotePool))
	for s, m := range v.finalVotePool {
		c.finalVotePool[s] = m
	}
	c.certificates = make(map[VoteKey]struct{}, len(v.certificates))
	for k := range v.certificates {
		c.certificates[k] = struct{}{}
	}
	c.notarized = make(map[types.Slot]types.BlockHash, len(v.notarized))
	for s, h := range v.notarized {
		c.notarized[s] = h
	}
	c.finalVoted = make(map[types.Slot]struct{}, len(v.finalVoted))
	for s := range v.finalVoted {
		c.finalVoted[s] = struct{}{}
	}
	return c
}

// votedInSlot reports whether the validator has cast any vote in slot.
func (v *ValidatorState) votedInSlot(slot types.Slot) bool {
	for k := range v.votesCast {
		if k.Slot == slot {
			return true
		}
	}
	return false
}

// votedFor reports whether the validator's recorded vote in the key's
// slot is exactly key.
func (v *ValidatorState) votedFor(key VoteKey) bool {
	_, ok := v.votesCast[key]
	return ok
}

// IsByzantine reports whether the validator is adversarial.
func (v *ValidatorState) IsByzantine() bool { return v.byzantine }

// IsResponsive reports whether the validator casts votes.
func (v *ValidatorState) IsResponsive() bool { return v.responsive }

// IsPartitioned reports whether the validator is currently cut off.
func (v *ValidatorState) IsPartitioned() bool { return v.partitioned }

// CurrentSlot returns the validator's local slot counter.
func (v *ValidatorState) CurrentSlot() types.Slot { return v.currentSlot }

// BadWindow returns the bad-window flag and, when set, the slot whose
// skip certificate triggered it.
func (v *ValidatorState) BadWindow() (bool, types.Slot) {
	return v.badWindow, v.badWindowSince
}

// VoteKeys returns the validator's cast votes in canonical order.
func (v *ValidatorState) VoteKeys() []VoteKey {
	return sortedVoteKeySet(v.votesCast)
}

// CertificateKeys returns the validator's observed certificates in
// canonical order.
func (v *ValidatorState) CertificateKeys() []VoteKey {
	return sortedVoteKeySet(v.certificates)
}

// HasCertificate reports whether the validator observed a certificate
// for key.
func (v *ValidatorState) HasCertificate(key VoteKey) bool {
	_, ok := v.certificates[key]
	return ok
}

// NotarizedHash returns the first hash the validator notarized in slot.
func (v *ValidatorState) NotarizedHash(slot types.Slot) (types.BlockHash, bool) {
	h, ok := v.notarized[slot]
	return h, ok
}

// PoolVoters returns the voters the validator has tallied for key.
func (v *ValidatorState) PoolVoters(key VoteKey) types.ValidatorMask {
	return v.votePool[key]
}

// FinalVoters returns the second-round voters tallied for slot.
func (v *ValidatorState) FinalVoters(slot types.Slot) types.ValidatorMask {
	return v.finalVotePool[slot]
}

func sortedVoteKeySet(set map[VoteKey]struct{}) []VoteKey {
	keys := make([]VoteKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

func sortedPoolKeys(pool map[VoteKey]types.ValidatorMask) []VoteKey {
	keys := make([]VoteKey, 0, len(pool))
	for k := range pool {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}
