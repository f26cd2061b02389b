package types

import "fmt"

// Slot is a discrete round index in which one block may be proposed and
// finalized.
type Slot = uint64

// BlockHash identifies a block inside the bounded model domain. Hashes
// are derived deterministically from (slot, proposer); they are not
// cryptographic.
type BlockHash = uint64

// ValidatorID indexes a validator in the model's validator sequence.
type ValidatorID = int

// Stake is a non-negative stake weight.
type Stake = uint64

// PartitionID names a network partition instance.
type PartitionID = uint64

// GenesisHash is the hash of the pre-finalized genesis block at slot 0.
const GenesisHash BlockHash = 0

// hashSlotFactor spreads slots apart in the hash domain so that
// (slot, proposer) pairs never collide within the verification bound.
const hashSlotFactor = 1000

// conflictOffset is reserved for adversarial conflicting hashes; honest
// proposer indices stay below it.
const conflictOffset = 999

// ProposalHash derives the deterministic block hash for a proposal.
func ProposalHash(slot Slot, proposer ValidatorID) BlockHash {
	return slot*hashSlotFactor + BlockHash(proposer)
}

// ConflictHash derives the hash a Byzantine validator uses when
// equivocating in a slot. It never collides with any honest proposal
// hash for the same slot.
func ConflictHash(slot Slot) BlockHash {
	return slot*hashSlotFactor + conflictOffset
}

// MaxMaskValidators bounds the validator count representable in a
// ValidatorMask. Verification models stay far below this.
const MaxMaskValidators = 64

// ValidatorMask is a compact validator set. It keeps Message a plain
// comparable value, which the order-independent network set requires.
type ValidatorMask uint64

// NewValidatorMask builds a mask from validator IDs. IDs outside
// [0, MaxMaskValidators) panic: model construction validates counts, so
// an out-of-range ID is a programming error.
func NewValidatorMask(ids ...ValidatorID) ValidatorMask {
	var m ValidatorMask
	for _, id := range ids {
		if id < 0 || id >= MaxMaskValidators {
			panic(fmt.Sprintf("validator id %d out of mask range", id))
		}
		m |= 1 << uint(id)
	}
	return m
}

// Has reports whether the mask contains id.
func (m ValidatorMask) Has(id ValidatorID) bool {
	if id < 0 || id >= MaxMaskValidators {
		return false
	}
	return m&(1<<uint(id)) != 0
}

// Count returns the number of validators in the mask.
func (m ValidatorMask) Count() int {
	n := 0
	for m != 0 {
		m &= m - 1
		n++
	}
	return n
}

// IDs returns the members of the mask in ascending order.
func (m ValidatorMask) IDs() []ValidatorID {
	ids := make([]ValidatorID, 0, m.Count())
	for id := 0; id < MaxMaskValidators; id++ {
		if m.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
