package types

import (
	"errors"
	"fmt"
)

// TotalStake is the fixed total stake distributed across all validators
// in every model configuration.
const TotalStake Stake = 1000

// Errors
var (
	ErrEmptyLedger       = errors.New("stake ledger needs at least one validator")
	ErrTooManyValidators = errors.New("too many validators")
	ErrUnknownValidator  = errors.New("unknown validator")
)

// StakeLedger maps validator identity to stake weight and computes quorum
// thresholds. Immutable after construction.
type StakeLedger struct {
	stakes []Stake
	total  Stake
}

// NewStakeLedger distributes TotalStake evenly across validatorCount
// validators using floor division. The last validator additionally
// receives the remainder, so the stakes always sum to exactly
// TotalStake. This remainder policy is deliberate: dropping it would
// make the sum depend on the validator count and shift every quorum
// boundary.
func NewStakeLedger(validatorCount int) (*StakeLedger, error) {
	if validatorCount < 1 {
		return nil, ErrEmptyLedger
	}
	if validatorCount > MaxMaskValidators {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrTooManyValidators, validatorCount, MaxMaskValidators)
	}

	per := TotalStake / Stake(validatorCount)
	stakes := make([]Stake, validatorCount)
	for i := range stakes {
		stakes[i] = per
	}
	stakes[validatorCount-1] += TotalStake % Stake(validatorCount)

	return &StakeLedger{stakes: stakes, total: TotalStake}, nil
}

// StakeOf returns the stake of one validator.
func (l *StakeLedger) StakeOf(v ValidatorID) (Stake, error) {
	if v < 0 || v >= len(l.stakes) {
		return 0, fmt.Errorf("%w: %d", ErrUnknownValidator, v)
	}
	return l.stakes[v], nil
}

// MustStakeOf is StakeOf for trusted internal IDs.
func (l *StakeLedger) MustStakeOf(v ValidatorID) Stake {
	s, err := l.StakeOf(v)
	if err != nil {
		panic(err)
	}
	return s
}

// Total returns the total stake.
func (l *StakeLedger) Total() Stake {
	return l.total
}

// Size returns the number of validators.
func (l *StakeLedger) Size() int {
	return len(l.stakes)
}

// QuorumThreshold returns the minimum stake required to meet percent of
// the total, using floor division. Every component computes thresholds
// through this method so the floor choice stays consistent; a tally of
// exactly the returned value meets the quorum.
func (l *StakeLedger) QuorumThreshold(percent uint64) Stake {
	return l.total * Stake(percent) / 100
}

// SumStake sums the stake of the given validators, ignoring unknown IDs.
func (l *StakeLedger) SumStake(ids []ValidatorID) Stake {
	var sum Stake
	for _, id := range ids {
		if id >= 0 && id < len(l.stakes) {
			sum += l.stakes[id]
		}
	}
	return sum
}
