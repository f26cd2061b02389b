package model

import (
	"fmt"

	"github.com/blockberries/votorberry/types"
)

// Quorum thresholds as percentages of total stake. A tally meets a
// threshold when it is >= StakeLedger.QuorumThreshold(percent).
const (
	// NotarizePercent is the first-round stake share required to
	// notarize a block.
	NotarizePercent = 60

	// FastFinalizePercent is the first-round stake share that finalizes
	// a block immediately, skipping the second round.
	FastFinalizePercent = 80

	// SlowFinalizePercent is the second-round stake share required to
	// finalize an already-notarized block.
	SlowFinalizePercent = 60

	// SkipPercent is the stake share of skip votes that certifies a
	// slot as skipped.
	SkipPercent = 60
)

// DefaultWindowSize is the number of slots a skip certificate keeps a
// validator's bad window open.
const DefaultWindowSize = 5

// Config parameterizes one verification model. Byzantine validators
// occupy the lowest IDs; offline validators occupy the highest, so the
// two sets never overlap when ValidateBasic passes.
type Config struct {
	// Validators is the total validator count, at most 64.
	Validators int

	// Byzantine is the number of adversarial validators. They follow
	// the honest protocol when responsive but additionally enable the
	// equivocation actions.
	Byzantine int

	// Offline is the number of validators that never cast votes.
	Offline int

	// MaxSlot bounds the explored slot range. Proposals cover slots
	// 1..MaxSlot; slot 0 is the pre-finalized genesis.
	MaxSlot types.Slot

	// WindowSize is the bad-window length in slots.
	WindowSize types.Slot

	// Fanout is the rotor dissemination fanout. Zero disables relay
	// selection in the simulator.
	Fanout int

	// EnablePartitions gates the partition trigger and recovery
	// actions.
	EnablePartitions bool
}

// DefaultConfig returns a small fully-honest model that exhaustive
// search explores quickly.
func DefaultConfig() *Config {
	return &Config{
		Validators: 4,
		MaxSlot:    2,
		WindowSize: DefaultWindowSize,
	}
}

// NewConfig builds a config with faulty adversarial validators and the
// default window size.
func NewConfig(validators, faulty int, maxSlot types.Slot) *Config {
	return &Config{
		Validators: validators,
		Byzantine:  faulty,
		MaxSlot:    maxSlot,
		WindowSize: DefaultWindowSize,
	}
}

// ValidateBasic performs basic validation returning the first error
// encountered. Invalid values are rejected, never clamped.
func (cfg *Config) ValidateBasic() error {
	if cfg == nil {
		return ErrNilConfig
	}
	if cfg.Validators < 1 || cfg.Validators > types.MaxMaskValidators {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidValidatorCount, cfg.Validators, types.MaxMaskValidators)
	}
	if cfg.Byzantine < 0 || cfg.Offline < 0 {
		return fmt.Errorf("%w: byzantine=%d offline=%d", ErrInvalidFaultyCount, cfg.Byzantine, cfg.Offline)
	}
	if cfg.Byzantine+cfg.Offline > cfg.Validators {
		return fmt.Errorf("%w: byzantine=%d offline=%d validators=%d",
			ErrTooManyFaulty, cfg.Byzantine, cfg.Offline, cfg.Validators)
	}
	if cfg.MaxSlot < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxSlot, cfg.MaxSlot)
	}
	if cfg.WindowSize < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidWindowSize, cfg.WindowSize)
	}
	if cfg.Fanout < 0 || cfg.Fanout >= cfg.Validators {
		return fmt.Errorf("%w: %d (validators=%d)", ErrInvalidFanout, cfg.Fanout, cfg.Validators)
	}
	return nil
}

// IsByzantine reports whether id is an adversarial validator under this
// config.
func (cfg *Config) IsByzantine(id types.ValidatorID) bool {
	return id >= 0 && id < cfg.Byzantine
}

// IsResponsive reports whether id casts votes under this config.
func (cfg *Config) IsResponsive(id types.ValidatorID) bool {
	return id >= 0 && id < cfg.Validators-cfg.Offline
}
