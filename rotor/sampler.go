package rotor

import (
	"errors"
	"fmt"
	"math/rand"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/seehuhn/mt19937"

	"github.com/blockberries/votorberry/types"
)

// Errors
var (
	ErrNilLedger      = errors.New("stake ledger is nil")
	ErrInvalidFanout  = errors.New("invalid fanout")
	ErrInvalidRetries = errors.New("invalid retry bound")
)

// DefaultMaxRetries is the extra draw budget for skipping offline or
// already-selected candidates.
const DefaultMaxRetries = 10

// samplerSalt separates relay-selection seeds from any other use of the
// same (slot, source) pair.
const samplerSalt = 0x726f746f72 // "rotor"

const sampleCacheSize = 1024

// Sampler selects relay sets by stake weight. Selections are
// deterministic in (slot, source) and memoized.
type Sampler struct {
	ledger     *types.StakeLedger
	fanout     int
	maxRetries int
	offline    types.ValidatorMask
	cache      *lru.Cache[sampleKey, []types.ValidatorID]
}

type sampleKey struct {
	Slot   types.Slot
	Source types.ValidatorID
}

// NewSampler builds a sampler over ledger. Offline marks validators the
// sampler should avoid selecting.
func NewSampler(ledger *types.StakeLedger, fanout, maxRetries int, offline types.ValidatorMask) (*Sampler, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}
	if fanout < 1 || fanout >= ledger.Size() {
		return nil, fmt.Errorf("%w: %d (validators=%d)", ErrInvalidFanout, fanout, ledger.Size())
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetries, maxRetries)
	}
	cache, err := lru.New[sampleKey, []types.ValidatorID](sampleCacheSize)
	if err != nil {
		return nil, err
	}
	return &Sampler{
		ledger:     ledger,
		fanout:     fanout,
		maxRetries: maxRetries,
		offline:    offline,
		cache:      cache,
	}, nil
}

// Fanout returns the target relay-set size.
func (s *Sampler) Fanout() int { return s.fanout }

// Sample returns the relay set for a block sourced by source in slot.
// The set excludes source, contains no duplicates, and holds at most
// fanout validators; it is shorter only when the retry budget ran out
// against offline candidates.
func (s *Sampler) Sample(slot types.Slot, source types.ValidatorID) []types.ValidatorID {
	key := sampleKey{Slot: slot, Source: source}
	if cached, ok := s.cache.Get(key); ok {
		return append([]types.ValidatorID(nil), cached...)
	}

	mt := mt19937.New()
	mt.SeedFromSlice([]uint64{slot, uint64(source), samplerSalt})
	rng := rand.New(mt)

	var (
		selected []types.ValidatorID
		chosen   types.ValidatorMask
	)
	budget := s.fanout + s.maxRetries
	for i := 0; i < budget && len(selected) < s.fanout; i++ {
		candidate := s.drawByStake(rng)
		if candidate == source || s.offline.Has(candidate) || chosen.Has(candidate) {
			continue
		}
		selected = append(selected, candidate)
		chosen |= types.NewValidatorMask(candidate)
	}

	s.cache.Add(key, append([]types.ValidatorID(nil), selected...))
	return selected
}

// drawByStake picks one validator with probability proportional to its
// stake.
func (s *Sampler) drawByStake(rng *rand.Rand) types.ValidatorID {
	target := types.Stake(rng.Int63n(int64(s.ledger.Total())))
	var cum types.Stake
	for id := 0; id < s.ledger.Size(); id++ {
		cum += s.ledger.MustStakeOf(id)
		if target < cum {
			return id
		}
	}
	return s.ledger.Size() - 1
}
