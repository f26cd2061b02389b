package model

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/minio/highwayhash"

	"github.com/blockberries/votorberry/types"
)

// fingerprintKey keys the HighwayHash state fingerprint. Fixed so
// fingerprints are stable across processes and runs.
var fingerprintKey = []byte("votorberry.worldstate.v1........")

// CertRecord is one entry in the append-only global certificate ledger.
// The ledger deliberately admits conflicting records for the same slot;
// certificate uniqueness is a checked property, not a structural one.
// The backing stake is not part of the record: it depends on delivery
// order and would split otherwise-identical states, so the quorum
// property recomputes it from the vote pools instead.
type CertRecord struct {
	Slot types.Slot
	Skip bool
	Hash types.BlockHash
}

// Key returns the vote key the record certifies.
func (r CertRecord) Key() VoteKey {
	return VoteKey{Slot: r.Slot, Skip: r.Skip, Hash: r.Hash}
}

// Finalization rounds.
const (
	// RoundGenesis marks the pre-finalized genesis block.
	RoundGenesis uint8 = 0
	// RoundFast marks single-round finalization at 80% stake.
	RoundFast uint8 = 1
	// RoundSlow marks two-round finalization at 60% + 60% stake.
	RoundSlow uint8 = 2
)

// Finalization records the finalized hash for a slot and the path that
// finalized it.
type Finalization struct {
	Hash  types.BlockHash
	Round uint8
}

// Model binds a validated config to its stake ledger and exposes the
// transition system: InitialState, Actions, Apply.
type Model struct {
	cfg    *Config
	ledger *types.StakeLedger
}

// New validates cfg and builds the model.
func New(cfg *Config) (*Model, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	ledger, err := types.NewStakeLedger(cfg.Validators)
	if err != nil {
		return nil, err
	}
	return &Model{cfg: cfg, ledger: ledger}, nil
}

// Config returns the model's config.
func (m *Model) Config() *Config { return m.cfg }

// Ledger returns the model's stake ledger.
func (m *Model) Ledger() *types.StakeLedger { return m.ledger }

// InitialState returns the genesis world: empty network, genesis
// finalized at slot 0, every validator at slot 0.
func (m *Model) InitialState() *WorldState {
	w := &WorldState{
		cfg:        m.cfg,
		ledger:     m.ledger,
		network:    make(map[types.Envelope]struct{}),
		validators: make([]ValidatorState, m.cfg.Validators),
		proposals:  make(map[types.Slot]types.BlockHash),
		finalized:  make(map[types.Slot]Finalization),
		partitions: make(map[types.PartitionID]types.ValidatorMask),
	}
	for i := range w.validators {
		w.validators[i] = newValidatorState(m.cfg.IsByzantine(i), m.cfg.IsResponsive(i))
	}
	w.finalized[0] = Finalization{Hash: types.GenesisHash, Round: RoundGenesis}
	w.seal()
	return w
}

// WorldState is one explored state of the whole system. Immutable after
// seal; Apply copies before mutating.
type WorldState struct {
	cfg    *Config
	ledger *types.StakeLedger

	network     map[types.Envelope]struct{}
	validators  []ValidatorState
	currentSlot types.Slot
	proposals   map[types.Slot]types.BlockHash
	certLedger  []CertRecord
	finalized   map[types.Slot]Finalization
	partitions  map[types.PartitionID]types.ValidatorMask

	enc []byte
	fp  uint64
}

func (w *WorldState) clone() *WorldState {
	c := &WorldState{
		cfg:         w.cfg,
		ledger:      w.ledger,
		network:     make(map[types.Envelope]struct{}, len(w.network)),
		validators:  make([]ValidatorState, len(w.validators)),
		currentSlot: w.currentSlot,
		proposals:   make(map[types.Slot]types.BlockHash, len(w.proposals)),
		certLedger:  make([]CertRecord, len(w.certLedger)),
		finalized:   make(map[types.Slot]Finalization, len(w.finalized)),
		partitions:  make(map[types.PartitionID]types.ValidatorMask, len(w.partitions)),
	}
	for e := range w.network {
		c.network[e] = struct{}{}
	}
	for i := range w.validators {
		c.validators[i] = w.validators[i].clone()
	}
	for s, h := range w.proposals {
		c.proposals[s] = h
	}
	copy(c.certLedger, w.certLedger)
	for s, f := range w.finalized {
		c.finalized[s] = f
	}
	for id, m := range w.partitions {
		c.partitions[id] = m
	}
	return c
}

// CurrentSlot returns the global slot counter.
func (w *WorldState) CurrentSlot() types.Slot { return w.currentSlot }

// NumValidators returns the validator count.
func (w *WorldState) NumValidators() int { return len(w.validators) }

// Validator returns a read-only view of validator id.
func (w *WorldState) Validator(id types.ValidatorID) *ValidatorState {
	return &w.validators[id]
}

// Envelopes returns the in-flight envelopes in canonical order.
func (w *WorldState) Envelopes() []types.Envelope {
	return sortedEnvelopes(w.network)
}

// HasEnvelope reports whether e is in flight.
func (w *WorldState) HasEnvelope(e types.Envelope) bool {
	_, ok := w.network[e]
	return ok
}

// Proposal returns the recorded proposal hash for slot.
func (w *WorldState) Proposal(slot types.Slot) (types.BlockHash, bool) {
	h, ok := w.proposals[slot]
	return h, ok
}

// CertRecords returns a copy of the global certificate ledger.
func (w *WorldState) CertRecords() []CertRecord {
	out := make([]CertRecord, len(w.certLedger))
	copy(out, w.certLedger)
	return out
}

// FinalizationFor returns the finalization record for slot.
func (w *WorldState) FinalizationFor(slot types.Slot) (Finalization, bool) {
	f, ok := w.finalized[slot]
	return f, ok
}

// FinalizedSlots returns the finalized slots in ascending order.
func (w *WorldState) FinalizedSlots() []types.Slot {
	return sortedSlotKeys(w.finalized)
}

// ActivePartitions returns the active partition IDs in ascending order.
func (w *WorldState) ActivePartitions() []types.PartitionID {
	ids := make([]types.PartitionID, 0, len(w.partitions))
	for id := range w.partitions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PartitionMembers returns the members of an active partition.
func (w *WorldState) PartitionMembers(id types.PartitionID) (types.ValidatorMask, bool) {
	m, ok := w.partitions[id]
	return m, ok
}

// CountedStake sums the stake of the voters in mask whose validators
// are not currently partitioned. Byzantine voters count; a quorum
// reached only through equivocation is a reportable violation, not a
// tallying error.
func (w *WorldState) CountedStake(mask types.ValidatorMask) types.Stake {
	var sum types.Stake
	for _, id := range mask.IDs() {
		if id < len(w.validators) && !w.validators[id].partitioned {
			sum += w.ledger.MustStakeOf(id)
		}
	}
	return sum
}

// MaxPoolStake returns the largest raw stake any single validator has
// pooled for key. Raw, not partition-filtered: pools only grow, so this
// never undercounts the tally that existed when a certificate formed.
func (w *WorldState) MaxPoolStake(key VoteKey) types.Stake {
	var max types.Stake
	for i := range w.validators {
		if s := w.ledger.SumStake(w.validators[i].votePool[key].IDs()); s > max {
			max = s
		}
	}
	return max
}

// MaxFinalVoteStake returns the largest raw second-round stake any
// single validator has pooled for slot.
func (w *WorldState) MaxFinalVoteStake(slot types.Slot) types.Stake {
	var max types.Stake
	for i := range w.validators {
		if s := w.ledger.SumStake(w.validators[i].finalVotePool[slot].IDs()); s > max {
			max = s
		}
	}
	return max
}

// Fingerprint returns the 64-bit HighwayHash of the canonical encoding.
func (w *WorldState) Fingerprint() uint64 { return w.fp }

// Encoding returns the canonical byte encoding. Two states are equal
// exactly when their encodings are equal.
func (w *WorldState) Encoding() []byte { return w.enc }

// Equal reports structural equality.
func (w *WorldState) Equal(o *WorldState) bool {
	return bytes.Equal(w.enc, o.enc)
}

// seal computes the canonical encoding and fingerprint. Called once,
// after the last mutation.
func (w *WorldState) seal() {
	var b encBuf
	b.u64(w.currentSlot)

	envs := sortedEnvelopes(w.network)
	b.u64(uint64(len(envs)))
	for _, e := range envs {
		b.u64(uint64(e.Dst))
		b.u64(uint64(e.Msg.Kind))
		b.u64(e.Msg.Slot)
		b.u64(e.Msg.Hash)
		b.u64(uint64(e.Msg.Voter))
		b.u64(e.Msg.Partition)
		b.u64(uint64(e.Msg.Members))
	}

	for i := range w.validators {
		v := &w.validators[i]
		var flags uint64
		if v.byzantine {
			flags |= 1
		}
		if v.responsive {
			flags |= 2
		}
		if v.partitioned {
			flags |= 4
		}
		if v.badWindow {
			flags |= 8
		}
		b.u64(flags)
		b.u64(v.badWindowSince)
		b.u64(v.currentSlot)

		b.voteKeys(sortedVoteKeySet(v.votesCast))
		poolKeys := sortedPoolKeys(v.votePool)
		b.u64(uint64(len(poolKeys)))
		for _, k := range poolKeys {
			b.voteKey(k)
			b.u64(uint64(v.votePool[k]))
		}
		finalSlots := sortedSlotKeys(v.finalVotePool)
		b.u64(uint64(len(finalSlots)))
		for _, s := range finalSlots {
			b.u64(s)
			b.u64(uint64(v.finalVotePool[s]))
		}
		b.voteKeys(sortedVoteKeySet(v.certificates))
		notarSlots := sortedSlotKeys(v.notarized)
		b.u64(uint64(len(notarSlots)))
		for _, s := range notarSlots {
			b.u64(s)
			b.u64(v.notarized[s])
		}
		votedSlots := sortedSlotKeys(v.finalVoted)
		b.u64(uint64(len(votedSlots)))
		for _, s := range votedSlots {
			b.u64(s)
		}
	}

	propSlots := sortedSlotKeys(w.proposals)
	b.u64(uint64(len(propSlots)))
	for _, s := range propSlots {
		b.u64(s)
		b.u64(w.proposals[s])
	}

	certs := make([]CertRecord, len(w.certLedger))
	copy(certs, w.certLedger)
	sort.Slice(certs, func(i, j int) bool {
		return certs[i].Key().Compare(certs[j].Key()) < 0
	})
	b.u64(uint64(len(certs)))
	for _, c := range certs {
		b.voteKey(c.Key())
	}

	finSlots := sortedSlotKeys(w.finalized)
	b.u64(uint64(len(finSlots)))
	for _, s := range finSlots {
		f := w.finalized[s]
		b.u64(s)
		b.u64(f.Hash)
		b.u64(uint64(f.Round))
	}

	partIDs := w.ActivePartitions()
	b.u64(uint64(len(partIDs)))
	for _, id := range partIDs {
		b.u64(id)
		b.u64(uint64(w.partitions[id]))
	}

	w.enc = b.bytes
	w.fp = highwayhash.Sum64(w.enc, fingerprintKey)
}

type encBuf struct {
	bytes []byte
}

func (b *encBuf) u64(v uint64) {
	b.bytes = binary.BigEndian.AppendUint64(b.bytes, v)
}

func (b *encBuf) voteKey(k VoteKey) {
	b.u64(k.Slot)
	if k.Skip {
		b.u64(1)
	} else {
		b.u64(0)
	}
	b.u64(k.Hash)
}

func (b *encBuf) voteKeys(keys []VoteKey) {
	b.u64(uint64(len(keys)))
	for _, k := range keys {
		b.voteKey(k)
	}
}

func sortedEnvelopes(set map[types.Envelope]struct{}) []types.Envelope {
	envs := make([]types.Envelope, 0, len(set))
	for e := range set {
		envs = append(envs, e)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Compare(envs[j]) < 0 })
	return envs
}

func sortedSlotKeys[V any](m map[types.Slot]V) []types.Slot {
	keys := make([]types.Slot, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
