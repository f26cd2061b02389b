package model

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/votorberry/types"
)

func mustModel(t *testing.T, cfg *Config) *Model {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	return m
}

// flush repeatedly delivers the first deliverable envelope until the
// network reaches a fixpoint. Control messages go first so partition
// membership settles before protocol traffic; after that, kind order
// means every first-round vote lands before any second-round vote,
// like a run without message delays.
func flush(t *testing.T, m *Model, s *WorldState) *WorldState {
	t.Helper()
	for {
		progressed := false
		envs := s.Envelopes()
		sort.Slice(envs, func(i, j int) bool {
			if ci, cj := envs[i].Msg.IsControl(), envs[j].Msg.IsControl(); ci != cj {
				return ci
			}
			if envs[i].Msg.Kind != envs[j].Msg.Kind {
				return envs[i].Msg.Kind < envs[j].Msg.Kind
			}
			return envs[i].Compare(envs[j]) < 0
		})
		for _, env := range envs {
			if ns, ok := m.Apply(s, Action{Kind: ActionDeliver, Env: env}); ok {
				s = ns
				progressed = true
				break
			}
		}
		if !progressed {
			return s
		}
	}
}

func deliver(t *testing.T, m *Model, s *WorldState, env types.Envelope) *WorldState {
	t.Helper()
	ns, ok := m.Apply(s, Action{Kind: ActionDeliver, Env: env})
	require.True(t, ok, "delivery of %s should succeed", env)
	return ns
}

func TestProposeBroadcastsToOthers(t *testing.T) {
	cfg := &Config{Validators: 4, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s := m.InitialState()

	ns, ok := m.Apply(s, Action{Kind: ActionPropose, Slot: 1, Validator: 2})
	require.True(t, ok)

	hash, found := ns.Proposal(1)
	require.True(t, found)
	require.Equal(t, types.ProposalHash(1, 2), hash)

	// Every validator but the proposer receives the block.
	envs := ns.Envelopes()
	require.Len(t, envs, 3)
	var dsts []types.ValidatorID
	for _, env := range envs {
		require.Equal(t, types.KindBlockProposal, env.Msg.Kind)
		dsts = append(dsts, env.Dst)
	}
	require.Equal(t, []types.ValidatorID{0, 1, 3}, dsts)

	// One proposal per slot, regardless of proposer.
	_, ok = m.Apply(ns, Action{Kind: ActionPropose, Slot: 1, Validator: 3})
	require.False(t, ok)
	_, ok = m.Apply(ns, Action{Kind: ActionPropose, Slot: 0, Validator: 0})
	require.False(t, ok)
	_, ok = m.Apply(ns, Action{Kind: ActionPropose, Slot: 2, Validator: 0})
	require.False(t, ok)
}

func TestDeliveredEnvelopeIsConsumed(t *testing.T) {
	cfg := &Config{Validators: 4, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s, ok := m.Apply(m.InitialState(), Action{Kind: ActionPropose, Slot: 1, Validator: 0})
	require.True(t, ok)

	env := s.Envelopes()[0]
	ns := deliver(t, m, s, env)
	require.False(t, ns.HasEnvelope(env))

	_, ok = m.Apply(ns, Action{Kind: ActionDeliver, Env: env})
	require.False(t, ok)
}

func TestFastPathFinalization(t *testing.T) {
	// Four of five validators vote (the proposer does not); at 200 stake
	// each that is exactly the 800 fast-path threshold.
	cfg := &Config{Validators: 5, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s, ok := m.Apply(m.InitialState(), Action{Kind: ActionPropose, Slot: 1, Validator: 0})
	require.True(t, ok)
	s = flush(t, m, s)

	f, finalized := s.FinalizationFor(1)
	require.True(t, finalized)
	require.Equal(t, RoundFast, f.Round)
	require.Equal(t, types.ProposalHash(1, 0), f.Hash)
	require.GreaterOrEqual(t, s.MaxPoolStake(NotarKey(1, f.Hash)), m.Ledger().QuorumThreshold(FastFinalizePercent))

	var sawNotarCert bool
	for _, r := range s.CertRecords() {
		if !r.Skip && r.Slot == 1 {
			sawNotarCert = true
			require.GreaterOrEqual(t, s.MaxPoolStake(r.Key()), m.Ledger().QuorumThreshold(NotarizePercent))
		}
	}
	require.True(t, sawNotarCert)
}

func TestSlowPathFinalization(t *testing.T) {
	// 7 of 10 validators responsive and the proposer abstains: six voters
	// notarize at exactly 600, short of the 800 fast path.
	cfg := &Config{Validators: 10, Offline: 3, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s, ok := m.Apply(m.InitialState(), Action{Kind: ActionPropose, Slot: 1, Validator: 0})
	require.True(t, ok)
	s = flush(t, m, s)

	f, finalized := s.FinalizationFor(1)
	require.True(t, finalized)
	require.Equal(t, RoundSlow, f.Round)
	require.Equal(t, types.ProposalHash(1, 0), f.Hash)
	require.GreaterOrEqual(t, s.MaxFinalVoteStake(1), m.Ledger().QuorumThreshold(SlowFinalizePercent))
	require.Less(t, s.MaxPoolStake(NotarKey(1, f.Hash)), m.Ledger().QuorumThreshold(FastFinalizePercent))
}

func TestQuorumBoundaryExact(t *testing.T) {
	// 5 validators at 200 stake each; the notarization threshold of 600
	// is met at exactly three voters, not two.
	cfg := &Config{Validators: 5, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s, ok := m.Apply(m.InitialState(), Action{Kind: ActionPropose, Slot: 1, Validator: 4})
	require.True(t, ok)

	hash := types.ProposalHash(1, 4)
	key := NotarKey(1, hash)
	proposal := types.NewBlockProposal(1, hash, 4)

	for _, voter := range []types.ValidatorID{0, 1} {
		s = deliver(t, m, s, types.Envelope{Dst: voter, Msg: proposal})
		s = deliver(t, m, s, types.Envelope{Dst: 3, Msg: types.NewNotarVote(1, hash, voter)})
	}
	require.False(t, s.Validator(3).HasCertificate(key))
	_, notarized := s.Validator(3).NotarizedHash(1)
	require.False(t, notarized)

	s = deliver(t, m, s, types.Envelope{Dst: 2, Msg: proposal})
	s = deliver(t, m, s, types.Envelope{Dst: 3, Msg: types.NewNotarVote(1, hash, 2)})
	require.True(t, s.Validator(3).HasCertificate(key))
	got, notarized := s.Validator(3).NotarizedHash(1)
	require.True(t, notarized)
	require.Equal(t, hash, got)
}

func TestOneVotePerSlot(t *testing.T) {
	cfg := &Config{Validators: 4, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s := m.InitialState()

	// A timeout casts the skip vote immediately.
	s, ok := m.Apply(s, Action{Kind: ActionTimeout, Slot: 1, Validator: 1})
	require.True(t, ok)
	require.Equal(t, []VoteKey{SkipKey(1)}, s.Validator(1).VoteKeys())
	require.True(t, s.HasEnvelope(types.Envelope{Dst: 0, Msg: types.NewSkipVote(1, 1)}))

	// Having voted, the validator cannot time out again in the slot.
	_, ok = m.Apply(s, Action{Kind: ActionTimeout, Slot: 1, Validator: 1})
	require.False(t, ok)

	// A proposal arriving after the skip vote must not produce a second
	// vote in the slot.
	s, ok = m.Apply(s, Action{Kind: ActionPropose, Slot: 1, Validator: 0})
	require.True(t, ok)
	hash, _ := s.Proposal(1)
	s = deliver(t, m, s, types.Envelope{Dst: 1, Msg: types.NewBlockProposal(1, hash, 0)})

	require.Equal(t, []VoteKey{SkipKey(1)}, s.Validator(1).VoteKeys())
	for _, env := range s.Envelopes() {
		if env.Msg.Kind == types.KindNotarVote {
			require.NotEqual(t, 1, env.Msg.Voter)
		}
	}
}

func TestTimeoutNotEnabledAfterVote(t *testing.T) {
	cfg := &Config{Validators: 4, Offline: 1, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s, ok := m.Apply(m.InitialState(), Action{Kind: ActionTimeout, Slot: 1, Validator: 1})
	require.True(t, ok)

	// The offline validator never times out; validator 1 voted, so its
	// timeout is gone too.
	for _, a := range m.Actions(s) {
		if a.Kind != ActionTimeout {
			continue
		}
		require.NotEqual(t, 1, a.Validator)
		require.NotEqual(t, 3, a.Validator)
	}

	// The same gate holds at Apply.
	_, ok = m.Apply(s, Action{Kind: ActionTimeout, Slot: 1, Validator: 3})
	require.False(t, ok)
}

func TestSkipCertificateOpensAndClosesBadWindow(t *testing.T) {
	cfg := &Config{Validators: 5, MaxSlot: 4, WindowSize: 2}
	m := mustModel(t, cfg)
	s := m.InitialState()

	// Three skip voters reach the 600 threshold.
	for _, v := range []types.ValidatorID{0, 1, 2} {
		var ok bool
		s, ok = m.Apply(s, Action{Kind: ActionTimeout, Slot: 1, Validator: v})
		require.True(t, ok)
	}
	for _, v := range []types.ValidatorID{0, 1} {
		s = deliver(t, m, s, types.Envelope{Dst: 0, Msg: types.NewSkipVote(1, v)})
	}
	flag, _ := s.Validator(0).BadWindow()
	require.False(t, flag)

	s = deliver(t, m, s, types.Envelope{Dst: 0, Msg: types.NewSkipVote(1, 2)})
	require.True(t, s.Validator(0).HasCertificate(SkipKey(1)))
	flag, since := s.Validator(0).BadWindow()
	require.True(t, flag)
	require.Equal(t, types.Slot(1), since)

	// The window spans slots [1, 3): still open at 1 and 2, closed at 3.
	for _, want := range []struct {
		slot types.Slot
		open bool
	}{
		{slot: 1, open: true},
		{slot: 2, open: true},
		{slot: 3, open: false},
	} {
		var ok bool
		s, ok = m.Apply(s, Action{Kind: ActionAdvanceSlot})
		require.True(t, ok)
		require.Equal(t, want.slot, s.CurrentSlot())
		flag, _ := s.Validator(0).BadWindow()
		require.Equal(t, want.open, flag, "slot %d", want.slot)
	}
}

func TestAdvanceSlotStopsAtBound(t *testing.T) {
	cfg := &Config{Validators: 4, MaxSlot: 2, WindowSize: 5}
	m := mustModel(t, cfg)
	s := m.InitialState()

	for want := types.Slot(1); want <= 2; want++ {
		var ok bool
		s, ok = m.Apply(s, Action{Kind: ActionAdvanceSlot})
		require.True(t, ok)
		require.Equal(t, want, s.CurrentSlot())
		for i := 0; i < s.NumValidators(); i++ {
			require.Equal(t, want, s.Validator(i).CurrentSlot())
		}
	}
	_, ok := m.Apply(s, Action{Kind: ActionAdvanceSlot})
	require.False(t, ok)
}

func TestEquivocationRecordsBothVotes(t *testing.T) {
	cfg := &Config{Validators: 4, Byzantine: 1, MaxSlot: 1, WindowSize: 5}
	m := mustModel(t, cfg)
	s, ok := m.Apply(m.InitialState(), Action{Kind: ActionPropose, Slot: 1, Validator: 1})
	require.True(t, ok)

	// Equivocation requires a proposal to vote against.
	s, ok = m.Apply(s, Action{Kind: ActionEquivocate, Slot: 1, Validator: 0})
	require.True(t, ok)

	keys := s.Validator(0).VoteKeys()
	require.Equal(t, []VoteKey{
		NotarKey(1, types.ProposalHash(1, 1)),
		NotarKey(1, types.ConflictHash(1)),
	}, keys)

	var sawHonest, sawConflict bool
	for _, env := range s.Envelopes() {
		switch env.Msg.Kind {
		case types.KindNotarVote:
			if env.Msg.Voter == 0 {
				sawHonest = true
			}
		case types.KindConflictingVote:
			require.Equal(t, types.ConflictHash(1), env.Msg.Hash)
			sawConflict = true
		}
	}
	require.True(t, sawHonest)
	require.True(t, sawConflict)

	// Replaying the same equivocation changes nothing.
	_, ok = m.Apply(s, Action{Kind: ActionEquivocate, Slot: 1, Validator: 0})
	require.False(t, ok)

	// Honest validators cannot equivocate.
	_, ok = m.Apply(s, Action{Kind: ActionEquivocate, Slot: 1, Validator: 2})
	require.False(t, ok)
	_, ok = m.Apply(s, Action{Kind: ActionConflictingVote, Slot: 1, Validator: 2})
	require.False(t, ok)
}

func TestPartitionBlocksDeliveryAndHeals(t *testing.T) {
	cfg := &Config{Validators: 4, MaxSlot: 1, WindowSize: 5, EnablePartitions: true}
	m := mustModel(t, cfg)
	s := m.InitialState()

	members := types.NewValidatorMask(0, 1)
	s, ok := m.Apply(s, Action{Kind: ActionTriggerPartition, Partition: 2, Members: members})
	require.True(t, ok)
	s = deliver(t, m, s, types.Envelope{Dst: 0, Msg: types.NewPartitionEvent(2, members)})
	require.True(t, s.Validator(0).IsPartitioned())
	require.True(t, s.Validator(1).IsPartitioned())
	require.False(t, s.Validator(2).IsPartitioned())

	s, ok = m.Apply(s, Action{Kind: ActionPropose, Slot: 1, Validator: 2})
	require.True(t, ok)
	hash, _ := s.Proposal(1)

	// Protocol traffic cannot reach the partitioned side; the envelope
	// stays in flight.
	blocked := types.Envelope{Dst: 0, Msg: types.NewBlockProposal(1, hash, 2)}
	_, ok = m.Apply(s, Action{Kind: ActionDeliver, Env: blocked})
	require.False(t, ok)
	require.True(t, s.HasEnvelope(blocked))

	// With half the stake cut off, no quorum forms.
	s = flush(t, m, s)
	_, finalized := s.FinalizationFor(1)
	require.False(t, finalized)
	require.Empty(t, s.CertRecords())

	// Healing re-enables the buffered envelopes. Three of four validators
	// vote (the proposer abstains), 750 stake: enough to notarize and
	// slow-finalize, short of the fast path.
	s, ok = m.Apply(s, Action{Kind: ActionRecoverPartition, Partition: 2})
	require.True(t, ok)
	require.Empty(t, s.ActivePartitions())
	s = flush(t, m, s)
	require.False(t, s.Validator(0).IsPartitioned())
	require.False(t, s.Validator(1).IsPartitioned())

	f, finalized := s.FinalizationFor(1)
	require.True(t, finalized)
	require.Equal(t, RoundSlow, f.Round)
	require.Equal(t, hash, f.Hash)

	var sawNotarCert bool
	for _, r := range s.CertRecords() {
		if !r.Skip && r.Slot == 1 && r.Hash == hash {
			sawNotarCert = true
		}
	}
	require.True(t, sawNotarCert)
}

func TestActionGenerationIsDeterministic(t *testing.T) {
	cfg := &Config{Validators: 4, Byzantine: 1, MaxSlot: 2, WindowSize: 5, EnablePartitions: true}
	m := mustModel(t, cfg)
	s := m.InitialState()

	first := m.Actions(s)
	second := m.Actions(s)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)

	// Slot advance is enumerated last and disappears at the bound.
	require.Equal(t, ActionAdvanceSlot, first[len(first)-1].Kind)
}
