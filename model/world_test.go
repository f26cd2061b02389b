package model

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockberries/votorberry/types"
)

func TestInitialState(t *testing.T) {
	m := mustModel(t, DefaultConfig())
	s := m.InitialState()

	require.Equal(t, types.Slot(0), s.CurrentSlot())
	require.Empty(t, s.Envelopes())
	require.Equal(t, DefaultConfig().Validators, s.NumValidators())

	f, ok := s.FinalizationFor(0)
	require.True(t, ok)
	require.Equal(t, types.GenesisHash, f.Hash)
	require.Equal(t, RoundGenesis, f.Round)
	require.Equal(t, []types.Slot{0}, s.FinalizedSlots())

	for i := 0; i < s.NumValidators(); i++ {
		v := s.Validator(i)
		require.Empty(t, v.VoteKeys())
		require.Empty(t, v.CertificateKeys())
		flag, _ := v.BadWindow()
		require.False(t, flag)
	}
}

func TestInitialStateDeterministic(t *testing.T) {
	a := mustModel(t, DefaultConfig()).InitialState()
	b := mustModel(t, DefaultConfig()).InitialState()
	require.True(t, a.Equal(b))
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.Equal(t, a.Encoding(), b.Encoding())
}

func TestFingerprintDistinguishesStates(t *testing.T) {
	m := mustModel(t, DefaultConfig())
	s := m.InitialState()

	ns, ok := m.Apply(s, Action{Kind: ActionPropose, Slot: 1, Validator: 0})
	require.True(t, ok)
	require.False(t, s.Equal(ns))
	require.NotEqual(t, s.Fingerprint(), ns.Fingerprint())
}

func TestStateIdentityIndependentOfDeliveryOrder(t *testing.T) {
	// Two runs that deliver the same votes in opposite orders must land
	// on the same state, certificate and all.
	cfg := &Config{Validators: 5, MaxSlot: 1, WindowSize: 5}
	hash := types.ProposalHash(1, 4)

	run := func(order []types.ValidatorID) *WorldState {
		m := mustModel(t, cfg)
		s, ok := m.Apply(m.InitialState(), Action{Kind: ActionPropose, Slot: 1, Validator: 4})
		require.True(t, ok)
		for _, voter := range order {
			s = deliver(t, m, s, types.Envelope{Dst: voter, Msg: types.NewBlockProposal(1, hash, 4)})
		}
		for _, voter := range order {
			s = deliver(t, m, s, types.Envelope{Dst: 3, Msg: types.NewNotarVote(1, hash, voter)})
		}
		return s
	}

	a := run([]types.ValidatorID{0, 1, 2})
	b := run([]types.ValidatorID{2, 1, 0})
	require.True(t, a.Validator(3).HasCertificate(NotarKey(1, hash)))
	require.True(t, a.Equal(b))
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestApplyNeverMutatesInput(t *testing.T) {
	m := mustModel(t, DefaultConfig())
	s := m.InitialState()
	before := append([]byte(nil), s.Encoding()...)

	ns, ok := m.Apply(s, Action{Kind: ActionPropose, Slot: 1, Validator: 0})
	require.True(t, ok)
	for _, env := range ns.Envelopes() {
		_, ok := m.Apply(ns, Action{Kind: ActionDeliver, Env: env})
		require.True(t, ok)
	}

	require.Equal(t, before, s.Encoding())
	require.Empty(t, s.Envelopes())
}
