package types

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageCompareTotalOrder(t *testing.T) {
	msgs := []Message{
		NewSkipVote(2, 1),
		NewBlockProposal(1, ProposalHash(1, 0), 0),
		NewNotarVote(1, ProposalHash(1, 0), 2),
		NewNotarVote(1, ProposalHash(1, 0), 1),
		NewFinalVote(1, 0),
		NewBlockProposal(2, ProposalHash(2, 1), 1),
		NewConflictingVote(1, ConflictHash(1), 3),
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Compare(msgs[j]) < 0 })

	for i := 1; i < len(msgs); i++ {
		require.Negative(t, msgs[i-1].Compare(msgs[i]))
		require.Positive(t, msgs[i].Compare(msgs[i-1]))
	}
	// Proposals sort before every vote kind.
	require.Equal(t, KindBlockProposal, msgs[0].Kind)
	require.Equal(t, KindBlockProposal, msgs[1].Kind)

	m := NewNotarVote(1, 7, 2)
	require.Zero(t, m.Compare(m))
}

func TestEnvelopeIsComparableMapKey(t *testing.T) {
	a := Envelope{Dst: 1, Msg: NewNotarVote(3, ProposalHash(3, 2), 2)}
	b := Envelope{Dst: 1, Msg: NewNotarVote(3, ProposalHash(3, 2), 2)}

	set := map[Envelope]struct{}{a: {}}
	set[b] = struct{}{}
	require.Len(t, set, 1)

	c := Envelope{Dst: 2, Msg: a.Msg}
	set[c] = struct{}{}
	require.Len(t, set, 2)
	require.Negative(t, a.Compare(c))
}

func TestIsControl(t *testing.T) {
	require.True(t, NewPartitionEvent(1, NewValidatorMask(0, 1)).IsControl())
	require.True(t, NewRecoveryMessage(2, 0, 1).IsControl())
	require.False(t, NewBlockProposal(1, 1000, 0).IsControl())
	require.False(t, NewSkipVote(1, 0).IsControl())
	require.False(t, NewFinalVote(1, 0).IsControl())
}

func TestHashDerivation(t *testing.T) {
	// Hashes are injective over (slot, proposer) and the conflict hash
	// never collides with an honest proposal in the same slot.
	seen := make(map[BlockHash]struct{})
	for slot := Slot(1); slot <= 4; slot++ {
		for proposer := 0; proposer < 8; proposer++ {
			h := ProposalHash(slot, proposer)
			_, dup := seen[h]
			require.False(t, dup)
			seen[h] = struct{}{}
			require.NotEqual(t, ConflictHash(slot), h)
		}
		_, dup := seen[ConflictHash(slot)]
		require.False(t, dup)
		require.NotEqual(t, GenesisHash, ConflictHash(slot))
	}
}
