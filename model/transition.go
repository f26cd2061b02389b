package model

import (
	"github.com/blockberries/votorberry/types"
)

// Apply returns the successor of s under a. The second result is false
// when the action is stale in s (consumed envelope, duplicate proposal,
// protocol delivery to a partitioned recipient, or any other no-op);
// stale actions have no successor and are not errors.
//
// Apply never mutates s. Given equal inputs it returns equal outputs,
// which is what lets the visited set prune the search.
func (m *Model) Apply(s *WorldState, a Action) (*WorldState, bool) {
	switch a.Kind {
	case ActionDeliver:
		return m.applyDeliver(s, a.Env)
	case ActionPropose:
		return m.applyPropose(s, a.Slot, a.Validator)
	case ActionTimeout:
		return m.applyTimeout(s, a.Slot, a.Validator)
	case ActionEquivocate:
		return m.applyEquivocate(s, a.Slot, a.Validator)
	case ActionConflictingVote:
		return m.applyConflictingVote(s, a.Slot, a.Validator)
	case ActionTriggerPartition:
		return m.applyTriggerPartition(s, a.Partition, a.Members)
	case ActionRecoverPartition:
		return m.applyRecoverPartition(s, a.Partition)
	case ActionAdvanceSlot:
		return m.applyAdvanceSlot(s)
	default:
		return nil, false
	}
}

func (m *Model) applyDeliver(s *WorldState, env types.Envelope) (*WorldState, bool) {
	if _, ok := s.network[env]; !ok {
		return nil, false
	}
	// A partitioned recipient cannot receive protocol traffic. The
	// envelope stays in flight, so healing the partition re-enables it.
	if !env.Msg.IsControl() && s.validators[env.Dst].partitioned {
		return nil, false
	}

	ns := s.clone()
	delete(ns.network, env)

	msg := env.Msg
	switch msg.Kind {
	case types.KindBlockProposal:
		m.onBlockProposal(ns, env.Dst, msg.Slot, msg.Hash)
	case types.KindNotarVote, types.KindConflictingVote:
		m.onNotarVote(ns, env.Dst, msg.Slot, msg.Hash, msg.Voter)
	case types.KindFinalVote:
		m.onFinalVote(ns, env.Dst, msg.Slot, msg.Voter)
	case types.KindSkipVote:
		m.onSkipVote(ns, env.Dst, msg.Slot, msg.Voter)
	case types.KindPartitionEvent:
		m.onPartitionEvent(ns, msg.Partition, msg.Members)
	case types.KindRecoveryMessage:
		ns.validators[msg.Voter].partitioned = false
	}

	ns.seal()
	return ns, true
}

// onBlockProposal casts the recipient's first-round vote if the
// one-vote-per-slot rule allows.
func (m *Model) onBlockProposal(ns *WorldState, dst types.ValidatorID, slot types.Slot, hash types.BlockHash) {
	v := &ns.validators[dst]
	if !v.responsive || v.votedInSlot(slot) {
		return
	}
	v.votesCast[NotarKey(slot, hash)] = struct{}{}
	m.broadcast(ns, types.NewNotarVote(slot, hash, dst))
}

// onNotarVote tallies a first-round vote at the recipient and runs the
// notarization and finalization checks. Conflicting votes from
// equivocators land here too; they pool like any other vote.
func (m *Model) onNotarVote(ns *WorldState, dst types.ValidatorID, slot types.Slot, hash types.BlockHash, voter types.ValidatorID) {
	v := &ns.validators[dst]
	key := NotarKey(slot, hash)
	mask := v.votePool[key] | types.NewValidatorMask(voter)
	v.votePool[key] = mask

	tally := ns.CountedStake(mask)
	if tally < m.ledger.QuorumThreshold(NotarizePercent) {
		return
	}

	m.recordCert(ns, v, key)
	if _, ok := v.notarized[slot]; !ok {
		v.notarized[slot] = hash
	}
	if _, fin := ns.finalized[slot]; fin {
		return
	}
	if tally >= m.ledger.QuorumThreshold(FastFinalizePercent) {
		ns.finalized[slot] = Finalization{Hash: hash, Round: RoundFast}
		return
	}
	// Slow path: a validator that voted for this block and is outside a
	// bad window commits to the second round, once per slot.
	if !v.votedFor(key) || v.badWindow {
		return
	}
	if _, cast := v.finalVoted[slot]; cast {
		return
	}
	v.finalVoted[slot] = struct{}{}
	m.broadcast(ns, types.NewFinalVote(slot, dst))
}

// onFinalVote tallies a second-round vote and finalizes the notarized
// block when the slow-path quorum is met.
func (m *Model) onFinalVote(ns *WorldState, dst types.ValidatorID, slot types.Slot, voter types.ValidatorID) {
	v := &ns.validators[dst]
	mask := v.finalVotePool[slot] | types.NewValidatorMask(voter)
	v.finalVotePool[slot] = mask

	tally := ns.CountedStake(mask)
	if tally < m.ledger.QuorumThreshold(SlowFinalizePercent) {
		return
	}
	hash, notarized := v.notarized[slot]
	if !notarized || v.badWindow {
		return
	}
	if _, fin := ns.finalized[slot]; fin {
		return
	}
	ns.finalized[slot] = Finalization{Hash: hash, Round: RoundSlow}
}

// onSkipVote tallies a skip vote; a skip certificate opens the
// recipient's bad window when the certified slot is still inside it.
func (m *Model) onSkipVote(ns *WorldState, dst types.ValidatorID, slot types.Slot, voter types.ValidatorID) {
	v := &ns.validators[dst]
	key := SkipKey(slot)
	mask := v.votePool[key] | types.NewValidatorMask(voter)
	v.votePool[key] = mask

	tally := ns.CountedStake(mask)
	if tally < m.ledger.QuorumThreshold(SkipPercent) {
		return
	}
	m.recordCert(ns, v, key)
	if !v.badWindow && v.currentSlot < slot+m.cfg.WindowSize {
		v.badWindow = true
		v.badWindowSince = slot
	}
}

func (m *Model) onPartitionEvent(ns *WorldState, id types.PartitionID, members types.ValidatorMask) {
	ns.partitions[id] = members
	for _, v := range members.IDs() {
		if v < len(ns.validators) {
			ns.validators[v].partitioned = true
		}
	}
}

// recordCert marks the certificate at the observing validator and, on
// first observation anywhere, appends it to the global ledger.
func (m *Model) recordCert(ns *WorldState, v *ValidatorState, key VoteKey) {
	if _, ok := v.certificates[key]; !ok {
		v.certificates[key] = struct{}{}
	}
	for _, r := range ns.certLedger {
		if r.Key() == key {
			return
		}
	}
	ns.certLedger = append(ns.certLedger, CertRecord{Slot: key.Slot, Skip: key.Skip, Hash: key.Hash})
}

func (m *Model) applyPropose(s *WorldState, slot types.Slot, proposer types.ValidatorID) (*WorldState, bool) {
	if slot < 1 || slot > m.cfg.MaxSlot {
		return nil, false
	}
	if _, ok := s.proposals[slot]; ok {
		return nil, false
	}
	ns := s.clone()
	hash := types.ProposalHash(slot, proposer)
	ns.proposals[slot] = hash
	// The proposer never receives its own proposal, so it casts no
	// first-round vote for its own block.
	msg := types.NewBlockProposal(slot, hash, proposer)
	for dst := 0; dst < m.cfg.Validators; dst++ {
		if dst == proposer {
			continue
		}
		ns.network[types.Envelope{Dst: dst, Msg: msg}] = struct{}{}
	}
	ns.seal()
	return ns, true
}

// applyTimeout casts the validator's skip vote for slot directly. A
// validator that already voted in the slot has nothing to skip, so the
// action is stale for it.
func (m *Model) applyTimeout(s *WorldState, slot types.Slot, validator types.ValidatorID) (*WorldState, bool) {
	if slot < 1 || slot > m.cfg.MaxSlot {
		return nil, false
	}
	v := &s.validators[validator]
	if !v.responsive || v.votedInSlot(slot) {
		return nil, false
	}
	ns := s.clone()
	ns.validators[validator].votesCast[SkipKey(slot)] = struct{}{}
	m.broadcast(ns, types.NewSkipVote(slot, validator))
	ns.seal()
	return ns, true
}

func (m *Model) applyEquivocate(s *WorldState, slot types.Slot, validator types.ValidatorID) (*WorldState, bool) {
	if !m.cfg.IsByzantine(validator) {
		return nil, false
	}
	hash, ok := s.proposals[slot]
	if !ok {
		return nil, false
	}
	conflict := types.ConflictHash(slot)

	ns := s.clone()
	v := &ns.validators[validator]
	changed := false
	for _, key := range []VoteKey{NotarKey(slot, hash), NotarKey(slot, conflict)} {
		if _, dup := v.votesCast[key]; !dup {
			v.votesCast[key] = struct{}{}
			changed = true
		}
	}
	if m.broadcast(ns, types.NewNotarVote(slot, hash, validator)) {
		changed = true
	}
	if m.broadcast(ns, types.NewConflictingVote(slot, conflict, validator)) {
		changed = true
	}
	if !changed {
		return nil, false
	}
	ns.seal()
	return ns, true
}

func (m *Model) applyConflictingVote(s *WorldState, slot types.Slot, validator types.ValidatorID) (*WorldState, bool) {
	if !m.cfg.IsByzantine(validator) {
		return nil, false
	}
	conflict := types.ConflictHash(slot)

	ns := s.clone()
	v := &ns.validators[validator]
	key := NotarKey(slot, conflict)
	changed := false
	if _, dup := v.votesCast[key]; !dup {
		v.votesCast[key] = struct{}{}
		changed = true
	}
	if m.broadcast(ns, types.NewConflictingVote(slot, conflict, validator)) {
		changed = true
	}
	if !changed {
		return nil, false
	}
	ns.seal()
	return ns, true
}

func (m *Model) applyTriggerPartition(s *WorldState, id types.PartitionID, members types.ValidatorMask) (*WorldState, bool) {
	if !m.cfg.EnablePartitions {
		return nil, false
	}
	if _, active := s.partitions[id]; active {
		return nil, false
	}
	ids := members.IDs()
	if len(ids) == 0 || len(ids) >= m.cfg.Validators {
		return nil, false
	}
	ns := s.clone()
	env := types.Envelope{Dst: ids[0], Msg: types.NewPartitionEvent(id, members)}
	ns.network[env] = struct{}{}
	ns.seal()
	return ns, true
}

func (m *Model) applyRecoverPartition(s *WorldState, id types.PartitionID) (*WorldState, bool) {
	members, active := s.partitions[id]
	if !active {
		return nil, false
	}
	ns := s.clone()
	delete(ns.partitions, id)
	for _, v := range members.IDs() {
		env := types.Envelope{Dst: v, Msg: types.NewRecoveryMessage(ns.currentSlot, v, id)}
		ns.network[env] = struct{}{}
	}
	ns.seal()
	return ns, true
}

func (m *Model) applyAdvanceSlot(s *WorldState) (*WorldState, bool) {
	if s.currentSlot >= m.cfg.MaxSlot {
		return nil, false
	}
	ns := s.clone()
	ns.currentSlot++
	for i := range ns.validators {
		v := &ns.validators[i]
		v.currentSlot = ns.currentSlot
		if v.badWindow && !m.skipCertInWindow(v) {
			v.badWindow = false
			v.badWindowSince = 0
		}
	}
	ns.seal()
	return ns, true
}

// skipCertInWindow reports whether any skip certificate the validator
// holds still covers its current slot, i.e. currentSlot < T + WindowSize
// for some certified slot T.
func (m *Model) skipCertInWindow(v *ValidatorState) bool {
	for k := range v.certificates {
		if k.Skip && v.currentSlot < k.Slot+m.cfg.WindowSize {
			return true
		}
	}
	return false
}

// broadcast enqueues msg to every validator, reporting whether any new
// envelope entered the network. Partition filtering happens at
// delivery, never at send.
func (m *Model) broadcast(ns *WorldState, msg types.Message) bool {
	inserted := false
	for dst := 0; dst < m.cfg.Validators; dst++ {
		env := types.Envelope{Dst: dst, Msg: msg}
		if _, ok := ns.network[env]; !ok {
			ns.network[env] = struct{}{}
			inserted = true
		}
	}
	return inserted
}
