package model

import (
	"fmt"

	"github.com/blockberries/votorberry/types"
)

// ActionKind discriminates the Action tagged variant.
type ActionKind uint8

// Action kinds, in generation order.
const (
	ActionDeliver ActionKind = iota + 1
	ActionPropose
	ActionTimeout
	ActionEquivocate
	ActionConflictingVote
	ActionTriggerPartition
	ActionRecoverPartition
	ActionAdvanceSlot
)

// String returns the kind name for traces.
func (k ActionKind) String() string {
	switch k {
	case ActionDeliver:
		return "DeliverMessage"
	case ActionPropose:
		return "ProposeBlock"
	case ActionTimeout:
		return "TriggerTimeout"
	case ActionEquivocate:
		return "AdversaryEquivocate"
	case ActionConflictingVote:
		return "CreateConflictingVote"
	case ActionTriggerPartition:
		return "TriggerPartition"
	case ActionRecoverPartition:
		return "RecoverFromPartition"
	case ActionAdvanceSlot:
		return "AdvanceSlot"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// Action is one atomic step the search may take from a state. Only the
// fields relevant to Kind are set, so actions are plain comparable
// values and counterexample paths are cheap to copy.
type Action struct {
	Kind      ActionKind
	Env       types.Envelope // ActionDeliver
	Slot      types.Slot
	Validator types.ValidatorID
	Partition types.PartitionID   // partition actions
	Members   types.ValidatorMask // ActionTriggerPartition
}

// String renders the action for counterexample traces.
func (a Action) String() string {
	switch a.Kind {
	case ActionDeliver:
		return fmt.Sprintf("%s{%s}", a.Kind, a.Env)
	case ActionPropose:
		return fmt.Sprintf("%s{slot=%d proposer=%d}", a.Kind, a.Slot, a.Validator)
	case ActionTimeout, ActionEquivocate, ActionConflictingVote:
		return fmt.Sprintf("%s{slot=%d validator=%d}", a.Kind, a.Slot, a.Validator)
	case ActionTriggerPartition:
		return fmt.Sprintf("%s{id=%d members=%v}", a.Kind, a.Partition, a.Members.IDs())
	case ActionRecoverPartition:
		return fmt.Sprintf("%s{id=%d}", a.Kind, a.Partition)
	default:
		return a.Kind.String()
	}
}

// Actions enumerates every action enabled in s, in a fixed
// deterministic order: deliveries (canonical envelope order), proposals,
// timeouts, adversarial actions, partition actions, slot advance. The
// order fixes the DFS exploration order, which keeps sequential runs
// reproducible.
func (m *Model) Actions(s *WorldState) []Action {
	var out []Action

	for _, e := range s.Envelopes() {
		out = append(out, Action{Kind: ActionDeliver, Env: e})
	}

	first := s.currentSlot
	if first < 1 {
		first = 1
	}
	for slot := first; slot <= m.cfg.MaxSlot; slot++ {
		if _, ok := s.proposals[slot]; ok {
			continue
		}
		for v := 0; v < m.cfg.Validators; v++ {
			out = append(out, Action{Kind: ActionPropose, Slot: slot, Validator: v})
		}
	}

	// A timeout is only enabled while the validator has not yet voted in
	// the slot; its skip vote permanently disables further timeouts there.
	for v := 0; v < m.cfg.Validators; v++ {
		if !s.validators[v].responsive {
			continue
		}
		for slot := types.Slot(1); slot <= m.cfg.MaxSlot; slot++ {
			if _, fin := s.finalized[slot]; fin {
				continue
			}
			if s.validators[v].votedInSlot(slot) {
				continue
			}
			out = append(out, Action{Kind: ActionTimeout, Slot: slot, Validator: v})
		}
	}

	for v := 0; v < m.cfg.Byzantine; v++ {
		for slot := types.Slot(1); slot <= m.cfg.MaxSlot; slot++ {
			if _, ok := s.proposals[slot]; ok {
				out = append(out, Action{Kind: ActionEquivocate, Slot: slot, Validator: v})
			}
			out = append(out, Action{Kind: ActionConflictingVote, Slot: slot, Validator: v})
		}
	}

	if m.cfg.EnablePartitions {
		for size := 1; size < m.cfg.Validators; size++ {
			id := types.PartitionID(size)
			if _, active := s.partitions[id]; active {
				continue
			}
			members := prefixMask(size)
			out = append(out, Action{Kind: ActionTriggerPartition, Partition: id, Members: members})
		}
		for _, id := range s.ActivePartitions() {
			out = append(out, Action{Kind: ActionRecoverPartition, Partition: id})
		}
	}

	if s.currentSlot < m.cfg.MaxSlot {
		out = append(out, Action{Kind: ActionAdvanceSlot})
	}

	return out
}

func prefixMask(size int) types.ValidatorMask {
	ids := make([]types.ValidatorID, size)
	for i := range ids {
		ids[i] = i
	}
	return types.NewValidatorMask(ids...)
}
