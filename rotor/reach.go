package rotor

import (
	"sync"

	"github.com/blockberries/votorberry/types"
)

// ReachTracker records which nodes each disseminated block has reached
// and reports whether dissemination met the fanout target.
type ReachTracker struct {
	mu      sync.Mutex
	fanout  int
	reached map[reachKey]types.ValidatorMask
}

type reachKey struct {
	Slot types.Slot
	Data types.BlockHash
}

// NewReachTracker builds a tracker with the given fanout target.
func NewReachTracker(fanout int) *ReachTracker {
	return &ReachTracker{
		fanout:  fanout,
		reached: make(map[reachKey]types.ValidatorMask),
	}
}

// Record notes that node received the block identified by (slot, data).
// Duplicate records are harmless.
func (t *ReachTracker) Record(slot types.Slot, data types.BlockHash, node types.ValidatorID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := reachKey{Slot: slot, Data: data}
	t.reached[k] |= types.NewValidatorMask(node)
}

// Reached returns the nodes that received (slot, data), in ascending
// order.
func (t *ReachTracker) Reached(slot types.Slot, data types.BlockHash) []types.ValidatorID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reached[reachKey{Slot: slot, Data: data}].IDs()
}

// Count returns how many nodes received (slot, data).
func (t *ReachTracker) Count(slot types.Slot, data types.BlockHash) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reached[reachKey{Slot: slot, Data: data}].Count()
}

// Achieved reports whether (slot, data) reached at least fanout nodes.
func (t *ReachTracker) Achieved(slot types.Slot, data types.BlockHash) bool {
	return t.Count(slot, data) >= t.fanout
}
