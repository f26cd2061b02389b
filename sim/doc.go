// Package sim runs one bounded pseudo-random execution of the
// consensus model instead of exploring all of them.
//
// Time is logical: the scheduler advances in ticks, and every envelope
// becomes deliverable on the tick after its creation. Within a tick the
// delivery order is shuffled by the seeded PRNG; because the whole tick
// flushes before the next one starts, the outcome for a given config
// and seed is deterministic regardless of that order. There are no
// wall-clock sleeps anywhere.
//
// When the config sets a fanout, the scheduler also exercises the rotor
// sub-model: it computes the relay set for each proposal and tracks how
// far the block actually spread.
package sim
