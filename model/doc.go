// Package model implements the state machine underlying the Votorberry
// verification harness: the world state, the deterministic action
// generator, and the pure transition function.
//
// # State Machine
//
// A WorldState bundles the in-flight network (a de-duplicating envelope
// set), one ValidatorState per validator, the global proposal record,
// the append-only certificate ledger, the finalization record, and the
// active partitions. States are immutable once produced: Apply deep
// copies before mutating, so states can be shared read-only across
// search workers.
//
// # Transitions
//
// Actions(state) enumerates every enabled action in a fixed
// deterministic order. Apply(state, action) returns the successor state
// or reports the action stale (already-consumed envelope, duplicate
// proposal, delivery to a partitioned recipient). Stale actions have no
// successor; they are not errors.
//
// # Protocol Summary
//
// Votor finalizes a slot along one of two paths. The fast path
// finalizes in a single round when notarization votes reach 80% of
// total stake. The slow path notarizes at 60%, then collects
// second-round finalization votes until they reach 60%. Timeouts cast
// skip votes; a skip certificate at 60% opens a bad window that
// suppresses slow-path participation for WindowSize slots.
package model
