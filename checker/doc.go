// Package checker drives exhaustive exploration of the consensus model
// and evaluates safety and liveness properties over every reachable
// state.
//
// RunExhaustive performs a depth-first search from the genesis state,
// deduplicating states by canonical encoding in a fingerprint-sharded
// visited set. With more than one worker the frontier is shared and the
// set of discovered states, transitions, and violated properties is
// identical to the sequential run; only example counterexample paths
// may differ.
//
// Invariant properties must hold in every reachable state; the first
// witnessing state's action path is recorded as a counterexample.
// Reachability properties must hold in at least one reachable state and
// are only concluded violated when coverage is complete.
package checker
