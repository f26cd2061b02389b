// Package types defines the core data structures for the Votorberry
// verification model of the Alpenglow/Votor consensus protocol.
//
// # Core Types
//
// Slot, BlockHash, ValidatorID, Stake: scalar identifiers for the bounded
// model domain. Block hashes are deterministic values derived from
// (slot, proposer), so collision-freedom inside the verification bound
// is structural, not cryptographic.
//
// Message: a closed tagged variant over every protocol and adversarial
// message kind (proposals, notar/final/skip votes, conflicting votes,
// partition control). Messages are plain comparable
// values with a total order, because the network is modeled as an
// order-independent de-duplicating set.
//
// Envelope: a message addressed to a single validator. An envelope is
// created when a validator broadcasts and destroyed exactly once when a
// DeliverMessage action consumes it.
//
// StakeLedger: immutable mapping from validator to stake weight, with
// floor-division quorum thresholds. The same divisor is used everywhere a
// threshold is computed, so boundary behavior is consistent across
// components.
//
// # Immutability
//
// All types in this package are immutable values. Model state that
// evolves lives in package model, which copies on every transition so
// that world states can be shared read-only across search workers.
package types
