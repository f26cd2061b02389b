// Package rotor models stake-weighted block dissemination: a leader
// samples a bounded relay set for each slot instead of broadcasting to
// everyone.
//
// Sampling is deterministic: the PRNG is reseeded from (slot, source)
// for every selection, so any node can recompute any other node's relay
// set without communication. Offline nodes are avoided with a bounded
// number of retry draws; when the retries run out the sampler returns
// the shorter set rather than failing.
package rotor
