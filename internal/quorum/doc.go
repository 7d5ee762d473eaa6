// Package quorum implements the epoch-scoped side of the protocol:
// verifier membership, stake snapshots, aggregate attestations and the
// quorum gate that turns a qualifying aggregate into a canonical route.
//
// Every write is a single create or update against the record store. A
// verifier may submit at most one snapshot per epoch (network-wide) and at
// most one aggregate per (epoch, name). Submissions are accepted only
// while their epoch is current, measured by the registry's epoch length
// against the service clock.
//
// The gate checks one aggregate against the registry thresholds and, if
// they hold, mints a finalize capability with its own key and hands it to
// the registry. The registry trusts the capability, not the gate process.
package quorum
