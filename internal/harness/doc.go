// Package harness runs protocol scenarios end to end.
//
// A scenario drives the registry and quorum services against a fresh
// in-memory SQLite store, records every operation and its outcome as a
// trace, and checks expectations and assertions against that trace and the
// final store state. Traces serialize to canonical JSON for golden-file
// comparison.
//
// # Scenario Format
//
//	name: finalize_happy_path
//	description: "A verifier's aggregate becomes the canonical route"
//	start_tick: 500
//	setup:
//	  - op: init_config
//	    caller: admin
//	    args: { epoch_len: 100, min_receipts: 10, min_stake_weight: 1000,
//	            ttl_min_s: 60, ttl_max_s: 86400, finalize_authority: gate }
//	flow:
//	  - op: submit_aggregate
//	    caller: v1
//	    advance: 3
//	    args: { epoch_id: 5, name: example.dns, dest: 10.0.0.1, ttl_s: 300,
//	            receipt_count: 12, stake_weight: 1200, receipts_root: r1 }
//	    expect:
//	      case: Success
//	assertions:
//	  - type: final_state
//	    table: canonical_route
//	    where: { name: example.dns }
//	    expect: { version: 1 }
//
// Callers, members, submitters and authorities are aliases; each alias maps
// to a deterministic Ed25519 key. Names and destinations are plain strings
// hashed the way clients hash them. Roots are labels hashed into stable fake
// commitments. Traces render hashes and identities back to these labels so
// golden files stay readable.
//
// # Operations
//
//   - init_config, update_config
//   - init_quorum_authority
//   - init_verifier_set, update_verifier_set
//   - submit_stake_snapshot
//   - submit_aggregate
//   - finalize_if_quorum (runs the gate with the scenario's gate key)
//   - finalize_route (calls the registry directly with a token minted by caller)
//
// # Assertion Types
//
//   - trace_contains: an operation appears with matching args
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - final_state: a stored record matches expected fields
package harness
