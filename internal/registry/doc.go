// Package registry holds the canonical route for every name.
//
// The registry owns two record kinds: the singleton RegistryConfig, which
// carries the admin identity and the policy thresholds the quorum gate
// enforces, and one CanonicalRoute per name hash. Routes are written only
// through FinalizeRoute, which accepts a capability token minted by the
// configured finalize authority and nothing else.
//
// A route's version counts distinct (destination, TTL) values. Finalizing
// the same values again refreshes updated_at_tick and last_aggregate but
// leaves the version alone; any change bumps it by exactly one. The whole
// read-compare-write runs inside one store upsert, so concurrent finalizes
// of the same name serialize and never skip or double count a version.
package registry
