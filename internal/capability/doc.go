// Package capability implements the unforgeable caller identities the
// services trust.
//
// An identity is an Ed25519 public key (ir.Identity). A caller proves it by
// presenting a short-lived EdDSA JWT whose subject is its identity and which
// is signed by the matching private key. Tokens are bound to an audience:
//
//   - AudienceFinalize: the delegated finalize capability. Only the quorum
//     gate holds the key whose identity the registry config names as
//     finalize_authority, so only the gate can mint an accepted token.
//   - AudienceAPI: ordinary request authentication for the HTTP API.
//
// Every token carries a UUIDv7 jti. A Verifier remembers recently seen ids in
// an LRU and rejects a second presentation of the same token.
package capability
