package keyring

import (
	"crypto/sha256"
	"sync"

	"github.com/roach88/ddnsquorum/internal/capability"
	"github.com/roach88/ddnsquorum/internal/ir"
)

// Keyring hands out deterministic signers keyed by human-readable aliases.
//
// The same alias always yields the same Ed25519 key, so scenarios that name
// callers "admin" or "v1" produce byte-identical traces across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type Keyring struct {
	mu      sync.Mutex
	signers map[string]*capability.Signer
	aliases map[ir.Identity]string
}

// New creates an empty keyring.
func New() *Keyring {
	return &Keyring{
		signers: map[string]*capability.Signer{},
		aliases: map[ir.Identity]string{},
	}
}

// Signer returns the signer for alias, deriving it on first use.
func (k *Keyring) Signer(alias string) *capability.Signer {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.signers[alias]; ok {
		return s
	}
	s := SignerFor(alias)
	k.signers[alias] = s
	k.aliases[s.Identity()] = alias
	return s
}

// Identity returns the identity for alias.
func (k *Keyring) Identity(alias string) ir.Identity {
	return k.Signer(alias).Identity()
}

// Alias maps an identity back to the alias that produced it.
// Unknown identities are returned unchanged.
func (k *Keyring) Alias(id ir.Identity) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if alias, ok := k.aliases[id]; ok {
		return alias
	}
	return string(id)
}

// SignerFor derives the signer for alias without caching.
func SignerFor(alias string) *capability.Signer {
	seed := sha256.Sum256([]byte("ddnsq-test/" + alias))
	s, err := capability.SignerFromSeed(seed[:])
	if err != nil {
		// A SHA-256 digest is always a valid seed.
		panic(err)
	}
	return s
}

// IdentityFor derives the identity for alias.
func IdentityFor(alias string) ir.Identity {
	return SignerFor(alias).Identity()
}

// HashOf returns a stable fake hash for label, for use as a root or
// destination in tests.
func HashOf(label string) ir.Hash {
	return ir.Hash(sha256.Sum256([]byte("ddnsq-test-hash/" + label)))
}
