package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind names a record type. It is part of the address domain separator, so
// keys of different kinds can never derive the same address.
type Kind string

const (
	KindRegistryConfig  Kind = "registry_config"
	KindVerifierSet     Kind = "verifier_set"
	KindStakeSnapshot   Kind = "stake_snapshot"
	KindAggregate       Kind = "aggregate"
	KindCanonicalRoute  Kind = "canonical_route"
	KindQuorumAuthority Kind = "quorum_authority"
	KindClockGenesis    Kind = "clock_genesis"
)

// Address is the storage address of a record: lowercase hex SHA-256.
type Address string

// Key is the logical key of a record: its kind plus the domain fields that
// identify it.
type Key struct {
	Kind   Kind
	Fields map[string]any
}

// domain returns the versioned domain prefix for a kind.
// Version suffix enables future algorithm migration.
func (k Kind) domain() string {
	return "ddnsq/" + string(k) + "/v1"
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Canonical returns the canonical JSON encoding of the key fields.
func (k Key) Canonical() ([]byte, error) {
	fields := k.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	data, err := MarshalCanonical(fields)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", k.Kind, err)
	}
	return data, nil
}

// Address derives the storage address of the key.
// Re-deriving the same key always yields the same address.
func (k Key) Address() (Address, error) {
	data, err := k.Canonical()
	if err != nil {
		return "", err
	}
	return Address(hashWithDomain(k.Kind.domain(), data)), nil
}

// MustAddress is like Address but panics on error.
// Keys built by the constructors below always encode.
func (k Key) MustAddress() Address {
	addr, err := k.Address()
	if err != nil {
		panic(err)
	}
	return addr
}

// RegistryConfigKey is the singleton key of the registry config.
func RegistryConfigKey() Key {
	return Key{Kind: KindRegistryConfig}
}

// QuorumAuthorityKey is the singleton key of the quorum authority link.
func QuorumAuthorityKey() Key {
	return Key{Kind: KindQuorumAuthority}
}

// ClockGenesisKey is the singleton key of the anchored clock genesis.
func ClockGenesisKey() Key {
	return Key{Kind: KindClockGenesis}
}

// VerifierSetKey keys a verifier set by epoch.
func VerifierSetKey(epochID uint64) Key {
	return Key{Kind: KindVerifierSet, Fields: map[string]any{"epoch_id": epochID}}
}

// StakeSnapshotKey keys a stake snapshot by epoch.
func StakeSnapshotKey(epochID uint64) Key {
	return Key{Kind: KindStakeSnapshot, Fields: map[string]any{"epoch_id": epochID}}
}

// AggregateKey keys an aggregate by (epoch, name, submitter).
func AggregateKey(epochID uint64, nameHash Hash, submitter Identity) Key {
	return Key{Kind: KindAggregate, Fields: map[string]any{
		"epoch_id":  epochID,
		"name_hash": nameHash,
		"submitter": string(submitter),
	}}
}

// CanonicalRouteKey keys a canonical route by name.
func CanonicalRouteKey(nameHash Hash) Key {
	return Key{Kind: KindCanonicalRoute, Fields: map[string]any{"name_hash": nameHash}}
}
