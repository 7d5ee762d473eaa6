package ir

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"slices"
)

// MaxVerifiers bounds the size of a VerifierSet roster.
const MaxVerifiers = 64

// Hash is a 32-byte digest or commitment root. It renders as lowercase hex.
type Hash [32]byte

// ParseHash decodes a 64-character hex string, with or without a 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) != hex.EncodedLen(len(h)) {
		return h, fmt.Errorf("hash must be %d hex chars, got %d", hex.EncodedLen(len(h)), len(s))
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return h, fmt.Errorf("parse hash: %w", err)
	}
	return h, nil
}

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether every byte is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Identity is a caller identity: the lowercase hex encoding of an Ed25519
// public key. Holding the matching private key is what proves the identity.
type Identity string

// IdentityFromPublicKey encodes an Ed25519 public key as an Identity.
func IdentityFromPublicKey(pub ed25519.PublicKey) Identity {
	return Identity(hex.EncodeToString(pub))
}

// ParseIdentity validates s and returns it as an Identity.
func ParseIdentity(s string) (Identity, error) {
	id := Identity(s)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks that the identity decodes to a well-formed public key.
func (id Identity) Validate() error {
	_, err := id.PublicKey()
	return err
}

// PublicKey decodes the identity into an Ed25519 public key.
func (id Identity) PublicKey() (ed25519.PublicKey, error) {
	if len(id) != hex.EncodedLen(ed25519.PublicKeySize) {
		return nil, fmt.Errorf("identity must be %d hex chars, got %d", hex.EncodedLen(ed25519.PublicKeySize), len(id))
	}
	raw, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("parse identity: %w", err)
	}
	if hex.EncodeToString(raw) != string(id) {
		return nil, fmt.Errorf("identity must be lowercase hex")
	}
	return ed25519.PublicKey(raw), nil
}

// Short returns an abbreviated form for logs.
func (id Identity) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// RegistryConfig is the singleton policy record of the canonical registry.
type RegistryConfig struct {
	Authority         Identity `json:"authority"`
	EpochLen          uint64   `json:"epoch_len"`
	MinReceipts       uint32   `json:"min_receipts"`
	MinStakeWeight    uint64   `json:"min_stake_weight"`
	TTLMinSeconds     uint32   `json:"ttl_min_s"`
	TTLMaxSeconds     uint32   `json:"ttl_max_s"`
	FinalizeAuthority Identity `json:"finalize_authority"`
}

// VerifierSet is the roster of verifiers allowed to submit during one epoch.
type VerifierSet struct {
	EpochID              uint64     `json:"epoch_id"`
	Admin                Identity   `json:"admin"`
	ThresholdStakeWeight uint64     `json:"threshold_stake_weight"`
	Members              []Identity `json:"members"`
}

// IsMember reports whether id is on the roster.
func (vs VerifierSet) IsMember(id Identity) bool {
	return slices.Contains(vs.Members, id)
}

// StakeSnapshot commits the network stake for one epoch. Written once.
type StakeSnapshot struct {
	EpochID       uint64   `json:"epoch_id"`
	TotalStake    uint64   `json:"total_stake"`
	UserStakeRoot Hash     `json:"user_stake_root"`
	Submitter     Identity `json:"submitter"`
	CreatedAtTick uint64   `json:"created_at_tick"`
}

// AggregateSubmission is one verifier's attestation for a name in an epoch.
type AggregateSubmission struct {
	EpochID         uint64   `json:"epoch_id"`
	NameHash        Hash     `json:"name_hash"`
	DestHash        Hash     `json:"dest_hash"`
	TTLSeconds      uint32   `json:"ttl_s"`
	ReceiptCount    uint32   `json:"receipt_count"`
	StakeWeight     uint64   `json:"stake_weight"`
	ReceiptsRoot    Hash     `json:"receipts_root"`
	Submitter       Identity `json:"submitter"`
	SubmittedAtTick uint64   `json:"submitted_at_tick"`
}

// Key returns the logical key the submission is stored under.
func (a AggregateSubmission) Key() Key {
	return AggregateKey(a.EpochID, a.NameHash, a.Submitter)
}

// CanonicalRoute is the finalized answer for a name.
// Version counts distinct (destination, TTL) values, starting at 1.
type CanonicalRoute struct {
	NameHash      Hash    `json:"name_hash"`
	DestHash      Hash    `json:"dest_hash"`
	TTLSeconds    uint32  `json:"ttl_s"`
	Version       uint64  `json:"version"`
	UpdatedAtTick uint64  `json:"updated_at_tick"`
	LastAggregate Address `json:"last_aggregate"`
}

// QuorumAuthority records the identity whose capability the registry is
// linked to trust for finalization.
type QuorumAuthority struct {
	Identity     Identity `json:"identity"`
	LinkedAtTick uint64   `json:"linked_at_tick"`
}

// ClockGenesis is the wall-clock instant tick 0 is counted from. It is written
// once, the first time a wall-clock process opens the store.
type ClockGenesis struct {
	Genesis string `json:"genesis"` // RFC 3339, nanosecond precision
}

// FinalizeRequest carries the values the quorum gate asks the registry to
// finalize, plus the address of the aggregate that justified them.
type FinalizeRequest struct {
	NameHash     Hash    `json:"name_hash"`
	DestHash     Hash    `json:"dest_hash"`
	TTLSeconds   uint32  `json:"ttl_s"`
	AggregateRef Address `json:"aggregate_ref"`
}
