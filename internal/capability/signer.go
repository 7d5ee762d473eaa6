package capability

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// Token audiences.
const (
	AudienceFinalize = "ddnsq/registry/finalize"
	AudienceAPI      = "ddnsq/api"
)

// DefaultTokenTTL bounds how long a minted token stays valid.
const DefaultTokenTTL = 30 * time.Second

// Signer holds a private key and mints capability tokens for its identity.
type Signer struct {
	priv ed25519.PrivateKey
	id   ir.Identity
	ttl  time.Duration
	now  func() time.Time
}

// NewSigner wraps an Ed25519 private key.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{
		priv: priv,
		id:   ir.IdentityFromPublicKey(pub),
		ttl:  DefaultTokenTTL,
		now:  time.Now,
	}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewSigner(priv), nil
}

// SignerFromSeed derives a signer from a 32-byte Ed25519 seed.
func SignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return NewSigner(ed25519.NewKeyFromSeed(seed)), nil
}

// LoadSigner reads a hex-encoded seed file written by WriteSeed.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key file %s: %w", path, err)
	}
	return SignerFromSeed(seed)
}

// WriteSeed stores the signer's seed as hex with owner-only permissions.
func (s *Signer) WriteSeed(path string) error {
	data := hex.EncodeToString(s.priv.Seed()) + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// WithTTL returns a copy of the signer that mints tokens valid for ttl.
func (s *Signer) WithTTL(ttl time.Duration) *Signer {
	cp := *s
	cp.ttl = ttl
	return &cp
}

// Identity returns the public identity of the signer.
func (s *Signer) Identity() ir.Identity {
	return s.id
}

// Mint creates a signed token for audience.
func (s *Signer) Mint(audience string) (string, error) {
	jti, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    string(s.id),
		Subject:   string(s.id),
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        jti.String(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.priv)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	return token, nil
}
