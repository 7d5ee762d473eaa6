package capability

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// DefaultReplayWindow is the number of token ids a Verifier remembers.
const DefaultReplayWindow = 4096

var (
	// ErrInvalidToken covers malformed, forged, expired or misaddressed tokens.
	ErrInvalidToken = errors.New("invalid capability token")

	// ErrReplayed is returned when a token id has already been presented.
	ErrReplayed = errors.New("capability token replayed")

	// ErrReplayWindowFull is returned when remembering one more token id
	// would evict an id whose token has not yet expired.
	ErrReplayWindowFull = errors.New("capability replay window full")
)

// Verifier checks capability tokens and resolves them to identities.
//
// Each accepted token id is remembered until its token expires. The cache
// holds at most window ids and only ever evicts ids whose tokens are dead;
// when every slot is still live, new tokens are refused until one expires.
type Verifier struct {
	mu     sync.Mutex
	seen   *lru.Cache // jti -> time after which the token can no longer verify
	window int
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier remembering up to window live token ids.
func NewVerifier(window int) (*Verifier, error) {
	if window <= 0 {
		window = DefaultReplayWindow
	}
	seen, err := lru.New(window)
	if err != nil {
		return nil, fmt.Errorf("replay cache: %w", err)
	}
	return &Verifier{seen: seen, window: window, leeway: 5 * time.Second, now: time.Now}, nil
}

// Verify validates token for audience and returns the identity it proves.
// The signature is checked against the key encoded in the subject, so a
// token can only be minted by the holder of that identity's private key.
func (v *Verifier) Verify(token, audience string) (ir.Identity, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFromSubject,
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.ID == "" {
		return "", fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	if err := v.remember(claims.ID, claims.ExpiresAt.Time.Add(v.leeway)); err != nil {
		return "", err
	}
	return ir.Identity(claims.Subject), nil
}

// remember records jti until deadline. Ids are only added, never touched
// again, so the LRU order is insertion order and the oldest entry is the
// one the next Add would evict.
func (v *Verifier) remember(jti string, deadline time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.seen.Contains(jti) {
		return fmt.Errorf("%w: jti %s", ErrReplayed, jti)
	}
	if v.seen.Len() >= v.window {
		if _, oldest, ok := v.seen.GetOldest(); ok && v.now().Before(oldest.(time.Time)) {
			return ErrReplayWindowFull
		}
	}
	v.seen.Add(jti, deadline)
	return nil
}

// keyFromSubject resolves the verification key from the (not yet verified)
// subject claim. A wrong subject simply yields a key the signature fails on.
func keyFromSubject(t *jwt.Token) (any, error) {
	sub, err := t.Claims.GetSubject()
	if err != nil {
		return nil, err
	}
	id, err := ir.ParseIdentity(sub)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	return id.PublicKey()
}
