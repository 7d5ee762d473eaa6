package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashWithDomain_Separator(t *testing.T) {
	// "ab" + "c" and "a" + "bc" must not collide.
	h1 := hashWithDomain("ab", []byte("c"))
	h2 := hashWithDomain("a", []byte("bc"))
	assert.NotEqual(t, h1, h2)

	want := sha256.Sum256([]byte("ab\x00c"))
	assert.Equal(t, hex.EncodeToString(want[:]), h1)
}

func TestKeyAddress_Deterministic(t *testing.T) {
	var name Hash
	name[0] = 0xab
	id := Identity("11" + repeat("00", 31))

	a1, err := AggregateKey(5, name, id).Address()
	require.NoError(t, err)
	a2, err := AggregateKey(5, name, id).Address()
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Len(t, string(a1), 64)
}

func TestKeyAddress_DistinctKeys(t *testing.T) {
	var name Hash
	name[0] = 0x01
	alice := Identity("aa" + repeat("00", 31))
	bob := Identity("bb" + repeat("00", 31))

	seen := map[Address]string{}
	keys := map[string]Key{
		"vs-5":          VerifierSetKey(5),
		"vs-6":          VerifierSetKey(6),
		"snap-5":        StakeSnapshotKey(5),
		"agg-5-alice":   AggregateKey(5, name, alice),
		"agg-5-bob":     AggregateKey(5, name, bob),
		"agg-6-alice":   AggregateKey(6, name, alice),
		"route":         CanonicalRouteKey(name),
		"config":        RegistryConfigKey(),
		"authority":     QuorumAuthorityKey(),
		"route-zero":    CanonicalRouteKey(Hash{}),
		"agg-5-zero-nm": AggregateKey(5, Hash{}, alice),
	}
	for label, k := range keys {
		addr := k.MustAddress()
		if prev, ok := seen[addr]; ok {
			t.Fatalf("address collision between %s and %s", prev, label)
		}
		seen[addr] = label
	}
}

func TestKeyAddress_KindSeparatesSameFields(t *testing.T) {
	// Verifier set and stake snapshot share the same field tuple.
	assert.NotEqual(t, VerifierSetKey(7).MustAddress(), StakeSnapshotKey(7).MustAddress())
}

func TestKeyCanonical_FieldOrder(t *testing.T) {
	var name Hash
	data, err := AggregateKey(3, name, Identity("x")).Canonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"epoch_id":3,"name_hash":"`+name.String()+`","submitter":"x"}`,
		string(data))
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash("0x" + repeat("0f", 32))
	require.NoError(t, err)
	assert.Equal(t, byte(0x0f), h[31])

	_, err = ParseHash("abc")
	assert.Error(t, err)

	_, err = ParseHash(repeat("zz", 32))
	assert.Error(t, err)
}

func TestHash_TextRoundTrip(t *testing.T) {
	var h Hash
	h[3] = 0x7f
	text, err := h.MarshalText()
	require.NoError(t, err)

	var back Hash
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, h, back)
	assert.False(t, back.IsZero())
	assert.True(t, Hash{}.IsZero())
}

func TestIdentity_Validate(t *testing.T) {
	valid := Identity(repeat("ab", 32))
	assert.NoError(t, valid.Validate())

	assert.Error(t, Identity("short").Validate())
	assert.Error(t, Identity(repeat("AB", 32)).Validate(), "uppercase rejected")
	assert.Error(t, Identity(repeat("zz", 32)).Validate())

	_, err := ParseIdentity(string(valid))
	assert.NoError(t, err)
	assert.Equal(t, "abababababab", valid.Short())
}

func TestVerifierSet_IsMember(t *testing.T) {
	vs := VerifierSet{Members: []Identity{"a", "b"}}
	assert.True(t, vs.IsMember("b"))
	assert.False(t, vs.IsMember("c"))
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
