package ir

import (
	"crypto/sha256"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName trims, lowercases and NFC normalizes a domain name and strips
// any trailing dots, so "Example.DNS." and "example.dns" hash identically.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimRight(n, ".")
	return norm.NFC.String(n)
}

// NameHash returns the SHA-256 of the normalized name.
func NameHash(name string) (Hash, error) {
	n := NormalizeName(name)
	if n == "" {
		return Hash{}, NewInvalidArgument("name is empty")
	}
	return sha256.Sum256([]byte(n)), nil
}

// DestHash returns the SHA-256 of a destination string (an address, CID or
// target URI). Destinations are case sensitive and only trimmed.
func DestHash(dest string) (Hash, error) {
	d := strings.TrimSpace(dest)
	if d == "" {
		return Hash{}, NewInvalidArgument("destination is empty")
	}
	return sha256.Sum256([]byte(d)), nil
}

// ParseName accepts a 0x-prefixed name hash or a plain name, which it
// hashes. A bare 64-hex string is a plain name.
func ParseName(s string) (Hash, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		h, err := ParseHash(s)
		if err != nil {
			return h, NewInvalidArgument("name hash: %v", err)
		}
		return h, nil
	}
	return NameHash(s)
}
