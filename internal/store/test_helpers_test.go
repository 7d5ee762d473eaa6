package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// counter is a minimal record type for backend contract tests.
type counter struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

func counterKey(epoch uint64) ir.Key {
	return ir.VerifierSetKey(epoch)
}

// createTestStore creates a new file-backed SQLite store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachBackend runs fn against a fresh SQLite store and a fresh memory
// backend so both honour the same contract.
func forEachBackend(t *testing.T, fn func(t *testing.T, b Backend)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, createTestStore(t))
	})
	t.Run("memory", func(t *testing.T) {
		m := NewMemory()
		t.Cleanup(func() { m.Close() })
		fn(t, m)
	})
}
