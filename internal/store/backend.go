package store

import (
	"context"
	"errors"

	"github.com/roach88/ddnsquorum/internal/ir"
)

var (
	// ErrNotFound is returned when no record occupies the address.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by create-only writes to an occupied address.
	ErrAlreadyExists = errors.New("record already exists")
)

// Record is one stored entry.
type Record struct {
	Address ir.Address
	Kind    ir.Kind
	Key     string // canonical JSON of the logical key fields
	Value   []byte
	Seq     int64 // insertion order, assigned by the backend
}

// MutateFunc computes the next value of a record. found is false when the
// address is empty, in which case cur is nil. Returning an error aborts the
// mutation with no change.
type MutateFunc func(cur []byte, found bool) ([]byte, error)

// Backend is the raw record storage contract shared by SQLite and memory.
type Backend interface {
	// Get returns the record at addr or ErrNotFound.
	Get(ctx context.Context, addr ir.Address) (Record, error)

	// Insert stores rec if its address is empty. Otherwise it returns the
	// existing record and inserted=false. The check and the write are atomic.
	Insert(ctx context.Context, rec Record) (current Record, inserted bool, err error)

	// Mutate atomically reads the record at rec.Address, applies fn and
	// writes the result, creating the record (with rec's kind and key) when
	// it did not exist.
	Mutate(ctx context.Context, rec Record, fn MutateFunc) (Record, error)

	// List returns every record of a kind ordered by insertion sequence,
	// then address.
	List(ctx context.Context, kind ir.Kind) ([]Record, error)

	// Close releases the backend's resources.
	Close() error
}

// newRecord derives the address and canonical key of k.
func newRecord(k ir.Key, value []byte) (Record, error) {
	addr, err := k.Address()
	if err != nil {
		return Record{}, err
	}
	canonical, err := k.Canonical()
	if err != nil {
		return Record{}, err
	}
	return Record{Address: addr, Kind: k.Kind, Key: string(canonical), Value: value}, nil
}
