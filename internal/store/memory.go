package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// errClosed is returned by a Memory backend after Close.
var errClosed = errors.New("store closed")

// Memory is an in-process Backend. Each address is guarded by
// xsync.Map.Compute, so Insert and Mutate are atomic per record.
type Memory struct {
	records *xsync.Map[ir.Address, Record]
	seq     atomic.Int64
	closed  atomic.Bool
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{records: xsync.NewMap[ir.Address, Record]()}
}

// Get returns a copy of the record at addr.
func (m *Memory) Get(ctx context.Context, addr ir.Address) (Record, error) {
	if err := m.check(ctx); err != nil {
		return Record{}, err
	}
	rec, ok := m.records.Load(addr)
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Insert stores rec unless the address is occupied.
func (m *Memory) Insert(ctx context.Context, rec Record) (Record, bool, error) {
	if err := m.check(ctx); err != nil {
		return Record{}, false, err
	}
	var (
		current  Record
		inserted bool
	)
	m.records.Compute(rec.Address, func(old Record, loaded bool) (Record, xsync.ComputeOp) {
		if loaded {
			current = cloneRecord(old)
			return old, xsync.CancelOp
		}
		next := cloneRecord(rec)
		next.Seq = m.seq.Add(1)
		current = cloneRecord(next)
		inserted = true
		return next, xsync.UpdateOp
	})
	return current, inserted, nil
}

// Mutate applies fn under the address's Compute lock.
func (m *Memory) Mutate(ctx context.Context, rec Record, fn MutateFunc) (Record, error) {
	if err := m.check(ctx); err != nil {
		return Record{}, err
	}
	var (
		current Record
		fnErr   error
	)
	m.records.Compute(rec.Address, func(old Record, loaded bool) (Record, xsync.ComputeOp) {
		var curValue []byte
		if loaded {
			curValue = slices.Clone(old.Value)
		}
		value, err := fn(curValue, loaded)
		if err != nil {
			fnErr = err
			return old, xsync.CancelOp
		}
		next := old
		if !loaded {
			next = rec
			next.Seq = m.seq.Add(1)
		}
		next.Value = slices.Clone(value)
		current = cloneRecord(next)
		return next, xsync.UpdateOp
	})
	if fnErr != nil {
		return Record{}, fnErr
	}
	return current, nil
}

// List returns the records of a kind ordered by sequence, then address.
func (m *Memory) List(ctx context.Context, kind ir.Kind) ([]Record, error) {
	if err := m.check(ctx); err != nil {
		return nil, err
	}
	records := []Record{}
	m.records.Range(func(_ ir.Address, rec Record) bool {
		if rec.Kind == kind {
			records = append(records, cloneRecord(rec))
		}
		return true
	})
	slices.SortFunc(records, func(a, b Record) int {
		if a.Seq != b.Seq {
			if a.Seq < b.Seq {
				return -1
			}
			return 1
		}
		return strings.Compare(string(a.Address), string(b.Address))
	})
	return records, nil
}

// Close marks the backend closed. Later calls fail.
func (m *Memory) Close() error {
	m.closed.Store(true)
	return nil
}

func (m *Memory) check(ctx context.Context) error {
	if m.closed.Load() {
		return errClosed
	}
	return ctx.Err()
}

func cloneRecord(r Record) Record {
	r.Value = slices.Clone(r.Value)
	return r
}
