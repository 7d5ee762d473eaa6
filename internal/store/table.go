package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// Table is a typed view over one record kind of a Backend.
type Table[T any] struct {
	backend Backend
	kind    ir.Kind
}

// NewTable creates a typed table for kind.
func NewTable[T any](backend Backend, kind ir.Kind) *Table[T] {
	return &Table[T]{backend: backend, kind: kind}
}

// Kind returns the record kind this table stores.
func (t *Table[T]) Kind() ir.Kind {
	return t.kind
}

// Address derives the address of key after checking it belongs to this table.
func (t *Table[T]) Address(key ir.Key) (ir.Address, error) {
	if err := t.checkKind(key); err != nil {
		return "", err
	}
	return key.Address()
}

// Create stores v under key. Fails with ErrAlreadyExists if occupied.
func (t *Table[T]) Create(ctx context.Context, key ir.Key, v T) error {
	rec, err := t.record(key, v)
	if err != nil {
		return err
	}
	_, inserted, err := t.backend.Insert(ctx, rec)
	if err != nil {
		return fmt.Errorf("create %s: %w", t.kind, err)
	}
	if !inserted {
		return fmt.Errorf("create %s %s: %w", t.kind, rec.Address, ErrAlreadyExists)
	}
	return nil
}

// CreateOrGet returns the record under key, creating it from def when absent.
// created reports which of the two happened.
func (t *Table[T]) CreateOrGet(ctx context.Context, key ir.Key, def T) (value T, created bool, err error) {
	rec, err := t.record(key, def)
	if err != nil {
		return value, false, err
	}
	current, inserted, err := t.backend.Insert(ctx, rec)
	if err != nil {
		return value, false, fmt.Errorf("create or get %s: %w", t.kind, err)
	}
	if err := unmarshalValue(current.Value, &value); err != nil {
		return value, false, fmt.Errorf("create or get %s: %w", t.kind, err)
	}
	return value, inserted, nil
}

// Get returns the record under key or ErrNotFound.
func (t *Table[T]) Get(ctx context.Context, key ir.Key) (T, error) {
	var value T
	addr, err := t.Address(key)
	if err != nil {
		return value, err
	}
	rec, err := t.backend.Get(ctx, addr)
	if err != nil {
		return value, fmt.Errorf("get %s %s: %w", t.kind, addr, err)
	}
	if err := unmarshalValue(rec.Value, &value); err != nil {
		return value, fmt.Errorf("get %s %s: %w", t.kind, addr, err)
	}
	return value, nil
}

// Update applies fn to the stored record and writes the result.
// Fails with ErrNotFound if absent; an error from fn leaves it unchanged.
func (t *Table[T]) Update(ctx context.Context, key ir.Key, fn func(*T) error) (T, error) {
	return t.Upsert(ctx, key, func(v *T, found bool) error {
		if !found {
			return ErrNotFound
		}
		return fn(v)
	})
}

// Upsert applies fn to the stored record, or to a zero value with
// found=false when absent, and writes the result in one atomic step.
func (t *Table[T]) Upsert(ctx context.Context, key ir.Key, fn func(v *T, found bool) error) (T, error) {
	var value T
	rec, err := t.record(key, nil)
	if err != nil {
		return value, err
	}
	out, err := t.backend.Mutate(ctx, rec, func(cur []byte, found bool) ([]byte, error) {
		var v T
		if found {
			if err := unmarshalValue(cur, &v); err != nil {
				return nil, err
			}
		}
		if err := fn(&v, found); err != nil {
			return nil, err
		}
		return marshalValue(v)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return value, fmt.Errorf("update %s %s: %w", t.kind, rec.Address, err)
		}
		return value, err
	}
	if err := unmarshalValue(out.Value, &value); err != nil {
		return value, fmt.Errorf("upsert %s: %w", t.kind, err)
	}
	return value, nil
}

// List returns every record of this table in insertion order.
func (t *Table[T]) List(ctx context.Context) ([]T, error) {
	recs, err := t.backend.List(ctx, t.kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.kind, err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := unmarshalValue(rec.Value, &v); err != nil {
			return nil, fmt.Errorf("list %s %s: %w", t.kind, rec.Address, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// record builds the backend record for key. A nil value skips encoding.
func (t *Table[T]) record(key ir.Key, value any) (Record, error) {
	if err := t.checkKind(key); err != nil {
		return Record{}, err
	}
	var data []byte
	if value != nil {
		var err error
		if data, err = marshalValue(value); err != nil {
			return Record{}, err
		}
	}
	return newRecord(key, data)
}

func (t *Table[T]) checkKind(key ir.Key) error {
	if key.Kind != t.kind {
		return fmt.Errorf("key kind %q does not belong to table %q", key.Kind, t.kind)
	}
	return nil
}
