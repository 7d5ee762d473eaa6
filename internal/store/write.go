package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// Insert stores rec unless its address is occupied.
// Uses ON CONFLICT(address) DO NOTHING; when no row was inserted the
// existing record is read back in the same transaction.
func (s *Store) Insert(ctx context.Context, rec Record) (Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, false, fmt.Errorf("insert: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO records (address, kind, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO NOTHING
	`, string(rec.Address), string(rec.Kind), rec.Key, rec.Value)
	if err != nil {
		return Record{}, false, fmt.Errorf("insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return Record{}, false, fmt.Errorf("insert: rows affected: %w", err)
	}

	var current Record
	inserted := rowsAffected > 0
	if inserted {
		seq, err := result.LastInsertId()
		if err != nil {
			return Record{}, false, fmt.Errorf("insert: last insert id: %w", err)
		}
		current = rec
		current.Seq = seq
	} else {
		current, err = getTx(ctx, tx, rec.Address)
		if err != nil {
			return Record{}, false, fmt.Errorf("insert: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Record{}, false, fmt.Errorf("insert: commit: %w", err)
	}

	return current, inserted, nil
}

// Mutate applies fn to the record at rec.Address inside one transaction.
func (s *Store) Mutate(ctx context.Context, rec Record, fn MutateFunc) (Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, fmt.Errorf("mutate: begin tx: %w", err)
	}
	defer tx.Rollback()

	cur, err := getTx(ctx, tx, rec.Address)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, fmt.Errorf("mutate: select: %w", err)
	}

	var curValue []byte
	if found {
		curValue = cur.Value
	}
	next, err := fn(curValue, found)
	if err != nil {
		return Record{}, err
	}

	if found {
		_, err = tx.ExecContext(ctx, `
			UPDATE records SET value = ?, revision = revision + 1
			WHERE address = ?
		`, next, string(rec.Address))
		if err != nil {
			return Record{}, fmt.Errorf("mutate: update: %w", err)
		}
		cur.Value = next
	} else {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO records (address, kind, key, value)
			VALUES (?, ?, ?, ?)
		`, string(rec.Address), string(rec.Kind), rec.Key, next)
		if err != nil {
			return Record{}, fmt.Errorf("mutate: insert: %w", err)
		}
		seq, err := result.LastInsertId()
		if err != nil {
			return Record{}, fmt.Errorf("mutate: last insert id: %w", err)
		}
		cur = rec
		cur.Value = next
		cur.Seq = seq
	}

	if err := tx.Commit(); err != nil {
		return Record{}, fmt.Errorf("mutate: commit: %w", err)
	}
	return cur, nil
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getTx(ctx context.Context, q queryRower, addr ir.Address) (Record, error) {
	row := q.QueryRowContext(ctx, `
		SELECT seq, address, kind, key, value
		FROM records
		WHERE address = ?
	`, string(addr))
	return scanRecord(row)
}
