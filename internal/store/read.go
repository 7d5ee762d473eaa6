package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// Get retrieves a single record by address.
// Returns ErrNotFound if the address is empty.
func (s *Store) Get(ctx context.Context, addr ir.Address) (Record, error) {
	return getTx(ctx, s.db, addr)
}

// List returns all records of a kind.
// Results are ordered deterministically: ORDER BY seq ASC, address ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if no records exist.
func (s *Store) List(ctx context.Context, kind ir.Kind) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, address, kind, key, value
		FROM records
		WHERE kind = ?
		ORDER BY seq ASC, address COLLATE BINARY ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec           Record
		address, kind string
	)
	if err := row.Scan(&rec.Seq, &address, &kind, &rec.Key, &rec.Value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Address = ir.Address(address)
	rec.Kind = ir.Kind(kind)
	return rec, nil
}
