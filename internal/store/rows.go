package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/fleetsync/internal/ir"
)

// ReadRows returns every row of a replicated table ordered by primary key.
// Returns an empty slice (not nil) for an empty table.
func (s *Store) ReadRows(ctx context.Context, t TableSpec) ([]ir.Row, error) {
	return readRows(ctx, s.db, t)
}

// ReadRow returns one row by row_id.
func (s *Store) ReadRow(ctx context.Context, t TableSpec, rowID string) (ir.Row, bool, error) {
	return readRow(ctx, s.db, t, rowID)
}

// UpsertRow writes a row as the application layer would. The scanner picks
// the change up on its next pass.
func (s *Store) UpsertRow(ctx context.Context, t TableSpec, row ir.Row) error {
	return upsertRow(ctx, s.db, t, row)
}

// DeleteRow removes a row as the application layer would.
func (s *Store) DeleteRow(ctx context.Context, t TableSpec, rowID string) error {
	return deleteRow(ctx, s.db, t, rowID)
}

// ReadRows is ReadRows inside the transaction.
func (t *Tx) ReadRows(ctx context.Context, spec TableSpec) ([]ir.Row, error) {
	return readRows(ctx, t.tx, spec)
}

// ReadRow is ReadRow inside the transaction.
func (t *Tx) ReadRow(ctx context.Context, spec TableSpec, rowID string) (ir.Row, bool, error) {
	return readRow(ctx, t.tx, spec, rowID)
}

// UpsertRow writes a row inside the transaction.
func (t *Tx) UpsertRow(ctx context.Context, spec TableSpec, row ir.Row) error {
	return upsertRow(ctx, t.tx, spec, row)
}

// DeleteRow removes a row inside the transaction.
func (t *Tx) DeleteRow(ctx context.Context, spec TableSpec, rowID string) error {
	return deleteRow(ctx, t.tx, spec, rowID)
}

func readRows(ctx context.Context, q querier, t TableSpec) ([]ir.Row, error) {
	rows, err := q.QueryContext(ctx, t.selectSQL()+" ORDER BY "+orderByKey(t))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.Name, err)
	}
	defer rows.Close()

	out := []ir.Row{}
	for rows.Next() {
		row, err := scanRow(rows, t)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.Name, err)
	}
	return out, nil
}

func readRow(ctx context.Context, q querier, t TableSpec, rowID string) (ir.Row, bool, error) {
	keys, err := t.KeyValues(rowID)
	if err != nil {
		return nil, false, err
	}
	rows, err := q.QueryContext(ctx, t.selectSQL()+" WHERE "+t.keyPredicate(), keys...)
	if err != nil {
		return nil, false, fmt.Errorf("query %s %s: %w", t.Name, rowID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	row, err := scanRow(rows, t)
	if err != nil {
		return nil, false, err
	}
	return row, true, rows.Err()
}

func scanRow(rows *sql.Rows, t TableSpec) (ir.Row, error) {
	vals := make([]any, len(t.Columns))
	ptrs := make([]any, len(t.Columns))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan %s: %w", t.Name, err)
	}
	row := make(ir.Row, len(t.Columns))
	for i, c := range t.Columns {
		v, err := ir.NormalizeValue(vals[i])
		if err != nil {
			return nil, fmt.Errorf("scan %s.%s: %w", t.Name, c, err)
		}
		row[c] = v
	}
	return row, nil
}

func upsertRow(ctx context.Context, q querier, t TableSpec, row ir.Row) error {
	args := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		v, err := ir.NormalizeValue(row[c])
		if err != nil {
			return fmt.Errorf("upsert %s.%s: %w", t.Name, c, err)
		}
		args[i] = v
	}
	if _, err := q.ExecContext(ctx, t.upsertSQL(), args...); err != nil {
		return fmt.Errorf("upsert %s: %w", t.Name, err)
	}
	return nil
}

func deleteRow(ctx context.Context, q querier, t TableSpec, rowID string) error {
	keys, err := t.KeyValues(rowID)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM "+t.Name+" WHERE "+t.keyPredicate(), keys...); err != nil {
		return fmt.Errorf("delete %s %s: %w", t.Name, rowID, err)
	}
	return nil
}

// orderByKey orders by the key columns using binary collation so every
// node iterates rows identically.
func orderByKey(t TableSpec) string {
	cols := make([]string, len(t.Key))
	for i, k := range t.Key {
		cols[i] = k + " COLLATE BINARY ASC"
	}
	return strings.Join(cols, ", ")
}
