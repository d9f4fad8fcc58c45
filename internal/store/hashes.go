package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fleetsync/internal/ir"
)

// RowVersion is the current Version of a row plus its tombstone flag.
type RowVersion struct {
	Version ir.Version
	Deleted bool
}

// RowHashes returns the stored content hash of every row of a table,
// keyed by row_id.
func (t *Tx) RowHashes(ctx context.Context, table string) (map[string]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT row_id, hash FROM row_hashes WHERE table_name = ?`, table)
	if err != nil {
		return nil, fmt.Errorf("query row hashes %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan row hash: %w", err)
		}
		out[id] = hash
	}
	return out, rows.Err()
}

// PutRowHash records the content hash of a row.
func (t *Tx) PutRowHash(ctx context.Context, table, rowID, hash string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO row_hashes (table_name, row_id, hash) VALUES (?, ?, ?)
		ON CONFLICT(table_name, row_id) DO UPDATE SET hash = excluded.hash
	`, table, rowID, hash)
	if err != nil {
		return fmt.Errorf("write row hash %s/%s: %w", table, rowID, err)
	}
	return nil
}

// DeleteRowHash forgets a row's content hash.
func (t *Tx) DeleteRowHash(ctx context.Context, table, rowID string) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM row_hashes WHERE table_name = ? AND row_id = ?`, table, rowID); err != nil {
		return fmt.Errorf("delete row hash %s/%s: %w", table, rowID, err)
	}
	return nil
}

// RowVersion returns the current version of a row. The second result is
// false when no write to the row has ever been recorded.
func (t *Tx) RowVersion(ctx context.Context, table, rowID string) (RowVersion, bool, error) {
	var rv RowVersion
	var deleted int
	err := t.tx.QueryRowContext(ctx, `
		SELECT logical_ts, actor_id, actor_counter, deleted
		FROM row_versions WHERE table_name = ? AND row_id = ?
	`, table, rowID).Scan(&rv.Version.LogicalTS, &rv.Version.ActorID, &rv.Version.ActorCounter, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return RowVersion{}, false, nil
	}
	if err != nil {
		return RowVersion{}, false, fmt.Errorf("read row version %s/%s: %w", table, rowID, err)
	}
	rv.Deleted = deleted != 0
	return rv, true, nil
}

// PutRowVersion records the version that last wrote a row.
func (t *Tx) PutRowVersion(ctx context.Context, table, rowID string, v ir.Version, deleted bool) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO row_versions (table_name, row_id, logical_ts, actor_id, actor_counter, deleted)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, row_id) DO UPDATE SET
			logical_ts = excluded.logical_ts,
			actor_id = excluded.actor_id,
			actor_counter = excluded.actor_counter,
			deleted = excluded.deleted
	`, table, rowID, v.LogicalTS, v.ActorID, v.ActorCounter, boolToInt(deleted))
	if err != nil {
		return fmt.Errorf("write row version %s/%s: %w", table, rowID, err)
	}
	return nil
}

// MaxLogicalTS returns the highest logical_ts recorded for any row or
// event, or 0 for an empty store.
func (t *Tx) MaxLogicalTS(ctx context.Context) (int64, error) {
	var ts int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(logical_ts) FROM row_versions), 0),
			COALESCE((SELECT MAX(logical_ts) FROM cluster_events), 0)
		)
	`).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("read max logical ts: %w", err)
	}
	return ts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
