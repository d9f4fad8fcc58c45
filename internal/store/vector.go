package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fleetsync/internal/ir"
)

// VersionVector returns the node's persisted version vector.
func (s *Store) VersionVector(ctx context.Context) (ir.VersionVector, error) {
	return readVersionVector(ctx, s.db)
}

// VersionVector returns the version vector as seen inside the transaction.
func (t *Tx) VersionVector(ctx context.Context) (ir.VersionVector, error) {
	return readVersionVector(ctx, t.tx)
}

// Counter returns the recorded counter for an actor, 0 when absent.
func (t *Tx) Counter(ctx context.Context, actorID string) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT counter FROM version_vector WHERE actor_id = ?`, actorID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", actorID, err)
	}
	return n, nil
}

// ObserveCounter raises the actor's vector entry to counter. Lower values
// leave the entry unchanged, so the vector never regresses.
func (t *Tx) ObserveCounter(ctx context.Context, actorID string, counter int64) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO version_vector (actor_id, counter) VALUES (?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET counter = MAX(counter, excluded.counter)
	`, actorID, counter)
	if err != nil {
		return fmt.Errorf("observe counter %s: %w", actorID, err)
	}
	return nil
}

func readVersionVector(ctx context.Context, q querier) (ir.VersionVector, error) {
	rows, err := q.QueryContext(ctx, `SELECT actor_id, counter FROM version_vector`)
	if err != nil {
		return nil, fmt.Errorf("query version vector: %w", err)
	}
	defer rows.Close()

	vv := ir.VersionVector{}
	for rows.Next() {
		var actor string
		var counter int64
		if err := rows.Scan(&actor, &counter); err != nil {
			return nil, fmt.Errorf("scan version vector: %w", err)
		}
		vv[actor] = counter
	}
	return vv, rows.Err()
}
