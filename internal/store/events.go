package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
)

// ErrEventIDConflict is returned when an event_id is already recorded with
// a different fingerprint. It means an actor reused a counter for
// different content, which the log cannot accept.
var ErrEventIDConflict = errors.New("event id already recorded with different content")

// InsertEvent appends an event to the node's event log.
// Returns true if the event was newly recorded and false if the identical
// event was already present. Uses INSERT ... ON CONFLICT DO NOTHING so
// replays are idempotent; a conflicting fingerprint returns
// ErrEventIDConflict.
func (t *Tx) InsertEvent(ctx context.Context, e ir.ClusterEvent) (bool, error) {
	fp, err := ir.EventFingerprint(e)
	if err != nil {
		return false, err
	}
	payload, err := marshalPayload(e.Payload)
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", e.EventID, err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO cluster_events
			(event_id, actor_id, actor_counter, logical_ts, table_name, row_id, op, payload, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, e.EventID, e.Version.ActorID, e.Version.ActorCounter, e.Version.LogicalTS,
		e.TableName, e.RowID, string(e.Op), payload, fp, formatTime(e.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert event %s: %w", e.EventID, err)
	}
	if n == 1 {
		return true, nil
	}

	existing, ok, err := t.EventFingerprint(ctx, e.EventID)
	if err != nil {
		return false, err
	}
	if !ok || existing != fp {
		// !ok means (actor_id, actor_counter) collided under another event_id.
		return false, fmt.Errorf("%w: %s", ErrEventIDConflict, e.EventID)
	}
	return false, nil
}

// EventFingerprint returns the recorded fingerprint for an event_id.
func (t *Tx) EventFingerprint(ctx context.Context, eventID string) (string, bool, error) {
	var fp string
	err := t.tx.QueryRowContext(ctx,
		`SELECT fingerprint FROM cluster_events WHERE event_id = ?`, eventID).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read fingerprint %s: %w", eventID, err)
	}
	return fp, true, nil
}

// IsApplied reports whether an event_id is in the idempotency ledger.
func (t *Tx) IsApplied(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM applied_events WHERE event_id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read applied %s: %w", eventID, err)
	}
	return true, nil
}

// MarkApplied records an event_id in the idempotency ledger.
func (t *Tx) MarkApplied(ctx context.Context, eventID string, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO applied_events (event_id, applied_at) VALUES (?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, formatTime(at))
	if err != nil {
		return fmt.Errorf("mark applied %s: %w", eventID, err)
	}
	return nil
}

// EventsAfter returns the events not covered by vv, ordered by actor_id
// and then actor_counter, truncated to limit. Actors missing from vv are
// treated as counter 0. A limit <= 0 returns an empty slice.
//
// Each actor is read with a bounded range query over the
// (actor_id, actor_counter) unique index, so the cost is proportional to
// the result rather than to the log.
func (s *Store) EventsAfter(ctx context.Context, vv ir.VersionVector, limit int) ([]ir.ClusterEvent, error) {
	events := []ir.ClusterEvent{}
	if limit <= 0 {
		return events, nil
	}

	actors, err := s.eventActors(ctx)
	if err != nil {
		return nil, err
	}

	for _, actor := range actors {
		remaining := limit - len(events)
		if remaining <= 0 {
			break
		}
		batch, err := s.actorEventsAfter(ctx, actor, vv.Get(actor), remaining)
		if err != nil {
			return nil, err
		}
		events = append(events, batch...)
	}
	return events, nil
}

// EventCount returns the number of events in the node's log.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cluster_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// eventActors returns the distinct actors in the log, in binary order.
func (s *Store) eventActors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT actor_id FROM cluster_events ORDER BY actor_id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("query event actors: %w", err)
	}
	defer rows.Close()

	var actors []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		actors = append(actors, a)
	}
	return actors, rows.Err()
}

func (s *Store) actorEventsAfter(ctx context.Context, actor string, after int64, limit int) ([]ir.ClusterEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, table_name, row_id, op, payload, logical_ts, actor_id, actor_counter, created_at
		FROM cluster_events
		WHERE actor_id = ? AND actor_counter > ?
		ORDER BY actor_counter ASC
		LIMIT ?
	`, actor, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query events after %s:%d: %w", actor, after, err)
	}
	defer rows.Close()

	var events []ir.ClusterEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (ir.ClusterEvent, error) {
	var (
		e         ir.ClusterEvent
		op        string
		payload   sql.NullString
		createdAt string
	)
	if err := rows.Scan(&e.EventID, &e.TableName, &e.RowID, &op, &payload,
		&e.Version.LogicalTS, &e.Version.ActorID, &e.Version.ActorCounter, &createdAt); err != nil {
		return ir.ClusterEvent{}, fmt.Errorf("scan event: %w", err)
	}
	e.Op = ir.Op(op)
	row, err := unmarshalPayload(payload)
	if err != nil {
		return ir.ClusterEvent{}, fmt.Errorf("event %s: %w", e.EventID, err)
	}
	e.Payload = row
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}
