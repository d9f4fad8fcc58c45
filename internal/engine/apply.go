package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
)

// ApplyResult counts the outcome of every event in a batch.
type ApplyResult struct {
	// Applied is the number of events whose write reached the row.
	Applied int `json:"applied"`

	// Duplicate events were already applied on this node.
	Duplicate int `json:"duplicate"`

	// Stale events lost to the row's current version.
	Stale int `json:"stale"`

	// Unsupported events target a table outside the replicated set.
	Unsupported int `json:"unsupported"`

	// Conflicting events reuse a known event_id for different content.
	Conflicting int `json:"conflicting"`

	// Invalid events are structurally malformed.
	Invalid int `json:"invalid"`

	// Recorded holds the events newly appended to the local log, applied
	// or stale, in batch order. They are relayed to further peers.
	Recorded []ir.ClusterEvent `json:"-"`
}

// Total returns the number of events accounted for.
func (r ApplyResult) Total() int {
	return r.Applied + r.Duplicate + r.Stale + r.Unsupported + r.Conflicting + r.Invalid
}

type applyOutcome int

const (
	outcomeApplied applyOutcome = iota
	outcomeDuplicate
	outcomeStale
)

// Apply applies a batch of remote events in order, each in its own
// transaction.
//
// Per event:
//  1. a table outside the replicated set is skipped and never persisted;
//  2. an event_id recorded with different content is rejected;
//  3. an event_id already applied is skipped;
//  4. a version not strictly greater than the row's current version is
//     skipped as stale;
//  5. otherwise the row is upserted or deleted, its version and hash
//     recorded, and the event marked applied.
//
// Every supported, well-formed event is appended to the local log and
// advances the version vector, stale ones included, so the node relays
// what it has seen. Per-event failures are counted and logged; only store
// failures return an error, together with the counts so far.
func (e *Engine) Apply(ctx context.Context, events []ir.ClusterEvent) (ApplyResult, error) {
	var res ApplyResult

	for _, ev := range events {
		table, ok := store.LookupTable(ev.TableName)
		if !ok {
			res.Unsupported++
			e.logger.Debug("skipping event for unsupported table",
				"event_id", ev.EventID, "table", ev.TableName)
			continue
		}
		if err := validateEvent(table, ev); err != nil {
			res.Invalid++
			e.logger.Warn("rejecting invalid event", "event_id", ev.EventID, "error", err)
			continue
		}

		var outcome applyOutcome
		var recorded bool
		err := e.store.WithTx(ctx, func(tx *store.Tx) error {
			var err error
			outcome, recorded, err = e.applyOne(ctx, tx, table, ev)
			return err
		})
		if IsConflictError(err) {
			res.Conflicting++
			e.logger.Error("event id conflict",
				"event_id", ev.EventID, "table", ev.TableName, "row_id", ev.RowID)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("apply %s: %w", ev.EventID, err)
		}

		if recorded {
			res.Recorded = append(res.Recorded, ev)
		}
		switch outcome {
		case outcomeApplied:
			res.Applied++
			e.logger.Debug("event applied",
				"event_id", ev.EventID, "table", ev.TableName, "row_id", ev.RowID, "op", ev.Op)
		case outcomeDuplicate:
			res.Duplicate++
		case outcomeStale:
			res.Stale++
			e.logger.Debug("stale event skipped",
				"event_id", ev.EventID, "table", ev.TableName, "row_id", ev.RowID)
		}
	}

	if res.Total() > 0 {
		e.logger.Info("batch applied",
			"applied", res.Applied,
			"duplicate", res.Duplicate,
			"stale", res.Stale,
			"unsupported", res.Unsupported,
			"conflicting", res.Conflicting,
			"invalid", res.Invalid)
	}
	return res, nil
}

func (e *Engine) applyOne(ctx context.Context, tx *store.Tx, table store.TableSpec, ev ir.ClusterEvent) (applyOutcome, bool, error) {
	recorded, err := tx.InsertEvent(ctx, ev)
	if errors.Is(err, store.ErrEventIDConflict) {
		return 0, false, NewConflictError(ev.EventID, ev.TableName, ev.RowID)
	}
	if err != nil {
		return 0, false, err
	}

	// Observing our own actor here also moves the local counter past any
	// echo of our events, so a restored node never reissues an event_id.
	if err := tx.ObserveCounter(ctx, ev.Version.ActorID, ev.Version.ActorCounter); err != nil {
		return 0, false, err
	}

	applied, err := tx.IsApplied(ctx, ev.EventID)
	if err != nil {
		return 0, false, err
	}
	if applied {
		return outcomeDuplicate, recorded, nil
	}

	now := time.Now()
	current, exists, err := tx.RowVersion(ctx, table.Name, ev.RowID)
	if err != nil {
		return 0, false, err
	}
	if exists && !ev.Version.After(current.Version) {
		if err := tx.MarkApplied(ctx, ev.EventID, now); err != nil {
			return 0, false, err
		}
		return outcomeStale, recorded, nil
	}

	switch ev.Op {
	case ir.OpUpsert:
		if err := tx.UpsertRow(ctx, table, table.Project(ev.Payload)); err != nil {
			return 0, false, err
		}
		if err := refreshHash(ctx, tx, table, ev.RowID); err != nil {
			return 0, false, err
		}
	case ir.OpDelete:
		if err := tx.DeleteRow(ctx, table, ev.RowID); err != nil {
			return 0, false, err
		}
		if err := tx.DeleteRowHash(ctx, table.Name, ev.RowID); err != nil {
			return 0, false, err
		}
	}

	if err := tx.PutRowVersion(ctx, table.Name, ev.RowID, ev.Version, ev.Op == ir.OpDelete); err != nil {
		return 0, false, err
	}
	if err := tx.MarkApplied(ctx, ev.EventID, now); err != nil {
		return 0, false, err
	}
	return outcomeApplied, recorded, nil
}

// refreshHash stores the hash of the row as the database now holds it, so
// the next local scan does not echo the remote write back as a local one.
func refreshHash(ctx context.Context, tx *store.Tx, table store.TableSpec, rowID string) error {
	row, ok, err := tx.ReadRow(ctx, table, rowID)
	if err != nil {
		return err
	}
	if !ok {
		return tx.DeleteRowHash(ctx, table.Name, rowID)
	}
	hash, err := table.Hash(row)
	if err != nil {
		return err
	}
	return tx.PutRowHash(ctx, table.Name, rowID, hash)
}

// validateEvent checks the structural invariants of an incoming event.
func validateEvent(table store.TableSpec, ev ir.ClusterEvent) error {
	if !ev.Op.Valid() {
		return NewInvalidEventError(ev.EventID, fmt.Sprintf("unknown op %q", ev.Op))
	}
	if ev.Version.ActorID == "" || ev.Version.ActorCounter <= 0 {
		return NewInvalidEventError(ev.EventID, "version has no actor or counter")
	}
	if ev.EventID != ev.Version.EventID() {
		return NewInvalidEventError(ev.EventID,
			fmt.Sprintf("event id does not match version %s", ev.Version))
	}
	if ev.RowID == "" {
		return NewInvalidEventError(ev.EventID, "empty row id")
	}
	if _, err := table.KeyValues(ev.RowID); err != nil {
		return NewInvalidEventError(ev.EventID, err.Error())
	}
	if ev.Op == ir.OpUpsert {
		if ev.Payload == nil {
			return NewInvalidEventError(ev.EventID, "upsert without payload")
		}
		rowID, err := table.RowID(ev.Payload)
		if err != nil {
			return NewInvalidEventError(ev.EventID, err.Error())
		}
		if rowID != ev.RowID {
			return NewInvalidEventError(ev.EventID,
				fmt.Sprintf("payload key %q does not match row id %q", rowID, ev.RowID))
		}
	}
	return nil
}
