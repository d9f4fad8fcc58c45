package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
)

// Scan detects replicated rows that changed since the previous scan and
// emits one event per change.
//
// A row whose content hash is new or differs from the stored hash yields
// an upsert with the full row snapshot; a stored hash whose row is gone
// yields a delete. Each event gets the next local counter, is appended to
// the event log, marked applied and recorded as the row's current
// version. The whole scan commits in one transaction, so a crash never
// leaves hashes and events out of step.
//
// Returns an empty slice when nothing changed. Content that is reverted
// between two scans looks unchanged.
func (e *Engine) Scan(ctx context.Context) ([]ir.ClusterEvent, error) {
	events := []ir.ClusterEvent{}

	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		maxTS, err := tx.MaxLogicalTS(ctx)
		if err != nil {
			return err
		}
		now := e.clock.NowMillis()
		s := &scanner{
			tx:        tx,
			actorID:   e.actorID,
			ts:        nextLogicalTS(now, maxTS),
			createdAt: time.UnixMilli(now).UTC(),
		}
		if s.counter, err = tx.Counter(ctx, e.actorID); err != nil {
			return err
		}

		for _, table := range store.ReplicatedTables() {
			if err := s.scanTable(ctx, table); err != nil {
				return fmt.Errorf("scan %s: %w", table.Name, err)
			}
		}

		if len(s.events) == 0 {
			return nil
		}
		if err := tx.ObserveCounter(ctx, e.actorID, s.counter); err != nil {
			return err
		}
		events = s.events
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	if len(events) > 0 {
		e.logger.Info("scan emitted events",
			"events", len(events),
			"first", events[0].EventID,
			"last", events[len(events)-1].EventID)
	}
	return events, nil
}

// scanner holds the state of one scan transaction.
type scanner struct {
	tx        *store.Tx
	actorID   string
	ts        int64
	counter   int64
	createdAt time.Time
	events    []ir.ClusterEvent
}

func (s *scanner) scanTable(ctx context.Context, table store.TableSpec) error {
	rows, err := s.tx.ReadRows(ctx, table)
	if err != nil {
		return err
	}
	stored, err := s.tx.RowHashes(ctx, table.Name)
	if err != nil {
		return err
	}

	live := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		rowID, err := table.RowID(row)
		if err != nil {
			return err
		}
		live[rowID] = struct{}{}

		hash, err := table.Hash(row)
		if err != nil {
			return err
		}
		if prev, ok := stored[rowID]; ok && prev == hash {
			continue
		}
		if err := s.emit(ctx, table, rowID, ir.OpUpsert, table.Project(row)); err != nil {
			return err
		}
		if err := s.tx.PutRowHash(ctx, table.Name, rowID, hash); err != nil {
			return err
		}
	}

	// Deletes in row_id order keep counters deterministic across runs.
	var gone []string
	for rowID := range stored {
		if _, ok := live[rowID]; !ok {
			gone = append(gone, rowID)
		}
	}
	slices.Sort(gone)
	for _, rowID := range gone {
		if err := s.emit(ctx, table, rowID, ir.OpDelete, nil); err != nil {
			return err
		}
		if err := s.tx.DeleteRowHash(ctx, table.Name, rowID); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) emit(ctx context.Context, table store.TableSpec, rowID string, op ir.Op, payload ir.Row) error {
	s.counter++
	v := ir.Version{LogicalTS: s.ts, ActorID: s.actorID, ActorCounter: s.counter}
	ev := ir.ClusterEvent{
		EventID:   v.EventID(),
		TableName: table.Name,
		RowID:     rowID,
		Op:        op,
		Payload:   payload,
		Version:   v,
		CreatedAt: s.createdAt,
	}

	if _, err := s.tx.InsertEvent(ctx, ev); err != nil {
		return err
	}
	if err := s.tx.MarkApplied(ctx, ev.EventID, s.createdAt); err != nil {
		return err
	}
	if err := s.tx.PutRowVersion(ctx, table.Name, rowID, v, op == ir.OpDelete); err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}
