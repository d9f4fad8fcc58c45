package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
	"github.com/roach88/fleetsync/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine opens a fresh store and engine writing as actor.
func newTestEngine(t *testing.T, actor string, clock Clock) (*Engine, *store.Store) {
	t.Helper()
	s := testutil.OpenStore(t)
	e, err := New(s, actor, WithClock(clock), WithLogger(discardLogger()))
	require.NoError(t, err)
	return e, s
}

func story(id, title string) ir.Row {
	return ir.Row{
		"id":                id,
		"team_id":           "team-1",
		"requirement_id":    "req-1",
		"title":             title,
		"description":       nil,
		"status":            "open",
		"priority":          int64(2),
		"assigned_agent_id": nil,
		"created_at":        "2026-01-01T00:00:00Z",
		"updated_at":        "2026-01-01T00:00:00Z",
	}
}

func putStory(t *testing.T, s *store.Store, id, title string) {
	t.Helper()
	require.NoError(t, s.UpsertRow(context.Background(), store.MustTable(store.TableStories), story(id, title)))
}

func readTitle(t *testing.T, s *store.Store, id string) (string, bool) {
	t.Helper()
	row, ok, err := s.ReadRow(context.Background(), store.MustTable(store.TableStories), id)
	require.NoError(t, err)
	if !ok {
		return "", false
	}
	return row.String("title"), true
}

func eventIDs(events []ir.ClusterEvent) []string {
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.EventID
	}
	return ids
}

// remoteUpsert builds a well-formed upsert authored by another actor.
func remoteUpsert(actor string, counter, ts int64, id, title string) ir.ClusterEvent {
	v := ir.Version{LogicalTS: ts, ActorID: actor, ActorCounter: counter}
	return ir.ClusterEvent{
		EventID:   v.EventID(),
		TableName: store.TableStories,
		RowID:     id,
		Op:        ir.OpUpsert,
		Payload:   story(id, title),
		Version:   v,
	}
}

func remoteDelete(actor string, counter, ts int64, id string) ir.ClusterEvent {
	v := ir.Version{LogicalTS: ts, ActorID: actor, ActorCounter: counter}
	return ir.ClusterEvent{
		EventID:   v.EventID(),
		TableName: store.TableStories,
		RowID:     id,
		Op:        ir.OpDelete,
		Version:   v,
	}
}
