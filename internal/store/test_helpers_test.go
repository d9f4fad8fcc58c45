package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// storyRow builds a stories row with the fields merge and scan tests use.
func storyRow(id, team, requirement, title string) ir.Row {
	return ir.Row{
		"id":                id,
		"team_id":           team,
		"requirement_id":    requirement,
		"title":             title,
		"description":       nil,
		"status":            "open",
		"priority":          int64(1),
		"assigned_agent_id": nil,
		"created_at":        "2026-01-01T00:00:00Z",
		"updated_at":        "2026-01-01T00:00:00Z",
	}
}

// createTestEvent creates an upsert event for a story with minimal fields.
func createTestEvent(actor string, counter, ts int64, storyID string) ir.ClusterEvent {
	return ir.ClusterEvent{
		EventID:   ir.EventID(actor, counter),
		TableName: TableStories,
		RowID:     storyID,
		Op:        ir.OpUpsert,
		Payload:   storyRow(storyID, "t1", "r1", "title "+storyID),
		Version:   ir.Version{LogicalTS: ts, ActorID: actor, ActorCounter: counter},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// mustTx runs fn in a transaction and fails the test on error.
func mustTx(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := s.WithTx(ctx, func(tx *Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("WithTx() failed: %v", err)
	}
}
