package store

import (
	"context"
	"testing"

	"github.com/roach88/fleetsync/internal/ir"
)

func TestUpsertRow_InsertThenUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	stories := MustTable(TableStories)

	if err := s.UpsertRow(ctx, stories, storyRow("s1", "t1", "r1", "first")); err != nil {
		t.Fatalf("UpsertRow() failed: %v", err)
	}
	updated := storyRow("s1", "t1", "r1", "second")
	updated["priority"] = int64(7)
	if err := s.UpsertRow(ctx, stories, updated); err != nil {
		t.Fatalf("UpsertRow() update failed: %v", err)
	}

	row, ok, err := s.ReadRow(ctx, stories, "s1")
	if err != nil {
		t.Fatalf("ReadRow() failed: %v", err)
	}
	if !ok {
		t.Fatal("row s1 not found")
	}
	if row["title"] != "second" {
		t.Errorf("title = %v, want second", row["title"])
	}
	if row["priority"] != int64(7) {
		t.Errorf("priority = %#v, want int64(7)", row["priority"])
	}
	if row["description"] != nil {
		t.Errorf("description = %#v, want nil", row["description"])
	}
}

func TestReadRows_OrderedByKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	stories := MustTable(TableStories)

	for _, id := range []string{"s3", "s1", "S2"} {
		if err := s.UpsertRow(ctx, stories, storyRow(id, "t", "r", id)); err != nil {
			t.Fatalf("UpsertRow(%s) failed: %v", id, err)
		}
	}

	rows, err := s.ReadRows(ctx, stories)
	if err != nil {
		t.Fatalf("ReadRows() failed: %v", err)
	}
	var ids []string
	for _, r := range rows {
		ids = append(ids, r.String("id"))
	}
	want := []string{"S2", "s1", "s3"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestReadRows_EmptyTable(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.ReadRows(context.Background(), MustTable(TableAgents))
	if err != nil {
		t.Fatalf("ReadRows() failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v, want empty non-nil slice", rows)
	}
}

func TestCompositeKey_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	deps := MustTable(TableStoryDependencies)

	edge := ir.Row{"story_id": "s1", "depends_on_story_id": "s2"}
	rowID, err := deps.RowID(edge)
	if err != nil {
		t.Fatalf("RowID() failed: %v", err)
	}
	if rowID != "s1|s2" {
		t.Errorf("rowID = %q, want s1|s2", rowID)
	}

	if err := s.UpsertRow(ctx, deps, edge); err != nil {
		t.Fatalf("UpsertRow() failed: %v", err)
	}
	// All columns are key columns; a second upsert is a no-op.
	if err := s.UpsertRow(ctx, deps, edge); err != nil {
		t.Fatalf("second UpsertRow() failed: %v", err)
	}

	if _, ok, err := s.ReadRow(ctx, deps, rowID); err != nil || !ok {
		t.Fatalf("ReadRow() ok=%v err=%v", ok, err)
	}
	if err := s.DeleteRow(ctx, deps, rowID); err != nil {
		t.Fatalf("DeleteRow() failed: %v", err)
	}
	if _, ok, _ := s.ReadRow(ctx, deps, rowID); ok {
		t.Error("edge still present after DeleteRow()")
	}
}

func TestKeyValues_WrongArity(t *testing.T) {
	deps := MustTable(TableStoryDependencies)
	if _, err := deps.KeyValues("only-one"); err == nil {
		t.Error("expected error for row id without separator")
	}
}

func TestRowID_NullKey(t *testing.T) {
	stories := MustTable(TableStories)
	if _, err := stories.RowID(ir.Row{"title": "x"}); err == nil {
		t.Error("expected error for null key column")
	}
}

func TestLookupTable_Unknown(t *testing.T) {
	if _, ok := LookupTable("sessions"); ok {
		t.Error("LookupTable(sessions) reported a replicated table")
	}
}

func TestTableHash_IgnoresUnreplicatedColumns(t *testing.T) {
	stories := MustTable(TableStories)
	row := storyRow("s1", "t", "r", "x")
	h1, err := stories.Hash(row)
	if err != nil {
		t.Fatalf("Hash() failed: %v", err)
	}
	extra := row.Clone()
	extra["local_only"] = "ignored"
	h2, err := stories.Hash(extra)
	if err != nil {
		t.Fatalf("Hash() failed: %v", err)
	}
	if h1 != h2 {
		t.Error("hash changed when an unreplicated column was added")
	}
}

func TestCompositeKey_SeparatorInsideValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	deps := MustTable(TableStoryDependencies)

	edge := ir.Row{"story_id": "TEAM|1", "depends_on_story_id": "TEAM|2"}
	rowID, err := deps.RowID(edge)
	if err != nil {
		t.Fatalf("RowID() failed: %v", err)
	}
	vals, err := deps.KeyValues(rowID)
	if err != nil {
		t.Fatalf("KeyValues(%q) failed: %v", rowID, err)
	}
	if len(vals) != 2 || vals[0] != "TEAM|1" || vals[1] != "TEAM|2" {
		t.Fatalf("KeyValues(%q) = %v", rowID, vals)
	}

	if err := s.UpsertRow(ctx, deps, edge); err != nil {
		t.Fatalf("UpsertRow() failed: %v", err)
	}
	if _, ok, err := s.ReadRow(ctx, deps, rowID); err != nil || !ok {
		t.Fatalf("ReadRow() ok=%v err=%v", ok, err)
	}
	if err := s.DeleteRow(ctx, deps, rowID); err != nil {
		t.Fatalf("DeleteRow() failed: %v", err)
	}
	if _, ok, _ := s.ReadRow(ctx, deps, rowID); ok {
		t.Error("edge still present after DeleteRow")
	}
}
