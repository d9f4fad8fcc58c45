package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
)

func TestInsertEvent_Idempotent(t *testing.T) {
	s := createTestStore(t)
	e := createTestEvent("a", 1, 100, "s1")

	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		inserted, err := tx.InsertEvent(ctx, e)
		if err != nil {
			return err
		}
		if !inserted {
			t.Error("first InsertEvent() reported not inserted")
		}
		return nil
	})

	// Redelivery with a different created_at is the same event.
	again := e
	again.CreatedAt = time.Now()
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		inserted, err := tx.InsertEvent(ctx, again)
		if err != nil {
			return err
		}
		if inserted {
			t.Error("second InsertEvent() reported inserted")
		}
		return nil
	})

	n, err := s.EventCount(context.Background())
	if err != nil {
		t.Fatalf("EventCount() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("EventCount() = %d, want 1", n)
	}
}

func TestInsertEvent_ConflictingContent(t *testing.T) {
	s := createTestStore(t)
	e := createTestEvent("a", 1, 100, "s1")
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		_, err := tx.InsertEvent(ctx, e)
		return err
	})

	reused := e
	reused.Payload = storyRow("s1", "t1", "r1", "different title")

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.InsertEvent(context.Background(), reused)
		return err
	})
	if !errors.Is(err, ErrEventIDConflict) {
		t.Errorf("err = %v, want ErrEventIDConflict", err)
	}
}

func TestInsertEvent_DeleteHasNullPayload(t *testing.T) {
	s := createTestStore(t)
	e := ir.ClusterEvent{
		EventID:   "a:1",
		TableName: TableStories,
		RowID:     "s1",
		Op:        ir.OpDelete,
		Version:   ir.Version{LogicalTS: 5, ActorID: "a", ActorCounter: 1},
	}
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		_, err := tx.InsertEvent(ctx, e)
		return err
	})

	events, err := s.EventsAfter(context.Background(), nil, 10)
	if err != nil {
		t.Fatalf("EventsAfter() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].Payload != nil {
		t.Errorf("payload = %v, want nil", events[0].Payload)
	}
	if events[0].Op != ir.OpDelete {
		t.Errorf("op = %q, want delete", events[0].Op)
	}
}

func TestEventsAfter_OrderAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Inserted out of order across two actors.
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		for _, e := range []ir.ClusterEvent{
			createTestEvent("b", 1, 10, "s4"),
			createTestEvent("a", 2, 11, "s2"),
			createTestEvent("a", 1, 10, "s1"),
			createTestEvent("b", 2, 12, "s5"),
			createTestEvent("a", 3, 13, "s3"),
		} {
			if _, err := tx.InsertEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})

	tests := []struct {
		name  string
		vv    ir.VersionVector
		limit int
		want  []string
	}{
		{"empty vector", ir.VersionVector{}, 100, []string{"a:1", "a:2", "a:3", "b:1", "b:2"}},
		{"nil vector", nil, 100, []string{"a:1", "a:2", "a:3", "b:1", "b:2"}},
		{"partial", ir.VersionVector{"a": 2}, 100, []string{"a:3", "b:1", "b:2"}},
		{"complete", ir.VersionVector{"a": 3, "b": 2}, 100, nil},
		{"ahead", ir.VersionVector{"a": 9, "b": 9}, 100, nil},
		{"limited", ir.VersionVector{}, 2, []string{"a:1", "a:2"}},
		{"limit spans actors", ir.VersionVector{"a": 2}, 2, []string{"a:3", "b:1"}},
		{"zero limit", ir.VersionVector{}, 0, nil},
		{"negative limit", ir.VersionVector{}, -1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := s.EventsAfter(ctx, tt.vv, tt.limit)
			if err != nil {
				t.Fatalf("EventsAfter() failed: %v", err)
			}
			if events == nil {
				t.Fatal("EventsAfter() returned nil slice")
			}
			var got []string
			for _, e := range events {
				got = append(got, e.EventID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEventsAfter_PayloadRoundTrip(t *testing.T) {
	s := createTestStore(t)
	e := createTestEvent("a", 1, 100, "s1")
	e.Payload["priority"] = int64(1) << 60
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		_, err := tx.InsertEvent(ctx, e)
		return err
	})

	events, err := s.EventsAfter(context.Background(), nil, 1)
	if err != nil {
		t.Fatalf("EventsAfter() failed: %v", err)
	}
	got := events[0]
	if got.Payload["priority"] != int64(1)<<60 {
		t.Errorf("priority = %#v, want exact int64", got.Payload["priority"])
	}
	if got.Version != e.Version {
		t.Errorf("version = %v, want %v", got.Version, e.Version)
	}
	if !got.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, e.CreatedAt)
	}
}

func TestAppliedLedger(t *testing.T) {
	s := createTestStore(t)
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		applied, err := tx.IsApplied(ctx, "a:1")
		if err != nil {
			return err
		}
		if applied {
			t.Error("a:1 applied before MarkApplied()")
		}
		if err := tx.MarkApplied(ctx, "a:1", time.Now()); err != nil {
			return err
		}
		// Marking twice is a no-op.
		if err := tx.MarkApplied(ctx, "a:1", time.Now()); err != nil {
			return err
		}
		applied, err = tx.IsApplied(ctx, "a:1")
		if err != nil {
			return err
		}
		if !applied {
			t.Error("a:1 not applied after MarkApplied()")
		}
		return nil
	})
}

func TestObserveCounter_NeverRegresses(t *testing.T) {
	s := createTestStore(t)
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		for _, c := range []int64{3, 1, 5, 4} {
			if err := tx.ObserveCounter(ctx, "a", c); err != nil {
				return err
			}
		}
		n, err := tx.Counter(ctx, "a")
		if err != nil {
			return err
		}
		if n != 5 {
			t.Errorf("Counter(a) = %d, want 5", n)
		}
		missing, err := tx.Counter(ctx, "zz")
		if err != nil {
			return err
		}
		if missing != 0 {
			t.Errorf("Counter(zz) = %d, want 0", missing)
		}
		return nil
	})

	vv, err := s.VersionVector(context.Background())
	if err != nil {
		t.Fatalf("VersionVector() failed: %v", err)
	}
	if vv.Get("a") != 5 || len(vv) != 1 {
		t.Errorf("vector = %v, want {a:5}", vv)
	}
}

func TestRowVersion_Tombstone(t *testing.T) {
	s := createTestStore(t)
	v1 := ir.Version{LogicalTS: 10, ActorID: "a", ActorCounter: 1}
	v2 := ir.Version{LogicalTS: 20, ActorID: "b", ActorCounter: 1}

	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		if _, ok, err := tx.RowVersion(ctx, TableStories, "s1"); err != nil || ok {
			t.Errorf("RowVersion() before write ok=%v err=%v", ok, err)
		}
		if err := tx.PutRowVersion(ctx, TableStories, "s1", v1, false); err != nil {
			return err
		}
		if err := tx.PutRowVersion(ctx, TableStories, "s1", v2, true); err != nil {
			return err
		}
		rv, ok, err := tx.RowVersion(ctx, TableStories, "s1")
		if err != nil {
			return err
		}
		if !ok || rv.Version != v2 || !rv.Deleted {
			t.Errorf("RowVersion() = %+v ok=%v, want %v tombstoned", rv, ok, v2)
		}
		ts, err := tx.MaxLogicalTS(ctx)
		if err != nil {
			return err
		}
		if ts != 20 {
			t.Errorf("MaxLogicalTS() = %d, want 20", ts)
		}
		return nil
	})
}

func TestRowHashes_PutAndDelete(t *testing.T) {
	s := createTestStore(t)
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		if err := tx.PutRowHash(ctx, TableStories, "s1", "h1"); err != nil {
			return err
		}
		if err := tx.PutRowHash(ctx, TableStories, "s1", "h2"); err != nil {
			return err
		}
		if err := tx.PutRowHash(ctx, TableAgents, "a1", "h3"); err != nil {
			return err
		}
		hashes, err := tx.RowHashes(ctx, TableStories)
		if err != nil {
			return err
		}
		if len(hashes) != 1 || hashes["s1"] != "h2" {
			t.Errorf("RowHashes(stories) = %v, want {s1:h2}", hashes)
		}
		if err := tx.DeleteRowHash(ctx, TableStories, "s1"); err != nil {
			return err
		}
		hashes, err = tx.RowHashes(ctx, TableStories)
		if err != nil {
			return err
		}
		if len(hashes) != 0 {
			t.Errorf("RowHashes(stories) after delete = %v, want empty", hashes)
		}
		return nil
	})
}

func TestMaxLogicalTS_Empty(t *testing.T) {
	s := createTestStore(t)
	mustTx(t, s, func(ctx context.Context, tx *Tx) error {
		ts, err := tx.MaxLogicalTS(ctx)
		if err != nil {
			return err
		}
		if ts != 0 {
			t.Errorf("MaxLogicalTS() = %d, want 0", ts)
		}
		return nil
	})
}
