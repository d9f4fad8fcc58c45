package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
	"github.com/roach88/fleetsync/internal/testutil"
)

func TestApply_DoubleApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src, srcStore := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))
	dst, dstStore := newTestEngine(t, "b", testutil.NewDeterministicClock(1000))

	putStory(t, srcStore, "s1", "hello")
	events, err := src.Scan(ctx)
	require.NoError(t, err)

	res, err := dst.Apply(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Len(t, res.Recorded, 1)

	res, err = dst.Apply(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Duplicate)
	assert.Empty(t, res.Recorded)

	title, ok := readTitle(t, dstStore, "s1")
	require.True(t, ok)
	assert.Equal(t, "hello", title)

	vv, err := dst.VersionVector(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), vv.Get("a"))
}

func TestApply_SameTimestampHigherActorWins(t *testing.T) {
	ctx := context.Background()
	// Both clocks read the same instant.
	a, aStore := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))
	z, zStore := newTestEngine(t, "z", testutil.NewDeterministicClock(1000))

	putStory(t, aStore, "s1", "from a")
	putStory(t, zStore, "s1", "from z")

	aEvents, err := a.Scan(ctx)
	require.NoError(t, err)
	zEvents, err := z.Scan(ctx)
	require.NoError(t, err)
	require.Equal(t, aEvents[0].Version.LogicalTS, zEvents[0].Version.LogicalTS)

	resA, err := a.Apply(ctx, zEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, resA.Applied)

	resZ, err := z.Apply(ctx, aEvents)
	require.NoError(t, err)
	assert.Equal(t, 1, resZ.Stale)

	for _, s := range []*store.Store{aStore, zStore} {
		title, ok := readTitle(t, s, "s1")
		require.True(t, ok)
		assert.Equal(t, "from z", title)
	}
}

func TestApply_SameTimestampSameActorHigherCounterWins(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "local", testutil.NewDeterministicClock(1))

	older := remoteUpsert("x", 1, 500, "s1", "older")
	newer := remoteUpsert("x", 2, 500, "s1", "newer")

	res, err := e.Apply(ctx, []ir.ClusterEvent{newer, older})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, res.Stale)

	title, _ := readTitle(t, s, "s1")
	assert.Equal(t, "newer", title)

	vv, err := e.VersionVector(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), vv.Get("x"))
}

func TestApply_OutOfOrderDeliveryConverges(t *testing.T) {
	ctx := context.Background()
	batch := []ir.ClusterEvent{
		remoteUpsert("x", 1, 100, "s1", "v1"),
		remoteUpsert("y", 1, 200, "s1", "v2"),
		remoteUpsert("x", 2, 300, "s1", "v3"),
	}
	reversed := []ir.ClusterEvent{batch[2], batch[1], batch[0]}

	e1, s1 := newTestEngine(t, "n1", testutil.NewDeterministicClock(1))
	e2, s2 := newTestEngine(t, "n2", testutil.NewDeterministicClock(1))

	_, err := e1.Apply(ctx, batch)
	require.NoError(t, err)
	_, err = e2.Apply(ctx, reversed)
	require.NoError(t, err)

	t1, _ := readTitle(t, s1, "s1")
	t2, _ := readTitle(t, s2, "s1")
	assert.Equal(t, "v3", t1)
	assert.Equal(t, t1, t2)
}

func TestApply_UnsupportedTableNeverPersisted(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "a", testutil.NewDeterministicClock(1))

	ev := remoteUpsert("b", 1, 10, "x1", "ignored")
	ev.TableName = "sessions"

	res, err := e.Apply(ctx, []ir.ClusterEvent{ev})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unsupported)
	assert.Equal(t, 0, res.Applied)

	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	vv, err := e.VersionVector(ctx)
	require.NoError(t, err)
	assert.Empty(t, vv)
}

func TestApply_EventIDConflictRejected(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "a", testutil.NewDeterministicClock(1))

	original := remoteUpsert("b", 1, 10, "s1", "original")
	forged := remoteUpsert("b", 1, 10, "s1", "forged")
	other := remoteUpsert("b", 2, 11, "s2", "other")

	res, err := e.Apply(ctx, []ir.ClusterEvent{original, forged, other})
	require.NoError(t, err, "a conflict must not abort the batch")
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Conflicting)

	title, _ := readTitle(t, s, "s1")
	assert.Equal(t, "original", title)
}

func TestApply_StaleUpsertCannotResurrectDelete(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "a", testutil.NewDeterministicClock(1))

	res, err := e.Apply(ctx, []ir.ClusterEvent{
		remoteUpsert("b", 1, 100, "s1", "alive"),
		remoteDelete("b", 2, 200, "s1"),
		remoteUpsert("c", 1, 150, "s1", "zombie"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Stale)

	_, ok := readTitle(t, s, "s1")
	assert.False(t, ok, "stale upsert resurrected a deleted row")

	// Stale events are still logged for relay.
	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestApply_RemoteWriteIsNotEchoedByScan(t *testing.T) {
	ctx := context.Background()
	e, _ := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))

	_, err := e.Apply(ctx, []ir.ClusterEvent{remoteUpsert("b", 1, 10, "s1", "remote")})
	require.NoError(t, err)

	events, err := e.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestApply_RemoteDeleteIsNotEchoedByScan(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))

	putStory(t, s, "s1", "local")
	_, err := e.Scan(ctx)
	require.NoError(t, err)

	res, err := e.Apply(ctx, []ir.ClusterEvent{remoteDelete("b", 1, 5000, "s1")})
	require.NoError(t, err)
	require.Equal(t, 1, res.Applied)

	events, err := e.Scan(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestApply_OwnEchoAdvancesLocalCounter(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))

	// Another replica holds events we authored before losing our store.
	res, err := e.Apply(ctx, []ir.ClusterEvent{remoteUpsert("a", 5, 900, "s1", "before")})
	require.NoError(t, err)
	require.Equal(t, 1, res.Applied)

	putStory(t, s, "s2", "after")
	events, err := e.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a:6", events[0].EventID)
}

func TestApply_InvalidEvents(t *testing.T) {
	ctx := context.Background()
	e, s := newTestEngine(t, "a", testutil.NewDeterministicClock(1))

	badOp := remoteUpsert("b", 1, 10, "s1", "x")
	badOp.Op = "truncate"

	mismatchedID := remoteUpsert("b", 2, 10, "s2", "x")
	mismatchedID.EventID = "b:99"

	noPayload := remoteUpsert("b", 3, 10, "s3", "x")
	noPayload.Payload = nil

	wrongKey := remoteUpsert("b", 4, 10, "s4", "x")
	wrongKey.RowID = "s5"

	res, err := e.Apply(ctx, []ir.ClusterEvent{badOp, mismatchedID, noPayload, wrongKey})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Invalid)
	assert.Equal(t, 4, res.Total())

	n, err := s.EventCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApply_RelaysTransitively(t *testing.T) {
	ctx := context.Background()
	a, aStore := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))
	b, _ := newTestEngine(t, "b", testutil.NewDeterministicClock(1000))
	c, cStore := newTestEngine(t, "c", testutil.NewDeterministicClock(1000))

	putStory(t, aStore, "s1", "from a")
	_, err := a.Scan(ctx)
	require.NoError(t, err)

	// a -> b
	batch, err := a.Delta(ctx, ir.VersionVector{}, DefaultDeltaLimit)
	require.NoError(t, err)
	_, err = b.Apply(ctx, batch)
	require.NoError(t, err)

	// b -> c; c never talks to a.
	cVV, err := c.VersionVector(ctx)
	require.NoError(t, err)
	batch, err = b.Delta(ctx, cVV, DefaultDeltaLimit)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "a:1", batch[0].EventID)

	res, err := c.Apply(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)

	title, ok := readTitle(t, cStore, "s1")
	require.True(t, ok)
	assert.Equal(t, "from a", title)
}

func TestApply_CompositeKeyWithSeparatorReplicates(t *testing.T) {
	ctx := context.Background()
	src, srcStore := newTestEngine(t, "a", testutil.NewDeterministicClock(1000))
	dst, dstStore := newTestEngine(t, "b", testutil.NewDeterministicClock(1000))

	deps := store.MustTable(store.TableStoryDependencies)
	edge := ir.Row{"story_id": "TEAM|1", "depends_on_story_id": "TEAM|2"}
	require.NoError(t, srcStore.UpsertRow(ctx, deps, edge))

	events, err := src.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)

	res, err := dst.Apply(ctx, events)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Zero(t, res.Invalid)

	rows, err := dstStore.ReadRows(ctx, deps)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "TEAM|1", rows[0]["story_id"])
	assert.Equal(t, "TEAM|2", rows[0]["depends_on_story_id"])

	vv, err := dst.VersionVector(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), vv.Get("a"))
}
