package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDRoundTrip(t *testing.T) {
	id := EventID("node-a", 42)
	assert.Equal(t, "node-a:42", id)

	actor, counter, err := ParseEventID(id)
	require.NoError(t, err)
	assert.Equal(t, "node-a", actor)
	assert.Equal(t, int64(42), counter)

	actor, counter, err = ParseEventID("host:9000:7")
	require.NoError(t, err)
	assert.Equal(t, "host:9000", actor)
	assert.Equal(t, int64(7), counter)
}

func TestParseEventIDMalformed(t *testing.T) {
	for _, id := range []string{"", "abc", ":1", "a:", "a:x"} {
		_, _, err := ParseEventID(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestClusterEventJSON(t *testing.T) {
	data := []byte(`{
		"event_id": "a:1",
		"table_name": "stories",
		"row_id": "s1",
		"op": "upsert",
		"payload": {"id": "s1", "priority": 3, "team_id": null},
		"version": {"logical_ts": 5000, "actor_id": "a", "actor_counter": 1}
	}`)

	var ev ClusterEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, OpUpsert, ev.Op)
	assert.Equal(t, int64(3), ev.Payload["priority"], "integral numbers decode as int64")
	assert.Nil(t, ev.Payload["team_id"])
	assert.Contains(t, ev.Payload, "team_id")
	assert.Equal(t, RowKey{Table: "stories", RowID: "s1"}, ev.Key())
}

func TestClusterEventDeleteHasNullPayload(t *testing.T) {
	var ev ClusterEvent
	require.NoError(t, json.Unmarshal([]byte(`{"event_id":"a:2","op":"delete","payload":null}`), &ev))
	assert.Nil(t, ev.Payload)
	assert.True(t, ev.Op.Valid())
	assert.False(t, Op("truncate").Valid())
}

func TestRowAccessors(t *testing.T) {
	row := Row{"id": "s1", "priority": int64(2), "team_id": nil}
	assert.Equal(t, "s1", row.String("id"))
	assert.Equal(t, "2", row.String("priority"))

	_, ok := row.NullableString("team_id")
	assert.False(t, ok)
	v, ok := row.NullableString("id")
	assert.True(t, ok)
	assert.Equal(t, "s1", v)
}

func TestJoinSplitKey(t *testing.T) {
	cases := [][]string{
		{"s1", "s2"},
		{"TEAM|1", "TEAM|2"},
		{`a\b`, `c\|d`},
		{"", "x"},
		{"|", `\`},
	}
	for _, parts := range cases {
		id := JoinKey(parts)
		got, err := SplitKey(id)
		require.NoError(t, err, "id %q", id)
		assert.Equal(t, parts, got, "id %q", id)
	}

	assert.Equal(t, "s1|s2", JoinKey([]string{"s1", "s2"}))
	assert.Equal(t, `TEAM\|1|TEAM\|2`, JoinKey([]string{"TEAM|1", "TEAM|2"}))

	_, err := SplitKey(`s1|s2\`)
	assert.Error(t, err)
}
