package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Op is the mutation kind carried by a ClusterEvent.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Valid reports whether op is one of the known operations.
func (op Op) Valid() bool {
	return op == OpUpsert || op == OpDelete
}

// CompositeKeySeparator joins the key columns of tables with composite
// primary keys into a single row_id.
const CompositeKeySeparator = "|"

const keyEscape = '\\'

// JoinKey encodes key column values as a composite row_id. Backslashes and
// separators inside a value are escaped with a backslash so SplitKey can
// recover the parts exactly.
func JoinKey(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(CompositeKeySeparator)
		}
		for _, r := range p {
			if r == keyEscape || string(r) == CompositeKeySeparator {
				b.WriteRune(keyEscape)
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitKey decodes a composite row_id produced by JoinKey. A trailing
// unpaired escape is an error.
func SplitKey(rowID string) ([]string, error) {
	var (
		parts   []string
		cur     strings.Builder
		escaped bool
	)
	for _, r := range rowID {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == keyEscape:
			escaped = true
		case string(r) == CompositeKeySeparator:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		return nil, fmt.Errorf("row id %q ends in an unpaired escape", rowID)
	}
	return append(parts, cur.String()), nil
}

// Row is a full row snapshot keyed by column name.
//
// Values are restricted to what SQLite hands back and JSON can carry:
// nil, string, int64, float64 and bool. Numbers decoded from JSON are
// normalized to int64 when they are integral so that a payload that crossed
// the wire hashes identically to the row it was read from.
type Row map[string]any

// UnmarshalJSON decodes a row using json.Number to avoid float64 precision
// loss for integers above 2^53.
func (r *Row) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	row := make(Row, len(raw))
	for k, v := range raw {
		nv, err := normalizeValue(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", k, err)
		}
		row[k] = nv
	}
	*r = row
	return nil
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the column value as a string, or "" when it is NULL.
func (r Row) String(column string) string {
	switch v := r[column].(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// NullableString returns the column value and whether it is non-NULL.
func (r Row) NullableString(column string) (string, bool) {
	if r[column] == nil {
		return "", false
	}
	return r.String(column), true
}

func normalizeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val)
		}
		return f, nil
	case []byte:
		return string(val), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}

// NormalizeValue converts a database or decoded JSON value into the value
// space allowed in a Row.
func NormalizeValue(v any) (any, error) {
	return normalizeValue(v)
}

// RowKey identifies a row across the replicated tables.
type RowKey struct {
	Table string
	RowID string
}

func (k RowKey) String() string {
	return k.Table + "/" + k.RowID
}

// ClusterEvent is the unit of replication.
//
// EventID is "{actor_id}:{actor_counter}" and is the idempotency key.
// Payload is the full row snapshot for upserts and nil for deletes.
type ClusterEvent struct {
	EventID   string    `json:"event_id"`
	TableName string    `json:"table_name"`
	RowID     string    `json:"row_id"`
	Op        Op        `json:"op"`
	Payload   Row       `json:"payload"`
	Version   Version   `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Key returns the row this event targets.
func (e ClusterEvent) Key() RowKey {
	return RowKey{Table: e.TableName, RowID: e.RowID}
}

// EventID formats the idempotency key for an actor's counter.
func EventID(actorID string, counter int64) string {
	return actorID + ":" + strconv.FormatInt(counter, 10)
}

// ParseEventID splits an event ID into its actor and counter.
// Actor IDs may themselves contain ':' so the last separator wins.
func ParseEventID(id string) (actorID string, counter int64, err error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("malformed event id %q", id)
	}
	counter, err = strconv.ParseInt(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed event id %q: %w", id, err)
	}
	return id[:i], counter, nil
}

// MergeRecord is one entry of the append-only duplicate-story ledger.
type MergeRecord struct {
	DuplicateStoryID string    `json:"duplicate_story_id"`
	CanonicalStoryID string    `json:"canonical_story_id"`
	MergedAt         time.Time `json:"merged_at"`
}
