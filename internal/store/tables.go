package store

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fleetsync/internal/ir"
)

// Replicated table names.
const (
	TableAgents            = "agents"
	TableStories           = "stories"
	TablePullRequests      = "pull_requests"
	TableEscalations       = "escalations"
	TableStoryLogs         = "story_logs"
	TableStoryDependencies = "story_dependencies"
)

// TableSpec describes a replicated table: its primary key columns and the
// columns whose content is hashed and shipped in event payloads.
type TableSpec struct {
	Name    string
	Key     []string
	Columns []string
}

var replicatedTables = []TableSpec{
	{
		Name:    TableAgents,
		Key:     []string{"id"},
		Columns: []string{"id", "name", "status", "current_story_id", "updated_at"},
	},
	{
		Name: TableStories,
		Key:  []string{"id"},
		Columns: []string{
			"id", "team_id", "requirement_id", "title", "description",
			"status", "priority", "assigned_agent_id", "created_at", "updated_at",
		},
	},
	{
		Name:    TablePullRequests,
		Key:     []string{"id"},
		Columns: []string{"id", "story_id", "url", "status", "created_at"},
	},
	{
		Name:    TableEscalations,
		Key:     []string{"id"},
		Columns: []string{"id", "story_id", "agent_id", "reason", "status", "created_at"},
	},
	{
		Name:    TableStoryLogs,
		Key:     []string{"id"},
		Columns: []string{"id", "story_id", "agent_id", "message", "created_at"},
	},
	{
		Name:    TableStoryDependencies,
		Key:     []string{"story_id", "depends_on_story_id"},
		Columns: []string{"story_id", "depends_on_story_id"},
	},
}

// ReplicatedTables returns the replicated table set in scan order.
func ReplicatedTables() []TableSpec {
	return slices.Clone(replicatedTables)
}

// LookupTable returns the spec for a replicated table.
// Unknown names report false; callers skip them without error.
func LookupTable(name string) (TableSpec, bool) {
	for _, t := range replicatedTables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSpec{}, false
}

// MustTable is like LookupTable but panics for unknown names.
func MustTable(name string) TableSpec {
	t, ok := LookupTable(name)
	if !ok {
		panic(fmt.Sprintf("store: unknown replicated table %q", name))
	}
	return t
}

// RowID derives the row_id from the row's key columns. Composite keys are
// encoded with ir.JoinKey; single keys are used as is.
func (t TableSpec) RowID(row ir.Row) (string, error) {
	parts := make([]string, len(t.Key))
	for i, k := range t.Key {
		v, ok := row.NullableString(k)
		if !ok {
			return "", fmt.Errorf("%s: key column %q is null", t.Name, k)
		}
		parts[i] = v
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return ir.JoinKey(parts), nil
}

// KeyValues splits a row_id back into key column values.
func (t TableSpec) KeyValues(rowID string) ([]any, error) {
	parts := []string{rowID}
	if len(t.Key) > 1 {
		var err error
		if parts, err = ir.SplitKey(rowID); err != nil {
			return nil, fmt.Errorf("%s: %w", t.Name, err)
		}
	}
	if len(parts) != len(t.Key) {
		return nil, fmt.Errorf("%s: row id %q does not match key %v", t.Name, rowID, t.Key)
	}
	vals := make([]any, len(parts))
	for i, p := range parts {
		vals[i] = p
	}
	return vals, nil
}

// Hash returns the content hash of the row's replicated columns.
func (t TableSpec) Hash(row ir.Row) (string, error) {
	return ir.RowHash(t.Name, t.Columns, row)
}

// Project returns a copy of row restricted to the replicated columns, with
// missing columns set to nil.
func (t TableSpec) Project(row ir.Row) ir.Row {
	out := make(ir.Row, len(t.Columns))
	for _, c := range t.Columns {
		out[c] = row[c]
	}
	return out
}

func (t TableSpec) keyPredicate() string {
	conds := make([]string, len(t.Key))
	for i, k := range t.Key {
		conds[i] = k + " = ?"
	}
	return strings.Join(conds, " AND ")
}

func (t TableSpec) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(t.Columns, ", "), t.Name)
}

func (t TableSpec) upsertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	var updates []string
	for _, c := range t.Columns {
		if !slices.Contains(t.Key, c) {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) %s",
		t.Name, strings.Join(t.Columns, ", "), placeholders, strings.Join(t.Key, ", "), conflict)
}
