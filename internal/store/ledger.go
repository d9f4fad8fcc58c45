package store

import (
	"context"
	"fmt"

	"github.com/roach88/fleetsync/internal/ir"
)

// storyReferences lists the single-column references to a story that a
// merge rewrites to the canonical ID.
var storyReferences = []struct {
	table  string
	column string
}{
	{TablePullRequests, "story_id"},
	{TableEscalations, "story_id"},
	{TableStoryLogs, "story_id"},
	{TableAgents, "current_story_id"},
}

// RedirectStory moves every reference to dup onto canonical and deletes
// the dup story. Dependency edges are rewritten in both directions; edges
// that collapse into a self-loop or collide with an existing edge are
// dropped. Returns the number of rows rewritten or removed.
//
// Call inside the same transaction as RecordMerge so a crash never leaves
// a half-merged story.
func (t *Tx) RedirectStory(ctx context.Context, dup, canonical string) (int64, error) {
	var total int64
	exec := func(query string, args ...any) error {
		res, err := t.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n
		return nil
	}

	for _, ref := range storyReferences {
		q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", ref.table, ref.column, ref.column)
		if err := exec(q, canonical, dup); err != nil {
			return 0, fmt.Errorf("redirect %s.%s: %w", ref.table, ref.column, err)
		}
	}

	// OR IGNORE leaves colliding edges on dup; they are deleted below.
	steps := []struct {
		name  string
		query string
		args  []any
	}{
		{"outgoing edges",
			`UPDATE OR IGNORE story_dependencies SET story_id = ? WHERE story_id = ?`,
			[]any{canonical, dup}},
		{"incoming edges",
			`UPDATE OR IGNORE story_dependencies SET depends_on_story_id = ? WHERE depends_on_story_id = ?`,
			[]any{canonical, dup}},
		{"colliding edges",
			`DELETE FROM story_dependencies WHERE story_id = ? OR depends_on_story_id = ?`,
			[]any{dup, dup}},
		{"self-loops",
			`DELETE FROM story_dependencies WHERE story_id = depends_on_story_id`,
			nil},
		{"duplicate story",
			`DELETE FROM stories WHERE id = ?`,
			[]any{dup}},
	}
	for _, s := range steps {
		if err := exec(s.query, s.args...); err != nil {
			return 0, fmt.Errorf("redirect %s: %w", s.name, err)
		}
	}
	return total, nil
}

// RecordMerge appends an entry to the merge ledger. Recording the same
// duplicate twice is a no-op.
func (t *Tx) RecordMerge(ctx context.Context, rec ir.MergeRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO merge_ledger (duplicate_story_id, canonical_story_id, merged_at)
		VALUES (?, ?, ?)
		ON CONFLICT(duplicate_story_id) DO NOTHING
	`, rec.DuplicateStoryID, rec.CanonicalStoryID, formatTime(rec.MergedAt))
	if err != nil {
		return fmt.Errorf("record merge %s -> %s: %w", rec.DuplicateStoryID, rec.CanonicalStoryID, err)
	}
	return nil
}

// MergedDuplicateIDs returns every story ID recorded as a merge duplicate.
func (s *Store) MergedDuplicateIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT duplicate_story_id FROM merge_ledger`)
	if err != nil {
		return nil, fmt.Errorf("query merge ledger: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan merge ledger: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// MergeRecords returns the merge ledger in the order entries were recorded.
func (s *Store) MergeRecords(ctx context.Context) ([]ir.MergeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT duplicate_story_id, canonical_story_id, merged_at
		FROM merge_ledger
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query merge ledger: %w", err)
	}
	defer rows.Close()

	records := []ir.MergeRecord{}
	for rows.Next() {
		var rec ir.MergeRecord
		var mergedAt string
		if err := rows.Scan(&rec.DuplicateStoryID, &rec.CanonicalStoryID, &mergedAt); err != nil {
			return nil, fmt.Errorf("scan merge ledger: %w", err)
		}
		rec.MergedAt = parseTime(mergedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}
