package merge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
)

// DefaultThreshold is the similarity at or above which two stories in the
// same scope are considered duplicates.
const DefaultThreshold = 0.85

// Group is one set of duplicate stories and the survivor they collapse to.
type Group struct {
	Canonical  string   `json:"canonical"`
	Duplicates []string `json:"duplicates"`
}

// Merger runs duplicate-story merge passes over one node's store.
type Merger struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// Option allows configuration of merger parameters.
type Option func(*Merger)

// WithLogger sets the structured logger.
//
// Default: slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(m *Merger) {
		m.logger = l
	}
}

// WithNow sets the time source for merged_at.
//
// Default: time.Now
func WithNow(now func() time.Time) Option {
	return func(m *Merger) {
		m.now = now
	}
}

// New creates a Merger over s.
func New(s *store.Store, opts ...Option) *Merger {
	m := &Merger{
		store:  s,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MergeSimilarStories collapses duplicate stories and returns the number
// of duplicates removed.
//
// Each duplicate is merged in its own transaction: references are
// rewritten to the canonical story, the duplicate is deleted and the
// merge ledger is appended. A duplicate that fails is logged and skipped;
// the next pass retries it.
func (m *Merger) MergeSimilarStories(ctx context.Context, threshold float64) (int, error) {
	groups, err := m.FindGroups(ctx, threshold)
	if err != nil {
		return 0, err
	}

	merged := 0
	for _, g := range groups {
		for _, dup := range g.Duplicates {
			if err := ctx.Err(); err != nil {
				return merged, err
			}
			if err := m.mergeOne(ctx, dup, g.Canonical); err != nil {
				m.logger.Error("story merge failed",
					"duplicate", dup, "canonical", g.Canonical, "error", err)
				continue
			}
			merged++
		}
	}

	if merged > 0 {
		m.logger.Info("merged duplicate stories", "groups", len(groups), "removed", merged)
	}
	return merged, nil
}

// FindGroups computes the duplicate groups a merge pass would collapse
// without changing anything.
//
// Candidates share team_id and requirement_id (NULL matches NULL) and
// have never been recorded as a merge duplicate. Pairs scoring at or
// above threshold are linked; linking is transitive. Groups are ordered
// by canonical ID and duplicates within a group ascend.
func (m *Merger) FindGroups(ctx context.Context, threshold float64) ([]Group, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("merge threshold %v outside [0,1]", threshold)
	}

	rows, err := m.store.ReadRows(ctx, store.MustTable(store.TableStories))
	if err != nil {
		return nil, fmt.Errorf("read stories: %w", err)
	}
	merged, err := m.store.MergedDuplicateIDs(ctx)
	if err != nil {
		return nil, err
	}

	// Rows arrive in ID order, so every scope lists its stories ascending
	// and the first member of a component is its smallest ID.
	var scopes []scopeKey
	byScope := make(map[scopeKey][]candidate)
	for _, row := range rows {
		id := row.String("id")
		if _, done := merged[id]; done {
			continue
		}
		key := scopeOf(row)
		if _, ok := byScope[key]; !ok {
			scopes = append(scopes, key)
		}
		byScope[key] = append(byScope[key], candidate{
			id:     id,
			tokens: tokenSet(row.String("title") + " " + row.String("description")),
		})
	}

	var groups []Group
	for _, key := range scopes {
		groups = append(groups, groupScope(byScope[key], threshold)...)
	}
	slices.SortFunc(groups, func(a, b Group) int {
		return strings.Compare(a.Canonical, b.Canonical)
	})
	return groups, nil
}

// Records returns the merge ledger in the order merges happened.
func (m *Merger) Records(ctx context.Context) ([]ir.MergeRecord, error) {
	return m.store.MergeRecords(ctx)
}

func (m *Merger) mergeOne(ctx context.Context, dup, canonical string) error {
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.RedirectStory(ctx, dup, canonical)
		if err != nil {
			return err
		}
		if err := tx.RecordMerge(ctx, ir.MergeRecord{
			DuplicateStoryID: dup,
			CanonicalStoryID: canonical,
			MergedAt:         m.now(),
		}); err != nil {
			return err
		}
		m.logger.Debug("story merged", "duplicate", dup, "canonical", canonical, "rows", n)
		return nil
	})
}

type candidate struct {
	id     string
	tokens map[string]struct{}
}

type scopeKey struct {
	team, requirement       string
	hasTeam, hasRequirement bool
}

func scopeOf(row ir.Row) scopeKey {
	var k scopeKey
	k.team, k.hasTeam = row.NullableString("team_id")
	k.requirement, k.hasRequirement = row.NullableString("requirement_id")
	return k
}

func groupScope(cands []candidate, threshold float64) []Group {
	if len(cands) < 2 {
		return nil
	}
	ds := newDisjointSet(len(cands))
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if ds.find(i) == ds.find(j) {
				continue
			}
			// Stories sharing no word are never linked, even at threshold 0.
			if score := jaccard(cands[i].tokens, cands[j].tokens); score > 0 && score >= threshold {
				ds.union(i, j)
			}
		}
	}

	var groups []Group
	for _, members := range ds.components() {
		g := Group{Canonical: cands[members[0]].id}
		for _, idx := range members[1:] {
			g.Duplicates = append(g.Duplicates, cands[idx].id)
		}
		groups = append(groups, g)
	}
	return groups
}
