package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/fleetsync/internal/config"
	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/node"
	"github.com/roach88/fleetsync/internal/store"
	"github.com/roach88/fleetsync/internal/testutil"
)

// fixedNow stamps merge records and metadata log entries.
var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness holds the nodes of one scenario run.
type Harness struct {
	order  []string
	nodes  map[string]*node.Node
	clocks map[string]*testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. open one node per NodeSpec under a fresh temporary root
//  2. run the steps in order
//  3. capture every node's tables and version vector
//  4. evaluate the assertions
//
// A step that fails returns an error; assertion failures are reported in
// the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	root, err := os.MkdirTemp("", "fleetsync-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario root: %w", err)
	}
	defer os.RemoveAll(root)

	h, err := open(ctx, root, scenario.Nodes)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	if err := h.capture(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func open(ctx context.Context, root string, specs []NodeSpec) (*Harness, error) {
	h := &Harness{
		nodes:  make(map[string]*node.Node, len(specs)),
		clocks: make(map[string]*testutil.DeterministicClock, len(specs)),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, spec := range specs {
		start := DefaultClockStart
		if spec.Clock != nil {
			start = *spec.Clock
		}
		clock := testutil.NewDeterministicClock(start)

		cfg := *config.Default()
		cfg.Node.ID = spec.ID
		cfg.Node.DataDir = filepath.Join(root, spec.ID)

		n, err := node.Open(ctx, cfg, node.Options{
			Logger: h.logger,
			Clock:  clock,
			Now:    func() time.Time { return fixedNow },
		})
		if err != nil {
			h.close()
			return nil, fmt.Errorf("failed to open node %s: %w", spec.ID, err)
		}
		h.order = append(h.order, spec.ID)
		h.nodes[spec.ID] = n
		h.clocks[spec.ID] = clock
	}
	return h, nil
}

func (h *Harness) close() {
	for _, id := range h.order {
		h.nodes[id].Close()
	}
}

// targets returns the named node, or every node when id is empty.
func (h *Harness) targets(id string) []string {
	if id == "" {
		return h.order
	}
	return []string{id}
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	trace := TraceEvent{Step: i, Action: step.Action, Node: step.Node, From: step.From}

	switch step.Action {
	case ActionWrite:
		table := store.MustTable(step.Table)
		if err := h.nodes[step.Node].Store().UpsertRow(ctx, table, ir.Row(step.Row)); err != nil {
			return err
		}
		trace.Count = 1

	case ActionDelete:
		table := store.MustTable(step.Table)
		if err := h.nodes[step.Node].Store().DeleteRow(ctx, table, step.RowID); err != nil {
			return err
		}
		trace.Count = 1

	case ActionScan:
		for _, id := range h.targets(step.Node) {
			events, err := h.nodes[id].Scan(ctx)
			if err != nil {
				return err
			}
			trace.Count += len(events)
		}

	case ActionPull:
		res, err := h.nodes[step.Node].Pull(ctx, h.nodes[step.From], step.Limit)
		if err != nil {
			return err
		}
		trace.Count = res.Apply.Applied

	case ActionSync:
		applied, err := h.sync(ctx)
		if err != nil {
			return err
		}
		trace.Count = applied

	case ActionMerge:
		threshold := -1.0
		if step.Threshold != nil {
			threshold = *step.Threshold
		}
		merged, err := h.nodes[step.Node].Merge(ctx, threshold)
		if err != nil {
			return err
		}
		trace.Count = merged

	case ActionAdvance:
		for _, id := range h.targets(step.Node) {
			h.clocks[id].Advance(step.Millis)
		}

	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	h.logger.Info("step completed", "step", i, "action", step.Action, "count", trace.Count)
	result.AddTrace(trace)
	return nil
}

// sync runs anti-entropy rounds, each node pulling from every other node
// in declaration order, until a round records nothing new anywhere.
// Returns the number of events applied.
func (h *Harness) sync(ctx context.Context) (int, error) {
	applied := 0
	// Each round spreads every event at least one hop; n nodes need at
	// most n-1 hops, plus one quiet round.
	for round := 0; round <= len(h.order); round++ {
		recorded := 0
		for _, dst := range h.order {
			for _, src := range h.order {
				if src == dst {
					continue
				}
				res, err := h.nodes[dst].Pull(ctx, h.nodes[src], 0)
				if err != nil {
					return applied, fmt.Errorf("%s pull from %s: %w", dst, src, err)
				}
				applied += res.Apply.Applied
				recorded += len(res.Apply.Recorded)
			}
		}
		if recorded == 0 {
			return applied, nil
		}
	}
	return applied, fmt.Errorf("nodes still exchanging events after %d rounds", len(h.order)+1)
}

// capture reads every node's replicated tables and version vector.
func (h *Harness) capture(ctx context.Context, result *Result) error {
	for _, id := range h.order {
		n := h.nodes[id]
		tables := make(map[string][]ir.Row)
		for _, t := range store.ReplicatedTables() {
			rows, err := n.Store().ReadRows(ctx, t)
			if err != nil {
				return err
			}
			tables[t.Name] = rows
		}
		vv, err := n.VersionVector(ctx)
		if err != nil {
			return err
		}
		result.State[id] = tables
		result.Vectors[id] = vv
	}
	return nil
}
