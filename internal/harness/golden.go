package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/fleetsync/internal/ir"
)

// Snapshot is the golden view of a run: the step trace plus the tables and
// version vector of the first node in ID order. Converged scenarios make
// that node representative of all of them.
type Snapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Tables       map[string][]ir.Row
	Vector       ir.VersionVector
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(name string, result *Result) Snapshot {
	s := Snapshot{ScenarioName: name, Trace: result.Trace}
	if nodes := sortedNodes(result); len(nodes) > 0 {
		s.Tables = result.State[nodes[0]]
		s.Vector = result.Vectors[nodes[0]]
	}
	return s
}

// toCanonicalMap converts the snapshot for ir.MarshalCanonical, which only
// handles rows, maps, slices and primitives. Empty tables are left out.
func (s *Snapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"step":   ev.Step,
			"action": ev.Action,
			"count":  ev.Count,
		}
		if ev.Node != "" {
			m["node"] = ev.Node
		}
		if ev.From != "" {
			m["from"] = ev.From
		}
		trace[i] = m
	}

	tables := make(map[string]any)
	for name, rows := range s.Tables {
		if len(rows) == 0 {
			continue
		}
		list := make([]any, len(rows))
		for i, r := range rows {
			list[i] = r
		}
		tables[name] = list
	}

	vector := make(map[string]any, len(s.Vector))
	for actor, counter := range s.Vector {
		vector[actor] = counter
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"trace":    trace,
		"tables":   tables,
		"vector":   vector,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := NewSnapshot(scenarioName, result)
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
