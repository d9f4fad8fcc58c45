package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fleetsync/internal/store"
)

// DefaultClockStart is the clock reading of a node that does not set one.
const DefaultClockStart int64 = 1_000

// Scenario defines a convergence scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Nodes lists the participating nodes in a fixed order. Sync steps
	// visit them in this order.
	Nodes []NodeSpec `yaml:"nodes"`

	// Steps run sequentially.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// NodeSpec declares one node.
type NodeSpec struct {
	// ID is the node's actor ID.
	ID string `yaml:"id"`

	// Clock is the starting clock reading in milliseconds.
	// Default: DefaultClockStart.
	Clock *int64 `yaml:"clock,omitempty"`
}

// Step is one scenario action. Action selects which other fields apply:
//
//	write    node, table, row
//	delete   node, table, row_id
//	scan     node (all nodes when empty)
//	pull     node, from, limit
//	sync     (none) every node pulls from every other until quiet
//	merge    node, threshold (configured default when absent)
//	advance  node (all nodes when empty), millis
type Step struct {
	Action    string         `yaml:"action"`
	Node      string         `yaml:"node,omitempty"`
	Table     string         `yaml:"table,omitempty"`
	Row       map[string]any `yaml:"row,omitempty"`
	RowID     string         `yaml:"row_id,omitempty"`
	From      string         `yaml:"from,omitempty"`
	Limit     int            `yaml:"limit,omitempty"`
	Threshold *float64       `yaml:"threshold,omitempty"`
	Millis    int64          `yaml:"millis,omitempty"`
}

// Step actions.
const (
	ActionWrite   = "write"
	ActionDelete  = "delete"
	ActionScan    = "scan"
	ActionPull    = "pull"
	ActionSync    = "sync"
	ActionMerge   = "merge"
	ActionAdvance = "advance"
)

// Assertion validates final state.
type Assertion struct {
	// Type is one of converged, row_count, row_field, row_absent.
	Type string `yaml:"type"`

	// Node is the node inspected (row_count, row_field, row_absent).
	Node string `yaml:"node,omitempty"`

	// Table is the replicated table inspected.
	Table string `yaml:"table,omitempty"`

	// RowID selects the row (row_field, row_absent).
	RowID string `yaml:"row_id,omitempty"`

	// Field is the column compared by row_field.
	Field string `yaml:"field,omitempty"`

	// Value is the expected column value for row_field. Null matches SQL
	// NULL.
	Value any `yaml:"value,omitempty"`

	// Count is the expected row count for row_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertRowCount  = "row_count"
	AssertRowField  = "row_field"
	AssertRowAbsent = "row_absent"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files in dir whose base name
// matches filter (a filepath.Match pattern; empty matches all), sorted.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			ok, err := filepath.Match(filter, e.Name())
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !ok {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Nodes) == 0 {
		return fmt.Errorf("at least one node is required")
	}

	nodes := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.ID == "" {
			return fmt.Errorf("nodes[%d]: id is required", i)
		}
		if nodes[n.ID] {
			return fmt.Errorf("nodes[%d]: duplicate id %q", i, n.ID)
		}
		nodes[n.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, nodes); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, nodes); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, nodes map[string]bool) error {
	if step.Node != "" && !nodes[step.Node] {
		return fmt.Errorf("steps[%d]: unknown node %q", index, step.Node)
	}

	needNode := func() error {
		if step.Node == "" {
			return fmt.Errorf("steps[%d]: node is required for %s", index, step.Action)
		}
		return nil
	}
	needTable := func() error {
		if _, ok := store.LookupTable(step.Table); !ok {
			return fmt.Errorf("steps[%d]: unknown table %q", index, step.Table)
		}
		return nil
	}

	switch step.Action {
	case ActionWrite:
		if err := needNode(); err != nil {
			return err
		}
		if err := needTable(); err != nil {
			return err
		}
		if len(step.Row) == 0 {
			return fmt.Errorf("steps[%d]: row is required for write", index)
		}
	case ActionDelete:
		if err := needNode(); err != nil {
			return err
		}
		if err := needTable(); err != nil {
			return err
		}
		if step.RowID == "" {
			return fmt.Errorf("steps[%d]: row_id is required for delete", index)
		}
	case ActionPull:
		if err := needNode(); err != nil {
			return err
		}
		if !nodes[step.From] {
			return fmt.Errorf("steps[%d]: pull needs a known from node, got %q", index, step.From)
		}
		if step.From == step.Node {
			return fmt.Errorf("steps[%d]: node cannot pull from itself", index)
		}
	case ActionMerge:
		if err := needNode(); err != nil {
			return err
		}
		if t := step.Threshold; t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("steps[%d]: threshold %v outside [0,1]", index, *t)
		}
	case ActionAdvance:
		if step.Millis == 0 {
			return fmt.Errorf("steps[%d]: millis is required for advance", index)
		}
	case ActionScan, ActionSync:
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

func validateAssertion(index int, a Assertion, nodes map[string]bool) error {
	if a.Type == AssertConverged {
		return nil
	}

	switch a.Type {
	case AssertRowCount, AssertRowField, AssertRowAbsent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if !nodes[a.Node] {
		return fmt.Errorf("assertions[%d]: unknown node %q", index, a.Node)
	}
	if _, ok := store.LookupTable(a.Table); !ok {
		return fmt.Errorf("assertions[%d]: unknown table %q", index, a.Table)
	}

	switch a.Type {
	case AssertRowCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertRowField:
		if a.RowID == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: row_id and field are required for row_field", index)
		}
	case AssertRowAbsent:
		if a.RowID == "" {
			return fmt.Errorf("assertions[%d]: row_id is required for row_absent", index)
		}
	}
	return nil
}
