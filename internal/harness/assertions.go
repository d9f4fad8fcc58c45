package harness

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// assertConverged checks that every node holds the same rows and the same
// version vector as the first node.
func assertConverged(result *Result) error {
	nodes := sortedNodes(result)
	if len(nodes) < 2 {
		return nil
	}
	ref := nodes[0]

	for _, id := range nodes[1:] {
		for _, t := range store.ReplicatedTables() {
			want := result.State[ref][t.Name]
			got := result.State[id][t.Name]
			if !rowsEqual(want, got) {
				return &AssertionError{
					Type:     AssertConverged,
					Expected: fmt.Sprintf("%s.%s equal to %s (%d rows)", id, t.Name, ref, len(want)),
					Actual:   fmt.Sprintf("%d rows differing: %s", len(got), firstDifference(want, got)),
				}
			}
		}
		if !maps.Equal(result.Vectors[ref], result.Vectors[id]) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("%s vector %v", id, result.Vectors[ref]),
				Actual:   fmt.Sprintf("%v", result.Vectors[id]),
			}
		}
	}
	return nil
}

// assertRowCount checks the number of rows in a table on one node.
func assertRowCount(result *Result, a Assertion) error {
	got := len(result.State[a.Node][a.Table])
	if got != a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s.%s", a.Count, a.Node, a.Table),
			Actual:   fmt.Sprintf("%d rows", got),
		}
	}
	return nil
}

// assertRowField checks one column of one row.
func assertRowField(result *Result, a Assertion) error {
	row, ok := findRow(result, a)
	if !ok {
		return &AssertionError{
			Type:     AssertRowField,
			Expected: fmt.Sprintf("row %s in %s.%s", a.RowID, a.Node, a.Table),
			Actual:   "row not found",
		}
	}
	actual, present := row[a.Field]
	if !present {
		return &AssertionError{
			Type:     AssertRowField,
			Expected: fmt.Sprintf("column %s on %s.%s/%s", a.Field, a.Node, a.Table, a.RowID),
			Actual:   "no such column",
		}
	}
	if !stateValuesEqual(a.Value, actual) {
		return &AssertionError{
			Type:     AssertRowField,
			Expected: fmt.Sprintf("%s.%s/%s %s=%v", a.Node, a.Table, a.RowID, a.Field, a.Value),
			Actual:   fmt.Sprintf("%v", actual),
		}
	}
	return nil
}

// assertRowAbsent checks that a row does not exist.
func assertRowAbsent(result *Result, a Assertion) error {
	if row, ok := findRow(result, a); ok {
		return &AssertionError{
			Type:     AssertRowAbsent,
			Expected: fmt.Sprintf("no row %s in %s.%s", a.RowID, a.Node, a.Table),
			Actual:   fmt.Sprintf("found %v", map[string]any(row)),
		}
	}
	return nil
}

func findRow(result *Result, a Assertion) (ir.Row, bool) {
	table := store.MustTable(a.Table)
	for _, row := range result.State[a.Node][a.Table] {
		id, err := table.RowID(row)
		if err == nil && id == a.RowID {
			return row, true
		}
	}
	return nil, false
}

func sortedNodes(result *Result) []string {
	nodes := make([]string, 0, len(result.State))
	for id := range result.State {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

func rowsEqual(a, b []ir.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func firstDifference(a, b []ir.Row) string {
	for i := 0; i < len(a) && i < len(b); i++ {
		if !reflect.DeepEqual(a[i], b[i]) {
			return fmt.Sprintf("%v vs %v", map[string]any(a[i]), map[string]any(b[i]))
		}
	}
	return "row count"
}

// stateValuesEqual compares an expected YAML value with a stored column
// value. YAML integers decode as int; SQLite returns int64.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case int:
		if act, ok := actual.(int64); ok {
			return int64(exp) == act
		}
		return false
	case int64:
		if act, ok := actual.(int64); ok {
			return exp == act
		}
		return false
	case float64:
		switch act := actual.(type) {
		case float64:
			return exp == act
		case int64:
			return exp == float64(act)
		}
		return false
	case bool:
		if act, ok := actual.(bool); ok {
			return exp == act
		}
		// SQLite stores booleans as integers.
		if act, ok := actual.(int64); ok {
			return exp == (act != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(result)
		case AssertRowCount:
			err = assertRowCount(result, assertion)
		case AssertRowField:
			err = assertRowField(result, assertion)
		case AssertRowAbsent:
			err = assertRowAbsent(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
