package harness

import "github.com/roach88/fleetsync/internal/ir"

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	Node   string `json:"node,omitempty"`
	From   string `json:"from,omitempty"`

	// Count is the step's yield: events emitted by a scan, events applied
	// by a pull or sync, duplicates removed by a merge.
	Count int `json:"count"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds the failed assertion messages.
	Errors []string `json:"errors,omitempty"`

	// State is the final content of every replicated table on each node,
	// keyed by node ID and then table name.
	State map[string]map[string][]ir.Row `json:"state,omitempty"`

	// Vectors is each node's final version vector.
	Vectors map[string]ir.VersionVector `json:"vectors,omitempty"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		State:   make(map[string]map[string][]ir.Row),
		Vectors: make(map[string]ir.VersionVector),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step record.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
