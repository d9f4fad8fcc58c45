// Package harness runs multi-node convergence scenarios against real
// fleetsync nodes.
//
// A scenario is a YAML file naming a set of nodes, each with its own
// deterministic clock, and a list of steps: row writes and deletes, scans,
// pulls between nodes, full anti-entropy syncs, merge passes and clock
// moves. After the steps run, assertions check the resulting state:
//
//   - converged: every node holds identical rows in every replicated table
//     and the same version vector
//   - row_count: number of rows in a table on one node
//   - row_field: one column of one row on one node
//   - row_absent: a row does not exist on one node
//
// Each node lives in its own directory under a temporary root that is
// removed when the run ends, so scenarios are isolated from one another.
// Because clocks only move when a step moves them, a scenario produces the
// same event IDs and versions every time, and its converged state can be
// compared against a golden file (see RunWithGolden).
package harness
