// Package merge collapses independently created duplicate stories.
//
// Two nodes that pick up the same requirement can each create a story for
// it. Once replication has converged, a merge pass groups stories by
// (team_id, requirement_id), links pairs whose text similarity reaches a
// threshold, and collapses each connected component onto its smallest ID.
// Every reference to a duplicate is rewritten to the survivor in one
// transaction, and the pair is appended to the merge ledger so the
// duplicate is never merged again.
package merge
