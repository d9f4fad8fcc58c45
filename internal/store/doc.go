// Package store provides SQLite-backed durable storage for one fleetsync node.
//
// A node's database holds two groups of tables:
//   - Replicated tables: agents, stories, pull_requests, escalations,
//     story_logs, story_dependencies. Their content belongs to the
//     application layer; this package only reads and writes rows through
//     the TableSpec registry.
//   - Bookkeeping tables owned by this package: cluster_events (append-only
//     event history), applied_events (idempotency ledger), row_hashes,
//     row_versions (current Version per row, tombstones included),
//     version_vector, merge_ledger and node_meta.
//
// # Invariants
//
// Idempotency: cluster_events.event_id and applied_events.event_id are
// unique; re-inserting an event with the same fingerprint is a no-op and
// with a different fingerprint returns ErrEventIDConflict.
//
// Deterministic reads: every multi-row query has an ORDER BY on a unique
// key so scans, deltas and merges see rows in the same order on every node.
//
// Atomicity: multi-statement changes run through WithTx. The scanner,
// the applier and each merge step commit all their bookkeeping together.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity on bookkeeping tables
//   - One open connection: the node is a single writer
package store
