// Package engine implements change capture and anti-entropy replication
// for one fleetsync node.
//
// ARCHITECTURE:
//
// Every node owns a local SQLite store. The engine turns local row
// mutations into versioned ClusterEvents (Scan), serves the events a peer
// is missing (Delta), and applies a peer's events with deterministic
// conflict resolution (Apply). Nodes converge without a coordinator.
//
// Event Flow:
//  1. Application code writes replicated tables directly.
//  2. Scan hashes every replicated row and emits an event per changed or
//     deleted row, stamped with Version (logical_ts, actor_id, counter).
//  3. A peer calls Delta with its version vector and receives a bounded,
//     ordered batch.
//  4. The peer's Apply writes each event in its own transaction, skipping
//     duplicates and stale versions.
//
// CRITICAL PATTERNS:
//
// Single Comparator:
// Every conflict decision uses ir.Version.Compare. The highest version
// wins, deletes included; tombstones are kept so an older upsert cannot
// resurrect a deleted row.
//
// Hybrid Logical Time:
// A scan stamps its events with max(wall clock, max known logical_ts + 1),
// so a local edit always supersedes everything the node has seen.
//
// Idempotency:
// event_id ("actor:counter") is the idempotency key. Re-applying a batch
// is a no-op; reusing an event_id for different content is rejected.
package engine
