// Package ir defines the replication data model shared by every fleetsync
// package: cluster events, versions, version vectors and row snapshots.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Conflict resolution uses Version.Compare and nothing else
//   - created_at on events is diagnostic, never consulted for ordering
//   - Row hashes and event fingerprints use canonical JSON (sorted keys,
//     NFC strings, no HTML escaping) and SHA-256 with domain separation
//   - All JSON tags use snake_case
package ir
