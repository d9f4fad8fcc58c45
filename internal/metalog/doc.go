// Package metalog persists a node's coordination bookkeeping: a RaftState
// snapshot and an append-only, line-delimited entry log.
//
// Layout under the store directory:
//
//	state.json  RaftState, rewritten whole via temp file, fsync and rename
//	log.jsonl   one LogEntry per line, fsynced on every append
//
// Open replays the log to rebuild last_log_index and the set of mirrored
// cluster event IDs. Lines that fail to parse are skipped with a warning;
// a torn final line left by a crash mid-append is truncated away before
// appending resumes.
//
// The package holds no election or heartbeat logic. StableStore exposes
// the snapshot through hashicorp/raft's raft.StableStore interface so a
// raft node can use it for term and vote bookkeeping.
package metalog
