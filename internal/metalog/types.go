package metalog

import (
	"encoding/json"
	"maps"
	"time"

	"github.com/roach88/fleetsync/internal/ir"
)

// RaftState is the persisted coordination snapshot.
type RaftState struct {
	CurrentTerm  uint64 `json:"current_term"`
	VotedFor     string `json:"voted_for"`
	LeaderID     string `json:"leader_id"`
	CommitIndex  uint64 `json:"commit_index"`
	LastApplied  uint64 `json:"last_applied"`
	LastLogIndex uint64 `json:"last_log_index"`

	// Extra holds keys written through StableStore that have no field of
	// their own.
	Extra map[string][]byte `json:"extra,omitempty"`
}

func (s RaftState) clone() RaftState {
	if s.Extra != nil {
		s.Extra = maps.Clone(s.Extra)
	}
	return s
}

// StatePatch is a partial update to RaftState. Nil fields are left as is.
// LastLogIndex is owned by the log and cannot be patched.
type StatePatch struct {
	CurrentTerm *uint64
	VotedFor    *string
	LeaderID    *string
	CommitIndex *uint64
	LastApplied *uint64
}

func (p StatePatch) apply(s *RaftState) {
	if p.CurrentTerm != nil {
		s.CurrentTerm = *p.CurrentTerm
	}
	if p.VotedFor != nil {
		s.VotedFor = *p.VotedFor
	}
	if p.LeaderID != nil {
		s.LeaderID = *p.LeaderID
	}
	if p.CommitIndex != nil {
		s.CommitIndex = *p.CommitIndex
	}
	if p.LastApplied != nil {
		s.LastApplied = *p.LastApplied
	}
}

// EntryType tags what a LogEntry carries.
type EntryType string

const (
	// EntryMetadata carries opaque coordination data in Data.
	EntryMetadata EntryType = "metadata"

	// EntryClusterEvent mirrors one replicated ClusterEvent.
	EntryClusterEvent EntryType = "cluster_event"
)

// LogEntry is one line of log.jsonl.
type LogEntry struct {
	Index     uint64           `json:"index"`
	Term      uint64           `json:"term"`
	Type      EntryType        `json:"type"`
	EventID   string           `json:"event_id,omitempty"`
	Event     *ir.ClusterEvent `json:"event,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Ptr returns a pointer to v, for building a StatePatch.
func Ptr[T any](v T) *T {
	return &v
}
