package ir

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ProtocolVersion identifies the event and row-hash format exchanged
// between nodes.
const ProtocolVersion = "1"

// Version is the total order used to resolve concurrent writes.
//
// Ordering: LogicalTS numerically, then ActorID lexicographically, then
// ActorCounter numerically. ActorID is unique per node and ActorCounter is
// strictly monotonic per node, so no two distinct events compare equal.
type Version struct {
	LogicalTS    int64  `json:"logical_ts"`
	ActorID      string `json:"actor_id"`
	ActorCounter int64  `json:"actor_counter"`
}

// Compare returns -1, 0 or +1 as v sorts before, equal to, or after o.
// Every conflict decision in the module goes through this method.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.LogicalTS, o.LogicalTS); c != 0 {
		return c
	}
	if c := strings.Compare(v.ActorID, o.ActorID); c != 0 {
		return c
	}
	return cmp.Compare(v.ActorCounter, o.ActorCounter)
}

// After reports whether v strictly supersedes o.
func (v Version) After(o Version) bool {
	return v.Compare(o) > 0
}

// IsZero reports whether v is the zero version (no write recorded).
func (v Version) IsZero() bool {
	return v == Version{}
}

// EventID returns the idempotency key of the event that carried v.
func (v Version) EventID() string {
	return EventID(v.ActorID, v.ActorCounter)
}

func (v Version) String() string {
	return fmt.Sprintf("(%d,%s,%d)", v.LogicalTS, v.ActorID, v.ActorCounter)
}

// VersionVector maps actor_id to the highest actor_counter seen from it.
type VersionVector map[string]int64

// Get returns the recorded counter for an actor, 0 when absent.
func (vv VersionVector) Get(actorID string) int64 {
	return vv[actorID]
}

// Covers reports whether the vector already reflects the given event
// coordinates.
func (vv VersionVector) Covers(actorID string, counter int64) bool {
	return counter <= vv[actorID]
}

// Observe raises the actor's entry to counter if it is higher.
// Returns true when the vector changed.
func (vv VersionVector) Observe(actorID string, counter int64) bool {
	if counter > vv[actorID] {
		vv[actorID] = counter
		return true
	}
	return false
}

// Actors returns the actor IDs in lexicographic order.
func (vv VersionVector) Actors() []string {
	keys := make([]string, 0, len(vv))
	for k := range vv {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone returns an independent copy.
func (vv VersionVector) Clone() VersionVector {
	out := make(VersionVector, len(vv))
	maps.Copy(out, vv)
	return out
}
