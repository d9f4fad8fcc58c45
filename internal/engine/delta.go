package engine

import (
	"context"
	"fmt"

	"github.com/roach88/fleetsync/internal/ir"
)

// DefaultDeltaLimit is the batch size used when callers do not choose one.
const DefaultDeltaLimit = 500

// DeltaSource serves the events a peer is missing.
//
// Engine implements it directly; a network transport would implement it
// on the client side of a peer connection.
type DeltaSource interface {
	Delta(ctx context.Context, vv ir.VersionVector, limit int) ([]ir.ClusterEvent, error)
}

// Delta returns the events not covered by vv, ordered by actor_id and then
// actor_counter, truncated to limit. An empty vector yields everything up
// to limit; limit <= 0 yields nothing.
func (e *Engine) Delta(ctx context.Context, vv ir.VersionVector, limit int) ([]ir.ClusterEvent, error) {
	events, err := e.store.EventsAfter(ctx, vv, limit)
	if err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	e.logger.Debug("delta served", "events", len(events), "limit", limit)
	return events, nil
}

var _ DeltaSource = (*Engine)(nil)
