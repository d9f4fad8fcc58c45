package node

import (
	"context"
	"fmt"

	"github.com/roach88/fleetsync/internal/engine"
)

// PullResult sums the outcome of one Pull.
type PullResult struct {
	Rounds int                `json:"rounds"`
	Events int                `json:"events"`
	Apply  engine.ApplyResult `json:"apply"`
}

// Pull runs anti-entropy rounds against peer: send the local vector,
// apply the returned delta, repeat until the peer has nothing more or a
// round makes no progress. limit <= 0 uses the configured delta limit.
func (n *Node) Pull(ctx context.Context, peer engine.DeltaSource, limit int) (PullResult, error) {
	if limit <= 0 {
		limit = n.cfg.Sync.DeltaLimit
	}

	var out PullResult
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		n.mu.Lock()
		round, done, err := n.pullRound(ctx, peer, limit)
		n.mu.Unlock()

		out.Rounds++
		out.Events += round.Total()
		addResult(&out.Apply, round)
		if err != nil {
			return out, err
		}
		if done {
			n.logger.Debug("pull complete", "rounds", out.Rounds, "events", out.Events)
			return out, nil
		}
	}
}

func (n *Node) pullRound(ctx context.Context, peer engine.DeltaSource, limit int) (engine.ApplyResult, bool, error) {
	vv, err := n.engine.VersionVector(ctx)
	if err != nil {
		return engine.ApplyResult{}, true, err
	}
	batch, err := peer.Delta(ctx, vv, limit)
	if err != nil {
		return engine.ApplyResult{}, true, fmt.Errorf("pull delta: %w", err)
	}
	if len(batch) == 0 {
		return engine.ApplyResult{}, true, nil
	}

	res, err := n.applyLocked(ctx, batch)
	if err != nil {
		return res, true, err
	}

	// A short batch means the peer had nothing more. A full batch that
	// recorded nothing would be served again unchanged.
	done := len(batch) < limit || len(res.Recorded) == 0
	return res, done, nil
}

func addResult(dst *engine.ApplyResult, r engine.ApplyResult) {
	dst.Applied += r.Applied
	dst.Duplicate += r.Duplicate
	dst.Stale += r.Stale
	dst.Unsupported += r.Unsupported
	dst.Conflicting += r.Conflicting
	dst.Invalid += r.Invalid
	dst.Recorded = append(dst.Recorded, r.Recorded...)
}
