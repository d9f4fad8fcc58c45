package node

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run scans and merges on the configured intervals until ctx is done.
// A merge interval of zero disables the merge loop. Failed passes are
// logged and retried on the next tick.
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.every(ctx, n.cfg.Sync.ScanInterval, "scan", func(ctx context.Context) error {
			events, err := n.Scan(ctx)
			if err == nil && len(events) > 0 {
				n.logger.Info("scan emitted events", "events", len(events))
			}
			return err
		})
	})

	if n.cfg.Sync.MergeInterval > 0 {
		g.Go(func() error {
			return n.every(ctx, n.cfg.Sync.MergeInterval, "merge", func(ctx context.Context) error {
				merged, err := n.Merge(ctx, -1)
				if err == nil && merged > 0 {
					n.logger.Info("merged duplicate stories", "merged", merged)
				}
				return err
			})
		})
	}

	n.logger.Info("node running",
		"scan_interval", n.cfg.Sync.ScanInterval,
		"merge_interval", n.cfg.Sync.MergeInterval)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *Node) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n.logger.Error(name+" pass failed", "error", err)
			}
		}
	}
}
