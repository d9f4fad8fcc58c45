package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fleetsync/internal/metrics"
	"github.com/roach88/fleetsync/internal/node"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the node: periodic scans and merge passes",
		Long: `Start the node daemon.

The node scans for local changes every sync.scan_interval and runs a
duplicate-story merge pass every sync.merge_interval (0 disables merging).
With metrics.enabled, an admin endpoint serving /metrics, /healthz,
/state and /vector listens on metrics.addr.

Stops on SIGINT or SIGTERM.

Example:
  fleetsync run --config node.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(rootOpts, cmd)
		},
	}
}

func runNode(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	n, err := openNode(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := n.Close(); closeErr != nil {
			slog.Error("error closing node", "error", closeErr)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg := n.Config()
	fmt.Fprintf(cmd.OutOrStdout(), "Node %s running. Press Ctrl-C to stop.\n", n.ActorID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Run(gctx) })
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			slog.Info("admin endpoint listening", "addr", cfg.Metrics.Addr)
			return node.Serve(gctx, cfg.Metrics.Addr, n.Router(metrics.Handler(nil)))
		})
	}

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "node error", err)
	}
	slog.Info("node stopped gracefully")
	return nil
}
