package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/fleetsync/internal/ir"
)

// DeltaOptions holds flags for the delta command.
type DeltaOptions struct {
	*RootOptions
	Vector string
	Limit  int
}

// NewDeltaCommand creates the delta command.
func NewDeltaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeltaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delta",
		Short: "Print the events a peer is missing",
		Long: `Read a peer's version vector and print, as a JSON array, the events
it has not seen, ordered by actor and counter and capped at --limit.

An empty vector ({}) selects everything up to the limit.

Examples:
  fleetsync delta --vector peer-vector.json --limit 100
  fleetsync vector --data-dir ./a | fleetsync delta --data-dir ./b --vector - > batch.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			var vv ir.VersionVector
			if err := decodeInput(cmd, opts.Vector, "vector", &vv); err != nil {
				return err
			}

			n, err := openNode(ctx, opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			limit := opts.Limit
			if limit <= 0 {
				limit = n.Config().Sync.DeltaLimit
			}
			events, err := n.Delta(ctx, vv, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "delta failed", err)
			}
			newPrinter(opts.RootOptions, cmd).Debugf("delta: %d event(s), limit %d", len(events), limit)
			return newPrinter(opts.RootOptions, cmd).Wire(events)
		},
	}

	cmd.Flags().StringVar(&opts.Vector, "vector", "", `peer version vector JSON file, or "-" for stdin (required)`)
	_ = cmd.MarkFlagRequired("vector")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum events to return (default: sync.delta_limit)")

	return cmd
}
