package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetsync/internal/ir"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Events string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a batch of remote events",
		Long: `Apply a JSON array of events produced by a peer's delta command.

Events already applied are skipped, older versions lose to the row's
current version, and events for tables outside the replicated set are
ignored. Per-event problems are counted, not fatal.

Exit codes:
  0 - Batch processed
  1 - Store failure
  2 - Command error (unreadable or malformed input)

Examples:
  fleetsync apply --events batch.json
  fleetsync delta --data-dir ./a --vector b.json | fleetsync apply --data-dir ./b --events -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			var events []ir.ClusterEvent
			if err := decodeInput(cmd, opts.Events, "events", &events); err != nil {
				return err
			}

			n, err := openNode(ctx, opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			res, err := n.Apply(ctx, events)
			if err != nil {
				return WrapExitError(ExitFailure, "apply failed", err)
			}

			return newPrinter(opts.RootOptions, cmd).Report(res, func(w io.Writer) {
				fmt.Fprintf(w, "Processed %d event(s)\n", res.Total())
				fmt.Fprintf(w, "  applied:     %d\n", res.Applied)
				fmt.Fprintf(w, "  duplicate:   %d\n", res.Duplicate)
				fmt.Fprintf(w, "  stale:       %d\n", res.Stale)
				fmt.Fprintf(w, "  unsupported: %d\n", res.Unsupported)
				fmt.Fprintf(w, "  conflicting: %d\n", res.Conflicting)
				fmt.Fprintf(w, "  invalid:     %d\n", res.Invalid)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Events, "events", "", `event batch JSON file, or "-" for stdin (required)`)
	_ = cmd.MarkFlagRequired("events")

	return cmd
}
