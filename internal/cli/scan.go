package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetsync/internal/ir"
)

// ScanResult is the output of the scan command.
type ScanResult struct {
	Emitted int               `json:"emitted"`
	Events  []ir.ClusterEvent `json:"events"`
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Detect local row changes and emit events",
		Long: `Run one change-detection pass over the replicated tables.

Every inserted, updated or deleted row since the last pass becomes a
versioned event in the local log and advances this node's counter.

Examples:
  fleetsync scan --config node.yaml
  fleetsync scan --data-dir ./data --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			n, err := openNode(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			events, err := n.Scan(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "scan failed", err)
			}

			result := ScanResult{Emitted: len(events), Events: events}
			return newPrinter(rootOpts, cmd).Report(result, func(w io.Writer) {
				fmt.Fprintf(w, "Emitted %d event(s)\n", len(events))
				for _, ev := range events {
					fmt.Fprintf(w, "  %s %s %s/%s\n", ev.EventID, ev.Op, ev.TableName, ev.RowID)
				}
			})
		},
	}
}
