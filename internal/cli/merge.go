package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetsync/internal/ir"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Threshold float64
}

// MergeResult is the output of the merge command.
type MergeResult struct {
	Merged  int              `json:"merged"`
	Records []ir.MergeRecord `json:"records"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Collapse duplicate stories",
		Long: `Run one duplicate-story merge pass.

Stories in the same team and requirement whose title and description
score at or above --threshold (word-set Jaccard similarity) are merged
into the one with the smallest ID. References from pull requests,
escalations, story logs, agents and dependencies move to the survivor.

Examples:
  fleetsync merge
  fleetsync merge --threshold 0.9 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("threshold") && (opts.Threshold < 0 || opts.Threshold > 1) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid threshold %v: must be within [0,1]", opts.Threshold))
			}

			ctx := commandContext(cmd)
			n, err := openNode(ctx, opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			threshold := -1.0
			if cmd.Flags().Changed("threshold") {
				threshold = opts.Threshold
			}
			merged, err := n.Merge(ctx, threshold)
			if err != nil {
				return WrapExitError(ExitFailure, "merge failed", err)
			}
			records, err := n.MergeRecords(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read merge ledger", err)
			}

			result := MergeResult{Merged: merged, Records: records}
			return newPrinter(opts.RootOptions, cmd).Report(result, func(w io.Writer) {
				fmt.Fprintf(w, "Merged %d duplicate stor(ies)\n", merged)
				for _, r := range records {
					fmt.Fprintf(w, "  %s -> %s\n", r.DuplicateStoryID, r.CanonicalStoryID)
				}
			})
		},
	}

	cmd.Flags().Float64Var(&opts.Threshold, "threshold", 0, "similarity threshold in [0,1] (default: sync.merge_threshold)")

	return cmd
}
