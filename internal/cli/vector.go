package cli

import (
	"github.com/spf13/cobra"
)

// NewVectorCommand creates the vector command.
func NewVectorCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vector",
		Short: "Print this node's version vector",
		Long: `Print the version vector as a JSON object of actor_id to counter.

The output is the input a peer's delta command expects:

  fleetsync vector --data-dir ./a | fleetsync delta --data-dir ./b --vector -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			n, err := openNode(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			vv, err := n.VersionVector(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read version vector", err)
			}
			return newPrinter(rootOpts, cmd).Wire(vv)
		},
	}
}
