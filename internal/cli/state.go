package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fleetsync/internal/ir"
	"github.com/roach88/fleetsync/internal/metalog"
)

// StateResult is the output of the state command.
type StateResult struct {
	ActorID string            `json:"actor_id"`
	Raft    metalog.RaftState `json:"raft"`
	Events  int               `json:"mirrored_events"`
	Vector  ir.VersionVector  `json:"vector"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	var term uint64

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show node identity, metadata snapshot and version vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			n, err := openNode(ctx, rootOpts, cmd)
			if err != nil {
				return err
			}
			defer n.Close()

			if cmd.Flags().Changed("term") {
				if err := n.SetTerm(term); err != nil {
					return WrapExitError(ExitFailure, "failed to set term", err)
				}
			}

			vv, err := n.VersionVector(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read version vector", err)
			}

			result := StateResult{
				ActorID: n.ActorID(),
				Raft:    n.State(),
				Events:  n.Metalog().EventCount(),
				Vector:  vv,
			}
			return newPrinter(rootOpts, cmd).Report(result, func(w io.Writer) {
				st := result.Raft
				fmt.Fprintf(w, "Actor:          %s\n", result.ActorID)
				fmt.Fprintf(w, "Term:           %d\n", st.CurrentTerm)
				fmt.Fprintf(w, "Voted for:      %s\n", st.VotedFor)
				fmt.Fprintf(w, "Leader:         %s\n", st.LeaderID)
				fmt.Fprintf(w, "Commit index:   %d\n", st.CommitIndex)
				fmt.Fprintf(w, "Last applied:   %d\n", st.LastApplied)
				fmt.Fprintf(w, "Last log index: %d\n", st.LastLogIndex)
				fmt.Fprintf(w, "Mirrored:       %d event(s)\n", result.Events)
				fmt.Fprintf(w, "Vector:         %v\n", map[string]int64(result.Vector))
			})
		},
	}

	cmd.Flags().Uint64Var(&term, "term", 0, "record a new current term before reporting")
	return cmd
}
