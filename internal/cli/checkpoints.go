package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/forgellm/forge/internal/errors"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

var checkpointsTop int

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints <session>",
	Short: "List the best checkpoints of a session by validation loss",
	Long: `Rank a session's saved checkpoints by the validation loss measured at the
same iteration, lowest first. Checkpoints without a validation loss rank
after the rest, newest first.

Examples:
  forge checkpoints qwen3_lr1e-05_bs4_iter1000_seq2048_2026-03-01_12-00
  forge checkpoints models/cpt/qwen-trial -k 5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkpointsCommand(cmd.Context(), args[0], checkpointsTop)
	},
}

func init() {
	checkpointsCmd.Flags().IntVarP(&checkpointsTop, "top", "k", query.DefaultTopK, "number of checkpoints to show")
	rootCmd.AddCommand(checkpointsCmd)
}

func checkpointsCommand(ctx context.Context, ref string, k int) error {
	if k < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("-k must be zero or more, got %d", k),
			"Try: forge checkpoints <session> -k 3")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	best, ok := newService(ctx, cfg, false).BestCheckpoints(ref, k)
	if !ok {
		return sessionNotFound(ref)
	}
	if machineMode {
		return WriteJSONSuccess(os.Stdout, map[string]interface{}{
			"session":     ref,
			"checkpoints": best,
		})
	}
	fmt.Print(ui.RenderCheckpointTable(checkpointRows(best)))
	if len(best) == 0 {
		fmt.Println()
	}
	return nil
}
