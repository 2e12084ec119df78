package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/forgellm/forge/internal/errors"
	"github.com/spf13/cobra"
)

const maxLogLines = 5000

var logsLines int

var logsCmd = &cobra.Command{
	Use:   "logs <session>",
	Short: "Print the last lines of a session's raw trainer output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return logsCommand(cmd.Context(), args[0], logsLines)
	},
}

func init() {
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 200, "number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

func logsCommand(ctx context.Context, ref string, n int) error {
	if n <= 0 || n > maxLogLines {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("--lines must be between 1 and %d, got %d", maxLogLines, n),
			"Try: forge logs <session> --lines 200")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lines, ok := newService(ctx, cfg, false).Logs(ref, n)
	if !ok {
		return sessionNotFound(ref)
	}
	if machineMode {
		return WriteJSONSuccess(os.Stdout, map[string]interface{}{
			"session": ref,
			"lines":   lines,
		})
	}
	for _, line := range lines {
		fmt.Println(line)
	}
	return nil
}
