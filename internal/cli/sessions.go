package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List training sessions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsCommand(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsCommand(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	list := newService(ctx, cfg, false).Sessions()

	if machineMode {
		return WriteJSONSuccess(os.Stdout, map[string]interface{}{
			"sessions":     list,
			"sessions_dir": cfg.SessionsDir,
		})
	}
	fmt.Println(ui.RenderSessionTable(sessionRows(list)))
	return nil
}

func sessionRows(list []query.SessionInfo) []ui.SessionRow {
	rows := make([]ui.SessionRow, 0, len(list))
	for _, info := range list {
		iter := "-"
		if info.LatestIteration != nil {
			iter = fmt.Sprintf("%d", *info.LatestIteration)
		}
		rows = append(rows, ui.SessionRow{
			Name:      info.Name,
			Status:    info.Status,
			Iteration: iter,
			ValLoss:   ui.FormatFloat(info.LatestValLoss, 4),
			Started:   ui.FormatTime(info.StartTime),
		})
	}
	return rows
}
