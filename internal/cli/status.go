package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "Show the state of a session or the current run",
	Long: `Show one training session. Without an argument, shows the run that is
active right now, if any.

"active" means the session is unfinished and a trainer process is alive;
a crashed run reads as inactive even though its status is still running.

Examples:
  forge status
  forge status qwen3_lr1e-05_bs4_iter1000_seq2048_2026-03-01_12-00
  forge status --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		return statusCommand(cmd.Context(), ref)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(ctx context.Context, ref string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	q := newService(ctx, cfg, true)
	st := q.Status(ref)

	if machineMode {
		return WriteJSONSuccess(os.Stdout, st)
	}
	if !st.Known {
		if ref == "" {
			fmt.Printf("%s No training session is active\n", ui.SymbolPending)
			return nil
		}
		return sessionNotFound(ref)
	}

	var snap *query.Historical
	if h, ok := q.Historical(st.Path); ok {
		snap = &h
	}
	fmt.Print(renderStatus(st, snap))
	return nil
}

func renderStatus(st query.SessionStatus, h *query.Historical) string {
	var b strings.Builder
	b.WriteString(ui.RenderHeader(ui.HeaderInfo{
		Title:   st.Name,
		Status:  st.Status,
		Subline: st.ModelName,
	}))
	b.WriteString("\n  ")
	b.WriteString(ui.RenderIterationBar(int64(st.CurrentIteration), int64(st.MaxIterations), 30))
	b.WriteString("\n\n")

	active := "no"
	if st.Active {
		active = "yes"
	}
	pairs := []ui.KeyValue{
		{Key: "Active", Value: active},
	}
	if st.PID > 0 {
		pairs = append(pairs, ui.KeyValue{Key: "PID", Value: fmt.Sprintf("%d", st.PID)})
	}
	if st.StartTime != nil {
		pairs = append(pairs, ui.KeyValue{Key: "Started", Value: ui.FormatTime(*st.StartTime)})
	}
	if st.EndTime != nil {
		pairs = append(pairs, ui.KeyValue{Key: "Ended", Value: ui.FormatTime(*st.EndTime)})
	}
	if h != nil {
		s := h.Snapshot
		pairs = append(pairs,
			ui.KeyValue{Key: "Train loss", Value: ui.FormatFloat(s.TrainLoss, 4)},
			ui.KeyValue{Key: "Val loss", Value: ui.FormatFloat(s.ValLoss, 4)},
			ui.KeyValue{Key: "Best val loss", Value: ui.FormatFloat(s.BestValLoss, 4)},
			ui.KeyValue{Key: "Tokens/sec", Value: ui.FormatFloat(s.TokensPerSec, 1)},
			ui.KeyValue{Key: "ETA", Value: ui.FormatETA(s.ETASec)},
		)
	}
	if st.OutputDir != "" {
		pairs = append(pairs, ui.KeyValue{Key: "Output", Value: st.OutputDir})
	}
	if st.StopReason != "" {
		pairs = append(pairs, ui.KeyValue{Key: "Stop reason", Value: st.StopReason})
	}
	if st.ExitCode != nil {
		pairs = append(pairs, ui.KeyValue{Key: "Exit code", Value: fmt.Sprintf("%d", *st.ExitCode)})
	}
	if st.Error != "" {
		pairs = append(pairs, ui.KeyValue{Key: "Error", Value: st.Error})
	}
	b.WriteString(ui.RenderKeyValues(pairs))
	return b.String()
}
