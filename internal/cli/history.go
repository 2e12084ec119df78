package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/forgellm/forge/internal/aggregate"
	"github.com/forgellm/forge/internal/query"
	"github.com/forgellm/forge/internal/ui"
	"github.com/spf13/cobra"
)

const historySparkWidth = 48

var historyCmd = &cobra.Command{
	Use:   "history <session>",
	Short: "Summarize the full history of a session",
	Long: `Print the training configuration, latest metrics, loss curves and best
checkpoints of one session. With --json, prints the full chart series.

Examples:
  forge history qwen3_lr1e-05_bs4_iter1000_seq2048_2026-03-01_12-00
  forge history models/cpt/qwen-trial --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return historyCommand(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

func historyCommand(ctx context.Context, ref string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, ok := newService(ctx, cfg, true).Historical(ref)
	if !ok {
		return sessionNotFound(ref)
	}
	if machineMode {
		return WriteJSONSuccess(os.Stdout, h)
	}
	fmt.Print(renderHistory(h))
	return nil
}

func renderHistory(h query.Historical) string {
	var b strings.Builder
	sum := h.Summary
	b.WriteString(ui.RenderHeader(ui.HeaderInfo{
		Title:   h.Session.Name,
		Status:  h.Session.Status,
		Subline: fmt.Sprintf("%s  %s", sum.Config.ModelName, ui.FormatDuration(secondsToDuration(h.Snapshot.ElapsedSec))),
	}))
	b.WriteString("\n")

	b.WriteString(ui.RenderKeyValues([]ui.KeyValue{
		{Key: "Reports", Value: fmt.Sprintf("%d", sum.TotalEvents)},
		{Key: "Iteration", Value: fmt.Sprintf("%d/%d", sum.Iteration, sum.MaxIterations)},
		{Key: "Learning rate", Value: fmt.Sprintf("%g (%s, warmup %d)", sum.Config.LearningRate, sum.LRSchedule, sum.WarmupSteps)},
		{Key: "Batch size", Value: fmt.Sprintf("%d", sum.Config.BatchSize)},
		{Key: "Train loss", Value: ui.FormatFloat(sum.TrainLoss, 4)},
		{Key: "Val loss", Value: ui.FormatFloat(sum.ValLoss, 4)},
		{Key: "Val perplexity", Value: ui.FormatFloat(sum.ValPerplexity, 2)},
		{Key: "Trained tokens", Value: fmt.Sprintf("%d", sum.TrainedTokens)},
		{Key: "Peak memory", Value: ui.FormatFloat(sum.PeakMemoryGB, 2) + " GB"},
	}))

	if train := aggregate.Values(h.Charts.TrainLoss); len(train) > 0 {
		b.WriteString("\n  train " + ui.RenderLossSparkline(train, historySparkWidth) + "\n")
	}
	if val := aggregate.Values(h.Charts.ValLoss); len(val) > 0 {
		b.WriteString("  val   " + ui.RenderLossSparkline(val, historySparkWidth) + "\n")
	}

	b.WriteString(fmt.Sprintf("\n  Best checkpoints (%d saved)\n", len(sum.AllCheckpoints)))
	b.WriteString(ui.RenderCheckpointTable(checkpointRows(sum.BestCheckpoints)))
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	return b.String()
}
