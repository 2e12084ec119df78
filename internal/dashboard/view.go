package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/forgellm/forge/internal/aggregate"
	"github.com/forgellm/forge/internal/ui"
)

const (
	graphHeight = 6
	minGraphW   = 20
)

func (m Model) renderDashboard() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	snap := m.view.Snapshot
	if snap == nil {
		b.WriteString(m.renderWaiting())
	} else {
		b.WriteString(m.renderProgress(snap))
		b.WriteString("\n\n")
		b.WriteString(m.renderMetrics(snap))
		b.WriteString("\n")
		b.WriteString(m.renderGraphs())
		if m.showCheckpoints {
			b.WriteString(m.renderCheckpoints())
		}
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	info := ui.HeaderInfo{Title: "watch"}
	if snap := m.view.Snapshot; snap != nil {
		info.Title = snap.Name
		info.Status = string(snap.Status)
		info.Subline = fmt.Sprintf("%s · elapsed %s · %s",
			snap.ModelName, ui.FormatDuration(secondsDuration(snap.ElapsedSec)), m.updateText())
	}
	return ui.RenderHeader(info)
}

func (m Model) updateText() string {
	if !m.loaded {
		return "loading"
	}
	switch s := m.SecondsSinceUpdate(); s {
	case 0:
		return "updated just now"
	default:
		return fmt.Sprintf("updated %ds ago", s)
	}
}

func (m Model) renderWaiting() string {
	var lines []string
	if m.spinner.Active {
		lines = append(lines, m.spinner.View())
	}
	reason := m.view.Reason
	if reason == "" && m.loaded {
		reason = "no active training session"
	}
	if reason != "" {
		lines = append(lines, MutedStyle.Render(reason))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderProgress(snap *aggregate.Snapshot) string {
	bar := m.bar.ViewAs(ui.ClampPercent(snap.ProgressPercent) / 100)
	counts := fmt.Sprintf(" %d/%d (%.0f%%)", snap.CurrentIteration, snap.MaxIterations, snap.ProgressPercent)
	eta := LabelStyle.Render("  ETA ") + ValueStyle.Render(ui.FormatETA(snap.ETASec))
	return bar + ValueStyle.Render(counts) + eta
}

func (m Model) renderMetrics(snap *aggregate.Snapshot) string {
	pairs := []ui.KeyValue{
		{Key: "train loss", Value: ui.FormatFloat(snap.TrainLoss, 4)},
		{Key: "val loss", Value: ui.FormatFloat(snap.ValLoss, 4)},
		{Key: "best val", Value: ui.FormatFloat(snap.BestValLoss, 4)},
		{Key: "perplexity", Value: ui.FormatFloat(snap.TrainPerplexity, 2) + " / " + ui.FormatFloat(snap.ValPerplexity, 2)},
		{Key: "learning rate", Value: formatLR(snap.LearningRate)},
		{Key: "tokens/sec", Value: ui.FormatFloat(snap.TokensPerSec, 1)},
		{Key: "trained tokens", Value: ui.FormatInt(snap.TrainedTokens)},
		{Key: "epoch", Value: strconv.FormatFloat(snap.Epoch, 'f', 2, 64)},
		{Key: "peak memory", Value: ui.FormatFloat(snap.PeakMemoryGB, 2) + " GB"},
	}
	if es := snap.EarlyStop; es.Enabled {
		value := "waiting for first evaluation"
		if es.Evaluations > 0 {
			value = fmt.Sprintf("%d/%d without improvement", es.Counter, es.Patience)
		}
		pairs = append(pairs, ui.KeyValue{Key: "early stopping", Value: value})
	}
	out := ui.RenderKeyValues(pairs)
	if snap.Overfitting {
		out += WarnStyle.Render("  ⚠ validation loss is pulling away from training loss") + "\n"
	}
	if snap.StopReason != "" {
		out += LabelStyle.Render("  stop reason: ") + ValueStyle.Render(snap.StopReason) + "\n"
	}
	return out
}

func (m Model) graphWidth() int {
	w := m.width - 8
	if w > 100 {
		w = 100
	}
	if w < minGraphW {
		w = minGraphW
	}
	return w
}

func (m Model) renderGraphs() string {
	if m.hist == nil {
		return ""
	}
	width := m.graphWidth()
	train := aggregate.Values(m.hist.Charts.TrainLoss)
	if len(train) == 0 {
		return ""
	}

	var body strings.Builder
	body.WriteString(PanelTitleStyle.Render("Training loss"))
	lo, hi := findMinMax(train)
	body.WriteString(MutedStyle.Render(fmt.Sprintf("  %.4f to %.4f", lo, hi)))
	body.WriteString("\n")
	body.WriteString(RenderBrailleGraph(train, width, graphHeight, ColorTrain))

	if m.showValidation {
		if val := aggregate.Values(m.hist.Charts.ValLoss); len(val) > 0 {
			body.WriteString("\n")
			body.WriteString(PanelTitleStyle.Render("Validation loss "))
			body.WriteString(ui.RenderLossSparkline(val, width-len("Validation loss ")))
		}
	}
	return PanelStyle.Render(body.String()) + "\n"
}

func (m Model) renderCheckpoints() string {
	if m.hist == nil {
		return ""
	}
	best := m.hist.Summary.BestCheckpoints
	rows := make([]ui.CheckpointRow, 0, len(best))
	for i, c := range best {
		rows = append(rows, ui.CheckpointRow{
			Iteration: strconv.Itoa(c.Iteration),
			ValLoss:   ui.FormatFloat(c.ValLoss, 4),
			Path:      c.Path,
			Best:      i == 0,
		})
	}
	title := PanelTitleStyle.Render(fmt.Sprintf("Checkpoints (%d saved)", len(m.hist.Summary.AllCheckpoints)))
	return PanelStyle.Render(title+"\n"+strings.TrimRight(ui.RenderCheckpointTable(rows), "\n")) + "\n"
}

func (m Model) renderFooter() string {
	hints := []string{"q quit", "r refresh", "c checkpoints", "v validation", "? help"}
	return FooterStyle.Render(strings.Join(hints, " | "))
}

// formatLR keeps small learning rates readable.
func formatLR(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 3, 64)
}

func secondsDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
