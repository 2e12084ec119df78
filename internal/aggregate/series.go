package aggregate

import (
	"github.com/forgellm/forge/internal/session"
)

// ChartSeries is a set of series sharing one iteration axis. A nil entry is
// a gap: the metric was not reported at that iteration. Gaps are kept so
// the evaluation cadence stays visible.
type ChartSeries struct {
	Iterations      []int      `json:"iterations"`
	TrainLoss       []*float64 `json:"train_loss"`
	ValLoss         []*float64 `json:"val_loss"`
	TrainPerplexity []*float64 `json:"train_perplexity"`
	ValPerplexity   []*float64 `json:"val_perplexity"`
	LearningRate    []*float64 `json:"learning_rate"`
	TokensPerSec    []*float64 `json:"tokens_per_sec"`
	PeakMemoryGB    []*float64 `json:"peak_memory_gb"`
	// Checkpoints lists the iterations where weights were saved.
	Checkpoints []int `json:"checkpoints"`
}

// HistoricalSeries lays out the full history of sess on one x-axis.
func HistoricalSeries(sess *session.TrainingSession) ChartSeries {
	n := len(sess.Metrics)
	cs := ChartSeries{
		Iterations:      make([]int, 0, n),
		TrainLoss:       make([]*float64, 0, n),
		ValLoss:         make([]*float64, 0, n),
		TrainPerplexity: make([]*float64, 0, n),
		ValPerplexity:   make([]*float64, 0, n),
		LearningRate:    make([]*float64, 0, n),
		TokensPerSec:    make([]*float64, 0, n),
		PeakMemoryGB:    make([]*float64, 0, n),
		Checkpoints:     []int{},
	}
	for _, ev := range sess.Metrics {
		cs.Iterations = append(cs.Iterations, ev.Iteration)
		cs.TrainLoss = append(cs.TrainLoss, ev.TrainLoss)
		cs.ValLoss = append(cs.ValLoss, ev.ValLoss)
		cs.TrainPerplexity = append(cs.TrainPerplexity, ev.TrainPerplexity)
		cs.ValPerplexity = append(cs.ValPerplexity, ev.ValPerplexity)
		cs.LearningRate = append(cs.LearningRate, ev.LearningRate)
		cs.TokensPerSec = append(cs.TokensPerSec, ev.TokensPerSec)
		cs.PeakMemoryGB = append(cs.PeakMemoryGB, ev.PeakMemoryGB)
		if ev.CheckpointSaved {
			cs.Checkpoints = append(cs.Checkpoints, ev.Iteration)
		}
	}
	return cs
}

// Values drops the gaps from a series, for renderers such as sparklines
// that only need the defined points.
func Values(series []*float64) []float64 {
	out := make([]float64, 0, len(series))
	for _, v := range series {
		if v != nil {
			out = append(out, *v)
		}
	}
	return out
}
