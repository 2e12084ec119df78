// Package aggregate derives dashboard views from a session. Everything
// here is a pure read of a session value.
package aggregate

import (
	"math"
	"time"

	"github.com/forgellm/forge/internal/policy"
	"github.com/forgellm/forge/internal/session"
)

// Snapshot is the display-ready state of a session at one instant.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	Name      string         `json:"name"`
	Status    session.Status `json:"status"`
	ModelName string         `json:"model_name"`

	CurrentIteration int     `json:"current_iteration"`
	MaxIterations    int     `json:"max_iterations"`
	ProgressPercent  float64 `json:"progress_percent"`

	TrainLoss       *float64 `json:"train_loss"`
	ValLoss         *float64 `json:"val_loss"`
	TrainPerplexity *float64 `json:"train_perplexity"`
	ValPerplexity   *float64 `json:"val_perplexity"`
	LearningRate    *float64 `json:"learning_rate"`
	ItersPerSec     *float64 `json:"iterations_per_sec"`
	TokensPerSec    *float64 `json:"tokens_per_sec"`
	TrainedTokens   *int64   `json:"trained_tokens"`
	PeakMemoryGB    *float64 `json:"peak_memory_gb"`
	Epoch           float64  `json:"epoch"`

	ElapsedSec float64 `json:"elapsed_seconds"`
	// ETASec is nil whenever an estimate would be meaningless.
	ETASec *float64 `json:"eta_seconds"`

	BestValLoss      *float64           `json:"best_val_loss"`
	EarlyStop        policy.ReplayState `json:"early_stopping"`
	Overfitting      bool               `json:"overfitting"`
	CheckpointCount  int                `json:"checkpoint_count"`
	LatestCheckpoint string             `json:"latest_checkpoint,omitempty"`
	StopReason       string             `json:"stop_reason,omitempty"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          *time.Time         `json:"end_time,omitempty"`
	LastUpdate       time.Time          `json:"last_update,omitempty"`
}

// latest holds the most recent value of each field across the history.
type latest struct {
	trainLoss, valLoss, trainPPL, valPPL *float64
	lr, itps, tps, mem, epoch            *float64
	tokens                               *int64
}

func collectLatest(events []session.MetricEvent) latest {
	var l latest
	pick := func(dst **float64, src *float64) {
		if *dst == nil && src != nil {
			*dst = src
		}
	}
	for i := len(events) - 1; i >= 0; i-- {
		ev := &events[i]
		pick(&l.trainLoss, ev.TrainLoss)
		pick(&l.valLoss, ev.ValLoss)
		pick(&l.trainPPL, ev.TrainPerplexity)
		pick(&l.valPPL, ev.ValPerplexity)
		pick(&l.lr, ev.LearningRate)
		pick(&l.itps, ev.ItersPerSec)
		pick(&l.tps, ev.TokensPerSec)
		pick(&l.mem, ev.PeakMemoryGB)
		pick(&l.epoch, ev.Epoch)
		if l.tokens == nil && ev.TrainedTokens != nil {
			l.tokens = ev.TrainedTokens
		}
	}
	return l
}

// CurrentSnapshot computes the snapshot of sess as of now.
func CurrentSnapshot(sess *session.TrainingSession, now time.Time) Snapshot {
	cfg := sess.Config
	snap := Snapshot{
		SessionID:     sess.ID,
		Name:          sess.Name,
		Status:        sess.Status,
		ModelName:     cfg.ModelName,
		MaxIterations: cfg.MaxIterations,
		StopReason:    sess.StopReason,
		StartTime:     sess.StartTime,
		EndTime:       sess.EndTime,
	}

	l := collectLatest(sess.Metrics)
	if ev := sess.Latest(); ev != nil {
		snap.CurrentIteration = ev.Iteration
		snap.LastUpdate = ev.Timestamp
	}

	snap.TrainLoss = RoundPtr(l.trainLoss)
	snap.ValLoss = RoundPtr(l.valLoss)
	snap.TrainPerplexity = RoundPtr(l.trainPPL)
	snap.ValPerplexity = RoundPtr(l.valPPL)
	snap.LearningRate = RoundPtr(l.lr)
	snap.ItersPerSec = RoundPtr(l.itps)
	snap.TokensPerSec = RoundPtr(l.tps)
	snap.PeakMemoryGB = RoundPtr(l.mem)
	snap.TrainedTokens = l.tokens
	snap.Epoch = Round(Epoch(l.epoch, l.tokens, cfg.DatasetTotalTokens))

	if snap.MaxIterations > 0 {
		snap.ProgressPercent = Round(math.Min(100, float64(snap.CurrentIteration)/float64(snap.MaxIterations)*100))
	}

	elapsed := Elapsed(sess, now)
	snap.ElapsedSec = Round(elapsed.Seconds())
	if !sess.Terminated() {
		if eta, ok := ETA(elapsed, snap.CurrentIteration, snap.MaxIterations); ok {
			secs := Round(eta.Seconds())
			snap.ETASec = &secs
		}
	}

	snap.EarlyStop = policy.Replay(sess.Metrics, policy.EarlyStopConfigFrom(cfg))
	if snap.EarlyStop.HasBest {
		snap.BestValLoss = RoundPtr(&snap.EarlyStop.Best)
	}
	if l.trainLoss != nil && l.valLoss != nil {
		snap.Overfitting = policy.Overfitting(*l.trainLoss, *l.valLoss, cfg.OverfittingThreshold)
	}

	ckpts := policy.Checkpoints(sess.Metrics)
	snap.CheckpointCount = len(ckpts)
	if n := len(ckpts); n > 0 {
		snap.LatestCheckpoint = ckpts[n-1].Path
	}
	return snap
}

// Epoch returns the explicit epoch when reported, else trained tokens over
// the dataset size. Anything undefined yields zero.
func Epoch(explicit *float64, trainedTokens *int64, datasetTokens int64) float64 {
	if explicit != nil {
		return *explicit
	}
	if trainedTokens == nil || datasetTokens <= 0 {
		return 0
	}
	return float64(*trainedTokens) / float64(datasetTokens)
}

// Elapsed is the run time so far, or the total run time once terminated.
func Elapsed(sess *session.TrainingSession, now time.Time) time.Duration {
	end := now
	if sess.EndTime != nil {
		end = *sess.EndTime
	}
	if sess.StartTime.IsZero() || end.Before(sess.StartTime) {
		return 0
	}
	return end.Sub(sess.StartTime)
}

// ETA estimates the remaining time. ok is false unless
// 0 < current < maxIter.
func ETA(elapsed time.Duration, current, maxIter int) (time.Duration, bool) {
	if current <= 0 || maxIter <= current {
		return 0, false
	}
	remaining := float64(elapsed) * (float64(maxIter)/float64(current) - 1)
	return time.Duration(remaining), true
}
