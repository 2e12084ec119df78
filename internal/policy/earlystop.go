// Package policy holds the pure decisions made over a metric history:
// early stopping, the overfitting guard and checkpoint ranking.
package policy

import (
	"fmt"
	"math"

	"github.com/forgellm/forge/internal/session"
)

// EarlyStopConfig is the subset of the training config the stopper reads.
type EarlyStopConfig struct {
	Enabled        bool
	Patience       int
	MinImprovement float64
}

// EarlyStopConfigFrom extracts the stopper settings from a training config.
func EarlyStopConfigFrom(cfg session.TrainingConfig) EarlyStopConfig {
	return EarlyStopConfig{
		Enabled:        cfg.EnableEarlyStopping,
		Patience:       cfg.EarlyStoppingPatience,
		MinImprovement: cfg.MinLossImprovement,
	}
}

// Decision is the stopper state after one validation value.
type Decision struct {
	Stop     bool    `json:"stop"`
	Improved bool    `json:"improved"`
	Best     float64 `json:"best_val_loss"`
	Counter  int     `json:"patience_counter"`
	Patience int     `json:"patience"`
	Reason   string  `json:"reason,omitempty"`
}

// EarlyStopper tracks the best validation loss and the count of
// consecutive evaluations that failed to improve on it.
type EarlyStopper struct {
	cfg     EarlyStopConfig
	best    float64
	counter int
	seen    int
	stopped bool
}

// NewEarlyStopper creates a stopper. A patience below 1 is treated as 1.
func NewEarlyStopper(cfg EarlyStopConfig) *EarlyStopper {
	if cfg.Patience < 1 {
		cfg.Patience = 1
	}
	return &EarlyStopper{cfg: cfg, best: math.Inf(1)}
}

// Observe feeds one validation loss. Train-only iterations must not be
// passed here.
func (s *EarlyStopper) Observe(val float64) Decision {
	s.seen++
	d := Decision{Patience: s.cfg.Patience}

	if s.best-val >= s.cfg.MinImprovement {
		s.best = val
		s.counter = 0
		d.Improved = true
	} else {
		s.counter++
	}
	d.Best = s.best
	d.Counter = s.counter

	if s.cfg.Enabled && s.counter >= s.cfg.Patience {
		s.stopped = true
		d.Stop = true
		d.Reason = fmt.Sprintf("validation loss did not improve by %g for %d evaluations (best %.4f)",
			s.cfg.MinImprovement, s.counter, s.best)
	}
	return d
}

// Best returns the best validation loss so far, +Inf before any value.
func (s *EarlyStopper) Best() float64 { return s.best }

// Stopped reports whether any Observe call signalled stop.
func (s *EarlyStopper) Stopped() bool { return s.stopped }

// Evaluations is the number of validation values observed.
func (s *EarlyStopper) Evaluations() int { return s.seen }

// ReplayState is the stopper state recomputed from a stored history.
type ReplayState struct {
	Decision
	Evaluations int  `json:"evaluations"`
	Enabled     bool `json:"enabled"`
	// HasBest is false when no validation value has been reported.
	HasBest bool `json:"has_best"`
}

// Replay recomputes the stopper state from events, for dashboards that
// did not observe the run live.
func Replay(events []session.MetricEvent, cfg EarlyStopConfig) ReplayState {
	s := NewEarlyStopper(cfg)
	var last Decision
	for _, ev := range events {
		if ev.ValLoss == nil {
			continue
		}
		last = s.Observe(*ev.ValLoss)
		if last.Stop {
			break
		}
	}
	return ReplayState{
		Decision:    last,
		Evaluations: s.Evaluations(),
		Enabled:     cfg.Enabled,
		HasBest:     s.Evaluations() > 0,
	}
}

// Overfitting reports whether the validation loss exceeds the train loss
// by more than threshold times the validation loss. A non-positive
// threshold disables the guard.
func Overfitting(train, val, threshold float64) bool {
	if threshold <= 0 || val <= 0 {
		return false
	}
	return val-train > threshold*val
}
