// Package session holds the durable record of a training run and the store
// that publishes it. A session file is written by exactly one supervisor and
// read by any number of other processes.
package session

import (
	"time"
)

// SchemaVersion is bumped only for additive changes. Readers ignore unknown
// fields, so older binaries keep reading newer files.
const SchemaVersion = 1

// File names inside a run directory.
const (
	SessionFileName = "training_session.json"
	OutputLogName   = "train_output.log"
	TrainerYAMLName = "trainer_config.yaml"
)

// Status is the lifecycle state recorded in the session file.
type Status string

const (
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusStoppedEarly Status = "stopped_early"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further writes follow this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusStoppedEarly, StatusFailed:
		return true
	}
	return false
}

// MetricEvent is one observation reported by the trainer at an iteration.
// Pointer fields are absent when the trainer did not report them.
type MetricEvent struct {
	Iteration       int       `json:"iteration"`
	TrainLoss       *float64  `json:"train_loss,omitempty"`
	ValLoss         *float64  `json:"val_loss,omitempty"`
	TrainPerplexity *float64  `json:"train_perplexity,omitempty"`
	ValPerplexity   *float64  `json:"val_perplexity,omitempty"`
	LearningRate    *float64  `json:"learning_rate,omitempty"`
	ItersPerSec     *float64  `json:"iterations_per_sec,omitempty"`
	TokensPerSec    *float64  `json:"tokens_per_sec,omitempty"`
	TrainedTokens   *int64    `json:"trained_tokens,omitempty"`
	Epoch           *float64  `json:"epoch,omitempty"`
	PeakMemoryGB    *float64  `json:"peak_memory_gb,omitempty"`
	ValTimeSec      *float64  `json:"val_time_sec,omitempty"`
	CheckpointSaved bool      `json:"checkpoint_saved"`
	CheckpointPath  string    `json:"checkpoint_path,omitempty"`
	CheckpointPaths []string  `json:"checkpoint_paths,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Merge copies every field present in o onto e. Iteration is left alone.
func (e *MetricEvent) Merge(o MetricEvent) {
	mergeFloat(&e.TrainLoss, o.TrainLoss)
	mergeFloat(&e.ValLoss, o.ValLoss)
	mergeFloat(&e.TrainPerplexity, o.TrainPerplexity)
	mergeFloat(&e.ValPerplexity, o.ValPerplexity)
	mergeFloat(&e.LearningRate, o.LearningRate)
	mergeFloat(&e.ItersPerSec, o.ItersPerSec)
	mergeFloat(&e.TokensPerSec, o.TokensPerSec)
	mergeFloat(&e.Epoch, o.Epoch)
	mergeFloat(&e.PeakMemoryGB, o.PeakMemoryGB)
	mergeFloat(&e.ValTimeSec, o.ValTimeSec)
	if o.TrainedTokens != nil {
		v := *o.TrainedTokens
		e.TrainedTokens = &v
	}
	if o.CheckpointSaved {
		e.CheckpointSaved = true
		e.CheckpointPath = o.CheckpointPath
		e.CheckpointPaths = append([]string(nil), o.CheckpointPaths...)
	}
	if !o.Timestamp.IsZero() {
		e.Timestamp = o.Timestamp
	}
}

func mergeFloat(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// TrainingSession is the aggregate root persisted as one JSON file per run.
type TrainingSession struct {
	SchemaVersion int            `json:"schema_version"`
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Config        TrainingConfig `json:"config"`
	Metrics       []MetricEvent  `json:"metrics"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	Status        Status         `json:"status"`
	StopReason    string         `json:"stop_reason,omitempty"`
	ExitCode      *int           `json:"exit_code,omitempty"`
	Error         string         `json:"error,omitempty"`
	PID           int            `json:"pid,omitempty"`
	Command       []string       `json:"command,omitempty"`
	OutputLog     string         `json:"output_log"`
	OutputDir     string         `json:"output_dir"`
}

// Terminated reports whether the end timestamp has been written.
func (s *TrainingSession) Terminated() bool {
	return s.EndTime != nil
}

// Latest returns the last metric event, or nil when none has been recorded.
func (s *TrainingSession) Latest() *MetricEvent {
	if len(s.Metrics) == 0 {
		return nil
	}
	return &s.Metrics[len(s.Metrics)-1]
}

// CurrentIteration is the iteration of the latest event, 0 before the first report.
func (s *TrainingSession) CurrentIteration() int {
	if ev := s.Latest(); ev != nil {
		return ev.Iteration
	}
	return 0
}

// FinalizeOptions carries the exit information recorded by Finalize.
type FinalizeOptions struct {
	ExitCode   *int
	StopReason string
	Error      string
}
