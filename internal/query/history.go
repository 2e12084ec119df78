package query

import (
	"path/filepath"
	"time"

	"github.com/forgellm/forge/internal/aggregate"
	"github.com/forgellm/forge/internal/output"
	"github.com/forgellm/forge/internal/policy"
	"github.com/forgellm/forge/internal/session"
)

// SessionInfo is one row of the session list.
type SessionInfo struct {
	SessionID       string    `json:"session_id"`
	Name            string    `json:"session_name"`
	Path            string    `json:"log_file"`
	StartTime       time.Time `json:"start_time"`
	Status          string    `json:"status"`
	ModelName       string    `json:"model_name"`
	MetricsCount    int       `json:"metrics_count"`
	Modified        time.Time `json:"modified"`
	LatestIteration *int      `json:"latest_iteration,omitempty"`
	LatestLoss      *float64  `json:"latest_loss,omitempty"`
	LatestValLoss   *float64  `json:"latest_val_loss,omitempty"`
}

// Sessions lists every readable session under the root, newest first.
// Unreadable files are skipped.
func (s *Service) Sessions() []SessionInfo {
	files, err := session.DiscoverFiles(s.root)
	if err != nil {
		s.log.Warn("list sessions in %s: %v", s.root, err)
		return []SessionInfo{}
	}
	out := make([]SessionInfo, 0, len(files))
	for _, f := range files {
		sess, ok := s.cache.Get(f.Path)
		if !ok {
			s.log.Debug("skipping unreadable session %s", f.Path)
			continue
		}
		info := SessionInfo{
			SessionID:    sess.ID,
			Name:         sess.Name,
			Path:         f.Path,
			StartTime:    sess.StartTime,
			Status:       string(sess.Status),
			ModelName:    sess.Config.ModelName,
			MetricsCount: len(sess.Metrics),
			Modified:     f.ModTime,
		}
		if info.Name == "" {
			info.Name = f.RunName()
		}
		if info.Status == "" {
			info.Status = StatusUnknown
		}
		if ev := sess.Latest(); ev != nil {
			iter := ev.Iteration
			info.LatestIteration = &iter
			info.LatestLoss = ev.TrainLoss
			info.LatestValLoss = ev.ValLoss
		}
		out = append(out, info)
	}
	return out
}

// Summary condenses a session for the historical view.
type Summary struct {
	TotalEvents     int                       `json:"total_iterations"`
	BestCheckpoints []policy.CheckpointRecord `json:"best_checkpoints"`
	AllCheckpoints  []policy.CheckpointRecord `json:"all_checkpoints"`
	Config          session.TrainingConfig    `json:"config"`

	Iteration       int      `json:"iteration"`
	TrainLoss       *float64 `json:"train_loss"`
	ValLoss         *float64 `json:"val_loss"`
	TrainPerplexity *float64 `json:"train_perplexity"`
	ValPerplexity   *float64 `json:"val_perplexity"`
	LearningRate    *float64 `json:"learning_rate"`
	TokensPerSec    *float64 `json:"tokens_per_sec"`
	PeakMemoryGB    *float64 `json:"peak_memory_gb"`
	TrainedTokens   int64    `json:"trained_tokens"`

	WarmupSteps   int     `json:"warmup_steps"`
	LRDecayFactor float64 `json:"lr_decay_factor"`
	WeightDecay   float64 `json:"weight_decay"`
	MaxIterations int     `json:"max_iterations"`
	LRSchedule    string  `json:"lr_schedule"`
}

// Historical is the complete record of one session.
type Historical struct {
	Session  SessionStatus         `json:"session"`
	Charts   aggregate.ChartSeries `json:"charts"`
	Summary  Summary               `json:"summary"`
	Snapshot aggregate.Snapshot    `json:"snapshot"`
}

// Historical returns charts and a summary for ref. ok is false when the
// session cannot be found or read.
func (s *Service) Historical(ref string) (Historical, bool) {
	_, sess, ok := s.load(ref)
	if !ok {
		return Historical{}, false
	}
	ckpts := policy.Checkpoints(sess.Metrics)
	if ckpts == nil {
		ckpts = []policy.CheckpointRecord{}
	}
	best := policy.BestCheckpoints(ckpts, DefaultTopK)
	if best == nil {
		best = []policy.CheckpointRecord{}
	}
	cfg := sess.Config
	sum := Summary{
		TotalEvents:     len(sess.Metrics),
		BestCheckpoints: best,
		AllCheckpoints:  ckpts,
		Config:          cfg,
		WarmupSteps:     cfg.WarmupSteps,
		LRDecayFactor:   cfg.LRDecayFactor,
		WeightDecay:     cfg.WeightDecay,
		MaxIterations:   cfg.MaxIterations,
		LRSchedule:      cfg.LRSchedule,
	}
	if ev := sess.Latest(); ev != nil {
		sum.Iteration = ev.Iteration
		sum.TrainLoss = ev.TrainLoss
		sum.ValLoss = ev.ValLoss
		sum.TrainPerplexity = ev.TrainPerplexity
		sum.ValPerplexity = ev.ValPerplexity
		sum.LearningRate = ev.LearningRate
		sum.TokensPerSec = ev.TokensPerSec
		sum.PeakMemoryGB = ev.PeakMemoryGB
		if ev.TrainedTokens != nil {
			sum.TrainedTokens = *ev.TrainedTokens
		}
	}
	return Historical{
		Session:  s.Status(ref),
		Charts:   aggregate.HistoricalSeries(sess),
		Summary:  sum,
		Snapshot: aggregate.CurrentSnapshot(sess, s.now()),
	}, true
}

// BestCheckpoints returns up to k ranked checkpoints for ref.
func (s *Service) BestCheckpoints(ref string, k int) ([]policy.CheckpointRecord, bool) {
	_, sess, ok := s.load(ref)
	if !ok {
		return nil, false
	}
	best := policy.BestCheckpoints(policy.Checkpoints(sess.Metrics), k)
	if best == nil {
		best = []policy.CheckpointRecord{}
	}
	return best, true
}

// Logs returns the last n lines of the raw output of ref.
func (s *Service) Logs(ref string, n int) ([]string, bool) {
	path, sess, ok := s.load(ref)
	if !ok {
		return nil, false
	}
	logPath := sess.OutputLog
	if logPath == "" {
		logPath = filepath.Join(filepath.Dir(path), session.OutputLogName)
	}
	lines, err := output.Tail(logPath, n)
	if err != nil {
		s.log.Warn("read %s: %v", logPath, err)
		return []string{}, true
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, true
}
