package policy

import (
	"time"

	"github.com/forgellm/forge/internal/session"
)

// CheckpointRecord is derived from an event that carries a checkpoint marker.
type CheckpointRecord struct {
	Iteration       int       `json:"iteration"`
	Path            string    `json:"path"`
	Paths           []string  `json:"paths,omitempty"`
	TrainLoss       *float64  `json:"train_loss,omitempty"`
	ValLoss         *float64  `json:"val_loss,omitempty"`
	TrainPerplexity *float64  `json:"train_perplexity,omitempty"`
	ValPerplexity   *float64  `json:"val_perplexity,omitempty"`
	LearningRate    *float64  `json:"learning_rate,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Checkpoints extracts a record for each event with a saved checkpoint.
// Losses come from the same event only; there is no borrowing from
// neighbouring iterations.
func Checkpoints(events []session.MetricEvent) []CheckpointRecord {
	var out []CheckpointRecord
	for _, ev := range events {
		if !ev.CheckpointSaved {
			continue
		}
		out = append(out, CheckpointRecord{
			Iteration:       ev.Iteration,
			Path:            ev.CheckpointPath,
			Paths:           ev.CheckpointPaths,
			TrainLoss:       ev.TrainLoss,
			ValLoss:         ev.ValLoss,
			TrainPerplexity: ev.TrainPerplexity,
			ValPerplexity:   ev.ValPerplexity,
			LearningRate:    ev.LearningRate,
			Timestamp:       ev.Timestamp,
		})
	}
	return out
}

// BestCheckpoints returns up to k records by ascending validation loss,
// ties going to the higher iteration. Records without a validation loss
// are ranked only when none has one, and then by most recent iteration.
//
// It makes one pass keeping a sorted buffer of k slots, so the cost is
// O(n*k).
func BestCheckpoints(records []CheckpointRecord, k int) []CheckpointRecord {
	if k <= 0 || len(records) == 0 {
		return nil
	}

	withVal := make([]CheckpointRecord, 0, k)
	recent := make([]CheckpointRecord, 0, k)
	for _, r := range records {
		if r.ValLoss != nil {
			withVal = insertBounded(withVal, r, k, betterByVal)
		} else {
			recent = insertBounded(recent, r, k, newer)
		}
	}
	if len(withVal) > 0 {
		return withVal
	}
	return recent
}

func betterByVal(a, b CheckpointRecord) bool {
	if *a.ValLoss != *b.ValLoss {
		return *a.ValLoss < *b.ValLoss
	}
	return a.Iteration > b.Iteration
}

func newer(a, b CheckpointRecord) bool {
	return a.Iteration > b.Iteration
}

// insertBounded places r into the sorted buffer and drops the tail past k.
func insertBounded(buf []CheckpointRecord, r CheckpointRecord, k int, less func(a, b CheckpointRecord) bool) []CheckpointRecord {
	i := len(buf)
	for i > 0 && less(r, buf[i-1]) {
		i--
	}
	if i >= k {
		return buf
	}
	if len(buf) < k {
		buf = append(buf, CheckpointRecord{})
	}
	copy(buf[i+1:], buf[i:len(buf)-1])
	buf[i] = r
	return buf
}
