package policy

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/forgellm/forge/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEarlyStopper_StopsOnFifthValue(t *testing.T) {
	s := NewEarlyStopper(EarlyStopConfig{Enabled: true, Patience: 3, MinImprovement: 0.01})

	vals := []float64{1.0, 0.9, 0.95, 0.96, 0.97}
	var stoppedAt int
	for i, v := range vals {
		d := s.Observe(v)
		if d.Stop {
			stoppedAt = i + 1
			assert.NotEmpty(t, d.Reason)
			break
		}
	}
	assert.Equal(t, 5, stoppedAt)
	assert.InDelta(t, 0.9, s.Best(), 1e-12)
	assert.True(t, s.Stopped())
}

func TestEarlyStopper_Decisions(t *testing.T) {
	s := NewEarlyStopper(EarlyStopConfig{Enabled: true, Patience: 2, MinImprovement: 0.05})

	d := s.Observe(2.0)
	assert.True(t, d.Improved)
	assert.Equal(t, 0, d.Counter)

	d = s.Observe(1.97) // improvement below the minimum
	assert.False(t, d.Improved)
	assert.Equal(t, 1, d.Counter)
	assert.InDelta(t, 2.0, d.Best, 1e-12)

	d = s.Observe(1.9) // resets
	assert.True(t, d.Improved)
	assert.Equal(t, 0, d.Counter)
	assert.False(t, d.Stop)

	s.Observe(1.95)
	d = s.Observe(1.99)
	assert.True(t, d.Stop)
	assert.Equal(t, 2, d.Counter)
}

func TestEarlyStopper_DisabledNeverStops(t *testing.T) {
	s := NewEarlyStopper(EarlyStopConfig{Enabled: false, Patience: 1, MinImprovement: 0.01})
	s.Observe(1.0)
	for i := 0; i < 10; i++ {
		d := s.Observe(2.0)
		assert.False(t, d.Stop)
	}
	assert.Equal(t, 11, s.Evaluations())
}

func TestEarlyStopper_ZeroPatienceActsAsOne(t *testing.T) {
	s := NewEarlyStopper(EarlyStopConfig{Enabled: true, Patience: 0})
	assert.False(t, s.Observe(1.0).Stop)
	assert.True(t, s.Observe(1.5).Stop)
}

func TestReplay(t *testing.T) {
	events := []session.MetricEvent{
		{Iteration: 10, TrainLoss: session.Float(2.0)},
		{Iteration: 25, ValLoss: session.Float(1.0)},
		{Iteration: 30, TrainLoss: session.Float(1.5)},
		{Iteration: 50, ValLoss: session.Float(0.9)},
		{Iteration: 75, ValLoss: session.Float(0.95)},
	}

	st := Replay(events, EarlyStopConfig{Enabled: true, Patience: 3, MinImprovement: 0.01})
	assert.Equal(t, 3, st.Evaluations)
	assert.True(t, st.HasBest)
	assert.InDelta(t, 0.9, st.Best, 1e-12)
	assert.Equal(t, 1, st.Counter)
	assert.False(t, st.Stop)

	empty := Replay(events[:1], EarlyStopConfig{Enabled: true, Patience: 3})
	assert.False(t, empty.HasBest)
	assert.Zero(t, empty.Evaluations)
}

func TestOverfitting(t *testing.T) {
	tests := []struct {
		name      string
		train     float64
		val       float64
		threshold float64
		want      bool
	}{
		{"gap above threshold", 1.0, 1.5, 0.1, true},
		{"gap below threshold", 1.0, 1.05, 0.1, false},
		{"val below train", 1.2, 1.0, 0.1, false},
		{"disabled", 1.0, 3.0, 0, false},
		{"zero val", 0, 0, 0.1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overfitting(tt.train, tt.val, tt.threshold))
		})
	}
}

func ckpt(iter int, val *float64) CheckpointRecord {
	return CheckpointRecord{Iteration: iter, Path: fmt.Sprintf("out/%07d_adapters.safetensors", iter), ValLoss: val}
}

func iterations(recs []CheckpointRecord) []int {
	out := make([]int, len(recs))
	for i, r := range recs {
		out[i] = r.Iteration
	}
	return out
}

func TestBestCheckpoints_TieBreaksToHigherIteration(t *testing.T) {
	recs := []CheckpointRecord{
		ckpt(100, session.Float(0.5)),
		ckpt(200, session.Float(0.3)),
		ckpt(300, session.Float(0.3)),
	}
	assert.Equal(t, []int{300, 200}, iterations(BestCheckpoints(recs, 2)))
}

func TestBestCheckpoints_FallsBackToRecent(t *testing.T) {
	recs := []CheckpointRecord{ckpt(100, nil), ckpt(300, nil), ckpt(200, nil)}
	assert.Equal(t, []int{300, 200}, iterations(BestCheckpoints(recs, 2)))
}

func TestBestCheckpoints_IgnoresUnvalidatedWhenAnyHasVal(t *testing.T) {
	recs := []CheckpointRecord{ckpt(100, nil), ckpt(200, session.Float(1.0)), ckpt(300, nil)}
	assert.Equal(t, []int{200}, iterations(BestCheckpoints(recs, 3)))
}

func TestBestCheckpoints_Edges(t *testing.T) {
	assert.Nil(t, BestCheckpoints(nil, 3))
	assert.Nil(t, BestCheckpoints([]CheckpointRecord{ckpt(1, nil)}, 0))
	assert.Len(t, BestCheckpoints([]CheckpointRecord{ckpt(1, session.Float(1))}, 5), 1)
}

func TestBestCheckpoints_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		var recs []CheckpointRecord
		for i := 1; i <= 40; i++ {
			v := math.Round(rng.Float64()*10) / 10
			recs = append(recs, ckpt(i*100, session.Float(v)))
		}
		k := 1 + rng.Intn(6)

		sorted := append([]CheckpointRecord(nil), recs...)
		sort.Slice(sorted, func(i, j int) bool { return betterByVal(sorted[i], sorted[j]) })

		require.Equal(t, iterations(sorted[:k]), iterations(BestCheckpoints(recs, k)))
	}
}

func TestCheckpoints_FromEvents(t *testing.T) {
	events := []session.MetricEvent{
		{Iteration: 90, TrainLoss: session.Float(2.0)},
		{Iteration: 100, TrainLoss: session.Float(1.9), ValLoss: session.Float(1.8), CheckpointSaved: true, CheckpointPath: "a"},
		{Iteration: 200, CheckpointSaved: true, CheckpointPath: "b"},
	}
	recs := Checkpoints(events)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Path)
	require.NotNil(t, recs[0].ValLoss)
	assert.Nil(t, recs[1].ValLoss, "losses are not borrowed from other events")
}

func TestEarlyStopConfigFrom(t *testing.T) {
	cfg := session.DefaultTrainingConfig()
	cfg.EnableEarlyStopping = true
	got := EarlyStopConfigFrom(cfg)
	assert.True(t, got.Enabled)
	assert.Equal(t, cfg.EarlyStoppingPatience, got.Patience)
	assert.Equal(t, cfg.MinLossImprovement, got.MinImprovement)
}
