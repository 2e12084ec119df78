package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_Train(t *testing.T) {
	line := "Iter 10: Train loss 2.345, Learning Rate 1.000e-05, It/sec 0.512, Tokens/sec 1234.5, Trained Tokens 12345, Peak mem 12.3 GB"

	rec, err := Match(line)
	require.NoError(t, err)
	assert.Equal(t, KindTrain, rec.Kind)
	assert.Equal(t, 10, rec.Iteration)
	require.NotNil(t, rec.TrainLoss)
	assert.InDelta(t, 2.345, *rec.TrainLoss, 1e-9)
	require.NotNil(t, rec.LearningRate)
	assert.InDelta(t, 1e-5, *rec.LearningRate, 1e-15)
	require.NotNil(t, rec.ItersPerSec)
	assert.InDelta(t, 0.512, *rec.ItersPerSec, 1e-9)
	require.NotNil(t, rec.TokensPerSec)
	assert.InDelta(t, 1234.5, *rec.TokensPerSec, 1e-9)
	require.NotNil(t, rec.TrainedTokens)
	assert.Equal(t, int64(12345), *rec.TrainedTokens)
	require.NotNil(t, rec.PeakMemoryGB)
	assert.InDelta(t, 12.3, *rec.PeakMemoryGB, 1e-9)
	assert.Nil(t, rec.ValLoss)
}

func TestMatch_LearningRateNotations(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"1.000e-05", 1e-5},
		{"2E-4", 2e-4},
		{"0.0003", 3e-4},
		{"5e-6", 5e-6},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rec, err := Match("Iter 1: Train loss 1.0, Learning Rate " + tt.raw)
			require.NoError(t, err)
			require.NotNil(t, rec.LearningRate)
			assert.InDelta(t, tt.want, *rec.LearningRate, 1e-15)
		})
	}
}

func TestMatch_Validation(t *testing.T) {
	rec, err := Match("Iter 25: Val loss 2.123, Val took 3.456s")
	require.NoError(t, err)
	assert.Equal(t, KindValidation, rec.Kind)
	assert.Equal(t, 25, rec.Iteration)
	require.NotNil(t, rec.ValLoss)
	assert.InDelta(t, 2.123, *rec.ValLoss, 1e-9)
	require.NotNil(t, rec.ValTimeSec)
	assert.InDelta(t, 3.456, *rec.ValTimeSec, 1e-9)
}

func TestMatch_Checkpoint(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		paths     int
		canonical string
	}{
		{
			name:      "dual path prefers numbered",
			line:      "Iter 100: Saved adapter weights to out/adapters.safetensors and out/0000100_adapters.safetensors.",
			paths:     2,
			canonical: "out/0000100_adapters.safetensors",
		},
		{
			name:      "numbered listed first",
			line:      "Iter 200: Saved adapter weights to out/0000200_adapters.safetensors and out/adapters.safetensors.",
			paths:     2,
			canonical: "out/0000200_adapters.safetensors",
		},
		{
			name:      "single path",
			line:      "Iter 300: Saved adapter weights to out/adapters.safetensors.",
			paths:     1,
			canonical: "out/adapters.safetensors",
		},
		{
			name:      "no numbered match falls back to last",
			line:      "Iter 400: Saved adapter weights to a.safetensors and b.safetensors",
			paths:     2,
			canonical: "b.safetensors",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Match(tt.line)
			require.NoError(t, err)
			assert.Equal(t, KindCheckpoint, rec.Kind)
			assert.Len(t, rec.Paths, tt.paths)
			assert.Equal(t, tt.canonical, rec.Canonical)
		})
	}
}

func TestMatch_FinalWeights(t *testing.T) {
	rec, err := Match("Saved final weights to out/adapters.safetensors.")
	require.NoError(t, err)
	assert.Equal(t, KindFinalCheckpoint, rec.Kind)
	assert.False(t, rec.HasIteration)
	assert.Equal(t, "out/adapters.safetensors", rec.Canonical)
}

func TestMatch_Unrecognised(t *testing.T) {
	lines := []string{
		"",
		"Loading pretrained model",
		"Trainable parameters: 0.123% (4.194M/3400.000M)",
		"Iter 10: something we don't know",
		"Starting training..., iters: 1000",
	}
	for _, line := range lines {
		rec, err := Match(line)
		assert.NoError(t, err, line)
		assert.Equal(t, KindNone, rec.Kind, line)
	}
}

func TestMatch_Malformed(t *testing.T) {
	lines := []string{
		"Iter abc: Train loss 2.0",
		"Iter 10: Train loss",
		"Iter 10: Train loss abc, Learning Rate 1e-5",
		"Iter 10: Train loss nan",
		"Iter 10: Train loss inf, It/sec 1.0",
		"Iter 25: Val loss ???",
		"Iter -5: Val loss 1.0",
		"Iter 100: Saved adapter weights to .",
	}
	for _, line := range lines {
		var rec Record
		require.NotPanics(t, func() {
			var err error
			rec, err = Match(line)
			var malformed *MalformedError
			assert.ErrorAs(t, err, &malformed, line)
		})
		assert.Equal(t, KindNone, rec.Kind, line)
	}
}

func TestMatch_BadOptionalFieldIgnored(t *testing.T) {
	rec, err := Match("Iter 10: Train loss 2.0, Learning Rate oops, Peak mem 1.5 GB")
	require.NoError(t, err)
	assert.Nil(t, rec.LearningRate)
	require.NotNil(t, rec.PeakMemoryGB)
	assert.InDelta(t, 1.5, *rec.PeakMemoryGB, 1e-9)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "train", KindTrain.String())
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "none", KindNone.String())
}
