package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparkline_Empty(t *testing.T) {
	assert.Empty(t, Sparkline(nil, 10))
	assert.Empty(t, Sparkline([]float64{1, 2}, 0))
	assert.Empty(t, RenderLossSparkline(nil, 10))
}

func TestSparkline_Levels(t *testing.T) {
	assert.Equal(t, "▁▅█", Sparkline([]float64{0, 0.6, 1}, 10))
	assert.Equal(t, "▅▅▅", Sparkline([]float64{2, 2, 2}, 10), "flat data uses the middle level")
}

func TestSparkline_Window(t *testing.T) {
	got := Sparkline([]float64{100, 1, 2, 3}, 3)
	assert.Equal(t, 3, len([]rune(got)))
	assert.Equal(t, "▁▄█", got, "old values outside the window don't affect scaling")
}

func TestTrendColor(t *testing.T) {
	assert.Equal(t, ColorSuccess, TrendColor([]float64{2.5, 2.0, 1.4}))
	assert.Equal(t, ColorError, TrendColor([]float64{1.4, 2.0}))
	assert.Equal(t, ColorWarning, TrendColor([]float64{1.4, 1.0, 1.4}))
	assert.Equal(t, ColorMuted, TrendColor([]float64{1.4}))
}

func TestRenderLossSparkline(t *testing.T) {
	assert.Equal(t, "█▄▁", RenderLossSparkline([]float64{3, 2, 1}, 10))
}
