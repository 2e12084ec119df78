package dashboard

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestFindMinMax(t *testing.T) {
	lo, hi := findMinMax([]float64{2.5, 1.2, 3.8})
	assert.Equal(t, 1.2, lo)
	assert.Equal(t, 3.8, hi)

	lo, hi = findMinMax(nil)
	assert.Zero(t, lo)
	assert.Zero(t, hi)
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, 0.0, normalizeValue(1, 1, 3))
	assert.Equal(t, 1.0, normalizeValue(3, 1, 3))
	assert.Equal(t, 0.5, normalizeValue(2, 2, 2), "flat series sits mid-height")
}

func TestRenderBrailleGraph_Dimensions(t *testing.T) {
	data := []float64{3.0, 2.6, 2.2, 2.0, 1.9, 1.7, 1.6, 1.55}
	out := RenderBrailleGraph(data, 10, 3, ColorTrain)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, 10, len([]rune(l)))
	}
}

func TestRenderBrailleGraph_RightAligned(t *testing.T) {
	out := RenderBrailleGraph([]float64{1, 2}, 5, 1, ColorTrain)
	runes := []rune(out)
	require.Len(t, runes, 5)
	for _, r := range runes[:4] {
		assert.Equal(t, '\u2800', r, "padding is the empty braille pattern")
	}
	assert.NotEqual(t, brailleBase, runes[4])
}

func TestBrailleBase_IsEmptyPattern(t *testing.T) {
	assert.Equal(t, rune(0x2800), brailleBase)
}

func TestRenderBrailleGraph_MinimumStillVisible(t *testing.T) {
	out := RenderBrailleGraph([]float64{5, 1}, 1, 1, ColorTrain)
	r := []rune(out)[0]
	// Both columns carry at least their bottom dot.
	assert.NotZero(t, (r-brailleBase)&(1<<6))
	assert.NotZero(t, (r-brailleBase)&(1<<7))
}

func TestRenderBrailleGraph_Empty(t *testing.T) {
	assert.Empty(t, RenderBrailleGraph(nil, 10, 3, ColorTrain))
	assert.Empty(t, RenderBrailleGraph([]float64{1}, 0, 3, ColorTrain))
}

func TestResampleData(t *testing.T) {
	tests := []struct {
		name   string
		data   []float64
		target int
		want   []float64
	}{
		{"same size", []float64{1, 2, 3}, 3, []float64{1, 2, 3}},
		{"downsample averages buckets", []float64{1, 3, 5, 7}, 2, []float64{2, 6}},
		{"upsample interpolates", []float64{0, 10}, 3, []float64{0, 5, 10}},
		{"single value fills", []float64{4}, 3, []float64{4, 4, 4}},
		{"empty", nil, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resampleData(tt.data, tt.target))
		})
	}
}
