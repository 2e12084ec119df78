package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Sparkline block characters representing 8 vertical levels (lowest to highest).
const sparklineBlocks = "▁▂▃▄▅▆▇█"

var sparklineBlockRunes = []rune(sparklineBlocks)

// Sparkline returns the unstyled sparkline for the most recent width values.
// Values are mapped to 8 levels between the window's min and max.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	var sb strings.Builder
	sb.Grow(len(data) * 3)

	numLevels := len(sparklineBlockRunes)
	valueRange := maxVal - minVal
	for _, v := range data {
		level := numLevels / 2
		if valueRange != 0 {
			level = int((v - minVal) / valueRange * float64(numLevels-1))
			if level < 0 {
				level = 0
			} else if level >= numLevels {
				level = numLevels - 1
			}
		}
		sb.WriteRune(sparklineBlockRunes[level])
	}
	return sb.String()
}

// RenderLossSparkline renders a loss curve colored by its trend across the
// window: falling is green, flat is yellow, rising is red.
func RenderLossSparkline(data []float64, width int) string {
	line := Sparkline(data, width)
	if line == "" {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	return lipgloss.NewStyle().Foreground(TrendColor(data)).Render(line)
}

// TrendColor compares the last value to the first. Lower is better.
func TrendColor(data []float64) lipgloss.Color {
	if len(data) < 2 {
		return ColorMuted
	}
	first, last := data[0], data[len(data)-1]
	switch {
	case last < first:
		return ColorSuccess
	case last > first:
		return ColorError
	default:
		return ColorWarning
	}
}
