package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Progress bar block characters.
const (
	BarFilled = '█'
	BarEmpty  = '░'
)

// ProgressColor returns the bar color for training progress. Higher is
// closer to done.
func ProgressColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 100:
		return ColorSuccess
	case percent >= 50:
		return ColorInfo
	default:
		return ColorSecondary
	}
}

// ClampPercent clamps a percentage to the 0-100 range.
func ClampPercent(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// BuildBarString builds the raw bar string from filled/empty counts.
func BuildBarString(filledCount, emptyCount int) string {
	var sb strings.Builder
	sb.Grow((filledCount + emptyCount + 2) * 3)
	sb.WriteRune('[')
	for i := 0; i < filledCount; i++ {
		sb.WriteRune(BarFilled)
	}
	for i := 0; i < emptyCount; i++ {
		sb.WriteRune(BarEmpty)
	}
	sb.WriteRune(']')
	return sb.String()
}

// CalculateBarCounts returns the number of filled and empty characters for a
// bar of width at percent (0-100).
func CalculateBarCounts(percent float64, width int) (filled, empty int) {
	filled = int((ClampPercent(percent) / 100.0) * float64(width))
	empty = width - filled
	return
}

// RenderIterationBar renders "[████░░░░] 400/1000 (40%)". A non-positive
// total renders only the count.
func RenderIterationBar(current, total int64, width int) string {
	if total <= 0 || width <= 0 {
		return fmt.Sprintf("%d", current)
	}
	percent := ClampPercent(float64(current) / float64(total) * 100)
	filled, empty := CalculateBarCounts(percent, width)
	bar := lipgloss.NewStyle().Foreground(ProgressColor(percent)).
		Render(BuildBarString(filled, empty))
	return fmt.Sprintf("%s %d/%d (%.0f%%)", bar, current, total, percent)
}
