package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic colors for status indication. ANSI codes keep output readable on
// both light and dark terminals.
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
	ColorAccent    lipgloss.Color = "5" // Magenta
)

// DisableColors switches all rendering to plain text (--no-color, NO_COLOR).
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// StatusColor maps a session status to its display color.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return ColorInfo
	case "completed":
		return ColorSuccess
	case "stopped_early":
		return ColorWarning
	case "failed":
		return ColorError
	default:
		return ColorMuted
	}
}

// StatusSymbol maps a session status to its indicator.
func StatusSymbol(status string) string {
	switch status {
	case "running":
		return SymbolProgress
	case "completed":
		return SymbolSuccess
	case "stopped_early":
		return SymbolStopped
	case "failed":
		return SymbolFail
	default:
		return SymbolPending
	}
}

// RenderStatus renders a status with its symbol and color.
func RenderStatus(status string) string {
	return lipgloss.NewStyle().Foreground(StatusColor(status)).
		Render(StatusSymbol(status) + " " + status)
}
