// Package ui renders forge's terminal output: status colors and symbols, loss
// sparklines, iteration progress bars, session and checkpoint tables, and
// small Bubble Tea components for the live dashboard.
//
// Colors are ANSI codes so output follows the terminal's theme. Call
// DisableColors for --no-color or when NO_COLOR is set.
package ui
