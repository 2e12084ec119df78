package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HeaderInfo contains information to display in the header.
type HeaderInfo struct {
	Title   string // Usually the session name
	Status  string // Session status, rendered with its color
	Subline string // Optional second line (model, elapsed)
}

// HeaderWidth is the default width of the header divider
const HeaderWidth = 60

// RenderHeader renders the title block shown above dashboards and status
// output.
func RenderHeader(info HeaderInfo) string {
	titleStyle := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	sublineStyle := lipgloss.NewStyle().Foreground(ColorSecondary)
	dividerStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var output strings.Builder
	output.WriteString(titleStyle.Render("forge"))
	if info.Title != "" {
		output.WriteString(" ")
		output.WriteString(info.Title)
	}
	if info.Status != "" {
		output.WriteString("  ")
		output.WriteString(RenderStatus(info.Status))
	}
	output.WriteString("\n")

	if info.Subline != "" {
		output.WriteString(sublineStyle.Render(info.Subline))
		output.WriteString("\n")
	}

	output.WriteString(dividerStyle.Render(strings.Repeat("━", HeaderWidth)))
	output.WriteString("\n")
	return output.String()
}
