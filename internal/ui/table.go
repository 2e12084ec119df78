package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn defines a table column with name and width.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates a Bubbles table with forge styling.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1), // +1 for header
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	s.Selected = s.Selected.Foreground(ColorPrimary).Bold(false)

	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders a non-interactive table string for CLI output.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

// SessionRow is one line of the sessions listing.
type SessionRow struct {
	Name      string
	Status    string
	Iteration string
	ValLoss   string
	Started   string
}

// RenderSessionTable renders sessions newest first, as given.
func RenderSessionTable(rows []SessionRow) string {
	if len(rows) == 0 {
		return "No training sessions found"
	}

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	nameWidth := len("SESSION")
	for _, r := range rows {
		if w := lipgloss.Width(r.Name); w > nameWidth {
			nameWidth = w
		}
	}
	nameWidth += 2

	var out strings.Builder
	out.WriteString(headerStyle.Render("  " +
		padRight("SESSION", nameWidth) +
		padRight("STATUS", 18) +
		padRight("ITER", 10) +
		padRight("VAL LOSS", 10) +
		"STARTED"))
	out.WriteString("\n")
	for _, r := range rows {
		out.WriteString("  " +
			padRight(r.Name, nameWidth) +
			padRight(RenderStatus(r.Status), 18) +
			padRight(r.Iteration, 10) +
			padRight(r.ValLoss, 10) +
			mutedStyle.Render(r.Started))
		out.WriteString("\n")
	}
	return out.String()
}

// CheckpointRow is one ranked checkpoint.
type CheckpointRow struct {
	Iteration string
	ValLoss   string
	Path      string
	Best      bool
}

// RenderCheckpointTable renders ranked checkpoints, marking the best.
func RenderCheckpointTable(rows []CheckpointRow) string {
	if len(rows) == 0 {
		return "No checkpoints saved yet"
	}
	bestStyle := lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var out strings.Builder
	for _, r := range rows {
		marker := mutedStyle.Render(SymbolCheckpoint)
		if r.Best {
			marker = bestStyle.Render(SymbolBest)
		}
		out.WriteString("  " + marker + " " +
			padRight("iter "+r.Iteration, 12) +
			padRight("val "+r.ValLoss, 14) +
			mutedStyle.Render(r.Path))
		out.WriteString("\n")
	}
	return out.String()
}

// KeyValue is a labeled line in a details block.
type KeyValue struct {
	Key   string
	Value string
}

// RenderKeyValues renders aligned "key  value" lines.
func RenderKeyValues(pairs []KeyValue) string {
	width := 0
	for _, p := range pairs {
		if len(p.Key) > width {
			width = len(p.Key)
		}
	}
	keyStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	var out strings.Builder
	for _, p := range pairs {
		out.WriteString("  " + padRight(keyStyle.Render(p.Key), width+2) + p.Value + "\n")
	}
	return out.String()
}

// padRight pads a string to the visible width, ignoring ANSI codes.
func padRight(s string, width int) string {
	visibleLen := lipgloss.Width(s)
	if visibleLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleLen)
}
