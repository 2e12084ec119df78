package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/forgellm/forge/internal/parse"
	"github.com/forgellm/forge/internal/ui"
)

// Formatter processes trainer output lines for display.
type Formatter interface {
	// Name returns the formatter identifier.
	Name() string

	// ProcessLine transforms a single line of output.
	// ANSI codes should pass through unchanged.
	ProcessLine(line string) string

	// Summary generates a final summary after the trainer exits.
	Summary(exitCode int) string
}

// TrainingFormatter highlights the lines the parser understands.
// Validation reports are cyan, checkpoints green with a check mark, errors red.
type TrainingFormatter struct {
	valStyle   lipgloss.Style
	saveStyle  lipgloss.Style
	errorStyle lipgloss.Style
	mutedStyle lipgloss.Style
}

// NewTrainingFormatter creates the default trainer formatter.
func NewTrainingFormatter() *TrainingFormatter {
	return &TrainingFormatter{
		valStyle:   lipgloss.NewStyle().Foreground(ui.ColorInfo),
		saveStyle:  lipgloss.NewStyle().Foreground(ui.ColorSuccess),
		errorStyle: lipgloss.NewStyle().Foreground(ui.ColorError),
		mutedStyle: lipgloss.NewStyle().Foreground(ui.ColorMuted),
	}
}

// Name returns "training".
func (f *TrainingFormatter) Name() string {
	return "training"
}

// ProcessLine styles line by the grammar variant it matches.
func (f *TrainingFormatter) ProcessLine(line string) string {
	if isErrorLine(line) {
		return f.errorStyle.Render(line)
	}
	rec, err := parse.Match(line)
	if err != nil {
		return f.mutedStyle.Render(line)
	}
	switch rec.Kind {
	case parse.KindValidation:
		return f.valStyle.Render(line)
	case parse.KindCheckpoint, parse.KindFinalCheckpoint:
		return f.saveStyle.Render(ui.SymbolSuccess + " " + line)
	}
	return line
}

// Summary returns a one-line exit message for failures.
func (f *TrainingFormatter) Summary(exitCode int) string {
	if exitCode == 0 {
		return ""
	}
	return f.errorStyle.Render(fmt.Sprintf("%s Trainer exited with code %d", ui.SymbolFail, exitCode))
}

// isErrorLine checks if a line looks like an error or a Python traceback.
func isErrorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	for _, prefix := range []string{"error:", "fatal:", "traceback (most recent call last)", "runtimeerror", "valueerror"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return strings.Contains(line, "ERROR")
}

// PassthroughFormatter passes all lines through unchanged.
type PassthroughFormatter struct{}

// NewPassthroughFormatter creates a no-op formatter.
func NewPassthroughFormatter() *PassthroughFormatter {
	return &PassthroughFormatter{}
}

// Name returns "passthrough".
func (f *PassthroughFormatter) Name() string {
	return "passthrough"
}

// ProcessLine returns the line unchanged.
func (f *PassthroughFormatter) ProcessLine(line string) string {
	return line
}

// Summary returns an empty string.
func (f *PassthroughFormatter) Summary(_ int) string {
	return ""
}

// FormatterByName returns the formatter registered under name. Unknown
// names fall back to the training formatter.
func FormatterByName(name string) Formatter {
	switch name {
	case "passthrough", "raw":
		return NewPassthroughFormatter()
	}
	return NewTrainingFormatter()
}
