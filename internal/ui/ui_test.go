package ui

import (
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	// Plain output keeps string comparisons exact.
	lipgloss.SetColorProfile(termenv.Ascii)
	os.Exit(m.Run())
}

func TestStatusSymbolAndColor(t *testing.T) {
	assert.Equal(t, SymbolProgress, StatusSymbol("running"))
	assert.Equal(t, SymbolSuccess, StatusSymbol("completed"))
	assert.Equal(t, SymbolStopped, StatusSymbol("stopped_early"))
	assert.Equal(t, SymbolFail, StatusSymbol("failed"))
	assert.Equal(t, SymbolPending, StatusSymbol("unknown"))

	assert.Equal(t, ColorError, StatusColor("failed"))
	assert.Equal(t, ColorMuted, StatusColor(""))
	assert.Equal(t, "✓ completed", RenderStatus("completed"))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{12 * time.Second, "12s"},
		{4*time.Minute + 5*time.Second, "4m05s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
		{1500 * time.Millisecond, "2s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), tt.in.String())
	}
}

func TestFormatOptional(t *testing.T) {
	v := 1.23456
	n := int64(400)
	eta := 65.0

	assert.Equal(t, "1.235", FormatFloat(&v, 3))
	assert.Equal(t, "-", FormatFloat(nil, 3))
	assert.Equal(t, "400", FormatInt(&n))
	assert.Equal(t, "-", FormatInt(nil))
	assert.Equal(t, "1m05s", FormatETA(&eta))
	assert.Equal(t, "-", FormatETA(nil))
	assert.Equal(t, "-", FormatTime(time.Time{}))
}

func TestRenderIterationBar(t *testing.T) {
	assert.Equal(t, "[████░░░░░░] 400/1000 (40%)", RenderIterationBar(400, 1000, 10))
	assert.Equal(t, "[██████████] 1200/1000 (100%)", RenderIterationBar(1200, 1000, 10))
	assert.Equal(t, "7", RenderIterationBar(7, 0, 10))
}

func TestRenderHeader(t *testing.T) {
	out := RenderHeader(HeaderInfo{Title: "run1", Status: "running", Subline: "Qwen3-4B"})
	assert.Contains(t, out, "forge run1")
	assert.Contains(t, out, "◐ running")
	assert.Contains(t, out, "Qwen3-4B")
	assert.Contains(t, out, "━━━")
}

func TestSpinnerComponent(t *testing.T) {
	s := NewSpinnerComponent("Waiting for metrics")
	assert.Empty(t, s.View())

	cmd := s.Start()
	assert.NotNil(t, cmd)
	assert.Contains(t, s.View(), "Waiting for metrics...")

	s.Stop()
	next, cmd := s.Update(nil)
	assert.Nil(t, cmd)
	assert.Empty(t, next.View())
}
