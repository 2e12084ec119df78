package ui

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration renders elapsed time as "1h02m03s", "4m05s" or "12s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatETA renders an ETA in seconds, or "-" when unknown.
func FormatETA(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	return FormatDuration(time.Duration(*seconds * float64(time.Second)))
}

// FormatFloat renders an optional metric, or "-" when missing.
func FormatFloat(v *float64, decimals int) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return "-"
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}

// FormatInt renders an optional counter, or "-" when missing.
func FormatInt(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

// FormatTime renders a timestamp in local time, or "-" when zero.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
