package aggregate

import (
	"math"
	"strconv"
)

// Round prepares v for display. Large values keep one decimal, values near
// one keep three, and small magnitudes such as learning rates keep three
// significant digits instead of collapsing to zero.
func Round(v float64) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	abs := math.Abs(v)
	switch {
	case abs >= 100:
		return roundTo(v, 1)
	case abs >= 1:
		return roundTo(v, 3)
	case abs >= 0.001:
		return roundTo(v, 4)
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', 3, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// RoundPtr applies Round through a pointer, keeping nil as nil.
func RoundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := Round(*v)
	return &r
}
