package core

import (
	"math"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Round rounds x half away from zero to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(x*p) / p
}

// Ratio returns num/den rounded to 4 decimal places, or 0 if den is 0.
func Ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return Round(float64(num)/float64(den), 4)
}
