package signal

import (
	"math"

	"github.com/trezcool/prepcards/core"
)

// Confidence grows with the number of reflections n, independently of their outcomes:
// 1 - 1/(1 + ln(1 + n/10)), rounded to 4 decimal places. n <= 0 yields 0.
// Rounding makes neighbouring values equal once n passes ~440 (e.g. 441 and 442 both give 0.7921).
func Confidence(n int) float64 {
	return core.Round(rawConfidence(n), 4)
}

func rawConfidence(n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - 1/(1+math.Log(1+float64(n)/10))
}
