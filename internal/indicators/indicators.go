// Package indicators implements the technical indicator kernel: pure
// series math over closing prices and volumes, plus latest-bar signal
// derivation used by consensus rule predicates.
//
// Warmup positions in returned series hold NaN. Input slices are never
// mutated.
package indicators

import (
	"errors"
	"fmt"
	"math"
)

// ErrInsufficientData is returned when a series is shorter than the
// indicator's minimum lookback
var ErrInsufficientData = errors.New("insufficient data")

func insufficient(name string, need, have int) error {
	return fmt.Errorf("%s: need %d bars, have %d: %w", name, need, have, ErrInsufficientData)
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

func last(series []float64) float64 {
	return series[len(series)-1]
}
