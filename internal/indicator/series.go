package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

func nanSeries(n int) []float64 {
	return constant(math.NaN(), n)
}

func firstFinite(values []float64) int {
	for i, v := range values {
		if !math.IsNaN(v) {
			return i
		}
	}

	return -1
}

func requireFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Newf(errors.ErrCodeIndicatorCalculation, "non-finite input at %d", i)
		}
	}

	return nil
}

// Last returns the final element of a series, or NaN for an empty one.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}

	return series[len(series)-1]
}
