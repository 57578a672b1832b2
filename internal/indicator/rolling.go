package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// RollingMax returns the maximum over the trailing window w. The first w-1
// positions are NaN.
func RollingMax(values []float64, w int) ([]float64, error) {
	return rolling(values, w, math.Max)
}

// RollingMin returns the minimum over the trailing window w.
func RollingMin(values []float64, w int) ([]float64, error) {
	return rolling(values, w, math.Min)
}

func rolling(values []float64, w int, pick func(a, b float64) float64) ([]float64, error) {
	if w <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rolling window must be positive, got %d", w)
	}

	if err := requireFinite(values); err != nil {
		return nil, err
	}

	if len(values) < w {
		return nil, errors.NewInsufficientDataErrorf(w, len(values), "", "rolling window %d needs %d values, got %d", w, w, len(values))
	}

	out := nanSeries(len(values))

	for i := w - 1; i < len(values); i++ {
		v := values[i-w+1]
		for _, x := range values[i-w+2 : i+1] {
			v = pick(v, x)
		}

		out[i] = v
	}

	return out, nil
}
