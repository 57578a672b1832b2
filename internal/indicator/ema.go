package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// EMA returns the exponential moving average of values with α = 2/(span+1),
// seeded at the first value (pandas ewm with adjust=False). The first span-1
// positions are NaN.
func EMA(values []float64, span int) ([]float64, error) {
	if err := requireFinite(values); err != nil {
		return nil, err
	}

	return ema(values, span)
}

// ema tolerates leading NaN so stacked averages (MACD signal, TRIX) can be fed
// the output of another average.
func ema(values []float64, span int) ([]float64, error) {
	if span <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "ema span must be positive, got %d", span)
	}

	first := firstFinite(values)
	if first < 0 || len(values)-first < span {
		return nil, errors.NewInsufficientDataErrorf(span, len(values)-max(first, 0), "", "ema(%d) needs %d values, got %d", span, span, len(values)-max(first, 0))
	}

	out := nanSeries(len(values))
	alpha := 2.0 / float64(span+1)
	avg := values[first]

	for i := first; i < len(values); i++ {
		if math.IsNaN(values[i]) {
			return nil, errors.Newf(errors.ErrCodeIndicatorCalculation, "ema input has a gap at %d", i)
		}

		if i > first {
			avg = values[i]*alpha + avg*(1-alpha)
		}

		if i-first >= span-1 {
			out[i] = avg
		}
	}

	return out, nil
}
