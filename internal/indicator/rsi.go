package indicator

import (
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// RSI returns Wilder's relative strength index. The first average gain and
// loss are the simple means of the first period deltas; later values use
// α = 1/period. Positions before period are NaN. A zero average loss yields 100.
func RSI(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidPeriod, "rsi period must be positive, got %d", period)
	}

	if err := requireFinite(values); err != nil {
		return nil, err
	}

	if len(values) < period+1 {
		return nil, errors.NewInsufficientDataErrorf(period+1, len(values), "", "rsi(%d) needs %d closes, got %d", period, period+1, len(values))
	}

	out := nanSeries(len(values))

	var avgGain, avgLoss float64

	for i := 1; i <= period; i++ {
		gain, loss := delta(values[i-1], values[i])
		avgGain += gain
		avgLoss += loss
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		gain, loss := delta(values[i-1], values[i])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out, nil
}

func delta(prev, cur float64) (gain, loss float64) {
	change := cur - prev
	if change > 0 {
		return change, 0
	}

	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}
