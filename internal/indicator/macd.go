package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// MACDResult holds the three MACD series aligned to the input.
type MACDResult struct {
	Line   []float64
	Signal []float64
	Hist   []float64
}

// MACD computes line = ema(fast) − ema(slow), signal = ema(line, signal) and
// hist = line − signal.
func MACD(values []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, errors.Newf(errors.ErrCodeInvalidPeriod, "macd periods must be positive, got %d/%d/%d", fast, slow, signal)
	}

	if fast >= slow {
		return MACDResult{}, errors.Newf(errors.ErrCodeInvalidPeriod, "macd fast period %d must be below slow period %d", fast, slow)
	}

	fastEMA, err := EMA(values, fast)
	if err != nil {
		return MACDResult{}, err
	}

	slowEMA, err := EMA(values, slow)
	if err != nil {
		return MACDResult{}, err
	}

	line := nanSeries(len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine, err := ema(line, signal)
	if err != nil {
		return MACDResult{}, err
	}

	hist := nanSeries(len(values))
	for i := range values {
		if !math.IsNaN(signalLine[i]) {
			hist[i] = line[i] - signalLine[i]
		}
	}

	return MACDResult{Line: line, Signal: signalLine, Hist: hist}, nil
}
