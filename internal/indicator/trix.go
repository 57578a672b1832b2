package indicator

import "math"

// TRIX is the per-step percent change of a triple EMA of length length.
func TRIX(values []float64, length int) ([]float64, error) {
	e1, err := EMA(values, length)
	if err != nil {
		return nil, err
	}

	e2, err := ema(e1, length)
	if err != nil {
		return nil, err
	}

	e3, err := ema(e2, length)
	if err != nil {
		return nil, err
	}

	out := nanSeries(len(values))

	for i := 1; i < len(e3); i++ {
		prev := e3[i-1]
		if math.IsNaN(prev) || math.IsNaN(e3[i]) || prev == 0 {
			continue
		}

		out[i] = (e3[i] - prev) / prev * 100
	}

	return out, nil
}
