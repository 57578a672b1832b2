package indicator

import "math"

// CrossedAbove reports a cross of a over b at index i: a[i-1] <= b[i-1] and
// a[i] > b[i]. Equal values on both bars are not a cross.
func CrossedAbove(a, b []float64, i int) bool {
	if !crossable(a, b, i) {
		return false
	}

	return a[i-1] <= b[i-1] && a[i] > b[i]
}

// CrossedBelow is the mirror of CrossedAbove.
func CrossedBelow(a, b []float64, i int) bool {
	if !crossable(a, b, i) {
		return false
	}

	return a[i-1] >= b[i-1] && a[i] < b[i]
}

// CrossedAboveLevel reports a cross of a over a constant level at index i.
func CrossedAboveLevel(a []float64, level float64, i int) bool {
	return CrossedAbove(a, constant(level, len(a)), i)
}

// CrossedBelowLevel reports a cross of a under a constant level at index i.
func CrossedBelowLevel(a []float64, level float64, i int) bool {
	return CrossedBelow(a, constant(level, len(a)), i)
}

func crossable(a, b []float64, i int) bool {
	if i < 1 || i >= len(a) || i >= len(b) {
		return false
	}

	for _, v := range []float64{a[i-1], a[i], b[i-1], b[i]} {
		if math.IsNaN(v) {
			return false
		}
	}

	return true
}

func constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}

	return out
}
