package types

import (
	"math"
	"time"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// Bar is one OHLCV bucket of an instrument. Time is the bucket start in UTC and
// is aligned to IntervalSec.
type Bar struct {
	Symbol      string    `yaml:"symbol" json:"symbol" csv:"symbol"`
	IntervalSec int       `yaml:"interval_sec" json:"interval_sec" csv:"interval_sec"`
	Time        time.Time `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
	Open        float64   `yaml:"open" json:"open" csv:"open"`
	High        float64   `yaml:"high" json:"high" csv:"high"`
	Low         float64   `yaml:"low" json:"low" csv:"low"`
	Close       float64   `yaml:"close" json:"close" csv:"close"`
	Volume      float64   `yaml:"volume" json:"volume" csv:"volume"`
}

// BucketStart returns the start of the interval bucket that contains tsSeconds.
func BucketStart(tsSeconds int64, intervalSec int) int64 {
	interval := int64(intervalSec)

	return tsSeconds - (tsSeconds % interval)
}

// Finite reports whether every price and the volume are finite numbers.
func (b Bar) Finite() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// Validate checks the OHLC envelope, volume and bucket alignment.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return errors.New(errors.ErrCodeInvalidBar, "bar symbol is empty")
	}

	if b.IntervalSec <= 0 {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar interval must be positive, got %d", b.IntervalSec)
	}

	if !b.Finite() {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar %s@%s has non-finite values", b.Symbol, b.Time.UTC().Format(time.RFC3339))
	}

	if b.Low > math.Min(b.Open, b.Close) || math.Max(b.Open, b.Close) > b.High {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar %s@%s violates low<=open,close<=high", b.Symbol, b.Time.UTC().Format(time.RFC3339))
	}

	if b.Volume < 0 {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar %s has negative volume %f", b.Symbol, b.Volume)
	}

	if b.Time.Unix()%int64(b.IntervalSec) != 0 {
		return errors.Newf(errors.ErrCodeInvalidBar, "bar %s timestamp %d is not aligned to %ds", b.Symbol, b.Time.Unix(), b.IntervalSec)
	}

	return nil
}

// Closes extracts the close column of a window.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}

	return out
}

// Highs extracts the high column of a window.
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}

	return out
}

// Lows extracts the low column of a window.
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}

	return out
}
