// Package indicator is the pure indicator kernel: EMA, MACD, RSI, TRIX and
// rolling extrema over float series, plus a registry of named frame columns.
package indicator

import (
	"github.com/rxtech-lab/argo-perp/internal/types"
)

// Indicator derives one or more columns of a Frame.
type Indicator interface {
	// Name returns the registry key of the indicator
	Name() types.IndicatorType
	// Columns lists the frame columns Compute writes
	Columns() []types.IndicatorType
	// Compute writes the columns into the frame. Unmet warm-up returns an
	// InsufficientDataError and leaves the frame untouched.
	Compute(f *Frame) error
}

type emaIndicator struct {
	name types.IndicatorType
	span int
}

// NewEMA returns an indicator writing ema(close, span) into name.
func NewEMA(name types.IndicatorType, span int) Indicator {
	return &emaIndicator{name: name, span: span}
}

func (e *emaIndicator) Name() types.IndicatorType { return e.name }

func (e *emaIndicator) Columns() []types.IndicatorType { return []types.IndicatorType{e.name} }

func (e *emaIndicator) Compute(f *Frame) error {
	out, err := EMA(f.Closes(), e.span)
	if err != nil {
		return err
	}

	f.Set(e.name, out)

	return nil
}

type rsiIndicator struct {
	period int
}

func NewRSI(period int) Indicator {
	return &rsiIndicator{period: period}
}

func (r *rsiIndicator) Name() types.IndicatorType { return types.IndicatorRSI }

func (r *rsiIndicator) Columns() []types.IndicatorType { return []types.IndicatorType{types.IndicatorRSI} }

func (r *rsiIndicator) Compute(f *Frame) error {
	out, err := RSI(f.Closes(), r.period)
	if err != nil {
		return err
	}

	f.Set(types.IndicatorRSI, out)

	return nil
}

type macdIndicator struct {
	fast, slow, signal int
}

func NewMACD(fast, slow, signal int) Indicator {
	return &macdIndicator{fast: fast, slow: slow, signal: signal}
}

func (m *macdIndicator) Name() types.IndicatorType { return types.IndicatorMACD }

func (m *macdIndicator) Columns() []types.IndicatorType {
	return []types.IndicatorType{types.IndicatorMACD, types.IndicatorMACDSignal, types.IndicatorMACDHist}
}

func (m *macdIndicator) Compute(f *Frame) error {
	res, err := MACD(f.Closes(), m.fast, m.slow, m.signal)
	if err != nil {
		return err
	}

	f.Set(types.IndicatorMACD, res.Line)
	f.Set(types.IndicatorMACDSignal, res.Signal)
	f.Set(types.IndicatorMACDHist, res.Hist)

	return nil
}

type trixIndicator struct {
	length int
}

func NewTRIX(length int) Indicator {
	return &trixIndicator{length: length}
}

func (t *trixIndicator) Name() types.IndicatorType { return types.IndicatorTRIX }

func (t *trixIndicator) Columns() []types.IndicatorType { return []types.IndicatorType{types.IndicatorTRIX} }

func (t *trixIndicator) Compute(f *Frame) error {
	out, err := TRIX(f.Closes(), t.length)
	if err != nil {
		return err
	}

	f.Set(types.IndicatorTRIX, out)

	return nil
}

type extremaIndicator struct {
	name   types.IndicatorType
	window int
	high   bool
}

// NewRollingHigh writes the rolling max of highs into name.
func NewRollingHigh(name types.IndicatorType, window int) Indicator {
	return &extremaIndicator{name: name, window: window, high: true}
}

// NewRollingLow writes the rolling min of lows into name.
func NewRollingLow(name types.IndicatorType, window int) Indicator {
	return &extremaIndicator{name: name, window: window}
}

func (e *extremaIndicator) Name() types.IndicatorType { return e.name }

func (e *extremaIndicator) Columns() []types.IndicatorType { return []types.IndicatorType{e.name} }

func (e *extremaIndicator) Compute(f *Frame) error {
	var (
		out []float64
		err error
	)

	if e.high {
		out, err = RollingMax(f.Highs(), e.window)
	} else {
		out, err = RollingMin(f.Lows(), e.window)
	}

	if err != nil {
		return err
	}

	f.Set(e.name, out)

	return nil
}
