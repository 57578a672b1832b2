package strategy

import (
	"math"

	"github.com/rxtech-lab/argo-perp/internal/indicator"
	"github.com/rxtech-lab/argo-perp/internal/types"
)

const (
	// bars a cross or flip stays valid as a vote
	voteLookback = 3

	scalpStopLossPct   = 0.5
	scalpTakeProfitPct = 1.0
)

// view is the last-row slice of a frame the built-ins read.
type view struct {
	last   int
	close  float64
	ema50  float64
	rsi    float64
	macd   []float64
	signal []float64
	hist   float64
	trix   []float64
	high20 float64
	low20  float64
}

func newView(f *indicator.Frame) (view, bool) {
	last := f.Len() - 1
	if last < 1 {
		return view{}, false
	}

	macd, _ := f.Column(types.IndicatorMACD)
	signal, _ := f.Column(types.IndicatorMACDSignal)
	trix, _ := f.Column(types.IndicatorTRIX)

	v := view{
		last:   last,
		close:  f.LastClose(),
		ema50:  f.Last(types.IndicatorEMA50),
		rsi:    RSIOrNeutral(f),
		macd:   macd,
		signal: signal,
		hist:   f.Last(types.IndicatorMACDHist),
		trix:   trix,
		// breakouts compare against the channel of the previous bar
		high20: f.Value(types.IndicatorHigh20, last-1),
		low20:  f.Value(types.IndicatorLow20, last-1),
	}

	return v, true
}

func (v view) diagnostics() map[string]float64 {
	d := map[string]float64{
		"close": v.close,
		"rsi":   v.rsi,
	}

	for k, val := range map[string]float64{
		"ema50":     v.ema50,
		"macd_hist": v.hist,
		"trix":      indicator.Last(v.trix),
		"high20":    v.high20,
		"low20":     v.low20,
	} {
		if !math.IsNaN(val) {
			d[k] = val
		}
	}

	return d
}

func (v view) macdCrossUp(lookback int) bool {
	for i := v.last; i > v.last-lookback && i >= 1; i-- {
		if indicator.CrossedAbove(v.macd, v.signal, i) {
			return true
		}
	}

	return false
}

func (v view) macdCrossDown(lookback int) bool {
	for i := v.last; i > v.last-lookback && i >= 1; i-- {
		if indicator.CrossedBelow(v.macd, v.signal, i) {
			return true
		}
	}

	return false
}

func (v view) trixFlipUp(lookback int) bool {
	for i := v.last; i > v.last-lookback && i >= 1; i-- {
		if indicator.CrossedAboveLevel(v.trix, 0, i) {
			return true
		}
	}

	return false
}

func (v view) trixFlipDown(lookback int) bool {
	for i := v.last; i > v.last-lookback && i >= 1; i-- {
		if indicator.CrossedBelowLevel(v.trix, 0, i) {
			return true
		}
	}

	return false
}

func (v view) breakoutUp() bool {
	return !math.IsNaN(v.high20) && v.close > v.high20
}

func (v view) breakoutDown() bool {
	return !math.IsNaN(v.low20) && v.close < v.low20
}

func emit(t types.SignalType, strategy, reason string, v view) types.Signal {
	return types.Signal{Type: t, Strategy: strategy, Reason: reason, Diagnostics: v.diagnostics()}
}

// defaultStrategy combines a MACD cross confirmed by RSI with a 20-bar breakout
// confirmed by the MACD histogram.
func defaultStrategy(f *indicator.Frame, _ string) (types.Signal, error) {
	v, ok := newView(f)
	if !ok || math.IsNaN(v.hist) {
		return types.NoSignal(Default, "warming up"), nil
	}

	switch {
	case v.macdCrossUp(1) && v.rsi > 50 && v.rsi < 70:
		return emit(types.SignalBuy, Default, "macd crossed above signal", v), nil
	case v.breakoutUp() && v.hist > 0:
		return emit(types.SignalBuy, Default, "breakout above 20-bar high", v), nil
	case v.macdCrossDown(1) && v.rsi < 50 && v.rsi > 30:
		return emit(types.SignalSell, Default, "macd crossed below signal", v), nil
	case v.breakoutDown() && v.hist < 0:
		return emit(types.SignalSell, Default, "breakdown below 20-bar low", v), nil
	case (v.hist > 0 && v.rsi > 50) || (v.hist < 0 && v.rsi < 50):
		return emit(types.SignalHold, Default, "momentum without trigger", v), nil
	default:
		return emit(types.SignalNone, Default, "no setup", v), nil
	}
}

// trixStrategy trades the zero-line cross of TRIX on the last bar.
func trixStrategy(f *indicator.Frame, _ string) (types.Signal, error) {
	v, ok := newView(f)
	if !ok || math.IsNaN(indicator.Last(v.trix)) {
		return types.NoSignal(Trix, "warming up"), nil
	}

	switch {
	case v.trixFlipUp(1):
		return emit(types.SignalBuy, Trix, "trix crossed above zero", v), nil
	case v.trixFlipDown(1):
		return emit(types.SignalSell, Trix, "trix crossed below zero", v), nil
	default:
		return emit(types.SignalNone, Trix, "no trix cross", v), nil
	}
}

// comboStrategy requires MACD, RSI and TRIX to agree with the EMA50 trend,
// triggered by a MACD cross or a breakout.
func comboStrategy(f *indicator.Frame, _ string) (types.Signal, error) {
	v, ok := newView(f)
	if !ok || math.IsNaN(v.ema50) || math.IsNaN(v.hist) || math.IsNaN(indicator.Last(v.trix)) {
		return types.NoSignal(Combo, "warming up"), nil
	}

	trix := indicator.Last(v.trix)

	switch {
	case v.close > v.ema50 && v.hist > 0 && v.rsi > 50 && trix > 0 && (v.macdCrossUp(voteLookback) || v.breakoutUp()):
		return emit(types.SignalBuy, Combo, "trend, momentum and trigger aligned up", v), nil
	case v.close < v.ema50 && v.hist < 0 && v.rsi < 50 && trix < 0 && (v.macdCrossDown(voteLookback) || v.breakoutDown()):
		return emit(types.SignalSell, Combo, "trend, momentum and trigger aligned down", v), nil
	default:
		return emit(types.SignalNone, Combo, "not aligned", v), nil
	}
}

type rangeBands struct {
	id        string
	oversold  float64
	overbound float64
	// fraction of the 20-bar channel counted as its edge
	edge float64
}

var (
	rangeStrict = rangeBands{id: Range, oversold: 30, overbound: 70, edge: 0.2}
	rangeSoft   = rangeBands{id: RangeSoft, oversold: 35, overbound: 65, edge: 0.3}
)

// rangeStrategy fades the edges of the 20-bar channel when RSI is stretched.
func rangeStrategy(b rangeBands) Func {
	return func(f *indicator.Frame, _ string) (types.Signal, error) {
		v, ok := newView(f)
		hi := f.Last(types.IndicatorHigh20)
		lo := f.Last(types.IndicatorLow20)

		if !ok || math.IsNaN(hi) || math.IsNaN(lo) || hi <= lo {
			return types.NoSignal(b.id, "no channel"), nil
		}

		width := hi - lo
		s := func(t types.SignalType, reason string) types.Signal {
			out := emit(t, b.id, reason, v)
			out.Diagnostics["channel_pos"] = (v.close - lo) / width

			return out
		}

		switch {
		case v.rsi < b.oversold && v.close <= lo+b.edge*width:
			return s(types.SignalBuy, "oversold at channel floor"), nil
		case v.rsi > b.overbound && v.close >= hi-b.edge*width:
			return s(types.SignalSell, "overbought at channel ceiling"), nil
		default:
			return s(types.SignalNone, "inside channel"), nil
		}
	}
}

// votingStrategy fires when at least threshold of {MACD cross, RSI side,
// breakout, TRIX flip} agree and price is on the same side of EMA50. One vote
// short of the threshold is HOLD.
func votingStrategy(id string, threshold int, annotations map[string]float64) Func {
	return func(f *indicator.Frame, _ string) (types.Signal, error) {
		v, ok := newView(f)
		if !ok || math.IsNaN(v.ema50) {
			return types.NoSignal(id, "warming up"), nil
		}

		up := count(v.macdCrossUp(voteLookback), v.rsi > 50, v.breakoutUp(), v.trixFlipUp(voteLookback))
		down := count(v.macdCrossDown(voteLookback), v.rsi < 50, v.breakoutDown(), v.trixFlipDown(voteLookback))

		s := func(t types.SignalType, reason string) types.Signal {
			out := emit(t, id, reason, v)
			out.Diagnostics["votes_up"] = float64(up)
			out.Diagnostics["votes_down"] = float64(down)

			for k, val := range annotations {
				out.Diagnostics[k] = val
			}

			return out
		}

		switch {
		case up >= threshold && up > down && v.close > v.ema50:
			return s(types.SignalBuy, "long votes reached threshold"), nil
		case down >= threshold && down > up && v.close < v.ema50:
			return s(types.SignalSell, "short votes reached threshold"), nil
		case up == threshold-1 || down == threshold-1:
			return s(types.SignalHold, "one vote short"), nil
		default:
			return s(types.SignalNone, "not enough votes"), nil
		}
	}
}

func count(conds ...bool) int {
	n := 0

	for _, c := range conds {
		if c {
			n++
		}
	}

	return n
}
