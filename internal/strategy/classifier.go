package strategy

import (
	"math"

	"github.com/rxtech-lab/argo-perp/internal/indicator"
	"github.com/rxtech-lab/argo-perp/internal/types"
)

// Condition is the market regime the dispatchers switch on.
type Condition string

const (
	ConditionBull  Condition = "bull"
	ConditionBear  Condition = "bear"
	ConditionRange Condition = "range"
)

// Trending reports bull or bear.
func (c Condition) Trending() bool {
	return c == ConditionBull || c == ConditionBear
}

// Classifier thresholds.
const (
	bullRSI    = 55.0
	bearRSI    = 45.0
	neutralRSI = 50.0
)

// Classify returns bull when EMA20 > EMA50 > EMA200 and RSI > 55, bear for the
// mirror with RSI < 45, and range otherwise or when an average is missing.
func Classify(frame *indicator.Frame) Condition {
	e20 := frame.Last(types.IndicatorEMA20)
	e50 := frame.Last(types.IndicatorEMA50)
	e200 := frame.Last(types.IndicatorEMA200)

	if math.IsNaN(e20) || math.IsNaN(e50) || math.IsNaN(e200) {
		return ConditionRange
	}

	rsi := RSIOrNeutral(frame)

	switch {
	case e20 > e50 && e50 > e200 && rsi > bullRSI:
		return ConditionBull
	case e20 < e50 && e50 < e200 && rsi < bearRSI:
		return ConditionBear
	default:
		return ConditionRange
	}
}

// RSIOrNeutral returns the last RSI, or 50 when it is not yet defined.
func RSIOrNeutral(frame *indicator.Frame) float64 {
	rsi := frame.Last(types.IndicatorRSI)
	if math.IsNaN(rsi) {
		return neutralRSI
	}

	return rsi
}
