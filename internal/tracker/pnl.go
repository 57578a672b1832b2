package tracker

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-perp/internal/types"
)

// pctPlaces is the precision every percentage is rounded to before it is
// compared against a threshold.
const pctPlaces = 9

var hundred = decimal.NewFromInt(100)

// PnLPct is the canonical signed PnL of a position in percent of entry:
// (mark − entry)/entry × 100 for longs and the mirror for shorts. The venue's
// own unrealized PnL is never used for decisions. Prices are taken at their
// shortest decimal form so 100 → 100.3 is exactly 0.3.
func PnLPct(side types.PositionSide, entry, mark float64) float64 {
	if entry <= 0 || !finite(entry) || !finite(mark) {
		return 0
	}

	e := decimal.NewFromFloat(entry)
	m := decimal.NewFromFloat(mark)

	diff := m.Sub(e)
	if side == types.PositionSideShort {
		diff = e.Sub(m)
	}

	return diff.Mul(hundred).Div(e).Round(pctPlaces).InexactFloat64()
}

// MarginPnLPct expresses a quote PnL as percent of the margin posted for a
// position: pnlUSD / (positionAmount / leverage) × 100.
func MarginPnLPct(pnlUSD, positionAmount, leverage float64) float64 {
	if positionAmount <= 0 || leverage <= 0 || !finite(pnlUSD) {
		return 0
	}

	margin := decimal.NewFromFloat(positionAmount).Div(decimal.NewFromFloat(leverage))

	return decimal.NewFromFloat(pnlUSD).Mul(hundred).Div(margin).Round(pctPlaces).InexactFloat64()
}

// roundPct snaps a percentage to pctPlaces so threshold arithmetic such as
// peak − trigger compares equal to the same value computed from prices.
func roundPct(v float64) float64 {
	if !finite(v) {
		return v
	}

	return decimal.NewFromFloat(v).Round(pctPlaces).InexactFloat64()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
