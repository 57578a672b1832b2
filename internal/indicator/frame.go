package indicator

import (
	"math"

	"github.com/rxtech-lab/argo-perp/internal/types"
)

// Frame is a window of bars plus derived indicator columns. Every column has
// one value per bar; warm-up positions are NaN.
type Frame struct {
	Symbol  string
	bars    []types.Bar
	closes  []float64
	highs   []float64
	lows    []float64
	columns map[types.IndicatorType][]float64
}

func NewFrame(symbol string, bars []types.Bar) *Frame {
	return &Frame{
		Symbol:  symbol,
		bars:    bars,
		closes:  types.Closes(bars),
		highs:   types.Highs(bars),
		lows:    types.Lows(bars),
		columns: make(map[types.IndicatorType][]float64),
	}
}

func (f *Frame) Len() int {
	return len(f.bars)
}

func (f *Frame) Bars() []types.Bar {
	return f.bars
}

func (f *Frame) Closes() []float64 {
	return f.closes
}

func (f *Frame) Highs() []float64 {
	return f.highs
}

func (f *Frame) Lows() []float64 {
	return f.lows
}

// LastBar returns the newest bar of the window.
func (f *Frame) LastBar() (types.Bar, bool) {
	if len(f.bars) == 0 {
		return types.Bar{}, false
	}

	return f.bars[len(f.bars)-1], true
}

// LastClose returns the newest close, or NaN on an empty frame.
func (f *Frame) LastClose() float64 {
	return Last(f.closes)
}

// Column returns a derived column.
func (f *Frame) Column(name types.IndicatorType) ([]float64, bool) {
	col, ok := f.columns[name]

	return col, ok
}

// Set stores a derived column. It must have one value per bar.
func (f *Frame) Set(name types.IndicatorType, values []float64) {
	f.columns[name] = values
}

// Has reports whether every named column is present.
func (f *Frame) Has(names ...types.IndicatorType) bool {
	for _, n := range names {
		if _, ok := f.columns[n]; !ok {
			return false
		}
	}

	return true
}

// Last returns the final value of a column; NaN when absent.
func (f *Frame) Last(name types.IndicatorType) float64 {
	return Last(f.columns[name])
}

// Value returns column name at index i; NaN when absent or out of range.
func (f *Frame) Value(name types.IndicatorType, i int) float64 {
	col := f.columns[name]
	if i < 0 || i >= len(col) {
		return math.NaN()
	}

	return col[i]
}
