package broker

import (
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// Adjust rounds value toward zero onto the step grid: ⌊value/step⌋ × step.
// A non-positive step leaves value unchanged.
func Adjust(value, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return value
	}

	return value.Div(step).Truncate(0).Mul(step)
}

// MarketFilters are the order filters of one market.
type MarketFilters struct {
	Symbol   string
	TickSize decimal.Decimal
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}

// FiltersFromMarket parses the venue representation.
func FiltersFromMarket(m venue.Market) (MarketFilters, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		if v == "" {
			return decimal.Zero, nil
		}

		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "market %s: bad %s %q", m.Symbol, name, v)
		}

		return d, nil
	}

	tick, err := parse("tickSize", m.Filters.Price.TickSize)
	if err != nil {
		return MarketFilters{}, err
	}

	step, err := parse("stepSize", m.Filters.Quantity.StepSize)
	if err != nil {
		return MarketFilters{}, err
	}

	minQty, err := parse("minQty", m.Filters.Quantity.Min())
	if err != nil {
		return MarketFilters{}, err
	}

	return MarketFilters{Symbol: m.Symbol, TickSize: tick, StepSize: step, MinQty: minQty}, nil
}

// Quantity converts a quote amount into a base quantity on the step grid and
// checks the minimum.
func (f MarketFilters) Quantity(quote, price decimal.Decimal) (decimal.Decimal, error) {
	qty := Adjust(quote.Div(price), f.StepSize)
	if !qty.IsPositive() || qty.LessThan(f.MinQty) {
		return decimal.Zero, errors.Newf(errors.ErrCodeInsufficientSize, "%s: quantity %s below minimum %s (quote %s at %s)", f.Symbol, qty, f.MinQty, quote, price)
	}

	return qty, nil
}

// Price validates a ticker price against the tick grid.
func (f MarketFilters) Price(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrCodeBadPrice, "%s: unusable ticker price %q", f.Symbol, raw)
	}

	adjusted := Adjust(price, f.TickSize)
	if !adjusted.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrCodeBadPrice, "%s: price %s below tick %s", f.Symbol, price, f.TickSize)
	}

	return adjusted, nil
}
