package commission_fee

import "math"

// TakerCommissionFee charges a flat rate in basis points of the notional, the
// way perp venues bill market orders.
type TakerCommissionFee struct {
	bps float64
}

func NewTakerCommissionFee(bps float64) CommissionFee {
	return &TakerCommissionFee{bps: bps}
}

func (c *TakerCommissionFee) Calculate(notional float64) float64 {
	return math.Abs(notional) * c.bps / 10_000
}
