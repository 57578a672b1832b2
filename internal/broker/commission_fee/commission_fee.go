package commission_fee

// CommissionFee prices one fill.
type CommissionFee interface {
	// Calculate returns the fee in quote currency for a fill of the given notional
	Calculate(notional float64) float64
}

type Model string

const (
	ModelTaker Model = "taker"
	ModelZero  Model = "zero"
)

var AllModels = []any{
	ModelTaker,
	ModelZero,
}

// GetCommissionFeeHandler returns the fee model for paper fills. A taker
// model with a non-positive rate is free.
func GetCommissionFeeHandler(model Model, takerBps float64) CommissionFee {
	switch model {
	case ModelTaker:
		if takerBps <= 0 {
			return NewZeroCommissionFee()
		}

		return NewTakerCommissionFee(takerBps)
	default:
		return NewZeroCommissionFee()
	}
}
