package commission_fee

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type CommissionFeeTestSuite struct {
	suite.Suite
}

func TestCommissionFeeSuite(t *testing.T) {
	suite.Run(t, new(CommissionFeeTestSuite))
}

func (suite *CommissionFeeTestSuite) TestZeroCommissionFee() {
	fee := NewZeroCommissionFee()
	suite.NotNil(fee)

	tests := []struct {
		name     string
		notional float64
		expected float64
	}{
		{"zero notional", 0, 0},
		{"small notional", 10, 0},
		{"large notional", 10000, 0},
		{"negative notional", -100, 0},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, fee.Calculate(tc.notional))
		})
	}
}

func (suite *CommissionFeeTestSuite) TestTakerCommissionFee() {
	fee := NewTakerCommissionFee(5)

	tests := []struct {
		name     string
		notional float64
		expected float64
	}{
		{"zero notional", 0, 0},
		{"one hundred", 100, 0.05},
		{"ten thousand", 10000, 5},
		{"short side notional", -2000, 1},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.InDelta(tc.expected, fee.Calculate(tc.notional), 1e-12)
		})
	}
}

func (suite *CommissionFeeTestSuite) TestGetCommissionFeeHandler() {
	suite.IsType(&TakerCommissionFee{}, GetCommissionFeeHandler(ModelTaker, 4))
	suite.IsType(&ZeroCommissionFee{}, GetCommissionFeeHandler(ModelTaker, 0))
	suite.IsType(&ZeroCommissionFee{}, GetCommissionFeeHandler(ModelZero, 4))
	suite.IsType(&ZeroCommissionFee{}, GetCommissionFeeHandler(Model("unknown"), 4))
	suite.Len(AllModels, 2)
}
