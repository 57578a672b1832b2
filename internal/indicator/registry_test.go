package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

type RegistryTestSuite struct {
	suite.Suite
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func bars(n int) []types.Bar {
	out := make([]types.Bar, n)
	start := time.Unix(1_700_000_000, 0).UTC()

	for i := range out {
		c := 100 + math.Sin(float64(i)/10)*2
		out[i] = types.Bar{
			Symbol:      "SOL_USDC_PERP",
			IntervalSec: 1,
			Time:        start.Add(time.Duration(i) * time.Second),
			Open:        c,
			High:        c + 0.5,
			Low:         c - 0.5,
			Close:       c,
			Volume:      1,
		}
	}

	return out
}

func (suite *RegistryTestSuite) TestRegisterGetRemove() {
	registry := NewIndicatorRegistry()

	ema := NewEMA(types.IndicatorEMA20, 20)
	suite.NoError(registry.RegisterIndicator(ema))

	err := registry.RegisterIndicator(NewEMA(types.IndicatorEMA20, 21))
	suite.Equal(errors.ErrCodeIndicatorAlreadyExists, errors.GetCode(err))

	got, err := registry.GetIndicator(types.IndicatorEMA20)
	suite.NoError(err)
	suite.Equal(ema, got)

	suite.NoError(registry.RemoveIndicator(types.IndicatorEMA20))

	_, err = registry.GetIndicator(types.IndicatorEMA20)
	suite.Equal(errors.ErrCodeIndicatorNotFound, errors.GetCode(err))
	suite.Equal(errors.ErrCodeIndicatorNotFound, errors.GetCode(registry.RemoveIndicator(types.IndicatorEMA20)))
}

func (suite *RegistryTestSuite) TestDefaultRegistryListsSorted() {
	names := NewDefaultRegistry().ListIndicators()
	suite.Len(names, len(DefaultIndicators))

	for i := 1; i < len(names); i++ {
		suite.Less(string(names[i-1]), string(names[i]))
	}
}

func (suite *RegistryTestSuite) TestEnsureFillsEveryColumn() {
	frame := NewFrame("SOL_USDC_PERP", bars(300))
	suite.Require().NoError(NewDefaultRegistry().Ensure(frame, DefaultIndicators...))

	for _, col := range []types.IndicatorType{
		types.IndicatorEMA20, types.IndicatorEMA50, types.IndicatorEMA200,
		types.IndicatorRSI, types.IndicatorMACD, types.IndicatorMACDSignal, types.IndicatorMACDHist,
		types.IndicatorTRIX, types.IndicatorHigh20, types.IndicatorLow20,
	} {
		values, ok := frame.Column(col)
		suite.Require().True(ok, col)
		suite.Len(values, 300)
		suite.False(math.IsNaN(frame.Last(col)), col)
	}

	suite.GreaterOrEqual(frame.Last(types.IndicatorHigh20), frame.LastClose())
	suite.LessOrEqual(frame.Last(types.IndicatorLow20), frame.LastClose())
}

func (suite *RegistryTestSuite) TestEnsureShortWindowLeavesNaN() {
	frame := NewFrame("SOL_USDC_PERP", bars(60))
	suite.Require().NoError(NewDefaultRegistry().Ensure(frame, DefaultIndicators...))

	suite.True(math.IsNaN(frame.Last(types.IndicatorEMA200)))
	suite.False(math.IsNaN(frame.Last(types.IndicatorEMA50)))
	suite.False(math.IsNaN(frame.Last(types.IndicatorRSI)))
	suite.False(math.IsNaN(frame.Last(types.IndicatorMACDHist)))
}

func (suite *RegistryTestSuite) TestEnsureEmptyFrame() {
	frame := NewFrame("SOL_USDC_PERP", nil)
	suite.Require().NoError(NewDefaultRegistry().Ensure(frame, DefaultIndicators...))
	suite.True(math.IsNaN(frame.Last(types.IndicatorEMA20)))
	suite.True(math.IsNaN(frame.LastClose()))

	_, ok := frame.LastBar()
	suite.False(ok)
}

func (suite *RegistryTestSuite) TestEnsureUnknownIndicator() {
	frame := NewFrame("SOL_USDC_PERP", bars(10))
	err := NewIndicatorRegistry().Ensure(frame, types.IndicatorEMA20)
	suite.Equal(errors.ErrCodeIndicatorNotFound, errors.GetCode(err))
}

func (suite *RegistryTestSuite) TestEnsureKeepsExistingColumns() {
	frame := NewFrame("SOL_USDC_PERP", bars(30))
	frame.Set(types.IndicatorEMA20, make([]float64, 30))

	suite.Require().NoError(NewDefaultRegistry().Ensure(frame, types.IndicatorEMA20))
	suite.Equal(0.0, frame.Last(types.IndicatorEMA20))
	suite.True(math.IsNaN(frame.Value(types.IndicatorEMA20, 99)))
}
