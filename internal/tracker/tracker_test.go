package tracker

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
)

type TrackerTestSuite struct {
	suite.Suite
	tracker *Tracker
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerTestSuite))
}

func (suite *TrackerTestSuite) SetupTest() {
	suite.tracker = New(ThresholdsFromConfig(config.Default().Trading), logger.NewNop())
}

func (suite *TrackerTestSuite) mark(symbol string, mark float64) Decision {
	s, err := suite.tracker.State(symbol).Take()
	suite.Require().NoError(err)

	d, ok := suite.tracker.Update(symbol, PnLPct(s.Side, s.EntryPrice, mark))
	suite.Require().True(ok)

	return d
}

func (suite *TrackerTestSuite) TestTrailingStopArming() {
	suite.tracker.Open("SOL_USDC_PERP", types.PositionSideLong, 100, time.Now())
	suite.Equal(PhaseOpenUnarmed, suite.tracker.Phase("SOL_USDC_PERP"))

	for _, m := range []float64{100.1, 100.2} {
		d := suite.mark("SOL_USDC_PERP", m)
		suite.False(d.Close)
		suite.Equal(PhaseOpenUnarmed, d.Phase)
		suite.True(d.TrailingStop.IsNone())
	}

	d := suite.mark("SOL_USDC_PERP", 100.4)
	suite.True(d.JustArmed)
	suite.Equal(PhaseOpenArmed, d.Phase)
	suite.InDelta(0.40, d.PeakPnLPct, 1e-9)
	suite.InDelta(-0.10, d.TrailingStop.Unwrap(), 1e-9)
	suite.False(d.Close)

	d = suite.mark("SOL_USDC_PERP", 100.6)
	suite.False(d.JustArmed)
	suite.InDelta(0.60, d.PeakPnLPct, 1e-9)
	suite.InDelta(0.10, d.TrailingStop.Unwrap(), 1e-9)
	suite.False(d.Close)

	// pnl 0.00 is at or below the 0.10 trailing stop
	d = suite.mark("SOL_USDC_PERP", 100.0)
	suite.True(d.Close)
	suite.Equal("trailing stop", d.Reason)
	suite.InDelta(0.60, d.PeakPnLPct, 1e-9)
	suite.InDelta(0, d.PnLPct, 1e-9)
}

func (suite *TrackerTestSuite) TestTrailingStopBelowZero() {
	suite.tracker.Open("SOL_USDC_PERP", types.PositionSideLong, 100, time.Now())

	d := suite.mark("SOL_USDC_PERP", 100.35)
	suite.True(d.JustArmed)
	suite.InDelta(-0.15, d.TrailingStop.Unwrap(), 1e-9)

	d = suite.mark("SOL_USDC_PERP", 99.9)
	suite.False(d.Close, "-0.10 is above the -0.15 trailing stop")

	d = suite.mark("SOL_USDC_PERP", 99.85)
	suite.True(d.Close)
	suite.Equal("trailing stop", d.Reason)
	suite.InDelta(-0.15, d.PnLPct, 1e-9)
}

func (suite *TrackerTestSuite) TestFixedStopBeforeArming() {
	suite.tracker.Open("ETH_USDC_PERP", types.PositionSideLong, 100, time.Now())

	d := suite.mark("ETH_USDC_PERP", 98.0)
	suite.True(d.Close)
	suite.Equal("fixed stop", d.Reason)
	suite.Equal(PhaseOpenUnarmed, d.Phase)
}

func (suite *TrackerTestSuite) TestBoundaries() {
	suite.tracker.Open("A", types.PositionSideLong, 100, time.Now())

	d, _ := suite.tracker.Update("A", -1.99)
	suite.False(d.Close)

	d, _ = suite.tracker.Update("A", -2.0)
	suite.True(d.Close, "pnl equal to the fixed stop closes")

	suite.tracker.Open("B", types.PositionSideShort, 100, time.Now())

	d, _ = suite.tracker.Update("B", 0.29)
	suite.Equal(PhaseOpenUnarmed, d.Phase)

	d, _ = suite.tracker.Update("B", 0.3)
	suite.Equal(PhaseOpenArmed, d.Phase, "peak equal to the threshold arms")
	suite.InDelta(-0.2, d.TrailingStop.Unwrap(), 1e-12)

	// an armed position ignores the fixed stop and uses the trailing stop
	d, _ = suite.tracker.Update("B", -0.2)
	suite.True(d.Close)
}

func (suite *TrackerTestSuite) TestBoundariesFromPrices() {
	// 100 -> 100.3 is exactly the 0.3 arming threshold
	suite.tracker.Open("SOL_USDC_PERP", types.PositionSideLong, 100, time.Now())

	d := suite.mark("SOL_USDC_PERP", 100.3)
	suite.Equal(PhaseOpenArmed, d.Phase)
	suite.True(d.JustArmed)
	suite.Equal(0.3, d.PeakPnLPct)
	suite.Equal(-0.2, d.TrailingStop.Unwrap())

	// 0.7 -> 0.686 is exactly the 2% fixed stop
	suite.tracker.Open("DOGE_USDC_PERP", types.PositionSideLong, 0.7, time.Now())

	d = suite.mark("DOGE_USDC_PERP", 0.686)
	suite.True(d.Close)
	suite.Equal("fixed stop", d.Reason)
	suite.Equal(-2.0, d.PnLPct)

	// shorts mirror: 50 -> 51 is -2%
	suite.tracker.Open("ETH_USDC_PERP", types.PositionSideShort, 50, time.Now())

	d = suite.mark("ETH_USDC_PERP", 51)
	suite.True(d.Close)
	suite.Equal("fixed stop", d.Reason)

	// armed at peak 0.6, a pnl equal to the 0.1 trailing stop closes
	suite.tracker.Open("BTC_USDC_PERP", types.PositionSideLong, 0.1, time.Now())

	d = suite.mark("BTC_USDC_PERP", 0.1006)
	suite.Equal(0.6, d.PeakPnLPct)
	suite.Equal(0.1, d.TrailingStop.Unwrap())
	suite.False(d.Close)

	d = suite.mark("BTC_USDC_PERP", 0.1001)
	suite.True(d.Close)
	suite.Equal("trailing stop", d.Reason)
}

func (suite *TrackerTestSuite) TestPeakIsMonotonic() {
	suite.tracker.Open("SOL_USDC_PERP", types.PositionSideShort, 100, time.Now())

	rng := rand.New(rand.NewSource(42))
	peak := 0.0
	stop := -1e9

	for i := 0; i < 500; i++ {
		d, ok := suite.tracker.Update("SOL_USDC_PERP", rng.Float64()*3-1.5)
		suite.Require().True(ok)
		suite.GreaterOrEqual(d.PeakPnLPct, peak)
		peak = d.PeakPnLPct

		if d.TrailingStop.IsSome() {
			suite.GreaterOrEqual(d.TrailingStop.Unwrap(), stop)
			stop = d.TrailingStop.Unwrap()
		}
	}
}

func (suite *TrackerTestSuite) TestAdoptStartsPeakAtCurrentPnL() {
	pos := types.Position{Symbol: "BTC_USDC_PERP", Side: types.PositionSideLong, EntryPrice: 60000}

	s := suite.tracker.Adopt(pos, -0.5)
	suite.Equal(-0.5, s.PeakPnLPct)
	suite.Equal(PhaseOpenUnarmed, s.Phase())

	d, _ := suite.tracker.Update("BTC_USDC_PERP", -0.7)
	suite.Equal(-0.5, d.PeakPnLPct)

	// adopting a tracked symbol keeps its state
	again := suite.tracker.Adopt(pos, 5)
	suite.Equal(-0.5, again.PeakPnLPct)
	suite.Equal(1, again.Updates)
}

func (suite *TrackerTestSuite) TestDiscardAndUntracked() {
	suite.tracker.Open("B", types.PositionSideLong, 1, time.Now())
	suite.tracker.Open("A", types.PositionSideLong, 1, time.Now())
	suite.Equal([]string{"A", "B"}, suite.tracker.Symbols())

	suite.tracker.Discard("A")
	suite.Equal(PhaseIdle, suite.tracker.Phase("A"))
	suite.True(suite.tracker.State("A").IsNone())

	d, ok := suite.tracker.Update("A", -50)
	suite.False(ok)
	suite.False(d.Close)
	suite.Equal(PhaseIdle, d.Phase)
}

func (suite *TrackerTestSuite) TestPnLConventions() {
	suite.InDelta(1.0, PnLPct(types.PositionSideLong, 100, 101), 1e-12)
	suite.InDelta(-1.0, PnLPct(types.PositionSideShort, 100, 101), 1e-12)
	suite.InDelta(2.0, PnLPct(types.PositionSideShort, 100, 98), 1e-12)
	suite.Equal(0.0, PnLPct(types.PositionSideLong, 0, 101))

	suite.InDelta(5.0, MarginPnLPct(1, 20, 1), 1e-12)
	suite.InDelta(50.0, MarginPnLPct(1, 20, 10), 1e-12)
	suite.Equal(0.0, MarginPnLPct(1, 0, 10))
}
