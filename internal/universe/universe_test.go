package universe

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

type fakeTickers struct {
	mu      sync.Mutex
	tickers []venue.Ticker
	err     error
	calls   int
}

func (f *fakeTickers) Tickers(context.Context) ([]venue.Ticker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	return f.tickers, f.err
}

type UniverseTestSuite struct {
	suite.Suite
}

func TestUniverseSuite(t *testing.T) {
	suite.Run(t, new(UniverseTestSuite))
}

func ticker(symbol, change, quoteVolume string) venue.Ticker {
	return venue.Ticker{Symbol: symbol, LastPrice: "1", PriceChangePercent: change, Volume: quoteVolume, QuoteVolume: quoteVolume}
}

func (suite *UniverseTestSuite) TestMergeScenario() {
	got := Merge([]string{"A", "B", "C"}, []string{"D"}, []string{"B"})
	suite.ElementsMatch([]string{"A", "C", "D"}, got)
}

func (suite *UniverseTestSuite) TestMergeCollapsesDuplicates() {
	got := Merge([]string{"A", "a ", "C", ""}, []string{"C", "D", "D"}, nil)
	suite.Equal([]string{"A", "C", "D"}, got)
}

func (suite *UniverseTestSuite) TestExcludeWinsOverInclude() {
	got := Merge(nil, []string{"SOL_USDC_PERP"}, []string{"sol_usdc_perp"})
	suite.Empty(got)
}

func (suite *UniverseTestSuite) TestRank() {
	tickers := []venue.Ticker{
		ticker("SOL_USDC_PERP", "-8", "5000000"),
		ticker("BTC_USDC_PERP", "2", "10000000"),
		ticker("ETH_USDC_PERP", "3", "8000000"),
		ticker("PEPE_USDC_PERP", "40", "900000"),
		ticker("SOL_USDC", "20", "90000000"),
		ticker("BAD_USDC_PERP", "x", "9000000"),
	}

	cands := Rank(tickers, 1_000_000, "_PERP")
	suite.Equal([]string{"SOL_USDC_PERP", "ETH_USDC_PERP", "BTC_USDC_PERP"}, Top(cands, 0))
	suite.InDelta(4.0, cands[0].Score, 1e-9)
	suite.InDelta(2.4, cands[1].Score, 1e-9)
	suite.InDelta(2.0, cands[2].Score, 1e-9)

	suite.Equal([]string{"SOL_USDC_PERP", "ETH_USDC_PERP"}, Top(cands, 2))
}

func (suite *UniverseTestSuite) TestRankFallsBackToBaseVolume() {
	cands := Rank([]venue.Ticker{
		{Symbol: "SOL_USDC_PERP", LastPrice: "100", PriceChangePercent: "1", Volume: "20000"},
	}, 1_000_000, "")
	suite.Require().Len(cands, 1)
	suite.InDelta(2_000_000, cands[0].QuoteVolume, 1e-6)
}

func (suite *UniverseTestSuite) TestStaticManager() {
	m := NewStaticManager(Policy{Static: []string{"SOL_USDC_PERP", "BTC_USDC_PERP"}, Exclude: []string{"BTC_USDC_PERP"}}, logger.NewNop())
	suite.False(m.Auto())
	suite.Equal([]string{"SOL_USDC_PERP"}, m.Symbols())

	snap, err := m.Refresh(context.Background())
	suite.NoError(err)
	suite.True(snap.Contains("SOL_USDC_PERP"))
	suite.NoError(m.Run(context.Background()))
}

func (suite *UniverseTestSuite) TestAutoRefreshMergesPolicy() {
	source := &fakeTickers{tickers: []venue.Ticker{
		ticker("A_PERP", "5", "3000000"),
		ticker("B_PERP", "4", "3000000"),
		ticker("C_PERP", "3", "3000000"),
		ticker("E_PERP", "1", "3000000"),
	}}

	m := NewAutoManager(source, Policy{
		Include:   []string{"D_PERP"},
		Exclude:   []string{"B_PERP"},
		TopN:      3,
		MinVolume: 1_000_000,
		Suffix:    "_PERP",
	}, 0, logger.NewNop())

	snap, err := m.Refresh(context.Background())
	suite.Require().NoError(err)
	suite.ElementsMatch([]string{"A_PERP", "C_PERP", "D_PERP"}, snap.Symbols)
	suite.Same(snap, m.Snapshot())
}

func (suite *UniverseTestSuite) TestRefreshFailureKeepsSnapshot() {
	source := &fakeTickers{tickers: []venue.Ticker{ticker("A_PERP", "5", "3000000")}}
	m := NewAutoManager(source, Policy{MinVolume: 1}, 0, logger.NewNop())

	first, err := m.Refresh(context.Background())
	suite.Require().NoError(err)

	source.err = stderrors.New("connection reset")

	snap, err := m.Refresh(context.Background())
	suite.Equal(errors.ErrCodeUniverseFetchFailed, errors.GetCode(err))
	suite.Same(first, snap)
	suite.Equal([]string{"A_PERP"}, m.Symbols())
}

func (suite *UniverseTestSuite) TestSymbolsIsACopy() {
	m := NewStaticManager(Policy{Static: []string{"A", "B"}}, logger.NewNop())
	syms := m.Symbols()
	syms[0] = "Z"
	suite.Equal([]string{"A", "B"}, m.Symbols())
}
