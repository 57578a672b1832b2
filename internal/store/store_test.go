package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// StoreContractTestSuite runs the same contract against every backend.
type StoreContractTestSuite struct {
	suite.Suite
	newStore func() Store
	store    Store
	ctx      context.Context
}

func TestDuckDBStoreSuite(t *testing.T) {
	suite.Run(t, &StoreContractTestSuite{newStore: func() Store {
		s, err := NewDuckDBStore(":memory:", 4, logger.NewNop())
		if err != nil {
			t.Fatalf("open duckdb: %v", err)
		}

		return s
	}})
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreContractTestSuite{newStore: func() Store { return NewMemoryStore() }})
}

func (suite *StoreContractTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.store = suite.newStore()
}

func (suite *StoreContractTestSuite) TearDownTest() {
	suite.NoError(suite.store.Close())
}

func bar(symbol string, ts int64, price float64) types.Bar {
	return types.Bar{
		Symbol:      symbol,
		IntervalSec: 1,
		Time:        time.Unix(ts, 0).UTC(),
		Open:        price,
		High:        price + 1,
		Low:         price - 1,
		Close:       price,
		Volume:      2,
	}
}

func (suite *StoreContractTestSuite) TestEnsurePartitionIsIdempotentAcrossCallers() {
	var wg sync.WaitGroup

	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			errs <- suite.store.EnsurePartition(suite.ctx, "SOL_USDC_PERP")
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		suite.NoError(err)
	}

	suite.NoError(suite.store.EnsurePartition(suite.ctx, "SOL_USDC_PERP"))

	symbols, err := suite.store.ListPartitions(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal([]string{"SOL_USDC_PERP"}, symbols)
}

func (suite *StoreContractTestSuite) TestUpsertTwiceKeepsFirstRow() {
	suite.Require().NoError(suite.store.EnsurePartition(suite.ctx, "SOL_USDC_PERP"))

	first := bar("SOL_USDC_PERP", 1_700_000_000, 100)
	second := first
	second.Close = 100.5

	suite.NoError(suite.store.UpsertBar(suite.ctx, first))
	suite.NoError(suite.store.UpsertBar(suite.ctx, first))
	suite.NoError(suite.store.UpsertBar(suite.ctx, second))

	bars, err := suite.store.ReadWindow(suite.ctx, "SOL_USDC_PERP", time.Unix(1_699_999_000, 0), time.Unix(1_700_001_000, 0))
	suite.Require().NoError(err)
	suite.Require().Len(bars, 1)
	suite.Equal(100.0, bars[0].Close)
	suite.Equal(first.Time, bars[0].Time)
	suite.Equal(time.UTC, bars[0].Time.Location())
}

func (suite *StoreContractTestSuite) TestReadWindowOrderedAndBounded() {
	suite.Require().NoError(suite.store.EnsurePartition(suite.ctx, "BTC_USDC_PERP"))

	for _, ts := range []int64{105, 101, 103, 102, 104, 100} {
		suite.Require().NoError(suite.store.UpsertBar(suite.ctx, bar("BTC_USDC_PERP", 1_700_000_000+ts, float64(ts))))
	}

	bars, err := suite.store.ReadWindow(suite.ctx, "BTC_USDC_PERP", time.Unix(1_700_000_101, 0), time.Unix(1_700_000_104, 0))
	suite.Require().NoError(err)
	suite.Require().Len(bars, 4)

	for i, b := range bars {
		suite.Equal(int64(1_700_000_101+i), b.Time.Unix())
		suite.Equal("BTC_USDC_PERP", b.Symbol)
		suite.Equal(1, b.IntervalSec)
	}
}

func (suite *StoreContractTestSuite) TestMissingPartitionIsDistinguishable() {
	_, err := suite.store.ReadWindow(suite.ctx, "NOPE_USDC_PERP", time.Unix(0, 0), time.Now())
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodePartitionMissing))

	_, err = suite.store.LastBucket(suite.ctx, "NOPE_USDC_PERP")
	suite.True(errors.HasCode(err, errors.ErrCodePartitionMissing))
}

func (suite *StoreContractTestSuite) TestLastBucket() {
	suite.Require().NoError(suite.store.EnsurePartition(suite.ctx, "ETH_USDC_PERP"))

	last, err := suite.store.LastBucket(suite.ctx, "ETH_USDC_PERP")
	suite.Require().NoError(err)
	suite.True(last.IsNone())

	suite.Require().NoError(suite.store.UpsertBar(suite.ctx, bar("ETH_USDC_PERP", 1_700_000_010, 10)))
	suite.Require().NoError(suite.store.UpsertBar(suite.ctx, bar("ETH_USDC_PERP", 1_700_000_020, 10)))

	last, err = suite.store.LastBucket(suite.ctx, "ETH_USDC_PERP")
	suite.Require().NoError(err)
	suite.True(last.IsSome())
	suite.Equal(int64(1_700_000_020), last.Unwrap().Unix())
}

func (suite *StoreContractTestSuite) TestPurgeOlderThan() {
	suite.Require().NoError(suite.store.EnsurePartition(suite.ctx, "SOL_USDC_PERP"))

	for ts := int64(0); ts < 10; ts++ {
		suite.Require().NoError(suite.store.UpsertBar(suite.ctx, bar("SOL_USDC_PERP", 1_700_000_000+ts, 5)))
	}

	n, err := suite.store.PurgeOlderThan(suite.ctx, "SOL_USDC_PERP", time.Unix(1_700_000_004, 0))
	suite.Require().NoError(err)
	suite.Equal(int64(4), n)

	bars, err := suite.store.ReadWindow(suite.ctx, "SOL_USDC_PERP", time.Unix(1_700_000_000, 0), time.Unix(1_700_000_100, 0))
	suite.Require().NoError(err)
	suite.Len(bars, 6)
	suite.Equal(int64(1_700_000_004), bars[0].Time.Unix())
}

func (suite *StoreContractTestSuite) TestJanitorPurgesEveryPartition() {
	now := time.Unix(1_700_000_000, 0).UTC()

	for _, sym := range []string{"A_USDC_PERP", "B_USDC_PERP"} {
		suite.Require().NoError(suite.store.EnsurePartition(suite.ctx, sym))
		suite.Require().NoError(suite.store.UpsertBar(suite.ctx, bar(sym, now.Add(-91*24*time.Hour).Unix(), 1)))
		suite.Require().NoError(suite.store.UpsertBar(suite.ctx, bar(sym, now.Add(-time.Hour).Unix(), 1)))
	}

	j := NewJanitor(suite.store, 90, time.Hour, logger.NewNop())
	j.now = func() time.Time { return now }

	n, err := j.RunOnce(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(int64(2), n)
}
