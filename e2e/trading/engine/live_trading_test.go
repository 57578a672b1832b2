package engine_test

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-perp/internal/aggregator"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine"
)

func (s *LiveTradingE2ETestSuite) outcome(report engine.IterationReport, symbol string) engine.Outcome {
	for _, o := range report.Outcomes {
		if o.Symbol == symbol {
			return o
		}
	}

	s.FailNow("no outcome", "symbol %s", symbol)

	return engine.Outcome{}
}

// TestOpenThenFixedStop opens a long at 100, drops the mark to 97 and expects
// a reduce-only close on the next iteration.
func (s *LiveTradingE2ETestSuite) TestOpenThenFixedStop() {
	ctx := context.Background()

	report, err := s.engine.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(engine.ActionOpened, s.outcome(report, sol).Action)
	s.Equal("0.2", s.server.NetQuantity(sol).String())

	orders := s.server.Orders()
	s.Require().Len(orders, 1)
	s.Equal("Bid", orders[0].Side)
	s.False(orders[0].ReduceOnly)

	s.server.SetPrice(sol, "97")

	report, err = s.engine.RunOnce(ctx)
	s.Require().NoError(err)

	closed := s.outcome(report, sol)
	s.Equal(engine.ActionClosed, closed.Action)
	s.Equal("fixed stop", closed.Note)
	s.InDelta(-3, closed.PnLPct, 1e-9)

	s.True(s.server.NetQuantity(sol).IsZero())

	orders = s.server.Orders()
	s.Require().Len(orders, 2)
	s.Equal("Ask", orders[1].Side)
	s.True(orders[1].ReduceOnly)
	s.Equal("0.2", orders[1].Quantity)

	st := s.engine.Stats().GetCumulativeStats()
	s.Equal(1, st.Opens)
	s.Equal(1, st.Closes)
	s.Equal(1, st.Losses)
}

// TestRejectedOpenIsRetried checks that a venue rejection leaves nothing open
// and the next iteration tries again.
func (s *LiveTradingE2ETestSuite) TestRejectedOpenIsRetried() {
	ctx := context.Background()

	s.server.RejectNextOrder("insufficient margin")

	report, err := s.engine.RunOnce(ctx)
	s.Require().NoError(err)
	s.Error(s.outcome(report, sol).Err)
	s.True(s.server.NetQuantity(sol).IsZero())

	report, err = s.engine.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(engine.ActionOpened, s.outcome(report, sol).Action)
	s.Equal(1, s.engine.Stats().GetCumulativeStats().ErrorsByKind["BrokerRejected"])
}

// TestRunWithStreamingBars runs the loop and the trade aggregator together.
// Trades published on the venue stream land in the store the loop reads.
func (s *LiveTradingE2ETestSuite) TestRunWithStreamingBars() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	aggregators := aggregator.NewManager(s.store, aggregator.SupervisorConfig{
		URL:              s.server.WebSocketURL(),
		IntervalSeconds:  1,
		ReconnectBackoff: 50 * time.Millisecond,
		IdleTimeout:      time.Second,
	}, logger.NewNop())

	var (
		mu     sync.Mutex
		placed []engine.Outcome
	)

	onOrder := engine.OnOrderPlacedCallback(func(o engine.Outcome) {
		mu.Lock()
		defer mu.Unlock()

		placed = append(placed, o)
	})

	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		_ = aggregators.Run(ctx, staticSymbols{sol}, time.Hour)
	}()

	go func() {
		defer wg.Done()
		_ = s.engine.Run(ctx, engine.LiveTradingCallbacks{OnOrderPlaced: &onOrder})
	}()

	s.Require().True(s.server.WaitForSubscribers("trade."+sol, 1, 2*time.Second))

	before, err := s.store.LastBucket(ctx, sol)
	s.Require().NoError(err)

	next := before.Unwrap().Add(2 * time.Second)
	s.server.PublishTrade(sol, "100.5", "1", next.UnixMilli())
	s.server.PublishTrade(sol, "100.6", "1", next.Add(time.Second).UnixMilli())

	s.Eventually(func() bool {
		last, err := s.store.LastBucket(ctx, sol)

		return err == nil && last.Unwrap().Equal(next)
	}, 3*time.Second, 20*time.Millisecond)

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(placed) > 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	s.Equal(engine.ActionOpened, placed[0].Action)
	s.Equal(sol, placed[0].Symbol)
}

type staticSymbols []string

func (s staticSymbols) Symbols() []string { return s }
