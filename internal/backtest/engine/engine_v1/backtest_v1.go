package engine_v1

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-perp/internal/backtest/engine"
	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/broker/commission_fee"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/internal/strategy"
	"github.com/rxtech-lab/argo-perp/internal/tracker"
	live "github.com/rxtech-lab/argo-perp/internal/trading/engine/engine_v1"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine/engine_v1/stats"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/internal/universe"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

const settleReason = "end of replay"

// BacktestEngineV1 replays stored bars through the live loop on a replay
// clock. Bars are revealed to an in-memory store as the clock passes them and
// orders fill on a paper book at the last revealed close.
type BacktestEngineV1 struct {
	config  engine.BacktestConfig
	source  store.Store
	symbols []string
	log     *logger.Logger
	loop    *live.LiveTradingEngineV1

	initialized bool
}

func NewBacktestEngineV1(log *logger.Logger) *BacktestEngineV1 {
	return &BacktestEngineV1{
		log:  log.Named("backtest"),
		loop: live.NewLiveTradingEngineV1(log),
	}
}

// Strategies returns the catalog the replayed loop uses.
func (b *BacktestEngineV1) Strategies() *strategy.Registry {
	return b.loop.Strategies()
}

// Initialize implements engine.Engine.
func (b *BacktestEngineV1) Initialize(config engine.BacktestConfig) error {
	if config.Duration <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "backtest duration must be positive, got %s", config.Duration)
	}

	if config.Step <= 0 {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "backtest step must be positive, got %s", config.Step)
	}

	if err := b.loop.Initialize(config.Live); err != nil {
		return err
	}

	b.config = config
	b.initialized = true

	b.log.Debug("Backtest engine initialized",
		zap.String("strategy", config.Live.StrategyID),
		zap.Duration("duration", config.Duration),
		zap.Duration("step", config.Step),
	)

	return nil
}

// SetDataSource implements engine.Engine.
func (b *BacktestEngineV1) SetDataSource(source store.Store) error {
	b.source = source

	return nil
}

// SetSymbols implements engine.Engine.
func (b *BacktestEngineV1) SetSymbols(symbols []string) error {
	b.symbols = universe.Merge(symbols, nil, nil)

	return nil
}

func (b *BacktestEngineV1) preRunCheck() error {
	if !b.initialized {
		return errors.New(errors.ErrCodeInvalidConfiguration, "backtest engine not initialized - call Initialize() first")
	}

	if b.source == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "no data source set")
	}

	if len(b.symbols) == 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "no symbols to replay")
	}

	return nil
}

// Run implements engine.Engine.
func (b *BacktestEngineV1) Run(ctx context.Context, callbacks engine.LifecycleCallbacks) (result engine.Result, runErr error) {
	defer func() {
		if callbacks.OnBacktestEnd != nil {
			(*callbacks.OnBacktestEnd)(runErr)
		}
	}()

	if err := b.preRunCheck(); err != nil {
		return result, err
	}

	symbols, skipped, to, err := b.replayRange(ctx)
	if err != nil {
		return result, err
	}

	from := to.Add(-b.config.Duration)
	window := time.Duration(b.config.Live.WindowSeconds) * time.Second

	tape, err := b.loadTape(ctx, symbols, from.Add(-window), to)
	if err != nil {
		return result, err
	}

	totalSteps := int(to.Sub(from)/b.config.Step) + 1
	result = engine.Result{
		RunID:   uuid.NewString(),
		From:    from,
		To:      to,
		Steps:   totalSteps,
		Symbols: symbols,
		Skipped: skipped,
	}

	if callbacks.OnBacktestStart != nil {
		if err := (*callbacks.OnBacktestStart)(symbols, from, to, totalSteps); err != nil {
			return result, err
		}
	}

	now := from
	clock := func() time.Time { return now }

	replay := store.NewMemoryStore()
	paper := broker.NewDryRunBroker(broker.PriceFunc(tape.closeAt(clock)), b.log,
		broker.WithClock(clock),
		broker.WithCommission(commission_fee.GetCommissionFeeHandler(commission_fee.Model(b.config.FeeModel), b.config.TakerFeeBps)),
	)

	b.loop.SetClock(clock)
	b.loop.Stats().Initialize(result.RunID, from, b.config.Live.StrategyID)

	for _, set := range []error{
		b.loop.SetStore(replay),
		b.loop.SetBroker(paper),
		b.loop.SetUniverse(universe.NewStaticManager(universe.Policy{Static: symbols}, b.log)),
	} {
		if set != nil {
			return result, set
		}
	}

	b.log.Info("Backtest started",
		zap.String("run_id", result.RunID),
		zap.Strings("symbols", symbols),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("steps", totalSteps),
	)

	for step := 0; step < totalSteps; step++ {
		if ctx.Err() != nil {
			runErr = ctx.Err()

			break
		}

		now = from.Add(time.Duration(step) * b.config.Step)
		tape.reveal(replay, now)

		if _, err := b.loop.RunOnce(ctx); err != nil {
			if errors.IsFatal(err) {
				return result, err
			}

			b.log.Warn("Replay step failed", zap.Time("at", now), zap.String("kind", errors.KindOf(err)), zap.Error(err))
		}

		if callbacks.OnProcessData != nil {
			if err := (*callbacks.OnProcessData)(step+1, totalSteps); err != nil {
				return result, err
			}
		}
	}

	b.settle(paper, now)

	result.Stats = b.loop.Stats().GetCumulativeStats()
	result.Fills = paper.Fills()

	b.log.Info("Backtest complete",
		zap.String("run_id", result.RunID),
		zap.Int("opens", result.Stats.Opens),
		zap.Int("closes", result.Stats.Closes),
		zap.Float64("total_pnl_pct", result.Stats.TotalPnLPct),
		zap.Float64("win_rate", result.Stats.WinRate),
	)

	if b.config.ReportPath != "" {
		if err := WriteResult(b.config.ReportPath, result); err != nil {
			return result, err
		}
	}

	return result, runErr
}

// replayRange keeps the symbols that have stored bars and returns the newest
// bucket among them.
func (b *BacktestEngineV1) replayRange(ctx context.Context) ([]string, []string, time.Time, error) {
	var (
		symbols []string
		skipped []string
		to      time.Time
	)

	for _, sym := range b.symbols {
		last, err := b.source.LastBucket(ctx, sym)
		if err != nil && !errors.HasCode(err, errors.ErrCodePartitionMissing) {
			return nil, nil, to, err
		}

		ts, takeErr := last.Take()
		if err != nil || takeErr != nil {
			b.log.Warn("No stored bars, symbol skipped", zap.String("symbol", sym))

			skipped = append(skipped, sym)

			continue
		}

		symbols = append(symbols, sym)

		if ts.After(to) {
			to = ts
		}
	}

	if len(symbols) == 0 {
		return nil, skipped, to, errors.Newf(errors.ErrCodeBacktestNoData, "no stored bars for %v", b.symbols)
	}

	return symbols, skipped, to, nil
}

func (b *BacktestEngineV1) loadTape(ctx context.Context, symbols []string, start, end time.Time) (*tape, error) {
	t := &tape{series: make(map[string][]types.Bar, len(symbols)), cursor: make(map[string]int, len(symbols))}

	for _, sym := range symbols {
		bars, err := b.source.ReadWindow(ctx, sym, start, end)
		if err != nil {
			return nil, err
		}

		t.series[sym] = bars
	}

	return t, nil
}

// settle closes what is still open at the end of the range so every open has
// a matching close in the statistics.
func (b *BacktestEngineV1) settle(paper *broker.DryRunBroker, at time.Time) {
	ctx := context.Background()

	positions, err := paper.ListOpenPositions(ctx)
	if err != nil {
		b.log.Warn("Could not list paper positions for settlement", zap.Error(err))

		return
	}

	for sym, pos := range positions {
		ack, err := paper.ClosePercent(ctx, sym, 100)
		if err != nil {
			b.log.Warn("Settlement close failed", zap.String("symbol", sym), zap.Error(err))

			continue
		}

		b.loop.Tracker().Discard(sym)
		b.loop.Stats().RecordClose(stats.ClosedTrade{
			Symbol:   sym,
			Side:     string(pos.Side),
			Strategy: b.config.Live.StrategyID,
			Reason:   settleReason,
			PnLPct:       tracker.PnLPct(pos.Side, pos.EntryPrice, pos.MarkPrice),
			PnLUSD:       ack.RealizedPnL,
			MarginPnLPct: tracker.MarginPnLPct(ack.RealizedPnL, b.config.Live.PositionAmountUSDC, b.config.Live.Leverage),
			OpenedAt:     pos.OpenedAt,
			ClosedAt:     at,
		})
	}
}

// WriteResult renders a replay result as YAML at path.
func WriteResult(path string, r engine.Result) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestReportWrite, "marshal backtest result", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodeBacktestReportWrite, err, "write backtest result to %s", path)
	}

	return nil
}

// tape holds the historical bars and how far each symbol has been revealed.
type tape struct {
	series map[string][]types.Bar
	cursor map[string]int
}

// reveal loads every bar at or before now into the replay store.
func (t *tape) reveal(replay *store.MemoryStore, now time.Time) {
	for sym, bars := range t.series {
		i := t.cursor[sym]
		j := i

		for j < len(bars) && !bars[j].Time.After(now) {
			j++
		}

		if j > i {
			replay.Load(bars[i:j])
			t.cursor[sym] = j
		}
	}
}

// closeAt prices a symbol at the last close at or before the replay clock.
func (t *tape) closeAt(clock func() time.Time) func(ctx context.Context, symbol string) (float64, error) {
	return func(_ context.Context, symbol string) (float64, error) {
		bars := t.series[symbol]
		now := clock()

		i := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(now) })
		if i == 0 {
			return 0, errors.Newf(errors.ErrCodeBadPrice, "%s has no bar before %s", symbol, now.Format(time.RFC3339))
		}

		return bars[i-1].Close, nil
	}
}
