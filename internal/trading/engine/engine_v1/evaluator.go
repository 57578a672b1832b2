package engine_v1

import (
	"context"
	"math"
	"time"

	"github.com/moznion/go-optional"
	"golang.org/x/sync/semaphore"

	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/indicator"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/internal/strategy"
	"github.com/rxtech-lab/argo-perp/internal/tracker"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// requiredColumns must be finite in the last row before a strategy runs.
// RSI is absent on purpose: strategies fall back to a neutral 50.
var requiredColumns = []types.IndicatorType{
	types.IndicatorEMA20,
	types.IndicatorEMA50,
	types.IndicatorEMA200,
	types.IndicatorMACD,
	types.IndicatorMACDSignal,
	types.IndicatorMACDHist,
}

// Request is the per-symbol input prepared by the loop.
type Request struct {
	Symbol string
	// LastBucket is the freshness probe the loop already ran; None makes the
	// evaluator query the store itself
	LastBucket optional.Option[time.Time]
	// Position is the broker's view of the symbol, if open
	Position optional.Option[types.Position]
	// Admission grants new opens; nil means unlimited
	Admission *semaphore.Weighted
}

// SymbolEvaluator runs the per-symbol pipeline: freshness, window, normalize,
// indicators, strategy, reconcile.
type SymbolEvaluator struct {
	store      store.Store
	broker     broker.Broker
	strategies *strategy.Registry
	indicators indicator.IndicatorRegistry
	tracker    *tracker.Tracker
	config     engine.LiveTradingEngineConfig
	now        func() time.Time
}

func NewSymbolEvaluator(
	st store.Store,
	br broker.Broker,
	strategies *strategy.Registry,
	indicators indicator.IndicatorRegistry,
	tr *tracker.Tracker,
	cfg engine.LiveTradingEngineConfig,
	now func() time.Time,
) *SymbolEvaluator {
	return &SymbolEvaluator{
		store:      st,
		broker:     br,
		strategies: strategies,
		indicators: indicators,
		tracker:    tr,
		config:     cfg,
		now:        now,
	}
}

// Evaluate never touches the broker when a step before reconcile fails.
// Store reads follow ctx; broker calls ignore its cancellation so an order
// in flight at shutdown still gets its acknowledgment.
func (e *SymbolEvaluator) Evaluate(ctx context.Context, req Request) engine.Outcome {
	out := engine.Outcome{Symbol: req.Symbol, Action: engine.ActionSkipped, Strategy: e.config.StrategyID}
	now := e.now().UTC()

	// 1. freshness
	out.Phase = engine.PhaseFreshness

	last := req.LastBucket
	if last.IsNone() {
		probed, err := e.store.LastBucket(ctx, req.Symbol)
		if err != nil {
			out.Err = err

			return out
		}

		last = probed
	}

	if err := checkFresh(req.Symbol, last, now, e.config.MaxAge); err != nil {
		out.Err = err

		return out
	}

	// 2. window
	out.Phase = engine.PhaseWindow
	start := now.Add(-time.Duration(e.config.WindowSeconds) * time.Second)

	bars, err := e.store.ReadWindow(ctx, req.Symbol, start, now)
	if err != nil {
		out.Err = err

		return out
	}

	// 3. normalize
	out.Phase = engine.PhaseNormalize
	bars = normalize(bars)

	if len(bars) == 0 {
		out.Note = "empty window"

		return out
	}

	// 4. indicators
	out.Phase = engine.PhaseIndicators
	frame := indicator.NewFrame(req.Symbol, bars)

	if err := e.indicators.Ensure(frame, indicator.DefaultIndicators...); err != nil {
		out.Err = err

		return out
	}

	for _, col := range requiredColumns {
		if math.IsNaN(frame.Last(col)) {
			out.Err = errors.NewInsufficientDataErrorf(0, frame.Len(), req.Symbol, "%s undefined on the last of %d bars", col, frame.Len())

			return out
		}
	}

	// 5. strategy
	out.Phase = engine.PhaseStrategy

	concrete, cond, err := e.strategies.Resolve(e.config.StrategyID, frame)
	if err != nil {
		out.Err = err

		return out
	}

	out.Strategy = concrete
	out.Condition = string(cond)

	signal, err := e.strategies.Run(e.config.StrategyID, concrete, cond, frame, req.Symbol)
	out.Signal = signal

	if err != nil {
		out.Err = err

		return out
	}

	// 6. reconcile
	out.Phase = engine.PhaseReconcile
	out.Action = engine.ActionNone

	brokerCtx := context.WithoutCancel(ctx)

	if pos, err := req.Position.Take(); err == nil {
		return e.manage(brokerCtx, out, pos)
	}

	if !signal.Type.Opens() {
		return out
	}

	if e.tracker.State(req.Symbol).IsSome() {
		// opened by an earlier iteration, not yet listed by the broker
		out.Action = engine.ActionPending

		return out
	}

	return e.open(brokerCtx, out, req.Admission, now)
}

func (e *SymbolEvaluator) manage(ctx context.Context, out engine.Outcome, pos types.Position) engine.Outcome {
	pnl := tracker.PnLPct(pos.Side, pos.EntryPrice, pos.MarkPrice)
	out.PnLPct = pnl
	out.Side = pos.Side

	state, err := e.tracker.State(pos.Symbol).Take()
	if err != nil {
		state = e.tracker.Adopt(pos, pnl)
	}

	out.OpenedAt = state.OpenedAt

	decision, _ := e.tracker.Update(pos.Symbol, pnl)
	if !decision.Close {
		out.Action = engine.ActionHeld

		return out
	}

	ack, err := e.broker.ClosePercent(ctx, pos.Symbol, 100)
	if err != nil {
		out.Err = err
		out.Note = decision.Reason

		return out
	}

	e.tracker.Discard(pos.Symbol)

	out.PnLUSD = closedPnLUSD(pos, ack)
	out.MarginPnLPct = tracker.MarginPnLPct(out.PnLUSD, e.config.PositionAmountUSDC, e.config.Leverage)
	out.Action = engine.ActionClosed
	out.Note = decision.Reason
	out.Ack = &ack

	return out
}

func (e *SymbolEvaluator) open(ctx context.Context, out engine.Outcome, admission *semaphore.Weighted, now time.Time) engine.Outcome {
	side, _ := out.Signal.Type.Side()
	out.Side = side

	if admission != nil && !admission.TryAcquire(1) {
		out.Action = engine.ActionLimited
		out.Note = "max positions reached"

		return out
	}

	ack, err := e.broker.OpenMarket(ctx, out.Symbol, e.config.PositionAmountUSDC, side)
	if err != nil {
		if admission != nil {
			admission.Release(1)
		}

		out.Err = err

		return out
	}

	openedAt := ack.At
	if openedAt.IsZero() {
		openedAt = now
	}

	e.tracker.Open(out.Symbol, side, ack.Price.InexactFloat64(), openedAt)
	out.OpenedAt = openedAt

	out.Action = engine.ActionOpened
	out.Ack = &ack

	return out
}

// closedPnLUSD prefers the paper book's fee-netted result and falls back to
// the price-based PnL of the closed amount.
func closedPnLUSD(pos types.Position, ack broker.Ack) float64 {
	if ack.Simulated {
		return ack.RealizedPnL
	}

	return pos.PnLUSD()
}

func checkFresh(symbol string, last optional.Option[time.Time], now time.Time, maxAge time.Duration) error {
	ts, err := last.Take()
	if err != nil {
		return errors.Newf(errors.ErrCodePartitionMissing, "%s has no bars", symbol)
	}

	if age := now.Sub(ts); age > maxAge {
		return errors.Newf(errors.ErrCodeStale, "inactive for %s", humanizeAge(age))
	}

	return nil
}

// normalize forces UTC and drops rows with non-finite values.
func normalize(bars []types.Bar) []types.Bar {
	out := bars[:0:0]

	for _, b := range bars {
		if !b.Finite() {
			continue
		}

		b.Time = b.Time.UTC()
		out = append(out, b)
	}

	return out
}
