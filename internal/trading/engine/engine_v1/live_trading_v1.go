package engine_v1

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/indicator"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/metrics"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/internal/strategy"
	"github.com/rxtech-lab/argo-perp/internal/tracker"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine/engine_v1/stats"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// Backoff applied to a symbol after the store refused a connection.
const (
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = time.Minute
)

type iterationResult struct {
	report engine.IterationReport
	err    error
}

type backoffState struct {
	failures int
	until    time.Time
}

// LiveTradingEngineV1 implements the LiveTradingEngine interface.
type LiveTradingEngineV1 struct {
	config     engine.LiveTradingEngineConfig
	store      store.Store
	broker     broker.Broker
	universe   engine.UniverseSource
	strategies *strategy.Registry
	indicators indicator.IndicatorRegistry
	tracker    *tracker.Tracker
	evaluator  *SymbolEvaluator
	log        *logger.Logger
	now        func() time.Time

	// Statistics tracking
	statsTracker *stats.StatsTracker

	initialized bool
	iteration   int64

	// loop-goroutine state, never touched by evaluations
	pending map[string]int64
	backoff map[string]*backoffState

	// held is the symbol set of the last broker snapshot, read by Symbols
	heldMu sync.Mutex
	held   []string
}

// NewLiveTradingEngineV1 creates an engine using the built-in strategies and
// the default indicator set.
func NewLiveTradingEngineV1(log *logger.Logger) *LiveTradingEngineV1 {
	return &LiveTradingEngineV1{
		strategies:   strategy.NewRegistry(),
		indicators:   indicator.NewDefaultRegistry(),
		log:          log.Named("live_loop"),
		now:          time.Now,
		statsTracker: stats.NewStatsTracker(log.Named("stats")),
		pending:      make(map[string]int64),
		backoff:      make(map[string]*backoffState),
	}
}

// SetClock replaces the wall clock. Used by the replay back-tester.
func (e *LiveTradingEngineV1) SetClock(now func() time.Time) {
	e.now = now
	e.statsTracker.SetClock(now)
}

// Stats returns the run statistics.
func (e *LiveTradingEngineV1) Stats() *stats.StatsTracker {
	return e.statsTracker
}

// Strategies returns the strategy catalog. Extra strategies must be
// registered before Initialize.
func (e *LiveTradingEngineV1) Strategies() *strategy.Registry {
	return e.strategies
}

// Tracker returns the trailing-state tracker.
func (e *LiveTradingEngineV1) Tracker() *tracker.Tracker {
	return e.tracker
}

// Initialize implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) Initialize(config engine.LiveTradingEngineConfig) error {
	if err := e.strategies.Validate(config.StrategyID); err != nil {
		return err
	}

	if config.LoopInterval <= 0 || config.WindowSeconds <= 0 || config.MaxAge <= 0 {
		return errors.New(errors.ErrCodeInvalidConfiguration, "loop interval, window and max age must be positive")
	}

	if config.MaxConcurrentSymbols < 1 {
		config.MaxConcurrentSymbols = 1
	}

	e.config = config
	e.tracker = tracker.New(tracker.Thresholds{
		MinPnLForTrailing:   config.MinPnLForTrailing,
		TrailingStopTrigger: config.TrailingStopTrigger,
		FixedStopPct:        config.FixedStopPct,
	}, e.log)
	e.initialized = true

	e.log.Debug("Live trading engine initialized",
		zap.String("strategy", config.StrategyID),
		zap.Int("max_positions", config.MaxPositions),
		zap.Bool("no_limit", config.NoLimit),
		zap.Int("concurrency", config.MaxConcurrentSymbols),
	)

	return nil
}

// SetStore implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetStore(st store.Store) error {
	e.store = st

	return nil
}

// SetBroker implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetBroker(br broker.Broker) error {
	e.broker = br

	return nil
}

// SetUniverse implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) SetUniverse(u engine.UniverseSource) error {
	e.universe = u

	return nil
}

// preRunCheck validates that all required components are configured.
func (e *LiveTradingEngineV1) preRunCheck() error {
	if !e.initialized {
		return errors.New(errors.ErrCodeInvalidConfiguration, "engine not initialized - call Initialize() first")
	}

	if e.store == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "store not set - call SetStore() first")
	}

	if e.broker == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "broker not set - call SetBroker() first")
	}

	if e.universe == nil {
		return errors.New(errors.ErrCodeInvalidConfiguration, "universe not set - call SetUniverse() first")
	}

	if e.evaluator == nil {
		e.evaluator = NewSymbolEvaluator(e.store, e.broker, e.strategies, e.indicators, e.tracker, e.config, e.clock)
	}

	return nil
}

func (e *LiveTradingEngineV1) clock() time.Time {
	return e.now()
}

// Run implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) Run(ctx context.Context, callbacks engine.LiveTradingCallbacks) error {
	var runErr error

	defer func() {
		report := e.statsTracker.GetCumulativeStats()
		e.log.Info("Live loop stopped",
			zap.Int("iterations", report.Iterations),
			zap.Int("opens", report.Opens),
			zap.Int("closes", report.Closes),
			zap.Float64("total_pnl_pct", report.TotalPnLPct),
			zap.Any("errors_by_kind", report.ErrorsByKind),
		)

		if err := e.statsTracker.WriteStatsYAML(); err != nil {
			e.log.Warn("Failed to write final stats", zap.Error(err))
		}

		if callbacks.OnEngineStop != nil {
			(*callbacks.OnEngineStop)(runErr)
		}
	}()

	if err := e.preRunCheck(); err != nil {
		runErr = err

		return err
	}

	e.statsTracker.Initialize(uuid.NewString(), e.now(), e.config.StrategyID)

	if callbacks.OnEngineStart != nil {
		if err := (*callbacks.OnEngineStart)(e.universe.Snapshot().Symbols, e.config.StrategyID); err != nil {
			runErr = err

			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		done := make(chan iterationResult, 1)

		go func() {
			report, err := e.RunOnce(ctx)
			done <- iterationResult{report, err}
		}()

		var res iterationResult

		select {
		case res = <-done:
		case <-ctx.Done():
			e.drain(done)

			return nil
		}

		if res.err != nil {
			if errors.IsFatal(res.err) {
				runErr = res.err

				return res.err
			}

			e.log.Error("Iteration failed", zap.String("kind", errors.KindOf(res.err)), zap.Error(res.err))

			if callbacks.OnError != nil {
				(*callbacks.OnError)(res.err)
			}
		} else {
			e.notify(callbacks, res.report)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(e.config.LoopInterval):
		}
	}
}

// drain waits for the in-flight iteration up to the drain timeout.
func (e *LiveTradingEngineV1) drain(done <-chan iterationResult) {
	e.log.Info("Shutdown requested, draining in-flight evaluations", zap.Duration("timeout", e.config.DrainTimeout))

	select {
	case <-done:
		e.log.Info("Drain complete")
	case <-time.After(e.config.DrainTimeout):
		e.log.Warn("Drain timeout elapsed with evaluations still running")
	}
}

func (e *LiveTradingEngineV1) notify(callbacks engine.LiveTradingCallbacks, report engine.IterationReport) {
	if callbacks.OnOrderPlaced != nil {
		for _, o := range report.Outcomes {
			if o.Action == engine.ActionOpened || o.Action == engine.ActionClosed {
				(*callbacks.OnOrderPlaced)(o)
			}
		}
	}

	if callbacks.OnIteration != nil {
		(*callbacks.OnIteration)(report)
	}
}

// RunOnce implements engine.LiveTradingEngine.
func (e *LiveTradingEngineV1) RunOnce(ctx context.Context) (engine.IterationReport, error) {
	if err := e.preRunCheck(); err != nil {
		return engine.IterationReport{}, err
	}

	e.iteration++
	started := e.now()
	e.statsTracker.HandleDate(started)

	report := engine.IterationReport{
		Iteration: e.iteration,
		StartedAt: started,
		Ignored:   make(map[string]string),
	}

	symbols := e.universe.Snapshot().Symbols

	// Broker calls outlive shutdown so an in-flight order is never abandoned
	// half way; each call carries its own timeout.
	brokerCtx := context.WithoutCancel(ctx)

	positions, err := e.broker.ListOpenPositions(brokerCtx)
	if err != nil {
		return report, errors.Wrap(errors.GetCode(err), "list open positions", err)
	}

	e.reconcileTracker(positions)
	e.setHeld(positions)

	openCount := len(positions) + len(e.pending)
	report.OpenPositions = len(positions)
	metrics.OpenPositions.Set(float64(len(positions)))

	// symbols holding a position stay managed even after leaving the universe
	visit := append([]string(nil), symbols...)

	for sym := range positions {
		if !contains(visit, sym) {
			visit = append(visit, sym)
		}
	}

	requests := e.partition(ctx, visit, positions, &report, started)

	var admission *semaphore.Weighted
	if !e.config.NoLimit {
		admission = semaphore.NewWeighted(int64(max(0, e.config.MaxPositions-openCount)))
	}

	for i := range requests {
		requests[i].Admission = admission
	}

	report.Outcomes = e.dispatch(ctx, requests)
	e.afterIteration(&report)

	report.Duration = e.now().Sub(started)
	e.statsTracker.RecordIteration(len(report.Outcomes))

	e.log.Info("Iteration complete",
		zap.Int64("iteration", report.Iteration),
		zap.Strings("active", report.Active),
		zap.Any("ignored", report.Ignored),
		zap.Int("open_positions", report.OpenPositions),
		zap.Int("opened", report.Opened()),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// Symbols returns the universe plus every symbol the broker held at the last
// iteration, so data feeds keep running for positions outside the universe.
func (e *LiveTradingEngineV1) Symbols() []string {
	var out []string
	if e.universe != nil {
		out = append(out, e.universe.Snapshot().Symbols...)
	}

	e.heldMu.Lock()
	defer e.heldMu.Unlock()

	for _, sym := range e.held {
		if !contains(out, sym) {
			out = append(out, sym)
		}
	}

	return out
}

func (e *LiveTradingEngineV1) setHeld(positions map[string]types.Position) {
	held := make([]string, 0, len(positions))
	for sym := range positions {
		held = append(held, sym)
	}

	sort.Strings(held)

	e.heldMu.Lock()
	e.held = held
	e.heldMu.Unlock()
}

// reconcileTracker drops trailing state the broker no longer backs. An open
// acknowledged during the previous iteration gets one iteration of grace.
func (e *LiveTradingEngineV1) reconcileTracker(positions map[string]types.Position) {
	for sym, at := range e.pending {
		if _, ok := positions[sym]; ok {
			delete(e.pending, sym)

			continue
		}

		if e.iteration-at > 1 {
			err := errors.Newf(errors.ErrCodeBrokerInconsistent, "%s acknowledged at iteration %d but not reported by the broker", sym, at)
			e.log.ForSymbol(sym).Error("Open never appeared", zap.String("kind", errors.KindOf(err)), zap.Error(err))
			e.statsTracker.RecordError(errors.KindOf(err))
			e.tracker.Discard(sym)
			delete(e.pending, sym)
		}
	}

	for _, sym := range e.tracker.Symbols() {
		if _, ok := positions[sym]; ok {
			continue
		}

		if _, ok := e.pending[sym]; ok {
			continue
		}

		e.log.ForSymbol(sym).Warn("Position no longer reported by the broker, discarding trailing state")
		e.tracker.Discard(sym)
	}
}

// partition splits symbols into active requests and ignored annotations.
func (e *LiveTradingEngineV1) partition(
	ctx context.Context,
	symbols []string,
	positions map[string]types.Position,
	report *engine.IterationReport,
	now time.Time,
) []Request {
	requests := make([]Request, 0, len(symbols))

	for _, sym := range symbols {
		if b, ok := e.backoff[sym]; ok && now.Before(b.until) {
			report.Ignored[sym] = fmt.Sprintf("backing off for %s", humanizeAge(b.until.Sub(now)))

			continue
		}

		last, err := e.store.LastBucket(ctx, sym)
		if err != nil {
			if errors.HasCode(err, errors.ErrCodeTooManyClients) {
				e.markBackoff(sym, now)
			}

			report.Ignored[sym] = annotate(err)

			continue
		}

		if err := checkFresh(sym, last, now, e.config.MaxAge); err != nil {
			report.Ignored[sym] = annotate(err)

			continue
		}

		req := Request{Symbol: sym, LastBucket: last}
		if pos, ok := positions[sym]; ok {
			req.Position = optional.Some(pos)
		}

		requests = append(requests, req)
		report.Active = append(report.Active, sym)
	}

	return requests
}

// annotate renders an ignore reason such as "inactive for 15min".
func annotate(err error) string {
	switch {
	case errors.HasCode(err, errors.ErrCodePartitionMissing):
		return "no data"
	case errors.HasCode(err, errors.ErrCodeStale):
		var structured *errors.Error
		if errors.As(err, &structured) {
			return structured.Message
		}

		return "stale"
	default:
		return errors.KindOf(err)
	}
}

// dispatch evaluates requests in snapshot order, in parallel when configured.
// No new evaluation starts once ctx is cancelled.
func (e *LiveTradingEngineV1) dispatch(ctx context.Context, requests []Request) []engine.Outcome {
	outcomes := make([]engine.Outcome, len(requests))
	ran := make([]bool, len(requests))

	evaluate := func(i int) {
		outcomes[i] = e.evaluator.Evaluate(ctx, requests[i])
		ran[i] = true
	}

	if e.config.MaxConcurrentSymbols <= 1 {
		for i := range requests {
			if ctx.Err() != nil {
				break
			}

			evaluate(i)
		}
	} else {
		sem := semaphore.NewWeighted(int64(e.config.MaxConcurrentSymbols))

		var wg sync.WaitGroup

		for i := range requests {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}

			wg.Add(1)

			go func(i int) {
				defer wg.Done()
				defer sem.Release(1)
				evaluate(i)
			}(i)
		}

		wg.Wait()
	}

	out := outcomes[:0]

	for i, o := range outcomes {
		if ran[i] {
			out = append(out, o)
		}
	}

	return out
}

// afterIteration logs outcomes and updates pending opens, backoff, stats and metrics.
func (e *LiveTradingEngineV1) afterIteration(report *engine.IterationReport) {
	for _, o := range report.Outcomes {
		e.logOutcome(o)
		metrics.EvaluationsTotal.WithLabelValues(string(o.Phase)).Inc()

		if o.Err != nil {
			e.statsTracker.RecordError(errors.KindOf(o.Err))

			if errors.HasCode(o.Err, errors.ErrCodeTooManyClients) {
				e.markBackoff(o.Symbol, report.StartedAt)
			}

			continue
		}

		delete(e.backoff, o.Symbol)

		switch o.Action {
		case engine.ActionOpened:
			e.pending[o.Symbol] = report.Iteration
			e.statsTracker.RecordOpen()
			metrics.OrdersTotal.WithLabelValues(o.Symbol, "open", string(o.Side)).Inc()
		case engine.ActionClosed:
			e.recordClose(o, report.StartedAt)
		}
	}
}

func (e *LiveTradingEngineV1) recordClose(o engine.Outcome, closedAt time.Time) {
	if o.Ack != nil && !o.Ack.At.IsZero() {
		closedAt = o.Ack.At
	}

	metrics.OrdersTotal.WithLabelValues(o.Symbol, "close", string(o.Side)).Inc()
	e.statsTracker.RecordClose(stats.ClosedTrade{
		Symbol:   o.Symbol,
		Side:     string(o.Side),
		Strategy: o.Strategy,
		Reason:   o.Note,
		PnLPct:       o.PnLPct,
		PnLUSD:       o.PnLUSD,
		MarginPnLPct: o.MarginPnLPct,
		OpenedAt:     o.OpenedAt,
		ClosedAt:     closedAt,
	})
}

func (e *LiveTradingEngineV1) markBackoff(symbol string, now time.Time) {
	b, ok := e.backoff[symbol]
	if !ok {
		b = &backoffState{}
		e.backoff[symbol] = b
	}

	b.failures++

	delay := DefaultBackoffBase << min(b.failures-1, 10)
	if delay > DefaultBackoffMax {
		delay = DefaultBackoffMax
	}

	b.until = now.Add(delay)

	e.log.ForSymbol(symbol).Warn("Store refused a connection, backing off",
		zap.Int("failures", b.failures),
		zap.Duration("delay", delay),
	)
}

// logOutcome writes the per-symbol line: WARN for pipeline failures, ERROR for
// broker failures.
func (e *LiveTradingEngineV1) logOutcome(o engine.Outcome) {
	log := e.log.ForSymbol(o.Symbol)
	fields := []zap.Field{
		zap.String("phase", string(o.Phase)),
		zap.String("action", string(o.Action)),
		zap.String("strategy", o.Strategy),
	}

	if o.Condition != "" {
		fields = append(fields, zap.String("condition", o.Condition))
	}

	if o.Signal.Type != "" {
		fields = append(fields,
			zap.String("signal", string(o.Signal.Type)),
			zap.String("reason", o.Signal.Reason),
			zap.String("diagnostics", o.Signal.DiagnosticsString()),
		)
	}

	if o.Note != "" {
		fields = append(fields, zap.String("note", o.Note))
	}

	if o.Phase == engine.PhaseReconcile && o.Action != engine.ActionNone {
		fields = append(fields, zap.Float64("pnl_pct", o.PnLPct))
	}

	switch {
	case o.Err != nil && o.Phase == engine.PhaseReconcile:
		log.Error("Broker call failed", append(fields, zap.String("kind", errors.KindOf(o.Err)), zap.Error(o.Err))...)
	case o.Err != nil:
		log.Warn("Evaluation skipped", append(fields, zap.String("kind", errors.KindOf(o.Err)), zap.Error(o.Err))...)
	case o.Action == engine.ActionOpened || o.Action == engine.ActionClosed:
		log.Info("Position "+string(o.Action), fields...)
	default:
		log.Debug("Evaluation complete", fields...)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}

// humanizeAge renders durations the way the ignore annotations read:
// 45s, 15min, 2h5min.
func humanizeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dmin", int(d.Minutes()))
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60

		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}

		return fmt.Sprintf("%dh%dmin", h, m)
	}
}

// Verify LiveTradingEngineV1 implements engine.LiveTradingEngine interface.
var _ engine.LiveTradingEngine = (*LiveTradingEngineV1)(nil)
