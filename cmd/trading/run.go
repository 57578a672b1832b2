package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rxtech-lab/argo-perp/internal/aggregator"
	backtest "github.com/rxtech-lab/argo-perp/internal/backtest/engine"
	backtestv1 "github.com/rxtech-lab/argo-perp/internal/backtest/engine/engine_v1"
	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/broker/commission_fee"
	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/metrics"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine"
	enginev1 "github.com/rxtech-lab/argo-perp/internal/trading/engine/engine_v1"
	"github.com/rxtech-lab/argo-perp/internal/universe"
	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// loadRuntime reads the run policy and builds the process logger.
func loadRuntime(opts options) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	log, err := logger.NewLoggerWithLevel(level)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "build logger", err)
	}

	return cfg, log, nil
}

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverDuckDB:
		return store.NewDuckDBStore(cfg.Database.DSN, cfg.Database.PoolMaxSize, log)
	default:
		return store.NewPostgresStore(ctx, cfg.Database, log)
	}
}

// newBroker returns the signed venue broker for real runs and a paper book
// priced from the public ticker otherwise.
func newBroker(mode broker.Mode, client *venue.Client, cfg *config.Config, log *logger.Logger) broker.Broker {
	if mode == broker.ModeReal {
		return broker.NewVenueBroker(client, cfg.Broker.CallTimeout, log)
	}

	fee := commission_fee.GetCommissionFeeHandler(commission_fee.Model(cfg.Broker.PaperFeeModel), cfg.Broker.TakerFeeBps)

	return broker.NewDryRunBroker(broker.NewTickerPriceSource(client), log, broker.WithCommission(fee))
}

func newUniverse(cfg *config.Config, client *venue.Client, opts options, log *logger.Logger) (*universe.Manager, error) {
	policy := universe.PolicyFromConfig(cfg, opts.Symbols)

	if opts.AutoSelect {
		return universe.NewAutoManager(client, policy, cfg.Strategy.AutoSelectUpdateInterval, log), nil
	}

	m := universe.NewStaticManager(policy, log)
	if len(m.Symbols()) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "no symbols: pass SYMBOLS, set symbols.include or use --auto-select")
	}

	return m, nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func runLive(parent context.Context, opts options) error {
	mode, err := broker.ModeFromFlags(opts.RealRun, opts.DryRun)
	if err != nil {
		return err
	}

	cfg, log, err := loadRuntime(opts)
	if err != nil {
		return err
	}

	defer func() { _ = log.Sync() }()

	if err := cfg.RequireRuntime(mode == broker.ModeReal); err != nil {
		log.Error("Startup failed", zap.String("kind", errors.KindOf(err)), zap.Error(err))

		return err
	}

	info, _ := broker.GetModeInfo(mode)

	client, err := venue.NewClient(cfg.Venue, cfg.Broker.CallTimeout)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("Store unavailable", zap.String("kind", errors.KindOf(err)), zap.Error(err))

		return err
	}

	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Warn("Failed to close store", zap.Error(cerr))
		}
	}()

	universeManager, err := newUniverse(cfg, client, opts, log)
	if err != nil {
		return err
	}

	loop := enginev1.NewLiveTradingEngineV1(log)
	if err := loop.Initialize(engine.ConfigFromRunPolicy(cfg, opts.Strategy, opts.NoLimit)); err != nil {
		return err
	}

	loop.Stats().SetOutputPath(opts.StatsOutput)

	for _, set := range []error{
		loop.SetStore(st),
		loop.SetBroker(newBroker(mode, client, cfg, log)),
		loop.SetUniverse(universeManager),
	} {
		if set != nil {
			return set
		}
	}

	log.Info("Starting trading agent",
		zap.String("mode", info.DisplayName),
		zap.Bool("simulated", info.Simulated),
		zap.Bool("auto_select", opts.AutoSelect),
		zap.Strings("symbols", universeManager.Symbols()),
		zap.String("database", cfg.Database.Driver),
	)

	aggregators := aggregator.NewManager(st, aggregator.SupervisorConfig{
		URL:              cfg.Venue.WSURL,
		IntervalSeconds:  cfg.Stream.IntervalSeconds,
		ReconnectBackoff: cfg.Stream.ReconnectBackoff,
		IdleTimeout:      cfg.Stream.IdleTimeout,
	}, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return universeManager.Run(gctx) })
	// the loop reports the universe plus held symbols so stops on positions
	// outside the universe still get fresh bars
	g.Go(func() error { return aggregators.Run(gctx, loop, time.Second) })
	g.Go(func() error {
		return store.NewJanitor(st, cfg.Database.RetentionDays, cfg.Database.CleanupInterval, log).Run(gctx)
	})

	if cfg.Metrics.ListenAddr != "" {
		g.Go(func() error {
			log.Info("Serving metrics", zap.String("addr", cfg.Metrics.ListenAddr))

			return metrics.Serve(gctx, cfg.Metrics.ListenAddr)
		})
	}

	onStart := engine.OnEngineStartCallback(func(symbols []string, strategyID string) error {
		log.Info("Live loop started", zap.Strings("symbols", symbols), zap.String("strategy", strategyID))

		return nil
	})
	onOrder := engine.OnOrderPlacedCallback(func(o engine.Outcome) {
		log.Info("Order placed",
			zap.String("symbol", o.Symbol),
			zap.String("action", string(o.Action)),
			zap.String("side", string(o.Side)),
			zap.String("strategy", o.Strategy),
			zap.Float64("pnl_pct", o.PnLPct),
			zap.Float64("margin_pnl_pct", o.MarginPnLPct),
			zap.Bool("simulated", info.Simulated),
		)
	})

	g.Go(func() error {
		return loop.Run(gctx, engine.LiveTradingCallbacks{
			OnEngineStart: &onStart,
			OnOrderPlaced: &onOrder,
		})
	})

	err = g.Wait()
	if err != nil {
		log.Error("Trading agent stopped", zap.String("kind", errors.KindOf(err)), zap.Error(err))

		return err
	}

	log.Info("Trading agent stopped")

	return nil
}

func runBacktest(parent context.Context, opts options) error {
	cfg, log, err := loadRuntime(opts)
	if err != nil {
		return err
	}

	defer func() { _ = log.Sync() }()

	if err := cfg.RequireRuntime(false); err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	defer func() { _ = st.Close() }()

	symbols := universe.Merge(opts.Symbols, cfg.Symbols.Include, cfg.Symbols.Exclude)
	if len(symbols) == 0 || opts.AutoSelect {
		stored, err := st.ListPartitions(ctx)
		if err != nil {
			return err
		}

		symbols = universe.Merge(append(symbols, stored...), nil, cfg.Symbols.Exclude)
	}

	bt := backtestv1.NewBacktestEngineV1(log)
	if err := bt.Initialize(backtest.ConfigFromRunPolicy(cfg, opts.Strategy, opts.Backtest, opts.NoLimit)); err != nil {
		return err
	}

	if err := bt.SetDataSource(st); err != nil {
		return err
	}

	if err := bt.SetSymbols(symbols); err != nil {
		return err
	}

	var bar *progressbar.ProgressBar

	onStart := backtest.OnBacktestStartCallback(func(symbols []string, from, to time.Time, totalSteps int) error {
		log.Info("Replaying stored bars",
			zap.Strings("symbols", symbols),
			zap.Time("from", from),
			zap.Time("to", to),
		)

		bar = progressbar.NewOptions(totalSteps,
			progressbar.OptionSetDescription("Replaying"),
			progressbar.OptionShowCount(),
		)

		return nil
	})
	onProcess := backtest.OnProcessDataCallback(func(current, _ int) error {
		if bar != nil {
			_ = bar.Set(current)
		}

		return nil
	})

	result, err := bt.Run(ctx, backtest.LifecycleCallbacks{
		OnBacktestStart: &onStart,
		OnProcessData:   &onProcess,
	})
	if bar != nil {
		_ = bar.Finish()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("Backtest finished",
		zap.String("run_id", result.RunID),
		zap.Int("trades", result.Stats.Closes),
		zap.Int("wins", result.Stats.Wins),
		zap.Int("losses", result.Stats.Losses),
		zap.Float64("total_pnl_pct", result.Stats.TotalPnLPct),
		zap.String("report", cfg.Backtest.ReportPath),
	)

	return nil
}
