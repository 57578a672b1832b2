package engine

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/store"
	tradingengine "github.com/rxtech-lab/argo-perp/internal/trading/engine"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine/engine_v1/stats"
)

// Lifecycle callback types for replay phases.
// All callbacks with error return can abort execution if they return an error

// OnBacktestStartCallback is called once the replay range is known.
type OnBacktestStartCallback func(symbols []string, from, to time.Time, totalSteps int) error

// OnBacktestEndCallback is called when the replay completes (always called via defer).
type OnBacktestEndCallback func(err error)

// OnProcessDataCallback is called after every replayed step.
type OnProcessDataCallback func(current int, total int) error

// LifecycleCallbacks holds all lifecycle callback functions for the back-tester.
// All fields are pointers - nil means no callback will be invoked.
type LifecycleCallbacks struct {
	OnBacktestStart *OnBacktestStartCallback
	OnBacktestEnd   *OnBacktestEndCallback
	OnProcessData   *OnProcessDataCallback
}

// BacktestConfig drives one replay.
type BacktestConfig struct {
	// Live is the loop configuration replayed unchanged
	Live tradingengine.LiveTradingEngineConfig
	// Duration is how far back from the newest stored bar the replay starts
	Duration time.Duration
	// Step is the replay clock increment between iterations
	Step time.Duration
	// ReportPath receives the YAML result; empty skips writing
	ReportPath string
	// FeeModel and TakerFeeBps price the paper fills
	FeeModel    string
	TakerFeeBps float64
}

// ConfigFromRunPolicy builds a replay configuration from the loaded run policy.
func ConfigFromRunPolicy(cfg *config.Config, strategyID string, duration time.Duration, noLimit bool) BacktestConfig {
	return BacktestConfig{
		Live:        tradingengine.ConfigFromRunPolicy(cfg, strategyID, noLimit),
		Duration:    duration,
		Step:        time.Duration(cfg.Backtest.StepSeconds) * time.Second,
		ReportPath:  cfg.Backtest.ReportPath,
		FeeModel:    cfg.Broker.PaperFeeModel,
		TakerFeeBps: cfg.Broker.TakerFeeBps,
	}
}

// Result is the outcome of a replay, written as the YAML report.
type Result struct {
	RunID   string        `yaml:"run_id"`
	From    time.Time     `yaml:"from"`
	To      time.Time     `yaml:"to"`
	Steps   int           `yaml:"steps"`
	Symbols []string      `yaml:"symbols"`
	Skipped []string      `yaml:"skipped,omitempty"`
	Stats   stats.Report  `yaml:"stats"`
	Fills   []broker.Fill `yaml:"fills"`
}

// Engine replays stored bars through the live decision loop.
type Engine interface {
	// Initialize validates the replay configuration.
	Initialize(config BacktestConfig) error
	// SetDataSource sets the store the historical bars are read from.
	SetDataSource(source store.Store) error
	// SetSymbols sets the instruments to replay.
	SetSymbols(symbols []string) error
	// Run replays the range and returns the result. A cancelled ctx stops the
	// replay early; the partial result is still returned.
	Run(ctx context.Context, callbacks LifecycleCallbacks) (Result, error)
}
