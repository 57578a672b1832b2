package engine

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/internal/universe"
)

// Phase names the evaluator step an outcome stopped at.
type Phase string

const (
	PhaseFreshness  Phase = "freshness"
	PhaseWindow     Phase = "window"
	PhaseNormalize  Phase = "normalize"
	PhaseIndicators Phase = "indicators"
	PhaseStrategy   Phase = "strategy"
	PhaseReconcile  Phase = "reconcile"
)

// Action is what the evaluator did to the account.
type Action string

const (
	ActionNone Action = "none"
	// ActionSkipped means the pipeline stopped before reconcile
	ActionSkipped Action = "skipped"
	ActionHeld    Action = "held"
	ActionOpened  Action = "opened"
	ActionClosed  Action = "closed"
	// ActionLimited means an open was refused by the max_positions ceiling
	ActionLimited Action = "limited"
	// ActionPending means an acknowledged open is not yet reported by the broker
	ActionPending Action = "pending"
)

// Outcome is the result of one symbol evaluation.
type Outcome struct {
	Symbol    string
	Phase     Phase
	Action    Action
	Signal    types.Signal
	Strategy  string
	Condition string
	Note      string
	Side      types.PositionSide
	OpenedAt  time.Time
	PnLPct    float64

	// PnLUSD and MarginPnLPct are set on closes
	PnLUSD       float64
	MarginPnLPct float64
	Ack          *broker.Ack
	Err          error
}

// IterationReport summarizes one pass of the live loop.
type IterationReport struct {
	Iteration int64
	StartedAt time.Time
	Duration  time.Duration
	Active    []string
	// Ignored maps a symbol to a human annotation such as "inactive for 15min"
	Ignored       map[string]string
	OpenPositions int
	Outcomes      []Outcome
}

// Opened counts the opens acknowledged during the iteration.
func (r IterationReport) Opened() int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Action == ActionOpened {
			n++
		}
	}

	return n
}

// Lifecycle callback types for the live loop.

// OnEngineStartCallback is called once before the first iteration.
type OnEngineStartCallback func(symbols []string, strategyID string) error

// OnEngineStopCallback is called when Run returns (always called via defer).
type OnEngineStopCallback func(err error)

// OnIterationCallback is called after every completed iteration.
type OnIterationCallback func(report IterationReport)

// OnOrderPlacedCallback is called for every acknowledged open or close.
type OnOrderPlacedCallback func(outcome Outcome)

// OnErrorCallback is called when an iteration fails without being fatal.
type OnErrorCallback func(err error)

// LiveTradingCallbacks holds the lifecycle callbacks. Nil fields are skipped.
type LiveTradingCallbacks struct {
	OnEngineStart *OnEngineStartCallback
	OnEngineStop  *OnEngineStopCallback
	OnIteration   *OnIterationCallback
	OnOrderPlaced *OnOrderPlacedCallback
	OnError       *OnErrorCallback
}

// LiveTradingEngineConfig is the part of the run policy the loop consumes.
type LiveTradingEngineConfig struct {
	StrategyID          string
	PositionAmountUSDC  float64
	Leverage            float64
	MinPnLForTrailing   float64
	TrailingStopTrigger float64
	FixedStopPct        float64
	MaxPositions        int
	// NoLimit disables the max_positions ceiling
	NoLimit              bool
	LoopInterval         time.Duration
	WindowSeconds        int
	MaxAge               time.Duration
	DrainTimeout         time.Duration
	MaxConcurrentSymbols int
}

// ConfigFromRunPolicy builds the engine config from the loaded configuration.
func ConfigFromRunPolicy(cfg *config.Config, strategyID string, noLimit bool) LiveTradingEngineConfig {
	if strategyID == "" {
		strategyID = cfg.Strategy.DefaultStrategy
	}

	return LiveTradingEngineConfig{
		StrategyID:           strategyID,
		PositionAmountUSDC:   cfg.Trading.PositionAmountUSDC,
		Leverage:             cfg.Trading.Leverage,
		MinPnLForTrailing:    cfg.Trading.MinPnLForTrailing,
		TrailingStopTrigger:  cfg.Trading.TrailingStopTrigger,
		FixedStopPct:         cfg.Trading.FixedStopPct,
		MaxPositions:         cfg.Trading.MaxPositions,
		NoLimit:              noLimit,
		LoopInterval:         cfg.Trading.LoopInterval,
		WindowSeconds:        cfg.Trading.WindowSeconds,
		MaxAge:               cfg.MaxAge(),
		DrainTimeout:         cfg.Trading.DrainTimeout,
		MaxConcurrentSymbols: cfg.ConcurrentSymbols(),
	}
}

// UniverseSource provides the snapshot each iteration starts from.
type UniverseSource interface {
	Snapshot() *universe.Snapshot
}

// LiveTradingEngine runs the cadence-driven decision loop.
type LiveTradingEngine interface {
	// Initialize validates the configuration and builds the evaluator.
	Initialize(config LiveTradingEngineConfig) error

	SetStore(store store.Store) error

	SetBroker(broker broker.Broker) error

	SetUniverse(universe UniverseSource) error

	// RunOnce executes a single iteration.
	RunOnce(ctx context.Context) (IterationReport, error)

	// Run iterates until ctx is cancelled, then drains in-flight evaluations.
	// It never closes the store.
	Run(ctx context.Context, callbacks LiveTradingCallbacks) error
}
