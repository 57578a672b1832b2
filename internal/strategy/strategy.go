// Package strategy is the named catalog of strategy functions. The registry is
// the only extension surface: the live loop and the evaluator address
// strategies by ID and never by concrete type.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rxtech-lab/argo-perp/internal/indicator"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// Built-in strategy IDs.
const (
	Default           = "Default"
	Trix              = "Trix"
	Combo             = "Combo"
	Range             = "Range"
	RangeSoft         = "RangeSoft"
	Auto              = "Auto"
	AutoSoft          = "AutoSoft"
	ThreeOutOfFour    = "ThreeOutOfFour"
	TwoOutOfFourScalp = "TwoOutOfFourScalp"
	DynamicThreeTwo   = "DynamicThreeTwo"
)

// Func is the uniform strategy contract. Diagnostics travel on the signal.
type Func func(frame *indicator.Frame, symbol string) (types.Signal, error)

// Dispatcher picks a concrete strategy ID for a market condition.
type Dispatcher func(cond Condition) string

// Registry maps strategy IDs to functions or dispatchers.
type Registry struct {
	mu          sync.RWMutex
	strategies  map[string]Func
	dispatchers map[string]Dispatcher
}

// NewRegistry returns a registry holding every built-in strategy.
func NewRegistry() *Registry {
	r := &Registry{
		strategies:  make(map[string]Func),
		dispatchers: make(map[string]Dispatcher),
	}

	r.strategies[Default] = defaultStrategy
	r.strategies[Trix] = trixStrategy
	r.strategies[Combo] = comboStrategy
	r.strategies[Range] = rangeStrategy(rangeStrict)
	r.strategies[RangeSoft] = rangeStrategy(rangeSoft)
	r.strategies[ThreeOutOfFour] = votingStrategy(ThreeOutOfFour, 3, nil)
	r.strategies[TwoOutOfFourScalp] = votingStrategy(TwoOutOfFourScalp, 2, map[string]float64{
		"stop_loss_pct":   scalpStopLossPct,
		"take_profit_pct": scalpTakeProfitPct,
	})

	r.dispatchers[Auto] = func(cond Condition) string {
		if cond.Trending() {
			return Trix
		}

		return Range
	}
	r.dispatchers[AutoSoft] = func(cond Condition) string {
		if cond.Trending() {
			return Trix
		}

		return RangeSoft
	}
	r.dispatchers[DynamicThreeTwo] = func(cond Condition) string {
		if cond.Trending() {
			return ThreeOutOfFour
		}

		return TwoOutOfFourScalp
	}

	return r
}

// Register adds a concrete strategy.
func (r *Registry) Register(id string, fn Func) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(id) {
		return errors.Newf(errors.ErrCodeStrategyAlreadyExists, "strategy %s already registered", id)
	}

	r.strategies[id] = fn

	return nil
}

// RegisterDispatcher adds a strategy that delegates by market condition.
func (r *Registry) RegisterDispatcher(id string, d Dispatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.exists(id) {
		return errors.Newf(errors.ErrCodeStrategyAlreadyExists, "strategy %s already registered", id)
	}

	r.dispatchers[id] = d

	return nil
}

func (r *Registry) exists(id string) bool {
	_, fn := r.strategies[id]
	_, d := r.dispatchers[id]

	return fn || d
}

// Validate fails when id is not registered. Called once at startup.
func (r *Registry) Validate(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.exists(id) {
		return errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy %q (known: %v)", id, r.idsLocked())
	}

	return nil
}

// IDs returns every registered ID in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.idsLocked()
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.strategies)+len(r.dispatchers))
	for id := range r.strategies {
		ids = append(ids, id)
	}

	for id := range r.dispatchers {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Resolve maps id to the concrete strategy that runs on this frame. Only
// dispatchers consult the classifier; for them cond is the classification.
func (r *Registry) Resolve(id string, frame *indicator.Frame) (string, Condition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.strategies[id]; ok {
		return id, "", nil
	}

	d, ok := r.dispatchers[id]
	if !ok {
		return "", "", errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy %q", id)
	}

	cond := Classify(frame)
	concrete := d(cond)

	if _, ok := r.strategies[concrete]; !ok {
		return "", cond, errors.Newf(errors.ErrCodeStrategyNotFound, "dispatcher %s chose unknown strategy %q", id, concrete)
	}

	return concrete, cond, nil
}

// Evaluate resolves id and runs the strategy. Any failure, a panic included,
// yields a NONE signal and an ErrCodeStrategyRuntimeError.
func (r *Registry) Evaluate(id string, frame *indicator.Frame, symbol string) (types.Signal, error) {
	concrete, cond, err := r.Resolve(id, frame)
	if err != nil {
		return types.NoSignal(id, "unresolved"), err
	}

	return r.Run(id, concrete, cond, frame, symbol)
}

// Run invokes an already resolved strategy without classifying the frame
// again. cond and id only annotate the reason of dispatched signals.
func (r *Registry) Run(id, concrete string, cond Condition, frame *indicator.Frame, symbol string) (signal types.Signal, err error) {
	r.mu.RLock()
	fn, ok := r.strategies[concrete]
	r.mu.RUnlock()

	if !ok {
		return types.NoSignal(concrete, "unresolved"), errors.Newf(errors.ErrCodeStrategyNotFound, "unknown strategy %q", concrete)
	}

	defer func() {
		if rec := recover(); rec != nil {
			signal = types.NoSignal(concrete, "panic")
			err = errors.Newf(errors.ErrCodeStrategyRuntimeError, "strategy %s panicked on %s: %v", concrete, symbol, rec)
		}
	}()

	signal, err = fn(frame, symbol)
	if err != nil {
		return types.NoSignal(concrete, "error"), errors.Wrapf(errors.ErrCodeStrategyRuntimeError, err, "strategy %s on %s", concrete, symbol)
	}

	if signal.Strategy == "" {
		signal.Strategy = concrete
	}

	if signal.Diagnostics == nil {
		signal.Diagnostics = map[string]float64{}
	}

	if cond != "" {
		signal.Reason = fmt.Sprintf("%s (%s via %s)", signal.Reason, cond, id)
	}

	return signal, nil
}
