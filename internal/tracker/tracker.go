// Package tracker owns the trailing state of open positions and decides when
// a position is closed. It holds no quantities; the broker is authoritative
// for whether a position is open.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
)

type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseOpenUnarmed Phase = "OPEN_UNARMED"
	PhaseOpenArmed   Phase = "OPEN_ARMED"
)

// Thresholds are percentages, all positive.
type Thresholds struct {
	// MinPnLForTrailing is the peak PnL that arms the trailing stop
	MinPnLForTrailing float64
	// TrailingStopTrigger is the allowed drop from peak once armed
	TrailingStopTrigger float64
	// FixedStopPct is the loss that closes an unarmed position
	FixedStopPct float64
}

func ThresholdsFromConfig(cfg config.TradingConfig) Thresholds {
	return Thresholds{
		MinPnLForTrailing:   cfg.MinPnLForTrailing,
		TrailingStopTrigger: cfg.TrailingStopTrigger,
		FixedStopPct:        cfg.FixedStopPct,
	}
}

// TrailingState is the per-position bookkeeping. Values returned by the
// tracker are copies.
type TrailingState struct {
	Symbol       string
	Side         types.PositionSide
	EntryPrice   float64
	OpenedAt     time.Time
	PeakPnLPct   float64
	TrailingStop optional.Option[float64]
	Armed        bool
	LastPnLPct   float64
	Updates      int
}

func (s TrailingState) Phase() Phase {
	if s.Armed {
		return PhaseOpenArmed
	}

	return PhaseOpenUnarmed
}

// Decision is the outcome of one Update.
type Decision struct {
	Close        bool
	Reason       string
	Phase        Phase
	PnLPct       float64
	PeakPnLPct   float64
	TrailingStop optional.Option[float64]
	// JustArmed is set on the update that armed the trailing stop
	JustArmed bool
}

// Tracker serializes every state change behind one mutex that is never held
// across I/O.
type Tracker struct {
	mu         sync.Mutex
	thresholds Thresholds
	states     map[string]*TrailingState
	logger     *logger.Logger
}

func New(thresholds Thresholds, log *logger.Logger) *Tracker {
	return &Tracker{
		thresholds: thresholds,
		states:     make(map[string]*TrailingState),
		logger:     log.Named("tracker"),
	}
}

// Open starts tracking a position this process opened. Peak starts at 0.
func (t *Tracker) Open(symbol string, side types.PositionSide, entryPrice float64, openedAt time.Time) TrailingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &TrailingState{
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   entryPrice,
		OpenedAt:     openedAt,
		TrailingStop: optional.None[float64](),
	}
	t.states[symbol] = s

	t.logger.Info("Tracking new position",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("entry_price", entryPrice),
	)

	return *s
}

// Adopt starts tracking a venue position the tracker does not know, e.g. one
// left over from a previous run. Peak starts at the current PnL. An already
// tracked symbol is returned unchanged.
func (t *Tracker) Adopt(pos types.Position, pnlPct float64) TrailingState {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.states[pos.Symbol]; ok {
		return *s
	}

	pnlPct = roundPct(pnlPct)

	s := &TrailingState{
		Symbol:       pos.Symbol,
		Side:         pos.Side,
		EntryPrice:   pos.EntryPrice,
		OpenedAt:     pos.OpenedAt,
		PeakPnLPct:   pnlPct,
		TrailingStop: optional.None[float64](),
		LastPnLPct:   pnlPct,
	}
	t.states[pos.Symbol] = s

	t.logger.Info("Adopted venue position",
		zap.String("symbol", pos.Symbol),
		zap.String("side", string(pos.Side)),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("pnl_pct", pnlPct),
	)

	return *s
}

// Update folds the current PnL into the trailing state and returns the close
// decision. ok is false when the symbol is not tracked.
func (t *Tracker) Update(symbol string, pnlPct float64) (Decision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[symbol]
	if !ok {
		return Decision{Phase: PhaseIdle, PnLPct: pnlPct, TrailingStop: optional.None[float64]()}, false
	}

	pnlPct = roundPct(pnlPct)

	s.Updates++
	s.LastPnLPct = pnlPct

	if pnlPct > s.PeakPnLPct {
		s.PeakPnLPct = pnlPct
	}

	justArmed := false

	if s.PeakPnLPct >= roundPct(t.thresholds.MinPnLForTrailing) {
		if !s.Armed {
			justArmed = true
		}

		s.Armed = true
		s.TrailingStop = optional.Some(roundPct(s.PeakPnLPct - t.thresholds.TrailingStopTrigger))
	}

	d := Decision{
		Phase:        s.Phase(),
		PnLPct:       pnlPct,
		PeakPnLPct:   s.PeakPnLPct,
		TrailingStop: s.TrailingStop,
		JustArmed:    justArmed,
	}

	if s.Armed {
		stop := s.TrailingStop.Unwrap()
		if pnlPct <= stop {
			d.Close = true
			d.Reason = "trailing stop"
		}
	} else if pnlPct <= -roundPct(t.thresholds.FixedStopPct) {
		d.Close = true
		d.Reason = "fixed stop"
	}

	if justArmed {
		t.logger.Info("Trailing stop armed",
			zap.String("symbol", symbol),
			zap.Float64("peak_pnl_pct", s.PeakPnLPct),
			zap.Float64("trailing_stop_pct", s.TrailingStop.Unwrap()),
		)
	}

	return d, true
}

// Discard forgets the symbol. Called after a close or when the broker no
// longer reports the position.
func (t *Tracker) Discard(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.states, symbol)
}

// State returns a copy of the trailing state.
func (t *Tracker) State(symbol string) optional.Option[TrailingState] {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[symbol]
	if !ok {
		return optional.None[TrailingState]()
	}

	return optional.Some(*s)
}

// Phase returns IDLE for untracked symbols.
func (t *Tracker) Phase(symbol string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.states[symbol]
	if !ok {
		return PhaseIdle
	}

	return s.Phase()
}

// Symbols returns the tracked symbols in sorted order.
func (t *Tracker) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.states))
	for sym := range t.states {
		out = append(out, sym)
	}

	sort.Strings(out)

	return out
}
