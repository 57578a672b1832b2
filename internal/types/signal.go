package types

import (
	"sort"
	"strings"
)

type SignalType string

const (
	// SignalBuy asks the evaluator to open a long position
	SignalBuy SignalType = "BUY"
	// SignalSell asks the evaluator to open a short position
	SignalSell SignalType = "SELL"
	// SignalHold means the strategy sees its setup forming but has not triggered
	SignalHold SignalType = "HOLD"
	// SignalNone means the strategy has no opinion
	SignalNone SignalType = "NONE"
)

// Opens reports whether the signal asks for a new position.
func (s SignalType) Opens() bool {
	return s == SignalBuy || s == SignalSell
}

// Side maps BUY to long and SELL to short. HOLD and NONE have no side.
func (s SignalType) Side() (PositionSide, bool) {
	switch s {
	case SignalBuy:
		return PositionSideLong, true
	case SignalSell:
		return PositionSideShort, true
	default:
		return "", false
	}
}

// Signal is the output of a strategy function.
type Signal struct {
	Type SignalType
	// Strategy is the concrete strategy that produced the signal
	Strategy string
	// Reason is a short human readable explanation
	Reason string
	// Diagnostics are numeric values intended for logging only
	Diagnostics map[string]float64
}

// NoSignal builds a NONE signal for the given strategy.
func NoSignal(strategy, reason string) Signal {
	return Signal{Type: SignalNone, Strategy: strategy, Reason: reason, Diagnostics: map[string]float64{}}
}

// DiagnosticsString renders diagnostics as sorted key=value pairs.
func (s Signal) DiagnosticsString() string {
	keys := make([]string, 0, len(s.Diagnostics))
	for k := range s.Diagnostics {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder

	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}

		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(formatFloat(s.Diagnostics[k]))
	}

	return b.String()
}
