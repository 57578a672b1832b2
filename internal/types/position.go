package types

import (
	"strconv"
	"time"
)

type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// OrderSide returns the venue order side that opens a position on this side.
func (s PositionSide) OrderSide() string {
	if s == PositionSideShort {
		return "Ask"
	}

	return "Bid"
}

// Opposite returns the side that closes the position.
func (s PositionSide) Opposite() PositionSide {
	if s == PositionSideShort {
		return PositionSideLong
	}

	return PositionSideShort
}

// Position mirrors an open position reported by the venue.
type Position struct {
	Symbol        string       `yaml:"symbol" json:"symbol"`
	Side          PositionSide `yaml:"side" json:"side"`
	EntryPrice    float64      `yaml:"entry_price" json:"entry_price"`
	MarkPrice     float64      `yaml:"mark_price" json:"mark_price"`
	Amount        float64      `yaml:"amount" json:"amount"`
	UnrealizedPnL float64      `yaml:"unrealized_pnl" json:"unrealized_pnl"`
	OpenedAt      time.Time    `yaml:"opened_at" json:"opened_at"`
}

// PnLUSD reconstructs the unrealized PnL in quote units from entry, mark and amount.
func (p Position) PnLUSD() float64 {
	if p.Side == PositionSideShort {
		return (p.EntryPrice - p.MarkPrice) * p.Amount
	}

	return (p.MarkPrice - p.EntryPrice) * p.Amount
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
