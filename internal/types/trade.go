package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one public trade tick from the venue stream. Price and size are kept
// as decimals so that volume sums stay exact until a bar is flushed.
type Trade struct {
	Symbol      string
	Price       decimal.Decimal
	Size        decimal.Decimal
	TimestampMs int64
}

// Seconds returns the venue timestamp truncated to whole seconds.
func (t Trade) Seconds() int64 {
	return t.TimestampMs / 1000
}

// Time returns the venue timestamp as a UTC time.
func (t Trade) Time() time.Time {
	return time.UnixMilli(t.TimestampMs).UTC()
}
