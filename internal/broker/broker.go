// Package broker is the account side of the venue: list open positions, open
// a sized market position and close a percentage of one. The broker is the
// only source of truth for whether a position is open.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

type Broker interface {
	// ListOpenPositions returns open positions keyed by symbol; empty when none
	ListOpenPositions(ctx context.Context) (map[string]types.Position, error)
	// OpenMarket submits a market order sized quoteAmount / mark price
	OpenMarket(ctx context.Context, symbol string, quoteAmount float64, side types.PositionSide) (Ack, error)
	// ClosePercent submits a reduce-only market order for pct% of the position
	ClosePercent(ctx context.Context, symbol string, pct float64) (Ack, error)
}

// Ack is the acknowledgment of a submitted order.
type Ack struct {
	OrderID    string
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	ReduceOnly bool
	Simulated  bool

	// RealizedPnL is the net quote PnL of a paper close; zero from the venue
	RealizedPnL float64
	At          time.Time
}

type Mode string

const (
	ModeReal   Mode = "real"
	ModeDryRun Mode = "dry-run"
)

type ModeInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Simulated   bool   `json:"simulated"`
}

var modeRegistry = map[Mode]ModeInfo{
	ModeReal: {
		Name:        string(ModeReal),
		DisplayName: "Real run",
		Description: "Signed market orders on the venue",
	},
	ModeDryRun: {
		Name:        string(ModeDryRun),
		DisplayName: "Dry run",
		Description: "Orders are logged and filled on a paper book at the last price",
		Simulated:   true,
	},
}

// GetModeInfo returns the description of a broker mode.
func GetModeInfo(mode Mode) (ModeInfo, bool) {
	info, ok := modeRegistry[mode]

	return info, ok
}

// ModeFromFlags requires exactly one of the two run flags.
func ModeFromFlags(realRun, dryRun bool) (Mode, error) {
	switch {
	case realRun && dryRun:
		return "", errors.New(errors.ErrCodeInvalidConfiguration, "--real-run and --dry-run are mutually exclusive")
	case realRun:
		return ModeReal, nil
	case dryRun:
		return ModeDryRun, nil
	default:
		return "", errors.New(errors.ErrCodeInvalidConfiguration, "one of --real-run or --dry-run is required")
	}
}

func validatePercent(pct float64) error {
	if pct <= 0 || pct > 100 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "close percent must be in (0, 100], got %v", pct)
	}

	return nil
}
