package broker

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// VenueClient is the subset of the venue REST client the broker uses.
type VenueClient interface {
	Markets(ctx context.Context) ([]venue.Market, error)
	Ticker(ctx context.Context, symbol string) (venue.Ticker, error)
	Positions(ctx context.Context) ([]venue.PositionEntry, error)
	ExecuteOrder(ctx context.Context, order venue.OrderRequest) (venue.OrderResponse, error)
}

// VenueBroker sends real orders. Every call runs under callTimeout.
type VenueBroker struct {
	client      VenueClient
	callTimeout time.Duration
	logger      *logger.Logger
	now         func() time.Time

	mu      sync.Mutex
	markets map[string]MarketFilters
}

var _ Broker = (*VenueBroker)(nil)

func NewVenueBroker(client VenueClient, callTimeout time.Duration, log *logger.Logger) *VenueBroker {
	return &VenueBroker{
		client:      client,
		callTimeout: callTimeout,
		logger:      log.Named("broker"),
		now:         time.Now,
	}
}

// ListOpenPositions implements Broker.
func (b *VenueBroker) ListOpenPositions(ctx context.Context) (map[string]types.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	entries, err := b.client.Positions(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]types.Position, len(entries))

	for _, e := range entries {
		pos, ok, err := positionFromEntry(e)
		if err != nil {
			return nil, err
		}

		if ok {
			out[pos.Symbol] = pos
		}
	}

	return out, nil
}

func positionFromEntry(e venue.PositionEntry) (types.Position, bool, error) {
	fields := map[string]string{
		"netQuantity": e.NetQuantity,
		"entryPrice":  e.EntryPrice,
		"markPrice":   e.MarkPrice,
	}

	parsed := make(map[string]decimal.Decimal, len(fields))

	for name, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return types.Position{}, false, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "position %s: bad %s %q", e.Symbol, name, raw)
		}

		parsed[name] = d
	}

	net := parsed["netQuantity"]
	if net.IsZero() {
		return types.Position{}, false, nil
	}

	side := types.PositionSideLong
	if net.IsNegative() {
		side = types.PositionSideShort
	}

	pos := types.Position{
		Symbol:     e.Symbol,
		Side:       side,
		EntryPrice: parsed["entryPrice"].InexactFloat64(),
		MarkPrice:  parsed["markPrice"].InexactFloat64(),
		Amount:     net.Abs().InexactFloat64(),
	}

	// display only
	if pnl, err := decimal.NewFromString(e.PnlUnrealized); err == nil {
		pos.UnrealizedPnL = pnl.InexactFloat64()
	}

	return pos, true, nil
}

// OpenMarket implements Broker.
func (b *VenueBroker) OpenMarket(ctx context.Context, symbol string, quoteAmount float64, side types.PositionSide) (Ack, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	filters, err := b.filters(ctx, symbol)
	if err != nil {
		return Ack{}, err
	}

	ticker, err := b.client.Ticker(ctx, symbol)
	if err != nil {
		return Ack{}, err
	}

	price, err := filters.Price(ticker.LastPrice)
	if err != nil {
		return Ack{}, err
	}

	qty, err := filters.Quantity(decimal.NewFromFloat(quoteAmount), price)
	if err != nil {
		return Ack{}, err
	}

	return b.submit(ctx, venue.OrderRequest{
		Symbol:    symbol,
		Side:      side.OrderSide(),
		OrderType: "Market",
		Quantity:  qty.String(),
	}, price)
}

// ClosePercent implements Broker.
func (b *VenueBroker) ClosePercent(ctx context.Context, symbol string, pct float64) (Ack, error) {
	if err := validatePercent(pct); err != nil {
		return Ack{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	filters, err := b.filters(ctx, symbol)
	if err != nil {
		return Ack{}, err
	}

	entries, err := b.client.Positions(ctx)
	if err != nil {
		return Ack{}, err
	}

	var (
		pos   types.Position
		found bool
		net   decimal.Decimal
	)

	for _, e := range entries {
		if e.Symbol != symbol {
			continue
		}

		pos, found, err = positionFromEntry(e)
		if err != nil {
			return Ack{}, err
		}

		net, _ = decimal.NewFromString(e.NetQuantity)
	}

	if !found {
		return Ack{}, errors.Newf(errors.ErrCodeBrokerInconsistent, "close %s: no open position at the venue", symbol)
	}

	qty := Adjust(net.Abs().Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)), filters.StepSize)
	if !qty.IsPositive() {
		return Ack{}, errors.Newf(errors.ErrCodeInsufficientSize, "close %s: %v%% of %s rounds to zero", symbol, pct, net.Abs())
	}

	return b.submit(ctx, venue.OrderRequest{
		Symbol:     symbol,
		Side:       pos.Side.Opposite().OrderSide(),
		OrderType:  "Market",
		Quantity:   qty.String(),
		ReduceOnly: true,
	}, decimal.NewFromFloat(pos.MarkPrice))
}

func (b *VenueBroker) submit(ctx context.Context, req venue.OrderRequest, price decimal.Decimal) (Ack, error) {
	resp, err := b.client.ExecuteOrder(ctx, req)
	if err != nil {
		return Ack{}, err
	}

	ack := Ack{
		OrderID:    resp.ID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   decimal.RequireFromString(req.Quantity),
		Price:      price,
		ReduceOnly: req.ReduceOnly,
		At:         b.now(),
	}

	if executed, err := decimal.NewFromString(resp.ExecutedPrice); err == nil && executed.IsPositive() {
		ack.Price = executed
	}

	b.logger.Info("Order acknowledged",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("quantity", req.Quantity),
		zap.Bool("reduce_only", req.ReduceOnly),
		zap.String("order_id", resp.ID),
		zap.String("status", resp.Status),
	)

	return ack, nil
}

// filters returns cached market filters, reloading the market list once when
// the symbol is unknown.
func (b *VenueBroker) filters(ctx context.Context, symbol string) (MarketFilters, error) {
	b.mu.Lock()
	f, ok := b.markets[symbol]
	b.mu.Unlock()

	if ok {
		return f, nil
	}

	markets, err := b.client.Markets(ctx)
	if err != nil {
		return MarketFilters{}, err
	}

	loaded := make(map[string]MarketFilters, len(markets))

	for _, m := range markets {
		mf, err := FiltersFromMarket(m)
		if err != nil {
			b.logger.Warn("Skipping market with unparsable filters", zap.String("symbol", m.Symbol), zap.Error(err))

			continue
		}

		loaded[m.Symbol] = mf
	}

	b.mu.Lock()
	b.markets = loaded
	b.mu.Unlock()

	f, ok = loaded[symbol]
	if !ok {
		return MarketFilters{}, errors.Newf(errors.ErrCodeMarketUnavailable, "market %s is not listed", symbol)
	}

	return f, nil
}
