package broker

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/broker/commission_fee"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// PriceSource provides the last price of a symbol.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// PriceFunc adapts a function to PriceSource.
type PriceFunc func(ctx context.Context, symbol string) (float64, error)

func (f PriceFunc) Price(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

// TickerPriceSource reads last prices from the public ticker endpoint.
type TickerPriceSource struct {
	client interface {
		Ticker(ctx context.Context, symbol string) (venue.Ticker, error)
	}
}

func NewTickerPriceSource(client VenueClient) *TickerPriceSource {
	return &TickerPriceSource{client: client}
}

func (s *TickerPriceSource) Price(ctx context.Context, symbol string) (float64, error) {
	t, err := s.client.Ticker(ctx, symbol)
	if err != nil {
		return 0, err
	}

	p, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeBadPrice, err, "%s: bad last price %q", symbol, t.LastPrice)
	}

	return p, nil
}

// Fill is one simulated execution on the paper book.
type Fill struct {
	OrderID     string             `yaml:"order_id"`
	Symbol      string             `yaml:"symbol"`
	Side        types.PositionSide `yaml:"side"`
	Quantity    float64            `yaml:"quantity"`
	Price       float64            `yaml:"price"`
	ReduceOnly  bool               `yaml:"reduce_only"`
	Fee         float64            `yaml:"fee"`
	RealizedPnL float64            `yaml:"realized_pnl"`
	At          time.Time          `yaml:"at"`
}

type paperPosition struct {
	side     types.PositionSide
	entry    float64
	amount   float64
	openedAt time.Time
}

// DryRunBroker logs intended orders and fills them on an in-memory paper
// book at the price reported by its PriceSource.
type DryRunBroker struct {
	prices PriceSource
	fee    commission_fee.CommissionFee
	logger *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	book  map[string]*paperPosition
	fills []Fill
}

var _ Broker = (*DryRunBroker)(nil)

type DryRunOption func(*DryRunBroker)

// WithCommission charges fee on every paper fill. Realized PnL is net of the
// closing fee.
func WithCommission(fee commission_fee.CommissionFee) DryRunOption {
	return func(b *DryRunBroker) {
		b.fee = fee
	}
}

// WithClock replaces the wall clock, used by replays.
func WithClock(now func() time.Time) DryRunOption {
	return func(b *DryRunBroker) {
		b.now = now
	}
}

func NewDryRunBroker(prices PriceSource, log *logger.Logger, opts ...DryRunOption) *DryRunBroker {
	b := &DryRunBroker{
		prices: prices,
		fee:    commission_fee.NewZeroCommissionFee(),
		logger: log.Named("dry_run_broker"),
		now:    time.Now,
		book:   make(map[string]*paperPosition),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

func (b *DryRunBroker) price(ctx context.Context, symbol string) (float64, error) {
	p, err := b.prices.Price(ctx, symbol)
	if err != nil {
		return 0, err
	}

	if !(p > 0) {
		return 0, errors.Newf(errors.ErrCodeBadPrice, "%s: unusable price %v", symbol, p)
	}

	return p, nil
}

// ListOpenPositions implements Broker.
func (b *DryRunBroker) ListOpenPositions(ctx context.Context) (map[string]types.Position, error) {
	b.mu.Lock()
	snapshot := make(map[string]paperPosition, len(b.book))

	for sym, p := range b.book {
		snapshot[sym] = *p
	}
	b.mu.Unlock()

	out := make(map[string]types.Position, len(snapshot))

	for sym, p := range snapshot {
		mark, err := b.price(ctx, sym)
		if err != nil {
			b.logger.Warn("No mark price for paper position, using entry", zap.String("symbol", sym), zap.Error(err))
			mark = p.entry
		}

		pos := types.Position{
			Symbol:     sym,
			Side:       p.side,
			EntryPrice: p.entry,
			MarkPrice:  mark,
			Amount:     p.amount,
			OpenedAt:   p.openedAt,
		}
		pos.UnrealizedPnL = pos.PnLUSD()
		out[sym] = pos
	}

	return out, nil
}

// OpenMarket implements Broker. One paper position per symbol.
func (b *DryRunBroker) OpenMarket(ctx context.Context, symbol string, quoteAmount float64, side types.PositionSide) (Ack, error) {
	price, err := b.price(ctx, symbol)
	if err != nil {
		return Ack{}, err
	}

	qty := decimal.NewFromFloat(quoteAmount).Div(decimal.NewFromFloat(price)).Truncate(8)
	if !qty.IsPositive() {
		return Ack{}, errors.Newf(errors.ErrCodeInsufficientSize, "%s: quote %v at %v rounds to zero", symbol, quoteAmount, price)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.book[symbol]; exists {
		return Ack{}, errors.Newf(errors.ErrCodeBrokerRejected, "%s: paper position already open", symbol)
	}

	now := b.now()
	b.book[symbol] = &paperPosition{side: side, entry: price, amount: qty.InexactFloat64(), openedAt: now}

	ack := Ack{
		OrderID:   uuid.NewString(),
		Symbol:    symbol,
		Side:      side.OrderSide(),
		Quantity:  qty,
		Price:     decimal.NewFromFloat(price),
		Simulated: true,
		At:        now,
	}

	b.fills = append(b.fills, Fill{
		OrderID:  ack.OrderID,
		Symbol:   symbol,
		Side:     side,
		Quantity: qty.InexactFloat64(),
		Price:    price,
		Fee:      b.fee.Calculate(qty.InexactFloat64() * price),
		At:       now,
	})

	b.logger.Info("DRY RUN open",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("quantity", qty.String()),
		zap.Float64("price", price),
	)

	return ack, nil
}

// ClosePercent implements Broker.
func (b *DryRunBroker) ClosePercent(ctx context.Context, symbol string, pct float64) (Ack, error) {
	if err := validatePercent(pct); err != nil {
		return Ack{}, err
	}

	price, err := b.price(ctx, symbol)
	if err != nil {
		return Ack{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.book[symbol]
	if !ok {
		return Ack{}, errors.Newf(errors.ErrCodeBrokerInconsistent, "close %s: no paper position", symbol)
	}

	qty := p.amount * pct / 100
	if pct == 100 {
		qty = p.amount
	}

	closed := types.Position{Side: p.side, EntryPrice: p.entry, MarkPrice: price, Amount: qty}
	fee := b.fee.Calculate(qty * price)
	realized := closed.PnLUSD() - fee

	p.amount -= qty
	if pct == 100 || p.amount <= 0 {
		delete(b.book, symbol)
	}

	now := b.now()
	ack := Ack{
		OrderID:     uuid.NewString(),
		Symbol:      symbol,
		Side:        p.side.Opposite().OrderSide(),
		Quantity:    decimal.NewFromFloat(qty),
		Price:       decimal.NewFromFloat(price),
		ReduceOnly:  true,
		Simulated:   true,
		RealizedPnL: realized,
		At:          now,
	}

	b.fills = append(b.fills, Fill{
		OrderID:     ack.OrderID,
		Symbol:      symbol,
		Side:        p.side.Opposite(),
		Quantity:    qty,
		Price:       price,
		ReduceOnly:  true,
		Fee:         fee,
		RealizedPnL: realized,
		At:          now,
	})

	b.logger.Info("DRY RUN close",
		zap.String("symbol", symbol),
		zap.Float64("percent", pct),
		zap.Float64("quantity", qty),
		zap.Float64("price", price),
		zap.Float64("realized_pnl", realized),
	)

	return ack, nil
}

// Fills returns the simulated executions ordered by time.
func (b *DryRunBroker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Fill, len(b.fills))
	copy(out, b.fills)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })

	return out
}
