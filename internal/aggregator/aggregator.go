// Package aggregator folds a venue trade stream into one-second OHLCV bars and
// keeps one supervised stream per instrument.
package aggregator

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/metrics"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// BarSink receives flushed bars.
type BarSink interface {
	UpsertBar(ctx context.Context, bar types.Bar) error
}

type bucket struct {
	start  int64
	open   decimal.Decimal
	high   decimal.Decimal
	low    decimal.Decimal
	close  decimal.Decimal
	volume decimal.Decimal
}

// Aggregator owns the in-flight bucket of one instrument. It is not safe for
// concurrent use; its supervisor is the only caller.
type Aggregator struct {
	symbol      string
	interval    int
	sink        BarSink
	logger      *logger.Logger
	current     *bucket
	lastFlushed int64

	flushAttempts int
	retryBackoff  time.Duration
}

func New(symbol string, intervalSec int, sink BarSink, log *logger.Logger) *Aggregator {
	if intervalSec <= 0 {
		intervalSec = 1
	}

	return &Aggregator{
		symbol:        symbol,
		interval:      intervalSec,
		sink:          sink,
		logger:        log.Named("aggregator").ForSymbol(symbol),
		flushAttempts: 3,
		retryBackoff:  200 * time.Millisecond,
	}
}

// OnTrade folds one tick. A bar is flushed only when a tick opens a newer
// bucket; ticks for an older bucket are dropped. The returned error is a
// flush failure after retries.
func (a *Aggregator) OnTrade(ctx context.Context, t types.Trade) error {
	if !t.Size.IsPositive() || !t.Price.IsPositive() {
		return nil
	}

	start := types.BucketStart(t.Seconds(), a.interval)

	switch {
	case a.current == nil:
		a.open(start, t)
	case start == a.current.start:
		a.current.high = decimal.Max(a.current.high, t.Price)
		a.current.low = decimal.Min(a.current.low, t.Price)
		a.current.close = t.Price
		a.current.volume = a.current.volume.Add(t.Size)
	case start > a.current.start:
		done := a.current
		a.open(start, t)

		if err := a.flush(ctx, done); err != nil {
			return err
		}
	default:
		metrics.LateTicksTotal.WithLabelValues(a.symbol).Inc()
		a.logger.Warn("Dropping late tick",
			zap.Int64("bucket", start),
			zap.Int64("current_bucket", a.current.start),
			zap.String("price", t.Price.String()),
		)

		return nil
	}

	metrics.TicksTotal.WithLabelValues(a.symbol).Inc()

	return nil
}

func (a *Aggregator) open(start int64, t types.Trade) {
	a.current = &bucket{
		start:  start,
		open:   t.Price,
		high:   t.Price,
		low:    t.Price,
		close:  t.Price,
		volume: t.Size,
	}
}

// Current returns the in-flight bar, if any.
func (a *Aggregator) Current() optional.Option[types.Bar] {
	if a.current == nil {
		return optional.None[types.Bar]()
	}

	return optional.Some(a.toBar(a.current))
}

func (a *Aggregator) toBar(b *bucket) types.Bar {
	return types.Bar{
		Symbol:      a.symbol,
		IntervalSec: a.interval,
		Time:        time.Unix(b.start, 0).UTC(),
		Open:        b.open.InexactFloat64(),
		High:        b.high.InexactFloat64(),
		Low:         b.low.InexactFloat64(),
		Close:       b.close.InexactFloat64(),
		Volume:      b.volume.InexactFloat64(),
	}
}

func (a *Aggregator) flush(ctx context.Context, b *bucket) error {
	bar := a.toBar(b)

	// emitted bucket starts are strictly increasing
	if b.start <= a.lastFlushed {
		return errors.Newf(errors.ErrCodeInvalidBar, "bucket %d is not after last flushed %d", b.start, a.lastFlushed)
	}

	var err error

	for attempt := 1; attempt <= a.flushAttempts; attempt++ {
		if err = a.sink.UpsertBar(ctx, bar); err == nil {
			a.lastFlushed = b.start
			metrics.BarsFlushedTotal.WithLabelValues(a.symbol).Inc()

			return nil
		}

		if attempt == a.flushAttempts {
			break
		}

		a.logger.Warn("Bar flush failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("kind", errors.KindOf(err)),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return errors.Wrapf(errors.ErrCodeStoreUnavailable, ctx.Err(), "flush bar %d of %s", b.start, a.symbol)
		case <-time.After(a.retryBackoff * time.Duration(attempt)):
		}
	}

	return errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "flush bar %d of %s", b.start, a.symbol)
}
