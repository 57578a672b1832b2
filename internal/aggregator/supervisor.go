package aggregator

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/metrics"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// SupervisorConfig holds the transport settings of one trade stream.
type SupervisorConfig struct {
	URL              string
	IntervalSeconds  int
	ReconnectBackoff time.Duration
	IdleTimeout      time.Duration
}

// Supervisor keeps a trade stream of one instrument alive and feeds its
// aggregator. Transport failures are recovered here and never surfaced.
type Supervisor struct {
	symbol string
	cfg    SupervisorConfig
	agg    *Aggregator
	dialer *websocket.Dialer
	logger *logger.Logger
	subID  int64
}

func NewSupervisor(symbol string, cfg SupervisorConfig, sink BarSink, subID int64, log *logger.Logger) *Supervisor {
	return &Supervisor{
		symbol: symbol,
		cfg:    cfg,
		agg:    New(symbol, cfg.IntervalSeconds, sink, log),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: log.Named("stream").ForSymbol(symbol),
		subID:  subID,
	}
}

// Run reconnects with a fixed backoff until ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		metrics.ReconnectsTotal.WithLabelValues(s.symbol).Inc()
		s.logger.Warn("Trade stream closed, reconnecting",
			zap.Duration("backoff", s.cfg.ReconnectBackoff),
			zap.String("kind", errors.KindOf(err)),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.ReconnectBackoff):
		}
	}
}

// session runs one connection until it fails or ctx is done. Reads happen on
// a separate goroutine so an idle period never poisons the connection.
func (s *Supervisor) session(ctx context.Context) error {
	stream, err := DialTradeStream(ctx, s.dialer, s.cfg.URL, s.symbol, s.subID)
	if err != nil {
		return err
	}

	s.logger.Info("Subscribed to trade stream", zap.String("stream", StreamName(s.symbol)))

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = stream.Close()
	}()

	frames := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		for {
			data, err := stream.ReadMessage()
			if err != nil {
				readErr <- err

				return
			}

			select {
			case frames <- data:
			case <-done:
				return
			}
		}
	}()

	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case data := <-frames:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}

			idle.Reset(s.cfg.IdleTimeout)

			trade, ok := DecodeTrade(s.symbol, data)
			if !ok {
				continue
			}

			if err := s.agg.OnTrade(ctx, trade); err != nil {
				s.logger.Error("Failed to persist bar",
					zap.String("kind", errors.KindOf(err)),
					zap.Error(err),
				)
			}
		case <-idle.C:
			s.logger.Debug("No trades within idle timeout, checking liveness", zap.Duration("idle_timeout", s.cfg.IdleTimeout))

			if err := stream.Ping(); err != nil {
				return err
			}

			idle.Reset(s.cfg.IdleTimeout)
		}
	}
}
