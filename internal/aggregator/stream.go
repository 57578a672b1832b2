package aggregator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type tradeEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type tradePayload struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// StreamName returns the trade channel of an instrument.
func StreamName(symbol string) string {
	return "trade." + symbol
}

// TradeStream is one websocket subscription to the trade channel of an instrument.
type TradeStream struct {
	conn   *websocket.Conn
	symbol string
}

// DialTradeStream connects to url and subscribes to the symbol's trade channel.
func DialTradeStream(ctx context.Context, dialer *websocket.Dialer, url, symbol string, id int64) (*TradeStream, error) {
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeTransportClosed, err, "dial trade stream for %s", symbol)
	}

	frame := subscribeFrame{Method: "SUBSCRIBE", Params: []string{StreamName(symbol)}, ID: id}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(frame); err != nil {
		_ = conn.Close()

		return nil, errors.Wrapf(errors.ErrCodeTransportClosed, err, "subscribe %s", StreamName(symbol))
	}

	return &TradeStream{conn: conn, symbol: symbol}, nil
}

// ReadMessage blocks for the next raw frame.
func (s *TradeStream) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeTransportClosed, err, "read trade stream of %s", s.symbol)
	}

	return data, nil
}

// Ping sends a liveness probe.
func (s *TradeStream) Ping() error {
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
		return errors.Wrapf(errors.ErrCodeTransportClosed, err, "ping trade stream of %s", s.symbol)
	}

	return nil
}

func (s *TradeStream) Close() error {
	return s.conn.Close()
}

// DecodeTrade parses a trade frame, flat or wrapped in a stream envelope.
// Anything that is not a trade for symbol reports false.
func DecodeTrade(symbol string, data []byte) (types.Trade, bool) {
	payload := data

	var env tradeEnvelope
	if err := json.Unmarshal(data, &env); err == nil && len(env.Data) > 0 {
		if env.Stream != "" && !strings.HasPrefix(env.Stream, "trade.") {
			return types.Trade{}, false
		}

		payload = env.Data
	}

	var p tradePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return types.Trade{}, false
	}

	if p.Price == "" || p.Quantity == "" || p.TradeTime <= 0 {
		return types.Trade{}, false
	}

	if p.Symbol != "" && p.Symbol != symbol {
		return types.Trade{}, false
	}

	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return types.Trade{}, false
	}

	size, err := decimal.NewFromString(p.Quantity)
	if err != nil {
		return types.Trade{}, false
	}

	return types.Trade{Symbol: symbol, Price: price, Size: size, TimestampMs: p.TradeTime}, true
}
