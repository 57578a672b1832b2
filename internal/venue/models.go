package venue

// Ticker is one entry of GET /api/v1/tickers and GET /api/v1/ticker.
type Ticker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume,omitempty"`
}

type PriceFilter struct {
	TickSize string `json:"tickSize"`
}

type QuantityFilter struct {
	StepSize    string `json:"stepSize"`
	MinQuantity string `json:"minQuantity"`
	MinQty      string `json:"minQty,omitempty"`
}

// Min returns the minimum order quantity under either field name.
func (q QuantityFilter) Min() string {
	if q.MinQuantity != "" {
		return q.MinQuantity
	}

	return q.MinQty
}

type MarketFilters struct {
	Price    PriceFilter    `json:"price"`
	Quantity QuantityFilter `json:"quantity"`
}

// Market is one entry of GET /api/v1/markets.
type Market struct {
	Symbol         string        `json:"symbol"`
	MarketType     string        `json:"marketType,omitempty"`
	OrderBookState string        `json:"orderBookState,omitempty"`
	Filters        MarketFilters `json:"filters"`
}

// PositionEntry is one open position of the signed GET /api/v1/position.
// NetQuantity is signed: negative for shorts.
type PositionEntry struct {
	Symbol        string `json:"symbol"`
	NetQuantity   string `json:"netQuantity"`
	EntryPrice    string `json:"entryPrice"`
	MarkPrice     string `json:"markPrice"`
	PnlUnrealized string `json:"pnlUnrealized"`
}

// OrderRequest is the body of the signed POST /api/v1/order.
type OrderRequest struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	OrderType  string `json:"order_type"`
	Quantity   string `json:"quantity"`
	ReduceOnly bool   `json:"reduce_only"`
}

// OrderResponse is the acknowledgment of an accepted order.
type OrderResponse struct {
	ID               string `json:"id"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Status           string `json:"status"`
	Quantity         string `json:"quantity"`
	ExecutedQuantity string `json:"executedQuantity"`
	ExecutedPrice    string `json:"executedPrice,omitempty"`
}

// ErrorResponse is the body the venue sends with 4xx/5xx.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
