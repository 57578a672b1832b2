// Package mockserver provides a mock perpetual futures venue for testing.
// It implements the REST endpoints and the trade websocket the agent uses.
package mockserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/rxtech-lab/argo-perp/internal/venue"
)

// MarketSpec holds the filters of one listed market.
type MarketSpec struct {
	TickSize string
	StepSize string
	MinQty   string
}

// ServerConfig holds configuration for the mock server.
type ServerConfig struct {
	// Markets maps symbol to its filters
	Markets map[string]MarketSpec
	// Tickers are served in the given order
	Tickers []venue.Ticker
	// PublicKey is the base64 ED25519 key signed requests must verify against.
	// Empty disables signature checks.
	PublicKey string
}

type position struct {
	net   decimal.Decimal
	entry decimal.Decimal
}

// MockVenueServer is an in-process venue double.
type MockVenueServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader

	markets   map[string]MarketSpec
	tickers   map[string]venue.Ticker
	order     []string
	positions map[string]*position
	orders    []venue.OrderRequest
	publicKey string

	rejectNext    string
	hidePositions int

	wsMu          sync.Mutex
	subscriptions map[*websocket.Conn][]string
}

// NewMockVenueServer creates a new mock venue.
func NewMockVenueServer(config ServerConfig) *MockVenueServer {
	server := &MockVenueServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		markets:       make(map[string]MarketSpec),
		tickers:       make(map[string]venue.Ticker),
		positions:     make(map[string]*position),
		publicKey:     config.PublicKey,
		subscriptions: make(map[*websocket.Conn][]string),
	}

	for symbol, spec := range config.Markets {
		server.markets[symbol] = spec
	}

	for _, t := range config.Tickers {
		server.tickers[t.Symbol] = t
		server.order = append(server.order, t.Symbol)
	}

	return server
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockVenueServer) Start(address string) error {
	if address == "" {
		address = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.listener = listener

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/tickers", s.handleTickers).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/ticker", s.handleTicker).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/markets", s.handleMarkets).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/position", s.handlePositions).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/order", s.handleOrder).Methods(http.MethodPost)
	router.HandleFunc("/", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop closes every stream and shuts the server down.
func (s *MockVenueServer) Stop() error {
	s.CloseStreams()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// BaseURL returns the base URL for the server.
func (s *MockVenueServer) BaseURL() string {
	return "http://" + s.listener.Addr().String()
}

// WebSocketURL returns the WebSocket URL for the server.
func (s *MockVenueServer) WebSocketURL() string {
	return "ws://" + s.listener.Addr().String() + "/"
}

// SetPrice sets the last price of a symbol, adding a ticker if needed.
func (s *MockVenueServer) SetPrice(symbol, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickers[symbol]
	if !ok {
		t = venue.Ticker{Symbol: symbol, PriceChangePercent: "0", Volume: "0"}
		s.order = append(s.order, symbol)
	}

	t.LastPrice = price
	s.tickers[symbol] = t
}

// SetPosition installs an open position. A zero net quantity removes it.
func (s *MockVenueServer) SetPosition(symbol, netQty, entry string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	net := decimal.RequireFromString(netQty)
	if net.IsZero() {
		delete(s.positions, symbol)

		return
	}

	s.positions[symbol] = &position{net: net, entry: decimal.RequireFromString(entry)}
}

// RejectNextOrder makes the next order fail with message.
func (s *MockVenueServer) RejectNextOrder(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = message
}

// HidePositions makes the next n position queries return an empty list.
func (s *MockVenueServer) HidePositions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidePositions = n
}

// Orders returns every accepted order.
func (s *MockVenueServer) Orders() []venue.OrderRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]venue.OrderRequest, len(s.orders))
	copy(out, s.orders)

	return out
}

// NetQuantity returns the signed position size of a symbol.
func (s *MockVenueServer) NetQuantity(symbol string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.positions[symbol]; ok {
		return p.net
	}

	return decimal.Zero
}

// REST API Handlers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, venue.ErrorResponse{Code: code, Message: message})
}

// handleTickers handles GET /api/v1/tickers
func (s *MockVenueServer) handleTickers(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]venue.Ticker, 0, len(s.order))
	for _, sym := range s.order {
		out = append(out, s.tickers[sym])
	}

	writeJSON(w, http.StatusOK, out)
}

// handleTicker handles GET /api/v1/ticker?symbol=
func (s *MockVenueServer) handleTicker(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickers[r.URL.Query().Get("symbol")]
	if !ok {
		writeError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "unknown symbol")

		return
	}

	writeJSON(w, http.StatusOK, t)
}

// handleMarkets handles GET /api/v1/markets
func (s *MockVenueServer) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]venue.Market, 0, len(s.markets))
	for sym, spec := range s.markets {
		out = append(out, venue.Market{
			Symbol:         sym,
			MarketType:     "PERP",
			OrderBookState: "Open",
			Filters: venue.MarketFilters{
				Price:    venue.PriceFilter{TickSize: spec.TickSize},
				Quantity: venue.QuantityFilter{StepSize: spec.StepSize, MinQuantity: spec.MinQty},
			},
		})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *MockVenueServer) verify(r *http.Request, instruction string, params map[string]string) bool {
	if s.publicKey == "" {
		return true
	}

	ts, err := strconv.ParseInt(r.Header.Get(venue.HeaderTimestamp), 10, 64)
	if err != nil {
		return false
	}

	window, err := strconv.ParseInt(r.Header.Get(venue.HeaderWindow), 10, 64)
	if err != nil {
		return false
	}

	if r.Header.Get(venue.HeaderAPIKey) != s.publicKey {
		return false
	}

	msg := venue.SigningString(instruction, params, ts, window)

	return venue.Verify(s.publicKey, r.Header.Get(venue.HeaderSignature), msg)
}

// handlePositions handles the signed GET /api/v1/position
func (s *MockVenueServer) handlePositions(w http.ResponseWriter, r *http.Request) {
	if !s.verify(r, venue.InstructionPositionQuery, map[string]string{}) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]venue.PositionEntry, 0, len(s.positions))

	if s.hidePositions > 0 {
		s.hidePositions--
		writeJSON(w, http.StatusOK, out)

		return
	}

	for sym, p := range s.positions {
		mark := decimal.RequireFromString(s.tickers[sym].LastPrice)
		pnl := mark.Sub(p.entry).Mul(p.net)
		out = append(out, venue.PositionEntry{
			Symbol:        sym,
			NetQuantity:   p.net.String(),
			EntryPrice:    p.entry.String(),
			MarkPrice:     mark.String(),
			PnlUnrealized: pnl.String(),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleOrder handles the signed POST /api/v1/order. Market orders fill at the last price.
func (s *MockVenueServer) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req venue.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CLIENT_REQUEST", "malformed body")

		return
	}

	params := map[string]string{
		"symbol":      req.Symbol,
		"side":        req.Side,
		"order_type":  req.OrderType,
		"quantity":    req.Quantity,
		"reduce_only": strconv.FormatBool(req.ReduceOnly),
	}
	if !s.verify(r, venue.InstructionOrderExecute, params) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid signature")

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectNext != "" {
		msg := s.rejectNext
		s.rejectNext = ""
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", msg)

		return
	}

	spec, ok := s.markets[req.Symbol]
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_MARKET", "market not found")

		return
	}

	if req.OrderType != "Market" || (req.Side != "Bid" && req.Side != "Ask") {
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", "unsupported order")

		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil || !qty.IsPositive() {
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", "invalid quantity")

		return
	}

	if !qty.Mod(decimal.RequireFromString(spec.StepSize)).IsZero() {
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", "quantity not a multiple of step size")

		return
	}

	if qty.LessThan(decimal.RequireFromString(spec.MinQty)) {
		writeError(w, http.StatusBadRequest, "INVALID_ORDER", "quantity below minimum")

		return
	}

	price := decimal.RequireFromString(s.tickers[req.Symbol].LastPrice)

	signed := qty
	if req.Side == "Ask" {
		signed = qty.Neg()
	}

	p, exists := s.positions[req.Symbol]

	if req.ReduceOnly {
		if !exists || p.net.Sign() == signed.Sign() {
			writeError(w, http.StatusBadRequest, "INVALID_ORDER", "reduce only order would increase position")

			return
		}

		if signed.Abs().GreaterThan(p.net.Abs()) {
			signed = p.net.Neg()
		}
	}

	switch {
	case !exists:
		s.positions[req.Symbol] = &position{net: signed, entry: price}
	case p.net.Sign() == signed.Sign():
		total := p.net.Add(signed)
		p.entry = p.entry.Mul(p.net).Add(price.Mul(signed)).Div(total)
		p.net = total
	default:
		p.net = p.net.Add(signed)
		if p.net.IsZero() {
			delete(s.positions, req.Symbol)
		}
	}

	s.orders = append(s.orders, req)

	writeJSON(w, http.StatusOK, venue.OrderResponse{
		ID:               uuid.NewString(),
		Symbol:           req.Symbol,
		Side:             req.Side,
		Status:           "Filled",
		Quantity:         req.Quantity,
		ExecutedQuantity: signed.Abs().String(),
		ExecutedPrice:    price.String(),
	})
}

// WebSocket

type subscribeFrame struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// handleWebSocket accepts trade stream subscriptions.
func (s *MockVenueServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	defer func() {
		s.wsMu.Lock()
		delete(s.subscriptions, conn)
		s.wsMu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame subscribeFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Method != "SUBSCRIBE" {
			continue
		}

		s.wsMu.Lock()
		s.subscriptions[conn] = append(s.subscriptions[conn], frame.Params...)
		s.wsMu.Unlock()
	}
}

// Subscribers returns how many connections are subscribed to stream.
func (s *MockVenueServer) Subscribers(stream string) int {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	n := 0

	for _, streams := range s.subscriptions {
		for _, st := range streams {
			if st == stream {
				n++
			}
		}
	}

	return n
}

// WaitForSubscribers polls until stream has at least n subscribers.
func (s *MockVenueServer) WaitForSubscribers(stream string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Subscribers(stream) >= n {
			return true
		}

		time.Sleep(10 * time.Millisecond)
	}

	return false
}

// PublishTrade pushes a trade frame to every subscriber of trade.<symbol>
// and returns how many connections received it.
func (s *MockVenueServer) PublishTrade(symbol, price, qty string, tsMs int64) int {
	stream := "trade." + symbol
	frame := map[string]any{
		"stream": stream,
		"data": map[string]any{
			"e": "trade",
			"s": symbol,
			"p": price,
			"q": qty,
			"T": tsMs,
		},
	}

	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	sent := 0

	for conn, streams := range s.subscriptions {
		for _, st := range streams {
			if st != stream {
				continue
			}

			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteJSON(frame); err == nil {
				sent++
			}
		}
	}

	return sent
}

// CloseStreams drops every websocket connection.
func (s *MockVenueServer) CloseStreams() {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()

	for conn := range s.subscriptions {
		conn.Close()
	}

	s.subscriptions = make(map[*websocket.Conn][]string)
}
