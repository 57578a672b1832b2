package engine_test

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-perp/e2e/trading/mockserver"
	"github.com/rxtech-lab/argo-perp/internal/broker"
	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/indicator"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/internal/trading/engine"
	engine_v1 "github.com/rxtech-lab/argo-perp/internal/trading/engine/engine_v1"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/internal/universe"
	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/mocks"
)

const sol = "SOL_USDC_PERP"

// LiveTradingE2ETestSuite runs the live loop against an in-process venue with
// signed requests and a real order adjuster.
type LiveTradingE2ETestSuite struct {
	suite.Suite
	server *mockserver.MockVenueServer
	client *venue.Client
	store  *store.MemoryStore
	engine *engine_v1.LiveTradingEngineV1
}

func TestLiveTradingE2E(t *testing.T) {
	suite.Run(t, new(LiveTradingE2ETestSuite))
}

// SetupTest starts the venue and builds an engine trading SOL with a strategy
// that always wants to be long.
func (s *LiveTradingE2ETestSuite) SetupTest() {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(2*i + 3)
	}

	secret := base64.StdEncoding.EncodeToString(seed)
	signer, err := venue.NewSigner(secret)
	s.Require().NoError(err)

	s.server = mockserver.NewMockVenueServer(mockserver.ServerConfig{
		Markets: map[string]mockserver.MarketSpec{
			sol: {TickSize: "0.01", StepSize: "0.01", MinQty: "0.01"},
		},
		Tickers: []venue.Ticker{
			{Symbol: sol, LastPrice: "100", PriceChangePercent: "2", Volume: "50000"},
		},
		PublicKey: signer.PublicKey(),
	})
	s.Require().NoError(s.server.Start(""))

	s.client, err = venue.NewClient(config.VenueConfig{
		BaseURL:   s.server.BaseURL(),
		WSURL:     s.server.WebSocketURL(),
		APIKey:    signer.PublicKey(),
		APISecret: secret,
		WindowMs:  5000,
	}, 2*time.Second)
	s.Require().NoError(err)

	s.store = store.NewMemoryStore()
	s.store.Load(mocks.Window(sol, time.Now().UTC().Truncate(time.Second), 250))

	s.engine = engine_v1.NewLiveTradingEngineV1(logger.NewNop())
	s.Require().NoError(s.engine.Strategies().Register("AlwaysLong", func(_ *indicator.Frame, _ string) (types.Signal, error) {
		return types.Signal{Type: types.SignalBuy, Reason: "e2e"}, nil
	}))

	s.Require().NoError(s.engine.Initialize(engine.LiveTradingEngineConfig{
		StrategyID:           "AlwaysLong",
		PositionAmountUSDC:   20,
		Leverage:             1,
		MinPnLForTrailing:    0.3,
		TrailingStopTrigger:  0.5,
		FixedStopPct:         2,
		MaxPositions:         5,
		LoopInterval:         20 * time.Millisecond,
		WindowSeconds:        600,
		MaxAge:               time.Minute,
		DrainTimeout:         time.Second,
		MaxConcurrentSymbols: 1,
	}))
	s.Require().NoError(s.engine.SetStore(s.store))
	s.Require().NoError(s.engine.SetBroker(broker.NewVenueBroker(s.client, 2*time.Second, logger.NewNop())))
	s.Require().NoError(s.engine.SetUniverse(universe.NewStaticManager(universe.Policy{Static: []string{sol}}, logger.NewNop())))
}

func (s *LiveTradingE2ETestSuite) TearDownTest() {
	s.NoError(s.server.Stop())
}
