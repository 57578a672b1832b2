package mocks

import (
	"math"
	"math/rand"
	"time"

	"github.com/rxtech-lab/argo-perp/internal/types"
)

// DataGenerator generates bar series for tests and replays.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	// Symbol is the perp symbol (e.g., "SOL_USDC_PERP")
	Symbol string
	// StartTime is the first bucket; it is truncated to IntervalSec
	StartTime time.Time
	// IntervalSec is the bucket width in seconds
	IntervalSec int
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement per bar (0.001 = 0.1%)
	Volatility float64
	// Trend is the total drift over the series (-0.05 to 0.05 for bearish to bullish)
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
}

// DefaultConfig returns one hour of one-second bars.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         "SOL_USDC_PERP",
		StartTime:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IntervalSec:    1,
		Count:          3600,
		InitialPrice:   100.0,
		Volatility:     0.0005,
		Trend:          0.0,
		VolumeBase:     50,
		VolumeVariance: 0.3,
	}
}

// Generate creates bars following a geometric Brownian motion. Every bar
// passes types.Bar.Validate.
func (g *DataGenerator) Generate(config GeneratorConfig) []types.Bar {
	interval := max(config.IntervalSec, 1)
	bars := make([]types.Bar, config.Count)
	price := config.InitialPrice
	ts := types.BucketStart(config.StartTime.Unix(), interval)

	for i := 0; i < config.Count; i++ {
		open := price

		// Box-Muller transform for a normal draw
		u1 := 1 - g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(max(config.Count, 1))

		closePrice := open * (1 + config.Volatility*z + drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		highExtension := g.rng.Float64() * config.Volatility * open * 0.5
		lowExtension := g.rng.Float64() * config.Volatility * open * 0.5

		high := math.Max(open, closePrice) + highExtension

		low := math.Min(open, closePrice) - lowExtension
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volume := config.VolumeBase * (1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		bars[i] = types.Bar{
			Symbol:      config.Symbol,
			IntervalSec: interval,
			Time:        time.Unix(ts, 0).UTC(),
			Open:        roundToDecimals(open, 4),
			High:        roundToDecimals(high, 4),
			Low:         roundToDecimals(low, 4),
			Close:       roundToDecimals(closePrice, 4),
			Volume:      roundToDecimals(volume, 2),
		}

		price = closePrice
		ts += int64(interval)
	}

	return bars
}

// GenerateMultiSymbol generates bars for multiple symbols over the same buckets.
func (g *DataGenerator) GenerateMultiSymbol(symbols []string, baseConfig GeneratorConfig) []types.Bar {
	var all []types.Bar

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		// Vary initial price and volatility slightly per symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		all = append(all, g.Generate(config)...)
	}

	return all
}

// Window returns count one-second bars whose newest bucket is end. The series
// is seeded so repeated calls return the same prices.
func Window(symbol string, end time.Time, count int) []types.Bar {
	config := DefaultConfig()
	config.Symbol = symbol
	config.Count = count
	config.StartTime = end.Add(-time.Duration(count-1) * time.Second)

	return NewDataGenerator(42).Generate(config)
}

// FromCloses builds one-second bars ending at end whose closes follow the
// given path. Opens chain from the previous close.
func FromCloses(symbol string, end time.Time, closes []float64) []types.Bar {
	bars := make([]types.Bar, len(closes))
	ts := end.Unix() - int64(len(closes)-1)

	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}

		bars[i] = types.Bar{
			Symbol:      symbol,
			IntervalSec: 1,
			Time:        time.Unix(ts+int64(i), 0).UTC(),
			Open:        open,
			High:        math.Max(open, c),
			Low:         math.Min(open, c),
			Close:       c,
			Volume:      1,
		}
	}

	return bars
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(val*pow) / pow
}
