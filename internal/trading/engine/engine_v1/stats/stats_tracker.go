package stats

import (
	"os"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// ClosedTrade is one position closed by the loop.
type ClosedTrade struct {
	Symbol       string    `yaml:"symbol"`
	Side         string    `yaml:"side"`
	Strategy     string    `yaml:"strategy"`
	Reason       string    `yaml:"reason"`
	PnLPct       float64   `yaml:"pnl_pct"`
	PnLUSD       float64   `yaml:"pnl_usd"`
	// MarginPnLPct is PnLUSD over the posted margin (amount / leverage)
	MarginPnLPct float64   `yaml:"margin_pnl_pct"`
	OpenedAt     time.Time `yaml:"opened_at"`
	ClosedAt     time.Time `yaml:"closed_at"`
}

// StatsAccumulator holds running statistics.
type StatsAccumulator struct {
	Iterations    int
	Evaluations   int
	Opens         int
	Closes        int
	WinningTrades int
	LosingTrades  int
	TotalPnLPct   float64
	TotalPnLUSD   float64
	MaxProfitPct  float64
	MaxLossPct    float64
	MaxDrawdown   float64
	PeakPnLPct    float64
	HoldingTimes  []int // in seconds
	ErrorsByKind  map[string]int
}

// HoldingTime summarizes position lifetimes in seconds.
type HoldingTime struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
	Avg int `yaml:"avg"`
}

// Report is the YAML rendering of the statistics.
type Report struct {
	RunID          string         `yaml:"run_id"`
	Date           string         `yaml:"date"`
	SessionStart   time.Time      `yaml:"session_start"`
	LastUpdated    time.Time      `yaml:"last_updated"`
	Strategy       string         `yaml:"strategy"`
	Iterations     int            `yaml:"iterations"`
	Evaluations    int            `yaml:"evaluations"`
	Opens          int            `yaml:"opens"`
	Closes         int            `yaml:"closes"`
	Wins           int            `yaml:"wins"`
	Losses         int            `yaml:"losses"`
	WinRate        float64        `yaml:"win_rate"`
	TotalPnLPct    float64        `yaml:"total_pnl_pct"`
	TotalPnLUSD    float64        `yaml:"total_pnl_usd"`
	AvgPnLPct      float64        `yaml:"avg_pnl_pct"`
	MaxProfitPct   float64        `yaml:"max_profit_pct"`
	MaxLossPct     float64        `yaml:"max_loss_pct"`
	MaxDrawdownPct float64        `yaml:"max_drawdown_pct"`
	HoldingTime    HoldingTime    `yaml:"holding_time_seconds"`
	ErrorsByKind   map[string]int `yaml:"errors_by_kind,omitempty"`
	Trades         []ClosedTrade  `yaml:"trades,omitempty"`
}

// StatsTracker accumulates loop statistics, daily and since session start.
type StatsTracker struct {
	runID        string
	sessionStart time.Time
	currentDate  string
	strategy     string

	// Daily accumulators (reset on date boundary)
	dailyStats *StatsAccumulator

	// Cumulative accumulators (from session start)
	cumulativeStats *StatsAccumulator

	trades []ClosedTrade

	statsOutputPath string

	mu     sync.Mutex
	logger *logger.Logger
	now    func() time.Time
}

// NewStatsTracker creates a new StatsTracker instance.
func NewStatsTracker(log *logger.Logger) *StatsTracker {
	return &StatsTracker{
		dailyStats:      newStatsAccumulator(),
		cumulativeStats: newStatsAccumulator(),
		logger:          log,
		now:             time.Now,
	}
}

func newStatsAccumulator() *StatsAccumulator {
	return &StatsAccumulator{
		HoldingTimes: make([]int, 0),
		ErrorsByKind: make(map[string]int),
	}
}

// Initialize sets up the tracker with session information.
func (s *StatsTracker) Initialize(runID string, sessionStart time.Time, strategy string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = runID
	s.sessionStart = sessionStart
	s.currentDate = sessionStart.UTC().Format(time.DateOnly)
	s.strategy = strategy

	s.logger.Info("Stats tracker initialized",
		zap.String("run_id", runID),
		zap.String("strategy", strategy),
	)
}

// SetOutputPath sets where WriteStatsYAML writes. Empty disables writing.
func (s *StatsTracker) SetOutputPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statsOutputPath = path
}

// SetClock replaces the wall clock used for LastUpdated.
func (s *StatsTracker) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.now = now
}

func (s *StatsTracker) both(fn func(acc *StatsAccumulator)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.dailyStats)
	fn(s.cumulativeStats)
}

// RecordIteration counts one loop pass and its evaluations.
func (s *StatsTracker) RecordIteration(evaluations int) {
	s.both(func(acc *StatsAccumulator) {
		acc.Iterations++
		acc.Evaluations += evaluations
	})
}

// RecordOpen counts an acknowledged open.
func (s *StatsTracker) RecordOpen() {
	s.both(func(acc *StatsAccumulator) {
		acc.Opens++
	})
}

// RecordError counts a failure by its error kind.
func (s *StatsTracker) RecordError(kind string) {
	s.both(func(acc *StatsAccumulator) {
		acc.ErrorsByKind[kind]++
	})
}

// RecordClose records a closed position and updates PnL statistics.
func (s *StatsTracker) RecordClose(trade ClosedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, trade)
	s.updateAccumulator(s.dailyStats, trade)
	s.updateAccumulator(s.cumulativeStats, trade)

	s.logger.Debug("Close recorded",
		zap.String("symbol", trade.Symbol),
		zap.Float64("pnl_pct", trade.PnLPct),
		zap.Float64("margin_pnl_pct", trade.MarginPnLPct),
		zap.Int("total_closes", s.cumulativeStats.Closes),
	)
}

//nolint:funcorder // helper method used by RecordClose
func (s *StatsTracker) updateAccumulator(acc *StatsAccumulator, trade ClosedTrade) {
	acc.Closes++
	acc.TotalPnLPct += trade.PnLPct
	acc.TotalPnLUSD += trade.PnLUSD

	if trade.PnLPct > 0 {
		acc.WinningTrades++
	} else if trade.PnLPct < 0 {
		acc.LosingTrades++
	}

	if trade.PnLPct > acc.MaxProfitPct {
		acc.MaxProfitPct = trade.PnLPct
	}

	if trade.PnLPct < acc.MaxLossPct {
		acc.MaxLossPct = trade.PnLPct
	}

	if acc.TotalPnLPct > acc.PeakPnLPct {
		acc.PeakPnLPct = acc.TotalPnLPct
	}

	drawdown := acc.PeakPnLPct - acc.TotalPnLPct
	if drawdown > acc.MaxDrawdown {
		acc.MaxDrawdown = drawdown
	}

	if !trade.OpenedAt.IsZero() && !trade.ClosedAt.IsZero() {
		holdingTime := int(trade.ClosedAt.Sub(trade.OpenedAt).Seconds())
		if holdingTime > 0 {
			acc.HoldingTimes = append(acc.HoldingTimes, holdingTime)
		}
	}
}

// HandleDate resets the daily statistics when t falls on a new UTC date.
// It reports whether a boundary was crossed.
func (s *StatsTracker) HandleDate(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	newDate := t.UTC().Format(time.DateOnly)
	if newDate == s.currentDate {
		return false
	}

	oldDate := s.currentDate
	s.currentDate = newDate
	s.dailyStats = newStatsAccumulator()

	s.logger.Info("Date boundary handled, daily stats reset",
		zap.String("old_date", oldDate),
		zap.String("new_date", newDate),
	)

	return true
}

// GetDailyStats returns the statistics of the current date.
func (s *StatsTracker) GetDailyStats() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buildReport(s.dailyStats, s.currentDate, false)
}

// GetCumulativeStats returns the statistics since session start, trades included.
func (s *StatsTracker) GetCumulativeStats() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buildReport(s.cumulativeStats, s.sessionStart.UTC().Format(time.DateOnly), true)
}

//nolint:funcorder // helper method used by GetDailyStats, GetCumulativeStats, WriteStatsYAML
func (s *StatsTracker) buildReport(acc *StatsAccumulator, date string, withTrades bool) Report {
	winRate := 0.0
	avg := 0.0

	if acc.Closes > 0 {
		winRate = float64(acc.WinningTrades) / float64(acc.Closes)
		avg = acc.TotalPnLPct / float64(acc.Closes)
	}

	holdingTime := HoldingTime{}

	if len(acc.HoldingTimes) > 0 {
		sorted := append([]int(nil), acc.HoldingTimes...)
		sort.Ints(sorted)

		total := 0
		for _, t := range sorted {
			total += t
		}

		holdingTime.Min = sorted[0]
		holdingTime.Max = sorted[len(sorted)-1]
		holdingTime.Avg = total / len(sorted)
	}

	errs := make(map[string]int, len(acc.ErrorsByKind))
	for k, v := range acc.ErrorsByKind {
		errs[k] = v
	}

	r := Report{
		RunID:          s.runID,
		Date:           date,
		SessionStart:   s.sessionStart,
		LastUpdated:    s.now(),
		Strategy:       s.strategy,
		Iterations:     acc.Iterations,
		Evaluations:    acc.Evaluations,
		Opens:          acc.Opens,
		Closes:         acc.Closes,
		Wins:           acc.WinningTrades,
		Losses:         acc.LosingTrades,
		WinRate:        winRate,
		TotalPnLPct:    acc.TotalPnLPct,
		TotalPnLUSD:    acc.TotalPnLUSD,
		AvgPnLPct:      avg,
		MaxProfitPct:   acc.MaxProfitPct,
		MaxLossPct:     acc.MaxLossPct,
		MaxDrawdownPct: acc.MaxDrawdown,
		HoldingTime:    holdingTime,
		ErrorsByKind:   errs,
	}

	if withTrades {
		r.Trades = append([]ClosedTrade(nil), s.trades...)
	}

	return r
}

// WriteStatsYAML writes the cumulative statistics to the output path.
func (s *StatsTracker) WriteStatsYAML() error {
	s.mu.Lock()
	path := s.statsOutputPath
	report := s.buildReport(s.cumulativeStats, s.currentDate, true)
	s.mu.Unlock()

	if path == "" {
		return nil // No output path configured
	}

	return WriteReport(path, report)
}

// WriteReport renders r as YAML at path.
func WriteReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBacktestReportWrite, "marshal stats", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodeBacktestReportWrite, err, "write stats to %s", path)
	}

	return nil
}

// GetCurrentDate returns the current date.
func (s *StatsTracker) GetCurrentDate() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentDate
}

// GetRunID returns the run ID.
func (s *StatsTracker) GetRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runID
}
