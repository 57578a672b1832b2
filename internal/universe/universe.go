// Package universe holds the set of instruments the agent tracks. The set is
// published as immutable snapshots so readers see either the previous or the
// next complete set.
package universe

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/metrics"
	"github.com/rxtech-lab/argo-perp/internal/venue"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// TickerSource lists the venue's 24h tickers.
type TickerSource interface {
	Tickers(ctx context.Context) ([]venue.Ticker, error)
}

// Snapshot is an ordered, deduplicated instrument set. Never mutated after publication.
type Snapshot struct {
	Symbols   []string
	UpdatedAt time.Time
}

func (s *Snapshot) Contains(symbol string) bool {
	return slices.Contains(s.Symbols, symbol)
}

// Policy is the static part of the selection.
type Policy struct {
	// Static symbols are the positional CLI list; used as the base set when auto-selection is off
	Static    []string
	Include   []string
	Exclude   []string
	TopN      int
	MinVolume float64
	Suffix    string
}

func PolicyFromConfig(cfg *config.Config, positional []string) Policy {
	return Policy{
		Static:    positional,
		Include:   cfg.Symbols.Include,
		Exclude:   cfg.Symbols.Exclude,
		TopN:      cfg.Strategy.AutoSelectTopN,
		MinVolume: cfg.Universe.MinVolume,
		Suffix:    cfg.Universe.SymbolSuffix,
	}
}

// Manager publishes universe snapshots. With a nil source the universe is
// the static policy and Refresh never calls the venue.
type Manager struct {
	source   TickerSource
	policy   Policy
	interval time.Duration
	logger   *logger.Logger
	now      func() time.Time

	current atomic.Pointer[Snapshot]
}

// NewStaticManager publishes Static ∪ Include − Exclude once.
func NewStaticManager(policy Policy, log *logger.Logger) *Manager {
	m := &Manager{policy: policy, logger: log.Named("universe"), now: time.Now}
	m.publish(Merge(policy.Static, policy.Include, policy.Exclude))

	return m
}

// NewAutoManager selects the top-N tickers on every refresh. The static
// symbols are kept until the first refresh succeeds.
func NewAutoManager(source TickerSource, policy Policy, interval time.Duration, log *logger.Logger) *Manager {
	m := &Manager{source: source, policy: policy, interval: interval, logger: log.Named("universe"), now: time.Now}
	m.publish(Merge(policy.Static, policy.Include, policy.Exclude))

	return m
}

func (m *Manager) publish(symbols []string) *Snapshot {
	snap := &Snapshot{Symbols: symbols, UpdatedAt: m.now().UTC()}
	m.current.Store(snap)
	metrics.UniverseSize.Set(float64(len(symbols)))

	return snap
}

// Snapshot returns the latest published snapshot.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// Symbols returns a copy of the latest symbol list.
func (m *Manager) Symbols() []string {
	return slices.Clone(m.current.Load().Symbols)
}

// Auto reports whether the manager selects from venue tickers.
func (m *Manager) Auto() bool {
	return m.source != nil
}

// Refresh recomputes and publishes the universe. On failure the previous
// snapshot stays published.
func (m *Manager) Refresh(ctx context.Context) (*Snapshot, error) {
	if m.source == nil {
		return m.Snapshot(), nil
	}

	tickers, err := m.source.Tickers(ctx)
	if err != nil {
		return m.Snapshot(), errors.Wrap(errors.ErrCodeUniverseFetchFailed, "fetch tickers", err)
	}

	selected := Top(Rank(tickers, m.policy.MinVolume, m.policy.Suffix), m.policy.TopN)
	symbols := Merge(selected, m.policy.Include, m.policy.Exclude)

	prev := m.Snapshot()
	snap := m.publish(symbols)

	if !slices.Equal(prev.Symbols, symbols) {
		m.logger.Info("Universe updated",
			zap.Strings("symbols", symbols),
			zap.Int("selected", len(selected)),
			zap.Int("tickers", len(tickers)),
		)
	}

	return snap, nil
}

// Run refreshes immediately and then on every interval until ctx is done.
// A static manager returns at once.
func (m *Manager) Run(ctx context.Context) error {
	if m.source == nil {
		return nil
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.logger.Warn("Universe refresh failed, keeping previous snapshot", zap.Error(err))
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Refresh(ctx); err != nil {
				m.logger.Warn("Universe refresh failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}
