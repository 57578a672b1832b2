package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/store"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// SymbolSource provides the current instrument set.
type SymbolSource interface {
	Symbols() []string
}

// Manager starts one supervisor per instrument that enters the universe.
// Supervisors run until shutdown; instruments are never dropped mid-run.
type Manager struct {
	store  store.Store
	cfg    SupervisorConfig
	logger *logger.Logger

	mu      sync.Mutex
	running map[string]struct{}
	nextID  int64
	wg      sync.WaitGroup
}

func NewManager(s store.Store, cfg SupervisorConfig, log *logger.Logger) *Manager {
	return &Manager{
		store:   s,
		cfg:     cfg,
		logger:  log.Named("aggregator-manager"),
		running: make(map[string]struct{}),
	}
}

// Sync starts supervisors for symbols that have none. The partition is ensured
// first; a failure leaves the symbol for the next Sync.
func (m *Manager) Sync(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		m.mu.Lock()
		_, ok := m.running[sym]
		m.mu.Unlock()

		if ok {
			continue
		}

		if err := m.store.EnsurePartition(ctx, sym); err != nil {
			m.logger.Warn("Failed to ensure partition, will retry",
				zap.String("symbol", sym),
				zap.String("kind", errors.KindOf(err)),
				zap.Error(err),
			)

			continue
		}

		m.mu.Lock()
		m.running[sym] = struct{}{}
		m.nextID++
		id := m.nextID
		m.mu.Unlock()

		sup := NewSupervisor(sym, m.cfg, m.store, id, m.logger)

		m.wg.Add(1)

		go func() {
			defer m.wg.Done()
			_ = sup.Run(ctx)
		}()

		m.logger.Info("Started trade aggregator", zap.String("symbol", sym))
	}
}

// Running returns how many supervisors are active.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.running)
}

// Run syncs against source every interval and waits for all supervisors on shutdown.
func (m *Manager) Run(ctx context.Context, source SymbolSource, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.Sync(ctx, source.Symbols())

		select {
		case <-ctx.Done():
			m.wg.Wait()

			return nil
		case <-ticker.C:
		}
	}
}
