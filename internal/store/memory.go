package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// MemoryStore keeps partitions in process memory. The back-tester replays
// through it and tests use it where no SQL engine is needed.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[int64]types.Bar
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[int64]types.Bar)}
}

// EnsurePartition implements Store.
func (m *MemoryStore) EnsurePartition(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.partitions[symbol]; !ok {
		m.partitions[symbol] = make(map[int64]types.Bar)
	}

	return nil
}

// UpsertBar implements Store.
func (m *MemoryStore) UpsertBar(_ context.Context, bar types.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[bar.Symbol]
	if !ok {
		return errors.Newf(errors.ErrCodePartitionMissing, "upsert bar: no partition for %s", bar.Symbol)
	}

	key := bar.Time.Unix()
	if _, exists := p[key]; !exists {
		bar.Time = bar.Time.UTC()
		p[key] = bar
	}

	return nil
}

// ReadWindow implements Store.
func (m *MemoryStore) ReadWindow(_ context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[symbol]
	if !ok {
		return nil, errors.Newf(errors.ErrCodePartitionMissing, "read window: no partition for %s", symbol)
	}

	var bars []types.Bar

	for _, b := range p {
		if b.Time.Before(start) || b.Time.After(end) {
			continue
		}

		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })

	return bars, nil
}

// LastBucket implements Store.
func (m *MemoryStore) LastBucket(_ context.Context, symbol string) (optional.Option[time.Time], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.partitions[symbol]
	if !ok {
		return optional.None[time.Time](), errors.Newf(errors.ErrCodePartitionMissing, "last bucket: no partition for %s", symbol)
	}

	var (
		last  int64
		found bool
	)

	for key := range p {
		if !found || key > last {
			last = key
			found = true
		}
	}

	if !found {
		return optional.None[time.Time](), nil
	}

	return optional.Some(time.Unix(last, 0).UTC()), nil
}

// PurgeOlderThan implements Store.
func (m *MemoryStore) PurgeOlderThan(_ context.Context, symbol string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.partitions[symbol]
	if !ok {
		return 0, errors.Newf(errors.ErrCodePartitionMissing, "purge: no partition for %s", symbol)
	}

	var n int64

	for key, b := range p {
		if b.Time.Before(cutoff) {
			delete(p, key)
			n++
		}
	}

	return n, nil
}

// ListPartitions implements Store.
func (m *MemoryStore) ListPartitions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.partitions))
	for sym := range m.partitions {
		symbols = append(symbols, sym)
	}

	sort.Strings(symbols)

	return symbols, nil
}

// Load bulk-inserts bars, creating partitions as needed.
func (m *MemoryStore) Load(bars []types.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range bars {
		p, ok := m.partitions[b.Symbol]
		if !ok {
			p = make(map[int64]types.Bar)
			m.partitions[b.Symbol] = p
		}

		if _, exists := p[b.Time.Unix()]; !exists {
			b.Time = b.Time.UTC()
			p[b.Time.Unix()] = b
		}
	}
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
