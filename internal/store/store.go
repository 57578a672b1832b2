// Package store persists one-second bars in one table ("partition") per
// instrument and answers the time-range reads of the live loop.
package store

import (
	"context"
	"time"

	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-perp/internal/types"
)

// Store is the persistence contract shared by the Postgres, DuckDB and
// in-memory backends. Every call acquires and releases its own connection.
type Store interface {
	// EnsurePartition creates the instrument's table if needed. Idempotent and
	// safe for concurrent callers.
	EnsurePartition(ctx context.Context, symbol string) error
	// UpsertBar inserts the bar unless its key already exists. The first write wins.
	UpsertBar(ctx context.Context, bar types.Bar) error
	// ReadWindow returns bars with start <= time <= end in ascending order.
	// A missing partition yields ErrCodePartitionMissing.
	ReadWindow(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error)
	// LastBucket returns the newest bucket start, or None for an empty partition.
	LastBucket(ctx context.Context, symbol string) (optional.Option[time.Time], error)
	// PurgeOlderThan deletes bars older than cutoff and reports the row count.
	PurgeOlderThan(ctx context.Context, symbol string, cutoff time.Time) (int64, error)
	// ListPartitions returns the symbols that have a partition.
	ListPartitions(ctx context.Context) ([]string, error)
	// Close releases the connection pool.
	Close() error
}
