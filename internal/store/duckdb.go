package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// DuckDBStore keeps partitions in an embedded DuckDB file. An empty path or
// ":memory:" opens an in-memory database shared by all pooled connections.
type DuckDBStore struct {
	db         *sql.DB
	q          queries
	partitions *partitionSet
	logger     *logger.Logger
}

var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore opens the database at path with at most poolMax connections.
func NewDuckDBStore(path string, poolMax int, log *logger.Logger) (*DuckDBStore, error) {
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "open duckdb", err)
	}

	if poolMax > 0 {
		db.SetMaxOpenConns(poolMax)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()

		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "ping duckdb", err)
	}

	return &DuckDBStore{
		db:         db,
		q:          newQueries(duckDBDialect),
		partitions: newPartitionSet(),
		logger:     log.Named("store"),
	}, nil
}

// EnsurePartition implements Store.
func (d *DuckDBStore) EnsurePartition(ctx context.Context, symbol string) error {
	return d.partitions.ensure(symbol, func() error {
		if _, err := d.db.ExecContext(ctx, d.q.createTable(symbol)); err != nil && !alreadyExists(err) {
			return classify(err, symbol, "ensure partition")
		}

		return nil
	})
}

// UpsertBar implements Store.
func (d *DuckDBStore) UpsertBar(ctx context.Context, bar types.Bar) error {
	query, args, err := d.q.insertBar(bar)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "build insert", err)
	}

	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		return classify(err, bar.Symbol, "upsert bar")
	}

	return nil
}

// ReadWindow implements Store.
func (d *DuckDBStore) ReadWindow(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	query, args, err := d.q.selectWindow(symbol, start, end)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "build window query", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		err = classify(err, symbol, "read window")
		if errors.HasCode(err, errors.ErrCodePartitionMissing) {
			d.partitions.forget(symbol)
		}

		return nil, err
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var b types.Bar
		if err := rows.Scan(&b.Symbol, &b.IntervalSec, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeQueryFailed, err, "scan bar of %s", symbol)
		}

		b.Time = b.Time.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, symbol, "read window")
	}

	return bars, nil
}

// LastBucket implements Store.
func (d *DuckDBStore) LastBucket(ctx context.Context, symbol string) (optional.Option[time.Time], error) {
	query, args, err := d.q.selectLastBucket(symbol)
	if err != nil {
		return optional.None[time.Time](), errors.Wrap(errors.ErrCodeQueryFailed, "build last bucket query", err)
	}

	var last sql.NullTime
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&last); err != nil {
		return optional.None[time.Time](), classify(err, symbol, "last bucket")
	}

	if !last.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(last.Time.UTC()), nil
}

// PurgeOlderThan implements Store.
func (d *DuckDBStore) PurgeOlderThan(ctx context.Context, symbol string, cutoff time.Time) (int64, error) {
	query, args, err := d.q.deleteOlderThan(symbol, cutoff)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "build purge", err)
	}

	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err, symbol, "purge")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err, symbol, "purge")
	}

	return affected, nil
}

// ListPartitions implements Store.
func (d *DuckDBStore) ListPartitions(ctx context.Context) ([]string, error) {
	query, args, err := d.q.listPartitions(nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "build partition listing", err)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "", "list partitions")
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, classify(err, "", "list partitions")
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(err, "", "list partitions")
	}

	return symbolsFromTables(tables), nil
}

// Close implements Store.
func (d *DuckDBStore) Close() error {
	if d == nil || d.db == nil {
		return nil
	}

	return d.db.Close()
}
