package store

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-perp/internal/config"
	"github.com/rxtech-lab/argo-perp/internal/logger"
	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// PostgresStore keeps partitions in Postgres, optionally as Timescale hypertables.
type PostgresStore struct {
	pool       *pgxpool.Pool
	q          queries
	partitions *partitionSet
	timescale  bool
	logger     *logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a pool bounded by the configured min and max sizes.
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "database.dsn is required for the postgres store")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "parse pgx config", err)
	}

	poolCfg.MinConns = int32(cfg.PoolMinSize)
	poolCfg.MaxConns = int32(cfg.PoolMaxSize)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreUnavailable, "create pgx pool", err)
	}

	return &PostgresStore{
		pool:       pool,
		q:          newQueries(postgresDialect),
		partitions: newPartitionSet(),
		timescale:  cfg.Timescale,
		logger:     log.Named("store"),
	}, nil
}

// withConn scopes one pooled connection to fn. The connection is released on every path.
func (s *PostgresStore) withConn(ctx context.Context, symbol, op string, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		classified := classify(err, symbol, op)
		if errors.HasCode(classified, errors.ErrCodeTooManyClients) {
			return classified
		}

		return errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "%s %s: acquire connection", op, symbol)
	}
	defer conn.Release()

	return fn(conn)
}

// EnsurePartition implements Store.
func (s *PostgresStore) EnsurePartition(ctx context.Context, symbol string) error {
	return s.partitions.ensure(symbol, func() error {
		return s.withConn(ctx, symbol, "ensure partition", func(conn *pgxpool.Conn) error {
			if _, err := conn.Exec(ctx, s.q.createTable(symbol)); err != nil && !alreadyExists(err) {
				return classify(err, symbol, "ensure partition")
			}

			if !s.timescale {
				return nil
			}

			// hypertable conversion is a hint; plain tables work the same for reads
			_, err := conn.Exec(ctx, "SELECT create_hypertable($1, 'timestamp', if_not_exists => TRUE, migrate_data => TRUE)", PartitionName(symbol))
			if err != nil {
				s.logger.Warn("Failed to apply time partitioning, continuing with a plain table",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
			}

			return nil
		})
	})
}

// UpsertBar implements Store.
func (s *PostgresStore) UpsertBar(ctx context.Context, bar types.Bar) error {
	query, args, err := s.q.insertBar(bar)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "build insert", err)
	}

	return s.withConn(ctx, bar.Symbol, "upsert bar", func(conn *pgxpool.Conn) error {
		if _, err := conn.Exec(ctx, query, args...); err != nil {
			return classify(err, bar.Symbol, "upsert bar")
		}

		return nil
	})
}

// ReadWindow implements Store.
func (s *PostgresStore) ReadWindow(ctx context.Context, symbol string, start, end time.Time) ([]types.Bar, error) {
	query, args, err := s.q.selectWindow(symbol, start, end)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "build window query", err)
	}

	var bars []types.Bar

	err = s.withConn(ctx, symbol, "read window", func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return classify(err, symbol, "read window")
		}
		defer rows.Close()

		for rows.Next() {
			var b types.Bar
			if err := rows.Scan(&b.Symbol, &b.IntervalSec, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
				return errors.Wrapf(errors.ErrCodeQueryFailed, err, "scan bar of %s", symbol)
			}

			b.Time = b.Time.UTC()
			bars = append(bars, b)
		}

		return classify(rows.Err(), symbol, "read window")
	})
	if err != nil {
		if errors.HasCode(err, errors.ErrCodePartitionMissing) {
			s.partitions.forget(symbol)
		}

		return nil, err
	}

	return bars, nil
}

// LastBucket implements Store.
func (s *PostgresStore) LastBucket(ctx context.Context, symbol string) (optional.Option[time.Time], error) {
	query, args, err := s.q.selectLastBucket(symbol)
	if err != nil {
		return optional.None[time.Time](), errors.Wrap(errors.ErrCodeQueryFailed, "build last bucket query", err)
	}

	var last pgtype.Timestamptz

	err = s.withConn(ctx, symbol, "last bucket", func(conn *pgxpool.Conn) error {
		if err := conn.QueryRow(ctx, query, args...).Scan(&last); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return classify(err, symbol, "last bucket")
		}

		return nil
	})
	if err != nil {
		return optional.None[time.Time](), err
	}

	if !last.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(last.Time.UTC()), nil
}

// PurgeOlderThan implements Store.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, symbol string, cutoff time.Time) (int64, error) {
	query, args, err := s.q.deleteOlderThan(symbol, cutoff)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "build purge", err)
	}

	var affected int64

	err = s.withConn(ctx, symbol, "purge", func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return classify(err, symbol, "purge")
		}

		affected = tag.RowsAffected()

		return nil
	})

	return affected, err
}

// ListPartitions implements Store.
func (s *PostgresStore) ListPartitions(ctx context.Context) ([]string, error) {
	query, args, err := s.q.listPartitions(squirrel.Expr("table_schema = current_schema()"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "build partition listing", err)
	}

	var tables []string

	err = s.withConn(ctx, "", "list partitions", func(conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return classify(err, "", "list partitions")
		}

		tables, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return classify(err, "", "list partitions")
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return symbolsFromTables(tables), nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}

	s.pool.Close()

	return nil
}
