package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxtech-lab/argo-perp/internal/types"
	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

func TestPartitionName(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"SOL_USDC_PERP", "ohlcv_sol__usdc__perp"},
		{"BTC_USDC", "ohlcv_btc__usdc"},
		{"kPEPE_USDC_PERP", "ohlcv_kpepe__usdc__perp"},
		{"ETH", "ohlcv_eth"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, PartitionName(tt.symbol))
		})
	}
}

func TestSymbolFromPartitionRoundTrip(t *testing.T) {
	for _, sym := range []string{"SOL_USDC_PERP", "BTC_USDC", "A_B_C_D"} {
		got, ok := SymbolFromPartition(PartitionName(sym))
		require.True(t, ok)
		assert.Equal(t, sym, got)
	}

	_, ok := SymbolFromPartition("trades")
	assert.False(t, ok)
	_, ok = SymbolFromPartition("ohlcv_")
	assert.False(t, ok)
}

func TestQueriesUseEncodedTable(t *testing.T) {
	q := newQueries(postgresDialect)

	ddl := q.createTable("SOL_USDC_PERP")
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "ohlcv_sol__usdc__perp"`)
	assert.Contains(t, ddl, `"timestamp" TIMESTAMPTZ NOT NULL`)
	assert.Contains(t, ddl, "open NUMERIC NOT NULL")
	assert.Contains(t, ddl, `PRIMARY KEY (symbol, interval_sec, "timestamp")`)

	bar := types.Bar{Symbol: "SOL_USDC_PERP", IntervalSec: 1, Time: time.Unix(1_700_000_000, 0), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}
	sql, args, err := q.insertBar(bar)
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "ohlcv_sol__usdc__perp"`)
	assert.Contains(t, sql, "$8")
	assert.Contains(t, sql, "ON CONFLICT (symbol, interval_sec, \"timestamp\") DO NOTHING")
	assert.Len(t, args, 8)

	sql, args, err = q.selectWindow("SOL_USDC_PERP", time.Unix(0, 0), time.Unix(10, 0))
	require.NoError(t, err)
	assert.Contains(t, sql, `"timestamp" >= $1`)
	assert.Contains(t, sql, `"timestamp" <= $2`)
	assert.Contains(t, sql, `ORDER BY "timestamp" ASC`)
	assert.Len(t, args, 2)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil, "X", "op"))

	err := classify(&pgconn.PgError{Code: pgUndefinedTable}, "SOL_USDC_PERP", "read window")
	assert.True(t, errors.HasCode(err, errors.ErrCodePartitionMissing))

	err = classify(&pgconn.PgError{Code: pgTooManyClients}, "SOL_USDC_PERP", "read window")
	assert.True(t, errors.HasCode(err, errors.ErrCodeTooManyClients))

	err = classify(fmt.Errorf("Catalog Error: Table with name ohlcv_x does not exist!"), "X", "read window")
	assert.True(t, errors.HasCode(err, errors.ErrCodePartitionMissing))

	err = classify(fmt.Errorf("FATAL: sorry, too many clients already"), "X", "read window")
	assert.True(t, errors.HasCode(err, errors.ErrCodeTooManyClients))

	err = classify(fmt.Errorf("connection reset"), "X", "read window")
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryFailed))
	assert.Equal(t, "StoreUnavailable", errors.KindOf(err))
}

func TestAlreadyExists(t *testing.T) {
	assert.True(t, alreadyExists(&pgconn.PgError{Code: pgDuplicateTable}))
	assert.True(t, alreadyExists(&pgconn.PgError{Code: pgUniqueViolation}))
	assert.True(t, alreadyExists(fmt.Errorf("Catalog Error: Table with name x already exists!")))
	assert.False(t, alreadyExists(fmt.Errorf("boom")))
}

func TestPartitionSetCreatesOncePerSymbol(t *testing.T) {
	p := newPartitionSet()

	var calls atomic.Int32

	release := make(chan struct{})

	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, p.ensure("SOL_USDC_PERP", func() error {
				calls.Add(1)
				<-release

				return nil
			}))
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.NoError(t, p.ensure("SOL_USDC_PERP", func() error { return fmt.Errorf("not called") }))
}

func TestPartitionSetDoesNotSerializeSymbols(t *testing.T) {
	p := newPartitionSet()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- p.ensure("SOL_USDC_PERP", func() error {
			close(started)
			<-release

			return nil
		})
	}()

	<-started

	// a slow create for SOL must not block ETH
	finished := make(chan error, 1)

	go func() {
		finished <- p.ensure("ETH_USDC_PERP", func() error { return nil })
	}()

	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ensure for ETH waited on the SOL create")
	}

	close(release)
	require.NoError(t, <-done)
}

func TestPartitionSetRetriesAfterFailure(t *testing.T) {
	p := newPartitionSet()

	err := p.ensure("SOL_USDC_PERP", func() error { return fmt.Errorf("too many clients") })
	require.Error(t, err)

	calls := 0
	require.NoError(t, p.ensure("SOL_USDC_PERP", func() error {
		calls++

		return nil
	}))
	assert.Equal(t, 1, calls)

	p.forget("SOL_USDC_PERP")
	require.NoError(t, p.ensure("SOL_USDC_PERP", func() error {
		calls++

		return nil
	}))
	assert.Equal(t, 2, calls)
}
