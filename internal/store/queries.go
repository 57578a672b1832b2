package store

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/rxtech-lab/argo-perp/internal/types"
)

const timestampColumn = `"timestamp"`

// dialect holds the column types that differ between backends.
type dialect struct {
	timestampType string
	numericType   string
}

var (
	postgresDialect = dialect{timestampType: "TIMESTAMPTZ", numericType: "NUMERIC"}
	duckDBDialect   = dialect{timestampType: "TIMESTAMP", numericType: "DOUBLE"}
)

// queries builds the SQL shared by the SQL backends.
type queries struct {
	sq      squirrel.StatementBuilderType
	dialect dialect
}

func newQueries(d dialect) queries {
	return queries{
		sq:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		dialect: d,
	}
}

// createTable has no squirrel builder; the table name is already encoded and quoted.
func (q queries) createTable(symbol string) string {
	n := q.dialect.numericType

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	symbol TEXT NOT NULL,
	interval_sec INTEGER NOT NULL,
	%s %s NOT NULL,
	open %s NOT NULL,
	high %s NOT NULL,
	low %s NOT NULL,
	close %s NOT NULL,
	volume %s NOT NULL,
	PRIMARY KEY (symbol, interval_sec, %s)
)`, quoteIdent(PartitionName(symbol)), timestampColumn, q.dialect.timestampType, n, n, n, n, n, timestampColumn)
}

func (q queries) insertBar(bar types.Bar) (string, []any, error) {
	return q.sq.Insert(quoteIdent(PartitionName(bar.Symbol))).
		Columns("symbol", "interval_sec", timestampColumn, "open", "high", "low", "close", "volume").
		Values(bar.Symbol, bar.IntervalSec, bar.Time.UTC(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume).
		Suffix(fmt.Sprintf("ON CONFLICT (symbol, interval_sec, %s) DO NOTHING", timestampColumn)).
		ToSql()
}

func (q queries) selectWindow(symbol string, start, end time.Time) (string, []any, error) {
	return q.sq.Select(
		"symbol",
		"interval_sec",
		timestampColumn,
		"CAST(open AS FLOAT8)",
		"CAST(high AS FLOAT8)",
		"CAST(low AS FLOAT8)",
		"CAST(close AS FLOAT8)",
		"CAST(volume AS FLOAT8)",
	).
		From(quoteIdent(PartitionName(symbol))).
		Where(squirrel.GtOrEq{timestampColumn: start.UTC()}).
		Where(squirrel.LtOrEq{timestampColumn: end.UTC()}).
		OrderBy(timestampColumn + " ASC").
		ToSql()
}

func (q queries) selectLastBucket(symbol string) (string, []any, error) {
	return q.sq.Select(fmt.Sprintf("MAX(%s)", timestampColumn)).
		From(quoteIdent(PartitionName(symbol))).
		ToSql()
}

func (q queries) deleteOlderThan(symbol string, cutoff time.Time) (string, []any, error) {
	return q.sq.Delete(quoteIdent(PartitionName(symbol))).
		Where(squirrel.Lt{timestampColumn: cutoff.UTC()}).
		ToSql()
}

func (q queries) listPartitions(schemaFilter squirrel.Sqlizer) (string, []any, error) {
	b := q.sq.Select("table_name").
		From("information_schema.tables").
		Where(squirrel.Like{"table_name": PartitionPrefix + "%"}).
		OrderBy("table_name")

	if schemaFilter != nil {
		b = b.Where(schemaFilter)
	}

	return b.ToSql()
}

// symbolsFromTables decodes table names, skipping anything that is not a partition.
func symbolsFromTables(tables []string) []string {
	symbols := make([]string, 0, len(tables))

	for _, t := range tables {
		if sym, ok := SymbolFromPartition(t); ok {
			symbols = append(symbols, sym)
		}
	}

	return symbols
}
