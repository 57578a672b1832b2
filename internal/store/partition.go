package store

import "strings"

// PartitionPrefix starts every partition table name.
const PartitionPrefix = "ohlcv_"

// PartitionName encodes an instrument into its table name: lowercased with each
// underscore doubled, so SOL_USDC_PERP becomes ohlcv_sol__usdc__perp. Every
// component that touches the store goes through this function.
func PartitionName(symbol string) string {
	return PartitionPrefix + strings.ReplaceAll(strings.ToLower(symbol), "_", "__")
}

// SymbolFromPartition reverses PartitionName. Instruments on the venue are upper
// case, so the decoded symbol is upper-cased.
func SymbolFromPartition(table string) (string, bool) {
	if !strings.HasPrefix(table, PartitionPrefix) {
		return "", false
	}

	encoded := strings.TrimPrefix(table, PartitionPrefix)
	if encoded == "" {
		return "", false
	}

	return strings.ToUpper(strings.ReplaceAll(encoded, "__", "_")), true
}

// quoteIdent wraps an identifier in double quotes for both SQL dialects.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
