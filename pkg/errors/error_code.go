package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration and validation errors (100-199). These are the only fatal kinds.
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingCredentials   ErrorCode = 102
	ErrCodeInsufficientData     ErrorCode = 106
	ErrCodeInvalidPeriod        ErrorCode = 108

	// Store errors (200-299)
	ErrCodeStoreUnavailable ErrorCode = 200
	ErrCodePartitionMissing ErrorCode = 201
	ErrCodeQueryFailed      ErrorCode = 202
	ErrCodeTooManyClients   ErrorCode = 203
	ErrCodeStale            ErrorCode = 204
	ErrCodeInvalidBar       ErrorCode = 205

	// Indicator errors (300-399)
	ErrCodeIndicatorNotFound      ErrorCode = 300
	ErrCodeIndicatorAlreadyExists ErrorCode = 301
	ErrCodeIndicatorCalculation   ErrorCode = 302

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound      ErrorCode = 400
	ErrCodeStrategyAlreadyExists ErrorCode = 401
	ErrCodeStrategyRuntimeError  ErrorCode = 402

	// Broker errors (500-599)
	ErrCodeBrokerRejected     ErrorCode = 500
	ErrCodeBrokerInconsistent ErrorCode = 501
	ErrCodeInsufficientSize   ErrorCode = 502
	ErrCodeMarketUnavailable  ErrorCode = 503
	ErrCodeBadPrice           ErrorCode = 504
	ErrCodeBrokerTimeout      ErrorCode = 505

	// Backtest errors (600-699)
	ErrCodeBacktestNoData      ErrorCode = 600
	ErrCodeBacktestReportWrite ErrorCode = 601

	// Market data errors (700-799)
	ErrCodeTransportClosed       ErrorCode = 700
	ErrCodeMarketDataParseFailed ErrorCode = 701
	ErrCodeUniverseFetchFailed   ErrorCode = 702
)

var kindNames = map[ErrorCode]string{
	ErrCodeUnknown:                "Unknown",
	ErrCodeInvalidParameter:       "Fatal",
	ErrCodeInvalidConfiguration:   "Fatal",
	ErrCodeMissingCredentials:     "Fatal",
	ErrCodeInsufficientData:       "InsufficientWindow",
	ErrCodeInvalidPeriod:          "InvalidPeriod",
	ErrCodeStoreUnavailable:       "StoreUnavailable",
	ErrCodePartitionMissing:       "PartitionMissing",
	ErrCodeQueryFailed:            "StoreUnavailable",
	ErrCodeTooManyClients:         "TooManyClients",
	ErrCodeStale:                  "Stale",
	ErrCodeInvalidBar:             "InvalidBar",
	ErrCodeIndicatorNotFound:      "IndicatorNotFound",
	ErrCodeIndicatorAlreadyExists: "IndicatorAlreadyExists",
	ErrCodeIndicatorCalculation:   "InsufficientWindow",
	ErrCodeStrategyNotFound:       "Fatal",
	ErrCodeStrategyAlreadyExists:  "StrategyAlreadyExists",
	ErrCodeStrategyRuntimeError:   "StrategyError",
	ErrCodeBrokerRejected:         "BrokerRejected",
	ErrCodeBrokerInconsistent:     "BrokerInconsistent",
	ErrCodeInsufficientSize:       "InsufficientSize",
	ErrCodeMarketUnavailable:      "MarketUnavailable",
	ErrCodeBadPrice:               "BadPrice",
	ErrCodeBrokerTimeout:          "BrokerRejected",
	ErrCodeBacktestNoData:         "BacktestNoData",
	ErrCodeBacktestReportWrite:    "BacktestReportWrite",
	ErrCodeTransportClosed:        "TransportClosed",
	ErrCodeMarketDataParseFailed:  "ParseFailed",
	ErrCodeUniverseFetchFailed:    "UniverseFetchFailed",
}

// Kind returns the operator-facing kind name of the code.
func (c ErrorCode) Kind() string {
	if name, ok := kindNames[c]; ok {
		return name
	}

	return kindNames[ErrCodeUnknown]
}

// Fatal reports whether errors of this code must abort the process.
func (c ErrorCode) Fatal() bool {
	return c.Kind() == "Fatal"
}
